package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"venuepos/backend/internal/aggregate"
	"venuepos/backend/internal/cache"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/events"
	"venuepos/backend/internal/metrics"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options wires the optional collaborators. Zero values fall back to
// in-process implementations.
type Options struct {
	VenueID    string
	StatsCache cache.StatsCache
	StatsTTL   time.Duration
	Notifier   cache.ChangeNotifier
	Publisher  events.Publisher
	Metrics    *metrics.Metrics
}

type Service struct {
	repo      store.Repository
	venueID   string
	watcher   *aggregate.Watcher
	stats     cache.StatsCache
	notifier  cache.ChangeNotifier
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.VenueID == "" {
		opts.VenueID = "main-venue"
	}
	if opts.StatsCache == nil {
		opts.StatsCache = cache.NoopStatsCache{}
	}
	if opts.Notifier == nil {
		opts.Notifier = cache.NewLocalNotifier()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	} else if _, async := opts.Publisher.(*events.AsyncPublisher); !async {
		// events are delivered after the write has committed and off the request path
		opts.Publisher = events.NewAsyncPublisher(opts.Publisher, 0)
	}

	return &Service{
		repo:      repo,
		venueID:   opts.VenueID,
		watcher:   aggregate.NewWatcher(repo, opts.VenueID, opts.StatsCache, opts.StatsTTL, opts.Metrics),
		stats:     opts.StatsCache,
		notifier:  opts.Notifier,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Close delivers queued events and releases the publisher.
func (s *Service) Close() error {
	return s.publisher.Close()
}

func (s *Service) VenueID() string {
	return s.venueID
}

// RunAggregator keeps the live stats current until ctx ends. Every instance
// subscribes, so a sale settled on one terminal refreshes the others.
func (s *Service) RunAggregator(ctx context.Context) error {
	changes, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.watcher.Run(ctx, changes)
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	return s.repo.ListStaff(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, s.venueID, from, to, limit)
}

// changed refreshes this instance's live stats right away and tells the other
// instances to do the same. Neither step can fail the write that caused it.
func (s *Service) changed(ctx context.Context, registerID string) {
	if _, err := s.watcher.RecomputeSession(ctx, registerID); err != nil {
		log.Warn().Err(err).Str("register_id", registerID).Msg("stats recompute failed")
	}
	s.notify(ctx, registerID)
}

func (s *Service) notify(ctx context.Context, registerID string) {
	if err := s.notifier.Publish(ctx, registerID); err != nil {
		log.Warn().Err(err).Str("register_id", registerID).Msg("change notification failed")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, registerID string, payload any) {
	if err := s.publisher.Publish(ctx, eventType, s.venueID, registerID, payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("register_id", registerID).Msg("event publish failed")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Name: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		VenueID:    s.venueID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("audit log write failed")
	}
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Anonymous() {
		return domain.Actor{}, domain.ErrAccessDenied
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, domain.ErrRoleNotPermitted
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
