package aggregate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"venuepos/backend/internal/cache"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/metrics"
	"venuepos/backend/internal/store"
)

// Source is the read side the watcher pulls from on every change.
type Source interface {
	GetActiveSession(ctx context.Context, venueID string) (*domain.RegisterSession, error)
	ListSalesByRegister(ctx context.Context, registerID string) ([]domain.Sale, error)
	ListExpensesByRegister(ctx context.Context, registerID string) ([]domain.Expense, error)
}

// Watcher keeps the live stats of the venue's active session. It rebuilds
// them from the source on every change signal instead of patching totals.
type Watcher struct {
	source  Source
	venueID string
	cache   cache.StatsCache
	ttl     time.Duration
	metrics *metrics.Metrics

	mu      sync.RWMutex
	current domain.SessionStats
}

func NewWatcher(source Source, venueID string, statsCache cache.StatsCache, ttl time.Duration, m *metrics.Metrics) *Watcher {
	if statsCache == nil {
		statsCache = cache.NoopStatsCache{}
	}
	return &Watcher{
		source:  source,
		venueID: venueID,
		cache:   statsCache,
		ttl:     ttl,
		metrics: m,
	}
}

// Recompute rebuilds the stats for whatever session is open right now. With no
// open session the live stats are zero.
func (w *Watcher) Recompute(ctx context.Context) (domain.SessionStats, error) {
	session, err := w.source.GetActiveSession(ctx, w.venueID)
	if errors.Is(err, store.ErrNotFound) {
		w.set(domain.SessionStats{})
		w.metrics.Recomputed(true)
		return domain.SessionStats{}, nil
	}
	if err != nil {
		w.metrics.Recomputed(false)
		return domain.SessionStats{}, err
	}
	return w.RecomputeSession(ctx, session.ID)
}

func (w *Watcher) RecomputeSession(ctx context.Context, registerID string) (domain.SessionStats, error) {
	sales, err := w.source.ListSalesByRegister(ctx, registerID)
	if err != nil {
		w.metrics.Recomputed(false)
		return domain.SessionStats{}, err
	}
	expenses, err := w.source.ListExpensesByRegister(ctx, registerID)
	if err != nil {
		w.metrics.Recomputed(false)
		return domain.SessionStats{}, err
	}

	stats := Recompute(registerID, sales, expenses)
	w.set(stats)
	w.metrics.Recomputed(true)
	if err := w.cache.Set(ctx, &stats, w.ttl); err != nil {
		log.Warn().Err(err).Str("register_id", registerID).Msg("stats cache write failed")
	}
	return stats, nil
}

func (w *Watcher) Current() domain.SessionStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reset zeroes the live stats once a session has closed.
func (w *Watcher) Reset(ctx context.Context, registerID string) {
	w.set(domain.SessionStats{})
	if registerID == "" {
		return
	}
	if err := w.cache.Delete(ctx, registerID); err != nil {
		log.Warn().Err(err).Str("register_id", registerID).Msg("stats cache delete failed")
	}
}

// Run recomputes once, then again for every signal until ctx ends. Signals
// that pile up during a recompute collapse into one pass.
func (w *Watcher) Run(ctx context.Context, changes <-chan string) {
	if _, err := w.Recompute(ctx); err != nil {
		log.Error().Err(err).Msg("initial stats recompute failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			drain(changes)
			if _, err := w.Recompute(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("stats recompute failed")
			}
		}
	}
}

func (w *Watcher) set(stats domain.SessionStats) {
	w.mu.Lock()
	w.current = stats
	w.mu.Unlock()
}

func drain(ch <-chan string) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
