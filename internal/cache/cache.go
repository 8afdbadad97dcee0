package cache

import (
	"context"
	"sync"
	"time"

	"venuepos/backend/internal/domain"
)

// StatsCache holds the latest aggregated stats per register session so any
// terminal can read them without recomputing.
type StatsCache interface {
	Get(ctx context.Context, registerID string) (*domain.SessionStats, bool, error)
	Set(ctx context.Context, stats *domain.SessionStats, ttl time.Duration) error
	Delete(ctx context.Context, registerID string) error
}

// ChangeNotifier fans out "this register's sales or expenses changed"
// signals. Publish never blocks on slow subscribers.
type ChangeNotifier interface {
	Publish(ctx context.Context, registerID string) error
	Subscribe(ctx context.Context) (<-chan string, error)
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.SessionStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ *domain.SessionStats, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) Delete(_ context.Context, _ string) error {
	return nil
}

// LocalNotifier is the in-process notifier used when no Redis is configured.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[chan string]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, registerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- registerID:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs, ch)
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}
