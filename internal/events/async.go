package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

var (
	ErrQueueFull       = errors.New("event queue full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

type queuedEvent struct {
	eventType  string
	venueID    string
	registerID string
	payload    json.RawMessage
}

// AsyncPublisher hands events to one background goroutine so a slow or
// unreachable broker never holds up the caller. Events are delivered in
// order; when the buffer is full new events are dropped.
type AsyncPublisher struct {
	inner Publisher
	queue chan queuedEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncPublisher(inner Publisher, buffer int) *AsyncPublisher {
	if buffer < 1 {
		buffer = 256
	}
	p := &AsyncPublisher{
		inner: inner,
		queue: make(chan queuedEvent, buffer),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish snapshots payload and queues it. It never blocks.
func (p *AsyncPublisher) Publish(_ context.Context, eventType string, venueID string, registerID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- queuedEvent{eventType: eventType, venueID: venueID, registerID: registerID, payload: raw}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, delivers what is already queued and then
// closes the wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.inner.Close()
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.inner.Publish(ctx, ev.eventType, ev.venueID, ev.registerID, ev.payload); err != nil {
			log.Warn().Err(err).Str("event", ev.eventType).Str("register_id", ev.registerID).Msg("event delivery failed")
		}
		cancel()
	}
}
