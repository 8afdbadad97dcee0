// Package events publishes register events to the receipt and reporting
// consumers. Publishing is best effort; callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const DefaultQueue = "register.receipts"

const (
	dialTimeout   = 3 * time.Second
	redialBackoff = 10 * time.Second
)

var ErrBrokerUnavailable = errors.New("message broker unavailable")

const (
	TypeSaleSettled    = "sale.settled"
	TypeExpenseCreated = "expense.created"
	TypeExpenseDeleted = "expense.deleted"
	TypeRegisterClosed = "register.closed"
)

type Envelope struct {
	Type       string          `json:"type"`
	VenueID    string          `json:"venue_id"`
	RegisterID string          `json:"register_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, venueID string, registerID string, payload any) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ string, _ string, _ string, _ any) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

// AMQPPublisher keeps one connection and channel open and redials when a
// publish finds them closed. After a failed dial it fails fast until
// redialBackoff has passed.
type AMQPPublisher struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

func NewAMQPPublisher(url string, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	p := &AMQPPublisher{url: url, queue: queue}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, venueID string, registerID string, payload any) error {
	body, err := Encode(eventType, venueID, registerID, payload, time.Now().UTC())
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         eventType,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() || p.conn == nil || p.conn.IsClosed() {
		if err := p.redialLocked(); err != nil {
			return err
		}
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("amqp publish failed, redialing")
		if err := p.redialLocked(); err != nil {
			return err
		}
		return p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	return nil
}

func (p *AMQPPublisher) redialLocked() error {
	p.closeLocked()
	if time.Now().Before(p.retryAt) {
		return ErrBrokerUnavailable
	}
	if err := p.connect(); err != nil {
		p.retryAt = time.Now().Add(redialBackoff)
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	p.retryAt = time.Time{}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func Encode(eventType string, venueID string, registerID string, payload any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:       eventType,
		VenueID:    venueID,
		RegisterID: registerID,
		OccurredAt: at,
		Payload:    raw,
	})
}
