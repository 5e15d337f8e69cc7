// Package queue publishes payment-side effects to RabbitMQ. Each effect kind
// gets its own durable queue; the payment gateway workers consume them and
// answer back through the webhook endpoints.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

type Config struct {
	URL string
}

// Envelope is the wire form of an effect. Source tells the gateway worker
// which entity to call back about.
type Envelope struct {
	Effect     string          `json:"effect"`
	SourceKind string          `json:"source_kind"`
	SourceID   uuid.UUID       `json:"source_id"`
	EmittedAt  time.Time       `json:"emitted_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]struct{}
}

func NewPublisher(cfg Config) (*Publisher, error) {
	const op = "queue.NewPublisher"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		declared: make(map[string]struct{}),
	}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Publish sends one effect to its queue. Messages are persistent so a broker
// restart does not lose an invoice or payout request.
func (p *Publisher) Publish(
	ctx context.Context,
	sourceKind string,
	sourceID uuid.UUID,
	eff lifecycle.Effect,
) error {
	const op = "queue.Publisher.Publish"

	name := eff.EffectName()

	if err := p.ensureQueue(name); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	payload, err := json.Marshal(eff)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	env := Envelope{
		Effect:     name,
		SourceKind: sourceKind,
		SourceID:   sourceID,
		EmittedAt:  time.Now().UTC(),
		Payload:    payload,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.EmittedAt,
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, "", name, false, false, pub); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (p *Publisher) ensureQueue(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.declared[name]; ok {
		return nil
	}

	if _, err := p.ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return err
	}

	p.declared[name] = struct{}{}

	return nil
}
