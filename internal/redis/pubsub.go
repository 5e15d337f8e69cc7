package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
)

// StatePubSub is the change feed: every committed state transition is
// announced so other replicas (and the UI sync layer) can re-read. Consumers
// must run the payload through the idempotent-apply gate; the feed makes no
// delivery-count promises.
type StatePubSub struct {
	rdb     *redis.Client
	channel string
}

func NewStatePubSub(rdb *redis.Client) *StatePubSub {
	return &StatePubSub{
		rdb:     rdb,
		channel: ChannelStateChanged(),
	}
}

type stateChangedMsg struct {
	Kind      domain.EntityKind `json:"kind"`
	ID        uuid.UUID         `json:"id"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (p *StatePubSub) PublishStateChanged(
	ctx context.Context,
	kind domain.EntityKind,
	id uuid.UUID,
	updatedAt time.Time,
) error {
	msg := stateChangedMsg{
		Kind:      kind,
		ID:        id,
		UpdatedAt: updatedAt,
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *StatePubSub) Subscribe(
	ctx context.Context,
	handler func(ctx context.Context, kind domain.EntityKind, id uuid.UUID, updatedAt time.Time),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg stateChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.ID != uuid.Nil {
				handler(ctx, msg.Kind, msg.ID, msg.UpdatedAt)
			}
		}
	}
}
