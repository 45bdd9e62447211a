package domain

import (
	"context"
	"time"
)

// Clock supplies the current instant. Each settlement operation reads it
// exactly once and uses it only for comparison against resolution times.
type Clock func() time.Time

// SignalBus publishes settlement events to external observers and lets
// in-process consumers (the websocket hub) subscribe to them.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// EventPublisher appends settlement events to a durable stream for
// downstream consumers. Fire-and-forget from the core's point of view.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// LockManager provides distributed locking, used to serialize operations
// against the same market record.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
