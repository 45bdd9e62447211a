package app

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// localLockManager serializes per-key access with in-process mutexes. It
// stands in for the Redis lock manager in demo mode, where everything runs in
// a single process.
type localLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ domain.LockManager = (*localLockManager)(nil)

func newLocalLockManager() *localLockManager {
	return &localLockManager{locks: make(map[string]*sync.Mutex)}
}

func (m *localLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

// localSignalBus fans published payloads out to in-process subscribers. Slow
// subscribers drop messages rather than block the publisher.
type localSignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

var _ domain.SignalBus = (*localSignalBus)(nil)

func newLocalSignalBus() *localSignalBus {
	return &localSignalBus{subs: make(map[string][]chan []byte)}
}

func (b *localSignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *localSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
