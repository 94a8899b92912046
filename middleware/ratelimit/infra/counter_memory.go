package infra

import (
	"context"
	"sync"
	"time"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore é uma janela fixa por chave em memória, com a mesma
// semântica do RedisCounterStore.
//
// O estado é local ao processo: não serve para várias réplicas. Útil para
// testes e para rodar o gateway sem Redis em desenvolvimento.
type MemoryCounterStore struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	window       domain.Window
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucket struct {
	consumed int
	resetAt  time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func WithMemoryClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(window domain.Window, opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		buckets:      make(map[string]*bucket),
		window:       window,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) Consume(_ context.Context, key domain.Key, points int) (domain.Consumption, error) {
	now := s.now()
	k := sanitizeKey(string(key))

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[k]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(s.window.Duration)}
		s.buckets[k] = b
	}

	cons := domain.Consumption{ResetIn: b.resetAt.Sub(now)}
	if b.consumed+points > s.window.Capacity {
		cons.Consumed = b.consumed
		cons.Remaining = max(s.window.Capacity-b.consumed, 0)
		return cons, domain.ErrOverLimit
	}
	b.consumed += points
	cons.Consumed = b.consumed
	cons.Remaining = s.window.Capacity - b.consumed
	return cons, nil
}

func (s *MemoryCounterStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
	return nil
}

func (s *MemoryCounterStore) Disconnect() error { return nil }

// Len é o número de buckets vivos (inclui janelas vencidas ainda não limpas).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup remove buckets cuja janela já virou.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if !now.Before(b.resetAt) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa janelas vencidas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
