package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// countingStore é uma janela fixa mínima que registra as chamadas.
type countingStore struct {
	capacity int
	used     map[domain.Key]int
	calls    int
	err      error
	panics   bool
}

func newCountingStore(capacity int) *countingStore {
	return &countingStore{capacity: capacity, used: make(map[domain.Key]int)}
}

func (s *countingStore) Consume(_ context.Context, key domain.Key, points int) (domain.Consumption, error) {
	s.calls++
	if s.panics {
		panic("store exploded")
	}
	if s.err != nil {
		return domain.Consumption{}, s.err
	}
	if s.used[key]+points > s.capacity {
		return domain.Consumption{Consumed: s.used[key], ResetIn: 42 * time.Second}, domain.ErrOverLimit
	}
	s.used[key] += points
	return domain.Consumption{Consumed: s.used[key], Remaining: s.capacity - s.used[key], ResetIn: time.Minute}, nil
}

func (s *countingStore) Reset(context.Context) error {
	s.used = make(map[domain.Key]int)
	return nil
}

func (s *countingStore) Disconnect() error { return nil }

func testService(store domain.CounterStore) Service {
	return Service{
		Classifier: testClassifier(),
		Store:      store,
		Window:     domain.Window{Capacity: 1000, Duration: time.Minute},
	}
}

func TestService_BypassNeverTouchesStore(t *testing.T) {
	store := newCountingStore(1000)
	svc := testService(store)

	for _, c := range []domain.Caller{
		{IP: "8.8.8.8", ProLimit: true},
		{IP: "127.0.0.1", Forwarded: &domain.ForwardedIdentity{ProLimit: true}},
	} {
		dec := svc.Decide(context.Background(), c)
		assert.True(t, dec.Allowed)
		assert.Equal(t, domain.OutcomeBypass, dec.Outcome)
	}
	assert.Zero(t, store.calls)
}

func TestService_AnonymousBlockedOnTwentyFirst(t *testing.T) {
	svc := testService(newCountingStore(1000))
	ctx := context.Background()
	caller := domain.Caller{IP: "8.8.8.8"}

	for i := 1; i <= 20; i++ {
		dec := svc.Decide(ctx, caller)
		require.True(t, dec.Allowed, "request %d", i)
		assert.Equal(t, 50, dec.Points)
	}

	dec := svc.Decide(ctx, caller)
	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.OutcomeBlocked, dec.Outcome)
	assert.Equal(t, 20, dec.RequestsPerWindow)
	assert.Equal(t, 42*time.Second, dec.RetryAfter)
}

func TestService_TokenCallerGetsHundredRequests(t *testing.T) {
	svc := testService(newCountingStore(1000))
	ctx := context.Background()
	caller := domain.Caller{IP: "8.8.8.8", Token: "good"}

	for i := 1; i <= 100; i++ {
		require.True(t, svc.Decide(ctx, caller).Allowed, "request %d", i)
	}
	dec := svc.Decide(ctx, caller)
	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.Key("acct-1"), dec.Key)
	assert.Equal(t, 100, dec.RequestsPerWindow)
}

func TestService_InternalDefaultPoints(t *testing.T) {
	svc := testService(newCountingStore(1000))

	dec := svc.Decide(context.Background(), domain.Caller{IP: "172.17.0.9"})
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, dec.Points)
	assert.Equal(t, domain.TierInternal, dec.Tier)
}

func TestService_FailsOpenOnStoreError(t *testing.T) {
	store := newCountingStore(1000)
	store.err = errors.New("dial tcp 127.0.0.1:6379: connection refused")

	dec := testService(store).Decide(context.Background(), domain.Caller{IP: "8.8.8.8"})
	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.OutcomeFailOpen, dec.Outcome)
	assert.Equal(t, 1, store.calls)
}

func TestService_FailsOpenOnStorePanic(t *testing.T) {
	store := newCountingStore(1000)
	store.panics = true

	var dec domain.Decision
	require.NotPanics(t, func() {
		dec = testService(store).Decide(context.Background(), domain.Caller{IP: "8.8.8.8"})
	})
	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.OutcomeFailOpen, dec.Outcome)
}

func TestService_NoStoreAllows(t *testing.T) {
	dec := testService(nil).Decide(context.Background(), domain.Caller{IP: "8.8.8.8"})
	assert.True(t, dec.Allowed)
}

func TestService_CostTableOverridesByResource(t *testing.T) {
	svc := testService(newCountingStore(1000))
	svc.Costs = CostTable{
		domain.TierAnonymous: {domain.ResourceSLP: 100},
	}
	ctx := context.Background()

	dec := svc.Decide(ctx, domain.Caller{IP: "8.8.8.8", Resource: domain.ResourceSLP})
	assert.Equal(t, 100, dec.Points)
	assert.Equal(t, 10, dec.RequestsPerWindow)

	dec = svc.Decide(ctx, domain.Caller{IP: "8.8.8.8", Resource: domain.ResourceFullNode})
	assert.Equal(t, 50, dec.Points)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryAfter(1500*time.Millisecond, time.Minute))
	assert.Equal(t, time.Minute, retryAfter(0, time.Minute))
	assert.Equal(t, time.Second, retryAfter(0, 0))
}
