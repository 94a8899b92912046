package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanPool_TryAcquireAndDoubleRelease(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.TryAcquire()
	require.True(t, ok)
	_, ok = p.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 1, p.InFlight())

	release()
	release()
	assert.Equal(t, 0, p.InFlight())

	// um release repetido não pode abrir uma segunda vaga por engano
	r1, ok := p.TryAcquire()
	require.True(t, ok)
	_, ok = p.TryAcquire()
	assert.False(t, ok)
	r1()
}

func TestChanPool_AcquireWaitsForRelease(t *testing.T) {
	p := NewChanPool(1)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := p.Acquire(ctx)
	require.NoError(t, err)
	r2()
}

func TestChanPool_AcquireReturnsContextError(t *testing.T) {
	p := NewChanPool(1)
	_, ok := p.TryAcquire()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.Cap())
}
