package infra

import (
	"context"
	"sync/atomic"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo de capacidade fixa sobre um channel com buffer.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

func NewChanPool(max int) *ChanPool {
	if max < 1 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) TryAcquire() (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), true
	default:
		return nil, false
	}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), error) {
	if release, ok := p.TryAcquire(); ok {
		return release, nil
	}
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// releaser libera a vaga uma única vez mesmo se chamado de novo (defer + caminho de erro).
func (p *ChanPool) releaser() func() {
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			<-p.sem
		}
	}
}

func (p *ChanPool) InFlight() int { return len(p.sem) }

func (p *ChanPool) Cap() int { return cap(p.sem) }
