package application

import (
	"context"
	"time"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService decide se uma requisição ganha vaga no gateway.
// Sem Pool configurado tudo passa.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout zero espera enquanto o ctx da requisição viver.
	AcquireTimeout time.Duration
}

// Admission descreve como a vaga foi obtida.
type Admission struct {
	Queued bool
	Waited time.Duration
}

// Acquire tenta a vaga sem esperar e, se não houver, entra na fila.
// Falha com domain.ErrNoSlot (prazo esgotado) ou domain.ErrCallerGone.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), Admission, error) {
	if s.Pool == nil {
		return func() {}, Admission{}, nil
	}
	if release, ok := s.Pool.TryAcquire(); ok {
		return release, Admission{}, nil
	}

	start := time.Now()
	waitCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	release, err := s.Pool.Acquire(waitCtx)
	adm := Admission{Queued: true, Waited: time.Since(start)}
	if err != nil {
		if ctx.Err() != nil {
			return nil, adm, domain.ErrCallerGone
		}
		return nil, adm, domain.ErrNoSlot
	}
	return release, adm, nil
}
