package domain

import (
	"context"
	"errors"
)

var (
	// ErrNoSlot: o prazo de espera acabou sem vaga livre.
	ErrNoSlot = errors.New("concurrency: no slot available")
	// ErrCallerGone: o chamador desistiu (ctx da requisição encerrou) antes da vaga.
	ErrCallerGone = errors.New("concurrency: caller went away while queued")
)

// SlotPool limita requisições simultâneas em voo no gateway.
//
// O release devolvido pode ser chamado mais de uma vez; só a primeira conta.
type SlotPool interface {
	TryAcquire() (release func(), ok bool)
	// Acquire espera por uma vaga até ctx encerrar e então devolve ctx.Err().
	Acquire(ctx context.Context) (release func(), err error)
	InFlight() int
}
