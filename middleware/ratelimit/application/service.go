package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Falha de infraestrutura (store fora, panic) libera a requisição sem cobrar.
type Service struct {
	Classifier Classifier
	Store      domain.CounterStore
	Window     domain.Window
	Costs      CostTable
	Logger     zerolog.Logger
}

func (s Service) Decide(ctx context.Context, caller domain.Caller) domain.Decision {
	cls := s.Classifier.Classify(caller)
	if cls.Bypass {
		return domain.Decision{Tier: cls.Tier, Allowed: true, Outcome: domain.OutcomeBypass}
	}

	points := s.Costs.Points(cls.Tier, caller.Resource, cls.Points)
	if points < 1 {
		points = 1
	}
	dec := domain.Decision{
		Key:               cls.Key,
		Tier:              cls.Tier,
		Points:            points,
		RequestsPerWindow: s.Window.RequestsPerWindow(points),
	}

	if s.Store == nil {
		dec.Allowed = true
		dec.Outcome = domain.OutcomeFailOpen
		return dec
	}

	cons, err := s.consume(ctx, cls.Key, points)
	switch {
	case err == nil:
		dec.Allowed = true
		dec.Outcome = domain.OutcomeAllowed
		dec.Remaining = cons.Remaining
		dec.ResetIn = cons.ResetIn
	case errors.Is(err, domain.ErrOverLimit):
		dec.Allowed = false
		dec.Outcome = domain.OutcomeBlocked
		dec.Remaining = cons.Remaining
		dec.ResetIn = cons.ResetIn
		dec.RetryAfter = retryAfter(cons.ResetIn, s.Window.Duration)
		s.Logger.Debug().Str("key", string(cls.Key)).Str("tier", string(cls.Tier)).Int("points", points).Msg("rate limit reached")
	default:
		dec.Allowed = true
		dec.Outcome = domain.OutcomeFailOpen
		s.Logger.Warn().Err(err).Str("key", string(cls.Key)).Msg("counter store failed, letting request through")
	}
	return dec
}

func (s Service) consume(ctx context.Context, key domain.Key, points int) (cons domain.Consumption, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("counter store panic: %v", r)
		}
	}()
	return s.Store.Consume(ctx, key, points)
}

// retryAfter arredonda para cima em segundos; sem info do store usa a janela.
func retryAfter(resetIn, window time.Duration) time.Duration {
	d := resetIn
	if d <= 0 {
		d = window
	}
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
