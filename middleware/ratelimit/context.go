package ratelimit

import (
	"context"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

type ctxKey int

const (
	proLimitKey ctxKey = iota
	decisionKey
)

// WithProLimit marca a requisição como autenticada via Basic Auth ("pro").
// Quem chama é o middleware de auth, que roda antes do rate limit.
func WithProLimit(ctx context.Context) context.Context {
	return context.WithValue(ctx, proLimitKey, true)
}

func ProLimit(ctx context.Context) bool {
	v, _ := ctx.Value(proLimitKey).(bool)
	return v
}

// DecisionFrom devolve a decisão aplicada a esta requisição (pontos, tier, etc).
func DecisionFrom(ctx context.Context) (domain.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(domain.Decision)
	return d, ok
}

func withDecision(ctx context.Context, d domain.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}
