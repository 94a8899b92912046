package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do rate limit já tomada.
//
// Cuidado com cardinalidade: gravar Key/Path sem controle pode explodir o
// número de chaves no Redis. Por isso o rastreio por chave é opcional.
type StatsEvent struct {
	Key     Key
	Tier    Tier
	Outcome Outcome
	Points  int

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas das decisões.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
