package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

type Key string

// ErrOverLimit é o único erro "esperado" de um CounterStore: o bucket
// passaria da capacidade da janela. Qualquer outro erro é falha de infra.
var ErrOverLimit = errors.New("ratelimit: bucket over capacity")

// Consumption é o estado do bucket depois de um consumo.
type Consumption struct {
	// Consumed é o total de pontos já gastos na janela atual.
	Consumed int
	// Remaining é quanto ainda cabe na janela (nunca negativo).
	Remaining int
	// ResetIn é o tempo até a janela virar.
	ResetIn time.Duration
}

// CounterStore é o contador atômico compartilhado entre processos do gateway.
//
// Consume deve ser linearizado pelo próprio store (incremento + checagem atômicos);
// o gateway não faz lock nem cache local da contagem.
// Quando o consumo passaria da capacidade retorna ErrOverLimit junto com o estado atual.
type CounterStore interface {
	Consume(ctx context.Context, key Key, points int) (Consumption, error)
	// Reset apaga todos os buckets. Usado só por harness de teste.
	Reset(ctx context.Context) error
	// Disconnect libera a conexão no shutdown.
	Disconnect() error
}

// Window descreve a janela fixa aplicada pelo CounterStore.
type Window struct {
	Capacity int
	Duration time.Duration
}

// RequestsPerWindow é floor(capacity / points): o teto de requisições
// exibido na mensagem de 429. Não é usado para decidir nada.
func (w Window) RequestsPerWindow(points int) int {
	if points <= 0 {
		return w.Capacity
	}
	return w.Capacity / points
}

type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeBypass   Outcome = "bypass"
	OutcomeFailOpen Outcome = "fail_open"
)

// Decision é efêmera: calculada por request e descartada.
type Decision struct {
	Key     Key
	Tier    Tier
	Points  int
	Allowed bool
	Outcome Outcome

	// RequestsPerWindow = floor(capacity / Points); só para a mensagem ao usuário.
	RequestsPerWindow int

	// Remaining/ResetIn vêm do store quando houve cobrança.
	Remaining int
	ResetIn   time.Duration

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Charged indica se o CounterStore foi consultado com sucesso.
func (d Decision) Charged() bool {
	return d.Outcome == OutcomeAllowed || d.Outcome == OutcomeBlocked
}
