package domain

import "time"

// AccessClaim é o conteúdo decodificado do token do chamador.
//
// Ou é totalmente válida (assinatura + não expirada) ou é descartada em favor
// da claim anônima. Não existe confiança parcial.
type AccessClaim struct {
	// ID é a chave do bucket (id da conta ou pseudo-id derivado do IP).
	ID              string
	PointsToConsume int
	// DurationSeconds é informativo: a janela aplicada vem da config do store.
	DurationSeconds int
	ExpiresAt       time.Time
}

// ForwardedIdentity é a identidade embutida (`usrObj`) nas sub-requisições
// internas de fan-out, para que sejam cobradas do chamador original.
type ForwardedIdentity struct {
	Token    string
	ProLimit bool
	// IP é o IP do chamador original; vazio em call sites antigos.
	IP string
}
