// Package token implementa o codec do token de acesso (JWT HS256) que carrega
// a identidade do chamador e o custo em pontos por requisição.
//
// Decode nunca falha para o chamador: token ausente, malformado, com assinatura
// inválida ou expirado vira a claim anônima, cobrada no tier mais baixo.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

var (
	ErrMissing   = errors.New("token: missing")
	ErrExpired   = errors.New("token: expired")
	ErrMalformed = errors.New("token: malformed claims")
)

const (
	DefaultTTL             = 30 * 24 * time.Hour
	DefaultDurationSeconds = 60
)

type claims struct {
	ID              string `json:"id"`
	PointsToConsume int    `json:"pointsToConsume"`
	Duration        int    `json:"duration"`
	jwt.StandardClaims
}

// Codec é stateless além do segredo e da configuração da claim anônima.
type Codec struct {
	secret     []byte
	anonPoints int
	duration   int
	ttl        time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithTTL(d time.Duration) Option {
	return func(c *Codec) { c.ttl = d }
}

func WithAnonymousDuration(seconds int) Option {
	return func(c *Codec) { c.duration = seconds }
}

func New(secret string, anonPoints int, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: empty signing secret")
	}
	if anonPoints < 1 {
		return nil, errors.Errorf("token: anonymous points must be >= 1, got %d", anonPoints)
	}
	c := &Codec{
		secret:     []byte(secret),
		anonPoints: anonPoints,
		duration:   DefaultDurationSeconds,
		ttl:        DefaultTTL,
		now:        time.Now,
		// a validação de exp é feita aqui com o relógio do codec
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
			SkipClaimsValidation: true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Anonymous é a claim padrão para quem não tem token válido: o bucket é o próprio IP.
func (c *Codec) Anonymous(ip string) domain.AccessClaim {
	return domain.AccessClaim{
		ID:              ip,
		PointsToConsume: c.anonPoints,
		DurationSeconds: c.duration,
	}
}

// Encode assina a claim. ExpiresAt zero usa o TTL padrão do codec.
func (c *Codec) Encode(claim domain.AccessClaim) (string, error) {
	if claim.ID == "" || claim.PointsToConsume < 1 {
		return "", ErrMalformed
	}
	exp := claim.ExpiresAt
	if exp.IsZero() {
		exp = c.now().Add(c.ttl)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ID:              claim.ID,
		PointsToConsume: claim.PointsToConsume,
		Duration:        claim.DurationSeconds,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  c.now().Unix(),
			ExpiresAt: exp.Unix(),
		},
	})
	s, err := tok.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "token: sign")
	}
	return s, nil
}

// Verify é o decode estrito, com o motivo da rejeição.
func (c *Codec) Verify(raw string) (domain.AccessClaim, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AccessClaim{}, ErrMissing
	}

	var cl claims
	_, err := c.parser.ParseWithClaims(raw, &cl, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return domain.AccessClaim{}, errors.Wrap(err, "token: parse")
	}

	if cl.ExpiresAt == 0 || c.now().Unix() >= cl.ExpiresAt {
		return domain.AccessClaim{}, ErrExpired
	}
	if cl.ID == "" || cl.PointsToConsume < 1 {
		return domain.AccessClaim{}, ErrMalformed
	}

	return domain.AccessClaim{
		ID:              cl.ID,
		PointsToConsume: cl.PointsToConsume,
		DurationSeconds: cl.Duration,
		ExpiresAt:       time.Unix(cl.ExpiresAt, 0),
	}, nil
}

// Decode nunca retorna erro: qualquer falha vira Anonymous(ip).
func (c *Codec) Decode(raw, ip string) domain.AccessClaim {
	claim, err := c.Verify(raw)
	if err != nil {
		return c.Anonymous(ip)
	}
	return claim
}
