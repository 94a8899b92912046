package application

import (
	"strings"

	"github.com/rs/zerolog"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// TokenDecoder é o pedaço do token.Codec que o classificador usa.
// Decode nunca falha: token inválido vira a claim anônima (ExpiresAt zero).
type TokenDecoder interface {
	Decode(raw, ip string) domain.AccessClaim
}

type ClassifierConfig struct {
	AnonymousPoints int
	InternalPoints  int
	WhitelistPoints int

	// InternalPrefixes: casamento por substring no IP de origem, não CIDR.
	// Ex.: "127.0.0.1", "172.17." (rede padrão do docker).
	InternalPrefixes []string
	// WhitelistDomains: casamento por substring no header Origin.
	WhitelistDomains []string
}

var DefaultInternalPrefixes = []string{"127.0.0.1", "172.17."}

type Classifier struct {
	Config ClassifierConfig
	Tokens TokenDecoder
	Logger zerolog.Logger
}

// Classify resolve, em ordem de prioridade: pro (Basic Auth), tráfego interno,
// Origin na whitelist e por fim o token (ou anônimo).
//
// Qualquer panic durante a inspeção vira a classificação anônima pelo IP.
func (c Classifier) Classify(caller domain.Caller) (cls domain.Classification) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Warn().Interface("panic", r).Str("ip", caller.IP).Msg("rate limit classification failed, using anonymous tier")
			cls = c.anonymous(caller.IP)
		}
	}()

	if caller.ProLimit {
		return domain.Classification{Tier: domain.TierPro, Bypass: true}
	}

	if c.IsInternalCaller(caller) {
		fwd := caller.Forwarded
		if fwd == nil {
			// chamada interna sem usrObj: todas caem no mesmo bucket do IP interno
			return domain.Classification{
				Key:    domain.Key(caller.IP),
				Points: c.Config.InternalPoints,
				Tier:   domain.TierInternal,
			}
		}
		if fwd.ProLimit {
			return domain.Classification{Tier: domain.TierPro, Bypass: true}
		}
		ip := caller.IP
		if fwd.IP != "" {
			ip = fwd.IP
		}
		return c.fromToken(fwd.Token, ip)
	}

	if c.IsWhitelisted(caller.Origin) {
		return domain.Classification{
			Key:    domain.Key("whitelist:" + caller.IP),
			Points: c.Config.WhitelistPoints,
			Tier:   domain.TierWhitelist,
		}
	}

	return c.fromToken(caller.Token, caller.IP)
}

func (c Classifier) fromToken(raw, ip string) domain.Classification {
	if c.Tokens == nil {
		return c.anonymous(ip)
	}
	claim := c.Tokens.Decode(raw, ip)
	if claim.PointsToConsume < 1 || claim.ID == "" {
		return c.anonymous(ip)
	}
	tier := domain.TierToken
	if claim.ExpiresAt.IsZero() {
		tier = domain.TierAnonymous
	}
	return domain.Classification{
		Key:    domain.Key(claim.ID),
		Points: claim.PointsToConsume,
		Tier:   tier,
	}
}

func (c Classifier) anonymous(ip string) domain.Classification {
	return domain.Classification{
		Key:    domain.Key(ip),
		Points: c.Config.AnonymousPoints,
		Tier:   domain.TierAnonymous,
	}
}

// IsInternal é propositalmente permissivo (substring, sem 192.168. etc).
func (c Classifier) IsInternal(ip string) bool {
	if ip == "" {
		return false
	}
	prefixes := c.Config.InternalPrefixes
	if prefixes == nil {
		prefixes = DefaultInternalPrefixes
	}
	for _, p := range prefixes {
		if p != "" && strings.Contains(ip, p) {
			return true
		}
	}
	return false
}

// IsInternalCaller exige que o IP resolvido e o peer real sejam internos.
// Um X-Forwarded-For forjado muda só o IP, nunca o peer.
func (c Classifier) IsInternalCaller(caller domain.Caller) bool {
	if !c.IsInternal(caller.IP) {
		return false
	}
	return caller.Peer == "" || caller.Peer == caller.IP || c.IsInternal(caller.Peer)
}

// IsWhitelisted retorna false (não erro) quando não há Origin.
func (c Classifier) IsWhitelisted(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	for _, d := range c.Config.WhitelistDomains {
		if d != "" && strings.Contains(origin, d) {
			return true
		}
	}
	return false
}
