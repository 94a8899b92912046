package domain

type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierToken     Tier = "token"
	TierWhitelist Tier = "whitelist"
	TierInternal  Tier = "internal"
	TierPro       Tier = "pro"
)

// Resource é o tipo de backend que uma rota consome; o custo em pontos pode
// variar por tier e resource (ver application.CostTable).
type Resource string

const (
	ResourceFullNode Resource = "full-node"
	ResourceIndexer  Resource = "indexer"
	ResourceSLP      Resource = "slp"
)

// Caller é tudo que o classificador precisa saber da requisição.
// Montado pela camada HTTP, sem expor *http.Request.
type Caller struct {
	IP        string
	// Peer é o hop TCP (RemoteAddr). Difere de IP só quando o
	// X-Forwarded-For é confiável; vazio é tratado como igual a IP.
	Peer      string
	Origin    string
	Token     string
	ProLimit  bool
	// Forwarded é nil quando a requisição não trouxe `usrObj`.
	Forwarded *ForwardedIdentity
	Resource  Resource
}

// Classification é a saída do Tier Classifier.
// Bypass=true libera sem tocar no CounterStore.
type Classification struct {
	Key    Key
	Points int
	Tier   Tier
	Bypass bool
}
