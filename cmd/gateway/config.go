package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"bch-rest-gateway/middleware/ratelimit/application"
	"bch-rest-gateway/middleware/ratelimit/domain"
)

type config struct {
	listenAddr string
	logLevel   string
	logFormat  string

	nodeURL         string
	nodeUser        string
	nodePass        string
	upstreamRPS     float64
	upstreamBurst   int
	upstreamTimeout time.Duration
	internalBaseURL string
	trustXFF        bool

	rateEnabled      bool
	rateStore        string
	pointsPerWindow  int
	window           time.Duration
	anonPoints       int
	internalPoints   int
	whitelistPoints  int
	whitelistDomains []string
	internalPrefixes []string
	addHeaders       bool
	keyPrefix        string
	costs            application.CostTable

	redisAddr     string
	redisPassword string
	redisDB       int
	redisTimeout  time.Duration

	tokenSecret string
	proPasses   string

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool

	concurrencyMax     int
	concurrencyTimeout time.Duration
}

// fileConfig é o formato do arquivo passado em --config. Só carrega o que é
// chato de escrever em variável de ambiente; env sempre vence.
type fileConfig struct {
	Listen           string                    `yaml:"listen"`
	FullNodeURL      string                    `yaml:"fullNodeURL"`
	WhitelistDomains []string                  `yaml:"whitelistDomains"`
	InternalPrefixes []string                  `yaml:"internalPrefixes"`
	Costs            map[string]map[string]int `yaml:"costs"`
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, errors.Wrap(err, "read config file")
	}
	if err := yaml.UnmarshalStrict(raw, &fc); err != nil {
		return fc, errors.Wrapf(err, "parse %s", path)
	}
	return fc, nil
}

func readConfig(path string) (config, error) {
	fc, err := loadFile(path)
	if err != nil {
		return config{}, err
	}

	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", orDefault(fc.Listen, ":3000"))
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = getenvDefault("LOG_FORMAT", "json")

	cfg.nodeURL = getenvDefault("FULL_NODE_URL", orDefault(fc.FullNodeURL, "http://127.0.0.1:8332"))
	cfg.nodeUser = os.Getenv("FULL_NODE_USER")
	cfg.nodePass = os.Getenv("FULL_NODE_PASS")
	cfg.upstreamRPS = getenvFloatDefault("UPSTREAM_RPS", 50)
	cfg.upstreamBurst = getenvIntDefault("UPSTREAM_BURST", 100)
	cfg.upstreamTimeout = getenvDurationDefault("UPSTREAM_TIMEOUT", 15*time.Second)
	cfg.internalBaseURL = getenvDefault("INTERNAL_BASE_URL", "http://127.0.0.1:3000")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateStore = strings.ToLower(getenvDefault("RATE_STORE", "redis"))
	cfg.pointsPerWindow = getenvIntDefault("RATE_POINTS_PER_WINDOW", 1000)
	cfg.window = getenvDurationDefault("RATE_WINDOW", time.Minute)
	cfg.anonPoints = getenvIntDefault("RATE_ANON_POINTS", 50)
	cfg.internalPoints = getenvIntDefault("RATE_INTERNAL_POINTS", 1)
	cfg.whitelistPoints = getenvIntDefault("RATE_WHITELIST_POINTS", 10)
	cfg.whitelistDomains = getenvListDefault("RATE_WHITELIST_DOMAINS", fc.WhitelistDomains)
	cfg.internalPrefixes = getenvListDefault("RATE_INTERNAL_PREFIXES", fc.InternalPrefixes)
	cfg.addHeaders = getenvBoolDefault("RATE_ADD_HEADERS", true)
	cfg.keyPrefix = getenvDefault("RATE_KEY_PREFIX", "bchapi:rl")

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "127.0.0.1:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.redisTimeout = getenvDurationDefault("REDIS_TIMEOUT", 500*time.Millisecond)

	cfg.tokenSecret = os.Getenv("TOKEN_SECRET")
	cfg.proPasses = os.Getenv("PRO_PASSES")

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	if cfg.costs, err = costTable(fc.Costs); err != nil {
		return config{}, err
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (cfg config) validate() error {
	if cfg.pointsPerWindow <= 0 {
		return errors.New("RATE_POINTS_PER_WINDOW must be > 0")
	}
	if cfg.window <= 0 {
		return errors.New("RATE_WINDOW must be > 0")
	}
	for name, v := range map[string]int{
		"RATE_ANON_POINTS":      cfg.anonPoints,
		"RATE_INTERNAL_POINTS":  cfg.internalPoints,
		"RATE_WHITELIST_POINTS": cfg.whitelistPoints,
	} {
		if v < 1 {
			return errors.Errorf("%s must be >= 1", name)
		}
	}
	if cfg.rateEnabled && cfg.tokenSecret == "" {
		return errors.New("TOKEN_SECRET is required when RATE_ENABLED=true")
	}
	switch cfg.rateStore {
	case "redis", "memory":
	default:
		return errors.Errorf("RATE_STORE must be redis or memory, got %q", cfg.rateStore)
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.upstreamRPS < 0 {
		return errors.New("UPSTREAM_RPS must be >= 0")
	}
	return nil
}

func (cfg config) rateWindow() domain.Window {
	return domain.Window{Capacity: cfg.pointsPerWindow, Duration: cfg.window}
}

func (cfg config) classifier() application.ClassifierConfig {
	return application.ClassifierConfig{
		AnonymousPoints:  cfg.anonPoints,
		InternalPoints:   cfg.internalPoints,
		WhitelistPoints:  cfg.whitelistPoints,
		InternalPrefixes: cfg.internalPrefixes,
		WhitelistDomains: cfg.whitelistDomains,
	}
}

var knownResources = map[domain.Resource]bool{
	domain.ResourceFullNode: true,
	domain.ResourceIndexer:  true,
	domain.ResourceSLP:      true,
}

var knownTiers = map[domain.Tier]bool{
	domain.TierAnonymous: true,
	domain.TierToken:     true,
	domain.TierWhitelist: true,
	domain.TierInternal:  true,
}

func costTable(raw map[string]map[string]int) (application.CostTable, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := application.CostTable{}
	for t, byRes := range raw {
		tier := domain.Tier(t)
		if !knownTiers[tier] {
			return nil, errors.Errorf("costs: unknown tier %q", t)
		}
		out[tier] = map[domain.Resource]int{}
		for r, p := range byRes {
			res := domain.Resource(r)
			if !knownResources[res] {
				return nil, errors.Errorf("costs: unknown resource %q", r)
			}
			if p < 1 {
				return nil, errors.Errorf("costs: %s/%s must be >= 1", t, r)
			}
			out[tier][res] = p
		}
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvListDefault(k string, def []string) []string {
	v, ok := os.LookupEnv(k)
	if !ok {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
