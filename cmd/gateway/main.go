package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"bch-rest-gateway/internal/routes"
	"bch-rest-gateway/internal/upstream"
	"bch-rest-gateway/middleware/auth"
	"bch-rest-gateway/middleware/ratelimit"
	"bch-rest-gateway/middleware/ratelimit/application"
	"bch-rest-gateway/middleware/ratelimit/domain"
	"bch-rest-gateway/middleware/ratelimit/infra"
	"bch-rest-gateway/middleware/ratelimit/token"
)

func main() {
	configPath := pflag.String("config", "", "optional YAML config file (env vars override it)")
	issue := pflag.Bool("issue-token", false, "print a signed access token and exit")
	issueID := pflag.String("id", "", "account id for --issue-token")
	issuePoints := pflag.Int("points", 10, "points per request for --issue-token")
	issueTTL := pflag.Duration("ttl", token.DefaultTTL, "validity for --issue-token")
	pflag.Parse()

	cfg, err := readConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	log := newLogger(cfg.logLevel, cfg.logFormat)

	if *issue {
		if err := issueToken(cfg, *issueID, *issuePoints, *issueTTL); err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ratelimit.NewMetrics(reg)

	var (
		rdb    *redis.Client
		store  domain.CounterStore
		stats  domain.StatsStore
		pinger routes.Pinger
	)
	if cfg.rateStore == "redis" || cfg.rateStatsEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.redisAddr,
			Password:     cfg.redisPassword,
			DB:           cfg.redisDB,
			DialTimeout:  cfg.redisTimeout,
			ReadTimeout:  cfg.redisTimeout,
			WriteTimeout: cfg.redisTimeout,
		})
		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		// sem redis no boot o limiter só fica em fail-open; não derruba o gateway
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.redisAddr).Msg("redis ping failed, rate limit will fail open")
		}
		cancelPing()
	}

	if cfg.rateStore == "redis" {
		rs := infra.NewRedisCounterStore(rdb, cfg.rateWindow(), infra.WithKeyPrefix(cfg.keyPrefix))
		store, pinger = rs, rs
	} else {
		ms := infra.NewMemoryCounterStore(cfg.rateWindow())
		ms.StartJanitor(ctx)
		store = ms
	}

	if cfg.rateStatsEnabled {
		stats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
	}

	httpClient := &http.Client{Timeout: cfg.upstreamTimeout}
	handlers := &routes.Handlers{
		Node: upstream.NewNodeClient(upstream.NodeConfig{
			URL:      cfg.nodeURL,
			User:     cfg.nodeUser,
			Password: cfg.nodePass,
			Timeout:  cfg.upstreamTimeout,
			RPS:      cfg.upstreamRPS,
			Burst:    cfg.upstreamBurst,
		}, httpClient),
		Fanout:   upstream.NewFanoutClient(cfg.internalBaseURL, httpClient, 4),
		TrustXFF: cfg.trustXFF,
		Logger:   log.With().Str("component", "routes").Logger(),
	}
	api := http.NewServeMux()
	handlers.Register(api)

	h := http.Handler(api)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Exempt:         routes.InternalHop(application.Classifier{Config: cfg.classifier()}.IsInternal),
		Metrics:        metrics,
	})(h)
	if cfg.rateEnabled {
		codec, err := token.New(cfg.tokenSecret, cfg.anonPoints)
		if err != nil {
			log.Fatal().Err(err).Msg("token codec")
		}
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               stats,
			Tokens:              codec,
			Classifier:          cfg.classifier(),
			Window:              cfg.rateWindow(),
			Costs:               cfg.costs,
			TrustXForwardedFor:  cfg.trustXFF,
			AddRateLimitHeaders: cfg.addHeaders,
			Metrics:             metrics,
			Logger:              log.With().Str("component", "ratelimit").Logger(),
		})(h)
	}
	h = auth.BasicMiddleware(auth.BasicOptions{
		Passes: auth.ParsePasses(cfg.proPasses),
		Logger: log.With().Str("component", "auth").Logger(),
	})(h)

	root := http.NewServeMux()
	root.Handle("GET /healthz", routes.Health(pinger, time.Second))
	root.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	root.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           routes.RequestLogger(log)(root),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := store.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("counter store disconnect")
		}
		if rdb != nil && cfg.rateStore != "redis" {
			_ = rdb.Close()
		}
	}()

	log.Info().
		Str("addr", cfg.listenAddr).
		Str("node", cfg.nodeURL).
		Bool("rate_enabled", cfg.rateEnabled).
		Str("rate_store", cfg.rateStore).
		Int("points_per_window", cfg.pointsPerWindow).
		Dur("window", cfg.window).
		Bool("stats", cfg.rateStatsEnabled).
		Int("concurrency_max", cfg.concurrencyMax).
		Msg("gateway listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	<-done
}

func issueToken(cfg config, id string, points int, ttl time.Duration) error {
	if cfg.tokenSecret == "" {
		return errors.New("TOKEN_SECRET is required")
	}
	codec, err := token.New(cfg.tokenSecret, cfg.anonPoints, token.WithTTL(ttl))
	if err != nil {
		return err
	}
	raw, err := codec.Encode(domain.AccessClaim{ID: id, PointsToConsume: points})
	if err != nil {
		return err
	}
	fmt.Println(raw)
	return nil
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if format == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(lvl).With().Timestamp().Logger()
}
