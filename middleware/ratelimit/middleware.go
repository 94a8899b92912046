package ratelimit

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bch-rest-gateway/middleware/ratelimit/application"
	"bch-rest-gateway/middleware/ratelimit/domain"
)

type ResourceFunc func(r *http.Request) domain.Resource

type Options struct {
	Store      domain.CounterStore
	Stats      domain.StatsStore
	Tokens     application.TokenDecoder
	Classifier application.ClassifierConfig
	Window     domain.Window
	Costs      application.CostTable

	ResourceFn          ResourceFunc
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool
	// UpgradeHint é anexado à mensagem do 429.
	UpgradeHint string

	// OnDecision é chamado com toda decisão tomada (inspeção/testes).
	OnDecision func(*http.Request, domain.Decision)

	Metrics *Metrics
	Logger  zerolog.Logger
}

// Middleware aplica o rate limit por pontos antes de qualquer chamada ao upstream.
//
// Nada aqui gera 500: falha ao classificar vira anônimo, falha do store libera.
// O único bloqueio é o 429 de cota estourada.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Window.Duration <= 0 {
		opts.Window.Duration = time.Minute
	}
	if opts.ResourceFn == nil {
		opts.ResourceFn = func(r *http.Request) domain.Resource { return ResourceForPath(r.URL.Path) }
	}
	if opts.UpgradeHint == "" {
		opts.UpgradeHint = DefaultUpgradeHint
	}

	svc := application.Service{
		Classifier: application.Classifier{
			Config: opts.Classifier,
			Tokens: opts.Tokens,
			Logger: opts.Logger,
		},
		Store:  opts.Store,
		Window: opts.Window,
		Costs:  opts.Costs,
		Logger: opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			caller := callerFrom(r, svc.Classifier, opts)
			dec := svc.Decide(r.Context(), caller)
			opts.Metrics.observe(dec, time.Since(start))

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     dec.Key,
					Tier:    dec.Tier,
					Outcome: dec.Outcome,
					Points:  dec.Points,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      start,
				}); err != nil {
					opts.Logger.Debug().Err(err).Msg("rate limit stats not recorded")
				}
			}
			if opts.OnDecision != nil {
				opts.OnDecision(r, dec)
			}

			if opts.AddRateLimitHeaders && dec.Charged() {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(opts.Window.Capacity))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				h.Set("X-RateLimit-Reset", formatSeconds(dec.ResetIn))
				h.Set("X-RateLimit-Points", formatInt(dec.Points))
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
				writeJSONError(w, http.StatusTooManyRequests, OverLimitMessage(dec, opts.Window.Duration, opts.UpgradeHint))
				return
			}

			next.ServeHTTP(w, r.WithContext(withDecision(r.Context(), dec)))
		})
	}
}

// callerFrom monta o domain.Caller. Panic aqui vira um Caller só com IP,
// que cai no tier anônimo.
func callerFrom(r *http.Request, cls application.Classifier, opts Options) (c domain.Caller) {
	ip := ClientIP(r, opts.TrustXForwardedFor)
	peer := ClientIP(r, false)
	defer func() {
		if rec := recover(); rec != nil {
			opts.Logger.Warn().Interface("panic", rec).Str("ip", ip).Msg("inspecting request for rate limit failed")
			c = domain.Caller{IP: ip, Peer: peer, Resource: domain.ResourceFullNode}
		}
	}()

	c = domain.Caller{
		IP:       ip,
		Peer:     peer,
		Origin:   r.Header.Get("Origin"),
		Token:    AccessToken(r),
		ProLimit: ProLimit(r.Context()),
		Resource: opts.ResourceFn(r),
	}
	// usrObj só é honrado em tráfego interno; de fora seria forjável.
	if !c.ProLimit && cls.IsInternalCaller(c) {
		fwd, err := forwardedIdentity(r)
		if err != nil {
			// sem usrObj o hop cai no bucket interno, não no do chamador original
			opts.Logger.Debug().Err(err).Str("ip", ip).Str("path", r.URL.Path).Msg("usrObj not read from internal request")
		}
		c.Forwarded = fwd
	}
	return c
}
