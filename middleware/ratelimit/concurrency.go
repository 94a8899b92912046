package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"bch-rest-gateway/middleware/ratelimit/application"
	"bch-rest-gateway/middleware/ratelimit/domain"
	"bch-rest-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Exempt marca requisições que não disputam vaga. Usado para os hops
	// internos do fan-out: o pai já segura uma vaga e esperaria por eles.
	Exempt         func(*http.Request) bool
	Metrics        *Metrics
}

// ConcurrencyMiddleware limita requisições em voo. Sem vaga dentro do
// AcquireTimeout responde RejectStatus (503) com Retry-After.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Exempt != nil && opts.Exempt(r) {
				opts.Metrics.slotExempt()
				next.ServeHTTP(w, r)
				return
			}

			release, adm, err := svc.Acquire(r.Context())
			opts.Metrics.slotWait(adm)
			switch {
			case errors.Is(err, domain.ErrCallerGone):
				opts.Metrics.slotRejected("caller_gone")
				return
			case err != nil:
				opts.Metrics.slotRejected("timeout")
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, opts.RejectStatus, "Server is busy, try again later.")
				return
			}

			opts.Metrics.slotAcquired()
			defer func() {
				opts.Metrics.slotReleased()
				release()
			}()
			next.ServeHTTP(w, r)
		})
	}
}
