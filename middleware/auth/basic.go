// Package auth marca chamadores "pro": quem envia Basic Auth com uma das senhas
// configuradas tem o rate limit ignorado.
//
// Credencial ausente ou errada não é rejeitada aqui; a requisição segue e é
// cobrada normalmente pelo rate limit.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"bch-rest-gateway/middleware/ratelimit"
)

type BasicOptions struct {
	// Passes são as senhas aceitas; o usuário é ignorado.
	Passes []string
	Logger zerolog.Logger
}

func ParsePasses(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func BasicMiddleware(opts BasicOptions) func(next http.Handler) http.Handler {
	passes := make([][]byte, 0, len(opts.Passes))
	for _, p := range opts.Passes {
		if p != "" {
			passes = append(passes, []byte(p))
		}
	}
	if len(passes) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, pass, ok := r.BasicAuth(); ok {
				if matches(passes, []byte(pass)) {
					r = r.WithContext(ratelimit.WithProLimit(r.Context()))
				} else {
					opts.Logger.Debug().Str("path", r.URL.Path).Msg("basic auth password not recognised")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matches(passes [][]byte, pass []byte) bool {
	found := 0
	for _, p := range passes {
		found |= subtle.ConstantTimeCompare(p, pass)
	}
	return found == 1
}
