package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// ClientIP extrai o IP do chamador: primeiro IP do X-Forwarded-For (se
// confiável), senão RemoteAddr. IPv4 mapeado em IPv6 ("::ffff:1.2.3.4") é
// normalizado para a forma IPv4.
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return normalizeIP(ip)
			}
		}
	}

	// fallback: RemoteAddr
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return normalizeIP(host)
	}
	if addr != "" {
		return normalizeIP(addr)
	}
	return "unknown"
}

func normalizeIP(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

// AccessToken lê "Authorization: Token <jwt>" (ou Bearer).
// Basic é tratado pelo middleware de auth, não aqui.
func AccessToken(r *http.Request) string {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		return strings.TrimSpace(raw)
	}
	return ""
}

// ResourceForPath é o mapeamento padrão rota -> backend consumido.
func ResourceForPath(path string) domain.Resource {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "/slp/"):
		return domain.ResourceSLP
	case strings.Contains(p, "/electrumx/"), strings.Contains(p, "/fulcrum/"), strings.Contains(p, "/insight/"):
		return domain.ResourceIndexer
	default:
		return domain.ResourceFullNode
	}
}
