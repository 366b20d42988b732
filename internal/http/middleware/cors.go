package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Content-Type, X-Request-Id"
	corsAllowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"
)

// OriginPolicy is an allowlist of browser origins. "*" admits any origin.
type OriginPolicy struct {
	allowAny bool
	allow    map[string]struct{}
}

func NewOriginPolicy(allowedOrigins []string) OriginPolicy {
	p := OriginPolicy{allow: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			p.allowAny = true
		default:
			p.allow[origin] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin may call the API.
func (p OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAny {
		return true
	}
	_, ok := p.allow[origin]
	return ok
}

// CheckOrigin is shaped for websocket.Upgrader. Requests without an Origin
// header come from non-browser clients and are accepted.
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	return origin == "" || p.Allowed(origin)
}

// CORS echoes allowed origins back and answers preflight requests.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if policy.Allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				w.Header().Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
