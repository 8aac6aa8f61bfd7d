// Package security wraps the API with CORS handling, per-identity rate
// limits, the blocked-actor gate and the admin password check. Session and
// token auth live outside this server; handlers receive a resolved network
// identity and nothing more.
package security

import (
	"net"
	"net/http"
	"strings"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/profile"
)

type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
}

// Identity resolves the caller's network identity: the X-Identity header
// when present, else the remote address without port.
func Identity(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Identity")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// Middleware applies CORS, rate limits and the blocked check in front of
// the router.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Identity,X-Admin-Password")
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			identity := Identity(r)
			if !limiters.Allow(identity) {
				logger.Warn("rate_limited", "identity", identity, "path", r.URL.Path)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			if isMutation(r.Method) && profile.IsBlocked(identity) {
				logger.Warn("blocked_identity_rejected", "identity", identity, "path", r.URL.Path)
				http.Error(w, `{"error":"ACCESS_DENIED"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin gates a handler behind the admin password header.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pw := r.Header.Get("X-Admin-Password")
		if !profile.VerifyAdminPassword(pw) {
			logger.Warn("admin_auth_failed", "identity", Identity(r), "path", r.URL.Path)
			http.Error(w, `{"error":"admin authentication required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
