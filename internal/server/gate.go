package server

import (
	"crypto/subtle"
	"net/http"
)

// AuthHeader carries the shared secret.
const AuthHeader = "X-Auth"

// Gate rejects requests without a matching shared secret. Paths in open are
// always allowed. An empty secret disables the check entirely.
type Gate struct {
	secret []byte
	open   map[string]bool
}

// NewGate creates a Gate for secret with the given always-open paths.
func NewGate(secret string, openPaths ...string) *Gate {
	g := &Gate{open: make(map[string]bool, len(openPaths))}
	if secret != "" {
		g.secret = []byte(secret)
	}
	for _, p := range openPaths {
		g.open[p] = true
	}
	return g
}

// Enabled reports whether a secret is configured.
func (g *Gate) Enabled() bool { return len(g.secret) > 0 }

// Allow reports whether r may proceed.
func (g *Gate) Allow(r *http.Request) bool {
	if !g.Enabled() || g.open[r.URL.Path] {
		return true
	}
	got := []byte(r.Header.Get(AuthHeader))
	return subtle.ConstantTimeCompare(got, g.secret) == 1
}

// Middleware wraps next with the secret check.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow(r) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
