// Package httpapi serves the gateway's REST surface: the "api" channel
// (POST /message), the summarize utility, and management reads. Every
// handler registers itself on the shared mux behind the same bearer
// and rate-limit middleware.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goaide/internal/config"
)

// Auth wraps handlers with bearer-token checks and a per-client token
// bucket. A zero rate_limit_rps disables limiting; an empty token with
// require_user=false disables auth.
type Auth struct {
	token       string
	requireUser bool
	rps         float64
	burst       int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewAuth(cfg config.HTTPConfig) *Auth {
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}
	return &Auth{
		token:       cfg.Token,
		requireUser: cfg.RequireUser,
		rps:         cfg.RateLimitRPS,
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Wrap applies auth then rate limiting to next.
func (a *Auth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token", "")
			return
		}
		if a.rps > 0 && !a.limiter(clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) authorized(r *http.Request) bool {
	if a.token == "" {
		return !a.requireUser
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return !a.requireUser
	}
	return token == a.token
}

func (a *Auth) limiter(key string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(a.rps), a.burst)
		a.limiters[key] = l
	}
	return l
}

// clientKey picks the rate-limit bucket: the bearer token when present,
// otherwise the remote host.
func clientKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return header
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, provider string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: code, Message: message, Provider: provider})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
