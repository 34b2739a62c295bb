// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Middleware for the operator-surface HTTP mount. Airwave has no auth
layer, so there is no RBAC or security-header middleware here - only
CORS and rate limiting, plus the request-ID, metrics, and compression
wrappers from internal/middleware, which every HTTP mount needs
regardless of auth.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/airwave/radio-identity/internal/middleware"
)

// MiddlewareConfig holds CORS and rate-limit tunables for the operator
// surface.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// DefaultMiddlewareConfig is secure by default: CORS origins are empty
// until explicitly configured.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		CORSAllowedOrigins: []string{},
		RateLimitRequests:  100,
		RateLimitWindow:    time.Minute,
	}
}

func corsMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})
}

func rateLimitMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP))
}

// adapt converts internal/middleware's HandlerFunc-shaped wrappers to
// the func(http.Handler) http.Handler form chi's Use expects.
func adapt(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}
