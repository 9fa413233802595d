// Package apicors provides CORS middleware for the bearer-token API.
//
// Tokens travel in the Authorization header, never in cookies, so
// credentials stay disabled and origins may be "*".
package apicors

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Middleware returns CORS middleware for /api routes. With no origins every
// origin is allowed.
//
// Usage in routes.go:
//
//	r.Route("/api", func(r chi.Router) {
//	    r.Use(apicors.Middleware(appCfg.CORSOrigins...))
//	    ...
//	})
func Middleware(allowedOrigins ...string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	})
}
