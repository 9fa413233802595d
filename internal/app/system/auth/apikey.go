package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"go.uber.org/zap"
)

// StaticToken returns middleware that requires "Authorization: Bearer <key>"
// with a fixed, configured key. It guards operator endpoints such as /metrics.
//
// Usage in routes.go:
//
//	r.With(auth.StaticToken(appCfg.MetricsToken, logger)).Handle("/metrics", promhttp.Handler())
//
// An empty key disables the check: the endpoint is then expected to be
// reachable only from a private network.
func StaticToken(validKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	if validKey == "" {
		logger.Info("static token not configured; endpoint is unauthenticated")
	}

	return func(next http.Handler) http.Handler {
		if validKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := bearerToken(r)
			if !ok {
				jsonutil.Unauthorized(w, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(validKey)) != 1 {
				logger.Warn("request rejected: invalid static token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				jsonutil.Unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
