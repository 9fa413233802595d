// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	accountsfeature "github.com/dalemusser/stratadrive/internal/app/features/accounts"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	filesfeature "github.com/dalemusser/stratadrive/internal/app/features/files"
	healthfeature "github.com/dalemusser/stratadrive/internal/app/features/health"
	"github.com/dalemusser/stratadrive/internal/app/store/audit"
	"github.com/dalemusser/stratadrive/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/apicors"
	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// requestTimeout bounds every request. Uploads stream multipart bodies, so
// it is longer than a plain JSON API would need.
const requestTimeout = 2 * time.Minute

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// Route map:
//   - /health, /ready, /readyz, /livez      probes
//   - /metrics                              Prometheus (bearer metrics_token)
//   - /api/accounts/...                     register, login, me
//   - /api/...                              drive (bearer JWT)
//   - <storage_local_url>/*                 local blobs, when storage_type is local
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	// Strict secret checks in production.
	tm, err := auth.NewTokenManager(appCfg.JWTSecret, appCfg.JWTTTL, coreCfg.Env == "prod", logger)
	if err != nil {
		logger.Error("token manager init failed", zap.Error(err))
		return nil, err
	}
	// Reload the user per request so tier changes apply immediately.
	tm.SetPrincipalFetcher(userstore.NewFetcher(db, logger))

	errLog := errorsfeature.NewErrorLogger(logger)

	var m *metrics.Metrics
	if deps.Metrics != nil {
		m = metrics.New(deps.Metrics)
	}

	svc := drive.New(db, deps.FileStorage, drive.Config{
		CostPerFile:         appCfg.CreditsPerFile,
		UploadConcurrency:   appCfg.UploadConcurrency,
		RequireTransactions: appCfg.RequireTransactions,
	}, logger, m)

	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: appCfg.AuditLogAuth})

	var rateLimitStore *ratelimit.Store
	if appCfg.RateLimitEnabled {
		rateLimitStore = ratelimit.New(db, ratelimit.Config{
			MaxAttempts: appCfg.RateLimitLoginAttempts,
			Window:      appCfg.RateLimitLoginWindow,
			Lockout:     appCfg.RateLimitLoginLockout,
		})
		logger.Info("login rate limiting enabled",
			zap.Int("max_attempts", appCfg.RateLimitLoginAttempts),
			zap.Duration("window", appCfg.RateLimitLoginWindow),
			zap.Duration("lockout", appCfg.RateLimitLoginLockout))
	}

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.Timeout(requestTimeout))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Resolves the bearer token, if any, into a Principal. Routes that need
	// one add tm.RequirePrincipal.
	r.Use(tm.LoadPrincipal)

	// ─────────────────────────────────────────────────────────────────────────────
	// Operational endpoints
	// ─────────────────────────────────────────────────────────────────────────────

	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	if deps.Metrics != nil {
		r.With(auth.StaticToken(appCfg.MetricsToken, logger)).
			Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	// Local blobs are served by URL; paths are random UUIDs.
	if appCfg.StorageType == "local" || appCfg.StorageType == "" {
		r.Handle(appCfg.StorageLocalURL+"/*", fileserver.Handler(appCfg.StorageLocalURL, appCfg.StorageLocalPath))
	}

	// ─────────────────────────────────────────────────────────────────────────────
	// JSON API
	// ─────────────────────────────────────────────────────────────────────────────

	accountsHandler := accountsfeature.NewHandler(
		db,
		tm,
		auditLogger,
		rateLimitStore,
		errLog,
		logger,
		appCfg.SignupCredits,
	)
	filesHandler := filesfeature.NewHandler(svc, errLog, logger, appCfg.UploadMaxMemory)

	r.Route("/api", func(r chi.Router) {
		r.Use(apicors.Middleware(appCfg.CORSOrigins...))
		r.Mount("/accounts", accountsfeature.Routes(accountsHandler))
		r.Mount("/", filesfeature.Routes(filesHandler, tm))
	})

	r.NotFound(errorsfeature.NotFound)
	r.MethodNotAllowed(errorsfeature.MethodNotAllowed)

	return r, nil
}
