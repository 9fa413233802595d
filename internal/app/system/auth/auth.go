// Package auth resolves the calling principal from a bearer token.
//
// Tokens are HS256 JWTs whose "sub" claim is the user's ObjectID hex.
// The token only identifies the user: every request re-reads the user
// through a PrincipalFetcher, so a deleted user is rejected immediately.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrInvalidToken is returned by Parse for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

// ConfigError is returned when token configuration is invalid.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// PrincipalFetcher loads the principal for a user id on each request.
// Implementations return nil when the user does not exist.
type PrincipalFetcher interface {
	FetchPrincipal(ctx context.Context, userID string) *models.Principal
}

// TokenManager issues and verifies bearer tokens and provides the
// middleware that turns them into a request principal.
type TokenManager struct {
	secret  []byte
	ttl     time.Duration
	logger  *zap.Logger
	fetcher PrincipalFetcher
	now     func() time.Time
}

// NewTokenManager creates a TokenManager.
//
// Parameters:
//   - secret: HMAC signing key (must be ≥32 chars and not a placeholder when strict)
//   - ttl: token lifetime; zero means DefaultTTL
//   - strict: production mode, weak secrets fail instead of warning
//   - logger: zap logger for auth failures
func NewTokenManager(secret string, ttl time.Duration, strict bool, logger *zap.Logger) (*TokenManager, error) {
	if secret == "" {
		return nil, &ConfigError{Message: "jwt secret is empty; provide ≥32 random chars"}
	}

	isWeak := len(secret) < 32 || isDefaultKey(secret)
	if strict && isWeak {
		return nil, &ConfigError{
			Message: "jwt secret is too weak for production; provide ≥32 random chars (not a placeholder)",
		}
	} else if isWeak {
		logger.Warn("jwt secret is weak; 32+ random chars required in production",
			zap.Int("length", len(secret)),
			zap.Bool("is_default", isDefaultKey(secret)))
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetPrincipalFetcher configures how principals are loaded per request.
// Without a fetcher, LoadPrincipal trusts the token alone and leaves Tier empty.
func (tm *TokenManager) SetPrincipalFetcher(f PrincipalFetcher) {
	tm.fetcher = f
}

// TTL returns the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a token for the given user.
func (tm *TokenManager) Issue(userID primitive.ObjectID) (string, time.Time, error) {
	now := tm.now()
	exp := now.Add(tm.ttl)
	claims := jwt.MapClaims{
		"sub": userID.Hex(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its subject.
func (tm *TokenManager) Parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return sub, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Request context                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey string

const principalKey ctxKey = "principal"

// CurrentPrincipal returns the principal & "found?" flag from the request context.
func CurrentPrincipal(r *http.Request) (*models.Principal, bool) {
	p := FromContext(r.Context())
	return p, p != nil
}

// FromContext returns the principal stored in ctx, or nil.
func FromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalKey).(*models.Principal)
	return p
}

// WithPrincipal returns a copy of r carrying p.
func WithPrincipal(r *http.Request, p *models.Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalKey, p))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadPrincipal returns middleware that injects the principal into context
// when a valid bearer token is present. Requests without one pass through
// unauthenticated.
func (tm *TokenManager) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sub, err := tm.Parse(raw)
		if err != nil {
			tm.logger.Debug("bearer token rejected",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		var p *models.Principal
		if tm.fetcher != nil {
			p = tm.fetcher.FetchPrincipal(r.Context(), sub)
			if p == nil {
				tm.logger.Info("token subject no longer resolves to a user",
					zap.String("user_id", sub))
			}
		} else if oid, err := primitive.ObjectIDFromHex(sub); err == nil {
			p = &models.Principal{UserID: oid}
		}

		if p != nil {
			r = WithPrincipal(r, p)
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePrincipal returns middleware that rejects requests without a principal.
func (tm *TokenManager) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentPrincipal(r); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="stratadrive"`)
			jsonutil.Unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// isDefaultKey checks if the secret appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
