// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dalemusser/stratadrive/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destinations for audit events.
const (
	ModeAll = "all" // MongoDB and zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls where account events go: "all", "db", "log" or "off".
	Auth string
}

// Logger records account events to MongoDB (via audit.Store) and zap.
// A nil *Logger is valid and discards everything.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. An empty mode means ModeAll.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	if config.Auth == "" {
		config.Auth = ModeAll
	}
	return &Logger{store: store, zapLog: zapLog, config: config}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records event according to the configured mode. Store failures are
// logged and swallowed; auditing never fails a request.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil || l.config.Auth == ModeOff {
		return
	}
	if l.config.Auth == ModeAll || l.config.Auth == ModeLog {
		l.logToZap(event)
	}
	if (l.config.Auth == ModeAll || l.config.Auth == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) auth(r *http.Request, userID *primitive.ObjectID, eventType string, success bool, reason string, details map[string]string) {
	l.Log(r.Context(), audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		UserID:        userID,
		IP:            ClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       success,
		FailureReason: reason,
		Details:       details,
	})
}

// Registered logs a new account.
func (l *Logger) Registered(r *http.Request, userID primitive.ObjectID, email string) {
	l.auth(r, &userID, audit.EventRegistered, true, "", map[string]string{"email": email})
}

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(r *http.Request, userID primitive.ObjectID) {
	l.auth(r, &userID, audit.EventLoginSuccess, true, "", nil)
}

// LoginFailedUserNotFound logs a login for an email with no account.
func (l *Logger) LoginFailedUserNotFound(r *http.Request, email string) {
	l.auth(r, nil, audit.EventLoginFailedUserNotFound, false, "user not found", map[string]string{"email": email})
}

// LoginFailedWrongPassword logs a login with a bad password.
func (l *Logger) LoginFailedWrongPassword(r *http.Request, userID primitive.ObjectID) {
	l.auth(r, &userID, audit.EventLoginFailedWrongPassword, false, "wrong password", nil)
}

// LoginLockedOut logs a login refused because the email is locked.
func (l *Logger) LoginLockedOut(r *http.Request, email string) {
	l.auth(r, nil, audit.EventLoginLockedOut, false, "too many failed attempts", map[string]string{"email": email})
}

// PasswordChanged logs a password change.
func (l *Logger) PasswordChanged(r *http.Request, userID primitive.ObjectID) {
	l.auth(r, &userID, audit.EventPasswordChanged, true, "", nil)
}
