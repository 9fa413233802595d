// Package timeouts holds the process-wide deadlines applied to database
// work that is not already bounded by a request context.
package timeouts

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Defaults, used until Configure sets a positive value.
const (
	DefaultPing  = 2 * time.Second
	DefaultShort = 5 * time.Second
	DefaultLong  = 30 * time.Second
)

var (
	ping  atomic.Int64
	short atomic.Int64
	long  atomic.Int64
)

func init() { Reset() }

// Ping bounds health checks.
func Ping() time.Duration { return time.Duration(ping.Load()) }

// Short bounds single-document lookups such as principal fetches.
func Short() time.Duration { return time.Duration(short.Load()) }

// Long bounds multi-step drive operations such as purging a folder tree.
func Long() time.Duration { return time.Duration(long.Load()) }

// Config holds timeout configuration values. Zero fields are left unchanged.
type Config struct {
	Ping  time.Duration
	Short time.Duration
	Long  time.Duration
}

// Configure sets custom timeout values.
func Configure(cfg Config) {
	if cfg.Ping > 0 {
		ping.Store(int64(cfg.Ping))
	}
	if cfg.Short > 0 {
		short.Store(int64(cfg.Short))
	}
	if cfg.Long > 0 {
		long.Store(int64(cfg.Long))
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	ping.Store(int64(DefaultPing))
	short.Store(int64(DefaultShort))
	long.Store(int64(DefaultLong))
}

// Current returns the current timeout configuration.
func Current() Config {
	return Config{Ping: Ping(), Short: Short(), Long: Long()}
}

// WithTimeout derives a context bounded by timeout. The returned cancel logs
// a warning when the deadline was hit.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
