// internal/app/store/ratelimit/store.go
package ratelimit

import (
	"context"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Defaults used when a Config field is zero.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
	DefaultLockout     = 15 * time.Minute
)

// Attempt tracks failed logins for one email address.
type Attempt struct {
	Email        string     `bson:"_id"`           // normalized email
	AttemptCount int        `bson:"attempt_count"` // failures in the current window
	WindowStart  time.Time  `bson:"window_start"`
	LockedUntil  *time.Time `bson:"locked_until,omitempty"`
	LastAttempt  time.Time  `bson:"last_attempt"` // TTL anchor
}

// Config bounds failed login attempts.
type Config struct {
	MaxAttempts int           // failures allowed inside Window before a lockout
	Window      time.Duration // counting window, starting at the first failure
	Lockout     time.Duration // how long a locked email stays locked
}

// Store tracks failed login attempts per email in the "login_attempts"
// collection. Reads fail open: a database error never blocks a login.
type Store struct {
	c   *mongo.Collection
	cfg Config
	now func() time.Time
}

// New creates a rate limit Store. Zero Config fields take the defaults.
func New(db *mongo.Database, cfg Config) *Store {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultLockout
	}
	return &Store{c: db.Collection("login_attempts"), cfg: cfg, now: time.Now}
}

// LockedUntil reports whether email is locked out, and until when.
// Store errors count as not locked.
func (s *Store) LockedUntil(ctx context.Context, email string) (time.Time, bool) {
	a, err := s.Get(ctx, email)
	if err != nil || a == nil {
		return time.Time{}, false
	}
	if a.LockedUntil != nil && s.now().Before(*a.LockedUntil) {
		return *a.LockedUntil, true
	}
	return time.Time{}, false
}

// RecordFailure counts a failed login and locks the email once the count
// reaches MaxAttempts inside the window. It returns the lockout expiry when
// this failure caused one.
func (s *Store) RecordFailure(ctx context.Context, email string) (time.Time, bool, error) {
	key := normalize.Email(email)
	now := s.now().UTC()
	windowOpen := now.Add(-s.cfg.Window)

	// Restart the window when it has expired, otherwise increment.
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"attempt_count": bson.M{"$cond": bson.A{
				bson.M{"$gt": bson.A{bson.M{"$ifNull": bson.A{"$window_start", time.Time{}}}, windowOpen}},
				bson.M{"$add": bson.A{"$attempt_count", 1}},
				1,
			}},
			"window_start": bson.M{"$cond": bson.A{
				bson.M{"$gt": bson.A{bson.M{"$ifNull": bson.A{"$window_start", time.Time{}}}, windowOpen}},
				"$window_start",
				now,
			}},
			"last_attempt": now,
		}}},
	}

	var a Attempt
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": key}, pipeline,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&a)
	if err != nil {
		return time.Time{}, false, err
	}

	if a.AttemptCount < s.cfg.MaxAttempts {
		return time.Time{}, false, nil
	}
	until := now.Add(s.cfg.Lockout)
	_, err = s.c.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{
		"locked_until":  until,
		"attempt_count": 0,
		"window_start":  now,
	}})
	if err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

// Clear forgets the failures for email; called after a successful login.
func (s *Store) Clear(ctx context.Context, email string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": normalize.Email(email)})
	return err
}

// Get returns the attempt record for email, or nil when there is none.
func (s *Store) Get(ctx context.Context, email string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": normalize.Email(email)}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
