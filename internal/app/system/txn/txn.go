// Package txn provides transaction utilities for MongoDB and DocumentDB.
//
// Multi-document work runs inside a session transaction when the deployment
// supports it. On a standalone server the work runs without one, and
// RunCompensated replays the compensating steps the work registered if it
// fails part way through.
//
// Usage:
//
//	err := txn.RunCompensated(ctx, db, log, false, func(ctx context.Context, undo *txn.Undo) error {
//	    if err := debit(ctx); err != nil {
//	        return err
//	    }
//	    undo.Add(func(ctx context.Context) error { return refund(ctx) })
//	    return insertRows(ctx)
//	})
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ErrUnsupported is returned by RunCompensated in strict mode when the
// deployment cannot run multi-document transactions.
var ErrUnsupported = errors.New("txn: transactions are not supported by this deployment")

// Func is the function type for transaction operations.
// The function receives a context that may be a mongo.SessionContext (if in a
// transaction) or a regular context (if transactions are not supported).
type Func func(ctx context.Context) error

// Run executes the given function within a MongoDB transaction if possible.
// If transactions are not supported it runs the function without one.
//
// Use Run for work whose partial application is harmless (a read followed by
// a single write). Use RunCompensated when several writes must land together.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn Func) error {
	return RunWithFallback(ctx, db, log, fn, fn)
}

// RunWithFallback is like Run but allows specifying a separate fallback function.
func RunWithFallback(ctx context.Context, db *mongo.Database, log *zap.Logger, txnFn, fallbackFn Func) error {
	client := db.Client()

	session, err := client.StartSession()
	if err != nil {
		if log != nil {
			log.Warn("failed to start session, using fallback",
				zap.Error(err))
		}
		return fallbackFn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, txnFn(sc)
	})

	if err != nil {
		if IsNotSupported(err) {
			if log != nil {
				log.Debug("transactions not supported, using fallback",
					zap.Error(err))
			}
			return fallbackFn(ctx)
		}
		return err
	}

	return nil
}

// Undo collects compensating steps for work that ran outside a transaction.
type Undo struct {
	steps []Func
}

// Add registers a step that reverses a write that has just succeeded.
func (u *Undo) Add(fn Func) {
	u.steps = append(u.steps, fn)
}

// Len reports how many steps are registered.
func (u *Undo) Len() int {
	return len(u.steps)
}

// Rollback runs the registered steps in reverse order. Every step runs even
// if an earlier one fails; the first failure is returned.
func (u *Undo) Rollback(ctx context.Context) error {
	var first error
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	u.steps = nil
	return first
}

// CompensatedFunc is work that registers a compensating step after each write.
type CompensatedFunc func(ctx context.Context, undo *Undo) error

// RunCompensated executes fn in a transaction when possible. Inside a
// transaction the registered steps are discarded: the abort already undoes
// everything. Without transactions, a failing fn has its steps rolled back
// before the error is returned. When strict is true, the fallback is refused
// with ErrUnsupported.
func RunCompensated(ctx context.Context, db *mongo.Database, log *zap.Logger, strict bool, fn CompensatedFunc) error {
	txnFn := func(ctx context.Context) error {
		// WithTransaction may retry; each attempt starts clean.
		return fn(ctx, &Undo{})
	}

	fallbackFn := func(ctx context.Context) error {
		if strict {
			return ErrUnsupported
		}
		undo := &Undo{}
		err := fn(ctx, undo)
		if err == nil {
			return nil
		}
		// The caller's context may already be cancelled; compensation must still run.
		if rbErr := undo.Rollback(context.WithoutCancel(ctx)); rbErr != nil && log != nil {
			log.Error("compensation failed after non-transactional error",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		return err
	}

	return RunWithFallback(ctx, db, log, txnFn, fallbackFn)
}

// Supported reports whether the deployment behind client is a replica set
// or a sharded cluster, the topologies that run multi-document transactions.
func Supported(ctx context.Context, client *mongo.Client) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return false, err
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

// IsNotSupported checks if an error indicates that transactions are not supported.
// This detects:
//   - Standalone MongoDB without replica set
//   - DocumentDB with transactions disabled
//   - Other configurations that don't support multi-document transactions
//
// Known error codes:
//   - 20: "Transaction numbers are only allowed on a replica set member or mongos"
//   - 51: IllegalOperation
//   - 263: "Cannot run 'aggregate' in a multi-document transaction"
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 51, 263:
			return true
		}
	}

	// Check error message for transaction-related failures.
	// This catches both MongoDB and DocumentDB error variations.
	errStr := strings.ToLower(err.Error())
	transactionKeywords := []string{
		"transaction",
		"replica set",
		"session",
		"not supported",
		"illegal operation",
	}

	matchCount := 0
	for _, kw := range transactionKeywords {
		if strings.Contains(errStr, kw) {
			matchCount++
		}
	}

	// Require at least 2 keyword matches to avoid false positives
	return matchCount >= 2
}
