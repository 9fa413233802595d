package drive

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Ledger enforces storage quota and the credit balance.
//
// Usage counts only active files; trashed files are free. The user's stored
// tier decides the limit.
type Ledger struct {
	users       *userstore.Store
	files       *filestore.Store
	costPerFile int64
}

// NewLedger creates a Ledger charging costPerFile credits per uploaded file.
func NewLedger(users *userstore.Store, files *filestore.Store, costPerFile int64) *Ledger {
	return &Ledger{users: users, files: files, costPerFile: costPerFile}
}

// Usage is a snapshot of a user's accounting state.
type Usage struct {
	Used    int64  `json:"used"`
	Limit   int64  `json:"limit"`
	Credits int64  `json:"credits"`
	Tier    string `json:"tier"`
}

// Remaining returns the bytes still available, never negative.
func (u Usage) Remaining() int64 {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// Cost returns the credits charged for fileCount files.
func (l *Ledger) Cost(fileCount int) int64 {
	return l.costPerFile * int64(fileCount)
}

// Usage reads the current accounting state of a user.
func (l *Ledger) Usage(ctx context.Context, userID primitive.ObjectID) (Usage, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Usage{}, ErrNotAuthenticated
		}
		return Usage{}, fmt.Errorf("load user: %w", err)
	}
	used, err := l.files.SumActiveSize(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("sum usage: %w", err)
	}
	return Usage{
		Used:    used,
		Limit:   models.StorageLimit(u.Tier),
		Credits: u.Credits,
		Tier:    u.Tier,
	}, nil
}

// check applies the admission rules to a usage snapshot: credits first,
// then storage.
func (l *Ledger) check(usage Usage, incomingBytes int64, fileCount int) error {
	if usage.Credits < l.Cost(fileCount) {
		return ErrInsufficientCredits
	}
	if incomingBytes > usage.Remaining() {
		return ErrQuotaExceeded
	}
	return nil
}

// Reserve admits a batch of fileCount files totalling incomingBytes and
// debits its credit cost. It must run inside the same unit of work that
// inserts the file rows; undo, if non-nil, receives the refund step.
//
// The debit always writes the user document, so concurrent reservations for
// one user conflict inside transactions and are retried in turn.
func (l *Ledger) Reserve(ctx context.Context, userID primitive.ObjectID, incomingBytes int64, fileCount int, undo *txn.Undo) (Usage, error) {
	usage, err := l.Usage(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	if err := l.check(usage, incomingBytes, fileCount); err != nil {
		return usage, err
	}

	cost := l.Cost(fileCount)
	if err := l.users.DebitCredits(ctx, userID, cost); err != nil {
		if errors.Is(err, userstore.ErrInsufficientCredits) {
			return usage, ErrInsufficientCredits
		}
		return usage, fmt.Errorf("debit credits: %w", err)
	}
	if undo != nil && cost > 0 {
		undo.Add(func(ctx context.Context) error {
			return l.users.AddCredits(ctx, userID, cost)
		})
	}

	usage.Credits -= cost
	usage.Used += incomingBytes
	return usage, nil
}
