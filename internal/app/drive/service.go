// Package drive is the storage accounting and folder/file lifecycle engine.
//
// Every operation takes the calling principal first and fails with
// ErrNotAuthenticated when it is nil. All lookups are by (id, owner): a row
// owned by someone else is reported exactly like a missing one. Operations
// that write more than one document run as one unit through package txn.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	folderstore "github.com/dalemusser/stratadrive/internal/app/store/folder"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// BlobStore holds file bytes. waffle's storage.Store satisfies it.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, opts *storage.PutOptions) error
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// Config tunes the engine.
type Config struct {
	// CostPerFile is the credit cost of each uploaded file. Zero makes uploads free.
	CostPerFile int64
	// UploadConcurrency bounds parallel blob writes within one batch.
	UploadConcurrency int
	// RequireTransactions refuses to run multi-document work without a
	// transaction-capable deployment.
	RequireTransactions bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		CostPerFile:       1,
		UploadConcurrency: 4,
	}
}

// Service implements the drive operations.
type Service struct {
	db      *mongo.Database
	users   *userstore.Store
	folders *folderstore.Store
	files   *filestore.Store
	ledger  *Ledger
	blobs   BlobStore
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// beforeInsert, when set, runs inside Upload's unit after the credit
	// debit and before the file rows are inserted.
	beforeInsert func() error
}

// New creates a Service. m may be nil.
func New(db *mongo.Database, blobs BlobStore, cfg Config, log *zap.Logger, m *metrics.Metrics) *Service {
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = DefaultConfig().UploadConcurrency
	}
	if cfg.CostPerFile < 0 {
		cfg.CostPerFile = 0
	}
	users := userstore.New(db)
	files := filestore.New(db)
	return &Service{
		db:      db,
		users:   users,
		folders: folderstore.New(db),
		files:   files,
		ledger:  NewLedger(users, files, cfg.CostPerFile),
		blobs:   blobs,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the quota ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

func requirePrincipal(p *models.Principal) error {
	if p == nil || p.UserID.IsZero() {
		return ErrNotAuthenticated
	}
	return nil
}

// observe is deferred by operations with a named error result.
func (s *Service) observe(op string, started time.Time, err *error) {
	s.metrics.ObserveOp(op, resultLabel(*err), started)
}

// unit runs fn as one atomic unit, compensating on the fallback path.
func (s *Service) unit(ctx context.Context, fn txn.CompensatedFunc) error {
	return txn.RunCompensated(ctx, s.db, s.log, s.cfg.RequireTransactions, fn)
}

// lockTree must be the first write of every unit that reads the owner's
// folder tree and then changes where rows sit in it. Writers touching the
// same user document conflict, so a transaction that validated against a
// stale tree is retried instead of committing a cycle or an active row
// under a trashed folder. Without transactions it only orders the writes.
func (s *Service) lockTree(ctx context.Context, userID primitive.ObjectID) error {
	if err := s.users.TouchTree(ctx, userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("lock folder tree: %w", err)
	}
	return nil
}

// deleteBlobs removes blobs best-effort; failures are logged, never returned.
func (s *Service) deleteBlobs(ctx context.Context, paths []string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, p); err != nil {
			s.metrics.RecordBlobDeleteFailure()
			s.log.Warn("failed to delete blob",
				zap.String("path", p),
				zap.Error(err))
		}
	}
}
