package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Upload is one file of an upload batch.
type Upload struct {
	Name        string
	Size        int64 // declared size; the body must match it exactly
	Body        io.Reader
	ContentType string
}

// Upload stores a batch of files into folderID (nil = root).
//
// The batch is admitted or refused as a whole: bytes are written to the blob
// store first, then the credit debit and every file row commit together.
// Any failure removes the written blobs and leaves no rows and no debit.
func (s *Service) Upload(ctx context.Context, p *models.Principal, uploads []Upload, folderID *primitive.ObjectID) (created []models.File, err error) {
	defer s.observe("upload", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}

	names, total, err := validateUploads(uploads)
	if err != nil {
		return nil, err
	}

	// Cheap early refusals so rejected batches never touch the blob store.
	// The authoritative checks run again inside the unit of work.
	if folderID != nil {
		if _, err := s.folders.GetActive(ctx, *folderID, p.UserID); err != nil {
			return nil, miss(err, ErrFolderNotFound)
		}
	}
	usage, err := s.ledger.Usage(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.check(usage, total, len(uploads)); err != nil {
		s.metrics.RecordRejection(resultLabel(err))
		return nil, err
	}

	now := s.now()
	paths := make([]string, len(uploads))
	for i := range uploads {
		paths[i] = blobPath(p.UserID, names[i], now)
	}

	if err := s.writeBlobs(ctx, uploads, paths); err != nil {
		s.deleteBlobs(ctx, paths)
		return nil, err
	}

	err = s.unit(ctx, func(ctx context.Context, undo *txn.Undo) error {
		if err := s.lockTree(ctx, p.UserID); err != nil {
			return err
		}
		if folderID != nil {
			if _, err := s.folders.GetActive(ctx, *folderID, p.UserID); err != nil {
				return miss(err, ErrFolderNotFound)
			}
		}

		rows := make([]models.File, len(uploads))
		for i, u := range uploads {
			rows[i] = filestore.NewFile(filestore.CreateInput{
				OwnerID:     p.UserID,
				FolderID:    folderID,
				Name:        names[i],
				Size:        u.Size,
				ContentType: contentType(u.ContentType),
				BlobPath:    paths[i],
			}, now)
		}

		if _, err := s.ledger.Reserve(ctx, p.UserID, total, len(rows), undo); err != nil {
			return err
		}
		if s.beforeInsert != nil {
			if err := s.beforeInsert(); err != nil {
				return err
			}
		}

		ids := make([]primitive.ObjectID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		undo.Add(func(ctx context.Context) error {
			_, err := s.files.DeleteByIDs(ctx, p.UserID, ids)
			return err
		})
		if err := s.files.InsertMany(ctx, rows); err != nil {
			return fmt.Errorf("insert files: %w", err)
		}
		created = rows
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrInsufficientCredits) {
			s.metrics.RecordRejection(resultLabel(err))
		}
		s.deleteBlobs(ctx, paths)
		return nil, err
	}

	s.metrics.RecordUpload(len(created), total, s.ledger.Cost(len(created)))
	s.log.Debug("files uploaded",
		zap.String("user_id", p.UserID.Hex()),
		zap.Int("count", len(created)),
		zap.Int64("bytes", total))
	return created, nil
}

// validateUploads checks the batch shape and returns cleaned names and the
// total declared size.
func validateUploads(uploads []Upload) ([]string, int64, error) {
	if len(uploads) == 0 {
		return nil, 0, invalid("files", "at least one file is required")
	}
	names := make([]string, len(uploads))
	var total int64
	for i, u := range uploads {
		field := fmt.Sprintf("files[%d]", i)
		name, err := cleanName(u.Name)
		if err != nil {
			return nil, 0, invalid(field+".name", "name is required")
		}
		if u.Size < 0 {
			return nil, 0, invalid(field+".size", "size must not be negative")
		}
		if u.Body == nil {
			return nil, 0, invalid(field+".body", "content is required")
		}
		if u.Size > math.MaxInt64-total {
			return nil, 0, ErrQuotaExceeded
		}
		names[i] = name
		total += u.Size
	}
	return names, total, nil
}

// writeBlobs streams every body to its path with bounded concurrency. Each
// stream must deliver exactly its declared size.
func (s *Service) writeBlobs(ctx context.Context, uploads []Upload, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UploadConcurrency)

	for i := range uploads {
		g.Go(func() error {
			u := uploads[i]
			// Read one byte past the declared size to detect oversized bodies.
			cr := &countingReader{r: io.LimitReader(u.Body, u.Size+1)}
			opts := &storage.PutOptions{ContentType: contentType(u.ContentType)}
			if err := s.blobs.Put(gctx, paths[i], cr, opts); err != nil {
				return fmt.Errorf("store %s: %w", paths[i], err)
			}
			if cr.n != u.Size {
				return invalid(fmt.Sprintf("files[%d].size", i),
					fmt.Sprintf("declared %d bytes but received %d or more", u.Size, cr.n))
			}
			return nil
		})
	}
	return g.Wait()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// blobPath returns a unique storage path: files/<owner>/YYYY/MM/<uuid><ext>.
func blobPath(owner primitive.ObjectID, name string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	return fmt.Sprintf("files/%s/%04d/%02d/%s%s", owner.Hex(), now.Year(), int(now.Month()), uuid.NewString(), ext)
}

func contentType(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

// RenameFile renames an active file. The file type is fixed at upload.
func (s *Service) RenameFile(ctx context.Context, p *models.Principal, id primitive.ObjectID, name string) (err error) {
	defer s.observe("rename_file", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	return miss(s.files.Rename(ctx, id, p.UserID, clean), ErrFileNotFound)
}

// MoveFile moves an active file into folderID (nil = root).
func (s *Service) MoveFile(ctx context.Context, p *models.Principal, id primitive.ObjectID, folderID *primitive.ObjectID) (err error) {
	defer s.observe("move_file", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		if err := s.lockTree(ctx, p.UserID); err != nil {
			return err
		}
		if _, err := s.files.GetActive(ctx, id, p.UserID); err != nil {
			return miss(err, ErrFileNotFound)
		}
		if folderID != nil {
			if _, err := s.folders.GetActive(ctx, *folderID, p.UserID); err != nil {
				return miss(err, ErrFolderNotFound)
			}
		}
		return miss(s.files.SetFolder(ctx, id, p.UserID, folderID), ErrFileNotFound)
	})
}

// TrashFile soft-deletes an active file.
func (s *Service) TrashFile(ctx context.Context, p *models.Principal, id primitive.ObjectID) (err error) {
	defer s.observe("trash_file", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	f, err := s.files.GetOwned(ctx, id, p.UserID)
	if err != nil {
		return miss(err, ErrFileNotFound)
	}
	if f.IsDeleted {
		return ErrAlreadyDeleted
	}
	// A miss here means a concurrent delete won.
	return miss(s.files.Trash(ctx, id, p.UserID, s.now()), ErrAlreadyDeleted)
}

// PurgeFile permanently removes a trashed file and its blob.
func (s *Service) PurgeFile(ctx context.Context, p *models.Principal, id primitive.ObjectID) (err error) {
	defer s.observe("purge_file", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	f, err := s.files.GetOwned(ctx, id, p.UserID)
	if err != nil {
		return miss(err, ErrFileNotFound)
	}
	if !f.IsDeleted {
		return ErrNotInBin
	}
	n, err := s.files.DeleteTrashed(ctx, p.UserID, []primitive.ObjectID{id})
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if n == 0 {
		return ErrNotInBin
	}

	s.deleteBlobs(ctx, []string{f.BlobPath})
	return nil
}

// ListFiles returns every active file of the principal, newest first.
func (s *Service) ListFiles(ctx context.Context, p *models.Principal) (files []models.File, err error) {
	defer s.observe("list_files", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.files.ListActive(ctx, p.UserID)
}

// FileURL returns the blob store URL of an active file.
func (s *Service) FileURL(ctx context.Context, p *models.Principal, id primitive.ObjectID) (url string, err error) {
	defer s.observe("file_url", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return "", err
	}
	f, err := s.files.GetActive(ctx, id, p.UserID)
	if err != nil {
		return "", miss(err, ErrFileNotFound)
	}
	return s.blobs.URL(f.BlobPath), nil
}
