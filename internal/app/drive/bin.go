package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Bin is the trashed content of a drive.
type Bin struct {
	Folders []models.Folder `json:"folders"`
	Files   []models.File   `json:"files"`
}

// ListBin returns every trashed folder and file, newest first.
func (s *Service) ListBin(ctx context.Context, p *models.Principal) (bin *Bin, err error) {
	defer s.observe("list_bin", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}

	bin = &Bin{}
	if bin.Folders, err = s.folders.ListTrashed(ctx, p.UserID); err != nil {
		return nil, fmt.Errorf("list trashed folders: %w", err)
	}
	if bin.Files, err = s.files.ListTrashed(ctx, p.UserID); err != nil {
		return nil, fmt.Errorf("list trashed files: %w", err)
	}
	return bin, nil
}

// RestoreFolder brings a trashed folder back together with every folder and
// file that was trashed by the same delete and sits beneath it. A folder
// whose parent is no longer active is restored to the root.
//
// Restored files count toward the quota again; restore does not check it.
func (s *Service) RestoreFolder(ctx context.Context, p *models.Principal, id primitive.ObjectID) (err error) {
	defer s.observe("restore_folder", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	var folderCount, fileCount int64
	err = s.unit(ctx, func(ctx context.Context, undo *txn.Undo) error {
		if err := s.lockTree(ctx, p.UserID); err != nil {
			return err
		}
		f, err := s.folders.GetOwned(ctx, id, p.UserID)
		if err != nil {
			return miss(err, ErrFolderNotFound)
		}
		if !f.IsDeleted {
			return ErrNotInBin
		}

		root := id
		if f.TrashRootID != nil {
			root = *f.TrashRootID
		}
		deletedAt := s.now()
		if f.DeletedAt != nil {
			deletedAt = *f.DeletedAt
		}

		nodes, err := s.folders.Nodes(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("load folder tree: %w", err)
		}
		tr := newTree(nodes)
		ids := tr.subtree(id, trashedBy(root))

		folderCount, err = s.folders.Restore(ctx, p.UserID, ids)
		if err != nil {
			return fmt.Errorf("restore folders: %w", err)
		}
		if folderCount == 0 {
			return ErrNotInBin
		}
		undo.Add(func(ctx context.Context) error {
			_, err := s.folders.Trash(ctx, p.UserID, ids, root, deletedAt)
			return err
		})

		fileCount, err = s.files.RestoreInFolders(ctx, p.UserID, ids, root)
		if err != nil {
			return fmt.Errorf("restore files: %w", err)
		}
		undo.Add(func(ctx context.Context) error {
			_, err := s.files.TrashInFolders(ctx, p.UserID, ids, root, deletedAt)
			return err
		})

		if f.ParentID != nil && !tr.isActive(*f.ParentID) {
			oldParent := *f.ParentID
			if err := s.folders.SetParent(ctx, id, p.UserID, nil); err != nil {
				return fmt.Errorf("move restored folder to root: %w", err)
			}
			undo.Add(func(ctx context.Context) error {
				return s.folders.SetParent(ctx, id, p.UserID, &oldParent)
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug("folder restored",
		zap.String("user_id", p.UserID.Hex()),
		zap.String("folder_id", id.Hex()),
		zap.Int64("folders", folderCount),
		zap.Int64("files", fileCount))
	return nil
}

// RestoreFile brings a trashed file back into its folder, or to the root
// when that folder is no longer active.
func (s *Service) RestoreFile(ctx context.Context, p *models.Principal, id primitive.ObjectID) (err error) {
	defer s.observe("restore_file", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		if err := s.lockTree(ctx, p.UserID); err != nil {
			return err
		}
		f, err := s.files.GetOwned(ctx, id, p.UserID)
		if err != nil {
			return miss(err, ErrFileNotFound)
		}
		if !f.IsDeleted {
			return ErrNotInBin
		}

		target := f.FolderID
		if target != nil {
			if _, err := s.folders.GetActive(ctx, *target, p.UserID); err != nil {
				if !errors.Is(err, mongo.ErrNoDocuments) {
					return fmt.Errorf("load folder: %w", err)
				}
				target = nil
			}
		}
		// A miss here means a concurrent restore won.
		return miss(s.files.Restore(ctx, id, p.UserID, target), ErrNotInBin)
	})
}
