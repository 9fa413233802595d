package drive

import (
	"context"
	"fmt"
	"time"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	folderstore "github.com/dalemusser/stratadrive/internal/app/store/folder"
	"github.com/dalemusser/stratadrive/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Contents is one level of the folder tree.
type Contents struct {
	Folder  *models.Folder  `json:"folder,omitempty"` // nil at root
	Folders []models.Folder `json:"folders"`
	Files   []models.File   `json:"files"`
}

// Crumb is one ancestor on a folder's path.
type Crumb struct {
	ID   primitive.ObjectID `json:"id"`
	Name string             `json:"name"`
}

// FolderInfo is a folder with its path from the root.
type FolderInfo struct {
	Folder models.Folder `json:"folder"`
	Path   []Crumb       `json:"path"` // root first, excluding the folder
}

func cleanName(name string) (string, error) {
	n := htmlsanitize.Name(name)
	if n == "" {
		return "", invalid("name", "name is required")
	}
	return n, nil
}

// CreateFolder creates an active folder under parentID (nil = root).
func (s *Service) CreateFolder(ctx context.Context, p *models.Principal, name string, parentID *primitive.ObjectID) (folder *models.Folder, err error) {
	defer s.observe("create_folder", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	err = txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		if err := s.lockTree(ctx, p.UserID); err != nil {
			return err
		}
		if parentID != nil {
			if _, err := s.folders.GetActive(ctx, *parentID, p.UserID); err != nil {
				return miss(err, ErrParentNotFound)
			}
		}
		f, err := s.folders.Create(ctx, folderstore.CreateInput{
			Name:     clean,
			ParentID: parentID,
			OwnerID:  p.UserID,
		})
		if err != nil {
			return fmt.Errorf("create folder: %w", err)
		}
		folder = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// RenameFolder renames an active folder.
func (s *Service) RenameFolder(ctx context.Context, p *models.Principal, id primitive.ObjectID, name string) (err error) {
	defer s.observe("rename_folder", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	return miss(s.folders.Rename(ctx, id, p.UserID, clean), ErrFolderNotFound)
}

// MoveFolder reparents an active folder under newParentID (nil = root).
// Moving a folder into itself or any of its descendants fails with
// ErrCircularReference before anything is written.
func (s *Service) MoveFolder(ctx context.Context, p *models.Principal, id primitive.ObjectID, newParentID *primitive.ObjectID) (err error) {
	defer s.observe("move_folder", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		if err := s.lockTree(ctx, p.UserID); err != nil {
			return err
		}
		if _, err := s.folders.GetActive(ctx, id, p.UserID); err != nil {
			return miss(err, ErrFolderNotFound)
		}
		if newParentID != nil {
			if *newParentID == id {
				return ErrCircularReference
			}
			if _, err := s.folders.GetActive(ctx, *newParentID, p.UserID); err != nil {
				return miss(err, ErrParentNotFound)
			}
			nodes, err := s.folders.Nodes(ctx, p.UserID)
			if err != nil {
				return fmt.Errorf("load folder tree: %w", err)
			}
			if newTree(nodes).wouldCycle(id, *newParentID) {
				return ErrCircularReference
			}
		}
		return miss(s.folders.SetParent(ctx, id, p.UserID, newParentID), ErrFolderNotFound)
	})
}

// TrashFolder soft-deletes an active folder, every active folder beneath it
// and every active file in any of them, as one unit. All affected rows are
// tagged with the folder's id so RestoreFolder can bring back exactly them.
func (s *Service) TrashFolder(ctx context.Context, p *models.Principal, id primitive.ObjectID) (err error) {
	defer s.observe("trash_folder", time.Now(), &err)
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
		if f.IsDeleted {
			return ErrAlreadyDeleted
		}

		nodes, err := s.folders.Nodes(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("load folder tree: %w", err)
		}
		ids := newTree(nodes).subtree(id, active)
		now := s.now()

		undo.Add(func(ctx context.Context) error {
			if _, err := s.files.RestoreByRoot(ctx, p.UserID, id); err != nil {
				return err
			}
			_, err := s.folders.RestoreByRoot(ctx, p.UserID, id)
			return err
		})

		folderCount, err = s.folders.Trash(ctx, p.UserID, ids, id, now)
		if err != nil {
			return fmt.Errorf("trash folders: %w", err)
		}
		if folderCount == 0 {
			// Lost a race with another delete of the same folder.
			return ErrAlreadyDeleted
		}
		fileCount, err = s.files.TrashInFolders(ctx, p.UserID, ids, id, now)
		if err != nil {
			return fmt.Errorf("trash files: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug("folder trashed",
		zap.String("user_id", p.UserID.Hex()),
		zap.String("folder_id", id.Hex()),
		zap.Int64("folders", folderCount),
		zap.Int64("files", fileCount))
	return nil
}

// PurgeFolder permanently removes a trashed folder, every trashed folder
// reachable beneath it through trashed folders, and their trashed files.
// Active rows still under a purged folder are moved to the root rather than
// deleted. Blobs are removed after the rows are gone.
func (s *Service) PurgeFolder(ctx context.Context, p *models.Principal, id primitive.ObjectID) (err error) {
	defer s.observe("purge_folder", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return err
	}

	var blobPaths []string
	// Writes are ordered so a partial purge without transactions leaves
	// every remaining row consistent and still purgeable.
	err = s.unit(ctx, func(ctx context.Context, _ *txn.Undo) error {
		blobPaths = nil

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

		nodes, err := s.folders.Nodes(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("load folder tree: %w", err)
		}
		purge := newTree(nodes).subtree(id, trashed)

		doomed, err := s.files.ListTrashedInFolders(ctx, p.UserID, purge)
		if err != nil {
			return fmt.Errorf("list trashed files: %w", err)
		}

		if _, err := s.folders.DetachActiveChildren(ctx, p.UserID, purge); err != nil {
			return fmt.Errorf("detach active folders: %w", err)
		}
		if _, err := s.files.DetachActiveFromFolders(ctx, p.UserID, purge); err != nil {
			return fmt.Errorf("detach active files: %w", err)
		}

		fileIDs := make([]primitive.ObjectID, len(doomed))
		for i, df := range doomed {
			fileIDs[i] = df.ID
			blobPaths = append(blobPaths, df.BlobPath)
		}
		if _, err := s.files.DeleteTrashed(ctx, p.UserID, fileIDs); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		if _, err := s.folders.DeleteTrashed(ctx, p.UserID, purge); err != nil {
			return fmt.Errorf("delete folders: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteBlobs(ctx, blobPaths)
	return nil
}

// ListContents returns the active folders and files directly inside
// folderID (nil = root), newest first.
func (s *Service) ListContents(ctx context.Context, p *models.Principal, folderID *primitive.ObjectID) (out *Contents, err error) {
	defer s.observe("list_contents", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}

	out = &Contents{}
	if folderID != nil {
		f, err := s.folders.GetActive(ctx, *folderID, p.UserID)
		if err != nil {
			return nil, miss(err, ErrFolderNotFound)
		}
		out.Folder = f
	}

	out.Folders, err = s.folders.ListByParent(ctx, p.UserID, folderID, folderstore.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	out.Files, err = s.files.ListByFolder(ctx, p.UserID, folderID, filestore.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return out, nil
}

// FolderInfo returns an active folder with its breadcrumb path.
func (s *Service) FolderInfo(ctx context.Context, p *models.Principal, id primitive.ObjectID) (info *FolderInfo, err error) {
	defer s.observe("folder_info", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}

	f, err := s.folders.GetActive(ctx, id, p.UserID)
	if err != nil {
		return nil, miss(err, ErrFolderNotFound)
	}
	ancestors, err := s.folders.GetAncestors(ctx, id, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("load ancestors: %w", err)
	}

	info = &FolderInfo{Folder: *f, Path: make([]Crumb, 0, len(ancestors))}
	for _, a := range ancestors {
		info.Path = append(info.Path, Crumb{ID: a.ID, Name: a.Name})
	}
	return info, nil
}

// ListFolders returns every active folder of the principal, newest first.
func (s *Service) ListFolders(ctx context.Context, p *models.Principal) (folders []models.Folder, err error) {
	defer s.observe("list_folders", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.folders.ListActive(ctx, p.UserID)
}
