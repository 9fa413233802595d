package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stats is the dashboard summary of a drive. Counts cover active rows only.
type Stats struct {
	Images           int64  `json:"images"`
	PDFs             int64  `json:"pdfs"`
	Docs             int64  `json:"docs"`
	MP3s             int64  `json:"mp3s"`
	Videos           int64  `json:"videos"`
	Others           int64  `json:"others"`
	Folders          int64  `json:"folders"`
	TotalStorageUsed int64  `json:"total_storage_used"`
	StorageLimit     int64  `json:"storage_limit"`
	Credits          int64  `json:"credits"`
	Tier             string `json:"tier"`
}

// Dashboard computes the principal's stats from the store on every call.
func (s *Service) Dashboard(ctx context.Context, p *models.Principal) (stats *Stats, err error) {
	defer s.observe("dashboard", time.Now(), &err)
	if err = requirePrincipal(p); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	byType, err := s.files.StatsByType(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	folders, err := s.folders.CountActive(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("count folders: %w", err)
	}

	stats = &Stats{
		Images:       byType[models.FileTypeImage].Count,
		PDFs:         byType[models.FileTypePDF].Count,
		Docs:         byType[models.FileTypeDoc].Count,
		MP3s:         byType[models.FileTypeMP3].Count,
		Videos:       byType[models.FileTypeVideo].Count,
		Others:       byType[models.FileTypeOther].Count,
		Folders:      folders,
		StorageLimit: models.StorageLimit(u.Tier),
		Credits:      u.Credits,
		Tier:         u.Tier,
	}
	for _, ts := range byType {
		stats.TotalStorageUsed += ts.Bytes
	}
	return stats, nil
}
