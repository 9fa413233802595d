package models

import (
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// File represents an uploaded file in a user's drive.
type File struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name        string              `bson:"name" json:"name"`           // Original filename
	NameCI      string              `bson:"name_ci" json:"-"`           // Case-insensitive for sorting/search
	OwnerID     primitive.ObjectID  `bson:"owner_id" json:"-"`          // Immutable after creation
	FolderID    *primitive.ObjectID `bson:"folder_id" json:"folder_id"` // nil = root level
	Size        int64               `bson:"size" json:"size"`           // Bytes, immutable
	FileType    string              `bson:"file_type" json:"file_type"` // See Classify
	ContentType string              `bson:"content_type" json:"content_type"`
	BlobPath    string              `bson:"blob_path" json:"-"` // Path in storage backend

	IsDeleted   bool                `bson:"is_deleted" json:"is_deleted"`
	DeletedAt   *time.Time          `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	TrashRootID *primitive.ObjectID `bson:"trash_root_id,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsInRoot returns true if the file is at the root level (not in any folder).
func (f *File) IsInRoot() bool {
	return f.FolderID == nil
}

// File type classifications.
const (
	FileTypeImage = "image"
	FileTypePDF   = "pdf"
	FileTypeDoc   = "doc"
	FileTypeMP3   = "mp3"
	FileTypeVideo = "video"
	FileTypeOther = "other"
)

var extensionTypes = map[string]string{
	"jpg":  FileTypeImage,
	"jpeg": FileTypeImage,
	"png":  FileTypeImage,
	"gif":  FileTypeImage,
	"pdf":  FileTypePDF,
	"doc":  FileTypeDoc,
	"docx": FileTypeDoc,
	"mp3":  FileTypeMP3,
	"mp4":  FileTypeVideo,
}

// Classify returns the file type for a filename, matched on its lowercase extension.
func Classify(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return FileTypeOther
}
