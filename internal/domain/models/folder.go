package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Folder represents a folder in a user's drive.
type Folder struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name     string              `bson:"name" json:"name"`
	NameCI   string              `bson:"name_ci" json:"-"`           // Case-insensitive for sorting/search
	OwnerID  primitive.ObjectID  `bson:"owner_id" json:"-"`          // Immutable after creation
	ParentID *primitive.ObjectID `bson:"parent_id" json:"parent_id"` // nil = root folder

	IsDeleted   bool                `bson:"is_deleted" json:"is_deleted"`
	DeletedAt   *time.Time          `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	TrashRootID *primitive.ObjectID `bson:"trash_root_id,omitempty" json:"-"` // folder whose deletion trashed this one

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsRoot returns true if the folder is at the root level.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}
