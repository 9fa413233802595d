// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account that owns folders and files.
//
// Credits are consumed by paid operations (uploads) and never go negative;
// the store enforces this with a conditional $inc and a collection validator.
// Tier decides the storage limit, see StorageLimit.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username       string             `bson:"username" json:"username"`
	Email          string             `bson:"email" json:"email"` // lowercase, unique
	PasswordHash   string             `bson:"password_hash,omitempty" json:"-"`
	AvatarInitials string             `bson:"avatar_initials" json:"avatar_initials"`

	Credits int64  `bson:"credits" json:"credits"`
	Tier    string `bson:"tier" json:"tier"` // free, pro

	// TreeVersion changes on every folder-tree write; see userstore.TouchTree.
	TreeVersion int64 `bson:"tree_version,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Subscription tiers.
const (
	TierFree = "free"
	TierPro  = "pro"
)

// Storage limits per tier, in bytes.
const (
	FreeStorageLimit int64 = 1 << 30  // 1 GiB
	ProStorageLimit  int64 = 50 << 30 // 50 GiB
)

// IsValidTier reports whether tier is a known subscription tier.
func IsValidTier(tier string) bool {
	return tier == TierFree || tier == TierPro
}

// StorageLimit returns the storage limit in bytes for a tier.
// Unknown tiers get the free limit.
func StorageLimit(tier string) int64 {
	if tier == TierPro {
		return ProStorageLimit
	}
	return FreeStorageLimit
}

// StorageLimit returns the storage limit for the user's tier.
func (u *User) StorageLimit() int64 {
	return StorageLimit(u.Tier)
}
