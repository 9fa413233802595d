// Package folder provides storage for drive folders.
//
// Every lookup and write is scoped by owner_id. A folder that exists but
// belongs to someone else is indistinguishable from a missing one: both
// come back as mongo.ErrNoDocuments.
package folder

import (
	"context"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the folders collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new folder store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("folders"),
	}
}

// CreateInput contains the input for creating a folder.
type CreateInput struct {
	Name     string
	ParentID *primitive.ObjectID
	OwnerID  primitive.ObjectID
}

// Create creates a new, active folder.
func (s *Store) Create(ctx context.Context, input CreateInput) (*models.Folder, error) {
	now := time.Now().UTC()
	folder := models.Folder{
		ID:        primitive.NewObjectID(),
		Name:      input.Name,
		NameCI:    text.Fold(input.Name),
		OwnerID:   input.OwnerID,
		ParentID:  input.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.c.InsertOne(ctx, folder); err != nil {
		return nil, err
	}

	return &folder, nil
}

// GetOwned retrieves a folder by (id, owner) regardless of its trash state.
func (s *Store) GetOwned(ctx context.Context, id, ownerID primitive.ObjectID) (*models.Folder, error) {
	var folder models.Folder
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// GetActive retrieves a non-deleted folder by (id, owner).
func (s *Store) GetActive(ctx context.Context, id, ownerID primitive.ObjectID) (*models.Folder, error) {
	var folder models.Folder
	filter := bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}
	if err := s.c.FindOne(ctx, filter).Decode(&folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// Rename renames an active folder.
// Returns mongo.ErrNoDocuments if no active folder matched.
func (s *Store) Rename(ctx context.Context, id, ownerID primitive.ObjectID, name string) error {
	return s.updateOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}, bson.M{
		"name":       name,
		"name_ci":    text.Fold(name),
		"updated_at": time.Now().UTC(),
	})
}

// SetParent moves an active folder under parentID (nil = root).
// Returns mongo.ErrNoDocuments if no active folder matched.
func (s *Store) SetParent(ctx context.Context, id, ownerID primitive.ObjectID, parentID *primitive.ObjectID) error {
	return s.updateOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}, bson.M{
		"parent_id":  parentID,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Store) updateOne(ctx context.Context, filter, set bson.M) error {
	res, err := s.c.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ListOptions contains options for listing folders.
type ListOptions struct {
	SortBy    string // "name", "created_at" (default)
	SortOrder int    // 1 = asc, -1 = desc (default)
}

func (o ListOptions) findOptions() *options.FindOptions {
	sortField := "created_at"
	if o.SortBy == "name" {
		sortField = "name_ci"
	}

	sortOrder := -1
	if o.SortOrder != 0 {
		sortOrder = o.SortOrder
	}

	// _id breaks ties so repeated listings come back in the same order.
	return options.Find().SetSort(bson.D{
		{Key: sortField, Value: sortOrder},
		{Key: "_id", Value: sortOrder},
	})
}

// ListByParent returns the active folders directly within a parent folder.
// Pass nil for parentID to list root folders. Newest first by default.
func (s *Store) ListByParent(ctx context.Context, ownerID primitive.ObjectID, parentID *primitive.ObjectID, opts ListOptions) ([]models.Folder, error) {
	filter := bson.M{"owner_id": ownerID, "parent_id": parentID, "is_deleted": false}
	return s.find(ctx, filter, opts.findOptions())
}

// ListActive returns all active folders of an owner, newest first.
func (s *Store) ListActive(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": false}, ListOptions{}.findOptions())
}

// ListTrashed returns all soft-deleted folders of an owner, newest first.
func (s *Store) ListTrashed(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": true}, ListOptions{}.findOptions())
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Folder, error) {
	cursor, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	folders := []models.Folder{}
	if err := cursor.All(ctx, &folders); err != nil {
		return nil, err
	}

	return folders, nil
}

// Node is the slim projection of a folder used to build the in-memory tree.
type Node struct {
	ID          primitive.ObjectID  `bson:"_id"`
	ParentID    *primitive.ObjectID `bson:"parent_id"`
	IsDeleted   bool                `bson:"is_deleted"`
	TrashRootID *primitive.ObjectID `bson:"trash_root_id,omitempty"`
}

// Nodes returns every folder of an owner (active and trashed) as tree nodes.
func (s *Store) Nodes(ctx context.Context, ownerID primitive.ObjectID) ([]Node, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "parent_id": 1, "is_deleted": 1, "trash_root_id": 1})
	cursor, err := s.c.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var nodes []Node
	if err := cursor.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Trash soft-deletes the active folders among ids and tags them with rootID,
// the folder whose deletion caused the transition. Returns the number flipped.
func (s *Store) Trash(ctx context.Context, ownerID primitive.ObjectID, ids []primitive.ObjectID, rootID primitive.ObjectID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{
		"_id":        bson.M{"$in": ids},
		"owner_id":   ownerID,
		"is_deleted": false,
	}, bson.M{"$set": bson.M{
		"is_deleted":    true,
		"deleted_at":    at,
		"trash_root_id": rootID,
		"updated_at":    at,
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// RestoreByRoot reverses Trash for every folder tagged with rootID.
func (s *Store) RestoreByRoot(ctx context.Context, ownerID, rootID primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx, bson.M{
		"owner_id":      ownerID,
		"is_deleted":    true,
		"trash_root_id": rootID,
	}, bson.M{
		"$set":   bson.M{"is_deleted": false, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"deleted_at": "", "trash_root_id": ""},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Restore reactivates the trashed folders among ids, in place.
func (s *Store) Restore(ctx context.Context, ownerID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{
		"_id":        bson.M{"$in": ids},
		"owner_id":   ownerID,
		"is_deleted": true,
	}, bson.M{
		"$set":   bson.M{"is_deleted": false, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"deleted_at": "", "trash_root_id": ""},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteTrashed permanently removes the trashed folders among ids.
func (s *Store) DeleteTrashed(ctx context.Context, ownerID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{
		"_id":        bson.M{"$in": ids},
		"owner_id":   ownerID,
		"is_deleted": true,
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DetachActiveChildren moves active folders whose parent is in parentIDs to
// the root. Used before purging the parents.
func (s *Store) DetachActiveChildren(ctx context.Context, ownerID primitive.ObjectID, parentIDs []primitive.ObjectID) (int64, error) {
	if len(parentIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{
		"owner_id":   ownerID,
		"parent_id":  bson.M{"$in": parentIDs},
		"is_deleted": false,
	}, bson.M{"$set": bson.M{"parent_id": nil, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountActive returns the number of active folders of an owner.
func (s *Store) CountActive(ctx context.Context, ownerID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"owner_id": ownerID, "is_deleted": false})
}

// GetAncestors returns all ancestors of a folder, ordered from root to immediate parent.
func (s *Store) GetAncestors(ctx context.Context, id, ownerID primitive.ObjectID) ([]models.Folder, error) {
	folder, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	var ancestors []models.Folder
	seen := map[primitive.ObjectID]bool{folder.ID: true}

	// Walk up the parent chain
	currentParentID := folder.ParentID
	for currentParentID != nil && !seen[*currentParentID] {
		parent, err := s.GetOwned(ctx, *currentParentID, ownerID)
		if err != nil {
			return nil, err
		}
		seen[parent.ID] = true
		// Prepend to get root-first order
		ancestors = append([]models.Folder{*parent}, ancestors...)
		currentParentID = parent.ParentID
	}

	return ancestors, nil
}
