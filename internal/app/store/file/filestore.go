// Package file provides storage for file metadata.
//
// Rows are owner-scoped; lookups by (id, owner) that miss return
// mongo.ErrNoDocuments whether the row is absent or foreign.
package file

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

// Store provides access to the files collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new file store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("files"),
	}
}

// CreateInput contains the input for creating a file.
type CreateInput struct {
	OwnerID     primitive.ObjectID
	FolderID    *primitive.ObjectID
	Name        string
	Size        int64
	ContentType string
	BlobPath    string
}

// NewFile builds an active file row with a fresh id. The type is derived
// from the name's extension.
func NewFile(input CreateInput, now time.Time) models.File {
	return models.File{
		ID:          primitive.NewObjectID(),
		Name:        input.Name,
		NameCI:      text.Fold(input.Name),
		OwnerID:     input.OwnerID,
		FolderID:    input.FolderID,
		Size:        input.Size,
		FileType:    models.Classify(input.Name),
		ContentType: input.ContentType,
		BlobPath:    input.BlobPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Create creates a single file record.
func (s *Store) Create(ctx context.Context, input CreateInput) (*models.File, error) {
	f := NewFile(input, time.Now().UTC())
	if _, err := s.c.InsertOne(ctx, f); err != nil {
		return nil, err
	}
	return &f, nil
}

// InsertMany inserts prebuilt rows in order.
func (s *Store) InsertMany(ctx context.Context, files []models.File) error {
	if len(files) == 0 {
		return nil
	}
	docs := make([]interface{}, len(files))
	for i := range files {
		docs[i] = files[i]
	}
	_, err := s.c.InsertMany(ctx, docs)
	return err
}

// GetOwned retrieves a file by (id, owner) regardless of its trash state.
func (s *Store) GetOwned(ctx context.Context, id, ownerID primitive.ObjectID) (*models.File, error) {
	var f models.File
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// GetActive retrieves a non-deleted file by (id, owner).
func (s *Store) GetActive(ctx context.Context, id, ownerID primitive.ObjectID) (*models.File, error) {
	var f models.File
	filter := bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}
	if err := s.c.FindOne(ctx, filter).Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Rename renames an active file.
func (s *Store) Rename(ctx context.Context, id, ownerID primitive.ObjectID, name string) error {
	return s.updateOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}, bson.M{"$set": bson.M{
		"name":       name,
		"name_ci":    text.Fold(name),
		"updated_at": time.Now().UTC(),
	}})
}

// SetFolder moves an active file into folderID (nil = root).
func (s *Store) SetFolder(ctx context.Context, id, ownerID primitive.ObjectID, folderID *primitive.ObjectID) error {
	return s.updateOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}, bson.M{"$set": bson.M{
		"folder_id":  folderID,
		"updated_at": time.Now().UTC(),
	}})
}

// Trash soft-deletes a single active file. The file is its own trash root.
func (s *Store) Trash(ctx context.Context, id, ownerID primitive.ObjectID, at time.Time) error {
	return s.updateOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "is_deleted": false}, bson.M{"$set": bson.M{
		"is_deleted":    true,
		"deleted_at":    at,
		"trash_root_id": id,
		"updated_at":    at,
	}})
}

// Restore reactivates a single trashed file into folderID (nil = root).
func (s *Store) Restore(ctx context.Context, id, ownerID primitive.ObjectID, folderID *primitive.ObjectID) error {
	return s.updateOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "is_deleted": true}, bson.M{
		"$set":   bson.M{"is_deleted": false, "folder_id": folderID, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"deleted_at": "", "trash_root_id": ""},
	})
}

func (s *Store) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ListOptions contains options for listing files.
type ListOptions struct {
	SortBy    string // "name", "size", "created_at" (default)
	SortOrder int    // 1 = asc, -1 = desc (default)
}

func (o ListOptions) findOptions() *options.FindOptions {
	sortField := "created_at"
	switch o.SortBy {
	case "name":
		sortField = "name_ci"
	case "size":
		sortField = "size"
	}

	sortOrder := -1
	if o.SortOrder != 0 {
		sortOrder = o.SortOrder
	}

	return options.Find().SetSort(bson.D{
		{Key: sortField, Value: sortOrder},
		{Key: "_id", Value: sortOrder},
	})
}

// ListByFolder returns active files in a folder. Pass nil for root files.
func (s *Store) ListByFolder(ctx context.Context, ownerID primitive.ObjectID, folderID *primitive.ObjectID, opts ListOptions) ([]models.File, error) {
	filter := bson.M{"owner_id": ownerID, "folder_id": folderID, "is_deleted": false}
	return s.find(ctx, filter, opts.findOptions())
}

// ListActive returns every active file of an owner, newest first.
func (s *Store) ListActive(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": false}, ListOptions{}.findOptions())
}

// ListTrashed returns every trashed file of an owner, newest first.
func (s *Store) ListTrashed(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": true}, ListOptions{}.findOptions())
}

// ListTrashedInFolders returns trashed files whose folder is in folderIDs.
func (s *Store) ListTrashedInFolders(ctx context.Context, ownerID primitive.ObjectID, folderIDs []primitive.ObjectID) ([]models.File, error) {
	if len(folderIDs) == 0 {
		return []models.File{}, nil
	}
	filter := bson.M{"owner_id": ownerID, "folder_id": bson.M{"$in": folderIDs}, "is_deleted": true}
	return s.find(ctx, filter, nil)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.File, error) {
	cursor, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	files := []models.File{}
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}

	return files, nil
}

// TrashInFolders soft-deletes the active files in any of folderIDs and tags
// them with rootID.
func (s *Store) TrashInFolders(ctx context.Context, ownerID primitive.ObjectID, folderIDs []primitive.ObjectID, rootID primitive.ObjectID, at time.Time) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{
		"owner_id":   ownerID,
		"folder_id":  bson.M{"$in": folderIDs},
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

// RestoreByRoot reactivates every file tagged with rootID, in place.
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

// RestoreInFolders reactivates trashed files in any of folderIDs that were
// trashed by rootID.
func (s *Store) RestoreInFolders(ctx context.Context, ownerID primitive.ObjectID, folderIDs []primitive.ObjectID, rootID primitive.ObjectID) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{
		"owner_id":      ownerID,
		"folder_id":     bson.M{"$in": folderIDs},
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

// DetachActiveFromFolders moves active files in any of folderIDs to root.
func (s *Store) DetachActiveFromFolders(ctx context.Context, ownerID primitive.ObjectID, folderIDs []primitive.ObjectID) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{
		"owner_id":   ownerID,
		"folder_id":  bson.M{"$in": folderIDs},
		"is_deleted": false,
	}, bson.M{"$set": bson.M{"folder_id": nil, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteTrashed permanently removes the trashed files among ids.
func (s *Store) DeleteTrashed(ctx context.Context, ownerID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "owner_id": ownerID, "is_deleted": true})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByIDs removes rows among ids regardless of state. Used to undo
// inserts that ran outside a transaction.
func (s *Store) DeleteByIDs(ctx context.Context, ownerID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "owner_id": ownerID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// SumActiveSize returns the total size in bytes of an owner's active files.
func (s *Store) SumActiveSize(ctx context.Context, ownerID primitive.ObjectID) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": ownerID, "is_deleted": false}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$size"}}}},
	}
	cursor, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var out []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// TypeStat is the per-type count and byte total of active files.
type TypeStat struct {
	Count int64 `bson:"count"`
	Bytes int64 `bson:"bytes"`
}

// StatsByType groups an owner's active files by file_type.
func (s *Store) StatsByType(ctx context.Context, ownerID primitive.ObjectID) (map[string]TypeStat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": ownerID, "is_deleted": false}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$file_type",
			"count": bson.M{"$sum": 1},
			"bytes": bson.M{"$sum": "$size"},
		}}},
	}
	cursor, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Type  string `bson:"_id"`
		Count int64  `bson:"count"`
		Bytes int64  `bson:"bytes"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	stats := make(map[string]TypeStat, len(rows))
	for _, r := range rows {
		stats[r.Type] = TypeStat{Count: r.Count, Bytes: r.Bytes}
	}
	return stats, nil
}
