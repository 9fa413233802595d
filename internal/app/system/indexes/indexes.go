// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureAll reconciles the indexes of every collection the service uses.
// It is safe to run on every start; failures from all collections are
// reported together.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureFolders(ctx, db); err != nil {
		problems = append(problems, "folders: "+err.Error())
	}
	if err := ensureFiles(ctx, db); err != nil {
		problems = append(problems, "files: "+err.Error())
	}
	if err := ensureAuditLogs(ctx, db); err != nil {
		problems = append(problems, "audit_logs: "+err.Error())
	}
	if err := ensureLoginAttempts(ctx, db); err != nil {
		problems = append(problems, "login_attempts: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

// existingIndex is the subset of listIndexes output we compare on.
type existingIndex struct {
	Name        string `bson:"name"`
	Key         bson.D `bson:"key"`
	Unique      bool   `bson:"unique,omitempty"`
	ExpireAfter *int32 `bson:"expireAfterSeconds,omitempty"`
}

// indexShape is what makes two indexes interchangeable: key pattern,
// uniqueness and TTL. Names are not part of it.
type indexShape struct {
	keys   string
	unique bool
	ttl    int32 // -1 when not a TTL index
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func desiredShape(m mongo.IndexModel) (string, indexShape) {
	shape := indexShape{keys: keySig(m.Keys.(bson.D)), ttl: -1}
	var name string
	if o := m.Options; o != nil {
		if o.Name != nil {
			name = *o.Name
		}
		if o.Unique != nil {
			shape.unique = *o.Unique
		}
		if o.ExpireAfterSeconds != nil {
			shape.ttl = *o.ExpireAfterSeconds
		}
	}
	return name, shape
}

func (e existingIndex) shape() indexShape {
	shape := indexShape{keys: keySig(e.Key), unique: e.Unique, ttl: -1}
	if e.ExpireAfter != nil {
		shape.ttl = *e.ExpireAfter
	}
	return shape
}

// listIndexes returns the collection's indexes keyed by key pattern. A
// missing collection yields an empty map.
func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet makes every desired index exist. An index with the same
// key pattern and options is reused whatever its name; one with the same
// keys but different options is dropped and recreated. All failures are
// collected so one bad index does not hide the rest.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, desired []mongo.IndexModel) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		zap.L().Warn("listing indexes failed; creating blindly",
			zap.String("collection", coll.Name()), zap.Error(err))
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range desired {
		name, want := desiredShape(m)
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", want.keys),
		}

		if ex, ok := existing[want.keys]; ok {
			if ex.shape() == want {
				zap.L().Debug("reusing existing index", append(fields, zap.String("existing_name", ex.Name))...)
				continue
			}
			// Same keys, different options (e.g. becoming unique or TTL).
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
			zap.L().Info("dropped index with stale options", append(fields, zap.String("dropped", ex.Name))...)
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			switch {
			case want.unique && (wafflemongo.IsDup(err) || mongo.IsDuplicateKeyError(err)):
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			default:
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
			continue
		}
		zap.L().Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Login by email
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
	})
}

// Folder and file names are not unique: duplicates are allowed anywhere.
// Every query leads with owner_id and is_deleted.

func ensureFolders(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("folders")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Folder contents, newest first
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "parent_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_folders_owner_parent_deleted_created"),
		},
		// Bin listing and cascade restore
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "trash_root_id", Value: 1},
			},
			Options: options.Index().SetName("idx_folders_owner_deleted_trashroot"),
		},
	})
}

func ensureFiles(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("files")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Folder contents, newest first; also serves cascade by folder_id $in
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "folder_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_files_owner_folder_deleted_created"),
		},
		// Usage sum and per-type stats
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "file_type", Value: 1},
			},
			Options: options.Index().SetName("idx_files_owner_deleted_type"),
		},
		// Bin listing and cascade restore
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "trash_root_id", Value: 1},
			},
			Options: options.Index().SetName("idx_files_owner_deleted_trashroot"),
		},
	})
}

func ensureAuditLogs(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_logs")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Per-user trail, newest first
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_user_created"),
		},
		// Event type + time queries
		{
			Keys: bson.D{
				{Key: "event_type", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_event_created"),
		},
	})
}

// login_attempts is keyed by normalized email in _id, so only the TTL
// index is needed.
func ensureLoginAttempts(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("login_attempts")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Forget idle records after 24 hours
		{
			Keys:    bson.D{{Key: "last_attempt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_login_attempts_ttl"),
		},
	})
}
