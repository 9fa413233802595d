// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// collectionSpec pairs a collection with its JSON-Schema. A nil schema
// means the collection is created but left unvalidated.
type collectionSpec struct {
	name   string
	schema bson.M
}

func collections() []collectionSpec {
	return []collectionSpec{
		{"users", usersSchema()},
		{"folders", foldersSchema()},
		{"files", filesSchema()},
		{"audit_logs", nil},
		{"login_attempts", nil},
	}
}

// EnsureAll creates missing collections and attaches validators. Servers
// without collMod support (some DocumentDB versions) skip the validator
// step with an info log.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	have, err := existingCollections(ctx, db)
	if err != nil {
		// Fall through: CreateCollection tolerates races below.
		zap.L().Warn("listing collections failed", zap.Error(err))
		have = map[string]bool{}
	}

	var problems []string
	for _, coll := range collections() {
		if !have[coll.name] {
			if err := createCollection(ctx, db, coll.name); err != nil {
				problems = append(problems, coll.name+": "+err.Error())
				continue
			}
		}
		if coll.schema == nil {
			continue
		}
		if err := setValidator(ctx, db, coll.name, coll.schema); err != nil {
			if classify(err) == errUnsupported {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll.name))
				continue
			}
			problems = append(problems, coll.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func existingCollections(ctx context.Context, db *mongo.Database) (map[string]bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// createCollection treats "already exists" as success so concurrent
// starts do not fail each other.
func createCollection(ctx context.Context, db *mongo.Database, name string) error {
	err := db.CreateCollection(ctx, name)
	switch {
	case err == nil:
		zap.L().Info("created collection", zap.String("collection", name))
		return nil
	case classify(err) == errExists:
		return nil
	default:
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return err
	}
}

func setValidator(ctx context.Context, db *mongo.Database, name string, schema bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: schema},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

type errKind int

const (
	errOther errKind = iota
	errExists
	errUnsupported
)

// Server codes: 48 NamespaceExists, 59 CommandNotFound, 115 CommandNotSupported.
var (
	existsCodes      = map[int32]bool{48: true}
	unsupportedCodes = map[int32]bool{59: true, 115: true}
)

// classify sorts a server error by code, falling back to the message for
// deployments that report these conditions without a code.
func classify(err error) errKind {
	if err == nil {
		return errOther
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch {
		case existsCodes[ce.Code]:
			return errExists
		case unsupportedCodes[ce.Code]:
			return errUnsupported
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "namespace exists"):
		return errExists
	case strings.Contains(msg, "no such command"),
		strings.Contains(msg, "not implemented"),
		strings.Contains(msg, "not supported"):
		return errUnsupported
	}
	return errOther
}

/* ------------------------- JSON-Schema docs ---------------------- */

// Credits can never go negative, even if a code path skips the
// conditional debit.
func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"username", "email", "credits", "tier"},
			"properties": bson.M{
				"username": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"email":    bson.M{"bsonType": "string", "minLength": 3},
				"credits":  bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"tier":     bson.M{"enum": bson.A{"free", "pro"}},
			},
		},
	}
}

func foldersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "owner_id", "is_deleted"},
			"properties": bson.M{
				"name":       bson.M{"bsonType": "string", "minLength": 1},
				"owner_id":   bson.M{"bsonType": "objectId"},
				"parent_id":  bson.M{"bsonType": bson.A{"objectId", "null"}},
				"is_deleted": bson.M{"bsonType": "bool"},
			},
		},
	}
}

func filesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "owner_id", "size", "file_type", "is_deleted"},
			"properties": bson.M{
				"name":       bson.M{"bsonType": "string", "minLength": 1},
				"owner_id":   bson.M{"bsonType": "objectId"},
				"folder_id":  bson.M{"bsonType": bson.A{"objectId", "null"}},
				"size":       bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"file_type":  bson.M{"enum": bson.A{"image", "pdf", "doc", "mp3", "video", "other"}},
				"is_deleted": bson.M{"bsonType": "bool"},
			},
		},
	}
}
