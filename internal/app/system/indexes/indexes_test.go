package indexes_test

import (
	"testing"

	"github.com/dalemusser/stratadrive/internal/app/system/indexes"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func mongoIndex(keys bson.D, opts *options.IndexOptions) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: opts}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	// SetupTestDB already ran EnsureAll once.
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	require.NoError(t, indexes.EnsureAll(ctx, db))

	cur, err := db.Collection("login_attempts").Indexes().List(ctx)
	require.NoError(t, err)
	var got []bson.M
	require.NoError(t, cur.All(ctx, &got))

	var ttl bson.M
	for _, idx := range got {
		if idx["name"] == "idx_login_attempts_ttl" {
			ttl = idx
		}
	}
	require.NotNil(t, ttl, "ttl index missing")
	assert.EqualValues(t, 86400, ttl["expireAfterSeconds"])
}

func TestEnsureAll_RebuildsIndexWithStaleOptions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := db.Collection("users")
	_, err := users.Indexes().DropOne(ctx, "uniq_users_email")
	require.NoError(t, err)
	// Same keys, not unique, different name.
	_, err = users.Indexes().CreateOne(ctx, mongoIndex(bson.D{{Key: "email", Value: 1}}, options.Index().SetName("legacy_email")))
	require.NoError(t, err)

	require.NoError(t, indexes.EnsureAll(ctx, db))

	cur, err := users.Indexes().List(ctx)
	require.NoError(t, err)
	var got []bson.M
	require.NoError(t, cur.All(ctx, &got))

	names := map[string]bson.M{}
	for _, idx := range got {
		names[idx["name"].(string)] = idx
	}
	assert.NotContains(t, names, "legacy_email")
	require.Contains(t, names, "uniq_users_email")
	assert.Equal(t, true, names["uniq_users_email"]["unique"])
}

func TestEnsureAll_ReportsDuplicatesForUniqueIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := db.Collection("users")
	_, err := users.Indexes().DropOne(ctx, "uniq_users_email")
	require.NoError(t, err)
	_, err = users.InsertMany(ctx, []interface{}{
		bson.M{"email": "dup@example.com"},
		bson.M{"email": "dup@example.com"},
	})
	require.NoError(t, err)

	err = indexes.EnsureAll(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates present")
}
