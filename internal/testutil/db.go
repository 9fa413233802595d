// Package testutil holds shared test helpers: a throwaway MongoDB database
// per test and request/recorder shortcuts.
package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// TestDBURI is used unless STRATADRIVE_TEST_MONGO_URI is set.
	TestDBURI = "mongodb://localhost:27017"
	// TestDBName prefixes every per-test database.
	TestDBName = "stratadrive_test"

	// MongoDB rejects database names of 64 bytes or more.
	maxDBName = 63
)

var (
	shared struct {
		once   sync.Once
		client *mongo.Client
		err    error
	}
	unsafeDBChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

func testURI() string {
	if uri := os.Getenv("STRATADRIVE_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return TestDBURI
}

// sharedClient connects once per test binary. Packages run in parallel, so
// the pool is larger than the server default.
func sharedClient() (*mongo.Client, error) {
	shared.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		opts := options.Client().
			ApplyURI(testURI()).
			SetMaxPoolSize(200).
			SetMinPoolSize(5).
			SetMaxConnIdleTime(30 * time.Second).
			SetServerSelectionTimeout(10 * time.Second)

		shared.client, shared.err = mongo.Connect(ctx, opts)
		if shared.err == nil {
			shared.err = shared.client.Ping(ctx, nil)
		}
	})
	return shared.client, shared.err
}

// SetupTestDB gives the calling test its own empty database with the
// production indexes in place, and drops it when the test finishes.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	client, err := sharedClient()
	if err != nil {
		t.Fatalf("connect test MongoDB at %s: %v", testURI(), err)
	}

	db := client.Database(dbNameFor(t.Name()))

	ctx, cancel := TestContext()
	defer cancel()

	if err := db.Drop(ctx); err != nil {
		t.Fatalf("reset test database: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop test database: %v", err)
		}
	})
	return db
}

// dbNameFor maps a test name onto a legal database name. Names that would
// be too long keep a readable head plus a short hash so sibling subtests
// stay distinct.
func dbNameFor(testName string) string {
	name := TestDBName + "_" + unsafeDBChars.ReplaceAllString(testName, "_")
	if len(name) <= maxDBName {
		return name
	}
	sum := sha1.Sum([]byte(testName))
	tag := hex.EncodeToString(sum[:])[:10]
	return name[:maxDBName-len(tag)-1] + "_" + tag
}

// TestContext returns a context bounded for a single test's database work.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
