package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var errInjected = errors.New("injected failure")

// memBlobs is an in-memory BlobStore that can fail the Nth Put.
type memBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	puts      int
	failOnPut int // 1-based; 0 disables
}

var _ BlobStore = (*memBlobs)(nil)
var _ BlobStore = (storage.Store)(nil)

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, path string, r io.Reader, _ *storage.PutOptions) error {
	m.mu.Lock()
	m.puts++
	n := m.puts
	m.mu.Unlock()

	if m.failOnPut > 0 && n == m.failOnPut {
		return errInjected
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = b
	return nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, path)
	return nil
}

func (m *memBlobs) URL(path string) string {
	return "/files/" + path
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *memBlobs) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[path]
	return ok
}

// unreadable fails the test's upload if anything tries to read it.
type unreadable struct{}

func (unreadable) Read([]byte) (int, error) {
	return 0, errors.New("body must not be read")
}

type env struct {
	svc   *Service
	blobs *memBlobs
	users *userstore.Store
	ctx   context.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	blobs := newMemBlobs()
	m := metrics.New(prometheus.NewRegistry())
	return &env{
		svc:   New(db, blobs, DefaultConfig(), zap.NewNop(), m),
		blobs: blobs,
		users: userstore.New(db),
		ctx:   ctx,
	}
}

// newUser creates a user with the given credits and returns its principal.
func (e *env) newUser(t *testing.T, credits int64) *models.Principal {
	t.Helper()
	name := primitive.NewObjectID().Hex()
	u, err := e.users.Create(e.ctx, models.User{
		Username: name,
		Email:    name + "@example.com",
		Credits:  credits,
	})
	require.NoError(t, err)
	return &models.Principal{UserID: u.ID, Tier: u.Tier}
}

func (e *env) credits(t *testing.T, p *models.Principal) int64 {
	t.Helper()
	u, err := e.users.GetByID(e.ctx, p.UserID)
	require.NoError(t, err)
	return u.Credits
}

func (e *env) folder(t *testing.T, p *models.Principal, name string, parent *primitive.ObjectID) primitive.ObjectID {
	t.Helper()
	f, err := e.svc.CreateFolder(e.ctx, p, name, parent)
	require.NoError(t, err)
	return f.ID
}

// upload stores one small file and returns it.
func (e *env) upload(t *testing.T, p *models.Principal, name string, folder *primitive.ObjectID) models.File {
	t.Helper()
	files, err := e.svc.Upload(e.ctx, p, []Upload{textUpload(name, "hello")}, folder)
	require.NoError(t, err)
	require.Len(t, files, 1)
	return files[0]
}

func textUpload(name, body string) Upload {
	return Upload{
		Name:        name,
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
		ContentType: "text/plain",
	}
}

func sizedUpload(name string, size int) Upload {
	return Upload{
		Name: name,
		Size: int64(size),
		Body: bytes.NewReader(make([]byte, size)),
	}
}

func batch(n int) []Upload {
	out := make([]Upload, n)
	for i := range out {
		out[i] = textUpload(fmt.Sprintf("file-%d.txt", i), "content")
	}
	return out
}

func ptr(id primitive.ObjectID) *primitive.ObjectID {
	return &id
}

// fileInput describes a file row inserted directly, bypassing the ledger.
func fileInput(owner primitive.ObjectID, name string, size int64) filestore.CreateInput {
	return filestore.CreateInput{
		OwnerID:  owner,
		Name:     name,
		Size:     size,
		BlobPath: "files/seed/" + name,
	}
}
