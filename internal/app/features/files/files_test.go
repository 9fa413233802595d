package files

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, r io.Reader, _ *storage.PutOptions) error {
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

func (m *memBlobs) URL(path string) string { return "https://cdn.test/" + path }

type apiEnv struct {
	router http.Handler
	users  *userstore.Store
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	svc := drive.New(db, &memBlobs{data: map[string][]byte{}}, drive.DefaultConfig(), logger, nil)
	tm, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", 0, false, logger)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	h := NewHandler(svc, errorsfeature.NewErrorLogger(logger), logger, 0)
	return &apiEnv{router: Routes(h, tm), users: userstore.New(db)}
}

func (a *apiEnv) principal(t *testing.T, credits int64) *models.Principal {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	name := primitive.NewObjectID().Hex()
	u, err := a.users.Create(ctx, models.User{Username: name, Email: name + "@example.com", Credits: credits})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &models.Principal{UserID: u.ID, Tier: u.Tier}
}

func (a *apiEnv) do(p *models.Principal, req *http.Request) *testutil.ResponseRecorder {
	if p != nil {
		req = testutil.WithPrincipal(req, p)
	}
	rec := testutil.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *testutil.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func multipartUpload(t *testing.T, folderID string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if folderID != "" {
		if err := mw.WriteField("folder_id", folderID); err != nil {
			t.Fatal(err)
		}
	}
	for name, body := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRoutes_RequirePrincipal(t *testing.T) {
	a := newAPI(t)

	for _, path := range []string{"/dashboard", "/folders", "/files", "/bin", "/contents"} {
		rec := a.do(nil, testutil.NewRequest(http.MethodGet, path))
		rec.AssertStatus(t, http.StatusUnauthorized)
	}
}

func TestFolders_CreateListAndCycle(t *testing.T) {
	a := newAPI(t)
	p := a.principal(t, 10)

	rec := a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders", `{"name":"Projects"}`))
	rec.AssertStatus(t, http.StatusCreated)
	parent := decode[models.Folder](t, rec)

	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders",
		`{"name":"Child","parent_id":"`+parent.ID.Hex()+`"}`))
	rec.AssertStatus(t, http.StatusCreated)
	child := decode[models.Folder](t, rec)

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/contents?folder_id="+parent.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	contents := decode[drive.Contents](t, rec)
	if len(contents.Folders) != 1 || contents.Folders[0].ID != child.ID {
		t.Errorf("contents = %+v, want the child folder", contents.Folders)
	}

	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders/"+parent.ID.Hex()+"/move",
		`{"parent_id":"`+child.ID.Hex()+`"}`))
	rec.AssertStatus(t, http.StatusUnprocessableEntity)
	if body := decode[jsonutil.ErrorBody](t, rec); body.Code != "circular_reference" {
		t.Errorf("code = %q, want circular_reference", body.Code)
	}

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/folders/"+child.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	info := decode[drive.FolderInfo](t, rec)
	if len(info.Path) != 1 || info.Path[0].Name != "Projects" {
		t.Errorf("path = %+v, want [Projects]", info.Path)
	}
}

func TestFolders_ValidationAndNotFound(t *testing.T) {
	a := newAPI(t)
	p := a.principal(t, 10)

	rec := a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders", `{"name":"  "}`))
	rec.AssertStatus(t, http.StatusBadRequest)
	if body := decode[jsonutil.ErrorBody](t, rec); body.Fields["name"] == "" {
		t.Errorf("fields = %v, want a name error", body.Fields)
	}

	// Malformed ids in bodies and queries answer like ids that match nothing.
	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders", `{"name":"x","parent_id":"zzz"}`))
	rec.AssertStatus(t, http.StatusNotFound)
	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders",
		`{"name":"x","parent_id":"`+primitive.NewObjectID().Hex()+`"}`))
	rec.AssertStatus(t, http.StatusNotFound)
	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/contents?folder_id=zzz"))
	rec.AssertStatus(t, http.StatusNotFound)
	rec = a.do(p, multipartUpload(t, "zzz", map[string]string{"a.txt": "a"}))
	rec.AssertStatus(t, http.StatusNotFound)
	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost,
		"/files/"+primitive.NewObjectID().Hex()+"/move", `{"folder_id":"zzz"}`))
	rec.AssertStatus(t, http.StatusNotFound)

	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders", `{"name":"x","color":"red"}`))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/folders/not-an-id"))
	rec.AssertStatus(t, http.StatusNotFound)

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/folders/"+primitive.NewObjectID().Hex()))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestUpload_AndDashboard(t *testing.T) {
	a := newAPI(t)
	p := a.principal(t, 10)

	rec := a.do(p, multipartUpload(t, "", map[string]string{
		"cat.jpg":   "meow",
		"paper.pdf": "pdf!",
	}))
	rec.AssertStatus(t, http.StatusCreated)
	up := decode[UploadResponse](t, rec)
	if len(up.Files) != 2 || up.TotalBytes != 8 {
		t.Fatalf("upload = %+v, want 2 files / 8 bytes", up)
	}

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/dashboard"))
	rec.AssertStatus(t, http.StatusOK)
	var dash struct {
		Images           int64   `json:"images"`
		PDFs             int64   `json:"pdfs"`
		TotalStorageUsed int64   `json:"total_storage_used"`
		Credits          int64   `json:"credits"`
		StorageUsedHuman string  `json:"storage_used_human"`
		UsagePercent     float64 `json:"usage_percent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.Images != 1 || dash.PDFs != 1 || dash.TotalStorageUsed != 8 || dash.Credits != 8 {
		t.Errorf("dashboard = %+v", dash)
	}
	if dash.StorageUsedHuman != "8 B" {
		t.Errorf("storage_used_human = %q, want %q", dash.StorageUsedHuman, "8 B")
	}

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/files/"+up.Files[0].ID.Hex()+"/url"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "https://cdn.test/files/")
}

func TestUpload_Rejections(t *testing.T) {
	a := newAPI(t)

	broke := a.principal(t, 0)
	rec := a.do(broke, multipartUpload(t, "", map[string]string{"a.txt": "a"}))
	rec.AssertStatus(t, http.StatusPaymentRequired)

	p := a.principal(t, 10)
	rec = a.do(p, multipartUpload(t, "", nil))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = a.do(p, multipartUpload(t, primitive.NewObjectID().Hex(), map[string]string{"a.txt": "a"}))
	rec.AssertStatus(t, http.StatusNotFound)

	rec = a.do(p, testutil.NewJSONRequest(http.MethodPost, "/files", `{}`))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestBin_Lifecycle(t *testing.T) {
	a := newAPI(t)
	p := a.principal(t, 10)

	rec := a.do(p, testutil.NewJSONRequest(http.MethodPost, "/folders", `{"name":"Old"}`))
	rec.AssertStatus(t, http.StatusCreated)
	folder := decode[models.Folder](t, rec)
	rec = a.do(p, multipartUpload(t, folder.ID.Hex(), map[string]string{"a.txt": "a"}))
	rec.AssertStatus(t, http.StatusCreated)
	file := decode[UploadResponse](t, rec).Files[0]

	folderPath := "/folders/" + folder.ID.Hex()
	binFolderPath := "/bin/folders/" + folder.ID.Hex()

	rec = a.do(p, testutil.NewRequest(http.MethodDelete, binFolderPath))
	rec.AssertStatus(t, http.StatusConflict)
	if body := decode[jsonutil.ErrorBody](t, rec); body.Code != "not_in_bin" {
		t.Errorf("code = %q, want not_in_bin", body.Code)
	}

	a.do(p, testutil.NewRequest(http.MethodDelete, folderPath)).AssertStatus(t, http.StatusNoContent)
	rec = a.do(p, testutil.NewRequest(http.MethodDelete, folderPath))
	rec.AssertStatus(t, http.StatusConflict)
	if body := decode[jsonutil.ErrorBody](t, rec); body.Code != "already_deleted" {
		t.Errorf("code = %q, want already_deleted", body.Code)
	}

	rec = a.do(p, testutil.NewRequest(http.MethodGet, "/bin"))
	rec.AssertStatus(t, http.StatusOK)
	bin := decode[drive.Bin](t, rec)
	if len(bin.Folders) != 1 || len(bin.Files) != 1 {
		t.Errorf("bin = %d folders / %d files, want 1 / 1", len(bin.Folders), len(bin.Files))
	}

	a.do(p, testutil.NewRequest(http.MethodPost, binFolderPath+"/restore")).AssertStatus(t, http.StatusNoContent)
	a.do(p, testutil.NewRequest(http.MethodGet, "/files/"+file.ID.Hex()+"/url")).AssertStatus(t, http.StatusOK)

	a.do(p, testutil.NewRequest(http.MethodDelete, "/files/"+file.ID.Hex())).AssertStatus(t, http.StatusNoContent)
	a.do(p, testutil.NewRequest(http.MethodDelete, "/bin/files/"+file.ID.Hex())).AssertStatus(t, http.StatusNoContent)
	a.do(p, testutil.NewRequest(http.MethodPost, "/bin/files/"+file.ID.Hex()+"/restore")).AssertStatus(t, http.StatusNotFound)
}

func TestFiles_CrossOwnerIsNotFound(t *testing.T) {
	a := newAPI(t)
	owner := a.principal(t, 10)
	intruder := a.principal(t, 10)

	rec := a.do(owner, multipartUpload(t, "", map[string]string{"secret.txt": "s"}))
	rec.AssertStatus(t, http.StatusCreated)
	file := decode[UploadResponse](t, rec).Files[0]

	a.do(intruder, testutil.NewRequest(http.MethodGet, "/files/"+file.ID.Hex()+"/url")).AssertStatus(t, http.StatusNotFound)
	a.do(intruder, testutil.NewJSONRequest(http.MethodPatch, "/files/"+file.ID.Hex(), `{"name":"mine"}`)).AssertStatus(t, http.StatusNotFound)
	a.do(intruder, testutil.NewRequest(http.MethodDelete, "/files/"+file.ID.Hex())).AssertStatus(t, http.StatusNotFound)

	a.do(owner, testutil.NewJSONRequest(http.MethodPatch, "/files/"+file.ID.Hex(), `{"name":"renamed.txt"}`)).AssertStatus(t, http.StatusNoContent)
}
