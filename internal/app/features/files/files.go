// Package files is the JSON API over the drive: folders, files, the bin and
// the dashboard. Every route requires an authenticated principal.
package files

import (
	"context"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultMaxMemory is the multipart memory budget used when none is configured.
// Larger parts spill to temporary files.
const DefaultMaxMemory = 32 << 20 // 32MB

// Handler provides the drive API handlers.
type Handler struct {
	svc       *drive.Service
	errLog    *errorsfeature.ErrorLogger
	logger    *zap.Logger
	maxMemory int64
}

// NewHandler creates a new files Handler.
func NewHandler(svc *drive.Service, errLog *errorsfeature.ErrorLogger, logger *zap.Logger, maxMemory int64) *Handler {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}
	return &Handler{
		svc:       svc,
		errLog:    errLog,
		logger:    logger,
		maxMemory: maxMemory,
	}
}

// Routes returns a chi.Router with the drive routes mounted.
//
// When mounted at /api:
//   - GET    /dashboard, /usage
//   - GET    /contents?folder_id=
//   - GET    /folders, POST /folders
//   - GET    /folders/{id}, PATCH /folders/{id}, POST /folders/{id}/move, DELETE /folders/{id}
//   - GET    /files, POST /files (multipart)
//   - GET    /files/{id}/url, PATCH /files/{id}, POST /files/{id}/move, DELETE /files/{id}
//   - GET    /bin
//   - POST   /bin/folders/{id}/restore, DELETE /bin/folders/{id}
//   - POST   /bin/files/{id}/restore, DELETE /bin/files/{id}
func Routes(h *Handler, tm *auth.TokenManager) http.Handler {
	r := chi.NewRouter()
	r.Use(tm.RequirePrincipal)

	r.Get("/dashboard", h.dashboard)
	r.Get("/usage", h.usage)
	r.Get("/contents", h.contents)

	r.Route("/folders", func(r chi.Router) {
		r.Get("/", h.listFolders)
		r.Post("/", h.createFolder)
		r.Get("/{id}", h.folderInfo)
		r.Patch("/{id}", h.renameFolder)
		r.Post("/{id}/move", h.moveFolder)
		r.Delete("/{id}", h.trashFolder)
	})

	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.listFiles)
		r.Post("/", h.upload)
		r.Get("/{id}/url", h.fileURL)
		r.Patch("/{id}", h.renameFile)
		r.Post("/{id}/move", h.moveFile)
		r.Delete("/{id}", h.trashFile)
	})

	r.Route("/bin", func(r chi.Router) {
		r.Get("/", h.listBin)
		r.Post("/folders/{id}/restore", h.restoreFolder)
		r.Delete("/folders/{id}", h.purgeFolder)
		r.Post("/files/{id}/restore", h.restoreFile)
		r.Delete("/files/{id}", h.purgeFile)
	})

	return r
}

/*─────────────────────────────────────────────────────────────────────────────*
| Request / response shapes                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

type nameRequest struct {
	Name string `json:"name"`
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type moveFolderRequest struct {
	ParentID *string `json:"parent_id"`
}

type moveFileRequest struct {
	FolderID *string `json:"folder_id"`
}

// DashboardResponse adds display strings to the drive stats.
type DashboardResponse struct {
	*drive.Stats
	StorageUsedHuman  string  `json:"storage_used_human"`
	StorageLimitHuman string  `json:"storage_limit_human"`
	UsagePercent      float64 `json:"usage_percent"`
}

// UploadResponse lists the files created by an upload.
type UploadResponse struct {
	Files      []models.File `json:"files"`
	TotalBytes int64         `json:"total_bytes"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| Dashboard                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	stats, err := h.svc.Dashboard(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, DashboardResponse{
		Stats:             stats,
		StorageUsedHuman:  FormatFileSize(stats.TotalStorageUsed),
		StorageLimitHuman: FormatFileSize(stats.StorageLimit),
		UsagePercent:      UsagePercent(stats.TotalStorageUsed, stats.StorageLimit),
	})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	usage, err := h.svc.Ledger().Usage(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, map[string]any{
		"used":      usage.Used,
		"limit":     usage.Limit,
		"remaining": usage.Remaining(),
		"credits":   usage.Credits,
		"tier":      usage.Tier,
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Folders                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) contents(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	folderID, ok := optionalID(w, r.URL.Query().Get("folder_id"), drive.ErrFolderNotFound)
	if !ok {
		return
	}
	c, err := h.svc.ListContents(r.Context(), p, folderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, c)
}

func (h *Handler) listFolders(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	folders, err := h.svc.ListFolders(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, map[string]any{"folders": nonNil(folders)})
}

func (h *Handler) createFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	var req createFolderRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	parentID, ok := optionalIDPtr(w, req.ParentID, drive.ErrParentNotFound)
	if !ok {
		return
	}

	folder, err := h.svc.CreateFolder(r.Context(), p, req.Name, parentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.Created(w, folder)
}

func (h *Handler) folderInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFolderNotFound)
	if !ok {
		return
	}

	info, err := h.svc.FolderInfo(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, info)
}

func (h *Handler) renameFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFolderNotFound)
	if !ok {
		return
	}

	var req nameRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.RenameFolder(r.Context(), p, id, req.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) moveFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFolderNotFound)
	if !ok {
		return
	}

	var req moveFolderRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	parentID, ok := optionalIDPtr(w, req.ParentID, drive.ErrParentNotFound)
	if !ok {
		return
	}
	if err := h.svc.MoveFolder(r.Context(), p, id, parentID); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) trashFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFolderNotFound)
	if !ok {
		return
	}

	if err := h.svc.TrashFolder(r.Context(), p, id); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Files                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	files, err := h.svc.ListFiles(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, map[string]any{"files": nonNil(files)})
}

// upload accepts multipart/form-data with one or more "files" parts and an
// optional "folder_id" field. The whole batch is stored or none of it is.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	started := time.Now()

	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		jsonutil.BadRequest(w, "request must be multipart/form-data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	folderID, ok := optionalID(w, r.FormValue("folder_id"), drive.ErrFolderNotFound)
	if !ok {
		return
	}

	headers := r.MultipartForm.File["files"]
	uploads := make([]drive.Upload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.errLog.Log(r, "failed to open uploaded part", err)
			jsonutil.InternalError(w, "failed to read upload")
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, drive.Upload{
			Name:        fh.Filename,
			Size:        fh.Size,
			Body:        f,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	created, err := h.svc.Upload(r.Context(), p, uploads, folderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := UploadResponse{Files: created}
	for _, f := range created {
		resp.TotalBytes += f.Size
	}
	h.logger.Info("upload stored",
		zap.String("user_id", p.UserID.Hex()),
		zap.Int("files", len(created)),
		zap.Int64("bytes", resp.TotalBytes),
		zap.Duration("took", time.Since(started)))
	jsonutil.Created(w, resp)
}

func (h *Handler) fileURL(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFileNotFound)
	if !ok {
		return
	}

	url, err := h.svc.FileURL(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.OK(w, map[string]string{"url": url})
}

func (h *Handler) renameFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFileNotFound)
	if !ok {
		return
	}

	var req nameRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err := h.svc.RenameFile(r.Context(), p, id, req.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) moveFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFileNotFound)
	if !ok {
		return
	}

	var req moveFileRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	folderID, ok := optionalIDPtr(w, req.FolderID, drive.ErrFolderNotFound)
	if !ok {
		return
	}
	if err := h.svc.MoveFile(r.Context(), p, id, folderID); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) trashFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, drive.ErrFileNotFound)
	if !ok {
		return
	}

	if err := h.svc.TrashFile(r.Context(), p, id); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Bin                                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) listBin(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	bin, err := h.svc.ListBin(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bin.Folders = nonNil(bin.Folders)
	bin.Files = nonNil(bin.Files)
	jsonutil.OK(w, bin)
}

func (h *Handler) restoreFolder(w http.ResponseWriter, r *http.Request) {
	h.binAction(w, r, drive.ErrFolderNotFound, h.svc.RestoreFolder)
}

func (h *Handler) purgeFolder(w http.ResponseWriter, r *http.Request) {
	h.binAction(w, r, drive.ErrFolderNotFound, h.bounded("purge folder", h.svc.PurgeFolder))
}

func (h *Handler) restoreFile(w http.ResponseWriter, r *http.Request) {
	h.binAction(w, r, drive.ErrFileNotFound, h.svc.RestoreFile)
}

func (h *Handler) purgeFile(w http.ResponseWriter, r *http.Request) {
	h.binAction(w, r, drive.ErrFileNotFound, h.bounded("purge file", h.svc.PurgeFile))
}

type idAction func(ctx context.Context, p *models.Principal, id primitive.ObjectID) error

// bounded runs action under timeouts.Long; purges delete blobs one by one.
func (h *Handler) bounded(operation string, action idAction) idAction {
	return func(ctx context.Context, p *models.Principal, id primitive.ObjectID) error {
		ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), h.logger, operation)
		defer cancel()
		return action(ctx, p, id)
	}
}

func (h *Handler) binAction(w http.ResponseWriter, r *http.Request, notFound error, action idAction) {
	p, _ := auth.CurrentPrincipal(r)
	id, ok := pathID(w, r, notFound)
	if !ok {
		return
	}

	if err := action(r.Context(), p, id); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonutil.NoContent(w)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
