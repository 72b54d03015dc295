package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/processor"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// BatchesHandler handles batch lifecycle endpoints.
type BatchesHandler struct {
	store   *store.Store
	manager *processor.Manager
	config  *config.Config
	log     zerolog.Logger
}

func NewBatchesHandler(st *store.Store, m *processor.Manager, cfg *config.Config, log zerolog.Logger) *BatchesHandler {
	return &BatchesHandler{store: st, manager: m, config: cfg, log: log}
}

// Create handles POST /batches.
func (h *BatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		respondError(w, http.StatusBadRequest, "batch name is required")
		return
	}

	batch, err := h.store.CreateBatch(r.Context(), input.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("could not create batch")
		respondError(w, http.StatusInternalServerError, "could not create batch")
		return
	}
	h.log.Info().Int64("batch_id", batch.ID).Str("name", sanitizeForLog(batch.Name)).Msg("batch created")
	respondJSON(w, http.StatusCreated, batch)
}

// List handles GET /batches.
func (h *BatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	batches, err := h.store.ListBatches(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("could not list batches")
		respondError(w, http.StatusInternalServerError, "could not list batches")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// batchStatus is the status payload: the batch row plus derived progress and
// the most recent processing log entries.
type batchStatus struct {
	*store.Batch
	ProgressPct int              `json:"progress_pct"`
	RecentLogs  []store.LogEntry `json:"recent_logs"`
}

// Get handles GET /batches/{id}.
func (h *BatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	batch, err := h.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load batch")
		return
	}
	logs, err := h.store.RecentLogs(r.Context(), id)
	if err != nil {
		h.log.Warn().Err(err).Msg("could not load recent logs")
		logs = nil
	}
	respondJSON(w, http.StatusOK, batchStatus{
		Batch:       batch,
		ProgressPct: batch.ProgressPct(),
		RecentLogs:  logs,
	})
}

var photoExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// UploadPhotos handles POST /batches/{id}/photos with multipart form files
// under the "photos" field. Uploads are only accepted while the batch is
// still in the uploading state.
func (h *BatchesHandler) UploadPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	batch, err := h.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load batch")
		return
	}
	if batch.Status != store.BatchUploading {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("batch is %s, uploads are closed", batch.Status))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Upload.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no photos in request")
		return
	}

	dir := filepath.Join(h.config.Upload.Dir, strconv.FormatInt(id, 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		h.log.Error().Err(err).Msg("could not create upload directory")
		respondError(w, http.StatusInternalServerError, "could not store photos")
		return
	}

	var saved []store.Photo
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !photoExtensions[strings.ToLower(filepath.Ext(name))] {
			respondError(w, http.StatusBadRequest, "unsupported file type: "+sanitizeForLog(name))
			return
		}
		path := filepath.Join(dir, name)
		if err := saveUploadedFile(fh, path); err != nil {
			h.log.Error().Err(err).Str("file", sanitizeForLog(name)).Msg("could not save upload")
			respondError(w, http.StatusInternalServerError, "could not store photos")
			return
		}
		photo, err := h.store.AddPhoto(r.Context(), id, name, path)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "could not record photo")
			return
		}
		saved = append(saved, *photo)
	}
	if err := h.store.AddBatchPhotos(r.Context(), id, len(saved)); err != nil {
		respondError(w, http.StatusInternalServerError, "could not update batch counters")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"uploaded": len(saved),
		"photos":   saved,
	})
}

func saveUploadedFile(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("could not open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("could not write file: %w", err)
	}
	return dst.Close()
}

// Finalize handles POST /batches/{id}/finalize, closing the upload phase.
func (h *BatchesHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.TransitionBatch(r.Context(), id, store.BatchUploaded); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "batch not found")
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(store.BatchUploaded)})
}

// Process handles POST /batches/{id}/process, starting the worker.
func (h *BatchesHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	batch, err := h.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load batch")
		return
	}
	if batch.Status != store.BatchUploaded {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("batch is %s, expected %s", batch.Status, store.BatchUploaded))
		return
	}

	// The enhanced QR mode can be requested per batch; the config value is
	// the default when the body is empty or omits the field.
	enhanced := h.config.Processing.EnhancedQR
	var req struct {
		Enhanced *bool `json:"enhanced"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Enhanced != nil {
		enhanced = *req.Enhanced
	}

	if _, err := h.manager.Start(id, enhanced); err != nil {
		if errors.Is(err, processor.ErrBatchRunning) {
			respondError(w, http.StatusConflict, "batch is already being processed")
			return
		}
		h.log.Error().Err(err).Int64("batch_id", id).Msg("could not start processing")
		respondError(w, http.StatusInternalServerError, "could not start processing")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"batch_id": id, "status": "processing"})
}

// CancelProcess handles DELETE /batches/{id}/process.
func (h *BatchesHandler) CancelProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.manager.Cancel(id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// Results handles GET /batches/{id}/results: per-person outcomes plus the
// photos that matched nobody.
func (h *BatchesHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	batch, err := h.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load batch")
		return
	}

	people, err := h.store.ListBatchRegistrations(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load results")
		return
	}
	unmatched, err := h.store.ListUnmatchedPhotos(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load results")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"batch":            batch,
		"people":           people,
		"unmatched_photos": unmatched,
	})
}
