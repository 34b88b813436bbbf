package inspect

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/store"
	"github.com/indexkit/switchstore/internal/version"
)

// FileInfo describes one file of the composite store.
type FileInfo struct {
	Name   string `json:"name"`
	Route  string `json:"route"`
	Length int64  `json:"length"`
}

// StoresInfo describes the routing configuration and both sides of the
// composite.
type StoresInfo struct {
	Extensions            []string `json:"extensions"`
	PrimaryOwnsExtensions bool     `json:"primary_owns_extensions"`
	PrimaryFiles          int      `json:"primary_files"`
	SecondaryFiles        int      `json:"secondary_files"`
}

// Handler handles inspection requests.
type Handler struct {
	store  *store.SwitchStore
	worker *SnapshotWorker
	logger *slog.Logger
}

// NewHandler creates a new inspection handler.
// If worker is nil, snapshot scheduling is disabled.
func NewHandler(st *store.SwitchStore, logger *slog.Logger, worker *SnapshotWorker) *Handler {
	return &Handler{
		store:  st,
		worker: worker,
		logger: logger,
	}
}

// HandleFiles handles the /v1/files endpoint: every file of the composite
// with its route and length.
func (h *Handler) HandleFiles(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := req.Context()
	names, err := h.store.ListAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list files", "error", err)
		http.Error(writer, "Internal error", http.StatusInternalServerError)
		return
	}
	sort.Strings(names)

	files := make([]FileInfo, 0, len(names))
	for _, name := range names {
		length, err := h.store.FileLength(ctx, name)
		if err != nil {
			// Deleted between list and stat
			h.logger.DebugContext(ctx, "skipping vanished file", "name", name, "error", err)
			continue
		}
		files = append(files, FileInfo{
			Name:   name,
			Route:  h.store.RouteOf(name),
			Length: length,
		})
	}

	h.writeJSON(writer, req, map[string][]FileInfo{"files": files})
}

// HandleFile handles the /v1/files/{name} endpoint.
func (h *Handler) HandleFile(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(req.URL.Path, "/v1/files/")
	if name == "" || strings.Contains(name, "/") {
		http.Error(writer, "File not found", http.StatusNotFound)
		return
	}

	ctx := req.Context()
	length, err := h.store.FileLength(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrFileNotFound) {
			http.Error(writer, "File not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to stat file", "name", name, "error", err)
		http.Error(writer, "Internal error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(writer, req, FileInfo{
		Name:   name,
		Route:  h.store.RouteOf(name),
		Length: length,
	})
}

// HandlePending handles the /v1/pending endpoint: names queued for
// deletion across both backing stores.
func (h *Handler) HandlePending(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := req.Context()
	pending, err := h.store.PendingDeletions(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read pending deletions", "error", err)
		http.Error(writer, "Internal error", http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	h.writeJSON(writer, req, map[string][]string{"pending": names})
}

// HandleStores handles the /v1/stores endpoint.
func (h *Handler) HandleStores(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := req.Context()
	primaryNames, err := h.store.PrimaryStore().ListAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list primary store", "error", err)
		http.Error(writer, "Internal error", http.StatusInternalServerError)
		return
	}
	secondaryNames, err := h.store.SecondaryStore().ListAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list secondary store", "error", err)
		http.Error(writer, "Internal error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(writer, req, StoresInfo{
		Extensions:            h.store.Extensions(),
		PrimaryOwnsExtensions: h.store.PrimaryOwnsExtensions(),
		PrimaryFiles:          len(primaryNames),
		SecondaryFiles:        len(secondaryNames),
	})
}

// HandleSnapshot handles the /v1/snapshot endpoint: schedules a git
// snapshot through the background worker.
func (h *Handler) HandleSnapshot(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.worker == nil {
		http.Error(writer, "Snapshot not configured", http.StatusServiceUnavailable)
		return
	}

	h.worker.Notify()
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(writer).Encode(map[string]string{"status": "scheduled"}); err != nil {
		h.logger.ErrorContext(req.Context(), "failed to encode snapshot response", "error", err)
	}
}

// HandleVersion handles the /api/version endpoint.
func (h *Handler) HandleVersion(writer http.ResponseWriter, req *http.Request) {
	response := map[string]string{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_time": version.BuildTime,
	}

	h.writeJSON(writer, req, response)
}

// HandleHealth handles the /health endpoint for health checks.
func (h *Handler) HandleHealth(writer http.ResponseWriter, req *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	h.writeJSON(writer, req, response)
}

func (h *Handler) writeJSON(writer http.ResponseWriter, req *http.Request, response any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		h.logger.ErrorContext(req.Context(), "failed to encode response", "error", err)
	}
}
