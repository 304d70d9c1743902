package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/service"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// fileResponse is the wire shape of a hierarchy.FileNode (spec §6's
// "FileNode" response body).
type fileResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerID"`
	ParentID       *string   `json:"parentID,omitempty"`
	Name           string    `json:"name"`
	ContentType    string    `json:"contentType"`
	Size           int64     `json:"size"`
	IsDirectory    bool      `json:"isDirectory"`
	IsFavorite     bool      `json:"isFavorite"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

func toFileResponse(node *hierarchy.FileNode) fileResponse {
	return fileResponse{
		ID: node.ID, OwnerID: node.OwnerID, ParentID: node.ParentID, Name: node.Name,
		ContentType: node.ContentType, Size: node.Size, IsDirectory: node.IsDirectory,
		IsFavorite: node.IsFavorite, CreatedAt: node.CreatedAt, UpdatedAt: node.UpdatedAt,
		LastModifiedAt: node.LastModifiedAt,
	}
}

func toFileResponses(nodes []hierarchy.FileNode) []fileResponse {
	return lo.Map(nodes, func(node hierarchy.FileNode, _ int) fileResponse {
		return toFileResponse(&node)
	})
}

// listingResponse is the shape spec §6 names for both List and the
// per-view listing endpoints: `{files, parentID, breadcrumbs}`.
type listingResponse struct {
	Files       []fileResponse `json:"files"`
	ParentID    *string        `json:"parentID,omitempty"`
	Breadcrumbs []fileResponse `json:"breadcrumbs"`
}

// FilesHandler groups the `/files` routes of spec §6.
type FilesHandler struct {
	storage *service.Storage
}

// NewFilesHandler builds a FilesHandler.
func NewFilesHandler(storageService *service.Storage) *FilesHandler {
	return &FilesHandler{storage: storageService}
}

func optionalQueryParam(r *http.Request, key string) *string {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	return lo.ToPtr(value)
}

// List implements `GET /files?parentID=…`.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	parentID := optionalQueryParam(r, "parentID")

	h.respondListing(w, r, ownerID, hierarchy.Filter{Kind: hierarchy.FilterFolder, ParentID: parentID}, parentID)
}

// ListView implements `GET /files/{recent|favorites|shared|trash|all}`.
func (h *FilesHandler) ListView(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	view := chi.URLParam(r, "view")

	kind, ok := viewFilterKind(view)
	if !ok {
		writeProblem(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown listing view %q", view))
		return
	}
	h.respondListing(w, r, ownerID, hierarchy.Filter{Kind: kind}, nil)
}

func viewFilterKind(view string) (hierarchy.FilterKind, bool) {
	switch view {
	case "all":
		return hierarchy.FilterAll, true
	case "recent":
		return hierarchy.FilterRecent, true
	case "favorites":
		return hierarchy.FilterFavorites, true
	case "shared":
		return hierarchy.FilterShared, true
	case "trash":
		return hierarchy.FilterTrash, true
	default:
		return 0, false
	}
}

func (h *FilesHandler) respondListing(w http.ResponseWriter, r *http.Request, ownerID string, filter hierarchy.Filter, parentID *string) {
	files, err := h.storage.List(r.Context(), ownerID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	breadcrumbs, err := h.storage.Breadcrumbs(r.Context(), ownerID, parentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{
		Files: toFileResponses(files), ParentID: parentID, Breadcrumbs: toFileResponses(breadcrumbs),
	})
}

// Show implements `GET /files/{id}`.
func (h *FilesHandler) Show(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	node, err := h.storage.Get(r.Context(), ownerID, fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

func parseClientModifiedAt(r *http.Request) time.Time {
	raw := r.URL.Query().Get("lastModified")
	if raw == "" {
		return time.Now()
	}
	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(millis)
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed
	}
	return time.Now()
}

// Upload implements `PUT /files?filename=…&contentType=…&parentID=…&lastModified=…`.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	query := r.URL.Query()

	if r.ContentLength < 0 {
		writeError(w, xfererr.New(xfererr.SizeMismatch, "Content-Length header is required"))
		return
	}

	node, err := h.storage.Upload(r.Context(), service.UploadInput{
		OwnerID: ownerID, ParentID: optionalQueryParam(r, "parentID"),
		Filename: query.Get("filename"), ContentType: query.Get("contentType"),
		ClaimedSize: r.ContentLength, Stream: r.Body, ClientModifiedAt: parseClientModifiedAt(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

// UpdateContent implements `PUT /files/{id}?size=…&contentType=…&lastModified=…`.
func (h *FilesHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")
	query := r.URL.Query()

	claimedSize := r.ContentLength
	if sizeParam := query.Get("size"); sizeParam != "" {
		if parsed, err := strconv.ParseInt(sizeParam, 10, 64); err == nil {
			claimedSize = parsed
		}
	}

	node, err := h.storage.UpdateContent(r.Context(), service.UpdateContentInput{
		OwnerID: ownerID, FileID: fileID, ClaimedSize: claimedSize, ContentType: query.Get("contentType"),
		Stream: r.Body, ClientModifiedAt: parseClientModifiedAt(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

type createDirectoryRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentID,omitempty"`
}

// CreateDirectory implements `POST /files/create-directory`.
func (h *FilesHandler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())

	var req createDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	node, err := h.storage.CreateDirectory(r.Context(), ownerID, req.ParentID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

type renameRequest struct {
	Name string `json:"name"`
}

// Rename implements `PATCH /files/{id}`.
func (h *FilesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	node, err := h.storage.Rename(r.Context(), ownerID, fileID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

type moveRequest struct {
	FileID   string  `json:"fileID"`
	ParentID *string `json:"parentID,omitempty"`
}

// Move implements `POST /files/move-file`.
func (h *FilesHandler) Move(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	node, err := h.storage.Move(r.Context(), ownerID, req.FileID, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite,omitempty"`
}

// Favorite implements `POST /files/{id}/favorite`.
func (h *FilesHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	var req favoriteRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	isFavorite := true
	if req.IsFavorite != nil {
		isFavorite = *req.IsFavorite
	}

	node, err := h.storage.Favorite(r.Context(), ownerID, fileID, isFavorite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

// Download implements `GET /files/{id}/download`.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	byteRange := parseRangeHeader(r.Header.Get("Range"))
	object, node, err := h.storage.Download(r.Context(), ownerID, fileID, byteRange)
	if err != nil {
		writeError(w, err)
		return
	}
	defer object.Reader.Close()

	w.Header().Set("Content-Type", node.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", node.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(object.ContentLength, 10))
	status := http.StatusOK
	if byteRange != nil {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	_, _ = io.Copy(w, object.Reader)
}

// parseRangeHeader parses a single-range `bytes=start-end` Range header.
// Multi-range requests are not supported; an unparsable header is treated
// as a full-object request.
func parseRangeHeader(header string) *storage.Range {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	var end int64
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil
		}
	}
	return &storage.Range{Start: start, End: end}
}

// SoftDelete implements `DELETE /files/{id}`.
func (h *FilesHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	if err := h.storage.SoftDelete(r.Context(), ownerID, fileID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore implements `POST /files/{id}/restore`.
func (h *FilesHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	node, err := h.storage.Restore(r.Context(), ownerID, fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

// HardDelete implements `DELETE /files/{id}/permanent-delete`.
func (h *FilesHandler) HardDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	if err := h.storage.HardDelete(r.Context(), ownerID, fileID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
