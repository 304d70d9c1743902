package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/multipart"
	"github.com/vaultdrive/vaultdrive/service"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// MultipartHandler groups the `/files/multipart` routes of spec §6.
type MultipartHandler struct {
	coordinator *multipart.Coordinator
	storage     *service.Storage
}

// NewMultipartHandler builds a MultipartHandler.
func NewMultipartHandler(coordinator *multipart.Coordinator, storageService *service.Storage) *MultipartHandler {
	return &MultipartHandler{coordinator: coordinator, storage: storageService}
}

type initiateRequest struct {
	Filename     string  `json:"filename"`
	ContentType  string  `json:"contentType"`
	TotalSize    int64   `json:"totalSize"`
	ParentID     *string `json:"parentID,omitempty"`
	LastModified *int64  `json:"lastModified,omitempty"`
}

type initiateResponse struct {
	SessionID    string `json:"sessionID"`
	FileID       string `json:"fileID"`
	UploadID     string `json:"uploadID"`
	MaxChunkSize int64  `json:"maxChunkSize"`
	Token        string `json:"token"`
}

// Initiate implements `POST /files/multipart/initiate`.
func (h *MultipartHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	clientModifiedAt := time.Now()
	if req.LastModified != nil {
		clientModifiedAt = time.UnixMilli(*req.LastModified)
	}

	result, err := h.coordinator.Initiate(r.Context(), ownerID, req.ParentID, req.Filename, req.ContentType, req.TotalSize, clientModifiedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, initiateResponse{
		SessionID: result.SessionID, FileID: result.FileID, UploadID: result.UploadID,
		MaxChunkSize: result.MaxChunkSize, Token: result.Token,
	})
}

type partResponse struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
	Size       int64  `json:"size"`
}

// UploadPart implements `PUT /files/multipart/{sessionID}/part/{N}`.
func (h *MultipartHandler) UploadPart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	partNumber, err := strconv.ParseInt(chi.URLParam(r, "N"), 10, 32)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "part number must be an integer")
		return
	}
	tokenString, ok := extractBearerToken(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if r.ContentLength < 0 {
		writeError(w, xfererr.New(xfererr.OversizeStream, "Content-Length header is required"))
		return
	}

	result, err := h.coordinator.UploadPart(r.Context(), tokenString, sessionID, int32(partNumber), r.ContentLength, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partResponse{PartNumber: result.PartNumber, ETag: result.ETag, Size: result.ActualBytes})
}

type completeRequest struct {
	Parts []struct {
		PartNumber int32  `json:"partNumber"`
		ETag       string `json:"etag"`
		Size       int64  `json:"size"`
	} `json:"parts"`
}

// Complete implements `POST /files/multipart/{sessionID}/complete`.
func (h *MultipartHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	tokenString, ok := extractBearerToken(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	manifest := make([]storage.Part, len(req.Parts))
	for i, part := range req.Parts {
		manifest[i] = storage.Part{PartNumber: part.PartNumber, ETag: part.ETag}
	}

	node, err := h.coordinator.Complete(r.Context(), tokenString, sessionID, manifest, h.commitFileNode(ownerID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(node))
}

// commitFileNode closes over the storage service to build the FileNode
// commit callback multipart.Coordinator.Complete calls once the provider
// has assembled the object.
func (h *MultipartHandler) commitFileNode(ownerID string) func(ctx context.Context, claims multipart.Claims) (*hierarchy.FileNode, error) {
	return func(ctx context.Context, claims multipart.Claims) (*hierarchy.FileNode, error) {
		return h.storage.CommitMultipartUpload(ctx, ownerID, claims)
	}
}

// Abort implements `DELETE /files/multipart/{sessionID}/abort`.
func (h *MultipartHandler) Abort(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	tokenString, ok := extractBearerToken(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	if err := h.coordinator.Abort(r.Context(), tokenString, sessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
