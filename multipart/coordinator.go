// Package multipart implements the stateless multipart upload protocol
// (spec §4.6): a signed-token session design that lets clients push
// chunks in parallel with zero per-chunk database work, while still
// preventing replay, double-completion, and orphaned storage.
package multipart

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/bytelimit"
	"github.com/vaultdrive/vaultdrive/clock"
	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/quota"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// Provider narrows storage.Provider to the operations the coordinator
// drives directly.
type Provider interface {
	InitiateMultipart(ctx context.Context, ownerID, fileID string) (string, error)
	UploadPart(ctx context.Context, ownerID, fileID, uploadID string, partNumber int32, stream io.Reader, maxSize int64) (storage.UploadedPart, error)
	CompleteMultipart(ctx context.Context, ownerID, fileID, uploadID string, parts []storage.Part) error
	AbortMultipart(ctx context.Context, ownerID, fileID, uploadID string) error
}

// InitiateResult is the payload returned to the client per spec §4.6.1.
type InitiateResult struct {
	SessionID    string
	FileID       string
	UploadID     string
	MaxChunkSize int64
	Token        string
}

// PartResult is returned to the client after a part upload per §4.6.2.
type PartResult struct {
	PartNumber  int32
	ETag        string
	ActualBytes int64
}

// Coordinator implements MultipartCoordinator.
type Coordinator struct {
	db       *gorm.DB
	provider Provider
	quota    *quota.Ledger
	index    *hierarchy.Index
	signer   *Signer
	clock    clock.Clock
	logger   logr.Logger
	metrics  *Metrics
}

// New builds a Coordinator. metrics may be nil, in which case nothing is
// recorded.
func New(db *gorm.DB, provider Provider, ledger *quota.Ledger, index *hierarchy.Index, signer *Signer, clk clock.Clock, logger logr.Logger, metrics *Metrics) *Coordinator {
	return &Coordinator{
		db:       db,
		provider: provider,
		quota:    ledger,
		index:    index,
		signer:   signer,
		clock:    clk,
		logger:   logger.WithName("multipart"),
		metrics:  metrics,
	}
}

// Initiate implements spec §4.6.1.
func (c *Coordinator) Initiate(ctx context.Context, ownerID string, parentID *string, filename, contentType string, totalSize int64, clientModifiedAt time.Time) (*InitiateResult, error) {
	if parentID != nil {
		if _, err := c.index.ValidateOwnership(ctx, ownerID, *parentID); err != nil {
			return nil, err
		}
	}
	if err := c.index.EnsureUniqueName(ctx, ownerID, parentID, filename); err != nil {
		return nil, err
	}

	if err := c.quota.Reserve(ctx, ownerID, totalSize); err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	uploadID, err := c.provider.InitiateMultipart(ctx, ownerID, fileID)
	if err != nil {
		c.releaseBestEffort(ctx, ownerID, totalSize)
		return nil, err
	}

	now := c.clock.Now()
	session := Session{
		ID:        uuid.NewString(),
		FileID:    fileID,
		UploadID:  uploadID,
		OwnerID:   ownerID,
		ParentID:  parentID,
		Filename:  filename,
		TotalSize: totalSize,
		ExpiresAt: now.Add(tokenTTL),
		CreatedAt: now,
	}
	if err := c.db.WithContext(ctx).Create(&session).Error; err != nil {
		c.abortBestEffort(ctx, ownerID, fileID, uploadID)
		c.releaseBestEffort(ctx, ownerID, totalSize)
		return nil, xfererr.Wrap(xfererr.ProviderTransient, err)
	}

	claims := Claims{
		SessionID:        session.ID,
		FileID:           fileID,
		ProviderUploadID: uploadID,
		OwnerID:          ownerID,
		Filename:         filename,
		ContentType:      contentType,
		TotalSize:        totalSize,
		MaxChunkSize:     MaxChunkSize,
		ParentID:         parentID,
		ClientModifiedAt: clientModifiedAt,
	}
	token, _, err := c.signer.Mint(claims, now)
	if err != nil {
		c.abortBestEffort(ctx, ownerID, fileID, uploadID)
		c.releaseBestEffort(ctx, ownerID, totalSize)
		if delErr := c.db.WithContext(ctx).Delete(&Session{}, "id = ?", session.ID).Error; delErr != nil {
			c.logger.Error(delErr, "failed to delete multipart session after token mint failure", "sessionID", session.ID)
		}
		return nil, err
	}

	return &InitiateResult{
		SessionID:    session.ID,
		FileID:       fileID,
		UploadID:     uploadID,
		MaxChunkSize: MaxChunkSize,
		Token:        token,
	}, nil
}

// UploadPart implements spec §4.6.2, the hot path: zero database rows
// touched. tokenString and urlSessionID come from the request; partNumber
// and contentLength are validated before any bytes are read.
func (c *Coordinator) UploadPart(ctx context.Context, tokenString, urlSessionID string, partNumber int32, contentLength int64, stream io.Reader) (*PartResult, error) {
	claims, err := c.signer.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != urlSessionID {
		return nil, xfererr.New(xfererr.Unauthorized, "token does not match this upload session")
	}
	if partNumber < 1 || partNumber > MaxPartNumber {
		return nil, xfererr.Newf(xfererr.BadChunkSet, "part number %d out of range [1,%d]", partNumber, MaxPartNumber)
	}
	if contentLength > claims.MaxChunkSize {
		return nil, xfererr.Newf(xfererr.OversizeStream, "chunk of %d bytes exceeds max chunk size %d", contentLength, claims.MaxChunkSize)
	}

	counted := bytelimit.New(stream, contentLength)
	uploaded, err := c.provider.UploadPart(ctx, claims.OwnerID, claims.FileID, claims.ProviderUploadID, partNumber, counted, contentLength)
	if err != nil {
		c.metrics.recordPart("failed")
		return nil, err
	}
	c.metrics.recordPart("succeeded")

	return &PartResult{
		PartNumber:  uploaded.PartNumber,
		ETag:        uploaded.ETag,
		ActualBytes: uploaded.ActualBytes,
	}, nil
}

// Complete implements spec §4.6.3. commit persists the FileNode from
// token claims once the provider confirms the manifest; it is supplied by
// the caller (service.Storage owns FileNode persistence) to keep this
// package free of a direct dependency on the hierarchy write path.
func (c *Coordinator) Complete(ctx context.Context, tokenString, urlSessionID string, manifest []storage.Part, commit func(ctx context.Context, claims Claims) (*hierarchy.FileNode, error)) (*hierarchy.FileNode, error) {
	claims, err := c.signer.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != urlSessionID {
		return nil, xfererr.New(xfererr.Unauthorized, "token does not match this upload session")
	}

	if _, err := c.index.ValidateOwnership(ctx, claims.OwnerID, claims.FileID); err == nil {
		return nil, xfererr.New(xfererr.Conflict, "this upload has already been completed")
	} else if !xfererr.Is(err, xfererr.NotFound) {
		return nil, err
	}

	sorted, err := sortContiguousManifest(manifest)
	if err != nil {
		return nil, err
	}

	if err := c.provider.CompleteMultipart(ctx, claims.OwnerID, claims.FileID, claims.ProviderUploadID, sorted); err != nil {
		return nil, err
	}

	node, err := commit(ctx, *claims)
	if err != nil {
		return nil, err
	}

	if err := c.deleteSession(ctx, claims.SessionID); err != nil {
		c.logger.Error(err, "failed to delete completed multipart session", "sessionID", claims.SessionID)
	}
	c.metrics.recordSessionFinished("completed")
	return node, nil
}

// Abort implements spec §4.6.4. Every step is best-effort; the expiry
// sweeper is the safety net for whatever fails here.
func (c *Coordinator) Abort(ctx context.Context, tokenString, urlSessionID string) error {
	claims, err := c.signer.Verify(tokenString)
	if err != nil {
		return err
	}
	if claims.SessionID != urlSessionID {
		return xfererr.New(xfererr.Unauthorized, "token does not match this upload session")
	}

	c.releaseBestEffort(ctx, claims.OwnerID, claims.TotalSize)
	c.abortBestEffort(ctx, claims.OwnerID, claims.FileID, claims.ProviderUploadID)
	if err := c.deleteSession(ctx, claims.SessionID); err != nil {
		c.logger.Error(err, "failed to delete aborted multipart session", "sessionID", claims.SessionID)
	}
	c.metrics.recordSessionFinished("aborted")
	return nil
}

func (c *Coordinator) deleteSession(ctx context.Context, sessionID string) error {
	return c.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&Session{}).Error
}

func (c *Coordinator) releaseBestEffort(ctx context.Context, ownerID string, amount int64) {
	if err := c.quota.Release(ctx, ownerID, amount); err != nil {
		c.logger.Error(err, "failed to release reserved quota", "ownerID", ownerID, "amount", amount)
	}
}

func (c *Coordinator) abortBestEffort(ctx context.Context, ownerID, fileID, uploadID string) {
	if err := c.provider.AbortMultipart(ctx, ownerID, fileID, uploadID); err != nil {
		c.logger.Error(err, "failed to abort provider multipart upload", "ownerID", ownerID, "fileID", fileID, "uploadID", uploadID)
	}
}

// sortContiguousManifest validates that parts form {1..N} with no gaps or
// duplicates (spec §4.6.3 step 3), then returns them in ascending order.
func sortContiguousManifest(manifest []storage.Part) ([]storage.Part, error) {
	if len(manifest) == 0 {
		return nil, xfererr.New(xfererr.BadChunkSet, "completion manifest is empty")
	}

	sorted := append([]storage.Part(nil), manifest...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	for i, part := range sorted {
		want := int32(i + 1)
		if part.PartNumber != want {
			return nil, xfererr.Newf(xfererr.BadChunkSet, "manifest part numbers must form a contiguous set starting at 1, got %d at position %d", part.PartNumber, want)
		}
	}
	return sorted, nil
}
