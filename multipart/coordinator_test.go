package multipart_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/clock"
	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/multipart"
	"github.com/vaultdrive/vaultdrive/quota"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// fakeProvider is an in-memory multipart.Provider stand-in; it implements
// only the multipart methods.
type fakeProvider struct {
	mu        sync.Mutex
	aborted   []string
	completed []string
}

func (f *fakeProvider) InitiateMultipart(ctx context.Context, ownerID, fileID string) (string, error) {
	return "upload-" + fileID, nil
}

func (f *fakeProvider) UploadPart(ctx context.Context, ownerID, fileID, uploadID string, partNumber int32, stream io.Reader, maxSize int64) (storage.UploadedPart, error) {
	data, err := io.ReadAll(stream)
	if err != nil {
		return storage.UploadedPart{}, xfererr.Wrap(xfererr.OversizeStream, err)
	}
	return storage.UploadedPart{PartNumber: partNumber, ETag: "etag", ActualBytes: int64(len(data))}, nil
}

func (f *fakeProvider) CompleteMultipart(ctx context.Context, ownerID, fileID, uploadID string, parts []storage.Part) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, uploadID)
	return nil
}

func (f *fakeProvider) AbortMultipart(ctx context.Context, ownerID, fileID, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	return nil
}

func newTestCoordinator(t *testing.T) (*multipart.Coordinator, *fakeProvider, *gorm.DB, string) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&quota.Tier{}, &quota.UserQuota{}, &hierarchy.FileNode{}, &multipart.Session{}))

	tier := quota.Tier{ID: uuid.NewString(), Name: uuid.NewString(), LimitBytes: 10_000_000}
	require.NoError(t, db.Create(&tier).Error)
	ownerID := uuid.NewString()
	require.NoError(t, db.Create(&quota.UserQuota{OwnerID: ownerID, TierID: tier.ID}).Error)

	ledger := quota.NewLedger(db)
	index := hierarchy.NewIndex(db)
	provider := &fakeProvider{}
	signer, err := multipart.NewSigner(strings.Repeat("s", 32), "vaultdrive-test")
	require.NoError(t, err)

	coordinator := multipart.New(db, provider, ledger, index, signer, clock.Real{}, logr.Discard(), nil)
	return coordinator, provider, db, ownerID
}

func TestInitiateReservesQuotaAndMintsToken(t *testing.T) {
	coordinator, _, db, ownerID := newTestCoordinator(t)

	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "movie.mp4", "video/mp4", 5_000_000, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.NotEmpty(t, result.FileID)

	var used quota.UserQuota
	require.NoError(t, db.Where("owner_id = ?", ownerID).First(&used).Error)
	require.EqualValues(t, 5_000_000, used.UsedBytes)
}

func TestInitiateOverQuotaFails(t *testing.T) {
	coordinator, _, _, ownerID := newTestCoordinator(t)

	_, err := coordinator.Initiate(t.Context(), ownerID, nil, "huge.bin", "application/octet-stream", 50_000_000, time.Now())
	require.True(t, xfererr.Is(err, xfererr.QuotaExceeded))
}

func TestUploadPartRejectsOutOfRangePartNumber(t *testing.T) {
	coordinator, _, _, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	_, err = coordinator.UploadPart(t.Context(), result.Token, result.SessionID, 0, 10, strings.NewReader("x"))
	require.True(t, xfererr.Is(err, xfererr.BadChunkSet))

	_, err = coordinator.UploadPart(t.Context(), result.Token, result.SessionID, 10001, 10, strings.NewReader("x"))
	require.True(t, xfererr.Is(err, xfererr.BadChunkSet))
}

func TestUploadPartRejectsMismatchedSession(t *testing.T) {
	coordinator, _, _, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	_, err = coordinator.UploadPart(t.Context(), result.Token, "wrong-session", 1, 1, strings.NewReader("x"))
	require.True(t, xfererr.Is(err, xfererr.Unauthorized))
}

func TestUploadPartRejectsOversizeChunk(t *testing.T) {
	coordinator, _, _, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	_, err = coordinator.UploadPart(t.Context(), result.Token, result.SessionID, 1, multipart.MaxChunkSize+1, strings.NewReader("x"))
	require.True(t, xfererr.Is(err, xfererr.OversizeStream))
}

func TestCompleteRejectsNonContiguousManifest(t *testing.T) {
	coordinator, _, _, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	manifest := []storage.Part{{PartNumber: 1, ETag: "a"}, {PartNumber: 3, ETag: "b"}}
	_, err = coordinator.Complete(t.Context(), result.Token, result.SessionID, manifest, func(ctx context.Context, claims multipart.Claims) (*hierarchy.FileNode, error) {
		t.Fatal("commit must not be called for an invalid manifest")
		return nil, nil
	})
	require.True(t, xfererr.Is(err, xfererr.BadChunkSet))
}

func TestCompleteCommitsAndDeletesSession(t *testing.T) {
	coordinator, provider, db, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	manifest := []storage.Part{{PartNumber: 2, ETag: "b"}, {PartNumber: 1, ETag: "a"}}
	node, err := coordinator.Complete(t.Context(), result.Token, result.SessionID, manifest, func(ctx context.Context, claims multipart.Claims) (*hierarchy.FileNode, error) {
		n := &hierarchy.FileNode{ID: claims.FileID, OwnerID: claims.OwnerID, Name: claims.Filename, Size: claims.TotalSize}
		require.NoError(t, db.Create(n).Error)
		return n, nil
	})
	require.NoError(t, err)
	require.Equal(t, result.FileID, node.ID)
	require.Len(t, provider.completed, 1)

	var remaining int64
	require.NoError(t, db.Model(&multipart.Session{}).Where("id = ?", result.SessionID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCompleteRejectsDuplicateCompletion(t *testing.T) {
	coordinator, _, db, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	require.NoError(t, db.Create(&hierarchy.FileNode{ID: result.FileID, OwnerID: ownerID, Name: "f.bin"}).Error)

	manifest := []storage.Part{{PartNumber: 1, ETag: "a"}}
	_, err = coordinator.Complete(t.Context(), result.Token, result.SessionID, manifest, func(ctx context.Context, claims multipart.Claims) (*hierarchy.FileNode, error) {
		t.Fatal("commit must not be called for a duplicate completion")
		return nil, nil
	})
	require.True(t, xfererr.Is(err, xfererr.Conflict))
}

func TestAbortReleasesQuotaAndDeletesSession(t *testing.T) {
	coordinator, provider, db, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	require.NoError(t, coordinator.Abort(t.Context(), result.Token, result.SessionID))

	var used quota.UserQuota
	require.NoError(t, db.Where("owner_id = ?", ownerID).First(&used).Error)
	require.Zero(t, used.UsedBytes)
	require.Len(t, provider.aborted, 1)

	var remaining int64
	require.NoError(t, db.Model(&multipart.Session{}).Where("id = ?", result.SessionID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestAbortIsIdempotent(t *testing.T) {
	coordinator, _, _, ownerID := newTestCoordinator(t)
	result, err := coordinator.Initiate(t.Context(), ownerID, nil, "f.bin", "application/octet-stream", 1000, time.Now())
	require.NoError(t, err)

	require.NoError(t, coordinator.Abort(t.Context(), result.Token, result.SessionID))
	require.NoError(t, coordinator.Abort(t.Context(), result.Token, result.SessionID))
}
