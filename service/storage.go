// Package service implements StorageService (spec §4.5): the orchestrator
// composing storage.Provider, quota.Ledger, and hierarchy.Index into the
// user-visible operations. It owns every compensation/rollback path —
// every write here follows the same discipline: validate, reserve, stream,
// reconcile, commit, and on any failure compensate backwards.
package service

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vaultdrive/vaultdrive/clock"
	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/internal/fileutils"
	"github.com/vaultdrive/vaultdrive/multipart"
	"github.com/vaultdrive/vaultdrive/quota"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// mib is the tolerance unit named throughout spec §4.5.1/§4.5.2.
const mib = 1024 * 1024

// hardDeleteConcurrency bounds how many provider.Delete calls HardDelete
// runs in parallel while reclaiming a subtree's objects.
const hardDeleteConcurrency = 10

// hardTolerance is the absolute ceiling spec §4.5.1 step 5 checks against,
// independent of the percentage-based soft tolerance used to size the
// provider write ceiling.
const hardTolerance = 1 * mib

// directoryContentType is the content type spec §3 reserves for directory
// nodes.
const directoryContentType = "directory"

// Storage implements StorageService.
type Storage struct {
	provider storage.Provider
	quota    *quota.Ledger
	index    *hierarchy.Index
	clock    clock.Clock
	events   EventSink
	logger   logr.Logger
	metrics  *Metrics
}

// New builds a Storage orchestrator. events may be NoopSink{}; metrics may
// be nil.
func New(provider storage.Provider, ledger *quota.Ledger, index *hierarchy.Index, clk clock.Clock, events EventSink, logger logr.Logger, metrics *Metrics) *Storage {
	if events == nil {
		events = NoopSink{}
	}
	return &Storage{
		provider: provider,
		quota:    ledger,
		index:    index,
		clock:    clk,
		events:   events,
		logger:   logger.WithName("service"),
		metrics:  metrics,
	}
}

// maxAllowed computes the soft write ceiling spec §4.5.1 step 2: claimed
// plus the larger of 5% of claimed or 1 MiB, absorbing transport-encoding
// overhead without false positives.
func maxAllowed(claimed int64) int64 {
	tolerance := claimed / 20
	if tolerance < mib {
		tolerance = mib
	}
	return claimed + tolerance
}

// UploadInput gathers the caller-supplied facts for Upload.
type UploadInput struct {
	OwnerID          string
	ParentID         *string
	Filename         string
	ContentType      string
	ClaimedSize      int64
	Stream           io.Reader
	ClientModifiedAt time.Time
}

// Upload implements spec §4.5.1.
func (s *Storage) Upload(ctx context.Context, in UploadInput) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	if in.ParentID != nil {
		if _, err := s.index.ValidateOwnership(ctx, in.OwnerID, *in.ParentID); err != nil {
			return nil, s.finish("upload", start, err)
		}
	}
	if err := s.index.EnsureUniqueName(ctx, in.OwnerID, in.ParentID, in.Filename); err != nil {
		return nil, s.finish("upload", start, err)
	}

	if err := s.quota.Reserve(ctx, in.OwnerID, in.ClaimedSize); err != nil {
		return nil, s.finish("upload", start, err)
	}

	fileID := uuid.NewString()
	actualBytes, err := s.provider.Save(ctx, in.OwnerID, fileID, in.Stream, maxAllowed(in.ClaimedSize))
	if err != nil {
		s.releaseBestEffort(ctx, in.OwnerID, in.ClaimedSize)
		return nil, s.finish("upload", start, err)
	}

	if actualBytes > in.ClaimedSize+hardTolerance {
		s.deleteBestEffort(ctx, in.OwnerID, fileID)
		s.releaseBestEffort(ctx, in.OwnerID, in.ClaimedSize)
		return nil, s.finish("upload", start, xfererr.Newf(xfererr.SizeMismatch,
			"actual %d bytes exceeds claimed %d bytes by more than %d bytes", actualBytes, in.ClaimedSize, hardTolerance))
	}

	if in.ClaimedSize-actualBytes > hardTolerance {
		s.releaseBestEffort(ctx, in.OwnerID, in.ClaimedSize-actualBytes)
	}

	now := s.clock.Now()
	node := &hierarchy.FileNode{
		ID:             fileID,
		OwnerID:        in.OwnerID,
		ParentID:       in.ParentID,
		Name:           in.Filename,
		ContentType:    in.ContentType,
		Size:           actualBytes,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedAt: in.ClientModifiedAt,
	}
	if err := s.index.Create(ctx, node); err != nil {
		s.deleteBestEffort(ctx, in.OwnerID, fileID)
		s.releaseBestEffort(ctx, in.OwnerID, actualBytes)
		return nil, s.finish("upload", start, err)
	}

	s.appendEvent(ctx, in.OwnerID, fileID, EventUploaded, false)
	return node, s.finish("upload", start, nil)
}

// UpdateContentInput gathers the caller-supplied facts for UpdateContent.
type UpdateContentInput struct {
	OwnerID          string
	FileID           string
	ClaimedSize      int64
	ContentType      string
	Stream           io.Reader
	ClientModifiedAt time.Time
}

// UpdateContent implements spec §4.5.2.
func (s *Storage) UpdateContent(ctx context.Context, in UpdateContentInput) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	node, err := s.index.ValidateOwnership(ctx, in.OwnerID, in.FileID)
	if err != nil {
		return nil, s.finish("update_content", start, err)
	}
	if node.IsDirectory {
		return nil, s.finish("update_content", start, xfererr.New(xfererr.Conflict, "cannot overwrite the content of a directory"))
	}

	existingSize := node.Size
	estimatedDelta := in.ClaimedSize - existingSize
	reserved := int64(0)
	if estimatedDelta > 0 {
		if err := s.quota.Reserve(ctx, in.OwnerID, estimatedDelta); err != nil {
			return nil, s.finish("update_content", start, err)
		}
		reserved = estimatedDelta
	}

	actualBytes, err := s.provider.Save(ctx, in.OwnerID, in.FileID, in.Stream, maxAllowed(in.ClaimedSize))
	if err != nil {
		if reserved > 0 {
			s.releaseBestEffort(ctx, in.OwnerID, reserved)
		}
		return nil, s.finish("update_content", start, err)
	}

	actualDelta := actualBytes - existingSize
	switch {
	case actualDelta > estimatedDelta:
		if err := s.quota.Reserve(ctx, in.OwnerID, actualDelta-estimatedDelta); err != nil {
			return nil, s.finish("update_content", start, err)
		}
	case actualDelta < estimatedDelta:
		s.releaseBestEffort(ctx, in.OwnerID, estimatedDelta-actualDelta)
	}

	node.Size = actualBytes
	node.ContentType = in.ContentType
	node.UpdatedAt = s.clock.Now()
	node.LastModifiedAt = in.ClientModifiedAt
	if err := s.index.Save(ctx, node); err != nil {
		// The provider object is already in its new state and cannot be
		// reverted cheaply; accepted inconsistency per spec §9 — log loudly.
		s.logger.Error(err, "metadata commit failed after provider write succeeded; provider object is ahead of metadata",
			"ownerID", in.OwnerID, "fileID", in.FileID)
		s.releaseBestEffort(ctx, in.OwnerID, actualDelta)
		return nil, s.finish("update_content", start, err)
	}

	s.appendEvent(ctx, in.OwnerID, in.FileID, EventContentUpdated, true)
	return node, s.finish("update_content", start, nil)
}

// Move implements spec §4.5.3's move: validates ownership of both the node
// and the new parent, refuses a non-directory target, and reruns
// ensure_unique_name against the destination.
func (s *Storage) Move(ctx context.Context, ownerID, fileID string, newParentID *string) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, s.finish("move", start, err)
	}

	if newParentID != nil {
		if *newParentID == fileID {
			return nil, s.finish("move", start, xfererr.New(xfererr.Conflict, "cannot move a node into itself"))
		}
		parent, err := s.index.ValidateOwnership(ctx, ownerID, *newParentID)
		if err != nil {
			return nil, s.finish("move", start, err)
		}
		if !parent.IsDirectory {
			return nil, s.finish("move", start, xfererr.New(xfererr.Conflict, "move target is not a directory"))
		}
		if node.IsDirectory {
			if err := s.rejectMoveIntoOwnDescendant(ctx, ownerID, fileID, *newParentID); err != nil {
				return nil, s.finish("move", start, err)
			}
		}
	}

	if err := s.index.EnsureUniqueName(ctx, ownerID, newParentID, node.Name); err != nil {
		return nil, s.finish("move", start, err)
	}

	node.ParentID = newParentID
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Save(ctx, node); err != nil {
		return nil, s.finish("move", start, err)
	}

	s.appendEvent(ctx, ownerID, fileID, EventMoved, false)
	return node, s.finish("move", start, nil)
}

// rejectMoveIntoOwnDescendant resolves Open Question #1 (SPEC_FULL §5):
// moving a directory into one of its own descendants is rejected with
// Conflict rather than silently corrupting the tree.
func (s *Storage) rejectMoveIntoOwnDescendant(ctx context.Context, ownerID, fileID, destinationParentID string) error {
	subtree, err := s.index.Descendants(ctx, ownerID, fileID)
	if err != nil {
		return err
	}
	for _, descendant := range subtree {
		if descendant.ID == destinationParentID {
			return xfererr.New(xfererr.Conflict, "cannot move a directory into one of its own descendants")
		}
	}
	return nil
}

// Rename implements spec §4.5.3's rename.
func (s *Storage) Rename(ctx context.Context, ownerID, fileID, newName string) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, s.finish("rename", start, err)
	}
	if node.Name == newName {
		return node, s.finish("rename", start, nil)
	}
	if err := s.index.EnsureUniqueName(ctx, ownerID, node.ParentID, newName); err != nil {
		return nil, s.finish("rename", start, err)
	}

	node.Name = newName
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Save(ctx, node); err != nil {
		return nil, s.finish("rename", start, err)
	}

	s.appendEvent(ctx, ownerID, fileID, EventRenamed, false)
	return node, s.finish("rename", start, nil)
}

// Favorite implements spec §4.5.3's favorite toggle.
func (s *Storage) Favorite(ctx context.Context, ownerID, fileID string, isFavorite bool) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, s.finish("favorite", start, err)
	}

	node.IsFavorite = isFavorite
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Save(ctx, node); err != nil {
		return nil, s.finish("favorite", start, err)
	}

	s.appendEvent(ctx, ownerID, fileID, EventFavorited, false)
	return node, s.finish("favorite", start, nil)
}

// SoftDelete moves a node to trash (spec §6's "Soft delete"; the metadata
// operation behind it is HierarchyIndex's own soft-delete support).
func (s *Storage) SoftDelete(ctx context.Context, ownerID, fileID string) error {
	start := s.clock.Now()

	if _, err := s.index.ValidateOwnership(ctx, ownerID, fileID); err != nil {
		return s.finish("soft_delete", start, err)
	}
	if err := s.index.SoftDelete(ctx, ownerID, fileID); err != nil {
		return s.finish("soft_delete", start, err)
	}

	s.appendEvent(ctx, ownerID, fileID, EventSoftDeleted, false)
	return s.finish("soft_delete", start, nil)
}

// HardDelete implements spec §4.5.4: recursive hard delete.
func (s *Storage) HardDelete(ctx context.Context, ownerID, fileID string) error {
	start := s.clock.Now()

	subtree, err := s.index.Descendants(ctx, ownerID, fileID)
	if err != nil {
		return s.finish("hard_delete", start, err)
	}
	if len(subtree) == 0 {
		return s.finish("hard_delete", start, xfererr.New(xfererr.NotFound, "file not found"))
	}

	var reclaim atomic.Int64
	sem := semaphore.NewWeighted(hardDeleteConcurrency)
	var eg errgroup.Group
	for _, node := range subtree {
		if node.IsDirectory {
			continue
		}
		reclaim.Add(node.Size)
		eg.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			if err := s.provider.Delete(ctx, ownerID, node.ID); err != nil {
				// Best-effort: we prefer orphaned bytes to orphaned metadata,
				// per spec §4.5.4 step 3.
				s.logger.Error(err, "failed to delete provider object during recursive delete", "ownerID", ownerID, "fileID", node.ID)
			}
			return nil
		})
	}
	_ = eg.Wait()

	ids := childrenFirstOrder(subtree)
	err = s.index.WithTransaction(ctx, func(tx *hierarchy.Index) error {
		if err := tx.HardDeleteIDs(ctx, ids); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return s.finish("hard_delete", start, err)
	}

	if err := s.quota.Release(ctx, ownerID, reclaim.Load()); err != nil {
		s.logger.Error(err, "failed to release reclaimed quota after hard delete", "ownerID", ownerID, "fileID", fileID)
	}
	s.metrics.recordReclaimed(reclaim.Load())

	s.appendEvent(ctx, ownerID, fileID, EventHardDeleted, false)
	return s.finish("hard_delete", start, nil)
}

// childrenFirstOrder reverses the root-first order Descendants returns
// (root, then breadth/depth of children as the recursive query emits them)
// so deletes run children before parents.
func childrenFirstOrder(nodes []hierarchy.FileNode) []string {
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[len(nodes)-1-i] = node.ID
	}
	return ids
}

// Restore implements spec §4.5.5.
func (s *Storage) Restore(ctx context.Context, ownerID, fileID string) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	node, err := s.index.Restore(ctx, ownerID, fileID)
	if err != nil {
		return nil, s.finish("restore", start, err)
	}

	destinationParent := node.ParentID
	if destinationParent != nil {
		if _, err := s.index.ValidateOwnership(ctx, ownerID, *destinationParent); err != nil {
			destinationParent = nil
		}
	}

	siblings, err := s.index.List(ctx, ownerID, hierarchy.Filter{Kind: hierarchy.FilterFolder, ParentID: destinationParent})
	if err != nil {
		return nil, s.finish("restore", start, err)
	}
	taken := make(map[string]bool, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID != node.ID {
			taken[sibling.Name] = true
		}
	}
	name := node.Name
	for taken[name] {
		name = appendRestoredSuffix(name)
	}

	node.ParentID = destinationParent
	node.Name = name
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Save(ctx, node); err != nil {
		return nil, s.finish("restore", start, err)
	}

	s.appendEvent(ctx, ownerID, fileID, EventRestored, false)
	return node, s.finish("restore", start, nil)
}

// appendRestoredSuffix appends " (restored)" before the extension (spec
// §4.5.5), repeatable on successive collisions.
func appendRestoredSuffix(name string) string {
	return fileutils.WithSuffix(name, " (restored)")
}

// CreateDirectory implements spec §4.5.6.
func (s *Storage) CreateDirectory(ctx context.Context, ownerID string, parentID *string, name string) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	if parentID != nil {
		if _, err := s.index.ValidateOwnership(ctx, ownerID, *parentID); err != nil {
			return nil, s.finish("create_directory", start, err)
		}
	}
	if err := s.index.EnsureUniqueName(ctx, ownerID, parentID, name); err != nil {
		return nil, s.finish("create_directory", start, err)
	}

	now := s.clock.Now()
	node := &hierarchy.FileNode{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ParentID:       parentID,
		Name:           name,
		ContentType:    directoryContentType,
		Size:           0,
		IsDirectory:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedAt: now,
	}

	err := s.index.WithTransaction(ctx, func(tx *hierarchy.Index) error {
		return tx.Create(ctx, node)
	})
	if err != nil {
		return nil, s.finish("create_directory", start, err)
	}

	s.appendEvent(ctx, ownerID, node.ID, EventDirectoryCreated, false)
	return node, s.finish("create_directory", start, nil)
}

// List delegates to HierarchyIndex, implementing the listing half of
// spec §6.
func (s *Storage) List(ctx context.Context, ownerID string, filter hierarchy.Filter) ([]hierarchy.FileNode, error) {
	return s.index.List(ctx, ownerID, filter)
}

// Get returns a single node, implementing spec §6's "Show" operation.
func (s *Storage) Get(ctx context.Context, ownerID, fileID string) (*hierarchy.FileNode, error) {
	return s.index.ValidateOwnership(ctx, ownerID, fileID)
}

// CommitMultipartUpload persists the FileNode for a completed multipart
// session (spec §4.6.3's "commit FileNode from token claims" step). The
// size committed is the claimed total size from Initiate, already fully
// reserved against quota at that point; MultipartCoordinator.Complete only
// calls this after the provider has assembled the object from a verified
// contiguous manifest.
func (s *Storage) CommitMultipartUpload(ctx context.Context, ownerID string, claims multipart.Claims) (*hierarchy.FileNode, error) {
	start := s.clock.Now()

	now := s.clock.Now()
	node := &hierarchy.FileNode{
		ID: claims.FileID, OwnerID: ownerID, ParentID: claims.ParentID, Name: claims.Filename,
		ContentType: claims.ContentType, Size: claims.TotalSize,
		CreatedAt: now, UpdatedAt: now, LastModifiedAt: claims.ClientModifiedAt,
	}
	if err := s.index.Create(ctx, node); err != nil {
		return nil, s.finish("multipart_commit", start, err)
	}

	s.appendEvent(ctx, ownerID, claims.FileID, EventUploaded, false)
	return node, s.finish("multipart_commit", start, nil)
}

// Breadcrumbs delegates to HierarchyIndex for the listing response shape
// spec §6 names (`{files, parentID, breadcrumbs}`).
func (s *Storage) Breadcrumbs(ctx context.Context, ownerID string, parentID *string) ([]hierarchy.FileNode, error) {
	return s.index.Breadcrumbs(ctx, ownerID, parentID)
}

// Download opens a ranged or full byte stream for a file, validating
// ownership first.
func (s *Storage) Download(ctx context.Context, ownerID, fileID string, byteRange *storage.Range) (storage.RangedObject, *hierarchy.FileNode, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return storage.RangedObject{}, nil, err
	}
	if node.IsDirectory {
		return storage.RangedObject{}, nil, xfererr.New(xfererr.Conflict, "cannot download a directory")
	}

	object, err := s.provider.GetResponse(ctx, ownerID, fileID, byteRange)
	if err != nil {
		return storage.RangedObject{}, nil, err
	}
	return object, node, nil
}

func (s *Storage) releaseBestEffort(ctx context.Context, ownerID string, amount int64) {
	if err := s.quota.Release(ctx, ownerID, amount); err != nil {
		s.logger.Error(err, "failed to release reserved quota", "ownerID", ownerID, "amount", amount)
	}
}

func (s *Storage) deleteBestEffort(ctx context.Context, ownerID, fileID string) {
	if err := s.provider.Delete(ctx, ownerID, fileID); err != nil {
		s.logger.Error(err, "failed to delete provider object during compensation", "ownerID", ownerID, "fileID", fileID)
	}
}

func (s *Storage) appendEvent(ctx context.Context, ownerID, fileID string, kind EventKind, contentUpdated bool) {
	if err := s.events.Append(ctx, SyncEvent{OwnerID: ownerID, FileID: fileID, Kind: kind, ContentUpdated: contentUpdated}); err != nil {
		s.logger.Error(err, "failed to append sync event", "ownerID", ownerID, "fileID", fileID, "kind", kind)
	}
}

func (s *Storage) finish(operation string, start time.Time, err error) error {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	s.metrics.record(operation, outcome, s.clock.Now().Sub(start).Seconds())
	return err
}
