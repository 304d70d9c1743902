// Package hierarchy implements HierarchyIndex (spec §4.4): pure metadata
// operations against the FileNode store. Nothing here touches provider
// bytes or quota; it is the authorization and tree-shape primitive the
// orchestrator builds on.
package hierarchy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/xfererr"
)

// maxBreadcrumbDepth bounds the parent-pointer walk so a pathologically
// deep (or cyclic, were that ever possible) tree can't hang a request.
const maxBreadcrumbDepth = 512

// Index is the GORM-backed HierarchyIndex implementation.
type Index struct {
	db *gorm.DB
}

// NewIndex wraps db.
func NewIndex(db *gorm.DB) *Index {
	return &Index{db: db}
}

// EnsureUniqueName fails with xfererr.NameConflict if a non-deleted sibling
// of parentID already has name.
func (idx *Index) EnsureUniqueName(ctx context.Context, ownerID string, parentID *string, name string) error {
	q := idx.db.WithContext(ctx).Model(&FileNode{}).
		Where("owner_id = ? AND name = ?", ownerID, name)
	q = whereParent(q, parentID)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return classifyErr(err)
	}
	if count > 0 {
		return xfererr.Newf(xfererr.NameConflict, "a sibling named %q already exists", name)
	}
	return nil
}

// ValidateOwnership returns the node if it exists, belongs to ownerID, and
// is not soft-deleted; otherwise xfererr.NotFound.
func (idx *Index) ValidateOwnership(ctx context.Context, ownerID, fileID string) (*FileNode, error) {
	var node FileNode
	err := idx.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", fileID, ownerID).
		First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xfererr.New(xfererr.NotFound, "file not found")
		}
		return nil, classifyErr(err)
	}
	return &node, nil
}

// Breadcrumbs walks parent pointers from leafParentID to the root,
// returning an ordered path root-first. A nil leafParentID yields an empty
// path (the node is already at the root).
func (idx *Index) Breadcrumbs(ctx context.Context, ownerID string, leafParentID *string) ([]FileNode, error) {
	var path []FileNode
	currentID := leafParentID

	for depth := 0; currentID != nil; depth++ {
		if depth >= maxBreadcrumbDepth {
			return nil, xfererr.New(xfererr.Internal, "breadcrumb depth exceeded maximum")
		}
		var node FileNode
		if err := idx.db.WithContext(ctx).
			Where("id = ? AND owner_id = ?", *currentID, ownerID).
			First(&node).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, classifyErr(err)
		}
		path = append(path, node)
		currentID = node.ParentID
	}

	// reverse into root-first order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Descendants returns the subtree rooted at rootID, including the root
// itself, via a recursive query. Required by recursive hard-delete.
func (idx *Index) Descendants(ctx context.Context, ownerID, rootID string) ([]FileNode, error) {
	var nodes []FileNode
	err := idx.db.WithContext(ctx).Raw(`
		WITH RECURSIVE subtree AS (
			SELECT * FROM file_nodes WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
			UNION ALL
			SELECT fn.* FROM file_nodes fn
			INNER JOIN subtree s ON fn.parent_id = s.id
			WHERE fn.owner_id = ? AND fn.deleted_at IS NULL
		)
		SELECT * FROM subtree
	`, rootID, ownerID, ownerID).Scan(&nodes).Error
	if err != nil {
		return nil, classifyErr(err)
	}
	return nodes, nil
}

// List dispatches on filter.Kind per spec §4.4's ordering rules.
func (idx *Index) List(ctx context.Context, ownerID string, filter Filter) ([]FileNode, error) {
	var nodes []FileNode
	q := idx.db.WithContext(ctx).Model(&FileNode{}).Where("owner_id = ?", ownerID)

	switch filter.Kind {
	case FilterFolder:
		q = whereParent(q, filter.ParentID)
		q = q.Order("is_directory DESC").Order("name ASC")
	case FilterAll:
		q = q.Order("updated_at DESC")
	case FilterFavorites:
		q = q.Where("is_favorite = ?", true).Order("updated_at DESC")
	case FilterRecent:
		q = q.Where("is_directory = ?", false).Order("updated_at DESC").Limit(50)
	case FilterShared:
		q = q.Where("is_shared = ?", true).Order("updated_at DESC")
	case FilterTrash:
		q = q.Unscoped().Where("deleted_at IS NOT NULL").Order("deleted_at DESC")
	default:
		return nil, xfererr.Newf(xfererr.Internal, "unknown filter kind %d", filter.Kind)
	}

	if err := q.Find(&nodes).Error; err != nil {
		return nil, classifyErr(err)
	}
	return nodes, nil
}

func whereParent(q *gorm.DB, parentID *string) *gorm.DB {
	if parentID == nil {
		return q.Where("parent_id IS NULL")
	}
	return q.Where("parent_id = ?", *parentID)
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var alreadyClassified *xfererr.Error
	if errors.As(err, &alreadyClassified) {
		return err
	}
	return xfererr.Wrap(xfererr.ProviderTransient, err)
}
