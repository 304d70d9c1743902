package hierarchy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/xfererr"
)

// Create inserts a new node.
func (idx *Index) Create(ctx context.Context, node *FileNode) error {
	if err := idx.db.WithContext(ctx).Create(node).Error; err != nil {
		return classifyErr(err)
	}
	return nil
}

// Save persists every mutable field of node (rename/move/favorite/content
// update all funnel through this single write path).
func (idx *Index) Save(ctx context.Context, node *FileNode) error {
	if err := idx.db.WithContext(ctx).Save(node).Error; err != nil {
		return classifyErr(err)
	}
	return nil
}

// SoftDelete marks a node deleted_at = now via GORM's soft-delete hook.
// Idempotent: soft-deleting an already-deleted node is a no-op.
func (idx *Index) SoftDelete(ctx context.Context, ownerID, fileID string) error {
	err := idx.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", fileID, ownerID).
		Delete(&FileNode{}).Error
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// Restore clears deleted_at on a trashed node and returns it.
func (idx *Index) Restore(ctx context.Context, ownerID, fileID string) (*FileNode, error) {
	var node FileNode
	err := idx.db.WithContext(ctx).Unscoped().
		Where("id = ? AND owner_id = ?", fileID, ownerID).
		First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xfererr.New(xfererr.NotFound, "file not found")
		}
		return nil, classifyErr(err)
	}
	if !node.IsTrashed() {
		return &node, nil
	}

	err = idx.db.WithContext(ctx).Unscoped().Model(&node).
		Update("deleted_at", nil).Error
	if err != nil {
		return nil, classifyErr(err)
	}
	node.DeletedAt = gorm.DeletedAt{}
	return &node, nil
}

// HardDeleteIDs permanently removes the given rows within a single
// transaction, in the order supplied (callers pass children-first so
// foreign-key constraints, where present, hold).
func (idx *Index) HardDeleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := tx.Unscoped().Where("id = ?", id).Delete(&FileNode{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// WithTransaction runs fn inside a single database transaction, for
// operations spec §4.5 requires atomic (recursive delete, directory
// create).
func (idx *Index) WithTransaction(ctx context.Context, fn func(tx *Index) error) error {
	err := idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Index{db: tx})
	})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}
