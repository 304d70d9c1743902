package hierarchy

import (
	"time"

	"gorm.io/gorm"
)

// FileNode is the single entity for both files and directories (spec §3).
type FileNode struct {
	ID         string  `gorm:"primaryKey"`
	OwnerID    string  `gorm:"not null;index:idx_owner_parent"`
	ParentID   *string `gorm:"index:idx_owner_parent"`
	Name       string  `gorm:"not null"`
	ContentType string `gorm:"column:content_type"`
	Size       int64   `gorm:"not null;default:0"`
	IsDirectory bool   `gorm:"not null;default:false"`
	IsFavorite  bool   `gorm:"not null;default:false"`
	IsShared    bool   `gorm:"not null;default:false"`

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastModifiedAt time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (FileNode) TableName() string { return "file_nodes" }

// IsTrashed reports whether this node has been soft-deleted.
func (n FileNode) IsTrashed() bool {
	return n.DeletedAt.Valid
}
