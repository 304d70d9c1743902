package multipart

import "time"

// Session is the audit/cleanup record for an in-flight multipart upload
// (spec §3). It exists purely so the expiry sweeper and operators can see
// and reclaim orphaned uploads; the hot path (UploadPart) never touches it.
type Session struct {
	ID         string `gorm:"primaryKey"`
	FileID     string `gorm:"not null;index"`
	UploadID   string `gorm:"not null"`
	OwnerID    string `gorm:"not null;index"`
	ParentID   *string
	Filename   string `gorm:"not null"`
	TotalSize  int64  `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (Session) TableName() string { return "multipart_sessions" }
