package quota

import "time"

// Tier defines the storage ceiling attached to a user account.
type Tier struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex;not null"`
	LimitBytes int64  `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Tier) TableName() string { return "tiers" }

// UserQuota tracks how many bytes an owner has reserved against their
// tier's limit. UsedBytes is the single source of truth reserve/release/
// adjust operate on; it is never derived by summing FileNode sizes on the
// hot path.
type UserQuota struct {
	OwnerID   string `gorm:"primaryKey"`
	TierID    string `gorm:"not null;index"`
	Tier      Tier   `gorm:"foreignKey:TierID"`
	UsedBytes int64  `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserQuota) TableName() string { return "user_quotas" }
