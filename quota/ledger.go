// Package quota implements QuotaLedger (spec §4.3): three atomic
// operations against a user's used_bytes row, each a single conditional
// UPDATE so concurrent callers are serialized by the database rather than
// an application-level lock.
package quota

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/xfererr"
)

// Ledger is the QuotaLedger implementation backed by GORM.
type Ledger struct {
	db *gorm.DB
}

// NewLedger wraps db. db is expected to already have UserQuota/Tier
// migrated in (see cmd/vaultdrived's composition root).
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve succeeds iff used_bytes + amount <= the user's tier limit, and on
// success increments used_bytes by amount in the same statement. Fails with
// xfererr.QuotaExceeded when the row exists but the limit would be
// exceeded, or xfererr.NotFound if the owner has no quota row.
func (l *Ledger) Reserve(ctx context.Context, ownerID string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	result := l.db.WithContext(ctx).Exec(`
		UPDATE user_quotas
		SET used_bytes = used_bytes + ?
		WHERE owner_id = ?
		  AND used_bytes + ? <= (SELECT limit_bytes FROM tiers WHERE tiers.id = user_quotas.tier_id)
	`, amount, ownerID, amount)
	if result.Error != nil {
		return classifyErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return l.classifyZeroRowUpdate(ctx, ownerID)
	}
	return nil
}

// Release decrements used_bytes by amount, clamping at zero so an
// over-releasing compensation path can never underflow the row.
func (l *Ledger) Release(ctx context.Context, ownerID string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	result := l.db.WithContext(ctx).Exec(`
		UPDATE user_quotas
		SET used_bytes = CASE WHEN used_bytes - ? < 0 THEN 0 ELSE used_bytes - ? END
		WHERE owner_id = ?
	`, amount, amount, ownerID)
	if result.Error != nil {
		return classifyErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return xfererr.New(xfererr.NotFound, "quota row not found")
	}
	return nil
}

// Adjust applies a signed delta: a positive delta is quota-checked exactly
// like Reserve, a negative delta releases like Release.
func (l *Ledger) Adjust(ctx context.Context, ownerID string, delta int64) error {
	switch {
	case delta > 0:
		return l.Reserve(ctx, ownerID, delta)
	case delta < 0:
		return l.Release(ctx, ownerID, -delta)
	default:
		return nil
	}
}

// EnsureUser provisions a UserQuota row for ownerID against defaultTierID
// if one does not already exist. Idempotent: called from the auth
// middleware on every request, it is a no-op after the first.
func (l *Ledger) EnsureUser(ctx context.Context, ownerID, defaultTierID string) error {
	err := l.db.WithContext(ctx).
		Where(UserQuota{OwnerID: ownerID}).
		Attrs(UserQuota{TierID: defaultTierID}).
		FirstOrCreate(&UserQuota{}).Error
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// classifyZeroRowUpdate distinguishes "no such owner" from "limit exceeded"
// after a conditional update matched zero rows.
func (l *Ledger) classifyZeroRowUpdate(ctx context.Context, ownerID string) error {
	var exists int64
	if err := l.db.WithContext(ctx).Model(&UserQuota{}).Where("owner_id = ?", ownerID).Count(&exists).Error; err != nil {
		return classifyErr(err)
	}
	if exists == 0 {
		return xfererr.New(xfererr.NotFound, "quota row not found")
	}
	return xfererr.New(xfererr.QuotaExceeded, "tier limit would be exceeded")
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return xfererr.New(xfererr.NotFound, "quota row not found")
	}
	var alreadyClassified *xfererr.Error
	if errors.As(err, &alreadyClassified) {
		return err
	}
	return xfererr.Wrap(xfererr.ProviderTransient, err)
}
