package models

import "time"

// Voucher represents purchasable call time redeemable at a booth.
type Voucher struct {
	Code string `gorm:"primaryKey;type:text"` // Human-entered voucher code.

	TotalDuration     int64 `gorm:"not null"`               // Allotted call time in seconds.
	RemainingDuration int64 `gorm:"not null"`               // Unspent call time in seconds.
	Price             int64 `gorm:"not null"`               // Sale price in the facility currency.
	Used              bool  `gorm:"not null;default:false"` // Sticky flag, set on first session.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	ExpiresAt time.Time `gorm:"not null"`                // Redemption deadline.
}

// Redeemable reports whether the voucher can still seed a session at the
// given instant. Depletion only applies once the voucher has been used; a
// never-used voucher is redeemable until its expiry regardless of stale
// bookkeeping elsewhere.
func (v *Voucher) Redeemable(now time.Time) bool {
	if now.After(v.ExpiresAt) {
		return false
	}
	if v.Used && v.RemainingDuration <= 0 {
		return false
	}
	return true
}
