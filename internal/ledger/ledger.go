// Package ledger owns the durable voucher records and their accounting
// rules: validation for redemption, the sticky used flag, settlement of
// unspent time, and staff edits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wartelsys/wartel/internal/models"
)

// Voucher accounting errors.
var (
	// ErrVoucherNotFound indicates the code does not exist.
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrVoucherExpired indicates the redemption window has passed.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrVoucherDepleted indicates a used voucher with no time left.
	ErrVoucherDepleted = errors.New("voucher depleted")
	// ErrUnknownPackage indicates an unrecognized package type.
	ErrUnknownPackage = errors.New("unknown voucher package")
	// ErrInvalidAdjustment indicates a staff edit with a non-positive
	// duration or negative price.
	ErrInvalidAdjustment = errors.New("invalid voucher adjustment")
	// ErrInvalidSettlement indicates a settle value above the voucher's
	// known remaining balance; accepting it would let a stale client
	// inflate the voucher.
	ErrInvalidSettlement = errors.New("invalid voucher settlement")
)

// Ledger provides voucher accounting on top of the shared database handle.
type Ledger struct {
	db *gorm.DB
}

// New constructs a Ledger.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// CreateFromPackage mints a voucher for one of the fixed denominations and
// stamps its redemption deadline.
func (l *Ledger) CreateFromPackage(ctx context.Context, packageType string, now time.Time) (*models.Voucher, error) {
	pkg, ok := Packages[packageType]
	if !ok {
		return nil, ErrUnknownPackage
	}
	code, errCode := generateCode(codeLength)
	if errCode != nil {
		return nil, fmt.Errorf("ledger: generate code: %w", errCode)
	}
	voucher := models.Voucher{
		Code:              code,
		TotalDuration:     pkg.Duration,
		RemainingDuration: pkg.Duration,
		Price:             pkg.Price,
		CreatedAt:         now,
		ExpiresAt:         now.Add(RedemptionWindow),
	}
	if errCreate := l.db.WithContext(ctx).Create(&voucher).Error; errCreate != nil {
		return nil, fmt.Errorf("ledger: create voucher: %w", errCreate)
	}
	return &voucher, nil
}

// Get returns a voucher by code.
func (l *Ledger) Get(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	if errFind := l.db.WithContext(ctx).First(&voucher, "code = ?", code).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, fmt.Errorf("ledger: query voucher: %w", errFind)
	}
	return &voucher, nil
}

// List returns all vouchers, newest first.
func (l *Ledger) List(ctx context.Context) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	if errFind := l.db.WithContext(ctx).Order("created_at DESC").Find(&vouchers).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list vouchers: %w", errFind)
	}
	return vouchers, nil
}

// Delete removes a voucher by code.
func (l *Ledger) Delete(ctx context.Context, code string) error {
	res := l.db.WithContext(ctx).Delete(&models.Voucher{}, "code = ?", code)
	if res.Error != nil {
		return fmt.Errorf("ledger: delete voucher: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

// Validate checks redeemability and returns the voucher. The result seeds a
// new session's duration.
func (l *Ledger) Validate(ctx context.Context, code string, now time.Time) (*models.Voucher, error) {
	return ValidateTx(l.db.WithContext(ctx), code, now)
}

// Adjust applies a staff edit. The remaining balance is raised to the new
// total when the edit grants more time, and never lowered by an edit.
func (l *Ledger) Adjust(ctx context.Context, code string, newTotalDuration, newPrice int64) (*models.Voucher, error) {
	if newTotalDuration <= 0 || newPrice < 0 {
		return nil, ErrInvalidAdjustment
	}

	var voucher models.Voucher
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&voucher, "code = ?", code).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrVoucherNotFound
			}
			return fmt.Errorf("ledger: query voucher: %w", errFind)
		}
		remaining := voucher.RemainingDuration
		if newTotalDuration > remaining {
			remaining = newTotalDuration
		}
		if errUpdate := tx.Model(&voucher).Updates(map[string]any{
			"total_duration":     newTotalDuration,
			"remaining_duration": remaining,
			"price":              newPrice,
		}).Error; errUpdate != nil {
			return fmt.Errorf("ledger: adjust voucher: %w", errUpdate)
		}
		voucher.TotalDuration = newTotalDuration
		voucher.RemainingDuration = remaining
		voucher.Price = newPrice
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &voucher, nil
}

// ValidateTx is Validate scoped to an enclosing transaction.
func ValidateTx(tx *gorm.DB, code string, now time.Time) (*models.Voucher, error) {
	var voucher models.Voucher
	if errFind := tx.First(&voucher, "code = ?", code).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, fmt.Errorf("ledger: query voucher: %w", errFind)
	}
	if now.After(voucher.ExpiresAt) {
		return nil, ErrVoucherExpired
	}
	if voucher.Used && voucher.RemainingDuration <= 0 {
		return nil, ErrVoucherDepleted
	}
	return &voucher, nil
}

// DebitOnStartTx marks the voucher used. Idempotent; the flag is sticky.
func DebitOnStartTx(tx *gorm.DB, code string) error {
	if errUpdate := tx.Model(&models.Voucher{}).
		Where("code = ?", code).
		Update("used", true).Error; errUpdate != nil {
		return fmt.Errorf("ledger: debit voucher: %w", errUpdate)
	}
	return nil
}

// SettleTx writes the unspent balance back to the voucher after a session
// terminates. The write is conditional on the stored balance not increasing:
// a value above the current remaining_duration is rejected rather than
// applied, since vouchers only ever spend time between staff edits.
func SettleTx(tx *gorm.DB, code string, remaining int64) error {
	if remaining < 0 {
		remaining = 0
	}
	res := tx.Model(&models.Voucher{}).
		Where("code = ? AND remaining_duration >= ?", code, remaining).
		Update("remaining_duration", remaining)
	if res.Error != nil {
		return fmt.Errorf("ledger: settle voucher: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if errCount := tx.Model(&models.Voucher{}).Where("code = ?", code).Count(&count).Error; errCount != nil {
			return fmt.Errorf("ledger: settle voucher: %w", errCount)
		}
		if count == 0 {
			// Voucher deleted while a session was live; nothing to settle.
			return nil
		}
		return ErrInvalidSettlement
	}
	return nil
}
