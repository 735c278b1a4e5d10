package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/store"
)

// VoucherHandler handles staff operations on the voucher ledger.
type VoucherHandler struct {
	ledger *ledger.Ledger // Voucher accounting.
	store  *store.Store   // Activity trail and change-feed notification.
}

// NewVoucherHandler wires a voucher handler with its dependencies.
func NewVoucherHandler(l *ledger.Ledger, s *store.Store) *VoucherHandler {
	return &VoucherHandler{ledger: l, store: s}
}

// createVoucherRequest captures the payload for minting a voucher.
type createVoucherRequest struct {
	PackageType string `json:"package_type"` // One of the fixed denominations.
}

// Create mints a voucher for one of the fixed packages.
func (h *VoucherHandler) Create(c *gin.Context) {
	var body createVoucherRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	packageType := strings.TrimSpace(body.PackageType)
	if packageType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing package_type"})
		return
	}

	ctx := c.Request.Context()
	voucher, errCreate := h.ledger.CreateFromPackage(ctx, packageType, time.Now().UTC())
	if errCreate != nil {
		if errors.Is(errCreate, ledger.ErrUnknownPackage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown package_type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create voucher failed"})
		return
	}

	h.store.AppendActivity(ctx, c.GetString("actorID"), "voucher created", map[string]any{
		"voucher_code": voucher.Code,
		"package_type": packageType,
	})
	h.store.NotifyVouchers(ctx)
	c.JSON(http.StatusCreated, formatVoucher(voucher))
}

// List returns all vouchers, newest first.
func (h *VoucherHandler) List(c *gin.Context) {
	vouchers, errList := h.ledger.List(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list vouchers failed"})
		return
	}
	out := make([]gin.H, 0, len(vouchers))
	for i := range vouchers {
		out = append(out, formatVoucher(&vouchers[i]))
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": out})
}

// adjustVoucherRequest captures a staff edit of duration and price.
type adjustVoucherRequest struct {
	TotalDuration int64 `json:"total_duration"` // New allotted time in seconds.
	Price         int64 `json:"price"`          // New sale price.
}

// Adjust applies a staff edit. The remaining balance is raised when the edit
// grants more time, never lowered.
func (h *VoucherHandler) Adjust(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	var body adjustVoucherRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	voucher, errAdjust := h.ledger.Adjust(ctx, code, body.TotalDuration, body.Price)
	if errAdjust != nil {
		switch {
		case errors.Is(errAdjust, ledger.ErrVoucherNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errAdjust, ledger.ErrInvalidAdjustment):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid adjustment"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "adjust voucher failed"})
		}
		return
	}

	h.store.AppendActivity(ctx, c.GetString("actorID"), "voucher adjusted", map[string]any{
		"voucher_code":   voucher.Code,
		"total_duration": body.TotalDuration,
		"price":          body.Price,
	})
	h.store.NotifyVouchers(ctx)
	c.JSON(http.StatusOK, formatVoucher(voucher))
}

// Delete removes a voucher. Sessions already running on it finish normally;
// their settlement then finds nothing to write back.
func (h *VoucherHandler) Delete(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	ctx := c.Request.Context()
	if errDelete := h.ledger.Delete(ctx, code); errDelete != nil {
		if errors.Is(errDelete, ledger.ErrVoucherNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete voucher failed"})
		return
	}

	h.store.AppendActivity(ctx, c.GetString("actorID"), "voucher deleted", map[string]any{
		"voucher_code": code,
	})
	h.store.NotifyVouchers(ctx)
	c.Status(http.StatusNoContent)
}

// formatVoucher maps a voucher model into a response payload.
func formatVoucher(v *models.Voucher) gin.H {
	return gin.H{
		"code":               v.Code,
		"total_duration":     v.TotalDuration,
		"remaining_duration": v.RemainingDuration,
		"price":              v.Price,
		"used":               v.Used,
		"created_at":         v.CreatedAt,
		"expires_at":         v.ExpiresAt,
		"redeemable":         v.Redeemable(time.Now().UTC()),
	}
}
