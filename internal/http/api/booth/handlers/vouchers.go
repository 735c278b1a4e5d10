package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/ledger"
)

// VoucherPreviewHandler lets the booth check a voucher before dialing.
type VoucherPreviewHandler struct {
	ledger *ledger.Ledger // Voucher accounting.
}

// NewVoucherPreviewHandler wires a voucher preview handler.
func NewVoucherPreviewHandler(l *ledger.Ledger) *VoucherPreviewHandler {
	return &VoucherPreviewHandler{ledger: l}
}

// Get validates a voucher code and returns the balance a session would be
// seeded with. The check is advisory; nothing is reserved.
func (h *VoucherPreviewHandler) Get(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	voucher, errValidate := h.ledger.Validate(c.Request.Context(), code, time.Now().UTC())
	if errValidate != nil {
		switch {
		case errors.Is(errValidate, ledger.ErrVoucherNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "voucher not found"})
		case errors.Is(errValidate, ledger.ErrVoucherExpired):
			c.JSON(http.StatusGone, gin.H{"error": "voucher expired"})
		case errors.Is(errValidate, ledger.ErrVoucherDepleted):
			c.JSON(http.StatusConflict, gin.H{"error": "voucher depleted"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":               voucher.Code,
		"remaining_duration": voucher.RemainingDuration,
		"used":               voucher.Used,
		"expires_at":         voucher.ExpiresAt,
	})
}
