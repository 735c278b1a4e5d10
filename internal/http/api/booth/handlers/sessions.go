package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/session"
	"github.com/wartelsys/wartel/internal/store"
)

// SessionHandler handles the booth's session lifecycle operations.
type SessionHandler struct {
	orchestrator *session.Orchestrator // Lifecycle authority.
	store        *store.Store          // Session queries.
}

// NewSessionHandler wires a booth session handler.
func NewSessionHandler(o *session.Orchestrator, s *store.Store) *SessionHandler {
	return &SessionHandler{orchestrator: o, store: s}
}

// startSessionRequest captures the payload for starting a call.
type startSessionRequest struct {
	VoucherCode        string `json:"voucher_code"`        // Code entered at the booth.
	ReceiverIdentifier string `json:"receiver_identifier"` // Destination number or handle.
	CallOption         string `json:"call_option"`         // gsm, app-voice, app-video or peer-video.
}

// Start validates the voucher, reserves it exclusively, and opens a session
// seeded with the voucher's remaining time.
func (h *SessionHandler) Start(c *gin.Context) {
	var body startSessionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.VoucherCode)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing voucher_code"})
		return
	}
	receiver := strings.TrimSpace(body.ReceiverIdentifier)
	if receiver == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing receiver_identifier"})
		return
	}

	sess, errStart := h.orchestrator.Start(c.Request.Context(), session.StartParams{
		VoucherCode:        code,
		ReceiverIdentifier: receiver,
		CallOption:         strings.TrimSpace(body.CallOption),
		OperatorID:         c.GetString("actorID"),
	})
	if errStart != nil {
		status, message := startErrorStatus(errStart)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusCreated, formatSession(sess, time.Now().UTC()))
}

// terminateSessionRequest carries the caller's last observed countdown, used
// only as a settlement hint. Omitted or negative means derive from the
// deadline.
type terminateSessionRequest struct {
	ObservedRemaining *int64 `json:"observed_remaining"` // Seconds left as seen by the booth.
}

// Terminate ends a session on caller hang-up. Idempotent; terminating an
// already ended session returns the terminal record.
func (h *SessionHandler) Terminate(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id"})
		return
	}
	var body terminateSessionRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	observed := int64(-1)
	if body.ObservedRemaining != nil {
		observed = *body.ObservedRemaining
	}

	sess, errTerminate := h.orchestrator.Terminate(c.Request.Context(), id, models.TerminatedByUser, observed)
	if errTerminate != nil {
		if errors.Is(errTerminate, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "terminate session failed"})
		return
	}
	c.JSON(http.StatusOK, formatSession(sess, time.Now().UTC()))
}

// Get returns one session with its remaining time computed from the
// deadline.
func (h *SessionHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id"})
		return
	}
	sess, errGet := h.store.GetSession(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatSession(sess, time.Now().UTC()))
}

// startErrorStatus maps a start failure onto a response status and message.
func startErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidCallOption):
		return http.StatusBadRequest, "invalid call_option"
	case errors.Is(err, ledger.ErrVoucherNotFound):
		return http.StatusNotFound, "voucher not found"
	case errors.Is(err, ledger.ErrVoucherExpired):
		return http.StatusGone, "voucher expired"
	case errors.Is(err, ledger.ErrVoucherDepleted):
		return http.StatusConflict, "voucher depleted"
	case errors.Is(err, store.ErrVoucherBusy):
		return http.StatusConflict, "voucher already in an active session"
	case errors.Is(err, session.ErrReceiverNotRegistered):
		return http.StatusPreconditionFailed, "receiver not registered"
	default:
		return http.StatusInternalServerError, "start session failed"
	}
}

// formatSession maps a session model into a response payload. Remaining time
// is always computed from the deadline at format time.
func formatSession(s *models.Session, now time.Time) gin.H {
	return gin.H{
		"id":                  s.ID,
		"voucher_code":        s.VoucherCode,
		"receiver_identifier": s.ReceiverIdentifier,
		"call_type":           s.CallType,
		"owner_id":            s.OwnerID,
		"active":              s.Active,
		"start_time":          s.StartTime,
		"end_time":            s.EndTime,
		"deadline":            s.Deadline,
		"seeded_duration":     s.SeededDuration,
		"remaining_duration":  s.Remaining(now),
		"terminated_by":       s.TerminatedBy,
	}
}
