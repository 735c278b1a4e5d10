package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/session"
	"github.com/wartelsys/wartel/internal/store"
)

// SessionAdminHandler handles the staff view of sessions and forced
// termination from the dashboard.
type SessionAdminHandler struct {
	store        *store.Store         // Session queries and activity trail.
	orchestrator *session.Orchestrator // Lifecycle authority.
}

// NewSessionAdminHandler wires a session admin handler.
func NewSessionAdminHandler(s *store.Store, o *session.Orchestrator) *SessionAdminHandler {
	return &SessionAdminHandler{store: s, orchestrator: o}
}

// List returns sessions, optionally restricted to active ones.
func (h *SessionAdminHandler) List(c *gin.Context) {
	activeQ := strings.TrimSpace(c.Query("active"))
	activeOnly := activeQ == "true" || activeQ == "1"

	sessions, errList := h.store.ListSessions(c.Request.Context(), activeOnly)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sessions failed"})
		return
	}
	now := time.Now().UTC()
	out := make([]gin.H, 0, len(sessions))
	for i := range sessions {
		out = append(out, formatSession(&sessions[i], now))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// Terminate force-ends a session from the dashboard. Idempotent; a session
// that already ended is returned as-is.
func (h *SessionAdminHandler) Terminate(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id"})
		return
	}

	ctx := c.Request.Context()
	sess, errTerminate := h.orchestrator.Terminate(ctx, id, models.TerminatedByStaff, -1)
	if errTerminate != nil {
		if errors.Is(errTerminate, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "terminate session failed"})
		return
	}

	h.store.AppendActivity(ctx, c.GetString("actorID"), "session terminated by staff", map[string]any{
		"session_id":   sess.ID,
		"voucher_code": sess.VoucherCode,
	})
	c.JSON(http.StatusOK, formatSession(sess, time.Now().UTC()))
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
