package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/store"
)

// ActivityLogHandler serves the append-only staff activity trail.
type ActivityLogHandler struct {
	store *store.Store // Activity persistence.
}

// NewActivityLogHandler constructs an activity log handler.
func NewActivityLogHandler(s *store.Store) *ActivityLogHandler {
	return &ActivityLogHandler{store: s}
}

// createActivityLogRequest captures a manually appended trail entry.
type createActivityLogRequest struct {
	Action   string         `json:"action"`   // Human-readable action description.
	Metadata map[string]any `json:"metadata"` // Optional structured context.
}

// Create appends an entry to the activity trail.
func (h *ActivityLogHandler) Create(c *gin.Context) {
	var body createActivityLogRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	action := strings.TrimSpace(body.Action)
	if action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing action"})
		return
	}

	h.store.AppendActivity(c.Request.Context(), c.GetString("actorID"), action, body.Metadata)
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// List returns the most recent activity entries, newest first.
func (h *ActivityLogHandler) List(c *gin.Context) {
	limit := 0
	if limitQ := strings.TrimSpace(c.Query("limit")); limitQ != "" {
		parsed, errParse := strconv.Atoi(limitQ)
		if errParse != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, errList := h.store.ListActivity(c.Request.Context(), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list activity failed"})
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"id":         entry.ID,
			"user_id":    entry.UserID,
			"action":     entry.Action,
			"metadata":   entry.Metadata,
			"created_at": entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}
