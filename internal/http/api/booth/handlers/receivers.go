package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/store"
)

// ReceiverHandler handles the registry of call destinations.
type ReceiverHandler struct {
	store *store.Store // Receiver persistence.
}

// NewReceiverHandler wires a receiver handler.
func NewReceiverHandler(s *store.Store) *ReceiverHandler {
	return &ReceiverHandler{store: s}
}

// registerReceiverRequest captures a receiver registration.
type registerReceiverRequest struct {
	Identifier string `json:"identifier"` // Phone number or app handle.
	Name       string `json:"name"`       // Optional display name.
}

// Register adds or overwrites a receiver record. Registering an existing
// identifier replaces its name; records are never deleted.
func (h *ReceiverHandler) Register(c *gin.Context) {
	var body registerReceiverRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	identifier := strings.TrimSpace(body.Identifier)
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing identifier"})
		return
	}

	receiver := models.Receiver{
		Identifier: identifier,
		Name:       strings.TrimSpace(body.Name),
	}
	if errUpsert := h.store.UpsertReceiver(c.Request.Context(), &receiver); errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register receiver failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"identifier": receiver.Identifier,
		"name":       receiver.Name,
	})
}

// List returns registered receivers, optionally filtered by a search query.
func (h *ReceiverHandler) List(c *gin.Context) {
	receivers, errList := h.store.ListReceivers(c.Request.Context(), strings.TrimSpace(c.Query("q")))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list receivers failed"})
		return
	}
	out := make([]gin.H, 0, len(receivers))
	for _, receiver := range receivers {
		out = append(out, gin.H{
			"identifier":    receiver.Identifier,
			"name":          receiver.Name,
			"registered_at": receiver.RegisteredAt,
			"updated_at":    receiver.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"receivers": out})
}
