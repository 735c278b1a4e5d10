package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/wartelsys/wartel/internal/models"
)

// AppendActivity records an audit entry. The trail is fire-and-forget for
// callers: failures are logged and swallowed so an audit hiccup never blocks
// a voucher or session operation.
func (s *Store) AppendActivity(ctx context.Context, userID, action string, metadata map[string]any) {
	if strings.TrimSpace(userID) == "" {
		userID = "unknown"
	}
	entry := models.ActivityLog{
		UserID: userID,
		Action: action,
	}
	if len(metadata) > 0 {
		payload, errMarshal := json.Marshal(metadata)
		if errMarshal != nil {
			log.Warnf("store: marshal activity metadata: %v", errMarshal)
		} else {
			entry.Metadata = datatypes.JSON(payload)
		}
	}
	if errCreate := s.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.Warnf("store: append activity: %v", errCreate)
	}
}

// ListActivity returns the newest audit entries up to limit.
func (s *Store) ListActivity(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.ActivityLog
	if errFind := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; errFind != nil {
		return nil, fmt.Errorf("store: list activity: %w", errFind)
	}
	return entries, nil
}
