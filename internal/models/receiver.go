package models

import "time"

// Receiver represents a registered call destination. Registration gates the
// messaging-app and peer-video call types; GSM calls need no registration.
// Records are upserted by identifier and never deleted.
type Receiver struct {
	Identifier string `gorm:"primaryKey;type:text"` // Phone number or app handle.

	Name         string    `gorm:"type:text"`               // Optional display name.
	RegisteredAt time.Time `gorm:"not null;autoCreateTime"` // First registration time.
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime"` // Last overwrite time.
}
