package models

import "time"

// Call types derived from the booth's call option.
const (
	// CallTypeGSM is a plain carrier call dialed from the booth handset.
	CallTypeGSM = "gsm"
	// CallTypeMessagingApp is a deep link into the receiver's messaging app.
	CallTypeMessagingApp = "messaging-app"
	// CallTypePeerVideo is a browser-to-browser video call negotiated over
	// the signaling relay.
	CallTypePeerVideo = "peer-video"
)

// Termination attribution values.
const (
	// TerminatedByNone marks a session that is still active.
	TerminatedByNone = "none"
	// TerminatedByUser marks a caller hang-up.
	TerminatedByUser = "user"
	// TerminatedByStaff marks a staff override from the dashboard.
	TerminatedByStaff = "staff"
	// TerminatedBySystemExpiry marks automatic termination at the deadline.
	TerminatedBySystemExpiry = "system-expiry"
)

// Session represents one redemption of a voucher into an actual call.
//
// A session is born active and transitions exactly once to inactive with
// TerminatedBy set and EndTime recorded. For any voucher code at most one
// session row may be active at a time; the database enforces this with a
// partial unique index on (voucher_code) WHERE active.
type Session struct {
	ID string `gorm:"primaryKey;type:text"` // Generated session identifier.

	VoucherCode        string `gorm:"type:text;not null;index"` // Voucher backing this session.
	ReceiverIdentifier string `gorm:"type:text;not null"`       // Phone number or app identifier being called.
	CallType           string `gorm:"type:text;not null"`       // One of the CallType constants.
	OwnerID            string `gorm:"type:text;not null"`       // Operator who started the session.

	Active            bool       `gorm:"not null;default:true"` // Lifecycle flag, cleared exactly once.
	StartTime         time.Time  `gorm:"not null"`              // Session start.
	EndTime           *time.Time // Set when the session terminates.
	Deadline          time.Time  `gorm:"not null"`                    // StartTime + seeded duration; authoritative expiry instant.
	SeededDuration    int64      `gorm:"not null"`                    // Seconds seeded from the voucher at start.
	RemainingDuration int64      `gorm:"not null"`                    // Seconds left; settled on termination.
	TerminatedBy      string     `gorm:"type:text;not null;default:'none'"` // Termination attribution.
}

// Remaining computes the observable time left at the given instant. While
// active this is always derived from the deadline, never from stored
// countdown state.
func (s *Session) Remaining(now time.Time) int64 {
	if !s.Active {
		return s.RemainingDuration
	}
	if !now.Before(s.Deadline) {
		return 0
	}
	left := int64(s.Deadline.Sub(now) / time.Second)
	if left > s.SeededDuration {
		left = s.SeededDuration
	}
	return left
}
