// Package store owns the durable session records, the per-voucher
// exclusivity guard, and the receiver registry. Every mutation is a single
// committed write; observers are notified through the feed.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	dbutil "github.com/wartelsys/wartel/internal/db"
	"github.com/wartelsys/wartel/internal/feed"
	"github.com/wartelsys/wartel/internal/models"
)

// Session store errors.
var (
	// ErrVoucherBusy indicates the voucher already has an active session.
	ErrVoucherBusy = errors.New("voucher already in an active session")
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
)

// Store provides session and receiver persistence.
type Store struct {
	db  *gorm.DB
	pub feed.Publisher
}

// New constructs a Store. pub may be nil when change notification is not
// wanted (tests).
func New(db *gorm.DB, pub feed.Publisher) *Store {
	return &Store{db: db, pub: pub}
}

// DB exposes the underlying handle for transaction composition by the
// orchestrator.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ReserveTx atomically reserves the voucher by inserting the session row.
// The partial unique index on (voucher_code) WHERE active turns a concurrent
// second reservation into a duplicate-key failure, which surfaces here as
// ErrVoucherBusy with no side effects. Release is implicit when the session
// row transitions to active = false.
func ReserveTx(tx *gorm.DB, session *models.Session) error {
	if errCreate := tx.Create(session).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return ErrVoucherBusy
		}
		return fmt.Errorf("store: reserve session: %w", errCreate)
	}
	return nil
}

// TerminateTx performs the single committed transition to inactive. It
// reports applied = false when the session was already terminated, which
// callers treat as a no-op success.
func TerminateTx(tx *gorm.DB, id, actor string, remaining int64, now time.Time) (bool, error) {
	res := tx.Model(&models.Session{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"active":             false,
			"end_time":           now,
			"terminated_by":      actor,
			"remaining_duration": remaining,
		})
	if res.Error != nil {
		return false, fmt.Errorf("store: terminate session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReceiverRegisteredTx reports whether the identifier is in the registry.
func ReceiverRegisteredTx(tx *gorm.DB, identifier string) (bool, error) {
	var count int64
	if errCount := tx.Model(&models.Receiver{}).
		Where("identifier = ?", identifier).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("store: query receiver: %w", errCount)
	}
	return count > 0, nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if errFind := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("store: query session: %w", errFind)
	}
	return &session, nil
}

// ListSessions returns sessions, optionally restricted to active ones,
// newest first.
func (s *Store) ListSessions(ctx context.Context, activeOnly bool) ([]models.Session, error) {
	q := s.db.WithContext(ctx).Model(&models.Session{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var sessions []models.Session
	if errFind := q.Order("start_time DESC").Find(&sessions).Error; errFind != nil {
		return nil, fmt.Errorf("store: list sessions: %w", errFind)
	}
	return sessions, nil
}

// ListActiveSessions returns all active sessions; used at boot to reschedule
// expiry timers.
func (s *Store) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	return s.ListSessions(ctx, true)
}

// UpsertReceiver registers or overwrites a receiver record. Registration has
// append/overwrite semantics; records are never deleted.
func (s *Store) UpsertReceiver(ctx context.Context, receiver *models.Receiver) error {
	existing := models.Receiver{}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.First(&existing, "identifier = ?", receiver.Identifier).Error
		switch {
		case errFind == nil:
			return tx.Model(&existing).Update("name", receiver.Name).Error
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			return tx.Create(receiver).Error
		default:
			return errFind
		}
	})
	if errTx != nil {
		return fmt.Errorf("store: upsert receiver: %w", errTx)
	}
	return nil
}

// ListReceivers returns registered receivers, optionally filtered by a
// case-insensitive match on identifier or name.
func (s *Store) ListReceivers(ctx context.Context, query string) ([]models.Receiver, error) {
	q := s.db.WithContext(ctx).Model(&models.Receiver{})
	if query != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+query+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(s.db, "identifier")+" OR "+dbutil.CaseInsensitiveLikeExpr(s.db, "name"),
			pattern, pattern,
		)
	}
	var receivers []models.Receiver
	if errFind := q.Order("registered_at DESC").Find(&receivers).Error; errFind != nil {
		return nil, fmt.Errorf("store: list receivers: %w", errFind)
	}
	return receivers, nil
}

// NotifySessions pushes the full current session set to feed subscribers.
// Notification failures are logged, never surfaced; the next mutation
// republishes the complete set anyway.
func (s *Store) NotifySessions(ctx context.Context) {
	if s.pub == nil {
		return
	}
	sessions, errList := s.ListSessions(ctx, false)
	if errList != nil {
		log.Warnf("store: session snapshot for feed: %v", errList)
		return
	}
	s.pub.Publish(ctx, feed.Event{Collection: feed.CollectionSessions, Sessions: sessions})
}

// NotifyVouchers pushes the full current voucher set to feed subscribers.
func (s *Store) NotifyVouchers(ctx context.Context) {
	if s.pub == nil {
		return
	}
	var vouchers []models.Voucher
	if errFind := s.db.WithContext(ctx).Order("created_at DESC").Find(&vouchers).Error; errFind != nil {
		log.Warnf("store: voucher snapshot for feed: %v", errFind)
		return
	}
	s.pub.Publish(ctx, feed.Event{Collection: feed.CollectionVouchers, Vouchers: vouchers})
}
