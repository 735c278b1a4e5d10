// Package session composes the voucher ledger, session store, expiry clock,
// and signaling relay into the start/terminate API used by booth, staff, and
// the relay itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wartelsys/wartel/internal/clock"
	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/metrics"
	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/store"
	"github.com/wartelsys/wartel/internal/util"
)

// Orchestration errors.
var (
	// ErrReceiverNotRegistered indicates a call type that requires
	// registration was requested for an unknown receiver.
	ErrReceiverNotRegistered = errors.New("receiver not registered")
	// ErrInvalidCallOption indicates an unrecognized call option.
	ErrInvalidCallOption = errors.New("invalid call option")
)

// Call options accepted from the booth. GSM needs no registration; the
// app-* options deep-link into the receiver's messaging app and peer-video
// negotiates through the signaling relay, both of which require the
// receiver to be registered.
const (
	OptionGSM       = "gsm"
	OptionAppVoice  = "app-voice"
	OptionAppVideo  = "app-video"
	OptionPeerVideo = "peer-video"
)

// callTypeForOption maps a booth call option onto the stored call type and
// whether the receiver must be registered.
func callTypeForOption(option string) (callType string, needsRegistration bool, err error) {
	switch option {
	case OptionGSM:
		return models.CallTypeGSM, false, nil
	case OptionAppVoice, OptionAppVideo:
		return models.CallTypeMessagingApp, true, nil
	case OptionPeerVideo:
		return models.CallTypePeerVideo, true, nil
	default:
		return "", false, ErrInvalidCallOption
	}
}

// Notifier fans a terminate notice out to the session's signaling room.
type Notifier interface {
	BroadcastTerminate(sessionID string)
}

// StartParams are the inputs to Start.
type StartParams struct {
	VoucherCode        string
	ReceiverIdentifier string
	CallOption         string
	OperatorID         string
}

// Orchestrator owns the session lifecycle. All mutations of voucher and
// session state flow through it; clients only ever observe.
type Orchestrator struct {
	db        *gorm.DB
	store     *store.Store
	scheduler *clock.Scheduler
	notifier  Notifier

	nowFn func() time.Time
}

// New constructs an Orchestrator and its expiry scheduler.
func New(db *gorm.DB, st *store.Store) *Orchestrator {
	o := &Orchestrator{
		db:    db,
		store: st,
		nowFn: time.Now,
	}
	o.scheduler = clock.NewScheduler(o.expireSession)
	return o
}

// AttachNotifier wires the signaling relay after construction; the relay in
// turn terminates sessions through this orchestrator.
func (o *Orchestrator) AttachNotifier(n Notifier) {
	o.notifier = n
}

// Close stops the expiry scheduler.
func (o *Orchestrator) Close() {
	o.scheduler.Close()
}

// Resume re-arms expiry timers for every active session in the store. Run at
// boot; overdue deadlines fire immediately.
func (o *Orchestrator) Resume(ctx context.Context) error {
	sessions, errList := o.store.ListActiveSessions(ctx)
	if errList != nil {
		return fmt.Errorf("session: resume: %w", errList)
	}
	for _, s := range sessions {
		o.scheduler.Schedule(s.ID, s.Deadline)
	}
	if len(sessions) > 0 {
		log.Infof("session: resumed expiry timers for %d active sessions", len(sessions))
	}
	return nil
}

// Start validates the voucher, atomically reserves it, derives the call
// type, and creates the session. The reservation, receiver check, and
// voucher debit commit together: a failed receiver check rolls back the
// reservation and leaves the voucher's used flag untouched.
func (o *Orchestrator) Start(ctx context.Context, p StartParams) (*models.Session, error) {
	callType, needsRegistration, errOption := callTypeForOption(p.CallOption)
	if errOption != nil {
		return nil, errOption
	}

	now := o.nowFn().UTC()
	var sess *models.Session
	errTx := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		voucher, errValidate := ledger.ValidateTx(tx, p.VoucherCode, now)
		if errValidate != nil {
			return errValidate
		}

		seeded := voucher.RemainingDuration
		sess = &models.Session{
			ID:                 uuid.NewString(),
			VoucherCode:        p.VoucherCode,
			ReceiverIdentifier: p.ReceiverIdentifier,
			CallType:           callType,
			OwnerID:            p.OperatorID,
			Active:             true,
			StartTime:          now,
			Deadline:           now.Add(time.Duration(seeded) * time.Second),
			SeededDuration:     seeded,
			RemainingDuration:  seeded,
			TerminatedBy:       models.TerminatedByNone,
		}
		if errReserve := store.ReserveTx(tx, sess); errReserve != nil {
			return errReserve
		}

		if needsRegistration {
			registered, errReceiver := store.ReceiverRegisteredTx(tx, p.ReceiverIdentifier)
			if errReceiver != nil {
				return errReceiver
			}
			if !registered {
				return ErrReceiverNotRegistered
			}
		}

		return ledger.DebitOnStartTx(tx, p.VoucherCode)
	})
	if errTx != nil {
		metrics.StartRejections.WithLabelValues(rejectionReason(errTx)).Inc()
		return nil, errTx
	}

	o.scheduler.Schedule(sess.ID, sess.Deadline)
	metrics.ActiveSessions.Inc()
	metrics.SessionsStarted.WithLabelValues(callType).Inc()
	o.store.NotifySessions(ctx)
	o.store.NotifyVouchers(ctx)
	log.Infof("session: started %s (voucher %s, type %s, %ds)",
		sess.ID, util.MaskVoucherCode(p.VoucherCode), callType, sess.SeededDuration)
	return sess, nil
}

// Terminate ends a session. It is idempotent: terminating an already
// terminated session returns the terminal record as a no-op success,
// resolving the race between the expiry clock and a near-simultaneous human
// hang-up. observedRemaining below zero means "derive from the deadline";
// any supplied value is clamped to the seeded duration before settling.
func (o *Orchestrator) Terminate(ctx context.Context, id, actor string, observedRemaining int64) (*models.Session, error) {
	now := o.nowFn().UTC()

	var sess models.Session
	applied := false
	errTx := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&sess, "id = ?", id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return store.ErrSessionNotFound
			}
			return fmt.Errorf("session: query: %w", errFind)
		}
		if !sess.Active {
			return nil
		}

		observed := observedRemaining
		if observed < 0 {
			observed = sess.Remaining(now)
		}
		if observed > sess.SeededDuration {
			observed = sess.SeededDuration
		}
		if observed < 0 {
			observed = 0
		}

		var errTerminate error
		applied, errTerminate = store.TerminateTx(tx, id, actor, observed, now)
		if errTerminate != nil {
			return errTerminate
		}
		if !applied {
			return nil
		}
		if errSettle := ledger.SettleTx(tx, sess.VoucherCode, observed); errSettle != nil {
			return errSettle
		}

		endTime := now
		sess.Active = false
		sess.EndTime = &endTime
		sess.TerminatedBy = actor
		sess.RemainingDuration = observed
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	if !applied {
		if sess.Active {
			// Lost the race after the initial read; fetch the terminal row.
			terminal, errGet := o.store.GetSession(ctx, id)
			if errGet != nil {
				return nil, errGet
			}
			return terminal, nil
		}
		return &sess, nil
	}

	o.scheduler.Cancel(id)
	if o.notifier != nil {
		o.notifier.BroadcastTerminate(id)
	}
	metrics.ActiveSessions.Dec()
	metrics.SessionsTerminated.WithLabelValues(actor).Inc()
	o.store.NotifySessions(ctx)
	o.store.NotifyVouchers(ctx)
	log.Infof("session: terminated %s by %s with %ds left", id, actor, sess.RemainingDuration)
	return &sess, nil
}

// TerminateFromRelay handles the signaling-layer terminate message: caller
// attribution, remaining time derived from the deadline.
func (o *Orchestrator) TerminateFromRelay(ctx context.Context, sessionID string) {
	if _, err := o.Terminate(ctx, sessionID, models.TerminatedByUser, -1); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			// Best-effort signaling; unknown rooms are normal.
			return
		}
		log.Warnf("session: relay terminate %s: %v", sessionID, err)
	}
}

func (o *Orchestrator) expireSession(ctx context.Context, sessionID string) error {
	_, err := o.Terminate(ctx, sessionID, models.TerminatedBySystemExpiry, 0)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil
	}
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrVoucherNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrVoucherExpired):
		return "expired"
	case errors.Is(err, ledger.ErrVoucherDepleted):
		return "depleted"
	case errors.Is(err, store.ErrVoucherBusy):
		return "already_active"
	case errors.Is(err, ErrReceiverNotRegistered):
		return "receiver_not_registered"
	default:
		return "error"
	}
}
