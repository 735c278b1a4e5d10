package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/wartelsys/wartel/internal/db"
	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/store"
)

func openSessionTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:session_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("unwrap db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// seedVoucher inserts a voucher directly so tests control the balance.
func seedVoucher(t *testing.T, conn *gorm.DB, code string, remaining int64) {
	t.Helper()
	now := time.Now().UTC()
	voucher := models.Voucher{
		Code:              code,
		TotalDuration:     remaining,
		RemainingDuration: remaining,
		Price:             2000,
		CreatedAt:         now,
		ExpiresAt:         now.Add(14 * 24 * time.Hour),
	}
	if errCreate := conn.Create(&voucher).Error; errCreate != nil {
		t.Fatalf("seed voucher: %v", errCreate)
	}
}

func seedReceiver(t *testing.T, conn *gorm.DB, identifier string) {
	t.Helper()
	if errCreate := conn.Create(&models.Receiver{Identifier: identifier, Name: "Ibu"}).Error; errCreate != nil {
		t.Fatalf("seed receiver: %v", errCreate)
	}
}

// recordingNotifier captures terminate broadcasts.
type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) BroadcastTerminate(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, sessionID)
}

func (n *recordingNotifier) broadcasts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

func newTestOrchestrator(t *testing.T, conn *gorm.DB) (*Orchestrator, *recordingNotifier) {
	t.Helper()
	o := New(conn, store.New(conn, nil))
	t.Cleanup(o.Close)
	notifier := &recordingNotifier{}
	o.AttachNotifier(notifier)
	return o, notifier
}

func TestStartSeedsSessionFromVoucher(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, _ := newTestOrchestrator(t, conn)

	started := time.Now().UTC()
	o.nowFn = func() time.Time { return started }

	sess, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	})
	if errStart != nil {
		t.Fatalf("start: %v", errStart)
	}
	if !sess.Active || sess.SeededDuration != 300 || sess.CallType != models.CallTypeGSM {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if !sess.Deadline.Equal(started.Add(300 * time.Second)) {
		t.Fatalf("deadline must be start + seeded, got %v", sess.Deadline)
	}
	if sess.TerminatedBy != models.TerminatedByNone {
		t.Fatalf("new session attribution must be none, got %q", sess.TerminatedBy)
	}

	var voucher models.Voucher
	if errFind := conn.First(&voucher, "code = ?", "WXL2345").Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if !voucher.Used {
		t.Fatal("voucher must be marked used on start")
	}
}

func TestStartRejectsBusyVoucher(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, _ := newTestOrchestrator(t, conn)

	params := StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	}
	if _, errStart := o.Start(context.Background(), params); errStart != nil {
		t.Fatalf("first start: %v", errStart)
	}
	if _, errStart := o.Start(context.Background(), params); !errors.Is(errStart, store.ErrVoucherBusy) {
		t.Fatalf("expected ErrVoucherBusy, got %v", errStart)
	}
}

func TestStartUnregisteredReceiverRollsBackReservation(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, _ := newTestOrchestrator(t, conn)

	_, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionPeerVideo,
		OperatorID:         "op-1",
	})
	if !errors.Is(errStart, ErrReceiverNotRegistered) {
		t.Fatalf("expected ErrReceiverNotRegistered, got %v", errStart)
	}

	// The whole transaction rolled back: no session row, voucher untouched.
	var count int64
	if errCount := conn.Model(&models.Session{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count sessions: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no session rows, got %d", count)
	}
	var voucher models.Voucher
	if errFind := conn.First(&voucher, "code = ?", "WXL2345").Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if voucher.Used {
		t.Fatal("failed start must not mark the voucher used")
	}

	// GSM needs no registration; the voucher is immediately startable.
	if _, errRetry := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	}); errRetry != nil {
		t.Fatalf("gsm start after rollback: %v", errRetry)
	}
}

func TestStartRegisteredReceiverAllowsAppCalls(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	seedReceiver(t, conn, "+628123456789")
	o, _ := newTestOrchestrator(t, conn)

	sess, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionAppVideo,
		OperatorID:         "op-1",
	})
	if errStart != nil {
		t.Fatalf("start: %v", errStart)
	}
	if sess.CallType != models.CallTypeMessagingApp {
		t.Fatalf("expected messaging-app call type, got %q", sess.CallType)
	}
}

func TestStartRejectsInvalidOption(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, _ := newTestOrchestrator(t, conn)

	if _, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         "smoke-signal",
		OperatorID:         "op-1",
	}); !errors.Is(errStart, ErrInvalidCallOption) {
		t.Fatalf("expected ErrInvalidCallOption, got %v", errStart)
	}
}

func TestTerminateSettlesVoucherAndBroadcasts(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, notifier := newTestOrchestrator(t, conn)

	started := time.Now().UTC()
	o.nowFn = func() time.Time { return started }
	sess, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	})
	if errStart != nil {
		t.Fatalf("start: %v", errStart)
	}

	// Hang up 100 seconds in.
	o.nowFn = func() time.Time { return started.Add(100 * time.Second) }
	ended, errTerminate := o.Terminate(context.Background(), sess.ID, models.TerminatedByUser, -1)
	if errTerminate != nil {
		t.Fatalf("terminate: %v", errTerminate)
	}
	if ended.Active || ended.TerminatedBy != models.TerminatedByUser {
		t.Fatalf("unexpected terminal session: %+v", ended)
	}
	if ended.RemainingDuration != 200 {
		t.Fatalf("expected 200s remaining, got %d", ended.RemainingDuration)
	}
	if ended.EndTime == nil {
		t.Fatal("end time must be recorded")
	}

	var voucher models.Voucher
	if errFind := conn.First(&voucher, "code = ?", "WXL2345").Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if voucher.RemainingDuration != 200 {
		t.Fatalf("voucher must hold the unspent 200s, got %d", voucher.RemainingDuration)
	}

	if got := notifier.broadcasts(); len(got) != 1 || got[0] != sess.ID {
		t.Fatalf("expected one terminate broadcast for %s, got %v", sess.ID, got)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, notifier := newTestOrchestrator(t, conn)

	sess, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	})
	if errStart != nil {
		t.Fatalf("start: %v", errStart)
	}

	first, errTerminate := o.Terminate(context.Background(), sess.ID, models.TerminatedByStaff, -1)
	if errTerminate != nil {
		t.Fatalf("first terminate: %v", errTerminate)
	}
	second, errTerminate := o.Terminate(context.Background(), sess.ID, models.TerminatedByUser, 5)
	if errTerminate != nil {
		t.Fatalf("second terminate: %v", errTerminate)
	}

	// The second call is a no-op returning the terminal record unchanged.
	if second.TerminatedBy != models.TerminatedByStaff {
		t.Fatalf("attribution overwritten: %q", second.TerminatedBy)
	}
	if second.RemainingDuration != first.RemainingDuration {
		t.Fatalf("settled balance changed: %d vs %d", second.RemainingDuration, first.RemainingDuration)
	}
	if got := notifier.broadcasts(); len(got) != 1 {
		t.Fatalf("expected a single broadcast, got %v", got)
	}
}

func TestTerminateClampsObservedRemaining(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)
	o, _ := newTestOrchestrator(t, conn)

	sess, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	})
	if errStart != nil {
		t.Fatalf("start: %v", errStart)
	}

	// A buggy client reporting more time than was seeded must not inflate
	// the voucher.
	ended, errTerminate := o.Terminate(context.Background(), sess.ID, models.TerminatedByUser, 9999)
	if errTerminate != nil {
		t.Fatalf("terminate: %v", errTerminate)
	}
	if ended.RemainingDuration != 300 {
		t.Fatalf("expected clamp to seeded 300s, got %d", ended.RemainingDuration)
	}
}

func TestTerminateUnknownSession(t *testing.T) {
	conn := openSessionTestDB(t)
	o, _ := newTestOrchestrator(t, conn)

	if _, errTerminate := o.Terminate(context.Background(), "nope", models.TerminatedByStaff, -1); !errors.Is(errTerminate, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", errTerminate)
	}
}

func TestExpiryTerminatesWithZeroRemaining(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 1)
	o, notifier := newTestOrchestrator(t, conn)

	sess, errStart := o.Start(context.Background(), StartParams{
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallOption:         OptionGSM,
		OperatorID:         "op-1",
	})
	if errStart != nil {
		t.Fatalf("start: %v", errStart)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		reloaded, errGet := store.New(conn, nil).GetSession(context.Background(), sess.ID)
		if errGet != nil {
			t.Fatalf("reload session: %v", errGet)
		}
		if !reloaded.Active {
			if reloaded.TerminatedBy != models.TerminatedBySystemExpiry {
				t.Fatalf("expected system-expiry attribution, got %q", reloaded.TerminatedBy)
			}
			if reloaded.RemainingDuration != 0 {
				t.Fatalf("expired session must settle 0s, got %d", reloaded.RemainingDuration)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never expired")
		}
		time.Sleep(50 * time.Millisecond)
	}

	var voucher models.Voucher
	if errFind := conn.First(&voucher, "code = ?", "WXL2345").Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if voucher.RemainingDuration != 0 {
		t.Fatalf("expired voucher balance must be 0, got %d", voucher.RemainingDuration)
	}
	if !voucher.Used {
		t.Fatal("voucher must stay used after expiry")
	}
	if _, errValidate := ledger.ValidateTx(conn, "WXL2345", time.Now().UTC()); !errors.Is(errValidate, ledger.ErrVoucherDepleted) {
		t.Fatalf("depleted voucher must not revalidate, got %v", errValidate)
	}

	if got := notifier.broadcasts(); len(got) != 1 || got[0] != sess.ID {
		t.Fatalf("expected terminate broadcast for %s, got %v", sess.ID, got)
	}
}

func TestResumeReschedulesOverdueSessions(t *testing.T) {
	conn := openSessionTestDB(t)
	seedVoucher(t, conn, "WXL2345", 300)

	// Simulate a session left active past its deadline by a crash.
	now := time.Now().UTC()
	stale := models.Session{
		ID:                 "s-stale",
		VoucherCode:        "WXL2345",
		ReceiverIdentifier: "+628123456789",
		CallType:           models.CallTypeGSM,
		OwnerID:            "op-1",
		Active:             true,
		StartTime:          now.Add(-10 * time.Minute),
		Deadline:           now.Add(-5 * time.Minute),
		SeededDuration:     300,
		RemainingDuration:  300,
		TerminatedBy:       models.TerminatedByNone,
	}
	if errCreate := conn.Create(&stale).Error; errCreate != nil {
		t.Fatalf("seed stale session: %v", errCreate)
	}

	o, _ := newTestOrchestrator(t, conn)
	if errResume := o.Resume(context.Background()); errResume != nil {
		t.Fatalf("resume: %v", errResume)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		reloaded, errGet := store.New(conn, nil).GetSession(context.Background(), "s-stale")
		if errGet != nil {
			t.Fatalf("reload session: %v", errGet)
		}
		if !reloaded.Active {
			if reloaded.TerminatedBy != models.TerminatedBySystemExpiry {
				t.Fatalf("expected system-expiry, got %q", reloaded.TerminatedBy)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("overdue session never expired after resume")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestTerminateFromRelaySwallowsUnknownSession(t *testing.T) {
	conn := openSessionTestDB(t)
	o, _ := newTestOrchestrator(t, conn)

	// Must not panic or error; unknown rooms are normal relay traffic.
	o.TerminateFromRelay(context.Background(), "never-existed")
}
