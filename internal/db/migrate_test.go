package db

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/wartelsys/wartel/internal/models"
)

func openMigrateTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestMigrateCreatesTables(t *testing.T) {
	conn := openMigrateTestDB(t)

	for _, table := range []string{"vouchers", "sessions", "receivers", "activity_logs"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
}

func testSession(voucherCode, id string, active bool) models.Session {
	now := time.Now().UTC()
	return models.Session{
		ID:                 id,
		VoucherCode:        voucherCode,
		ReceiverIdentifier: "+628123456789",
		CallType:           models.CallTypeGSM,
		OwnerID:            "op-1",
		Active:             active,
		StartTime:          now,
		Deadline:           now.Add(300 * time.Second),
		SeededDuration:     300,
		RemainingDuration:  300,
		TerminatedBy:       models.TerminatedByNone,
	}
}

func TestMigratePartialIndexRejectsSecondActiveSession(t *testing.T) {
	conn := openMigrateTestDB(t)

	first := testSession("WXL2345", "s-1", true)
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create first session: %v", errCreate)
	}

	second := testSession("WXL2345", "s-2", true)
	errCreate := conn.Create(&second).Error
	if errCreate == nil {
		t.Fatal("expected duplicate-key error for second active session")
	}
}

func TestMigratePartialIndexAllowsInactiveHistory(t *testing.T) {
	conn := openMigrateTestDB(t)

	ended := testSession("WXL2345", "s-1", false)
	ended.TerminatedBy = models.TerminatedByUser
	if errCreate := conn.Create(&ended).Error; errCreate != nil {
		t.Fatalf("create ended session: %v", errCreate)
	}
	alsoEnded := testSession("WXL2345", "s-2", false)
	alsoEnded.TerminatedBy = models.TerminatedBySystemExpiry
	if errCreate := conn.Create(&alsoEnded).Error; errCreate != nil {
		t.Fatalf("create second ended session: %v", errCreate)
	}

	active := testSession("WXL2345", "s-3", true)
	if errCreate := conn.Create(&active).Error; errCreate != nil {
		t.Fatalf("create active session alongside history: %v", errCreate)
	}
}
