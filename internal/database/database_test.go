package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/diceledger/internal/rolls"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: databasePath}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func countDieTypes(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&rolls.DieType{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count die types: %v", err)
	}
	return count
}

func TestOpenCreatesSchemaAndSeedsDieTypes(t *testing.T) {
	db := openTestDatabase(t)

	for _, model := range rolls.Models() {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	if count := countDieTypes(t, db); count != 4 {
		t.Fatalf("expected four die types, got %d", count)
	}

	var record migrationRecord
	if err := db.Where("name = ?", migrationSeedDieTypes).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatalf("expected migration timestamp to be set")
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	db := openTestDatabase(t)

	for i := 0; i < 3; i++ {
		if err := Prepare(context.Background(), db, zap.NewNop()); err != nil {
			t.Fatalf("prepare %d failed: %v", i, err)
		}
	}
	if count := countDieTypes(t, db); count != 4 {
		t.Fatalf("expected four die types after repeated prepare, got %d", count)
	}
}

func TestResetThenPrepareRecreatesSchema(t *testing.T) {
	db := openTestDatabase(t)

	if err := Reset(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if db.Migrator().HasTable(&rolls.Roll{}) {
		t.Fatalf("expected roll table to be dropped")
	}
	if db.Migrator().HasTable(&migrationRecord{}) {
		t.Fatalf("expected migration ledger to be dropped")
	}

	if err := Prepare(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if count := countDieTypes(t, db); count != 4 {
		t.Fatalf("expected reseeded die types, got %d", count)
	}
}

func TestOpenRejectsIncompleteConfig(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "postgres-without-url", cfg: Config{Driver: DriverPostgres}},
		{name: "sqlite-without-path", cfg: Config{Driver: DriverSQLite}},
		{name: "unknown-driver", cfg: Config{Driver: "oracle", URL: "x"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := Open(context.Background(), testCase.cfg, nil); err == nil {
				t.Fatalf("expected error for %+v", testCase.cfg)
			}
		})
	}
}

func TestSQLiteDSNEnablesForeignKeys(t *testing.T) {
	if got := sqliteDSN("ledger.db"); got != "ledger.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := sqliteDSN("file:ledger.db?mode=rwc"); got != "file:ledger.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("unexpected dsn %q", got)
	}
}
