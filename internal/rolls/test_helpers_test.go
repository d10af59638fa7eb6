package rolls

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedRoller struct {
	values map[int][]int
	calls  map[int]int
}

func newFixedRoller(values map[int][]int) *fixedRoller {
	return &fixedRoller{values: values, calls: map[int]int{}}
}

// Roll returns the configured values for a side count in order, wrapping.
func (r *fixedRoller) Roll(sides int) (int, error) {
	sequence := r.values[sides]
	if len(sequence) == 0 {
		return 1, nil
	}
	value := sequence[r.calls[sides]%len(sequence)]
	r.calls[sides]++
	return value, nil
}

type steppingClock struct {
	current time.Time
	step    time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "rolls.db")
	db, err := gorm.Open(sqlite.Open(databasePath+"?_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, roller Roller) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	clock := &steppingClock{current: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), step: time.Minute}
	service, err := NewService(ServiceConfig{
		Database: db,
		Roller:   roller,
		Clock:    clock.Now,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func validSubmission() Submission {
	return Submission{
		Username:      "Kirito",
		CharacterName: "Kirito",
		Purpose:       "Boss fight",
		Campaign:      "Aincrad",
		SessionName:   "Floor 1",
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func assertDiceInRange(t *testing.T, dice DiceValues) {
	t.Helper()
	checks := []struct {
		code  string
		value int
		sides int
	}{
		{DieCodeBasic, dice.BD, 10},
		{DieCodeCombo, dice.CD, 12},
		{DieCodeLucky, dice.LD, 20},
		{DieCodeModifier, dice.MD, 10},
	}
	for _, check := range checks {
		if check.value < 1 || check.value > check.sides {
			t.Fatalf("%s value %d outside [1,%d]", check.code, check.value, check.sides)
		}
	}
}
