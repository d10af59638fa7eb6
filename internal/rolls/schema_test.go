package rolls

import (
	"context"
	"testing"
)

func TestSeedDieTypesIsIdempotent(t *testing.T) {
	db := openTestDatabase(t)

	for i := 0; i < 3; i++ {
		dieTypes, err := SeedDieTypes(context.Background(), db)
		if err != nil {
			t.Fatalf("seed %d failed: %v", i, err)
		}
		if len(dieTypes) != 4 {
			t.Fatalf("expected four die types, got %d", len(dieTypes))
		}
	}

	if count := countRows(t, db, &DieType{}); count != 4 {
		t.Fatalf("expected exactly four die type rows, got %d", count)
	}

	dieTypes, err := SeedDieTypes(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []DieType{
		{Code: DieCodeBasic, Name: "Basic Dice", Sides: 10},
		{Code: DieCodeCombo, Name: "Combo Dice", Sides: 12},
		{Code: DieCodeLucky, Name: "Lucky Dice", Sides: 20},
		{Code: DieCodeModifier, Name: "Modifier Dice", Sides: 10},
	}
	for index, dieType := range dieTypes {
		if dieType.Code != expected[index].Code || dieType.Name != expected[index].Name || dieType.Sides != expected[index].Sides {
			t.Fatalf("unexpected die type at %d: %+v", index, dieType)
		}
		if dieType.ID == 0 {
			t.Fatalf("expected persisted id for %s", dieType.Code)
		}
	}
}

func TestDieTypeCodeIsUnique(t *testing.T) {
	db := openTestDatabase(t)
	if _, err := SeedDieTypes(context.Background(), db); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := db.Create(&DieType{Code: DieCodeBasic, Name: "Duplicate", Sides: 6}).Error; err == nil {
		t.Fatalf("expected duplicate code to be rejected")
	}
}

func TestRollRequiresExistingReferences(t *testing.T) {
	db := openTestDatabase(t)
	orphan := Roll{UserID: 1, SessionID: 1, CharacterID: 1, Purpose: "orphan"}
	if err := db.Create(&orphan).Error; err == nil {
		t.Fatalf("expected foreign key violation for orphan roll")
	}
}
