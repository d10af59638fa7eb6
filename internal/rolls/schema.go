package rolls

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDieTypes is the fixed dice set seeded at initialization.
var DefaultDieTypes = []DieType{
	{Code: DieCodeBasic, Name: "Basic Dice", Sides: 10},
	{Code: DieCodeCombo, Name: "Combo Dice", Sides: 12},
	{Code: DieCodeLucky, Name: "Lucky Dice", Sides: 20},
	{Code: DieCodeModifier, Name: "Modifier Dice", Sides: 10},
}

// Models lists the persisted models in dependency order.
func Models() []any {
	return []any{
		&User{},
		&Campaign{},
		&Character{},
		&Session{},
		&Post{},
		&Roll{},
		&DieType{},
		&DieResult{},
	}
}

// SeedDieTypes inserts the default die types when absent and returns the
// stored rows ordered by code. Safe to call any number of times.
func SeedDieTypes(ctx context.Context, db *gorm.DB) ([]DieType, error) {
	return ensureDieTypes(db.WithContext(ctx))
}

func ensureDieTypes(tx *gorm.DB) ([]DieType, error) {
	seed := make([]DieType, len(DefaultDieTypes))
	codes := make([]string, len(DefaultDieTypes))
	for index, dieType := range DefaultDieTypes {
		seed[index] = DieType{Code: dieType.Code, Name: dieType.Name, Sides: dieType.Sides}
		codes[index] = dieType.Code
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, err
	}

	var stored []DieType
	if err := tx.Where("code IN ?", codes).Order("code").Find(&stored).Error; err != nil {
		return nil, err
	}
	if len(stored) != len(DefaultDieTypes) {
		return nil, fmt.Errorf("expected %d die types, found %d", len(DefaultDieTypes), len(stored))
	}
	return stored, nil
}
