package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/diceledger/internal/rolls"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the relational engine backing the roll ledger.
type Config struct {
	Driver string
	URL    string
	Path   string
}

// Open connects to the configured datastore and prepares the schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if normalizeDriver(cfg.Driver) == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Prepare(ctx, db, logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", normalizeDriver(cfg.Driver)))
	return db, nil
}

// Prepare creates missing tables and applies pending migrations. Safe to run
// against an already initialized database.
func Prepare(ctx context.Context, db *gorm.DB, logger *zap.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(append(rolls.Models(), &migrationRecord{})...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return applyMigrations(db.WithContext(ctx), logger)
}

// Reset drops every ledger table, including the migration ledger.
func Reset(ctx context.Context, db *gorm.DB, logger *zap.Logger) error {
	models := append(rolls.Models(), &migrationRecord{})
	if err := db.WithContext(ctx).Migrator().DropTable(models...); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	if logger != nil {
		logger.Warn("database tables dropped")
	}
	return nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverPostgres:
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("database url is required")
		}
		return postgres.Open(cfg.URL), nil
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return sqlite.Open(sqliteDSN(cfg.Path)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func normalizeDriver(driver string) string {
	return strings.ToLower(strings.TrimSpace(driver))
}
