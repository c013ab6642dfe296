package database

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"trackmaster/internal/config"
	"trackmaster/internal/events"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
	"trackmaster/internal/websites"
)

// DBManager wraps cartridge's sqlite.Manager with trackmaster-specific migration methods.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// Models returns every model owned by the schema, in migration order.
func Models() []any {
	return []any{
		&websites.Website{},
		&visitors.Visitor{},
		&visits.Visit{},
		&events.Pageview{},
		&events.Event{},
	}
}

// Migrate creates or updates the schema on db, including the partial unique
// index that allows a single active visit per visitor.
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		if err := tx.Exec(visits.ActiveVisitIndexSQL).Error; err != nil {
			return fmt.Errorf("active visit index: %w", err)
		}
		return nil
	})
}

// MigrateDatabase runs trackmaster migrations.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := Migrate(db); err != nil {
		dm.logger.Error("Failed to migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
