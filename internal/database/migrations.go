package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationFoodEntriesDayIndex       = "2026-10-01_food_entries_user_date_time_index"
	migrationUserIdentitiesLastSeenIdx = "2026-10-08_user_identities_user_last_seen_index"

	identityLastSeenIndexName = "idx_user_identities_user_last_seen"
)

// migrationRecord marks a named migration as applied.
type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type namedMigration struct {
	name  string
	apply func(*gorm.DB) error
}

// schemaMigrations run in order, each at most once per database.
var schemaMigrations = []namedMigration{
	{name: migrationFoodEntriesDayIndex, apply: createFoodEntriesDayIndex},
	{name: migrationUserIdentitiesLastSeenIdx, apply: createIdentityLastSeenIndex},
}

// AppliedMigration describes one row of the migration ledger.
type AppliedMigration struct {
	Name      string
	AppliedAt time.Time
}

// AppliedMigrations lists the recorded migrations, oldest first.
func AppliedMigrations(db *gorm.DB) ([]AppliedMigration, error) {
	var records []migrationRecord
	if err := db.Order("applied_at_s ASC").Order("name ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: list migrations: %w", err)
	}
	applied := make([]AppliedMigration, 0, len(records))
	for _, record := range records {
		applied = append(applied, AppliedMigration{
			Name:      record.Name,
			AppliedAt: time.Unix(record.AppliedAtSeconds, 0).UTC(),
		})
	}
	return applied, nil
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, migration := range schemaMigrations {
		applied, err := applyOnce(db, migration)
		if err != nil {
			return fmt.Errorf("database: migration %s: %w", migration.name, err)
		}
		if applied {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// applyOnce runs the migration and records it in one transaction. It reports
// false when the ledger already lists the migration.
func applyOnce(db *gorm.DB, migration namedMigration) (bool, error) {
	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var record migrationRecord
		err := tx.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(tx); err != nil {
			return err
		}
		applied = true
		return tx.Create(&migrationRecord{
			Name:             migration.name,
			AppliedAtSeconds: time.Now().UTC().Unix(),
		}).Error
	})
	return applied, err
}

// createFoodEntriesDayIndex adds the (user_id, date, logged_at) index the
// indexed query mode orders by.
func createFoodEntriesDayIndex(db *gorm.DB) error {
	return db.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (user_id, date, logged_at DESC)",
		entries.DayIndexName,
		entries.Entry{}.TableName(),
	)).Error
}

// createIdentityLastSeenIndex serves profile lookups, which pick the most
// recently seen identity of a user.
func createIdentityLastSeenIndex(db *gorm.DB) error {
	return db.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (user_id, last_seen_at DESC)",
		identityLastSeenIndexName,
		users.Identity{}.TableName(),
	)).Error
}
