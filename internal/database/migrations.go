package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationLowercaseSessionEmails = "2026-10-12_lowercase_session_emails"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationLowercaseSessionEmails, apply: lowercaseSessionEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Sessions saved before email normalization kept the casing typed at login.
func lowercaseSessionEmails(db *gorm.DB) error {
	return db.Model(&session.Record{}).
		Where("user_email <> lower(user_email)").
		Update("user_email", gorm.Expr("lower(user_email)")).Error
}
