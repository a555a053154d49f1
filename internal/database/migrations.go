package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/enpointe/notes/internal/notes"
)

const (
	migrationNormalizeUserEmails      = "2026-10-01_normalize_user_emails"
	migrationDropOwnerGrants          = "2026-10-01_drop_owner_collaborator_grants"
	migrationRemoveOrphanedNoteRecord = "2026-10-02_remove_orphaned_note_records"
)

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

func migrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationNormalizeUserEmails, apply: normalizeUserEmails},
		{name: migrationDropOwnerGrants, apply: dropOwnerGrants},
		{name: migrationRemoveOrphanedNoteRecord, apply: removeOrphanedNoteRecords},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func normalizeUserEmails(db *gorm.DB) error {
	return db.Exec("UPDATE users SET email = lower(trim(email)) WHERE email <> lower(trim(email))").Error
}

func dropOwnerGrants(db *gorm.DB) error {
	owners := db.Model(&notes.Note{}).Select("note_id").Where("notes.owner_id = note_collaborators.user_id")
	return db.Where("note_id IN (?)", owners).Delete(&notes.Collaborator{}).Error
}

func removeOrphanedNoteRecords(db *gorm.DB) error {
	existing := db.Model(&notes.Note{}).Select("note_id")
	for _, model := range []any{&notes.Collaborator{}, &notes.ShareLink{}, &notes.ActivityRecord{}} {
		if err := db.Where("note_id NOT IN (?)", existing).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
