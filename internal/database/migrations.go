package database

import (
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/models"
)

// AutoMigrate creates or updates the schema for every persisted model.
// Referenced tables come first so foreign keys resolve during migration.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.UserTeamRef{},
		&models.Invitation{},
		&models.AuditLog{},
		&models.Notification{},
		&models.CacheEntry{},
	)
}
