package database

import (
	"fmt"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the sqlite database at dbPath and migrates every model.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.UserBoard{},
		&models.WebhookSetting{},
		&models.TrelloWebhook{},
		&models.TrelloWebhookEvent{},
		&models.CopiedCard{},
	); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return db, nil
}

func Init(dbPath string) *gorm.DB {
	db, err := Open(dbPath)
	if err != nil {
		zap.L().Fatal("Failed to initialise database", zap.String("path", dbPath), zap.Error(err))
	}

	zap.L().Info("Database initialised and migrated successfully", zap.String("path", dbPath))

	return db
}
