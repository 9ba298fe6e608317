package database

import (
	"github.com/tmalldedede/agentbox/internal/logger"
)

var migLog = logger.Module("database.migrations")

// AutoMigrate runs database migrations
func AutoMigrate() error {
	migLog.Info("running database migrations...")

	models := []interface{}{
		&TaskModel{},
		&BatchResultModel{},
	}

	for _, model := range models {
		if err := DB.AutoMigrate(model); err != nil {
			return err
		}
	}

	migLog.Info("database migrations completed")
	return nil
}
