package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDialector(config models.DatabaseConfig) gorm.Dialector {
	dsn := config.DSN
	if dsn == "" {
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			config.Host, config.Port, config.Username, config.Password, config.Database, sslMode)
	}
	return postgres.Open(dsn)
}
