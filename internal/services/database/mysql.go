package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func mysqlDialector(config models.DatabaseConfig) gorm.Dialector {
	dsn := config.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
			config.Username, config.Password, config.Host, config.Port, config.Database)
	}
	return mysql.Open(dsn)
}
