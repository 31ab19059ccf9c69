package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

func clickhouseDialector(config models.DatabaseConfig) gorm.Dialector {
	dsn := config.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
			config.Username, config.Password, config.Host, config.Port, config.Database)
	}
	return clickhouse.New(clickhouse.Config{
		DSN:                    dsn,
		DefaultGranularity:     3,
		DefaultCompression:     "LZ4",
		DefaultIndexType:       "minmax",
		DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY id",
	})
}
