package database

import (
	"strings"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteMemoryDSN = "file::memory:?cache=shared"

// sqliteDialector opens FilePath, or a shared in-memory database when it is empty or ":memory:"
func sqliteDialector(config models.DatabaseConfig) gorm.Dialector {
	path := config.FilePath
	if path == "" || path == ":memory:" {
		return sqlite.Open(sqliteMemoryDSN)
	}
	if !strings.Contains(path, "?") {
		// Concurrent quota increments wait on the write lock instead of failing with SQLITE_BUSY.
		path += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	return sqlite.Open(path)
}
