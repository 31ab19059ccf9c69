package database

import (
	"testing"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tableMigrator struct {
	db  *DB
	ran bool
}

func (m *tableMigrator) AutoMigrate() error {
	m.ran = true
	return m.db.AutoMigrate(&models.User{})
}

func TestNewSQLiteInMemory(t *testing.T) {
	db, err := New(models.DatabaseConfig{Type: models.SQLite})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite3", db.DriverName())
	assert.NoError(t, db.Ping())

	m := &tableMigrator{db: db}
	require.NoError(t, db.Migrate(m))
	assert.True(t, m.ran)
	assert.True(t, db.Migrator().HasTable(&models.User{}))
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(models.DatabaseConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestCloseWithoutConnection(t *testing.T) {
	var db DB
	assert.NoError(t, db.Close())
	assert.Error(t, db.Ping())
}
