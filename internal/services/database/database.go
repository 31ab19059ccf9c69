package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

// Migrator is implemented by every service that owns tables
type Migrator interface {
	AutoMigrate() error
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping() error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (db *DB) DriverName() string {
	return db.driverName
}

// Migrate creates the gateway tables. ClickHouse gets hand-written DDL since
// AutoMigrate cannot express MergeTree tables.
func (db *DB) Migrate(migrators ...Migrator) error {
	if db.config.Type == models.ClickHouse {
		return RunClickHouseMigrations(db.DB)
	}
	for _, m := range migrators {
		if err := m.AutoMigrate(); err != nil {
			return fmt.Errorf("auto-migrate failed: %w", err)
		}
	}
	fiberlog.Infof("Database: migrated %d services on %s", len(migrators), db.driverName)
	return nil
}

func (db *DB) setConnectionPool() {
	if db.DB == nil {
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if lifetime := db.config.ConnLifetime(); lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	}
}

// gormConfig translates driver errors so duplicate usage and metric rows surface as gorm.ErrDuplicatedKey
func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func New(config models.DatabaseConfig) (*DB, error) {
	if !config.Type.Valid() {
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
	driverName := config.Type.DriverName()

	var dialector gorm.Dialector
	switch config.Type {
	case models.PostgreSQL:
		dialector = postgresDialector(config)
	case models.MySQL:
		dialector = mysqlDialector(config)
	case models.SQLite:
		dialector = sqliteDialector(config)
	case models.ClickHouse:
		dialector = clickhouseDialector(config)
	}

	gormCfg := gormConfig()
	if config.Type == models.ClickHouse {
		// The ClickHouse driver has incomplete prepared statement support.
		gormCfg.PrepareStmt = false
	}

	gormDB, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driverName, err)
	}

	db := &DB{DB: gormDB, config: config, driverName: driverName}
	db.setConnectionPool()
	if config.Type == models.SQLite {
		if sqlDB, err := gormDB.DB(); err == nil && config.MaxOpenConns == 0 {
			// SQLite allows a single writer.
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driverName, err)
	}

	fiberlog.Infof("Database: connected to %s", driverName)
	return db, nil
}
