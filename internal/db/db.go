// Package db opens the gorm connection for the configured engine and migrates the schema.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/db/dsn"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/logger/adapter/gormlogger"
)

// Dialector returns the gorm driver for cfg.DB.GormEngine.
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	source := dsn.Create(cfg)

	switch cfg.DB.GormEngine {
	case config.EngineMySQL:
		return mysql.Open(source), nil
	case config.EnginePostgres:
		return postgres.Open(source), nil
	case config.EngineSQLite, "":
		return sqlite.Open(source), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnsupportedGormEngine, cfg.DB.GormEngine)
	}
}

// Open connects, logs statements through zl and migrates all models.
func Open(cfg *config.Config, zl zerolog.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zl, cfg.Log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// sqlite allows one writer at a time
	if cfg.DB.GormEngine == config.EngineSQLite || cfg.DB.GormEngine == "" {
		sqlDB, errDB := conn.DB()
		if errDB != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", errDB)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err = Migrate(conn); err != nil {
		return nil, err
	}

	return conn, nil
}

// Migrate creates or updates all tables.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
