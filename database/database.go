package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"torrent-catalog/config"
	"torrent-catalog/models"
)

// DB is the process-wide connection opened by InitDB.
var DB *gorm.DB

// InitDB opens the configured database, applies pool limits and migrates the
// catalog tables.
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := openDialector(&cfg.Database)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{}
	if cfg.Server.Env == "development" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	DB = db

	slog.Info("database connected", "driver", cfg.Database.Driver)
	return db, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.GetConnectionString()), nil
	case "mysql":
		return mysql.Open(cfg.GetConnectionString()), nil
	case "postgres":
		return postgres.Open(cfg.GetConnectionString()), nil
	case "sqlserver":
		return sqlserver.Open(cfg.GetConnectionString()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func autoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&models.Torrent{},
		&models.File{},
		&models.Tracker{},
		&models.WebSeed{},
	}

	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	slog.Debug("database migration completed")
	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	DB = nil
	return sqlDB.Close()
}

func GetDB() *gorm.DB {
	return DB
}

func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// GetStats reports row counts and connection pool usage.
func GetStats() map[string]interface{} {
	if DB == nil {
		return nil
	}

	stats := make(map[string]interface{})

	var torrentCount, fileCount, trackerCount int64
	DB.Model(&models.Torrent{}).Count(&torrentCount)
	DB.Model(&models.File{}).Count(&fileCount)
	DB.Model(&models.Tracker{}).Count(&trackerCount)

	stats["torrents_count"] = torrentCount
	stats["files_count"] = fileCount
	stats["trackers_count"] = trackerCount

	sqlDB, err := DB.DB()
	if err == nil {
		dbStats := sqlDB.Stats()
		stats["max_open_connections"] = dbStats.MaxOpenConnections
		stats["open_connections"] = dbStats.OpenConnections
		stats["in_use"] = dbStats.InUse
		stats["idle"] = dbStats.Idle
	}

	return stats
}
