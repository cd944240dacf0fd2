// Package database is the MySQL persistence layer. It holds the GORM models
// for users, departments, face embeddings and attendance records, and the
// repositories the services use to reach them.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MrCodeEU/attendface/pkg/config"
	"github.com/MrCodeEU/attendface/pkg/logging"
)

// ErrNoDSN is returned when no connection string is configured.
var ErrNoDSN = errors.New("database dsn is not configured")

const mysqlDuplicateEntry = 1062

// DB wraps a GORM handle.
type DB struct {
	gorm *gorm.DB
}

// Open connects to MySQL and applies the pool settings.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}

	g, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Component("database").Info("Database connection established")
	return &DB{gorm: g}, nil
}

// Gorm exposes the underlying handle.
func (db *DB) Gorm() *gorm.DB {
	return db.gorm
}

// Migrate creates or updates every table.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.gorm.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logging.Component("database").Info("Database schema migrated")
	return nil
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
