package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the gorm.DB connection
type Database struct {
	*gorm.DB
	log logrus.FieldLogger
}

// DSN renders the libpq connection string for cfg
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log logrus.FieldLogger) (*Database, error) {
	db, err := gorm.Open(postgres.Open(DSN(cfg)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)

	// pgcrypto provides gen_random_uuid()
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"pgcrypto\"").Error; err != nil {
		// Ignore error if extension already exists (race condition in parallel tests)
		if !isExtensionExistsError(err) {
			return nil, fmt.Errorf("failed to enable pgcrypto extension: %w", err)
		}
	}

	return &Database{DB: db, log: log}, nil
}

// NewFromConn wraps an already opened *sql.DB, e.g. a sqlmock connection
func NewFromConn(conn *sql.DB, log logrus.FieldLogger) (*Database, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}
	return &Database{DB: db, log: log}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	}
}

// AutoMigrate runs automatic migration for all models
func (db *Database) AutoMigrate() error {
	db.log.Info("Running database migrations...")

	if err := Migrate(db.DB); err != nil {
		return err
	}

	db.log.Info("Database migrations completed successfully")
	return nil
}

// Migrate creates or updates the authorization tables on db
func Migrate(db *gorm.DB) error {
	// The custom join table must be registered before the owning model migrates
	if err := db.SetupJoinTable(&domain.Role{}, "Permissions", &domain.RolePermission{}); err != nil {
		return fmt.Errorf("failed to set up role_permissions join table: %w", err)
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Permission{},
		&domain.Role{},
		&domain.RolePermission{},
		&domain.UserRole{},
		&domain.UserPermission{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database connection is alive
func (db *Database) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// isExtensionExistsError checks if the error is due to an extension already existing.
// Multiple processes creating extensions concurrently race on pg_extension_name_index.
func isExtensionExistsError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "pg_extension_name_index") ||
		strings.Contains(errMsg, "extension") && strings.Contains(errMsg, "already exists")
}
