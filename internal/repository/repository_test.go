package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/database"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDSN() string {
	dbHost := os.Getenv("TEST_DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	return fmt.Sprintf("host=%s port=5432 user=postgres password=postgres dbname=crm_authz sslmode=disable", dbHost)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	admin, err := gorm.Open(postgres.Open(testDSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	// Create a unique schema for this test to avoid conflicts
	schemaName := fmt.Sprintf("test_%s", uuid.New().String()[:8])
	require.NoError(t, admin.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName)).Error)

	// search_path as a connection parameter applies to every pooled connection
	db, err := gorm.Open(postgres.Open(testDSN()+" search_path="+schemaName), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		admin.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
		if sqlDB, err := admin.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// setupMockDB opens gorm over sqlmock for store failure tests
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	return db, mock
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	user := &domain.User{Name: email, Email: email}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func createTestPermission(t *testing.T, db *gorm.DB, key, module string) *domain.Permission {
	t.Helper()
	perm := &domain.Permission{
		Key:    domain.MustPermissionKey(key),
		Name:   key,
		Module: module,
	}
	require.NoError(t, NewPermissionRepository(db).Create(context.Background(), perm))
	return perm
}

func createTestRole(t *testing.T, db *gorm.DB, name string, perms ...*domain.Permission) *domain.Role {
	t.Helper()
	role := &domain.Role{Name: domain.MustRoleName(name)}
	for _, p := range perms {
		role.Permissions = append(role.Permissions, *p)
	}
	require.NoError(t, NewRoleRepository(db).Create(context.Background(), role))
	return role
}
