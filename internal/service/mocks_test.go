package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/logging"
	"github.com/stretchr/testify/mock"
)

// Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// Mock AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) AssignRole(ctx context.Context, a *domain.UserRole) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAssignmentRepository) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, roleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]domain.UserRole, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UserRole), args.Error(1)
}

func (m *MockAssignmentRepository) ListRoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RoleName), args.Error(1)
}

func (m *MockAssignmentRepository) RolePermissionKeys(ctx context.Context, userID uuid.UUID) ([]domain.PermissionKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PermissionKey), args.Error(1)
}

func (m *MockAssignmentRepository) UserHasRolePermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) CountUserRoles(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepository) UpsertUserPermission(ctx context.Context, o *domain.UserPermission) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockAssignmentRepository) RemoveUserPermission(ctx context.Context, userID, permissionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, permissionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) ListUserPermissions(ctx context.Context, userID uuid.UUID) ([]domain.UserPermission, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UserPermission), args.Error(1)
}

func (m *MockAssignmentRepository) GetUserPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (*domain.UserPermission, error) {
	args := m.Called(ctx, userID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPermission), args.Error(1)
}

// Mock PermissionResolver
type MockPermissionResolver struct {
	mock.Mock
}

func (m *MockPermissionResolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) (domain.PermissionSet, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.PermissionSet), args.Error(1)
}

func (m *MockPermissionResolver) HasPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockPermissionResolver) HasAnyPermission(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	args := m.Called(ctx, userID, keys)
	return args.Bool(0), args.Error(1)
}

func (m *MockPermissionResolver) HasAllPermissions(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	args := m.Called(ctx, userID, keys)
	return args.Bool(0), args.Error(1)
}

func (m *MockPermissionResolver) RoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RoleName), args.Error(1)
}

func (m *MockPermissionResolver) CheckPermissions(ctx context.Context, userID uuid.UUID, keys []domain.PermissionKey) (map[domain.PermissionKey]bool, error) {
	args := m.Called(ctx, userID, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.PermissionKey]bool), args.Error(1)
}

// fakeClock is a manually advanced Clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires the service layer over a fakeStore with a memory cache
type testEnv struct {
	store    *fakeStore
	clock    *fakeClock
	cache    ResolutionCache
	resolver *CachedResolver
	service  *AuthzService
	seeder   *Seeder
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	clock := newFakeClock()
	cache, err := NewMemoryCache(&config.CacheConfig{TTLSeconds: 300, MaxSize: 100}, clock)
	if err != nil {
		panic(err)
	}

	log := logging.Discard()
	base := NewPermissionResolver(store.userRepo(), store.assignmentRepo(), nil)
	cached := NewCachedResolver(base, cache, NewMetrics(nil))
	svc := NewAuthzService(store.permissionRepo(), store.roleRepo(), store.assignmentRepo(), store.userRepo(), cached, cached, log)
	seeder := NewSeeder(store.permissionRepo(), store.roleRepo(), store.assignmentRepo(), store.userRepo(), cached, log)

	return &testEnv{
		store:    store,
		clock:    clock,
		cache:    cache,
		resolver: cached,
		service:  svc,
		seeder:   seeder,
	}
}
