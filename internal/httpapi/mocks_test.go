package httpapi

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/service"
	"github.com/stretchr/testify/mock"
)

// Mock AdminService
type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) CreatePermission(ctx context.Context, key, name, description, module string) (*domain.Permission, error) {
	args := m.Called(ctx, key, name, description, module)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Permission), args.Error(1)
}

func (m *MockAdminService) UpdatePermission(ctx context.Context, id uuid.UUID, name, description, module string) (*domain.Permission, error) {
	args := m.Called(ctx, id, name, description, module)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Permission), args.Error(1)
}

func (m *MockAdminService) DeletePermission(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAdminService) ListPermissions(ctx context.Context, module string) ([]domain.Permission, error) {
	args := m.Called(ctx, module)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Permission), args.Error(1)
}

func (m *MockAdminService) GroupedPermissions(ctx context.Context) (map[string][]domain.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]domain.Permission), args.Error(1)
}

func (m *MockAdminService) CreateRole(ctx context.Context, input service.RoleInput) (*domain.Role, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *MockAdminService) GetRole(ctx context.Context, id uuid.UUID) (*domain.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *MockAdminService) UpdateRole(ctx context.Context, id uuid.UUID, patch service.RolePatch) (*domain.Role, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *MockAdminService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAdminService) ListRoles(ctx context.Context) ([]service.RoleSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.RoleSummary), args.Error(1)
}

func (m *MockAdminService) AssignRole(ctx context.Context, userID, roleID uuid.UUID, assignedBy *uuid.UUID) error {
	args := m.Called(ctx, userID, roleID, assignedBy)
	return args.Error(0)
}

func (m *MockAdminService) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	args := m.Called(ctx, userID, roleID)
	return args.Error(0)
}

func (m *MockAdminService) SetDirectPermission(ctx context.Context, userID uuid.UUID, key string, granted bool, assignedBy *uuid.UUID) error {
	args := m.Called(ctx, userID, key, granted, assignedBy)
	return args.Error(0)
}

func (m *MockAdminService) RemoveDirectPermission(ctx context.Context, userID uuid.UUID, key string) error {
	args := m.Called(ctx, userID, key)
	return args.Error(0)
}

func (m *MockAdminService) GetUserPermissions(ctx context.Context, userID uuid.UUID) (*service.UserPermissions, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UserPermissions), args.Error(1)
}

func (m *MockAdminService) UserRoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RoleName), args.Error(1)
}

func (m *MockAdminService) CheckPermission(ctx context.Context, userID uuid.UUID, key string) (bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockAdminService) CheckPermissions(ctx context.Context, userID uuid.UUID, keys []string) (map[domain.PermissionKey]bool, error) {
	args := m.Called(ctx, userID, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.PermissionKey]bool), args.Error(1)
}

func (m *MockAdminService) Stats(ctx context.Context) (*service.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Stats), args.Error(1)
}

func (m *MockAdminService) ClearCache(ctx context.Context) {
	m.Called(ctx)
}

// Mock Bootstrapper
type MockBootstrapper struct {
	mock.Mock
}

func (m *MockBootstrapper) Seed(ctx context.Context) (*service.SeedResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SeedResult), args.Error(1)
}

// memUsers is a map-backed UserRepository for the authenticator
type memUsers struct {
	users map[uuid.UUID]*domain.User
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return m.users[id], nil
}

func (m *memUsers) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, nil
}

func (m *memUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.users[id]
	return ok, nil
}

// setResolver answers from fixed permission sets
type setResolver struct {
	sets map[uuid.UUID]domain.PermissionSet
}

func (s *setResolver) EffectivePermissions(_ context.Context, userID uuid.UUID) (domain.PermissionSet, error) {
	set, ok := s.sets[userID]
	if !ok {
		return domain.PermissionSet{}, domain.ErrUserNotFound
	}
	return set, nil
}

func (s *setResolver) HasPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	set, err := s.EffectivePermissions(ctx, userID)
	return set.Has(key), err
}

func (s *setResolver) HasAnyPermission(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	set, err := s.EffectivePermissions(ctx, userID)
	return set.HasAny(keys...), err
}

func (s *setResolver) HasAllPermissions(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	set, err := s.EffectivePermissions(ctx, userID)
	return set.HasAll(keys...), err
}

func (s *setResolver) RoleNames(context.Context, uuid.UUID) ([]domain.RoleName, error) {
	return nil, errors.New("not used")
}

func (s *setResolver) CheckPermissions(context.Context, uuid.UUID, []domain.PermissionKey) (map[domain.PermissionKey]bool, error) {
	return nil, errors.New("not used")
}

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }
