package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
)

// fakeStore is an in-memory implementation of every repository interface.
// It enforces the same uniqueness rules as the database schema.
type fakeStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*domain.User
	permissions map[uuid.UUID]*domain.Permission
	roles       map[uuid.UUID]*domain.Role
	rolePerms   map[uuid.UUID]map[uuid.UUID]struct{}
	userRoles   map[uuid.UUID]map[uuid.UUID]time.Time
	userPerms   map[uuid.UUID]map[uuid.UUID]*domain.UserPermission
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[uuid.UUID]*domain.User),
		permissions: make(map[uuid.UUID]*domain.Permission),
		roles:       make(map[uuid.UUID]*domain.Role),
		rolePerms:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		userRoles:   make(map[uuid.UUID]map[uuid.UUID]time.Time),
		userPerms:   make(map[uuid.UUID]map[uuid.UUID]*domain.UserPermission),
	}
}

func (f *fakeStore) permissionRepo() *fakePermissions { return &fakePermissions{f} }
func (f *fakeStore) roleRepo() *fakeRoles { return &fakeRoles{f} }
func (f *fakeStore) assignmentRepo() *fakeAssignments { return &fakeAssignments{f} }
func (f *fakeStore) userRepo() *fakeUsers { return &fakeUsers{f} }

func (f *fakeStore) addUser(email string) *domain.User {
	u := &domain.User{ID: uuid.New(), Name: email, Email: email, Status: domain.UserStatusActive}
	f.mu.Lock()
	f.users[u.ID] = u
	f.mu.Unlock()
	return u
}

func (f *fakeStore) roleWithPermissions(id uuid.UUID) domain.Role {
	role := *f.roles[id]
	role.Permissions = nil
	for pid := range f.rolePerms[id] {
		role.Permissions = append(role.Permissions, *f.permissions[pid])
	}
	domain.SortPermissions(role.Permissions)
	return role
}

type fakePermissions struct{ f *fakeStore }

func (r *fakePermissions) Create(_ context.Context, p *domain.Permission) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.permissions {
		if existing.Key == p.Key {
			return fmt.Errorf("%w: permission %q already exists", domain.ErrInvalidAssignment, p.Key)
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.f.permissions[p.ID] = &cp
	return nil
}

func (r *fakePermissions) GetByID(_ context.Context, id uuid.UUID) (*domain.Permission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if p, ok := r.f.permissions[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *fakePermissions) GetByKey(_ context.Context, key domain.PermissionKey) (*domain.Permission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, p := range r.f.permissions {
		if p.Key == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePermissions) GetByKeys(_ context.Context, keys []domain.PermissionKey) ([]domain.Permission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	want := make(map[domain.PermissionKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []domain.Permission
	for _, p := range r.f.permissions {
		if want[p.Key] {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePermissions) Update(_ context.Context, p *domain.Permission) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	existing := r.f.permissions[p.ID]
	existing.Name, existing.Description, existing.Module = p.Name, p.Description, p.Module
	return nil
}

func (r *fakePermissions) Delete(_ context.Context, id uuid.UUID) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.permissions, id)
	return nil
}

func (r *fakePermissions) List(_ context.Context, module string) ([]domain.Permission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []domain.Permission
	for _, p := range r.f.permissions {
		if module == "" || p.Module == module {
			out = append(out, *p)
		}
	}
	domain.SortPermissions(out)
	return out, nil
}

func (r *fakePermissions) CountReferences(_ context.Context, id uuid.UUID) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for _, perms := range r.f.rolePerms {
		if _, ok := perms[id]; ok {
			n++
		}
	}
	for _, overrides := range r.f.userPerms {
		if _, ok := overrides[id]; ok {
			n++
		}
	}
	return n, nil
}

func (r *fakePermissions) CountByModule(_ context.Context) (map[string]int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make(map[string]int64)
	for _, p := range r.f.permissions {
		out[p.Module]++
	}
	return out, nil
}

type fakeRoles struct{ f *fakeStore }

func (r *fakeRoles) Create(_ context.Context, role *domain.Role) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.roles {
		if existing.Name == role.Name {
			return fmt.Errorf("%w: role %q already exists", domain.ErrInvalidAssignment, role.Name)
		}
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if role.Color == "" {
		role.Color = domain.DefaultRoleColor
	}
	cp := *role
	cp.Permissions = nil
	r.f.roles[role.ID] = &cp
	r.f.rolePerms[role.ID] = make(map[uuid.UUID]struct{})
	for _, p := range role.Permissions {
		r.f.rolePerms[role.ID][p.ID] = struct{}{}
	}
	return nil
}

func (r *fakeRoles) GetByID(_ context.Context, id uuid.UUID) (*domain.Role, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.roles[id]; !ok {
		return nil, nil
	}
	role := r.f.roleWithPermissions(id)
	return &role, nil
}

func (r *fakeRoles) GetByName(_ context.Context, name domain.RoleName) (*domain.Role, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for id, role := range r.f.roles {
		if role.Name == name {
			out := r.f.roleWithPermissions(id)
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeRoles) Update(_ context.Context, role *domain.Role) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	existing := r.f.roles[role.ID]
	existing.Name, existing.Description, existing.Color = role.Name, role.Description, role.Color
	return nil
}

func (r *fakeRoles) Delete(_ context.Context, id uuid.UUID) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.roles, id)
	delete(r.f.rolePerms, id)
	return nil
}

func (r *fakeRoles) List(_ context.Context) ([]domain.Role, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []domain.Role
	for id := range r.f.roles {
		out = append(out, r.f.roleWithPermissions(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRoles) ReplacePermissions(_ context.Context, roleID uuid.UUID, ids []uuid.UUID) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.rolePerms[roleID] = make(map[uuid.UUID]struct{})
	for _, id := range ids {
		r.f.rolePerms[roleID][id] = struct{}{}
	}
	return nil
}

func (r *fakeRoles) UpdateWithPermissions(ctx context.Context, role *domain.Role, ids []uuid.UUID) error {
	if err := r.Update(ctx, role); err != nil {
		return err
	}
	return r.ReplacePermissions(ctx, role.ID, ids)
}

func (r *fakeRoles) AddPermissions(_ context.Context, roleID uuid.UUID, ids []uuid.UUID) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var added int64
	for _, id := range ids {
		if _, ok := r.f.rolePerms[roleID][id]; !ok {
			r.f.rolePerms[roleID][id] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (r *fakeRoles) CountAssignments(_ context.Context, roleID uuid.UUID) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for _, roles := range r.f.userRoles {
		if _, ok := roles[roleID]; ok {
			n++
		}
	}
	return n, nil
}

func (r *fakeRoles) CountAssignmentsByRole(_ context.Context) (map[uuid.UUID]int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make(map[uuid.UUID]int64)
	for _, roles := range r.f.userRoles {
		for id := range roles {
			out[id]++
		}
	}
	return out, nil
}

func (r *fakeRoles) ListUserIDs(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []uuid.UUID
	for userID, roles := range r.f.userRoles {
		if _, ok := roles[roleID]; ok {
			out = append(out, userID)
		}
	}
	return out, nil
}

type fakeAssignments struct{ f *fakeStore }

func (r *fakeAssignments) AssignRole(_ context.Context, a *domain.UserRole) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.userRoles[a.UserID] == nil {
		r.f.userRoles[a.UserID] = make(map[uuid.UUID]time.Time)
	}
	if _, dup := r.f.userRoles[a.UserID][a.RoleID]; dup {
		return fmt.Errorf("%w: user already has this role", domain.ErrInvalidAssignment)
	}
	r.f.userRoles[a.UserID][a.RoleID] = time.Now()
	return nil
}

func (r *fakeAssignments) RemoveRole(_ context.Context, userID, roleID uuid.UUID) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.userRoles[userID][roleID]; !ok {
		return false, nil
	}
	delete(r.f.userRoles[userID], roleID)
	return true, nil
}

func (r *fakeAssignments) ListUserRoles(_ context.Context, userID uuid.UUID) ([]domain.UserRole, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []domain.UserRole
	for roleID, at := range r.f.userRoles[userID] {
		role := r.f.roleWithPermissions(roleID)
		out = append(out, domain.UserRole{UserID: userID, RoleID: roleID, Role: &role, AssignedAt: at})
	}
	return out, nil
}

func (r *fakeAssignments) ListRoleNames(_ context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []domain.RoleName
	for roleID := range r.f.userRoles[userID] {
		out = append(out, r.f.roles[roleID].Name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *fakeAssignments) RolePermissionKeys(_ context.Context, userID uuid.UUID) ([]domain.PermissionKey, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	seen := make(map[domain.PermissionKey]struct{})
	var out []domain.PermissionKey
	for roleID := range r.f.userRoles[userID] {
		for pid := range r.f.rolePerms[roleID] {
			k := r.f.permissions[pid].Key
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out, nil
}

func (r *fakeAssignments) UserHasRolePermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	keys, _ := r.RolePermissionKeys(ctx, userID)
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAssignments) CountUserRoles(_ context.Context) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for _, roles := range r.f.userRoles {
		n += int64(len(roles))
	}
	return n, nil
}

func (r *fakeAssignments) UpsertUserPermission(_ context.Context, o *domain.UserPermission) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.userPerms[o.UserID] == nil {
		r.f.userPerms[o.UserID] = make(map[uuid.UUID]*domain.UserPermission)
	}
	cp := *o
	cp.Permission = nil
	r.f.userPerms[o.UserID][o.PermissionID] = &cp
	return nil
}

func (r *fakeAssignments) RemoveUserPermission(_ context.Context, userID, permissionID uuid.UUID) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.userPerms[userID][permissionID]; !ok {
		return false, nil
	}
	delete(r.f.userPerms[userID], permissionID)
	return true, nil
}

func (r *fakeAssignments) ListUserPermissions(_ context.Context, userID uuid.UUID) ([]domain.UserPermission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []domain.UserPermission
	for pid, o := range r.f.userPerms[userID] {
		cp := *o
		perm := *r.f.permissions[pid]
		cp.Permission = &perm
		out = append(out, cp)
	}
	return out, nil
}

func (r *fakeAssignments) GetUserPermission(_ context.Context, userID uuid.UUID, key domain.PermissionKey) (*domain.UserPermission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for pid, o := range r.f.userPerms[userID] {
		if r.f.permissions[pid].Key == key {
			cp := *o
			perm := *r.f.permissions[pid]
			cp.Permission = &perm
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeUsers struct{ f *fakeStore }

func (r *fakeUsers) Create(_ context.Context, u *domain.User) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	r.f.users[u.ID] = &cp
	return nil
}

func (r *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if u, ok := r.f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, u := range r.f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	_, ok := r.f.users[id]
	return ok, nil
}
