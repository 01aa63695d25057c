package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/repository"
	"github.com/sirupsen/logrus"
)

// SeedResult counts what a bootstrap run created
type SeedResult struct {
	PermissionsCreated   int   `json:"permissions_created"`
	RolesCreated         int   `json:"roles_created"`
	RolePermissionsAdded int64 `json:"role_permissions_added"`
}

// Seeder installs the default catalog and roles. Runs are idempotent and
// add-only: existing rows and extra role permissions are never touched.
type Seeder struct {
	permissionRepo repository.PermissionRepository
	roleRepo       repository.RoleRepository
	assignmentRepo repository.AssignmentRepository
	userRepo       repository.UserRepository
	invalidator    CacheInvalidator
	log            logrus.FieldLogger
}

// NewSeeder creates a new bootstrap seeder
func NewSeeder(
	permissionRepo repository.PermissionRepository,
	roleRepo repository.RoleRepository,
	assignmentRepo repository.AssignmentRepository,
	userRepo repository.UserRepository,
	invalidator CacheInvalidator,
	log logrus.FieldLogger,
) *Seeder {
	return &Seeder{
		permissionRepo: permissionRepo,
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		invalidator:    invalidator,
		log:            log,
	}
}

// Seed upserts the catalog by key and the default roles by name
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}
	ids := make(map[domain.PermissionKey]uuid.UUID, len(defaultCatalog))

	for _, entry := range DefaultCatalog() {
		perm, created, err := s.ensurePermission(ctx, entry)
		if err != nil {
			return nil, err
		}
		if created {
			result.PermissionsCreated++
		}
		ids[perm.Key] = perm.ID
	}

	for _, tmpl := range DefaultRoles() {
		role, created, err := s.ensureRole(ctx, tmpl)
		if err != nil {
			return nil, err
		}
		if created {
			result.RolesCreated++
		}

		permissionIDs := make([]uuid.UUID, 0, len(tmpl.Permissions))
		for _, k := range tmpl.Permissions {
			if id, ok := ids[k]; ok {
				permissionIDs = append(permissionIDs, id)
			}
		}
		added, err := s.roleRepo.AddPermissions(ctx, role.ID, permissionIDs)
		if err != nil {
			return nil, err
		}
		result.RolePermissionsAdded += added
	}

	// Role grants may have grown for existing holders
	if result.RolePermissionsAdded > 0 {
		s.invalidator.InvalidateAll(ctx)
	}

	s.log.WithFields(logrus.Fields{
		"permissions_created":    result.PermissionsCreated,
		"roles_created":          result.RolesCreated,
		"role_permissions_added": result.RolePermissionsAdded,
	}).Info("permission system initialized")

	return result, nil
}

// AssignBootstrapAdmin gives the Administrator role to the user with email.
// It reports false when the user already had the role.
func (s *Seeder) AssignBootstrapAdmin(ctx context.Context, email string) (bool, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("%w: %s", domain.ErrUserNotFound, email)
	}

	role, err := s.roleRepo.GetByName(ctx, RoleAdministrator)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, fmt.Errorf("%w: role %q, run the seed first", domain.ErrNotFound, RoleAdministrator)
	}

	err = s.assignmentRepo.AssignRole(ctx, &domain.UserRole{UserID: user.ID, RoleID: role.ID})
	if errors.Is(err, domain.ErrInvalidAssignment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.invalidator.InvalidateUser(ctx, user.ID)
	s.log.WithField("email", email).Info("bootstrap administrator assigned")
	return true, nil
}

func (s *Seeder) ensurePermission(ctx context.Context, entry CatalogEntry) (*domain.Permission, bool, error) {
	existing, err := s.permissionRepo.GetByKey(ctx, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	perm := &domain.Permission{Key: entry.Key, Name: entry.Name, Module: entry.Module}
	err = s.permissionRepo.Create(ctx, perm)
	if errors.Is(err, domain.ErrInvalidAssignment) {
		// Another seeder won the race
		existing, err = s.permissionRepo.GetByKey(ctx, entry.Key)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("%w: permission %q vanished during seed", domain.ErrNotFound, entry.Key)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return perm, true, nil
}

func (s *Seeder) ensureRole(ctx context.Context, tmpl RoleTemplate) (*domain.Role, bool, error) {
	existing, err := s.roleRepo.GetByName(ctx, tmpl.Name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	role := &domain.Role{
		Name:        tmpl.Name,
		Description: tmpl.Description,
		Color:       tmpl.Color,
		IsSystem:    tmpl.IsSystem,
	}
	err = s.roleRepo.Create(ctx, role)
	if errors.Is(err, domain.ErrInvalidAssignment) {
		existing, err = s.roleRepo.GetByName(ctx, tmpl.Name)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("%w: role %q vanished during seed", domain.ErrNotFound, tmpl.Name)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return role, true, nil
}
