package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/guard"
	"github.com/pguia/crm-authz/internal/httpx"
	"github.com/pguia/crm-authz/internal/service"
	"github.com/sirupsen/logrus"
)

// AdminService is the administrative API the handler exposes
type AdminService interface {
	CreatePermission(ctx context.Context, key, name, description, module string) (*domain.Permission, error)
	UpdatePermission(ctx context.Context, id uuid.UUID, name, description, module string) (*domain.Permission, error)
	DeletePermission(ctx context.Context, id uuid.UUID) error
	ListPermissions(ctx context.Context, module string) ([]domain.Permission, error)
	GroupedPermissions(ctx context.Context) (map[string][]domain.Permission, error)
	CreateRole(ctx context.Context, input service.RoleInput) (*domain.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (*domain.Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, patch service.RolePatch) (*domain.Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	ListRoles(ctx context.Context) ([]service.RoleSummary, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID, assignedBy *uuid.UUID) error
	RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error
	SetDirectPermission(ctx context.Context, userID uuid.UUID, key string, granted bool, assignedBy *uuid.UUID) error
	RemoveDirectPermission(ctx context.Context, userID uuid.UUID, key string) error
	GetUserPermissions(ctx context.Context, userID uuid.UUID) (*service.UserPermissions, error)
	UserRoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error)
	CheckPermission(ctx context.Context, userID uuid.UUID, key string) (bool, error)
	CheckPermissions(ctx context.Context, userID uuid.UUID, keys []string) (map[domain.PermissionKey]bool, error)
	Stats(ctx context.Context) (*service.Stats, error)
	ClearCache(ctx context.Context)
}

// Bootstrapper installs the default catalog and roles
type Bootstrapper interface {
	Seed(ctx context.Context) (*service.SeedResult, error)
}

// Handler serves the administrative authorization API
type Handler struct {
	service   AdminService
	seeder    Bootstrapper
	validator *validator.Validate
	log       logrus.FieldLogger
}

// NewHandler constructs a Handler instance
func NewHandler(svc AdminService, seeder Bootstrapper, log logrus.FieldLogger) *Handler {
	v := validator.New()
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:   svc,
		seeder:    seeder,
		validator: v,
		log:       log,
	}
}

// MountRoutes registers the administrative endpoints on r
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/", h.listPermissions)
		r.Post("/", h.createPermission)
		r.Put("/{id}", h.updatePermission)
		r.Delete("/{id}", h.deletePermission)
	})

	r.Route("/roles", func(r chi.Router) {
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Get("/{id}", h.getRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/permissions", h.getUserPermissions)
		r.Post("/roles", h.assignRole)
		r.Delete("/roles/{roleID}", h.removeRole)
		r.Put("/permissions/{key}", h.setDirectPermission)
		r.Delete("/permissions/{key}", h.removeDirectPermission)
		r.Get("/check/{key}", h.checkPermission)
		r.Post("/check", h.checkPermissions)
	})

	r.Post("/initialize", h.initialize)
	r.Get("/stats", h.stats)
	r.Post("/cache/clear", h.clearCache)
}

// =============== Permissions ===============

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	if grouped, _ := strconv.ParseBool(r.URL.Query().Get("grouped")); grouped {
		groups, err := h.service.GroupedPermissions(r.Context())
		if err != nil {
			respondError(w, r, h.log, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"modules": groups})
		return
	}

	permissions, err := h.service.ListPermissions(r.Context(), r.URL.Query().Get("module"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	permission, err := h.service.CreatePermission(r.Context(), req.Key, req.Name, req.Description, req.Module)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permission)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updatePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	permission, err := h.service.UpdatePermission(r.Context(), id, req.Name, req.Description, req.Module)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permission)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============== Roles ===============

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), service.RoleInput{
		Name:           req.Name,
		Description:    req.Description,
		Color:          req.Color,
		PermissionKeys: req.Permissions,
	})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, service.RolePatch{
		Name:           req.Name,
		Description:    req.Description,
		Color:          req.Color,
		PermissionKeys: req.Permissions,
	})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============== Users ===============

func (h *Handler) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	view, err := h.service.GetUserPermissions(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	roleID := uuid.MustParse(req.RoleID)

	if err := h.service.AssignRole(r.Context(), userID, roleID, actor(r)); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathUUID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDirectPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req directPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.service.SetDirectPermission(r.Context(), userID, key, *req.Granted, actor(r)); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeDirectPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveDirectPermission(r.Context(), userID, chi.URLParam(r, "key")); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	granted, err := h.service.CheckPermission(r.Context(), userID, key)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"permission": key,
		"granted":    granted,
	})
}

func (h *Handler) checkPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req checkPermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.service.CheckPermissions(r.Context(), userID, req.Permissions)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "results": results})
}

// =============== System ===============

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request) {
	result, err := h.seeder.Seed(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// myPermissions reports the caller's own roles and effective set.
// It expects guard.Optional to have resolved the set.
func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := guard.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, domain.ErrUnauthenticated)
		return
	}
	set, _ := guard.PermissionsFromContext(r.Context())

	roles, err := h.service.UserRoleNames(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if roles == nil {
		roles = []domain.RoleName{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     p.UserID,
		"roles":       roles,
		"permissions": set,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		respondError(w, r, h.log, fmt.Errorf("%w: malformed JSON body", errBadRequest))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		respondError(w, r, h.log, err)
		return false
	}
	return true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, r, h.log, fmt.Errorf("%w: %s must be a UUID", errBadRequest, name))
		return uuid.Nil, false
	}
	return id, true
}

// actor is the principal performing an administrative change
func actor(r *http.Request) *uuid.UUID {
	p, ok := guard.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	id := p.UserID
	return &id
}
