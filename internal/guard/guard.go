// Package guard implements the request-time authorization checks that sit in
// front of business handlers.
//
// Each check runs Unauthenticated -> Authenticated -> {Authorized, Forbidden},
// with Error on any lookup failure. Error never lets a request through.
package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/httpx"
	"github.com/pguia/crm-authz/internal/service"
	"github.com/sirupsen/logrus"
)

// Kind identifies the shape of a requirement
type Kind string

const (
	KindPermission Kind = "permission"
	KindAny        Kind = "any"
	KindAll        Kind = "all"
	KindRole       Kind = "role"
)

// Requirement is what a guarded route demands of its caller
type Requirement struct {
	Kind Kind
	Keys []domain.PermissionKey
	Role domain.RoleName
}

// Permission requires key
func Permission(key domain.PermissionKey) Requirement {
	return Requirement{Kind: KindPermission, Keys: []domain.PermissionKey{key}}
}

// AnyOf requires at least one of keys
func AnyOf(keys ...domain.PermissionKey) Requirement {
	return Requirement{Kind: KindAny, Keys: keys}
}

// AllOf requires every key
func AllOf(keys ...domain.PermissionKey) Requirement {
	return Requirement{Kind: KindAll, Keys: keys}
}

// Role requires an assigned role named name
func Role(name domain.RoleName) Requirement {
	return Requirement{Kind: KindRole, Role: name}
}

// Outcome is the terminal state of a check
type Outcome string

const (
	Authorized      Outcome = "authorized"
	Unauthenticated Outcome = "unauthenticated"
	Forbidden       Outcome = "forbidden"
	Failed          Outcome = "error"
)

// Decision is the result of evaluating a Requirement
type Decision struct {
	Outcome  Outcome
	Required []string
	// Missing lists unheld keys for all-of requirements
	Missing []domain.PermissionKey
	// Granted is only filled when diagnostics are enabled
	Granted []domain.PermissionKey
	Err     error
}

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.Outcome == Authorized
}

// Guard evaluates requirements against the caller's effective permissions
type Guard struct {
	resolver      service.PermissionResolver
	exposeGranted bool
	metrics       *service.Metrics
	log           logrus.FieldLogger
}

// New creates a Guard. resolver is normally the CachedResolver.
func New(resolver service.PermissionResolver, cfg config.AuthzConfig, metrics *service.Metrics, log logrus.FieldLogger) *Guard {
	return &Guard{
		resolver:      resolver,
		exposeGranted: cfg.ExposeGrantedPermissions,
		metrics:       metrics,
		log:           log,
	}
}

// Evaluate decides req for the principal in ctx
func (g *Guard) Evaluate(ctx context.Context, req Requirement) Decision {
	d := g.evaluate(ctx, req)
	g.metrics.RecordDecision(string(req.Kind), string(d.Outcome))
	return d
}

func (g *Guard) evaluate(ctx context.Context, req Requirement) Decision {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Decision{Outcome: Unauthenticated, Err: domain.ErrUnauthenticated}
	}

	if req.Kind == KindRole {
		return g.evaluateRole(ctx, p, req.Role)
	}

	required := keyStrings(req.Keys)
	set, err := g.effective(ctx, p)
	if err != nil {
		return failure(err, required)
	}

	var allowed bool
	var missing []domain.PermissionKey
	switch req.Kind {
	case KindPermission, KindAll:
		missing = set.Missing(req.Keys...)
		allowed = len(missing) == 0
		if req.Kind == KindPermission {
			missing = nil
		}
	case KindAny:
		allowed = set.HasAny(req.Keys...)
	default:
		return Decision{Outcome: Failed, Required: required, Err: errors.New("unknown requirement kind")}
	}

	if allowed {
		return Decision{Outcome: Authorized, Required: required}
	}
	d := Decision{Outcome: Forbidden, Required: required, Missing: missing, Err: domain.ErrForbidden}
	if g.exposeGranted {
		d.Granted = set.Keys()
	}
	return d
}

func (g *Guard) evaluateRole(ctx context.Context, p Principal, role domain.RoleName) Decision {
	required := []string{role.String()}
	names, err := g.resolver.RoleNames(ctx, p.UserID)
	if err != nil {
		return failure(err, required)
	}
	for _, n := range names {
		if n == role {
			return Decision{Outcome: Authorized, Required: required}
		}
	}
	d := Decision{Outcome: Forbidden, Required: required, Err: domain.ErrForbidden}
	if g.exposeGranted {
		if set, err := g.effective(ctx, p); err == nil {
			d.Granted = set.Keys()
		}
	}
	return d
}

// effective resolves the set once per request when a request state is present
func (g *Guard) effective(ctx context.Context, p Principal) (domain.PermissionSet, error) {
	st := stateFromContext(ctx)
	if st == nil {
		return g.resolver.EffectivePermissions(ctx, p.UserID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.resolved {
		return st.set, nil
	}
	set, err := g.resolver.EffectivePermissions(ctx, p.UserID)
	if err != nil {
		return domain.PermissionSet{}, err
	}
	st.set, st.resolved = set, true
	return set, nil
}

func failure(err error, required []string) Decision {
	if errors.Is(err, domain.ErrUserNotFound) {
		return Decision{Outcome: Unauthenticated, Required: required, Err: err}
	}
	return Decision{Outcome: Failed, Required: required, Err: err}
}

// Require returns middleware enforcing req
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Evaluate(r.Context(), req)
			if d.Allowed() {
				next.ServeHTTP(w, r)
				return
			}
			g.reject(w, r, req, d)
		})
	}
}

// RequirePermission passes iff the caller holds key
func (g *Guard) RequirePermission(key domain.PermissionKey) func(http.Handler) http.Handler {
	return g.Require(Permission(key))
}

// RequireAnyPermission passes iff the caller holds at least one of keys
func (g *Guard) RequireAnyPermission(keys ...domain.PermissionKey) func(http.Handler) http.Handler {
	return g.Require(AnyOf(keys...))
}

// RequireAllPermissions passes iff the caller holds every key
func (g *Guard) RequireAllPermissions(keys ...domain.PermissionKey) func(http.Handler) http.Handler {
	return g.Require(AllOf(keys...))
}

// RequireRole passes iff the caller is assigned the named role.
// It reads role assignments, not derived permissions.
func (g *Guard) RequireRole(name domain.RoleName) func(http.Handler) http.Handler {
	return g.Require(Role(name))
}

// RequireAdmin requires admin_access
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return g.RequirePermission(service.PermAdminAccess)
}

// RequireDirector requires admin_access or admin_users_manage
func (g *Guard) RequireDirector() func(http.Handler) http.Handler {
	return g.RequireAnyPermission(service.PermAdminAccess, service.PermAdminUsersManage)
}

// RequireImplementation requires implementation_access
func (g *Guard) RequireImplementation() func(http.Handler) http.Handler {
	return g.RequirePermission(service.PermImplementationAccess)
}

// Optional resolves the caller's set when a principal is present and lets
// every request through. A principal without a user record gets an empty set.
func (g *Guard) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if stateFromContext(ctx) == nil {
			ctx = WithPrincipal(ctx, p)
		}
		_, err := g.effective(ctx, p)
		if errors.Is(err, domain.ErrUserNotFound) {
			st := stateFromContext(ctx)
			st.mu.Lock()
			st.set, st.resolved = domain.NewPermissionSet(), true
			st.mu.Unlock()
			err = nil
		}
		if err != nil {
			g.log.WithError(err).WithFields(logrus.Fields{"user_id": p.UserID, "path": r.URL.Path}).
				Error("permission lookup failed")
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "permission check failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, req Requirement, d Decision) {
	fields := logrus.Fields{"path": r.URL.Path, "required": d.Required, "guard": req.Kind}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		fields["user_id"] = p.UserID
	}
	entry := g.log.WithFields(fields)

	switch d.Outcome {
	case Unauthenticated:
		entry.Debug("unauthenticated request rejected")
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case Forbidden:
		entry.Warn("permission denied")
		extra := map[string]any{"required": d.Required}
		if req.Kind == KindAll {
			extra["missing"] = keyStrings(d.Missing)
		}
		if d.Granted != nil {
			extra["granted"] = keyStrings(d.Granted)
		}
		httpx.ProblemWith(w, http.StatusForbidden, "Forbidden", forbiddenDetail(req), extra)
	default:
		entry.WithError(d.Err).Error("permission check failed")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "permission check failed")
	}
}

func forbiddenDetail(req Requirement) string {
	switch req.Kind {
	case KindRole:
		return "required role not assigned"
	case KindAny:
		return "none of the required permissions are held"
	case KindAll:
		return "not all required permissions are held"
	default:
		return "required permission not held"
	}
}

func keyStrings(keys []domain.PermissionKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
