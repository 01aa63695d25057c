package guard

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
)

type contextKey int

const (
	principalKey contextKey = iota
	stateKey
)

// Principal is the authenticated caller of a request
type Principal struct {
	UserID uuid.UUID
	User   *domain.User
}

// requestState memoizes the effective set so guards stacked on one request resolve once
type requestState struct {
	mu       sync.Mutex
	resolved bool
	set      domain.PermissionSet
}

// WithPrincipal returns a context carrying p and a fresh request-scoped state
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return context.WithValue(ctx, stateKey, &requestState{})
}

// PrincipalFromContext returns the principal set by the authenticator
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

// PermissionsFromContext returns the effective set resolved earlier in the request
func PermissionsFromContext(ctx context.Context) (domain.PermissionSet, bool) {
	st, ok := ctx.Value(stateKey).(*requestState)
	if !ok {
		return domain.PermissionSet{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.set, st.resolved
}

func stateFromContext(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey).(*requestState)
	return st
}
