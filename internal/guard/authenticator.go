package guard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/httpx"
	"github.com/pguia/crm-authz/internal/repository"
	"github.com/sirupsen/logrus"
)

// ErrInactiveUser means the token is valid but the account may not sign in
var ErrInactiveUser = errors.New("user account is not active")

// Claims is the bearer token payload; Subject carries the user id
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator turns a bearer JWT into a request Principal
type Authenticator struct {
	secret []byte
	issuer string
	users  repository.UserRepository
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewAuthenticator creates an HS256 bearer token authenticator
func NewAuthenticator(cfg config.AuthzConfig, users repository.UserRepository, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		users:  users,
		log:    log,
		now:    time.Now,
	}
}

// Sign issues a token for userID valid for ttl
func (a *Authenticator) Sign(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate validates the request's bearer token and loads its user.
// It returns ErrUnauthenticated, ErrUserNotFound, ErrInactiveUser or a store error.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return Principal{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}
	if len(a.secret) == 0 {
		return Principal{}, fmt.Errorf("%w: token verification is not configured", domain.ErrUnauthenticated)
	}

	var claims Claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: invalid subject", domain.ErrUnauthenticated)
	}

	user, err := a.users.GetByID(r.Context(), userID)
	if err != nil {
		return Principal{}, err
	}
	if user == nil {
		return Principal{}, domain.ErrUserNotFound
	}
	if !user.IsActive() {
		return Principal{}, fmt.Errorf("%w: status %s", ErrInactiveUser, user.Status)
	}

	return Principal{UserID: user.ID, User: user}, nil
}

// Middleware rejects requests without a valid principal
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Attempt attaches a principal when the request carries a valid token and
// otherwise passes the request on anonymously
func (a *Authenticator) Attempt(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		} else if errors.Is(err, domain.ErrStore) {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	entry := a.log.WithField("path", r.URL.Path)
	switch {
	case errors.Is(err, ErrInactiveUser):
		entry.WithError(err).Warn("inactive user rejected")
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "user account is not active")
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrUserNotFound):
		entry.WithError(err).Debug("authentication failed")
		w.Header().Set("WWW-Authenticate", `Bearer realm="crm-authz"`)
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	default:
		entry.WithError(err).Error("authentication lookup failed")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}
