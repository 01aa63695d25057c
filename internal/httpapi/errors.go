package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/httpx"
	"github.com/sirupsen/logrus"
)

var errBadRequest = errors.New("bad request")

// respondError maps service errors to problem responses. Store failures and
// anything unrecognized become a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr):
		fields := make(map[string]string, len(verr))
		for _, fe := range verr {
			fields[fe.Field()] = fe.Tag()
		}
		httpx.ProblemWith(w, http.StatusBadRequest, "Validation Failed", "request body is invalid", map[string]any{"errors": fields})
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrInvalidKey):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrInvalidAssignment):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Assignment", err.Error())
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, domain.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		log.WithError(err).WithFields(logrus.Fields{"path": r.URL.Path, "method": r.Method}).Error("request failed")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
