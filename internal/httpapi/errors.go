package httpapi

import (
	"context"
	"errors"
	"net/http"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/httpx"
	"sitegate.io/internal/projects"
)

// respondErr maps domain errors to status codes. Anything unrecognised is a 500 whose detail
// stays in the server log.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *httpx.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteValidation(w, r, verr)
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		httpx.WriteError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrPortalDisabled):
		httpx.WriteError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, projects.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, projects.ErrConflict):
		httpx.WriteError(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, auth.ErrRevocationCheck):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		httpx.WriteInternalError(w, r, err)
	}
}
