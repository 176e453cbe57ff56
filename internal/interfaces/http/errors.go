package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/application/signing"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/domain/entity"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

// statusFor maps a service error to its HTTP status and client-facing details
func statusFor(err error) (int, map[string]string) {
	var transitionErr *workflow.TransitionError
	var stateErr *signing.SessionStateError

	switch {
	case errors.Is(err, port.ErrUnauthenticated):
		return http.StatusUnauthorized, nil

	case errors.Is(err, workflow.ErrEntityNotFound),
		errors.Is(err, signing.ErrSessionNotFound),
		errors.Is(err, signing.ErrDealNotFound),
		errors.Is(err, signing.ErrDocumentNotFound),
		errors.Is(err, signing.ErrConsentNotFound):
		return http.StatusNotFound, nil

	case errors.Is(err, workflow.ErrUnauthorized),
		errors.Is(err, signing.ErrUnauthorized),
		errors.Is(err, signing.ErrForbidden):
		return http.StatusForbidden, nil

	// An unknown target status is a malformed request, not a conflict
	case errors.Is(err, domainwf.ErrInvalidState),
		errors.Is(err, domainwf.ErrUnknownKind):
		return http.StatusBadRequest, nil

	case errors.As(err, &transitionErr):
		return http.StatusConflict, map[string]string{
			"current_status": transitionErr.From,
			"target_status":  transitionErr.To,
		}

	case errors.Is(err, signing.ErrSessionExpired):
		return http.StatusGone, map[string]string{"status": "expired"}

	case errors.As(err, &stateErr):
		if stateErr.Status == entity.SessionStatusExpired {
			return http.StatusGone, map[string]string{"status": stateErr.Status}
		}
		return http.StatusConflict, map[string]string{"status": stateErr.Status}

	case errors.Is(err, signing.ErrSessionNotPending),
		errors.Is(err, signing.ErrAlreadySigned),
		errors.Is(err, signing.ErrConcurrentDocument),
		errors.Is(err, workflow.ErrConcurrentModification):
		return http.StatusConflict, nil

	case errors.Is(err, signing.ErrConsentRequired):
		return http.StatusUnprocessableEntity, nil

	case errors.Is(err, signing.ErrInvalidSignaturePayload),
		errors.Is(err, signing.ErrInvalidRequest):
		return http.StatusBadRequest, nil

	default:
		return http.StatusInternalServerError, nil
	}
}

func writeError(c *gin.Context, err error) {
	status, details := statusFor(err)
	c.JSON(status, errorResponse(status, err, details))
}

func abortWithError(c *gin.Context, err error) {
	status, details := statusFor(err)
	c.AbortWithStatusJSON(status, errorResponse(status, err, details))
}

func errorResponse(status int, err error, details map[string]string) Response {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return Response{
		Success: false,
		Error:   msg,
		Details: details,
	}
}
