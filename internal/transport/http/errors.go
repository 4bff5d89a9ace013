package handlers

import (
	"errors"
	"net/http"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorKind struct {
	err    error
	status int
	code   string
}

// Order matters: sub-kinds come before the parent they wrap.
var errorKinds = []errorKind{
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{domain.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{domain.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},
	{domain.ErrAlreadyOwned, http.StatusBadRequest, "ALREADY_OWNED"},
	{domain.ErrConflict, http.StatusBadRequest, "CONFLICT"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrAccountDisabled, http.StatusForbidden, "ACCOUNT_DISABLED"},
	{domain.ErrRegistrationDisabled, http.StatusForbidden, "REGISTRATION_DISABLED"},
	{domain.ErrAccessDenied, http.StatusForbidden, "ACCESS_DENIED"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrProviderUnavailable, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			if k.status >= http.StatusInternalServerError {
				log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
			}
			middleware.Fail(c, k.status, k.code, err.Error())
			return
		}
	}

	log.Error("unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
	middleware.Fail(c, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error")
}

func badRequest(c *gin.Context, message string) {
	middleware.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}
