package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "session_token"
	principalKey  = "principal"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*usecase.Principal, error)
}

// AuthMiddleware accepts "Authorization: Bearer <token>" or the session cookie.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := sessionToken(c)
		if !ok {
			Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header is required")
			return
		}

		p, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAccountDisabled):
			Fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled")
			return
		case errors.Is(err, domain.ErrTokenExpired):
			Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token expired")
			return
		case errors.Is(err, domain.ErrUnauthorized):
			Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		default:
			Fail(c, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error")
			return
		}

		c.Set(principalKey, *p)
		c.Next()
	}
}

func sessionToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		if err := usecase.RequireRole(p, role); err != nil {
			Fail(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (usecase.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return usecase.Principal{}, false
	}
	p, ok := v.(usecase.Principal)
	return p, ok
}
