package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrRegistrationDisabled = errors.New("registration is disabled")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrRateLimited          = errors.New("too many requests")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)

// Sub-kinds keep errors.Is matching on their parent.
var (
	ErrTokenMalformed = fmt.Errorf("%w: malformed token", ErrUnauthorized)
	ErrBadSignature   = fmt.Errorf("%w: bad token signature", ErrUnauthorized)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrUnauthorized)

	ErrAccessDenied = fmt.Errorf("%w: course not purchased", ErrForbidden)

	ErrEmailTaken   = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrAlreadyOwned = fmt.Errorf("%w: course already purchased", ErrConflict)

	ErrUserNotFound     = fmt.Errorf("%w: user", ErrNotFound)
	ErrCourseNotFound   = fmt.Errorf("%w: course", ErrNotFound)
	ErrLessonNotFound   = fmt.Errorf("%w: lesson", ErrNotFound)
	ErrPurchaseNotFound = fmt.Errorf("%w: purchase", ErrNotFound)
	ErrUnknownProvider  = fmt.Errorf("%w: payment provider", ErrNotFound)
)

// Invalid wraps ErrValidation with a field-level reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
