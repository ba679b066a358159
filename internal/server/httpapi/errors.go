package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/modauth/internal/common"
)

// statusFor maps service errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrEmailTaken),
		errors.Is(err, common.ErrModuleExists),
		errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrMissingClaims):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrUserNotFound),
		errors.Is(err, common.ErrModuleNotFound),
		errors.Is(err, common.ErrGrantNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// detailFor renders the client-facing message. Internal errors never leak.
func detailFor(err error, module string) string {
	switch {
	case errors.Is(err, common.ErrEmailTaken):
		return "Email already registered"
	case errors.Is(err, common.ErrModuleExists):
		return "Module already exists"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidToken):
		return "Invalid or expired token"
	case errors.Is(err, common.ErrMissingClaims):
		return "Invalid token"
	case errors.Is(err, common.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, common.ErrModuleNotFound) && module != "":
		return fmt.Sprintf("Module '%s' not found", module)
	case errors.Is(err, common.ErrAccessDenied) && module != "":
		return fmt.Sprintf("User does not have access to module '%s'", module)
	case errors.Is(err, common.ErrTooManyAttempts):
		return "Too many login attempts, try again later"
	}
	if statusFor(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
