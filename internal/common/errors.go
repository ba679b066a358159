// Package common defines shared constants and sentinel errors used across
// the modauth server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Input errors.
	ErrValidation = errors.New("validation error")

	// Credential and registration errors.
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrUserNotFound       = errors.New("user not found")

	// Module and grant errors.
	ErrModuleNotFound = errors.New("module not found")
	ErrModuleExists   = errors.New("module already exists")
	ErrGrantNotFound  = errors.New("grant not found")
	ErrAccessDenied   = errors.New("user does not have access to module")

	// Token errors.
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("token is missing required claims")
)
