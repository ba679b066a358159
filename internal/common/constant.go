package common

const (
	// AuthorizationHeader carries "Bearer <token>" on check and refresh calls.
	AuthorizationHeader = "Authorization"

	// BearerPrefix precedes the token in AuthorizationHeader.
	BearerPrefix = "Bearer "

	// TokenType is reported to clients alongside every issued token.
	TokenType = "bearer"

	// AdminTokenHeader guards module administration routes when configured.
	AdminTokenHeader = "X-Admin-Token"
)
