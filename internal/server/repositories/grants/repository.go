package grants

import (
	"context"

	"github.com/dmitrijs2005/modauth/internal/server/models"
)

// Repository stores user to module grants (table user_modules).
type Repository interface {
	Create(ctx context.Context, grant *models.Grant) error
	Find(ctx context.Context, userID, moduleID string) (*models.Grant, error)
	SetActive(ctx context.Context, userID, moduleID string, active bool) error
	Delete(ctx context.Context, userID, moduleID string) error
}
