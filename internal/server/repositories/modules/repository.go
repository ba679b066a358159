package modules

import (
	"context"

	"github.com/dmitrijs2005/modauth/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, module *models.Module) (*models.Module, error)
	GetByName(ctx context.Context, name string) (*models.Module, error)
	List(ctx context.Context) ([]models.Module, error)
}
