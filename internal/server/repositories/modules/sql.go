package modules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/models"
	"github.com/google/uuid"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, module *models.Module) (*models.Module, error) {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}

	query := r.db.Rebind(
		`INSERT INTO modules (id, name, description, created_at)
		 VALUES (?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query, module.ID, module.Name, module.Description, module.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", common.ErrorAlreadyExists, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return module, nil
}

func (r *SQLRepository) GetByName(ctx context.Context, name string) (*models.Module, error) {
	query := r.db.Rebind(
		`SELECT id, name, description, created_at FROM modules
		 WHERE name = ?`)

	module := &models.Module{}
	if err := r.db.GetContext(ctx, module, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return module, nil
}

// List returns all modules ordered by name.
func (r *SQLRepository) List(ctx context.Context) ([]models.Module, error) {
	items := []models.Module{}
	err := r.db.SelectContext(ctx, &items,
		`SELECT id, name, description, created_at FROM modules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}
