package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts a grant. A second grant for the same pair yields
// common.ErrorAlreadyExists.
func (r *SQLRepository) Create(ctx context.Context, grant *models.Grant) error {
	query := r.db.Rebind(
		`INSERT INTO user_modules (user_id, module_id, registered_at, is_active)
		 VALUES (?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query, grant.UserID, grant.ModuleID, grant.RegisteredAt, grant.IsActive)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %w", common.ErrorAlreadyExists, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Find(ctx context.Context, userID, moduleID string) (*models.Grant, error) {
	query := r.db.Rebind(
		`SELECT user_id, module_id, registered_at, is_active FROM user_modules
		 WHERE user_id = ? AND module_id = ?`)

	grant := &models.Grant{}
	if err := r.db.GetContext(ctx, grant, query, userID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return grant, nil
}

func (r *SQLRepository) SetActive(ctx context.Context, userID, moduleID string, active bool) error {
	query := r.db.Rebind(
		`UPDATE user_modules SET is_active = ?
		 WHERE user_id = ? AND module_id = ?`)

	res, err := r.db.ExecContext(ctx, query, active, userID, moduleID)
	return affectedOne(res, err)
}

func (r *SQLRepository) Delete(ctx context.Context, userID, moduleID string) error {
	query := r.db.Rebind(
		`DELETE FROM user_modules
		 WHERE user_id = ? AND module_id = ?`)

	res, err := r.db.ExecContext(ctx, query, userID, moduleID)
	return affectedOne(res, err)
}

// affectedOne maps "no rows touched" to common.ErrorNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
