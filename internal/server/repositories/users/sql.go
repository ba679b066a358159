package users

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

// Create inserts user, assigning a fresh id when none is set.
// A duplicate email yields common.ErrorAlreadyExists.
func (r *SQLRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := r.db.Rebind(
		`INSERT INTO users (id, email, password_hash, is_email_verified, created_at)
		 VALUES (?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.IsEmailVerified, user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", common.ErrorAlreadyExists, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx,
		`SELECT id, email, password_hash, is_email_verified, created_at FROM users
		 WHERE email = ?`, email)
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx,
		`SELECT id, email, password_hash, is_email_verified, created_at FROM users
		 WHERE id = ?`, id)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.db.GetContext(ctx, user, r.db.Rebind(query), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
