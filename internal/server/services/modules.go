package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/events"
	"github.com/dmitrijs2005/modauth/internal/server/models"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/repomanager"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
)

// AssignResult reports what AssignUserToModule changed.
type AssignResult struct {
	UserID      string
	ModuleID    string
	Created     bool
	Reactivated bool
}

// errGrantRace aborts the assign transaction when another request inserted
// the same grant first.
var errGrantRace = errors.New("grant inserted concurrently")

// ModuleService manages modules and user grants.
type ModuleService struct {
	deps
	db          *sqlx.DB
	repomanager repomanager.RepositoryManager
}

func NewModuleService(db *sqlx.DB, m repomanager.RepositoryManager, opts ...Option) *ModuleService {
	return &ModuleService{
		deps:        newDeps(opts),
		db:          db,
		repomanager: m,
	}
}

func (s *ModuleService) CreateModule(ctx context.Context, name, description string) (_ *models.Module, err error) {
	ctx, span := tracer.Start(ctx, "ModuleService.CreateModule")
	span.SetAttributes(attribute.String("module", name))
	defer func() { finishSpan(span, err) }()

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: module name must not be empty", common.ErrValidation)
	}

	repo := s.repomanager.Modules(s.db)

	_, err = repo.GetByName(ctx, name)
	switch {
	case err == nil:
		return nil, common.ErrModuleExists
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error loading module: %w", err)
	}

	module, err := repo.Create(ctx, &models.Module{
		Name:        name,
		Description: description,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrModuleExists
		}
		return nil, fmt.Errorf("error creating module: %w", err)
	}

	s.logger.Info(ctx, "module created", "module_id", module.ID, "name", module.Name)
	s.publish(ctx, events.Event{Type: events.ModuleCreated, Module: module.Name})

	return module, nil
}

// AssignUserToModule grants email access to moduleName. It is idempotent:
// an active grant is left alone and an inactive one is reactivated.
func (s *ModuleService) AssignUserToModule(ctx context.Context, email, moduleName string) (_ *AssignResult, err error) {
	ctx, span := tracer.Start(ctx, "ModuleService.AssignUserToModule")
	span.SetAttributes(attribute.String("module", moduleName))
	defer func() { finishSpan(span, err) }()

	res := &AssignResult{}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, module, err := s.lookupPair(ctx, tx, email, moduleName)
		if err != nil {
			return err
		}
		res.UserID, res.ModuleID = user.ID, module.ID

		grants := s.repomanager.Grants(tx)
		grant, err := grants.Find(ctx, user.ID, module.ID)
		switch {
		case err == nil && grant.IsActive:
			return nil
		case err == nil:
			if err := grants.SetActive(ctx, user.ID, module.ID, true); err != nil {
				return fmt.Errorf("error reactivating grant: %w", err)
			}
			res.Reactivated = true
			return nil
		case !errors.Is(err, common.ErrorNotFound):
			return fmt.Errorf("error loading grant: %w", err)
		}

		err = grants.Create(ctx, &models.Grant{
			UserID:       user.ID,
			ModuleID:     module.ID,
			RegisteredAt: s.clock.Now(),
			IsActive:     true,
		})
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return errGrantRace
			}
			return fmt.Errorf("error creating grant: %w", err)
		}
		res.Created = true
		return nil
	})
	if errors.Is(err, errGrantRace) {
		res.Created, res.Reactivated = false, false
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Created || res.Reactivated {
		s.logger.Info(ctx, "user assigned to module", "user_id", res.UserID, "module", moduleName)
		s.publish(ctx, events.Event{Type: events.GrantCreated, UserID: res.UserID, Email: email, Module: moduleName})
	}

	return res, nil
}

// RevokeUserFromModule deletes the grant. Tokens already issued for it stop
// passing Check immediately.
func (s *ModuleService) RevokeUserFromModule(ctx context.Context, email, moduleName string) (err error) {
	ctx, span := tracer.Start(ctx, "ModuleService.RevokeUserFromModule")
	span.SetAttributes(attribute.String("module", moduleName))
	defer func() { finishSpan(span, err) }()

	user, module, err := s.lookupPair(ctx, s.db, email, moduleName)
	if err != nil {
		return err
	}

	if err := s.repomanager.Grants(s.db).Delete(ctx, user.ID, module.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrGrantNotFound
		}
		return fmt.Errorf("error deleting grant: %w", err)
	}

	s.logger.Info(ctx, "grant revoked", "user_id", user.ID, "module", moduleName)
	s.publish(ctx, events.Event{Type: events.GrantRevoked, UserID: user.ID, Email: email, Module: moduleName})
	return nil
}

func (s *ModuleService) SetGrantActive(ctx context.Context, email, moduleName string, active bool) (err error) {
	ctx, span := tracer.Start(ctx, "ModuleService.SetGrantActive")
	span.SetAttributes(attribute.String("module", moduleName), attribute.Bool("active", active))
	defer func() { finishSpan(span, err) }()

	user, module, err := s.lookupPair(ctx, s.db, email, moduleName)
	if err != nil {
		return err
	}

	if err := s.repomanager.Grants(s.db).SetActive(ctx, user.ID, module.ID, active); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrGrantNotFound
		}
		return fmt.Errorf("error updating grant: %w", err)
	}

	s.publish(ctx, events.Event{Type: events.GrantUpdated, UserID: user.ID, Email: email, Module: moduleName, Active: &active})
	return nil
}

func (s *ModuleService) ListModules(ctx context.Context) (_ []models.Module, err error) {
	ctx, span := tracer.Start(ctx, "ModuleService.ListModules")
	defer func() { finishSpan(span, err) }()

	items, err := s.repomanager.Modules(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing modules: %w", err)
	}
	return items, nil
}

// lookupPair resolves the module first, then the user.
func (s *ModuleService) lookupPair(ctx context.Context, db dbx.DBTX, email, moduleName string) (*models.User, *models.Module, error) {
	module, err := s.repomanager.Modules(db).GetByName(ctx, moduleName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrModuleNotFound
		}
		return nil, nil, fmt.Errorf("error loading module: %w", err)
	}

	user, err := s.repomanager.Users(db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("error loading user: %w", err)
	}

	return user, module, nil
}
