package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/cryptox"
	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/auth"
	"github.com/dmitrijs2005/modauth/internal/server/events"
	"github.com/dmitrijs2005/modauth/internal/server/models"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/repomanager"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
)

// CheckResult is what a verified module token resolves to.
type CheckResult struct {
	User   *models.User
	Module *models.Module
	Claims *auth.Claims
}

// AuthService handles registration, credential checks and the lifecycle of
// access tokens.
type AuthService struct {
	deps
	db          *sqlx.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.Engine
	hasher      cryptox.Hasher

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(db *sqlx.DB, m repomanager.RepositoryManager, tokens *auth.Engine, hasher cryptox.Hasher, opts ...Option) *AuthService {
	return &AuthService{
		deps:        newDeps(opts),
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
	}
}

// Register creates a user and returns it with a subject-only token.
// A taken email (including a concurrent insert) yields common.ErrEmailTaken.
func (s *AuthService) Register(ctx context.Context, email, password string) (_ *models.User, _ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer func() { finishSpan(span, err) }()

	if err := validateCredentials(email, password); err != nil {
		return nil, "", err
	}

	repo := s.repomanager.Users(s.db)

	_, err = repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, "", common.ErrEmailTaken
	case !errors.Is(err, common.ErrorNotFound):
		return nil, "", fmt.Errorf("error loading user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, "", common.ErrEmailTaken
		}
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, "", 0)
	if err != nil {
		return nil, "", fmt.Errorf("error issuing token: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	s.publish(ctx, events.Event{Type: events.UserRegistered, UserID: user.ID, Email: user.Email})

	return user, token, nil
}

// Login checks credentials and returns a subject-only token.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() { finishSpan(span, err) }()

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(user.ID, "", 0)
	if err != nil {
		return "", fmt.Errorf("error issuing token: %w", err)
	}
	return token, nil
}

// Authorize resolves {email, password, module} to a user and module the
// user holds an active grant for.
func (s *AuthService) Authorize(ctx context.Context, email, password, moduleName string) (_ *models.User, _ *models.Module, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Authorize")
	span.SetAttributes(attribute.String("module", moduleName))
	defer func() { finishSpan(span, err) }()

	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	module, err := s.repomanager.Modules(s.db).GetByName(ctx, moduleName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrModuleNotFound
		}
		return nil, nil, fmt.Errorf("error loading module: %w", err)
	}

	if err := s.requireActiveGrant(ctx, s.db, user.ID, module.ID); err != nil {
		return nil, nil, err
	}

	return user, module, nil
}

// IssueModuleToken signs a module scoped token with the default TTL.
func (s *AuthService) IssueModuleToken(user *models.User, module *models.Module) (string, error) {
	token, err := s.tokens.Issue(user.ID, module.Name, 0)
	if err != nil {
		return "", fmt.Errorf("error issuing token: %w", err)
	}
	return token, nil
}

func (s *AuthService) AuthorizeAndIssue(ctx context.Context, email, password, moduleName string) (string, error) {
	user, module, err := s.Authorize(ctx, email, password, moduleName)
	if err != nil {
		return "", err
	}
	return s.IssueModuleToken(user, module)
}

// Check validates a module token: signature, expiry, and a live grant for the
// module named in the token.
func (s *AuthService) Check(ctx context.Context, token string) (_ *CheckResult, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Check")
	defer func() { finishSpan(span, err) }()

	claims, err := s.tokens.Decode(token, true)
	if err != nil {
		return nil, err
	}

	return s.resolveClaims(ctx, claims)
}

// Refresh reissues a module token with a fresh expiry. The old token may be
// expired but its signature must verify and its grant must still be active.
func (s *AuthService) Refresh(ctx context.Context, token string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() { finishSpan(span, err) }()

	claims, err := s.tokens.Decode(token, false)
	if err != nil {
		return "", err
	}

	res, err := s.resolveClaims(ctx, claims)
	if err != nil {
		return "", err
	}

	return s.IssueModuleToken(res.User, res.Module)
}

func (s *AuthService) resolveClaims(ctx context.Context, claims *auth.Claims) (*CheckResult, error) {
	if claims.Subject == "" || claims.Module == "" {
		return nil, common.ErrMissingClaims
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	module, err := s.repomanager.Modules(s.db).GetByName(ctx, claims.Module)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrModuleNotFound
		}
		return nil, fmt.Errorf("error loading module: %w", err)
	}

	if err := s.requireActiveGrant(ctx, s.db, user.ID, module.ID); err != nil {
		return nil, err
	}

	return &CheckResult{User: user, Module: module, Claims: claims}, nil
}

// verifyCredentials consults the limiter, then the stored bcrypt hash.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	if err := s.limiter.Check(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("error loading user: %w", err)
		}
		// burn the same bcrypt work as a real check
		s.hasher.Verify(password, s.dummy())
		s.limiter.Fail(ctx, email)
		return nil, common.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.limiter.Fail(ctx, email)
		return nil, common.ErrInvalidCredentials
	}

	s.limiter.Reset(ctx, email)
	return user, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("modauth-dummy-password")
	})
	return s.dummyHash
}

func (s *AuthService) requireActiveGrant(ctx context.Context, db dbx.DBTX, userID, moduleID string) error {
	grant, err := s.repomanager.Grants(db).Find(ctx, userID, moduleID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrAccessDenied
		}
		return fmt.Errorf("error loading grant: %w", err)
	}
	if !grant.IsActive {
		return common.ErrAccessDenied
	}
	return nil
}

func validateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email must be a valid address", common.ErrValidation)
	}
	if password == "" {
		return fmt.Errorf("%w: password must not be empty", common.ErrValidation)
	}
	if len(password) > cryptox.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", common.ErrValidation, cryptox.MaxPasswordBytes)
	}
	return nil
}
