package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/events"
	"github.com/dmitrijs2005/modauth/internal/server/models"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/grants"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/modules"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func newSQLMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// plainHasher keeps tests fast; bcrypt is covered in cryptox.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (plainHasher) Verify(p, h string) bool       { return h == "hashed:"+p }

// --- in-memory repositories ---

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*models.User   // by id
	modules map[string]*models.Module // by name
	grants  map[[2]string]*models.Grant

	usersErr   error
	modulesErr error
	grantsErr  error
	// createUserErr fails user inserts only
	createUserErr error
	// createGrantErr fails grant inserts only
	createGrantErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*models.User{},
		modules: map[string]*models.Module{},
		grants:  map[[2]string]*models.Grant{},
	}
}

func (s *fakeStore) addUser(email, password string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.NewString(), Email: email, PasswordHash: "hashed:" + password}
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) addModule(name string) *models.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &models.Module{ID: uuid.NewString(), Name: name}
	s.modules[name] = m
	return m
}

func (s *fakeStore) addGrant(u *models.User, m *models.Module, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[[2]string{u.ID, m.ID}] = &models.Grant{UserID: u.ID, ModuleID: m.ID, IsActive: active}
}

type fakeUsers struct{ s *fakeStore }

func (f fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createUserErr != nil {
		return nil, f.s.createUserErr
	}
	for _, existing := range f.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	f.s.users[u.ID] = &cp
	return u, nil
}

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersErr != nil {
		return nil, f.s.usersErr
	}
	for _, u := range f.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersErr != nil {
		return nil, f.s.usersErr
	}
	u, ok := f.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeModules struct{ s *fakeStore }

func (f fakeModules) Create(ctx context.Context, m *models.Module) (*models.Module, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.modulesErr != nil {
		return nil, f.s.modulesErr
	}
	if _, ok := f.s.modules[m.Name]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	cp := *m
	f.s.modules[m.Name] = &cp
	return m, nil
}

func (f fakeModules) GetByName(ctx context.Context, name string) (*models.Module, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.modulesErr != nil {
		return nil, f.s.modulesErr
	}
	m, ok := f.s.modules[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *m
	return &cp, nil
}

func (f fakeModules) List(ctx context.Context) ([]models.Module, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.modulesErr != nil {
		return nil, f.s.modulesErr
	}
	out := []models.Module{}
	for _, m := range f.s.modules {
		out = append(out, *m)
	}
	return out, nil
}

type fakeGrants struct{ s *fakeStore }

func (f fakeGrants) Create(ctx context.Context, g *models.Grant) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createGrantErr != nil {
		return f.s.createGrantErr
	}
	key := [2]string{g.UserID, g.ModuleID}
	if _, ok := f.s.grants[key]; ok {
		return common.ErrorAlreadyExists
	}
	cp := *g
	f.s.grants[key] = &cp
	return nil
}

func (f fakeGrants) Find(ctx context.Context, userID, moduleID string) (*models.Grant, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.grantsErr != nil {
		return nil, f.s.grantsErr
	}
	g, ok := f.s.grants[[2]string{userID, moduleID}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *g
	return &cp, nil
}

func (f fakeGrants) SetActive(ctx context.Context, userID, moduleID string, active bool) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	g, ok := f.s.grants[[2]string{userID, moduleID}]
	if !ok {
		return common.ErrorNotFound
	}
	g.IsActive = active
	return nil
}

func (f fakeGrants) Delete(ctx context.Context, userID, moduleID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := [2]string{userID, moduleID}
	if _, ok := f.s.grants[key]; !ok {
		return common.ErrorNotFound
	}
	delete(f.s.grants, key)
	return nil
}

type fakeRepoManager struct{ s *fakeStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return fakeUsers{m.s} }
func (m *fakeRepoManager) Modules(dbx.DBTX) modules.Repository         { return fakeModules{m.s} }
func (m *fakeRepoManager) Grants(dbx.DBTX) grants.Repository           { return fakeGrants{m.s} }

// --- collaborators ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingLimiter struct {
	mu       sync.Mutex
	blocked  bool
	failures map[string]int
	resets   map[string]int
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{failures: map[string]int{}, resets: map[string]int{}}
}

func (l *countingLimiter) Check(ctx context.Context, email string) error {
	if l.blocked {
		return common.ErrTooManyAttempts
	}
	return nil
}

func (l *countingLimiter) Fail(ctx context.Context, email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[email]++
}

func (l *countingLimiter) Reset(ctx context.Context, email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets[email]++
}
