package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/server/auth"
	"github.com/dmitrijs2005/modauth/internal/server/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	svc       *AuthService
	store     *fakeStore
	clock     *fixedClock
	engine    *auth.Engine
	limiter   *countingLimiter
	publisher *recordingPublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)
	store := newFakeStore()
	clock := newClock()
	engine := auth.NewEngine([]byte("k"), 30*time.Minute, clock)
	limiter := newCountingLimiter()
	pub := &recordingPublisher{}

	svc := NewAuthService(db, &fakeRepoManager{s: store}, engine, plainHasher{},
		WithClock(clock), WithLimiter(limiter), WithPublisher(pub))

	return &authFixture{svc: svc, store: store, clock: clock, engine: engine, limiter: limiter, publisher: pub}
}

func TestRegister_Success(t *testing.T) {
	f := newAuthFixture(t)

	u, token, err := f.svc.Register(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "hashed:secret", u.PasswordHash)
	assert.Equal(t, f.clock.t, u.CreatedAt)

	claims, err := f.engine.Decode(token, true)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Empty(t, claims.Module)

	assert.Equal(t, []string{events.UserRegistered}, f.publisher.types())
}

func TestRegister_EmailTaken(t *testing.T) {
	f := newAuthFixture(t)
	f.store.addUser("alice@example.com", "x")

	_, _, err := f.svc.Register(context.Background(), "alice@example.com", "secret")
	assert.ErrorIs(t, err, common.ErrEmailTaken)
	assert.Empty(t, f.publisher.types())
}

func TestRegister_InsertRaceMapsToEmailTaken(t *testing.T) {
	f := newAuthFixture(t)
	f.store.createUserErr = common.ErrorAlreadyExists

	_, _, err := f.svc.Register(context.Background(), "alice@example.com", "secret")
	assert.ErrorIs(t, err, common.ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t)

	for _, tc := range []struct{ email, password string }{
		{"", "secret"},
		{"   ", "secret"},
		{"no-at-sign", "secret"},
		{"a@b", ""},
		{"a@b", strings.Repeat("x", 73)},
	} {
		_, _, err := f.svc.Register(context.Background(), tc.email, tc.password)
		assert.ErrorIs(t, err, common.ErrValidation, "%q/%q", tc.email, tc.password)
	}
}

func TestRegister_LongestPasswordAccepted(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.svc.Register(context.Background(), "a@b", strings.Repeat("x", 72))
	assert.NoError(t, err)
}

func TestRegister_StorageErrors(t *testing.T) {
	f := newAuthFixture(t)
	f.store.usersErr = errBoom{}

	_, _, err := f.svc.Register(context.Background(), "a@b", "p")
	if err == nil || !regexp.MustCompile(`error loading user: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped load error, got %v", err)
	}

	f2 := newAuthFixture(t)
	f2.store.createUserErr = errBoom{}
	_, _, err = f2.svc.Register(context.Background(), "a@b", "p")
	if err == nil || !regexp.MustCompile(`error creating user: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped create error, got %v", err)
	}
}

func TestRegister_PublishFailureDoesNotFail(t *testing.T) {
	f := newAuthFixture(t)
	f.publisher.err = errors.New("kafka down")

	_, _, err := f.svc.Register(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
}

func TestAuthorize_SameUserAsRegistered(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	u, _, err := f.svc.Register(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	m := f.store.addModule("moneyfy")
	f.store.addGrant(u, m, true)

	gotUser, gotModule, err := f.svc.Authorize(ctx, "alice@example.com", "secret", "moneyfy")
	require.NoError(t, err)
	assert.Equal(t, u.ID, gotUser.ID)
	assert.Equal(t, m.ID, gotModule.ID)
	assert.Equal(t, 1, f.limiter.resets["alice@example.com"])
}

func TestAuthorize_Errors(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	alice := f.store.addUser("alice@example.com", "secret")
	bob := f.store.addUser("bob@example.com", "secret")
	m := f.store.addModule("moneyfy")
	f.store.addModule("other")
	f.store.addGrant(alice, m, true)
	f.store.addGrant(bob, m, false)

	tests := []struct {
		name                   string
		email, password, modul string
		want                   error
	}{
		{"unknown email", "ghost@example.com", "secret", "moneyfy", common.ErrInvalidCredentials},
		{"wrong password", "alice@example.com", "nope", "moneyfy", common.ErrInvalidCredentials},
		{"unknown module", "alice@example.com", "secret", "nope", common.ErrModuleNotFound},
		{"no grant", "alice@example.com", "secret", "other", common.ErrAccessDenied},
		{"inactive grant", "bob@example.com", "secret", "moneyfy", common.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Authorize(ctx, tt.email, tt.password, tt.modul)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 1, f.limiter.failures["ghost@example.com"])
	assert.Equal(t, 1, f.limiter.failures["alice@example.com"])
}

func TestAuthorize_Throttled(t *testing.T) {
	f := newAuthFixture(t)
	f.store.addUser("alice@example.com", "secret")
	f.limiter.blocked = true

	_, _, err := f.svc.Authorize(context.Background(), "alice@example.com", "secret", "moneyfy")
	assert.ErrorIs(t, err, common.ErrTooManyAttempts)
}

func TestAuthorize_GrantLookupError(t *testing.T) {
	f := newAuthFixture(t)
	f.store.addUser("alice@example.com", "secret")
	f.store.addModule("moneyfy")
	f.store.grantsErr = errBoom{}

	_, _, err := f.svc.Authorize(context.Background(), "alice@example.com", "secret", "moneyfy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading grant: boom")
}

func TestAuthorizeAndIssue(t *testing.T) {
	f := newAuthFixture(t)
	u := f.store.addUser("alice@example.com", "secret")
	m := f.store.addModule("moneyfy")
	f.store.addGrant(u, m, true)

	token, err := f.svc.AuthorizeAndIssue(context.Background(), "alice@example.com", "secret", "moneyfy")
	require.NoError(t, err)

	claims, err := f.engine.Decode(token, true)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, "moneyfy", claims.Module)
	assert.True(t, claims.ExpiresAt.Time.Equal(f.clock.t.Add(30*time.Minute)))

	_, err = f.svc.AuthorizeAndIssue(context.Background(), "alice@example.com", "bad", "moneyfy")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	u := f.store.addUser("alice@example.com", "secret")

	token, err := f.svc.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	claims, err := f.engine.Decode(token, true)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Empty(t, claims.Module)

	_, err = f.svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func moduleToken(t *testing.T, f *authFixture) (string, func(active bool), func()) {
	t.Helper()
	u := f.store.addUser("alice@example.com", "secret")
	m := f.store.addModule("moneyfy")
	f.store.addGrant(u, m, true)

	token, err := f.svc.AuthorizeAndIssue(context.Background(), "alice@example.com", "secret", "moneyfy")
	require.NoError(t, err)

	setActive := func(active bool) { f.store.addGrant(u, m, active) }
	remove := func() {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		delete(f.store.grants, [2]string{u.ID, m.ID})
	}
	return token, setActive, remove
}

func TestCheck_Valid(t *testing.T) {
	f := newAuthFixture(t)
	token, _, _ := moduleToken(t, f)

	res, err := f.svc.Check(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "moneyfy", res.Module.Name)
	assert.Equal(t, "moneyfy", res.Claims.Module)
}

func TestCheck_DeniedAfterGrantDeleted(t *testing.T) {
	f := newAuthFixture(t)
	token, _, remove := moduleToken(t, f)

	remove()
	_, err := f.svc.Check(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestCheck_DeniedAfterDeactivation(t *testing.T) {
	f := newAuthFixture(t)
	token, setActive, _ := moduleToken(t, f)

	setActive(false)
	_, err := f.svc.Check(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestCheck_Expired(t *testing.T) {
	f := newAuthFixture(t)
	token, _, _ := moduleToken(t, f)

	f.clock.Advance(31 * time.Minute)
	_, err := f.svc.Check(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestCheck_MissingClaims(t *testing.T) {
	f := newAuthFixture(t)
	u := f.store.addUser("alice@example.com", "secret")

	subjectOnly, err := f.engine.Issue(u.ID, "", 0)
	require.NoError(t, err)
	_, err = f.svc.Check(context.Background(), subjectOnly)
	assert.ErrorIs(t, err, common.ErrMissingClaims)

	noSubject, err := f.engine.Issue("", "moneyfy", 0)
	require.NoError(t, err)
	_, err = f.svc.Check(context.Background(), noSubject)
	assert.ErrorIs(t, err, common.ErrMissingClaims)
}

func TestCheck_UnknownUserOrModule(t *testing.T) {
	f := newAuthFixture(t)
	f.store.addModule("moneyfy")
	u := f.store.addUser("alice@example.com", "secret")

	ghost, err := f.engine.Issue("no-such-user", "moneyfy", 0)
	require.NoError(t, err)
	_, err = f.svc.Check(context.Background(), ghost)
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	gone, err := f.engine.Issue(u.ID, "deleted-module", 0)
	require.NoError(t, err)
	_, err = f.svc.Check(context.Background(), gone)
	assert.ErrorIs(t, err, common.ErrModuleNotFound)
}

func TestCheck_Garbage(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Check(context.Background(), "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh_ExpiredTokenGetsLaterExpiry(t *testing.T) {
	f := newAuthFixture(t)
	token, _, _ := moduleToken(t, f)
	old, err := f.engine.Decode(token, true)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	fresh, err := f.svc.Refresh(context.Background(), token)
	require.NoError(t, err)

	claims, err := f.engine.Decode(fresh, true)
	require.NoError(t, err)
	assert.Equal(t, old.Subject, claims.Subject)
	assert.Equal(t, old.Module, claims.Module)
	assert.True(t, claims.ExpiresAt.After(old.ExpiresAt.Time))
}

func TestRefresh_TamperedSignature(t *testing.T) {
	f := newAuthFixture(t)
	token, _, _ := moduleToken(t, f)

	tampered := tamperSignature(token)

	_, err := f.svc.Refresh(context.Background(), tampered)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh_RevokedGrant(t *testing.T) {
	f := newAuthFixture(t)
	token, setActive, _ := moduleToken(t, f)

	setActive(false)
	_, err := f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestRefresh_SubjectOnlyToken(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.engine.Issue("u-1", "", 0)
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrMissingClaims)
}

// tamperSignature flips one character inside the signature segment.
func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 5
	b := []byte(token)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}
