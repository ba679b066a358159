package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/modauth/internal/server/config"
	"github.com/dmitrijs2005/modauth/internal/server/events"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = "sqlite:" + filepath.Join(t.TempDir(), "app.db")
	c.SecretKey = "test-secret"
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.BcryptCost = 4
	c.DBConnectAttempts = 1
	c.LogLevel = "error"
	return c
}

func TestNewApp_ServesRegisterAndLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testConfig(t)
	c.RedisAddr = mr.Addr()

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.NotNil(t, app.redis)
	assert.IsType(t, events.NopPublisher{}, app.publisher)

	h := app.httpServer().Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"a@example.com","password":"secret1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"a@example.com","password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the failed attempt is counted in redis
	assert.NotEmpty(t, mr.Keys())
}

func TestNewApp_KafkaPublisherWhenBrokersSet(t *testing.T) {
	c := testConfig(t)
	c.KafkaBrokers = []string{"127.0.0.1:1"}

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.IsType(t, &events.KafkaPublisher{}, app.publisher)
}

func TestNewApp_BadDSN(t *testing.T) {
	c := testConfig(t)
	c.DatabaseDSN = "sqlite:"

	app, err := NewApp(context.Background(), c)
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
