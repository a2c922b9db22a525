package csrfsrv

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridianid/authd/pkg/iam/auth/authinfra"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := authinfra.NewRedisStore(rdb)
	return NewService(store, time.Minute)
}

func TestGenerateAndValidateToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	token, err := svc.GenerateToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	valid, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestValidateTokenRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	valid, err := svc.ValidateToken(ctx, "never-issued")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestValidateTokenRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	valid, err := svc.ValidateToken(ctx, "")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestGenerateTokenIsUnique(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.GenerateToken(ctx)
	require.NoError(t, err)
	second, err := svc.GenerateToken(ctx)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New()
	app.Use(svc.RequireCSRFToken())
	app.Get("/safe", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/mutate", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func TestRequireCSRFTokenExemptsSafeMethods(t *testing.T) {
	svc := newTestService(t)
	app := newTestApp(svc)

	req := httptest.NewRequest(fiber.MethodGet, "/safe", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireCSRFTokenRejectsMissingTokenOnMutation(t *testing.T) {
	svc := newTestService(t)
	app := newTestApp(svc)

	req := httptest.NewRequest(fiber.MethodPost, "/mutate", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NotEqual(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireCSRFTokenAllowsValidTokenOnMutation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	app := newTestApp(svc)

	token, err := svc.GenerateToken(ctx)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/mutate", nil)
	req.Header.Set("X-CSRF-Token", token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
