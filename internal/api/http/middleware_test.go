package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/auth"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestApp() *fiber.App {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	app.Get("/conflict", func(*fiber.Ctx) error {
		return apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": "t-1"})
	})
	app.Get("/denied", func(*fiber.Ctx) error { return apperrors.ErrPermissionDenied })
	app.Get("/guarded", auth.RequireAnyRole(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/panic", func(*fiber.Ctx) error { panic("boom") })
	return app
}

func call(t *testing.T, app *fiber.App, path string) (int, errorBody) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestErrorMiddlewareRendersDomainErrors(t *testing.T) {
	app := newTestApp()
	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/conflict", fiber.StatusConflict, "CONFLICT"},
		{"/denied", fiber.StatusForbidden, "PERMISSION_DENIED"},
		{"/guarded", fiber.StatusUnauthorized, "UNAUTHORIZED"},
		{"/panic", fiber.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			status, body := call(t, app, tc.path)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}

	_, body := call(t, app, "/conflict")
	assert.Equal(t, "t-1", body.Error.Details["ticket_id"])
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	status, body := call(t, newTestApp(), "/nope")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}
