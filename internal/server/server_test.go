package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"snd-backend/internal/config"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/models"
	"snd-backend/internal/storage"
	"snd-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp(t *testing.T) (*fiber.App, *config.Config) {
	t.Helper()
	cfg := testutil.Config()
	cfg.CORSOrigins = "https://app.snd.test, ,https://ops.snd.test"
	app := New(Deps{
		Config: cfg,
		Logger: zap.NewNop(),
		Store:  storage.NewMemory("documents"),
		ERP:    erpnext.New(cfg.ERPNext),
	})
	return app, cfg
}

func TestCORSOrigins(t *testing.T) {
	assert.Equal(t, "https://a.test,https://b.test", corsOrigins(" https://a.test, ,https://b.test "))
	assert.Equal(t, "", corsOrigins(""))
}

func TestHealthAndRequestID(t *testing.T) {
	testutil.SetupDB(t)
	app, _ := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://ops.snd.test")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "https://ops.snd.test", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestLoginThenProtectedRoutes(t *testing.T) {
	db := testutil.SetupDB(t)
	app, cfg := newApp(t)

	company := testutil.CreateCompany(t, db, "SND")
	testutil.CreateUser(t, db, &company.ID, models.RoleAdmin, "admin@snd.test")
	worker := testutil.CreateUser(t, db, &company.ID, models.RoleEmployee, "worker@snd.test")

	resp := testutil.Do(t, app, http.MethodGet, "/api/employees", "", nil)
	testutil.RequireStatus(t, resp, http.StatusUnauthorized)

	var login struct {
		Token string `json:"token"`
	}
	resp = testutil.Do(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "ADMIN@snd.test", "password": testutil.Password})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &login)
	require.NotEmpty(t, login.Token)

	for _, path := range []string{
		"/api/auth/me",
		"/api/employees",
		"/api/employees/statistics",
		"/api/equipment",
		"/api/rentals",
		"/api/documents",
		"/api/advances",
		"/api/chat/conversations",
		"/api/notifications",
		"/api/dashboard/stats",
		"/api/users",
		"/api/roles",
	} {
		resp = testutil.Do(t, app, http.MethodGet, path, login.Token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// company admins are not super admins
	resp = testutil.Do(t, app, http.MethodGet, "/api/admin/companies", login.Token, nil)
	testutil.RequireStatus(t, resp, http.StatusForbidden)

	workerToken := testutil.Token(t, cfg, worker)
	resp = testutil.Do(t, app, http.MethodGet, "/api/employees", workerToken, nil)
	testutil.RequireStatus(t, resp, http.StatusForbidden)
	resp = testutil.Do(t, app, http.MethodGet, "/api/dashboard/stats", workerToken, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	resp = testutil.Do(t, app, http.MethodGet, "/api/timesheets", workerToken, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	resp = testutil.Do(t, app, http.MethodGet, "/api/advances", workerToken, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	resp = testutil.Do(t, app, http.MethodPost, "/api/advances/1/approve", workerToken, nil)
	testutil.RequireStatus(t, resp, http.StatusForbidden)
	resp = testutil.Do(t, app, http.MethodPost, "/api/payroll/generate-monthly", workerToken, fiber.Map{"month": 1, "year": 2025})
	testutil.RequireStatus(t, resp, http.StatusForbidden)
}
