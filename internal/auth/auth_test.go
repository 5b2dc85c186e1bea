package auth_test

import (
	"net/http"
	"testing"
	"time"

	"snd-backend/internal/auth"
	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthApp(t *testing.T) *fiber.App {
	cfg := testutil.Config()
	app := testutil.NewApp()
	app.Post("/api/auth/register-super-admin", auth.RegisterSuperAdminHandler(cfg))
	app.Post("/api/auth/login", auth.LoginHandler(cfg))
	api := testutil.Protected(app, cfg)
	api.Get("/auth/me", auth.MeHandler())
	api.Get("/employees", auth.RequirePermission("read", "Employee"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	api.Delete("/employees", auth.RequirePermission("delete", "Employee"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	api.Get("/admin", auth.RequireRole(models.RoleSuperAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestRegisterSuperAdminOnlyOnce(t *testing.T) {
	testutil.SetupDB(t)
	app := newAuthApp(t)

	body := auth.RegisterSuperAdminRequest{Name: "Root", Email: " ROOT@example.com ", Password: "supersecret"}
	resp := testutil.Do(t, app, http.MethodPost, "/api/auth/register-super-admin", "", body)
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var created map[string]any
	testutil.Decode(t, resp, &created)
	assert.Equal(t, "root@example.com", created["email"])
	assert.Equal(t, "SUPER_ADMIN", created["role"])

	body.Email = "other@example.com"
	resp = testutil.Do(t, app, http.MethodPost, "/api/auth/register-super-admin", "", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRegisterSuperAdminValidation(t *testing.T) {
	testutil.SetupDB(t)
	app := newAuthApp(t)

	resp := testutil.Do(t, app, http.MethodPost, "/api/auth/register-super-admin", "",
		auth.RegisterSuperAdminRequest{Name: "Root", Email: "root@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginAndMe(t *testing.T) {
	db := testutil.SetupDB(t)
	app := newAuthApp(t)
	company := testutil.CreateCompany(t, db, "SND")
	user := testutil.CreateUser(t, db, &company.ID, models.RoleManager, "manager@example.com")
	emp := testutil.CreateEmployee(t, db, company.ID, "F-1", "Sam")
	require.NoError(t, db.Model(emp).Update("user_id", user.ID).Error)

	resp := testutil.Do(t, app, http.MethodPost, "/api/auth/login", "",
		auth.LoginRequest{Email: "Manager@Example.com", Password: testutil.Password})
	testutil.RequireStatus(t, resp, http.StatusOK)

	var login struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	testutil.Decode(t, resp, &login)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, "MANAGER", login.User["role"])

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.NotNil(t, reloaded.LastLoginAt)

	resp = testutil.Do(t, app, http.MethodGet, "/api/auth/me", login.Token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var me struct {
		Role        string         `json:"role"`
		EmployeeID  uint           `json:"employee_id"`
		Permissions []string       `json:"permissions"`
		Company     map[string]any `json:"company"`
	}
	testutil.Decode(t, resp, &me)
	assert.Equal(t, "MANAGER", me.Role)
	assert.Equal(t, emp.ID, me.EmployeeID)
	assert.Contains(t, me.Permissions, "approve.Leave")
	assert.Equal(t, "SND", me.Company["name"])
}

func TestLoginRejectsBadPasswordAndInactive(t *testing.T) {
	db := testutil.SetupDB(t)
	app := newAuthApp(t)
	user := testutil.CreateUser(t, db, nil, models.RoleUser, "user@example.com")

	resp := testutil.Do(t, app, http.MethodPost, "/api/auth/login", "",
		auth.LoginRequest{Email: "user@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	resp = testutil.Do(t, app, http.MethodPost, "/api/auth/login", "",
		auth.LoginRequest{Email: "user@example.com", Password: testutil.Password})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestJWTMiddleware(t *testing.T) {
	testutil.SetupDB(t)
	app := newAuthApp(t)

	resp := testutil.Do(t, app, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodGet, "/api/auth/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cfg := testutil.Config()
	expired, err := auth.GenerateToken(cfg.JWTSecret, -time.Minute, &models.User{ID: 1, Email: "x@example.com"})
	require.NoError(t, err)
	resp = testutil.Do(t, app, http.MethodGet, "/api/auth/me", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := auth.GenerateToken("another-secret-another-secret-another", time.Hour, &models.User{ID: 1})
	require.NoError(t, err)
	resp = testutil.Do(t, app, http.MethodGet, "/api/auth/me", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequirePermissionAndRole(t *testing.T) {
	db := testutil.SetupDB(t)
	app := newAuthApp(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")

	manager := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleManager, "m@example.com"))
	operator := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleOperator, "o@example.com"))
	root := testutil.Token(t, cfg, testutil.CreateUser(t, db, nil, models.RoleSuperAdmin, "r@example.com"))

	assert.Equal(t, http.StatusOK, testutil.Do(t, app, http.MethodGet, "/api/employees", manager, nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, testutil.Do(t, app, http.MethodDelete, "/api/employees", manager, nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, testutil.Do(t, app, http.MethodGet, "/api/employees", operator, nil).StatusCode)
	assert.Equal(t, http.StatusOK, testutil.Do(t, app, http.MethodDelete, "/api/employees", root, nil).StatusCode)

	assert.Equal(t, http.StatusForbidden, testutil.Do(t, app, http.MethodGet, "/api/admin", manager, nil).StatusCode)
	assert.Equal(t, http.StatusOK, testutil.Do(t, app, http.MethodGet, "/api/admin", root, nil).StatusCode)
}
