package admin

import (
	"fmt"
	"net/http"
	"testing"

	"snd-backend/internal/auth"
	"snd-backend/internal/config"
	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(cfg *config.Config) *fiber.App {
	app := testutil.NewApp()
	api := testutil.Protected(app, cfg)

	companies := api.Group("/admin/companies", auth.RequireRole(models.RoleSuperAdmin))
	companies.Get("/", ListCompaniesHandler())
	companies.Post("/", CreateCompanyHandler())
	companies.Get("/:id", GetCompanyHandler())
	companies.Put("/:id", UpdateCompanyHandler())
	companies.Delete("/:id", DeleteCompanyHandler())
	companies.Get("/:id/admins", ListCompanyAdminsHandler())
	companies.Post("/:id/admins", CreateCompanyAdminHandler())

	api.Get("/users", auth.RequirePermission("read", "User"), ListUsersHandler())
	api.Post("/users", auth.RequirePermission("create", "User"), CreateUserHandler())
	api.Put("/users/:id", auth.RequirePermission("update", "User"), UpdateUserHandler())
	api.Put("/users/:id/role", auth.RequirePermission("update", "User"), UpdateUserRoleHandler())
	api.Get("/users/:id/permissions", auth.RequirePermission("read", "User"), UserPermissionsHandler())
	api.Put("/users/:id/permissions", auth.RequirePermission("update", "User"), UpdateUserPermissionsHandler())

	api.Get("/roles", auth.RequirePermission("read", "Role"), ListRolesHandler())
	api.Post("/roles", auth.RequireRole(models.RoleSuperAdmin), CreateRoleHandler())
	api.Put("/roles/:id/permissions", auth.RequireRole(models.RoleSuperAdmin), UpdateRolePermissionsHandler())

	api.Get("/permissions", auth.RequirePermission("read", "Permission"), ListPermissionsHandler())
	api.Post("/permissions", auth.RequireRole(models.RoleSuperAdmin), CreatePermissionHandler())
	api.Get("/permissions/:id", auth.RequirePermission("read", "Permission"), GetPermissionHandler())
	api.Put("/permissions/:id", auth.RequireRole(models.RoleSuperAdmin), UpdatePermissionHandler())
	api.Delete("/permissions/:id", auth.RequireRole(models.RoleSuperAdmin), DeletePermissionHandler())
	return app
}

func TestCompanies(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	app := setupApp(cfg)

	root := testutil.CreateUser(t, db, nil, models.RoleSuperAdmin, "root@snd.test")
	token := testutil.Token(t, cfg, root)

	var co CompanyResponse
	resp := testutil.Do(t, app, http.MethodPost, "/api/admin/companies", token, fiber.Map{"name": " SND Rentals ", "email": "INFO@SND.TEST"})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	testutil.Decode(t, resp, &co)
	assert.Equal(t, "SND Rentals", co.Name)
	assert.Equal(t, "info@snd.test", co.Email)
	assert.True(t, co.IsActive)

	resp = testutil.Do(t, app, http.MethodPost, "/api/admin/companies", token, fiber.Map{"name": "snd rentals"})
	testutil.RequireStatus(t, resp, http.StatusConflict)
	resp = testutil.Do(t, app, http.MethodPost, "/api/admin/companies", token, fiber.Map{"name": ""})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	path := fmt.Sprintf("/api/admin/companies/%d", co.ID)
	resp = testutil.Do(t, app, http.MethodPut, path, token, fiber.Map{"phone": "+966 11 000", "is_active": false})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &co)
	assert.False(t, co.IsActive)
	assert.Equal(t, "+966 11 000", co.Phone)

	var admin UserResponse
	resp = testutil.Do(t, app, http.MethodPost, path+"/admins", token, fiber.Map{"name": "Admin", "email": "admin@snd.test", "password": "s3cret-pass"})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	testutil.Decode(t, resp, &admin)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	require.NotNil(t, admin.CompanyID)
	assert.Equal(t, co.ID, *admin.CompanyID)

	resp = testutil.Do(t, app, http.MethodPost, path+"/admins", token, fiber.Map{"name": "Dup", "email": "ADMIN@snd.test", "password": "s3cret-pass"})
	testutil.RequireStatus(t, resp, http.StatusConflict)
	resp = testutil.Do(t, app, http.MethodPost, path+"/admins", token, fiber.Map{"name": "Short", "email": "short@snd.test", "password": "short"})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	var admins []UserResponse
	resp = testutil.Do(t, app, http.MethodGet, path+"/admins", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &admins)
	assert.Len(t, admins, 1)

	resp = testutil.Do(t, app, http.MethodDelete, path, token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	empty := testutil.CreateCompany(t, db, "Empty")
	resp = testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/admin/companies/%d", empty.ID), token, nil)
	testutil.RequireStatus(t, resp, http.StatusNoContent)

	// company admins cannot reach tenant management
	adminUser := models.User{ID: admin.ID, Email: admin.Email, CompanyID: admin.CompanyID, Role: &models.Role{Name: models.RoleAdmin}}
	resp = testutil.Do(t, app, http.MethodGet, "/api/admin/companies", testutil.Token(t, cfg, &adminUser), nil)
	testutil.RequireStatus(t, resp, http.StatusForbidden)
}

func TestUsers(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	app := setupApp(cfg)

	company := testutil.CreateCompany(t, db, "SND")
	other := testutil.CreateCompany(t, db, "Other")
	admin := testutil.CreateUser(t, db, &company.ID, models.RoleAdmin, "admin@snd.test")
	outsider := testutil.CreateUser(t, db, &other.ID, models.RoleEmployee, "x@other.test")
	token := testutil.Token(t, cfg, admin)

	var u UserResponse
	resp := testutil.Do(t, app, http.MethodPost, "/api/users", token, fiber.Map{"name": "Sara", "email": "sara@snd.test", "password": "password-1", "role": "manager"})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	testutil.Decode(t, resp, &u)
	assert.Equal(t, models.RoleManager, u.Role)
	assert.Equal(t, company.ID, *u.CompanyID)

	resp = testutil.Do(t, app, http.MethodPost, "/api/users", token, fiber.Map{"name": "Evil", "email": "evil@snd.test", "password": "password-1", "role": "SUPER_ADMIN"})
	testutil.RequireStatus(t, resp, http.StatusForbidden)
	resp = testutil.Do(t, app, http.MethodPost, "/api/users", token, fiber.Map{"name": "Bad", "email": "bad@snd.test", "password": "password-1", "role": "WIZARD"})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	var list []UserResponse
	resp = testutil.Do(t, app, http.MethodGet, "/api/users", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &list)
	assert.Len(t, list, 2)

	resp = testutil.Do(t, app, http.MethodGet, "/api/users?role=manager", token, nil)
	testutil.Decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "sara@snd.test", list[0].Email)

	path := fmt.Sprintf("/api/users/%d", u.ID)
	resp = testutil.Do(t, app, http.MethodPut, path, token, fiber.Map{"name": "Sara K", "is_active": false})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &u)
	assert.Equal(t, "Sara K", u.Name)
	assert.False(t, u.IsActive)

	resp = testutil.Do(t, app, http.MethodPut, path, token, fiber.Map{"email": "admin@snd.test"})
	testutil.RequireStatus(t, resp, http.StatusConflict)
	resp = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/api/users/%d", admin.ID), token, fiber.Map{"is_active": false})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
	resp = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/api/users/%d", outsider.ID), token, fiber.Map{"name": "hijack"})
	testutil.RequireStatus(t, resp, http.StatusNotFound)

	resp = testutil.Do(t, app, http.MethodPut, path+"/role", token, fiber.Map{"role": "supervisor"})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &u)
	assert.Equal(t, models.RoleSupervisor, u.Role)

	resp = testutil.Do(t, app, http.MethodPut, path+"/permissions", token, fiber.Map{"permissions": []string{"approve.Payroll", "read.Payroll"}})
	testutil.RequireStatus(t, resp, http.StatusOK)
	resp = testutil.Do(t, app, http.MethodPut, path+"/permissions", token, fiber.Map{"permissions": []string{"manage.all"}})
	testutil.RequireStatus(t, resp, http.StatusForbidden)
	resp = testutil.Do(t, app, http.MethodPut, path+"/permissions", token, fiber.Map{"permissions": []string{"fly.Plane"}})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	var perms UserPermissionsResponse
	resp = testutil.Do(t, app, http.MethodGet, path+"/permissions", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &perms)
	assert.ElementsMatch(t, []string{"approve.Payroll", "read.Payroll"}, perms.Direct)
	assert.Contains(t, perms.Effective, "approve.Payroll")
	assert.Contains(t, perms.Effective, "approve.Timesheet")
}

func TestRolesAndPermissions(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	app := setupApp(cfg)

	root := testutil.CreateUser(t, db, nil, models.RoleSuperAdmin, "root@snd.test")
	token := testutil.Token(t, cfg, root)

	var roles []RoleResponse
	resp := testutil.Do(t, app, http.MethodGet, "/api/roles", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &roles)
	assert.Len(t, roles, 7)

	var role RoleResponse
	resp = testutil.Do(t, app, http.MethodPost, "/api/roles", token, fiber.Map{"name": "site_clerk", "permissions": []string{"read.Timesheet", "create.Timesheet"}})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	testutil.Decode(t, resp, &role)
	assert.Equal(t, models.RoleName("SITE_CLERK"), role.Name)
	assert.Equal(t, []string{"create.Timesheet", "read.Timesheet"}, role.Permissions)

	resp = testutil.Do(t, app, http.MethodPost, "/api/roles", token, fiber.Map{"name": "SITE_CLERK"})
	testutil.RequireStatus(t, resp, http.StatusConflict)
	resp = testutil.Do(t, app, http.MethodPost, "/api/roles", token, fiber.Map{"name": "bad name!"})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/api/roles/%d/permissions", role.ID), token, fiber.Map{"permissions": []string{"read.Document"}})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &role)
	assert.Equal(t, []string{"read.Document"}, role.Permissions)

	var super models.Role
	require.NoError(t, db.Where("name = ?", models.RoleSuperAdmin).First(&super).Error)
	resp = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/api/roles/%d/permissions", super.ID), token, fiber.Map{"permissions": []string{}})
	testutil.RequireStatus(t, resp, http.StatusForbidden)

	var perm models.Permission
	resp = testutil.Do(t, app, http.MethodPost, "/api/permissions", token, fiber.Map{"name": "export.Rental", "description": "dup"})
	testutil.RequireStatus(t, resp, http.StatusConflict)
	resp = testutil.Do(t, app, http.MethodPost, "/api/permissions", token, fiber.Map{"name": "not a permission"})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
	resp = testutil.Do(t, app, http.MethodPost, "/api/permissions", token, fiber.Map{"name": "sync.Customer", "description": "Pull customers from ERPNext"})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	testutil.Decode(t, resp, &perm)

	path := fmt.Sprintf("/api/permissions/%d", perm.ID)
	resp = testutil.Do(t, app, http.MethodPut, path, token, fiber.Map{"description": "ERPNext pull"})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &perm)
	assert.Equal(t, "ERPNext pull", perm.Description)

	resp = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/api/roles/%d/permissions", role.ID), token, fiber.Map{"permissions": []string{"sync.Customer", "read.Document"}})
	testutil.RequireStatus(t, resp, http.StatusOK)

	resp = testutil.Do(t, app, http.MethodDelete, path, token, nil)
	testutil.RequireStatus(t, resp, http.StatusNoContent)
	resp = testutil.Do(t, app, http.MethodGet, path, token, nil)
	testutil.RequireStatus(t, resp, http.StatusNotFound)

	var links int64
	db.Table("role_has_permissions").Where("permission_id = ?", perm.ID).Count(&links)
	assert.Zero(t, links)

	manager := testutil.CreateUser(t, db, nil, models.RoleManager, "m@snd.test")
	resp = testutil.Do(t, app, http.MethodPost, "/api/roles", testutil.Token(t, cfg, manager), fiber.Map{"name": "X"})
	testutil.RequireStatus(t, resp, http.StatusForbidden)
}
