package employee

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"testing"

	"snd-backend/internal/assignment"
	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	app := testutil.NewApp()
	api := testutil.Protected(app, testutil.Config())
	api.Get("/employees/statistics", StatisticsHandler())
	api.Get("/employees/export", ExportEmployeesHandler())
	api.Get("/employees", ListEmployeesHandler())
	api.Post("/employees", CreateEmployeeHandler())
	api.Get("/employees/:id", GetEmployeeHandler())
	api.Put("/employees/:id", UpdateEmployeeHandler())
	api.Delete("/employees/:id", DeleteEmployeeHandler())
	api.Get("/departments", ListDepartmentsHandler())
	api.Post("/departments", CreateDepartmentHandler())
	api.Put("/departments/:id", UpdateDepartmentHandler())
	api.Delete("/departments/:id", DeleteDepartmentHandler())
	return app
}

func TestEmployeeCRUD(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")
	app := setupApp(t)
	token := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleAdmin, "admin@snd.test"))

	resp := testutil.Do(t, app, http.MethodPost, "/api/departments", token, DepartmentRequest{Name: strPtr("Operations")})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var dept DepartmentResponse
	testutil.Decode(t, resp, &dept)

	resp = testutil.Do(t, app, http.MethodPost, "/api/employees", token, CreateEmployeeRequest{
		FileNumber: "E-100", FirstName: "Omar", LastName: "Haddad", DepartmentID: &dept.ID,
		HireDate: strPtr("2023-04-01"), BasicSalary: 4500,
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var created EmployeeResponse
	testutil.Decode(t, resp, &created)
	assert.Equal(t, company.ID, created.CompanyID)
	assert.Equal(t, models.EmployeeStatusActive, created.Status)
	assert.Equal(t, "Omar Haddad", created.FullName)
	require.NotNil(t, created.HireDate)
	assert.Equal(t, "2023-04-01", *created.HireDate)

	resp = testutil.Do(t, app, http.MethodPost, "/api/employees", token, CreateEmployeeRequest{FileNumber: "E-100", FirstName: "Dup"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodPost, "/api/employees", token, CreateEmployeeRequest{FileNumber: "E-101", FirstName: "Bad", Status: "retired"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	testutil.CreateEmployee(t, db, company.ID, "E-200", "Sara")

	var list ListEmployeesResponse
	resp = testutil.Do(t, app, http.MethodGet, "/api/employees?q=omar", token, nil)
	testutil.Decode(t, resp, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Operations", list.Data[0].DepartmentName)

	resp = testutil.Do(t, app, http.MethodGet, "/api/employees?limit=1&page=2", token, nil)
	testutil.Decode(t, resp, &list)
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "E-200", list.Data[0].FileNumber)

	resp = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/api/employees/%d", created.ID), token, UpdateEmployeeRequest{Position: strPtr("Crane Operator")})
	testutil.RequireStatus(t, resp, http.StatusOK)
	var updated EmployeeResponse
	testutil.Decode(t, resp, &updated)
	assert.Equal(t, "Crane Operator", updated.Position)
	assert.Equal(t, "Haddad", updated.LastName)

	resp = testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/departments/%d", dept.ID), token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/employees/%d", created.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/departments/%d", dept.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var logs int64
	db.Model(&models.AuditLog{}).Where("entity_type = ?", "employee").Count(&logs)
	assert.Equal(t, int64(3), logs)
}

func TestTerminationClosesAssignments(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")
	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Ali")
	a, err := assignment.Create(db, assignment.CreateInput{EmployeeID: emp.ID, Type: models.AssignmentTypeManual, StartDate: testutil.Date(2025, 1, 1)})
	require.NoError(t, err)

	app := setupApp(t)
	token := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleAdmin, "admin@snd.test"))
	path := fmt.Sprintf("/api/employees/%d", emp.ID)

	resp := testutil.Do(t, app, http.MethodPut, path, token, UpdateEmployeeRequest{
		Status: strPtr("terminated"), LastWorkingDate: strPtr("2025-06-30"),
	})
	testutil.RequireStatus(t, resp, http.StatusOK)

	var got models.EmployeeAssignment
	require.NoError(t, db.First(&got, a.ID).Error)
	assert.Equal(t, models.AssignmentStatusCompleted, got.Status)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(testutil.Date(2025, 6, 30)))

	resp = testutil.Do(t, app, http.MethodPut, path, token, UpdateEmployeeRequest{Status: strPtr("active")})
	testutil.RequireStatus(t, resp, http.StatusOK)
	require.NoError(t, db.First(&got, a.ID).Error)
	assert.Equal(t, models.AssignmentStatusActive, got.Status)
	assert.Nil(t, got.EndDate)
}

func TestEmployeeVisibility(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	acme := testutil.CreateCompany(t, db, "Acme")
	globex := testutil.CreateCompany(t, db, "Globex")
	mine := testutil.CreateEmployee(t, db, acme.ID, "A-1", "Mine")
	testutil.CreateEmployee(t, db, acme.ID, "A-2", "Colleague")
	foreign := testutil.CreateEmployee(t, db, globex.ID, "G-1", "Foreign")

	self := testutil.CreateUser(t, db, &acme.ID, models.RoleEmployee, "self@acme.test")
	require.NoError(t, db.Model(mine).Update("user_id", self.ID).Error)
	app := setupApp(t)

	var list ListEmployeesResponse
	resp := testutil.Do(t, app, http.MethodGet, "/api/employees", testutil.Token(t, cfg, self), nil)
	testutil.Decode(t, resp, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, mine.ID, list.Data[0].ID)

	manager := testutil.Token(t, cfg, testutil.CreateUser(t, db, &acme.ID, models.RoleManager, "m@acme.test"))
	resp = testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/employees/%d", foreign.ID), manager, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	root := testutil.Token(t, cfg, testutil.CreateUser(t, db, nil, models.RoleSuperAdmin, "root@snd.test"))
	resp = testutil.Do(t, app, http.MethodGet, "/api/employees", root, nil)
	testutil.Decode(t, resp, &list)
	assert.Equal(t, int64(3), list.Total)

	resp = testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/employees?company_id=%d", globex.ID), root, nil)
	testutil.Decode(t, resp, &list)
	assert.Equal(t, int64(1), list.Total)
}

func TestStatisticsAndExport(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")
	dept := models.Department{CompanyID: company.ID, Name: "Workshop", IsActive: true}
	require.NoError(t, db.Create(&dept).Error)
	a := testutil.CreateEmployee(t, db, company.ID, "E-1", "Ali")
	require.NoError(t, db.Model(a).Update("department_id", dept.ID).Error)
	b := testutil.CreateEmployee(t, db, company.ID, "E-2", "Badr")
	require.NoError(t, db.Model(b).Update("status", models.EmployeeStatusOnLeave).Error)

	app := setupApp(t)
	token := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleManager, "m@snd.test"))

	var stats StatisticsResponse
	resp := testutil.Do(t, app, http.MethodGet, "/api/employees/statistics", token, nil)
	testutil.Decode(t, resp, &stats)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.EmployeeStatusActive])
	assert.Equal(t, int64(1), stats.ByStatus[models.EmployeeStatusOnLeave])
	assert.Len(t, stats.ByDepartment, 2)

	resp = testutil.Do(t, app, http.MethodGet, "/api/employees/export", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Employees")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "File Number", rows[0][0])
	assert.Equal(t, "E-1", rows[1][0])
	assert.Equal(t, "Workshop", rows[1][3])
}

func strPtr(s string) *string { return &s }
