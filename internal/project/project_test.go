package project

import (
	"fmt"
	"net/http"
	"testing"

	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestProjectHandlers(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	acme := testutil.CreateCompany(t, db, "Acme")
	globex := testutil.CreateCompany(t, db, "Globex")

	customer := models.Customer{CompanyID: acme.ID, Name: "SABIC", IsActive: true, Status: models.CustomerStatusActive}
	require.NoError(t, db.Create(&customer).Error)
	foreignCustomer := models.Customer{CompanyID: globex.ID, Name: "Other", IsActive: true, Status: models.CustomerStatusActive}
	require.NoError(t, db.Create(&foreignCustomer).Error)

	app := testutil.NewApp()
	api := testutil.Protected(app, cfg)
	api.Get("/projects", ListProjectsHandler())
	api.Post("/projects", CreateProjectHandler())
	api.Get("/projects/:id", GetProjectHandler())
	api.Put("/projects/:id", UpdateProjectHandler())
	api.Delete("/projects/:id", DeleteProjectHandler())
	api.Get("/projects/:id/resources", ResourcesHandler())

	token := testutil.Token(t, cfg, testutil.CreateUser(t, db, &acme.ID, models.RoleManager, "m@acme.test"))

	resp := testutil.Do(t, app, http.MethodPost, "/api/projects", token, ProjectRequest{
		Name: strPtr("Jubail Plant"), CustomerID: &foreignCustomer.ID,
	})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp = testutil.Do(t, app, http.MethodPost, "/api/projects", token, ProjectRequest{
		Name: strPtr("Jubail Plant"), StartDate: strPtr("2025-03-01"), EndDate: strPtr("2025-02-01"),
	})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp = testutil.Do(t, app, http.MethodPost, "/api/projects", token, ProjectRequest{
		Name: strPtr("Jubail Plant"), CustomerID: &customer.ID, Location: strPtr("Jubail"), StartDate: strPtr("2025-03-01"),
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var p ProjectResponse
	testutil.Decode(t, resp, &p)
	assert.Equal(t, models.ProjectStatusPlanning, p.Status)
	assert.Equal(t, "SABIC", p.CustomerName)
	assert.Equal(t, "2025-03-01", *p.StartDate)

	path := fmt.Sprintf("/api/projects/%d", p.ID)
	resp = testutil.Do(t, app, http.MethodPut, path, token, ProjectRequest{Status: strPtr("paused")})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp = testutil.Do(t, app, http.MethodPut, path, token, ProjectRequest{Status: strPtr("active")})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &p)
	assert.Equal(t, models.ProjectStatusActive, p.Status)

	resp = testutil.Do(t, app, http.MethodGet, "/api/projects?status=active&q=jubail", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var list []ProjectResponse
	testutil.Decode(t, resp, &list)
	assert.Len(t, list, 1)

	emp := testutil.CreateEmployee(t, db, acme.ID, "E-1", "Khalid")
	a := models.EmployeeAssignment{
		EmployeeID: emp.ID, Type: models.AssignmentTypeProject, Name: "Project Assignment - Jubail Plant",
		ProjectID: &p.ID, StartDate: testutil.Date(2025, 3, 1), Status: models.AssignmentStatusActive,
	}
	require.NoError(t, db.Create(&a).Error)
	eq := models.Equipment{CompanyID: acme.ID, Name: "Crane", Status: models.EquipmentStatusAssigned}
	require.NoError(t, db.Create(&eq).Error)
	require.NoError(t, db.Create(&models.EquipmentRentalHistory{
		EquipmentID: eq.ID, AssignmentType: models.AssignmentTypeProject, ProjectID: &p.ID,
		StartDate: testutil.Date(2025, 3, 2), Status: models.HistoryStatusActive,
	}).Error)

	resp = testutil.Do(t, app, http.MethodGet, path+"/resources", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var res struct {
		Employees []ResourceEmployee  `json:"employees"`
		Equipment []ResourceEquipment `json:"equipment"`
	}
	testutil.Decode(t, resp, &res)
	require.Len(t, res.Employees, 1)
	assert.Equal(t, "Khalid Test", res.Employees[0].Name)
	require.Len(t, res.Equipment, 1)
	assert.Equal(t, "Crane", res.Equipment[0].Name)

	resp = testutil.Do(t, app, http.MethodDelete, path, token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	require.NoError(t, db.Model(&models.EmployeeAssignment{}).Where("id = ?", a.ID).
		Update("status", models.AssignmentStatusCompleted).Error)
	require.NoError(t, db.Model(&models.EquipmentRentalHistory{}).Where("project_id = ?", p.ID).
		Update("status", models.HistoryStatusCompleted).Error)

	other := testutil.Token(t, cfg, testutil.CreateUser(t, db, &globex.ID, models.RoleAdmin, "a@globex.test"))
	resp = testutil.Do(t, app, http.MethodDelete, path, other, nil)
	testutil.RequireStatus(t, resp, http.StatusNotFound)

	resp = testutil.Do(t, app, http.MethodDelete, path, token, nil)
	testutil.RequireStatus(t, resp, http.StatusNoContent)

	var logs int64
	db.Model(&models.AuditLog{}).Where("entity_type = ?", "project").Count(&logs)
	assert.Equal(t, int64(3), logs)
}
