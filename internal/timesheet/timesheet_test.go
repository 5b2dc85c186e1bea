package timesheet

import (
	"fmt"
	"net/http"
	"testing"

	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimesheetHandlers(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")
	other := testutil.CreateCompany(t, db, "Other")
	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Hassan")
	foreign := testutil.CreateEmployee(t, db, other.ID, "E-1", "Foreign")

	app := testutil.NewApp()
	api := testutil.Protected(app, cfg)
	api.Get("/timesheets", ListTimesheetsHandler())
	api.Post("/timesheets", CreateTimesheetHandler())
	api.Post("/timesheets/:id/approve", ApproveTimesheetHandler())
	api.Post("/timesheets/:id/reject", RejectTimesheetHandler())
	api.Delete("/timesheets/:id", DeleteTimesheetHandler())

	token := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleSupervisor, "s@snd.test"))

	resp := testutil.Do(t, app, http.MethodPost, "/api/timesheets", token, CreateTimesheetRequest{
		EmployeeID: foreign.ID, Date: "2025-03-01", HoursWorked: 8,
	})
	testutil.RequireStatus(t, resp, http.StatusNotFound)

	resp = testutil.Do(t, app, http.MethodPost, "/api/timesheets", token, CreateTimesheetRequest{
		EmployeeID: emp.ID, Date: "2025-03-01", HoursWorked: 20, OvertimeHours: 5,
	})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	var ids []uint
	for _, d := range []string{"2025-03-01", "2025-03-02", "2025-04-01"} {
		resp = testutil.Do(t, app, http.MethodPost, "/api/timesheets", token, CreateTimesheetRequest{
			EmployeeID: emp.ID, Date: d, HoursWorked: 8, OvertimeHours: 2,
		})
		testutil.RequireStatus(t, resp, http.StatusCreated)
		var ts TimesheetResponse
		testutil.Decode(t, resp, &ts)
		ids = append(ids, ts.ID)
	}

	resp = testutil.Do(t, app, http.MethodPost, "/api/timesheets", token, CreateTimesheetRequest{
		EmployeeID: emp.ID, Date: "2025-03-01", HoursWorked: 4,
	})
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, app, http.MethodGet, "/api/timesheets?from=2025-03-01&to=2025-03-31", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var list []TimesheetResponse
	testutil.Decode(t, resp, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-03-02", list[0].Date)
	assert.Equal(t, "Hassan Test", list[0].EmployeeName)

	resp = testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/api/timesheets/%d/approve", ids[0]), token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var ts TimesheetResponse
	testutil.Decode(t, resp, &ts)
	assert.Equal(t, models.TimesheetStatusApproved, ts.Status)
	assert.NotNil(t, ts.ApprovedAt)

	resp = testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/api/timesheets/%d/reject", ids[0]), token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/timesheets/%d", ids[0]), token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/api/timesheets/%d/reject", ids[1]), token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	resp = testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/timesheets/%d", ids[1]), token, nil)
	testutil.RequireStatus(t, resp, http.StatusNoContent)

	resp = testutil.Do(t, app, http.MethodGet, "/api/timesheets?status=approved", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestSelfServiceTimesheets(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")
	own := testutil.CreateEmployee(t, db, company.ID, "E-1", "Own")
	colleague := testutil.CreateEmployee(t, db, company.ID, "E-2", "Colleague")
	user := testutil.CreateUser(t, db, &company.ID, models.RoleOperator, "op@snd.test")
	require.NoError(t, db.Model(own).Update("user_id", user.ID).Error)
	require.NoError(t, db.Create(&models.Timesheet{EmployeeID: colleague.ID, Date: testutil.Date(2025, 1, 1),
		HoursWorked: 8, Status: models.TimesheetStatusPending}).Error)

	app := testutil.NewApp()
	api := testutil.Protected(app, cfg)
	api.Get("/timesheets", ListTimesheetsHandler())
	api.Post("/timesheets", CreateTimesheetHandler())

	token := testutil.Token(t, cfg, user)
	resp := testutil.Do(t, app, http.MethodPost, "/api/timesheets", token, CreateTimesheetRequest{
		EmployeeID: colleague.ID, Date: "2025-01-02", HoursWorked: 8,
	})
	testutil.RequireStatus(t, resp, http.StatusForbidden)

	resp = testutil.Do(t, app, http.MethodPost, "/api/timesheets", token, CreateTimesheetRequest{
		EmployeeID: own.ID, Date: "2025-01-02", HoursWorked: 8,
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)

	resp = testutil.Do(t, app, http.MethodGet, "/api/timesheets", token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var list []TimesheetResponse
	testutil.Decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, own.ID, list[0].EmployeeID)
}
