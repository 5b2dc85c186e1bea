package leave

import (
	"fmt"
	"net/http"
	"testing"

	"snd-backend/internal/apperror"
	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func linkUser(t *testing.T, db *gorm.DB, emp *models.Employee, user *models.User) {
	t.Helper()
	require.NoError(t, db.Model(emp).Update("user_id", user.ID).Error)
	emp.UserID = &user.ID
}

func TestCreate(t *testing.T) {
	db := testutil.SetupDB(t)
	company := testutil.CreateCompany(t, db, "SND")
	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Omar")

	l, err := Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeSick,
		StartDate: testutil.Date(2025, 3, 1), EndDate: testutil.Date(2025, 3, 3)})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Days)
	assert.Equal(t, models.LeaveStatusPending, l.Status)

	_, err = Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeAnnual,
		StartDate: testutil.Date(2025, 3, 3), EndDate: testutil.Date(2025, 3, 10)})
	assert.Equal(t, apperror.CodeConflict, apperror.GetCode(err))

	_, err = Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeAnnual,
		StartDate: testutil.Date(2025, 4, 10), EndDate: testutil.Date(2025, 4, 1)})
	assert.Equal(t, apperror.CodeValidation, apperror.GetCode(err))

	_, err = Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: "sabbatical",
		StartDate: testutil.Date(2025, 4, 1), EndDate: testutil.Date(2025, 4, 1)})
	assert.Equal(t, apperror.CodeValidation, apperror.GetCode(err))

	l, err = Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeUnpaid, Days: 2,
		StartDate: testutil.Date(2025, 3, 4), EndDate: testutil.Date(2025, 3, 7)})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Days)
}

func TestApproveVacationClosesAssignments(t *testing.T) {
	db := testutil.SetupDB(t)
	company := testutil.CreateCompany(t, db, "SND")
	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Omar")
	user := testutil.CreateUser(t, db, &company.ID, models.RoleEmployee, "omar@snd.test")
	linkUser(t, db, emp, user)
	manager := testutil.CreateUser(t, db, &company.ID, models.RoleManager, "m@snd.test")

	a := models.EmployeeAssignment{EmployeeID: emp.ID, Type: models.AssignmentTypeManual, Name: "Yard",
		StartDate: testutil.Date(2025, 1, 1), Status: models.AssignmentStatusActive}
	require.NoError(t, db.Create(&a).Error)

	l, err := Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeVacation,
		StartDate: testutil.Date(2025, 6, 1), EndDate: testutil.Date(2025, 6, 30)})
	require.NoError(t, err)

	approved, err := Approve(db, l.ID, manager.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, approved.Status)
	assert.Equal(t, manager.ID, *approved.ApprovedByID)

	require.NoError(t, db.First(&a, a.ID).Error)
	assert.Equal(t, models.AssignmentStatusCompleted, a.Status)
	assert.True(t, a.EndDate.Equal(testutil.Date(2025, 5, 31)))

	var notes []models.Notification
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationSuccess, notes[0].Type)

	_, err = Approve(db, l.ID, manager.ID)
	assert.Equal(t, apperror.CodeConflict, apperror.GetCode(err))

	require.NoError(t, Delete(db, approved))
	require.NoError(t, db.First(&a, a.ID).Error)
	assert.Equal(t, models.AssignmentStatusActive, a.Status)
	assert.Nil(t, a.EndDate)
}

func TestApproveSickLeaveKeepsAssignments(t *testing.T) {
	db := testutil.SetupDB(t)
	company := testutil.CreateCompany(t, db, "SND")
	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Omar")
	a := models.EmployeeAssignment{EmployeeID: emp.ID, Type: models.AssignmentTypeManual, Name: "Yard",
		StartDate: testutil.Date(2025, 1, 1), Status: models.AssignmentStatusActive}
	require.NoError(t, db.Create(&a).Error)

	l, err := Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeSick,
		StartDate: testutil.Date(2025, 2, 1), EndDate: testutil.Date(2025, 2, 2)})
	require.NoError(t, err)
	_, err = Approve(db, l.ID, 1)
	require.NoError(t, err)

	require.NoError(t, db.First(&a, a.ID).Error)
	assert.Equal(t, models.AssignmentStatusActive, a.Status)
}

func TestReject(t *testing.T) {
	db := testutil.SetupDB(t)
	company := testutil.CreateCompany(t, db, "SND")
	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Omar")
	user := testutil.CreateUser(t, db, &company.ID, models.RoleEmployee, "omar@snd.test")
	linkUser(t, db, emp, user)

	l, err := Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeAnnual,
		StartDate: testutil.Date(2025, 8, 1), EndDate: testutil.Date(2025, 8, 14)})
	require.NoError(t, err)

	rejected, err := Reject(db, l.ID, 1, "Peak season")
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusRejected, rejected.Status)

	var n models.Notification
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&n).Error)
	assert.Equal(t, models.NotificationWarning, n.Type)
	assert.Contains(t, n.Message, "Peak season")

	_, err = Reject(db, l.ID, 1, "")
	assert.Equal(t, apperror.CodeConflict, apperror.GetCode(err))

	// Rejected requests no longer block the dates.
	_, err = Create(db, CreateInput{EmployeeID: emp.ID, LeaveType: models.LeaveTypeAnnual,
		StartDate: testutil.Date(2025, 8, 1), EndDate: testutil.Date(2025, 8, 7)})
	assert.NoError(t, err)
}

func TestLeaveHandlers(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	company := testutil.CreateCompany(t, db, "SND")
	omar := testutil.CreateEmployee(t, db, company.ID, "E-1", "Omar")
	sara := testutil.CreateEmployee(t, db, company.ID, "E-2", "Sara")
	omarUser := testutil.CreateUser(t, db, &company.ID, models.RoleEmployee, "omar@snd.test")
	linkUser(t, db, omar, omarUser)

	app := testutil.NewApp()
	api := testutil.Protected(app, cfg)
	api.Get("/leave-requests", ListLeavesHandler())
	api.Post("/leave-requests", CreateLeaveHandler())
	api.Get("/leave-requests/:id", GetLeaveHandler())
	api.Delete("/leave-requests/:id", DeleteLeaveHandler())
	api.Post("/leave-requests/:id/approve", ApproveLeaveHandler())
	api.Post("/leave-requests/:id/reject", RejectLeaveHandler())

	self := testutil.Token(t, cfg, omarUser)
	manager := testutil.Token(t, cfg, testutil.CreateUser(t, db, &company.ID, models.RoleManager, "m@snd.test"))

	resp := testutil.Do(t, app, http.MethodPost, "/api/leave-requests", self, CreateLeaveRequest{
		EmployeeID: sara.ID, LeaveType: "annual", StartDate: "2025-05-01", EndDate: "2025-05-05",
	})
	testutil.RequireStatus(t, resp, http.StatusForbidden)

	resp = testutil.Do(t, app, http.MethodPost, "/api/leave-requests", self, CreateLeaveRequest{
		EmployeeID: omar.ID, LeaveType: "annual", StartDate: "2025-05-01", EndDate: "2025-05-05",
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var l LeaveResponse
	testutil.Decode(t, resp, &l)
	assert.Equal(t, 5, l.Days)
	assert.Equal(t, "Omar Test", l.EmployeeName)

	resp = testutil.Do(t, app, http.MethodPost, "/api/leave-requests", manager, CreateLeaveRequest{
		EmployeeID: sara.ID, LeaveType: "sick", StartDate: "2025-05-02", EndDate: "2025-05-02",
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)

	resp = testutil.Do(t, app, http.MethodGet, "/api/leave-requests", self, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var list []LeaveResponse
	testutil.Decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, omar.ID, list[0].EmployeeID)

	resp = testutil.Do(t, app, http.MethodGet, "/api/leave-requests?status=pending", manager, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &list)
	assert.Len(t, list, 2)

	path := fmt.Sprintf("/api/leave-requests/%d", l.ID)
	resp = testutil.Do(t, app, http.MethodPost, path+"/approve", manager, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &l)
	assert.Equal(t, models.LeaveStatusApproved, l.Status)
	assert.NotNil(t, l.ApprovedAt)

	resp = testutil.Do(t, app, http.MethodPost, path+"/reject", manager, RejectLeaveRequest{Reason: "late"})
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, app, http.MethodDelete, path, self, nil)
	testutil.RequireStatus(t, resp, http.StatusForbidden)

	resp = testutil.Do(t, app, http.MethodDelete, path, manager, nil)
	testutil.RequireStatus(t, resp, http.StatusNoContent)

	resp = testutil.Do(t, app, http.MethodGet, path, manager, nil)
	testutil.RequireStatus(t, resp, http.StatusNotFound)
}
