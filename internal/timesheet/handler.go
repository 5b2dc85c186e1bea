package timesheet

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxHoursPerDay = 24

type CreateTimesheetRequest struct {
	EmployeeID    uint    `json:"employee_id"`
	Date          string  `json:"date"`
	HoursWorked   float64 `json:"hours_worked"`
	OvertimeHours float64 `json:"overtime_hours"`
	ProjectID     *uint   `json:"project_id"`
	RentalID      *uint   `json:"rental_id"`
	Description   string  `json:"description"`
}

type TimesheetResponse struct {
	ID            uint                   `json:"id"`
	EmployeeID    uint                   `json:"employee_id"`
	EmployeeName  string                 `json:"employee_name"`
	Date          string                 `json:"date"`
	HoursWorked   float64                `json:"hours_worked"`
	OvertimeHours float64                `json:"overtime_hours"`
	ProjectID     *uint                  `json:"project_id"`
	RentalID      *uint                  `json:"rental_id"`
	Description   string                 `json:"description"`
	Status        models.TimesheetStatus `json:"status"`
	ApprovedAt    *string                `json:"approved_at"`
}

func toResponse(ts *models.Timesheet) TimesheetResponse {
	res := TimesheetResponse{
		ID:            ts.ID,
		EmployeeID:    ts.EmployeeID,
		Date:          dateutil.Format(ts.Date),
		HoursWorked:   ts.HoursWorked,
		OvertimeHours: ts.OvertimeHours,
		ProjectID:     ts.ProjectID,
		RentalID:      ts.RentalID,
		Description:   ts.Description,
		Status:        ts.Status,
		ApprovedAt:    dateutil.FormatDateTimePtr(ts.ApprovedAt),
	}
	if ts.Employee != nil {
		res.EmployeeName = ts.Employee.FullName()
	}
	return res
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

func load(c *fiber.Ctx) (*models.Timesheet, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.EmployeeScope(c)
	if err != nil {
		return nil, err
	}
	var ts models.Timesheet
	if err := database.DB.Scopes(scope).Preload("Employee").First(&ts, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Timesheet not found")
	}
	return &ts, nil
}

// GET /api/timesheets?employee_id=&status=&from=&to=
func ListTimesheetsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.EmployeeScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope).Preload("Employee")
		if s := c.Query("employee_id"); s != "" {
			q = q.Where("employee_id = ?", s)
		}
		if s := c.Query("status"); s != "" {
			q = q.Where("status = ?", s)
		}

		var from, to *time.Time
		if s := c.Query("from"); s != "" {
			d, err := dateutil.Parse(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			from = &d
		}
		if s := c.Query("to"); s != "" {
			d, err := dateutil.Parse(s)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			to = &d
		}

		var rows []models.Timesheet
		if err := q.Order("date DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list timesheets")
		}
		res := make([]TimesheetResponse, 0, len(rows))
		for i := range rows {
			d := dateutil.Day(rows[i].Date)
			if (from != nil && d.Before(*from)) || (to != nil && d.After(*to)) {
				continue
			}
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/timesheets
func CreateTimesheetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTimesheetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.EmployeeID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "employee_id is required")
		}
		emp, err := auth.LoadEmployee(c, database.DB, body.EmployeeID)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		if id.SelfService() && (emp.UserID == nil || *emp.UserID != id.UserID) {
			return fiber.NewError(fiber.StatusForbidden, "You can only submit your own timesheets")
		}

		date, err := dateutil.Parse(body.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.HoursWorked < 0 || body.OvertimeHours < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Hours cannot be negative")
		}
		if body.HoursWorked+body.OvertimeHours > maxHoursPerDay {
			return fiber.NewError(fiber.StatusBadRequest, "A day has at most 24 hours")
		}

		var existing []models.Timesheet
		if err := database.DB.Where("employee_id = ?", emp.ID).Find(&existing).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not check timesheets")
		}
		for _, ts := range existing {
			if dateutil.SameDay(ts.Date, date) {
				return fiber.NewError(fiber.StatusConflict, "A timesheet already exists for this date")
			}
		}

		ts := models.Timesheet{
			EmployeeID:    emp.ID,
			Date:          date,
			HoursWorked:   body.HoursWorked,
			OvertimeHours: body.OvertimeHours,
			ProjectID:     body.ProjectID,
			RentalID:      body.RentalID,
			Description:   strings.TrimSpace(body.Description),
			Status:        models.TimesheetStatusPending,
		}
		if err := database.DB.Create(&ts).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "A timesheet already exists for this date")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create timesheet")
		}
		ts.Employee = emp
		return c.Status(fiber.StatusCreated).JSON(toResponse(&ts))
	}
}

func decide(status models.TimesheetStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ts, err := load(c)
		if err != nil {
			return err
		}
		if ts.Status != models.TimesheetStatusPending {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("Timesheet is already %s", ts.Status))
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		updates := map[string]any{"status": status}
		ts.Status = status
		if status == models.TimesheetStatusApproved {
			now := time.Now()
			updates["approved_by_id"] = id.UserID
			updates["approved_at"] = now
			ts.ApprovedByID = &id.UserID
			ts.ApprovedAt = &now
		}
		if err := database.DB.Model(&models.Timesheet{}).Where("id = ?", ts.ID).Updates(updates).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update timesheet")
		}
		return c.JSON(toResponse(ts))
	}
}

// POST /api/timesheets/:id/approve
func ApproveTimesheetHandler() fiber.Handler {
	return decide(models.TimesheetStatusApproved)
}

// POST /api/timesheets/:id/reject
func RejectTimesheetHandler() fiber.Handler {
	return decide(models.TimesheetStatusRejected)
}

// DELETE /api/timesheets/:id
func DeleteTimesheetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ts, err := load(c)
		if err != nil {
			return err
		}
		if ts.Status == models.TimesheetStatusApproved {
			return fiber.NewError(fiber.StatusConflict, "Approved timesheets cannot be deleted")
		}
		if err := database.DB.Delete(&models.Timesheet{}, ts.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete timesheet")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
