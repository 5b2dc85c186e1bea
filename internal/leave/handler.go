package leave

import (
	"strings"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateLeaveRequest struct {
	EmployeeID uint   `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Days       int    `json:"days"`
	Reason     string `json:"reason"`
}

type RejectLeaveRequest struct {
	Reason string `json:"reason"`
}

type LeaveResponse struct {
	ID              uint               `json:"id"`
	EmployeeID      uint               `json:"employee_id"`
	EmployeeName    string             `json:"employee_name"`
	LeaveType       models.LeaveType   `json:"leave_type"`
	StartDate       string             `json:"start_date"`
	EndDate         string             `json:"end_date"`
	Days            int                `json:"days"`
	Reason          string             `json:"reason"`
	Status          models.LeaveStatus `json:"status"`
	ApprovedAt      *string            `json:"approved_at"`
	RejectedAt      *string            `json:"rejected_at"`
	RejectionReason string             `json:"rejection_reason"`
	CreatedAt       string             `json:"created_at"`
}

func toResponse(l *models.EmployeeLeave) LeaveResponse {
	res := LeaveResponse{
		ID:              l.ID,
		EmployeeID:      l.EmployeeID,
		LeaveType:       l.LeaveType,
		StartDate:       dateutil.Format(l.StartDate),
		EndDate:         dateutil.Format(l.EndDate),
		Days:            l.Days,
		Reason:          l.Reason,
		Status:          l.Status,
		ApprovedAt:      dateutil.FormatDateTimePtr(l.ApprovedAt),
		RejectedAt:      dateutil.FormatDateTimePtr(l.RejectedAt),
		RejectionReason: l.RejectionReason,
		CreatedAt:       dateutil.FormatDateTime(l.CreatedAt),
	}
	if l.Employee != nil {
		res.EmployeeName = l.Employee.FullName()
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

func load(c *fiber.Ctx) (*models.EmployeeLeave, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.EmployeeScope(c)
	if err != nil {
		return nil, err
	}
	var l models.EmployeeLeave
	if err := database.DB.Scopes(scope).Preload("Employee").First(&l, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Leave request not found")
	}
	return &l, nil
}

// GET /api/leave-requests?status=&employee_id=
func ListLeavesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.EmployeeScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope).Preload("Employee")
		if s := c.Query("status"); s != "" {
			q = q.Where("status = ?", s)
		}
		if s := c.Query("employee_id"); s != "" {
			q = q.Where("employee_id = ?", s)
		}

		var rows []models.EmployeeLeave
		if err := q.Order("start_date DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list leave requests")
		}
		res := make([]LeaveResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/leave-requests/:id
func GetLeaveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l, err := load(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(l))
	}
}

// POST /api/leave-requests
//
// Self-service users may only file requests for their own employee record.
func CreateLeaveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateLeaveRequest
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
			return fiber.NewError(fiber.StatusForbidden, "You can only request leave for yourself")
		}

		start, err := dateutil.Parse(body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		end, err := dateutil.Parse(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		l, err := Create(database.DB, CreateInput{
			EmployeeID: emp.ID,
			LeaveType:  models.LeaveType(body.LeaveType),
			StartDate:  start,
			EndDate:    end,
			Days:       body.Days,
			Reason:     strings.TrimSpace(body.Reason),
		})
		if err != nil {
			return err
		}
		l.Employee = emp
		return c.Status(fiber.StatusCreated).JSON(toResponse(l))
	}
}

// POST /api/leave-requests/:id/approve
func ApproveLeaveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l, err := load(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		approved, err := Approve(database.DB, l.ID, id.UserID)
		if err != nil {
			return err
		}
		approved.Employee = l.Employee
		return c.JSON(toResponse(approved))
	}
}

// POST /api/leave-requests/:id/reject
func RejectLeaveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l, err := load(c)
		if err != nil {
			return err
		}
		var body RejectLeaveRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
			}
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		rejected, err := Reject(database.DB, l.ID, id.UserID, strings.TrimSpace(body.Reason))
		if err != nil {
			return err
		}
		rejected.Employee = l.Employee
		return c.JSON(toResponse(rejected))
	}
}

// DELETE /api/leave-requests/:id
//
// Self-service users may only withdraw their own pending requests.
func DeleteLeaveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l, err := load(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		if id.SelfService() && l.Status != models.LeaveStatusPending {
			return fiber.NewError(fiber.StatusForbidden, "Only pending requests can be withdrawn")
		}
		if err := Delete(database.DB, l); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete leave request")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
