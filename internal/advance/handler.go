package advance

import (
	"strings"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateAdvanceRequest struct {
	EmployeeID       uint    `json:"employee_id"`
	Amount           float64 `json:"amount"`
	Reason           string  `json:"reason"`
	MonthlyDeduction float64 `json:"monthly_deduction"`
	Notes            string  `json:"notes"`
}

type RejectAdvanceRequest struct {
	Reason string `json:"reason"`
}

type RepaymentResponse struct {
	ID          uint    `json:"id"`
	PayrollID   *uint   `json:"payroll_id"`
	Amount      float64 `json:"amount"`
	PaymentDate string  `json:"payment_date"`
	Notes       string  `json:"notes"`
}

type AdvanceResponse struct {
	ID               uint                 `json:"id"`
	EmployeeID       uint                 `json:"employee_id"`
	EmployeeName     string               `json:"employee_name"`
	Amount           float64              `json:"amount"`
	Reason           string               `json:"reason"`
	Status           models.AdvanceStatus `json:"status"`
	MonthlyDeduction float64              `json:"monthly_deduction"`
	RepaidAmount     float64              `json:"repaid_amount"`
	Balance          float64              `json:"balance"`
	PaymentDate      *string              `json:"payment_date"`
	Notes            string               `json:"notes"`
	ApprovedAt       *string              `json:"approved_at"`
	RejectedAt       *string              `json:"rejected_at"`
	RejectionReason  string               `json:"rejection_reason"`
	Repayments       []RepaymentResponse  `json:"repayments,omitempty"`
	CreatedAt        string               `json:"created_at"`
}

func toResponse(a *models.AdvancePayment) AdvanceResponse {
	res := AdvanceResponse{
		ID:               a.ID,
		EmployeeID:       a.EmployeeID,
		Amount:           a.Amount,
		Reason:           a.Reason,
		Status:           a.Status,
		MonthlyDeduction: a.MonthlyDeduction,
		RepaidAmount:     a.RepaidAmount,
		Balance:          round2(a.Outstanding()),
		Notes:            a.Notes,
		ApprovedAt:       dateutil.FormatDateTimePtr(a.ApprovedAt),
		RejectedAt:       dateutil.FormatDateTimePtr(a.RejectedAt),
		RejectionReason:  a.RejectionReason,
		CreatedAt:        dateutil.FormatDateTime(a.CreatedAt),
	}
	if a.PaymentDate != nil {
		d := dateutil.Format(*a.PaymentDate)
		res.PaymentDate = &d
	}
	if a.Employee != nil {
		res.EmployeeName = a.Employee.FullName()
	}
	for _, r := range a.Repayments {
		res.Repayments = append(res.Repayments, RepaymentResponse{
			ID:          r.ID,
			PayrollID:   r.PayrollID,
			Amount:      r.Amount,
			PaymentDate: dateutil.Format(r.PaymentDate),
			Notes:       r.Notes,
		})
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

func repaymentsByDate(db *gorm.DB) *gorm.DB {
	return db.Order("payment_date ASC, id ASC")
}

func load(c *fiber.Ctx) (*models.AdvancePayment, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.EmployeeScope(c)
	if err != nil {
		return nil, err
	}
	var a models.AdvancePayment
	if err := database.DB.Scopes(scope).Preload("Employee").Preload("Repayments", repaymentsByDate).
		First(&a, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Advance not found")
	}
	return &a, nil
}

// GET /api/advances?status=&employee_id=
func ListAdvancesHandler() fiber.Handler {
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
			eid, ok := auth.ParseID(s)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid employee_id")
			}
			q = q.Where("employee_id = ?", eid)
		}

		var rows []models.AdvancePayment
		if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list advances")
		}
		res := make([]AdvanceResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/advances/:id
func GetAdvanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := load(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(a))
	}
}

// POST /api/advances
//
// Self-service users may only request advances for their own employee record.
func CreateAdvanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateAdvanceRequest
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
			return fiber.NewError(fiber.StatusForbidden, "You can only request advances for yourself")
		}

		a, err := Create(database.DB, CreateInput{
			EmployeeID:       emp.ID,
			Amount:           body.Amount,
			Reason:           strings.TrimSpace(body.Reason),
			MonthlyDeduction: body.MonthlyDeduction,
			Notes:            strings.TrimSpace(body.Notes),
		})
		if err != nil {
			return err
		}
		a.Employee = emp
		return c.Status(fiber.StatusCreated).JSON(toResponse(a))
	}
}

// POST /api/advances/:id/approve
func ApproveAdvanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := load(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		approved, err := Approve(database.DB, a.ID, id.UserID)
		if err != nil {
			return err
		}
		approved.Employee = a.Employee
		return c.JSON(toResponse(approved))
	}
}

// POST /api/advances/:id/reject
func RejectAdvanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := load(c)
		if err != nil {
			return err
		}
		var body RejectAdvanceRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
			}
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		rejected, err := Reject(database.DB, a.ID, id.UserID, strings.TrimSpace(body.Reason))
		if err != nil {
			return err
		}
		rejected.Employee = a.Employee
		return c.JSON(toResponse(rejected))
	}
}

// DELETE /api/advances/:id
func DeleteAdvanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := load(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		if id.SelfService() && a.Status != models.AdvanceStatusPending {
			return fiber.NewError(fiber.StatusForbidden, "Only pending requests can be withdrawn")
		}
		if err := Delete(database.DB, a); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
