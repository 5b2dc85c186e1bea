package payroll

import (
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GenerateRequest struct {
	CompanyID   *uint  `json:"company_id"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	EmployeeIDs []uint `json:"employee_ids"`
	// employee id -> bonus amount
	Bonuses map[uint]float64 `json:"bonuses"`
}

type ItemResponse struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	IsTaxable   bool    `json:"is_taxable"`
}

type PayrollResponse struct {
	ID              uint                 `json:"id"`
	EmployeeID      uint                 `json:"employee_id"`
	EmployeeName    string               `json:"employee_name"`
	FileNumber      string               `json:"file_number"`
	Month           int                  `json:"month"`
	Year            int                  `json:"year"`
	BaseSalary      float64              `json:"base_salary"`
	TotalHours      float64              `json:"total_hours"`
	OvertimeHours   float64              `json:"overtime_hours"`
	OvertimeAmount  float64              `json:"overtime_amount"`
	BonusAmount     float64              `json:"bonus_amount"`
	DeductionAmount float64              `json:"deduction_amount"`
	FinalAmount     float64              `json:"final_amount"`
	Currency        string               `json:"currency"`
	Status          models.PayrollStatus `json:"status"`
	Notes           string               `json:"notes"`
	ApprovedAt      *string              `json:"approved_at"`
	PaidAt          *string              `json:"paid_at"`
	Items           []ItemResponse       `json:"items,omitempty"`
}

func toResponse(p *models.Payroll) PayrollResponse {
	res := PayrollResponse{
		ID:              p.ID,
		EmployeeID:      p.EmployeeID,
		Month:           p.Month,
		Year:            p.Year,
		BaseSalary:      p.BaseSalary,
		TotalHours:      p.TotalHours,
		OvertimeHours:   p.OvertimeHours,
		OvertimeAmount:  p.OvertimeAmount,
		BonusAmount:     p.BonusAmount,
		DeductionAmount: p.DeductionAmount,
		FinalAmount:     p.FinalAmount,
		Currency:        p.Currency,
		Status:          p.Status,
		Notes:           p.Notes,
		ApprovedAt:      dateutil.FormatDateTimePtr(p.ApprovedAt),
		PaidAt:          dateutil.FormatDateTimePtr(p.PaidAt),
	}
	if p.Employee != nil {
		res.EmployeeName = p.Employee.FullName()
		res.FileNumber = p.Employee.FileNumber
	}
	for _, it := range p.Items {
		res.Items = append(res.Items, ItemResponse{
			Type:        it.Type,
			Description: it.Description,
			Amount:      it.Amount,
			IsTaxable:   it.IsTaxable,
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

func itemsByOrder(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC, id ASC")
}

// scoped filters payrolls to the caller and the month/year/status/employee_id query.
func scoped(c *fiber.Ctx) (*gorm.DB, error) {
	scope, err := auth.EmployeeScope(c)
	if err != nil {
		return nil, err
	}
	q := database.DB.Scopes(scope)
	for _, key := range []string{"month", "year", "status", "employee_id"} {
		if v := c.Query(key); v != "" {
			q = q.Where(key+" = ?", v)
		}
	}
	return q, nil
}

// POST /api/payroll/generate-monthly
func GenerateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body GenerateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		res, err := Generate(c.UserContext(), database.DB, GenerateInput{
			CompanyID:   companyID,
			Month:       body.Month,
			Year:        body.Year,
			EmployeeIDs: body.EmployeeIDs,
			Bonuses:     body.Bonuses,
			RunByID:     &id.UserID,
		})
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// GET /api/payroll?month=&year=&status=&employee_id=
func ListPayrollsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := scoped(c)
		if err != nil {
			return err
		}
		var rows []models.Payroll
		if err := q.Preload("Employee").Order("year DESC, month DESC, employee_id ASC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list payrolls")
		}
		res := make([]PayrollResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

func load(c *fiber.Ctx) (*models.Payroll, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.EmployeeScope(c)
	if err != nil {
		return nil, err
	}
	var p models.Payroll
	if err := database.DB.Scopes(scope).Preload("Employee").Preload("Items", itemsByOrder).
		First(&p, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Payroll not found")
	}
	return &p, nil
}

// GET /api/payroll/:id
func GetPayrollHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// POST /api/payroll/:id/approve
func ApprovePayrollHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		approved, err := Approve(database.DB, p.ID, id.UserID)
		if err != nil {
			return err
		}
		approved.Employee = p.Employee
		approved.Items = p.Items
		return c.JSON(toResponse(approved))
	}
}

// POST /api/payroll/:id/pay
func PayPayrollHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}
		paid, err := Pay(database.DB, p.ID)
		if err != nil {
			return err
		}
		paid.Employee = p.Employee
		paid.Items = p.Items
		return c.JSON(toResponse(paid))
	}
}
