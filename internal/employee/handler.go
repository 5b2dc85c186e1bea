package employee

import (
	"fmt"
	"strings"

	"snd-backend/internal/assignment"
	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateEmployeeRequest struct {
	CompanyID              *uint   `json:"company_id"`
	DepartmentID           *uint   `json:"department_id"`
	UserID                 *uint   `json:"user_id"`
	FileNumber             string  `json:"file_number"`
	FirstName              string  `json:"first_name"`
	LastName               string  `json:"last_name"`
	Email                  string  `json:"email"`
	Phone                  string  `json:"phone"`
	Nationality            string  `json:"nationality"`
	IqamaNumber            string  `json:"iqama_number"`
	PassportNumber         string  `json:"passport_number"`
	Position               string  `json:"position"`
	HireDate               *string `json:"hire_date"`
	Status                 string  `json:"status"`
	BasicSalary            float64 `json:"basic_salary"`
	OvertimeRateMultiplier float64 `json:"overtime_rate_multiplier"`
	OvertimeFixedRate      float64 `json:"overtime_fixed_rate"`
	Notes                  string  `json:"notes"`
}

type UpdateEmployeeRequest struct {
	DepartmentID           *uint    `json:"department_id"`
	UserID                 *uint    `json:"user_id"`
	FileNumber             *string  `json:"file_number"`
	FirstName              *string  `json:"first_name"`
	LastName               *string  `json:"last_name"`
	Email                  *string  `json:"email"`
	Phone                  *string  `json:"phone"`
	Nationality            *string  `json:"nationality"`
	IqamaNumber            *string  `json:"iqama_number"`
	PassportNumber         *string  `json:"passport_number"`
	Position               *string  `json:"position"`
	HireDate               *string  `json:"hire_date"`
	Status                 *string  `json:"status"`
	LastWorkingDate        *string  `json:"last_working_date"`
	BasicSalary            *float64 `json:"basic_salary"`
	OvertimeRateMultiplier *float64 `json:"overtime_rate_multiplier"`
	OvertimeFixedRate      *float64 `json:"overtime_fixed_rate"`
	Notes                  *string  `json:"notes"`
}

type EmployeeResponse struct {
	ID                     uint                  `json:"id"`
	CompanyID              uint                  `json:"company_id"`
	DepartmentID           *uint                 `json:"department_id"`
	DepartmentName         string                `json:"department_name"`
	UserID                 *uint                 `json:"user_id"`
	FileNumber             string                `json:"file_number"`
	FirstName              string                `json:"first_name"`
	LastName               string                `json:"last_name"`
	FullName               string                `json:"full_name"`
	Email                  string                `json:"email"`
	Phone                  string                `json:"phone"`
	Nationality            string                `json:"nationality"`
	IqamaNumber            string                `json:"iqama_number"`
	PassportNumber         string                `json:"passport_number"`
	Position               string                `json:"position"`
	HireDate               *string               `json:"hire_date"`
	Status                 models.EmployeeStatus `json:"status"`
	LastWorkingDate        *string               `json:"last_working_date"`
	BasicSalary            float64               `json:"basic_salary"`
	OvertimeRateMultiplier float64               `json:"overtime_rate_multiplier"`
	OvertimeFixedRate      float64               `json:"overtime_fixed_rate"`
	Notes                  string                `json:"notes"`
	CreatedAt              string                `json:"created_at"`
	UpdatedAt              string                `json:"updated_at"`
}

type ListEmployeesResponse struct {
	Data  []EmployeeResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

func toResponse(e *models.Employee) EmployeeResponse {
	res := EmployeeResponse{
		ID:                     e.ID,
		CompanyID:              e.CompanyID,
		DepartmentID:           e.DepartmentID,
		UserID:                 e.UserID,
		FileNumber:             e.FileNumber,
		FirstName:              e.FirstName,
		LastName:               e.LastName,
		FullName:               e.FullName(),
		Email:                  e.Email,
		Phone:                  e.Phone,
		Nationality:            e.Nationality,
		IqamaNumber:            e.IqamaNumber,
		PassportNumber:         e.PassportNumber,
		Position:               e.Position,
		HireDate:               dateutil.FormatPtr(e.HireDate),
		Status:                 e.Status,
		LastWorkingDate:        dateutil.FormatPtr(e.LastWorkingDate),
		BasicSalary:            e.BasicSalary,
		OvertimeRateMultiplier: e.OvertimeRateMultiplier,
		OvertimeFixedRate:      e.OvertimeFixedRate,
		Notes:                  e.Notes,
		CreatedAt:              dateutil.FormatDateTime(e.CreatedAt),
		UpdatedAt:              dateutil.FormatDateTime(e.UpdatedAt),
	}
	if e.Department != nil {
		res.DepartmentName = e.Department.Name
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

// visible narrows the employees table to what the caller may read.
func visible(c *fiber.Ctx) (*gorm.DB, error) {
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return nil, err
	}
	q := database.DB.Model(&models.Employee{}).Scopes(scope)
	if id.SelfService() {
		q = q.Where("user_id = ?", id.UserID)
	}
	return q, nil
}

func checkDepartment(db *gorm.DB, companyID uint, departmentID *uint) error {
	if departmentID == nil {
		return nil
	}
	var n int64
	db.Model(&models.Department{}).Where("id = ? AND company_id = ?", *departmentID, companyID).Count(&n)
	if n == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Department not found")
	}
	return nil
}

func fileNumberTaken(db *gorm.DB, companyID uint, fileNumber string, exceptID uint) bool {
	var n int64
	db.Model(&models.Employee{}).
		Where("company_id = ? AND file_number = ? AND id <> ?", companyID, fileNumber, exceptID).
		Count(&n)
	return n > 0
}

// GET /api/employees?q=&status=&department_id=&page=&limit=
func ListEmployeesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := visible(c)
		if err != nil {
			return err
		}

		if s := strings.TrimSpace(c.Query("q")); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(file_number) LIKE ? OR LOWER(email) LIKE ?",
				like, like, like, like)
		}
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		if dep := c.QueryInt("department_id"); dep > 0 {
			q = q.Where("department_id = ?", dep)
		}

		page := c.QueryInt("page", 1)
		if page < 1 {
			page = 1
		}
		limit := c.QueryInt("limit", 25)
		if limit < 1 || limit > 200 {
			limit = 25
		}

		var total int64
		if err := q.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count employees")
		}

		var rows []models.Employee
		if err := q.Preload("Department").Order("file_number ASC, id ASC").
			Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list employees")
		}

		res := ListEmployeesResponse{Data: make([]EmployeeResponse, 0, len(rows)), Total: total, Page: page, Limit: limit}
		for i := range rows {
			res.Data = append(res.Data, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/employees/:id
func GetEmployeeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		q, err := visible(c)
		if err != nil {
			return err
		}
		var emp models.Employee
		if err := q.Preload("Department").First(&emp, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Employee not found")
		}
		return c.JSON(toResponse(&emp))
	}
}

// POST /api/employees
func CreateEmployeeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateEmployeeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}

		body.FileNumber = strings.TrimSpace(body.FileNumber)
		body.FirstName = strings.TrimSpace(body.FirstName)
		if body.FileNumber == "" || body.FirstName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "file_number and first_name are required")
		}
		status := models.EmployeeStatusActive
		if body.Status != "" {
			status = models.EmployeeStatus(body.Status)
			if !status.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid status")
			}
		}
		if body.BasicSalary < 0 || body.OvertimeFixedRate < 0 || body.OvertimeRateMultiplier < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Salary and overtime rates cannot be negative")
		}
		hireDate, err := dateutil.ParseOptional(body.HireDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := checkDepartment(database.DB, companyID, body.DepartmentID); err != nil {
			return err
		}
		if fileNumberTaken(database.DB, companyID, body.FileNumber, 0) {
			return fiber.NewError(fiber.StatusConflict, "File number already exists")
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		emp := models.Employee{
			CompanyID:              companyID,
			DepartmentID:           body.DepartmentID,
			UserID:                 body.UserID,
			FileNumber:             body.FileNumber,
			FirstName:              body.FirstName,
			LastName:               strings.TrimSpace(body.LastName),
			Email:                  strings.TrimSpace(body.Email),
			Phone:                  strings.TrimSpace(body.Phone),
			Nationality:            body.Nationality,
			IqamaNumber:            body.IqamaNumber,
			PassportNumber:         body.PassportNumber,
			Position:               body.Position,
			HireDate:               hireDate,
			Status:                 status,
			BasicSalary:            body.BasicSalary,
			OvertimeRateMultiplier: body.OvertimeRateMultiplier,
			OvertimeFixedRate:      body.OvertimeFixedRate,
			Notes:                  body.Notes,
		}

		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&emp).Error; err != nil {
				return err
			}
			return rec.Log(tx, companyID, "employee", emp.ID, models.AuditActionCreate,
				fmt.Sprintf("Employee %s (%s) created", emp.FullName(), emp.FileNumber), nil, emp)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create employee")
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(&emp))
	}
}

// PUT /api/employees/:id
//
// Terminating an employee with a last working date closes their open
// assignments on that day; reactivating them reopens those assignments.
func UpdateEmployeeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		emp, err := auth.LoadEmployee(c, database.DB, id)
		if err != nil {
			return err
		}
		before := *emp

		var body UpdateEmployeeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.FileNumber != nil {
			fn := strings.TrimSpace(*body.FileNumber)
			if fn == "" {
				return fiber.NewError(fiber.StatusBadRequest, "file_number cannot be empty")
			}
			if fileNumberTaken(database.DB, emp.CompanyID, fn, emp.ID) {
				return fiber.NewError(fiber.StatusConflict, "File number already exists")
			}
			emp.FileNumber = fn
		}
		if body.FirstName != nil {
			fn := strings.TrimSpace(*body.FirstName)
			if fn == "" {
				return fiber.NewError(fiber.StatusBadRequest, "first_name cannot be empty")
			}
			emp.FirstName = fn
		}
		if body.DepartmentID != nil {
			if err := checkDepartment(database.DB, emp.CompanyID, body.DepartmentID); err != nil {
				return err
			}
			emp.DepartmentID = body.DepartmentID
		}
		if body.UserID != nil {
			emp.UserID = body.UserID
		}
		setString(&emp.LastName, body.LastName)
		setString(&emp.Email, body.Email)
		setString(&emp.Phone, body.Phone)
		setString(&emp.Nationality, body.Nationality)
		setString(&emp.IqamaNumber, body.IqamaNumber)
		setString(&emp.PassportNumber, body.PassportNumber)
		setString(&emp.Position, body.Position)
		setString(&emp.Notes, body.Notes)
		if body.HireDate != nil {
			if emp.HireDate, err = dateutil.ParseOptional(body.HireDate); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if body.LastWorkingDate != nil {
			if emp.LastWorkingDate, err = dateutil.ParseOptional(body.LastWorkingDate); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if body.Status != nil {
			s := models.EmployeeStatus(*body.Status)
			if !s.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid status")
			}
			emp.Status = s
		}
		for _, v := range []*float64{body.BasicSalary, body.OvertimeRateMultiplier, body.OvertimeFixedRate} {
			if v != nil && *v < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Salary and overtime rates cannot be negative")
			}
		}
		if body.BasicSalary != nil {
			emp.BasicSalary = *body.BasicSalary
		}
		if body.OvertimeRateMultiplier != nil {
			emp.OvertimeRateMultiplier = *body.OvertimeRateMultiplier
		}
		if body.OvertimeFixedRate != nil {
			emp.OvertimeFixedRate = *body.OvertimeFixedRate
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Department").Save(emp).Error; err != nil {
				return err
			}
			if err := applyExit(tx, &before, emp); err != nil {
				return err
			}
			return rec.Log(tx, emp.CompanyID, "employee", emp.ID, models.AuditActionUpdate,
				fmt.Sprintf("Employee %s (%s) updated", emp.FullName(), emp.FileNumber), before, emp)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update employee")
		}

		database.DB.Preload("Department").First(emp, emp.ID)
		return c.JSON(toResponse(emp))
	}
}

func applyExit(tx *gorm.DB, before, after *models.Employee) error {
	wasOut := before.Status == models.EmployeeStatusTerminated && before.LastWorkingDate != nil
	isOut := after.Status == models.EmployeeStatusTerminated && after.LastWorkingDate != nil

	switch {
	case !wasOut && isOut:
		_, err := assignment.CompleteForExit(tx, after.ID, *after.LastWorkingDate)
		return err
	case wasOut && !isOut:
		_, err := assignment.RestoreAfterExit(tx, after.ID, *before.LastWorkingDate)
		return err
	case wasOut && isOut && !dateutil.SameDay(*before.LastWorkingDate, *after.LastWorkingDate):
		if _, err := assignment.RestoreAfterExit(tx, after.ID, *before.LastWorkingDate); err != nil {
			return err
		}
		_, err := assignment.CompleteForExit(tx, after.ID, *after.LastWorkingDate)
		return err
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// DELETE /api/employees/:id
func DeleteEmployeeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		emp, err := auth.LoadEmployee(c, database.DB, id)
		if err != nil {
			return err
		}

		var payrolls int64
		database.DB.Model(&models.Payroll{}).Where("employee_id = ?", emp.ID).Count(&payrolls)
		if payrolls > 0 {
			return fiber.NewError(fiber.StatusConflict, "Employee has payroll records; terminate instead of deleting")
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		err = database.Transaction(func(tx *gorm.DB) error {
			for _, m := range []any{&models.EmployeeAssignment{}, &models.EmployeeLeave{}, &models.Timesheet{}} {
				if err := tx.Where("employee_id = ?", emp.ID).Delete(m).Error; err != nil {
					return err
				}
			}
			if err := tx.Delete(emp).Error; err != nil {
				return err
			}
			return rec.Log(tx, emp.CompanyID, "employee", emp.ID, models.AuditActionDelete,
				fmt.Sprintf("Employee %s (%s) deleted", emp.FullName(), emp.FileNumber), emp, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete employee")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
