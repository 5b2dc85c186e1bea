package employee

import (
	"fmt"
	"strings"

	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DepartmentRequest struct {
	CompanyID   *uint   `json:"company_id"`
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type DepartmentResponse struct {
	ID            uint   `json:"id"`
	CompanyID     uint   `json:"company_id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	Description   string `json:"description"`
	IsActive      bool   `json:"is_active"`
	EmployeeCount int64  `json:"employee_count"`
	CreatedAt     string `json:"created_at"`
}

func toDepartmentResponse(d *models.Department, employees int64) DepartmentResponse {
	return DepartmentResponse{
		ID:            d.ID,
		CompanyID:     d.CompanyID,
		Name:          d.Name,
		Code:          d.Code,
		Description:   d.Description,
		IsActive:      d.IsActive,
		EmployeeCount: employees,
		CreatedAt:     dateutil.FormatDateTime(d.CreatedAt),
	}
}

func loadDepartment(c *fiber.Ctx) (*models.Department, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var d models.Department
	if err := database.DB.Scopes(scope).First(&d, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Department not found")
	}
	return &d, nil
}

func departmentNameTaken(companyID uint, name string, exceptID uint) bool {
	var n int64
	database.DB.Model(&models.Department{}).
		Where("company_id = ? AND LOWER(name) = ? AND id <> ?", companyID, strings.ToLower(name), exceptID).
		Count(&n)
	return n > 0
}

// GET /api/departments
func ListDepartmentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		var rows []models.Department
		if err := database.DB.Scopes(scope).Order("name ASC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list departments")
		}

		type countRow struct {
			DepartmentID uint
			Total        int64
		}
		var counts []countRow
		database.DB.Model(&models.Employee{}).Select("department_id, COUNT(*) AS total").
			Where("department_id IS NOT NULL").Group("department_id").Scan(&counts)
		byDept := make(map[uint]int64, len(counts))
		for _, r := range counts {
			byDept[r.DepartmentID] = r.Total
		}

		res := make([]DepartmentResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toDepartmentResponse(&rows[i], byDept[rows[i].ID]))
		}
		return c.JSON(res)
	}
}

// POST /api/departments
func CreateDepartmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body DepartmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}
		if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Department name is required")
		}
		name := strings.TrimSpace(*body.Name)
		if departmentNameTaken(companyID, name, 0) {
			return fiber.NewError(fiber.StatusConflict, "Department already exists")
		}

		d := models.Department{CompanyID: companyID, Name: name, IsActive: true}
		setString(&d.Code, body.Code)
		setString(&d.Description, body.Description)
		if body.IsActive != nil {
			d.IsActive = *body.IsActive
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&d).Error; err != nil {
				return err
			}
			return rec.Log(tx, companyID, "department", d.ID, models.AuditActionCreate,
				fmt.Sprintf("Department %s created", d.Name), nil, d)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create department")
		}
		return c.Status(fiber.StatusCreated).JSON(toDepartmentResponse(&d, 0))
	}
}

// PUT /api/departments/:id
func UpdateDepartmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := loadDepartment(c)
		if err != nil {
			return err
		}
		before := *d

		var body DepartmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Department name cannot be empty")
			}
			if departmentNameTaken(d.CompanyID, name, d.ID) {
				return fiber.NewError(fiber.StatusConflict, "Department already exists")
			}
			d.Name = name
		}
		setString(&d.Code, body.Code)
		setString(&d.Description, body.Description)
		if body.IsActive != nil {
			d.IsActive = *body.IsActive
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(d).Error; err != nil {
				return err
			}
			return rec.Log(tx, d.CompanyID, "department", d.ID, models.AuditActionUpdate,
				fmt.Sprintf("Department %s updated", d.Name), before, d)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update department")
		}
		return c.JSON(toDepartmentResponse(d, 0))
	}
}

// DELETE /api/departments/:id
func DeleteDepartmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := loadDepartment(c)
		if err != nil {
			return err
		}

		var n int64
		database.DB.Model(&models.Employee{}).Where("department_id = ?", d.ID).Count(&n)
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("Department has %d employees", n))
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(d).Error; err != nil {
				return err
			}
			return rec.Log(tx, d.CompanyID, "department", d.ID, models.AuditActionDelete,
				fmt.Sprintf("Department %s deleted", d.Name), d, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete department")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
