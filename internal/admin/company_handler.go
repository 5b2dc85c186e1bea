// Package admin manages tenants, user accounts, roles and permissions.
package admin

import (
	"strings"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
	"snd-backend/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CompanyResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	TaxNumber string `json:"tax_number"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type CompanyRequest struct {
	Name      *string `json:"name"`
	Code      *string `json:"code"`
	Address   *string `json:"address"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	TaxNumber *string `json:"tax_number"`
	IsActive  *bool   `json:"is_active"`
}

type CreateCompanyAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func toCompanyResponse(co *models.Company) CompanyResponse {
	return CompanyResponse{
		ID:        co.ID,
		Name:      co.Name,
		Code:      co.Code,
		Address:   co.Address,
		Phone:     co.Phone,
		Email:     co.Email,
		TaxNumber: co.TaxNumber,
		IsActive:  co.IsActive,
		CreatedAt: dateutil.FormatDateTime(co.CreatedAt),
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func applyCompany(co *models.Company, body *CompanyRequest) error {
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Company name cannot be empty")
		}
		co.Name = name
	}
	setString(&co.Code, body.Code)
	setString(&co.Address, body.Address)
	setString(&co.Phone, body.Phone)
	setString(&co.TaxNumber, body.TaxNumber)
	if body.Email != nil {
		co.Email = auth.NormalizeEmail(*body.Email)
	}
	if body.IsActive != nil {
		co.IsActive = *body.IsActive
	}
	return nil
}

func companyNameTaken(db *gorm.DB, name string, exceptID uint) bool {
	var n int64
	db.Model(&models.Company{}).Where("LOWER(name) = ? AND id <> ?", strings.ToLower(name), exceptID).Count(&n)
	return n > 0
}

func loadCompany(c *fiber.Ctx) (*models.Company, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	var co models.Company
	if err := database.DB.First(&co, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Company not found")
	}
	return &co, nil
}

// ----------------------------------------
// COMPANY CRUD (super admin)
// ----------------------------------------

func CreateCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CompanyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Company name is required")
		}

		co := models.Company{IsActive: true}
		if err := applyCompany(&co, &body); err != nil {
			return err
		}
		if companyNameTaken(database.DB, co.Name, 0) {
			return fiber.NewError(fiber.StatusConflict, "A company with this name already exists")
		}
		if err := database.DB.Create(&co).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create company")
		}
		return c.Status(fiber.StatusCreated).JSON(toCompanyResponse(&co))
	}
}

func ListCompaniesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var companies []models.Company
		if err := database.DB.Order("name ASC").Find(&companies).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list companies")
		}
		res := make([]CompanyResponse, 0, len(companies))
		for i := range companies {
			res = append(res, toCompanyResponse(&companies[i]))
		}
		return c.JSON(res)
	}
}

func GetCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		co, err := loadCompany(c)
		if err != nil {
			return err
		}
		return c.JSON(toCompanyResponse(co))
	}
}

func UpdateCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		co, err := loadCompany(c)
		if err != nil {
			return err
		}
		var body CompanyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := applyCompany(co, &body); err != nil {
			return err
		}
		if companyNameTaken(database.DB, co.Name, co.ID) {
			return fiber.NewError(fiber.StatusConflict, "A company with this name already exists")
		}
		if err := database.DB.Save(co).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update company")
		}
		return c.JSON(toCompanyResponse(co))
	}
}

// DeleteCompanyHandler only removes empty tenants; deactivate the others.
func DeleteCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		co, err := loadCompany(c)
		if err != nil {
			return err
		}
		for _, m := range []any{&models.User{}, &models.Employee{}, &models.Equipment{}, &models.Customer{}} {
			var n int64
			if err := database.DB.Model(m).Where("company_id = ?", co.ID).Count(&n).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not delete company")
			}
			if n > 0 {
				return fiber.NewError(fiber.StatusConflict, "Company still has data, deactivate it instead")
			}
		}
		if err := database.DB.Delete(&models.Company{}, co.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete company")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// COMPANY ADMINS
// POST /api/admin/companies/:id/admins
// ----------------------------------------

func CreateCompanyAdminHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		co, err := loadCompany(c)
		if err != nil {
			return err
		}
		var body CreateCompanyAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		user, err := createUser(database.DB, newUser{
			CompanyID: &co.ID,
			Name:      body.Name,
			Email:     body.Email,
			Password:  body.Password,
			Role:      models.RoleAdmin,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

// GET /api/admin/companies/:id/admins
func ListCompanyAdminsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		co, err := loadCompany(c)
		if err != nil {
			return err
		}
		role, err := rbac.FindRole(database.DB, models.RoleAdmin)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load roles")
		}

		var users []models.User
		if err := database.DB.Preload("Role").
			Where("company_id = ? AND role_id = ?", co.ID, role.ID).
			Order("created_at DESC").
			Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list admins")
		}

		res := make([]UserResponse, 0, len(users))
		for i := range users {
			res = append(res, toUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}
