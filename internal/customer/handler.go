package customer

import (
	"fmt"
	"strings"

	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CustomerRequest struct {
	CompanyID     *uint    `json:"company_id"`
	Name          *string  `json:"name"`
	CompanyName   *string  `json:"company_name"`
	ContactPerson *string  `json:"contact_person"`
	Email         *string  `json:"email"`
	Phone         *string  `json:"phone"`
	Address       *string  `json:"address"`
	City          *string  `json:"city"`
	Country       *string  `json:"country"`
	TaxID         *string  `json:"tax_id"`
	CreditLimit   *float64 `json:"credit_limit"`
	PaymentTerms  *string  `json:"payment_terms"`
	CustomerGroup *string  `json:"customer_group"`
	IsActive      *bool    `json:"is_active"`
	Notes         *string  `json:"notes"`
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

func apply(cu *models.Customer, body *CustomerRequest) {
	setString(&cu.Name, body.Name)
	setString(&cu.CompanyName, body.CompanyName)
	setString(&cu.ContactPerson, body.ContactPerson)
	setString(&cu.Email, body.Email)
	setString(&cu.Phone, body.Phone)
	setString(&cu.Address, body.Address)
	setString(&cu.City, body.City)
	setString(&cu.Country, body.Country)
	setString(&cu.TaxID, body.TaxID)
	setString(&cu.PaymentTerms, body.PaymentTerms)
	setString(&cu.CustomerGroup, body.CustomerGroup)
	setString(&cu.Notes, body.Notes)
	if body.CreditLimit != nil {
		cu.CreditLimit = *body.CreditLimit
	}
	if body.IsActive != nil {
		cu.IsActive = *body.IsActive
	}
	cu.Status = models.CustomerStatusActive
	if !cu.IsActive {
		cu.Status = models.CustomerStatusInactive
	}
}

// Load fetches a customer visible to the caller.
func Load(c *fiber.Ctx, db *gorm.DB, id uint) (*models.Customer, error) {
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var cu models.Customer
	if err := db.Scopes(scope).First(&cu, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Customer not found")
	}
	return &cu, nil
}

// GET /api/customers?q=&active=
func ListCustomersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope)
		if s := strings.TrimSpace(c.Query("q")); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			q = q.Where("LOWER(name) LIKE ? OR LOWER(company_name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
		}
		switch c.Query("active") {
		case "true":
			q = q.Where("is_active = ?", true)
		case "false":
			q = q.Where("is_active = ?", false)
		}

		var rows []models.Customer
		if err := q.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list customers")
		}
		return c.JSON(rows)
	}
}

// GET /api/customers/:id
func GetCustomerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		cu, err := Load(c, database.DB, id)
		if err != nil {
			return err
		}
		return c.JSON(cu)
	}
}

// POST /api/customers
func CreateCustomerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CustomerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}
		if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Customer name is required")
		}

		cu := models.Customer{CompanyID: companyID, IsActive: true}
		apply(&cu, &body)

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&cu).Error; err != nil {
				return err
			}
			return rec.Log(tx, companyID, "customer", cu.ID, models.AuditActionCreate,
				fmt.Sprintf("Customer %s created", cu.Name), nil, cu)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create customer")
		}
		return c.Status(fiber.StatusCreated).JSON(cu)
	}
}

// PUT /api/customers/:id
func UpdateCustomerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		cu, err := Load(c, database.DB, id)
		if err != nil {
			return err
		}
		var body CustomerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name != nil && strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Customer name is required")
		}

		before := *cu
		apply(cu, &body)

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(cu).Error; err != nil {
				return err
			}
			return rec.Log(tx, cu.CompanyID, "customer", cu.ID, models.AuditActionUpdate,
				fmt.Sprintf("Customer %s updated", cu.Name), before, cu)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update customer")
		}
		return c.JSON(cu)
	}
}

// DELETE /api/customers/:id
func DeleteCustomerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		cu, err := Load(c, database.DB, id)
		if err != nil {
			return err
		}

		var rentals int64
		if err := database.DB.Model(&models.Rental{}).Where("customer_id = ?", cu.ID).Count(&rentals).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not check customer rentals")
		}
		if rentals > 0 {
			return fiber.NewError(fiber.StatusConflict, "Customer has rentals, deactivate it instead")
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&models.Customer{}, cu.ID).Error; err != nil {
				return err
			}
			return rec.Log(tx, cu.CompanyID, "customer", cu.ID, models.AuditActionDelete,
				fmt.Sprintf("Customer %s deleted", cu.Name), cu, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete customer")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
