package rental

import (
	"fmt"
	"strings"

	"snd-backend/internal/apperror"
	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ItemRequest struct {
	EquipmentID *uint   `json:"equipment_id"`
	OperatorID  *uint   `json:"operator_id"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	RateType    string  `json:"rate_type"`
	Days        int     `json:"days"`
}

type RentalRequest struct {
	CompanyID        *uint          `json:"company_id"`
	CustomerID       *uint          `json:"customer_id"`
	ProjectID        *uint          `json:"project_id"`
	RentalNumber     *string        `json:"rental_number"`
	StartDate        *string        `json:"start_date"`
	ExpectedEndDate  *string        `json:"expected_end_date"`
	DiscountAmount   *float64       `json:"discount_amount"`
	PaymentTermsDays *int           `json:"payment_terms_days"`
	Status           *string        `json:"status"`
	Notes            *string        `json:"notes"`
	Items            *[]ItemRequest `json:"items"`
}

type ItemResponse struct {
	ID          uint                    `json:"id"`
	EquipmentID *uint                   `json:"equipment_id"`
	OperatorID  *uint                   `json:"operator_id"`
	Description string                  `json:"description"`
	Quantity    int                     `json:"quantity"`
	UnitPrice   float64                 `json:"unit_price"`
	RateType    models.RateType         `json:"rate_type"`
	Days        int                     `json:"days"`
	TotalPrice  float64                 `json:"total_price"`
	Status      models.AssignmentStatus `json:"status"`
}

type RentalResponse struct {
	ID               uint                `json:"id"`
	CompanyID        uint                `json:"company_id"`
	RentalNumber     string              `json:"rental_number"`
	CustomerID       uint                `json:"customer_id"`
	CustomerName     string              `json:"customer_name"`
	ProjectID        *uint               `json:"project_id"`
	StartDate        string              `json:"start_date"`
	ExpectedEndDate  *string             `json:"expected_end_date"`
	ActualEndDate    *string             `json:"actual_end_date"`
	Status           models.RentalStatus `json:"status"`
	Subtotal         float64             `json:"subtotal"`
	DiscountAmount   float64             `json:"discount_amount"`
	TaxRate          float64             `json:"tax_rate"`
	TaxAmount        float64             `json:"tax_amount"`
	TotalAmount      float64             `json:"total_amount"`
	PaymentTermsDays int                 `json:"payment_terms_days"`
	InvoiceID        string              `json:"invoice_id"`
	InvoiceDate      *string             `json:"invoice_date"`
	Notes            string              `json:"notes"`
	Items            []ItemResponse      `json:"items"`
}

func toResponse(r *models.Rental) RentalResponse {
	res := RentalResponse{
		ID:               r.ID,
		CompanyID:        r.CompanyID,
		RentalNumber:     r.RentalNumber,
		CustomerID:       r.CustomerID,
		ProjectID:        r.ProjectID,
		StartDate:        dateutil.Format(r.StartDate),
		ExpectedEndDate:  dateutil.FormatPtr(r.ExpectedEndDate),
		ActualEndDate:    dateutil.FormatPtr(r.ActualEndDate),
		Status:           r.Status,
		Subtotal:         r.Subtotal,
		DiscountAmount:   r.DiscountAmount,
		TaxRate:          r.TaxRate,
		TaxAmount:        r.TaxAmount,
		TotalAmount:      r.TotalAmount,
		PaymentTermsDays: r.PaymentTermsDays,
		InvoiceID:        r.InvoiceID,
		InvoiceDate:      dateutil.FormatPtr(r.InvoiceDate),
		Notes:            r.Notes,
		Items:            make([]ItemResponse, 0, len(r.Items)),
	}
	if r.Customer != nil {
		res.CustomerName = r.Customer.Name
	}
	for _, it := range r.Items {
		res.Items = append(res.Items, ItemResponse{
			ID:          it.ID,
			EquipmentID: it.EquipmentID,
			OperatorID:  it.OperatorID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			RateType:    it.RateType,
			Days:        it.Days,
			TotalPrice:  it.TotalPrice,
			Status:      it.Status,
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

// load returns the rental with customer and items, scoped to the caller.
func load(c *fiber.Ctx) (*models.Rental, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var r models.Rental
	if err := database.DB.Scopes(scope).Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&r, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Rental not found")
	}
	return &r, nil
}

func reload(r *models.Rental) (*models.Rental, error) {
	var out models.Rental
	if err := database.DB.Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&out, r.ID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not load rental")
	}
	return &out, nil
}

func buildItems(db *gorm.DB, companyID uint, reqs []ItemRequest) ([]models.RentalItem, error) {
	items := make([]models.RentalItem, 0, len(reqs))
	for i, it := range reqs {
		if it.UnitPrice < 0 {
			return nil, apperror.Newf(apperror.CodeValidation, "items[%d]: unit_price cannot be negative", i)
		}
		rate := models.RateType(it.RateType)
		switch rate {
		case "":
			rate = models.RateTypeDaily
		case models.RateTypeHourly, models.RateTypeDaily, models.RateTypeWeekly, models.RateTypeMonthly:
		default:
			return nil, apperror.Newf(apperror.CodeValidation, "items[%d]: invalid rate_type %q", i, it.RateType)
		}
		if it.EquipmentID != nil {
			var n int64
			db.Model(&models.Equipment{}).Where("id = ? AND company_id = ?", *it.EquipmentID, companyID).Count(&n)
			if n == 0 {
				return nil, apperror.Newf(apperror.CodeValidation, "items[%d]: equipment not found", i)
			}
		}
		if it.OperatorID != nil {
			var n int64
			db.Model(&models.Employee{}).Where("id = ? AND company_id = ?", *it.OperatorID, companyID).Count(&n)
			if n == 0 {
				return nil, apperror.Newf(apperror.CodeValidation, "items[%d]: operator not found", i)
			}
		}
		items = append(items, models.RentalItem{
			EquipmentID: it.EquipmentID,
			OperatorID:  it.OperatorID,
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			RateType:    rate,
			Days:        it.Days,
			Status:      models.AssignmentStatusPending,
		})
	}
	return items, nil
}

// applyHeader copies the non-item fields of body onto r.
func applyHeader(db *gorm.DB, r *models.Rental, body *RentalRequest) error {
	if body.CustomerID != nil {
		var n int64
		db.Model(&models.Customer{}).Where("id = ? AND company_id = ?", *body.CustomerID, r.CompanyID).Count(&n)
		if n == 0 {
			return apperror.Validation("Customer not found")
		}
		r.CustomerID = *body.CustomerID
		r.Customer = nil
	}
	if body.ProjectID != nil {
		if *body.ProjectID == 0 {
			r.ProjectID = nil
		} else {
			var n int64
			db.Model(&models.Project{}).Where("id = ? AND company_id = ?", *body.ProjectID, r.CompanyID).Count(&n)
			if n == 0 {
				return apperror.Validation("Project not found")
			}
			r.ProjectID = body.ProjectID
		}
	}
	if body.RentalNumber != nil {
		r.RentalNumber = strings.TrimSpace(*body.RentalNumber)
	}
	if body.StartDate != nil {
		start, err := dateutil.Parse(*body.StartDate)
		if err != nil {
			return apperror.Validation(err.Error())
		}
		r.StartDate = start
	}
	if body.ExpectedEndDate != nil {
		end, err := dateutil.ParseOptional(body.ExpectedEndDate)
		if err != nil {
			return apperror.Validation(err.Error())
		}
		r.ExpectedEndDate = end
	}
	if r.ExpectedEndDate != nil && r.ExpectedEndDate.Before(r.StartDate) {
		return apperror.Validation("expected_end_date cannot be before start_date")
	}
	if body.DiscountAmount != nil {
		if *body.DiscountAmount < 0 {
			return apperror.Validation("discount_amount cannot be negative")
		}
		r.DiscountAmount = *body.DiscountAmount
	}
	if body.PaymentTermsDays != nil {
		if *body.PaymentTermsDays < 0 {
			return apperror.Validation("payment_terms_days cannot be negative")
		}
		r.PaymentTermsDays = *body.PaymentTermsDays
	}
	if body.Notes != nil {
		r.Notes = strings.TrimSpace(*body.Notes)
	}
	return nil
}

// GET /api/rentals?status=&customer_id=
func ListRentalsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope).Preload("Customer").Preload("Items")
		if s := c.Query("status"); s != "" {
			q = q.Where("status = ?", s)
		}
		if s := c.Query("customer_id"); s != "" {
			q = q.Where("customer_id = ?", s)
		}

		var rows []models.Rental
		if err := q.Order("start_date DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list rentals")
		}
		res := make([]RentalResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/rentals/:id
func GetRentalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := load(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(r))
	}
}

// POST /api/rentals
//
// status "active" activates the rental right away.
func CreateRentalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RentalRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}
		if body.CustomerID == nil {
			return fiber.NewError(fiber.StatusBadRequest, "customer_id is required")
		}
		if body.StartDate == nil {
			return fiber.NewError(fiber.StatusBadRequest, "start_date is required")
		}
		activate := false
		if body.Status != nil {
			switch models.RentalStatus(*body.Status) {
			case models.RentalStatusPending:
			case models.RentalStatusActive:
				activate = true
			default:
				return fiber.NewError(fiber.StatusBadRequest, "New rentals must be pending or active")
			}
		}

		r := models.Rental{CompanyID: companyID, Status: models.RentalStatusPending, PaymentTermsDays: 30}
		if err := applyHeader(database.DB, &r, &body); err != nil {
			return err
		}
		if body.Items != nil {
			if r.Items, err = buildItems(database.DB, companyID, *body.Items); err != nil {
				return err
			}
		}
		ApplyTotals(&r)

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if r.RentalNumber == "" {
				if r.RentalNumber, err = NextNumber(tx, companyID); err != nil {
					return err
				}
			} else if taken, err := numberTaken(tx, companyID, r.RentalNumber, 0); err != nil {
				return err
			} else if taken {
				return apperror.Conflict("Rental number already exists")
			}

			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("create rental: %w", err)
			}
			if activate {
				if _, err := Activate(tx, r.ID); err != nil {
					return err
				}
			}
			return rec.Log(tx, companyID, "rental", r.ID, models.AuditActionCreate,
				fmt.Sprintf("Rental %s created", r.RentalNumber), nil, r)
		})
		if err != nil {
			return err
		}

		out, err := reload(&r)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(out))
	}
}

// PUT /api/rentals/:id
//
// Items, customer, dates and discount can only change while the rental is pending.
func UpdateRentalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := load(c)
		if err != nil {
			return err
		}
		var body RentalRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Status != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Use the activate, complete or cancel endpoints to change status")
		}
		structural := body.Items != nil || body.CustomerID != nil || body.StartDate != nil ||
			body.DiscountAmount != nil || body.RentalNumber != nil
		if structural && r.Status != models.RentalStatusPending {
			return fiber.NewError(fiber.StatusConflict, "Only pending rentals can be changed")
		}

		before := *r
		before.Customer = nil
		if err := applyHeader(database.DB, r, &body); err != nil {
			return err
		}
		if r.RentalNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "rental_number cannot be empty")
		}
		var items []models.RentalItem
		if body.Items != nil {
			if items, err = buildItems(database.DB, r.CompanyID, *body.Items); err != nil {
				return err
			}
			r.Items = items
		}
		ApplyTotals(r)

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if taken, err := numberTaken(tx, r.CompanyID, r.RentalNumber, r.ID); err != nil {
				return err
			} else if taken {
				return apperror.Conflict("Rental number already exists")
			}
			if body.Items != nil {
				if err := tx.Where("rental_id = ?", r.ID).Delete(&models.RentalItem{}).Error; err != nil {
					return err
				}
				for i := range items {
					items[i].RentalID = r.ID
				}
				if len(items) > 0 {
					if err := tx.Create(&items).Error; err != nil {
						return err
					}
				}
			}
			if err := tx.Omit("Customer", "Items").Save(r).Error; err != nil {
				return err
			}
			return rec.Log(tx, r.CompanyID, "rental", r.ID, models.AuditActionUpdate,
				fmt.Sprintf("Rental %s updated", r.RentalNumber), before, r)
		})
		if err != nil {
			return err
		}

		out, err := reload(r)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(out))
	}
}

// DELETE /api/rentals/:id
func DeleteRentalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := load(c)
		if err != nil {
			return err
		}
		if r.Status != models.RentalStatusPending && r.Status != models.RentalStatusCancelled {
			return fiber.NewError(fiber.StatusConflict, "Only pending or cancelled rentals can be deleted")
		}
		if r.InvoiceID != "" {
			return fiber.NewError(fiber.StatusConflict, "Invoiced rentals cannot be deleted")
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		r.Customer = nil
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("rental_id = ?", r.ID).Delete(&models.RentalItem{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Rental{}, r.ID).Error; err != nil {
				return err
			}
			return rec.Log(tx, r.CompanyID, "rental", r.ID, models.AuditActionDelete,
				fmt.Sprintf("Rental %s deleted", r.RentalNumber), r, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete rental")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type transition func(tx *gorm.DB, r *models.Rental, body *CompleteRequest) (*models.Rental, error)

type CompleteRequest struct {
	EndDate *string `json:"end_date"`
}

func transitionHandler(verb string, fn transition) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := load(c)
		if err != nil {
			return err
		}
		var body CompleteRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
			}
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		before := *r
		before.Customer = nil
		err = database.Transaction(func(tx *gorm.DB) error {
			after, err := fn(tx, r, &body)
			if err != nil {
				return err
			}
			return rec.Log(tx, r.CompanyID, "rental", r.ID, models.AuditActionUpdate,
				fmt.Sprintf("Rental %s %s", r.RentalNumber, verb), before, after)
		})
		if err != nil {
			return err
		}

		out, err := reload(r)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(out))
	}
}

// POST /api/rentals/:id/activate
func ActivateRentalHandler() fiber.Handler {
	return transitionHandler("activated", func(tx *gorm.DB, r *models.Rental, _ *CompleteRequest) (*models.Rental, error) {
		return Activate(tx, r.ID)
	})
}

// POST /api/rentals/:id/complete
func CompleteRentalHandler() fiber.Handler {
	return transitionHandler("completed", func(tx *gorm.DB, r *models.Rental, body *CompleteRequest) (*models.Rental, error) {
		end := dateutil.Today()
		if body.EndDate != nil {
			d, err := dateutil.Parse(*body.EndDate)
			if err != nil {
				return nil, apperror.Validation(err.Error())
			}
			end = d
		}
		return Complete(tx, r.ID, end)
	})
}

// POST /api/rentals/:id/cancel
func CancelRentalHandler() fiber.Handler {
	return transitionHandler("cancelled", func(tx *gorm.DB, r *models.Rental, _ *CompleteRequest) (*models.Rental, error) {
		return Cancel(tx, r.ID)
	})
}

// POST /api/rentals/:id/invoice
func InvoiceRentalHandler(client *erpnext.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := load(c)
		if err != nil {
			return err
		}
		invoiced, err := Invoice(c.UserContext(), database.DB, client, r.ID)
		if err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		if err := rec.Log(database.DB, r.CompanyID, "rental", r.ID, models.AuditActionUpdate,
			fmt.Sprintf("Rental %s invoiced as %s", r.RentalNumber, invoiced.InvoiceID), nil, nil); err != nil {
			return err
		}

		out, err := reload(r)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(out))
	}
}
