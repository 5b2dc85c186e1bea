package equipment

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

type EquipmentRequest struct {
	CompanyID    *uint    `json:"company_id"`
	Name         *string  `json:"name"`
	Model        *string  `json:"model"`
	Manufacturer *string  `json:"manufacturer"`
	SerialNumber *string  `json:"serial_number"`
	Category     *string  `json:"category"`
	DailyRate    *float64 `json:"daily_rate"`
	Status       *string  `json:"status"`
	ERPNextID    *string  `json:"erpnext_id"`
	PurchaseDate *string  `json:"purchase_date"`
	Notes        *string  `json:"notes"`
}

type EquipmentResponse struct {
	ID           uint                   `json:"id"`
	CompanyID    uint                   `json:"company_id"`
	Name         string                 `json:"name"`
	Model        string                 `json:"model"`
	Manufacturer string                 `json:"manufacturer"`
	SerialNumber string                 `json:"serial_number"`
	Category     string                 `json:"category"`
	DailyRate    float64                `json:"daily_rate"`
	Status       models.EquipmentStatus `json:"status"`
	ERPNextID    string                 `json:"erpnext_id"`
	PurchaseDate *string                `json:"purchase_date"`
	Notes        string                 `json:"notes"`
	CreatedAt    string                 `json:"created_at"`
}

func toResponse(e *models.Equipment) EquipmentResponse {
	return EquipmentResponse{
		ID:           e.ID,
		CompanyID:    e.CompanyID,
		Name:         e.Name,
		Model:        e.Model,
		Manufacturer: e.Manufacturer,
		SerialNumber: e.SerialNumber,
		Category:     e.Category,
		DailyRate:    e.DailyRate,
		Status:       e.Status,
		ERPNextID:    e.ERPNextID,
		PurchaseDate: dateutil.FormatPtr(e.PurchaseDate),
		Notes:        e.Notes,
		CreatedAt:    dateutil.FormatDateTime(e.CreatedAt),
	}
}

type HistoryResponse struct {
	ID             uint                  `json:"id"`
	EquipmentID    uint                  `json:"equipment_id"`
	AssignmentType models.AssignmentType `json:"assignment_type"`
	RentalID       *uint                 `json:"rental_id"`
	ProjectID      *uint                 `json:"project_id"`
	EmployeeID     *uint                 `json:"employee_id"`
	StartDate      string                `json:"start_date"`
	EndDate        *string               `json:"end_date"`
	Status         models.HistoryStatus  `json:"status"`
	Notes          string                `json:"notes"`
}

func toHistoryResponse(h *models.EquipmentRentalHistory) HistoryResponse {
	return HistoryResponse{
		ID:             h.ID,
		EquipmentID:    h.EquipmentID,
		AssignmentType: h.AssignmentType,
		RentalID:       h.RentalID,
		ProjectID:      h.ProjectID,
		EmployeeID:     h.EmployeeID,
		StartDate:      dateutil.Format(h.StartDate),
		EndDate:        dateutil.FormatPtr(h.EndDate),
		Status:         h.Status,
		Notes:          h.Notes,
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

// Load fetches equipment visible to the caller.
func Load(c *fiber.Ctx, db *gorm.DB, id uint) (*models.Equipment, error) {
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var eq models.Equipment
	if err := db.Scopes(scope).First(&eq, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Equipment not found")
	}
	return &eq, nil
}

func loadFromParam(c *fiber.Ctx) (*models.Equipment, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	return Load(c, database.DB, id)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// GET /api/equipment?status=&category=&q=
func ListEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope)
		if s := c.Query("status"); s != "" {
			q = q.Where("status = ?", s)
		}
		if cat := c.Query("category"); cat != "" {
			q = q.Where("category = ?", cat)
		}
		if s := strings.TrimSpace(c.Query("q")); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			q = q.Where("LOWER(name) LIKE ? OR LOWER(serial_number) LIKE ? OR LOWER(model) LIKE ?", like, like, like)
		}

		var rows []models.Equipment
		if err := q.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list equipment")
		}
		res := make([]EquipmentResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/equipment/:id
func GetEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(eq))
	}
}

// POST /api/equipment
func CreateEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body EquipmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}
		if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Equipment name is required")
		}

		eq := models.Equipment{CompanyID: companyID, Status: models.EquipmentStatusAvailable}
		if err := apply(&eq, &body); err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&eq).Error; err != nil {
				return err
			}
			return rec.Log(tx, companyID, "equipment", eq.ID, models.AuditActionCreate,
				fmt.Sprintf("Equipment %s created", eq.Name), nil, eq)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create equipment")
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&eq))
	}
}

func apply(eq *models.Equipment, body *EquipmentRequest) error {
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Equipment name cannot be empty")
		}
		eq.Name = name
	}
	setString(&eq.Model, body.Model)
	setString(&eq.Manufacturer, body.Manufacturer)
	setString(&eq.SerialNumber, body.SerialNumber)
	setString(&eq.Category, body.Category)
	setString(&eq.ERPNextID, body.ERPNextID)
	setString(&eq.Notes, body.Notes)
	if body.DailyRate != nil {
		if *body.DailyRate < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "daily_rate cannot be negative")
		}
		eq.DailyRate = *body.DailyRate
	}
	if body.Status != nil {
		s := models.EquipmentStatus(*body.Status)
		if !s.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid status")
		}
		eq.Status = s
	}
	if body.PurchaseDate != nil {
		d, err := dateutil.ParseOptional(body.PurchaseDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		eq.PurchaseDate = d
	}
	return nil
}

// PUT /api/equipment/:id
func UpdateEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		before := *eq

		var body EquipmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := apply(eq, &body); err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(eq).Error; err != nil {
				return err
			}
			return rec.Log(tx, eq.CompanyID, "equipment", eq.ID, models.AuditActionUpdate,
				fmt.Sprintf("Equipment %s updated", eq.Name), before, eq)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update equipment")
		}
		return c.JSON(toResponse(eq))
	}
}

// DELETE /api/equipment/:id
func DeleteEquipmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		deployed, err := hasActiveHistory(database.DB, eq.ID)
		if err != nil {
			return err
		}
		if deployed {
			return fiber.NewError(fiber.StatusConflict, "Equipment is currently assigned")
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("equipment_id = ?", eq.ID).Delete(&models.EquipmentMaintenance{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(eq).Error; err != nil {
				return err
			}
			return rec.Log(tx, eq.CompanyID, "equipment", eq.ID, models.AuditActionDelete,
				fmt.Sprintf("Equipment %s deleted", eq.Name), eq, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete equipment")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/equipment/:id/rentals
func HistoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		var rows []models.EquipmentRentalHistory
		if err := database.DB.Where("equipment_id = ?", eq.ID).Order("start_date DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load history")
		}
		res := make([]HistoryResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toHistoryResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

type AssignRequest struct {
	AssignmentType models.AssignmentType `json:"assignment_type"`
	RentalID       *uint                 `json:"rental_id"`
	ProjectID      *uint                 `json:"project_id"`
	EmployeeID     *uint                 `json:"employee_id"`
	StartDate      *string               `json:"start_date"`
	Notes          string                `json:"notes"`
}

// POST /api/equipment/:id/assign
func AssignHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		var body AssignRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		start, err := dateutil.ParseOptional(body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.EmployeeID != nil {
			if _, err := auth.LoadEmployee(c, database.DB, *body.EmployeeID); err != nil {
				return err
			}
		}
		in := AssignInput{
			Type:       body.AssignmentType,
			RentalID:   body.RentalID,
			ProjectID:  body.ProjectID,
			EmployeeID: body.EmployeeID,
			Notes:      body.Notes,
		}
		if start != nil {
			in.StartDate = *start
		}
		h, err := Assign(database.DB, eq.ID, in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toHistoryResponse(h))
	}
}

// PUT /api/equipment/assignments/:id/complete
func CompleteHistoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var h models.EquipmentRentalHistory
		if err := database.DB.First(&h, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Assignment not found")
		}
		if _, err := Load(c, database.DB, h.EquipmentID); err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Assignment not found")
		}

		var body struct {
			EndDate *string `json:"end_date"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
			}
		}
		end, err := dateutil.ParseOptional(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		done, err := CompleteHistory(database.DB, h.ID, end)
		if err != nil {
			return err
		}
		return c.JSON(toHistoryResponse(done))
	}
}

// POST /api/equipment/status-check
func StatusCheckHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		var companyID *uint
		if !id.IsSuperAdmin() {
			if id.CompanyID == nil {
				return fiber.NewError(fiber.StatusForbidden, "User is not attached to a company")
			}
			companyID = id.CompanyID
		}
		report, err := CheckStatuses(c.UserContext(), database.DB, companyID)
		if err != nil {
			return err
		}
		return c.JSON(report)
	}
}
