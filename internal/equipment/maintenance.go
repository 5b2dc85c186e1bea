package equipment

import (
	"fmt"
	"strings"
	"time"

	"snd-backend/internal/audit"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type MaintenanceRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	ScheduledAt *string  `json:"scheduled_at"`
	Cost        *float64 `json:"cost"`
}

type MaintenanceResponse struct {
	ID          uint                     `json:"id"`
	EquipmentID uint                     `json:"equipment_id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Status      models.MaintenanceStatus `json:"status"`
	ScheduledAt *string                  `json:"scheduled_at"`
	CompletedAt *string                  `json:"completed_at"`
	Cost        float64                  `json:"cost"`
	CreatedAt   string                   `json:"created_at"`
}

func toMaintenanceResponse(m *models.EquipmentMaintenance) MaintenanceResponse {
	return MaintenanceResponse{
		ID:          m.ID,
		EquipmentID: m.EquipmentID,
		Title:       m.Title,
		Description: m.Description,
		Status:      m.Status,
		ScheduledAt: dateutil.FormatPtr(m.ScheduledAt),
		CompletedAt: dateutil.FormatDateTimePtr(m.CompletedAt),
		Cost:        m.Cost,
		CreatedAt:   dateutil.FormatDateTime(m.CreatedAt),
	}
}

func applyMaintenance(m *models.EquipmentMaintenance, body *MaintenanceRequest) error {
	if body.Title != nil {
		t := strings.TrimSpace(*body.Title)
		if t == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Title cannot be empty")
		}
		m.Title = t
	}
	setString(&m.Description, body.Description)
	if body.Cost != nil {
		if *body.Cost < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "cost cannot be negative")
		}
		m.Cost = *body.Cost
	}
	if body.ScheduledAt != nil {
		d, err := dateutil.ParseOptional(body.ScheduledAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		m.ScheduledAt = d
	}
	if body.Status != nil {
		s := models.MaintenanceStatus(*body.Status)
		if !s.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid maintenance status")
		}
		if s == models.MaintenanceStatusCompleted && m.Status != s {
			now := time.Now().UTC()
			m.CompletedAt = &now
		}
		m.Status = s
	}
	return nil
}

// GET /api/equipment/:id/maintenance
func ListMaintenanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		var rows []models.EquipmentMaintenance
		if err := database.DB.Where("equipment_id = ?", eq.ID).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list maintenance")
		}
		res := make([]MaintenanceResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toMaintenanceResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/equipment/:id/maintenance
func CreateMaintenanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		eq, err := loadFromParam(c)
		if err != nil {
			return err
		}
		var body MaintenanceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Title == nil {
			return fiber.NewError(fiber.StatusBadRequest, "Title is required")
		}
		m := models.EquipmentMaintenance{EquipmentID: eq.ID, Status: models.MaintenanceStatusOpen}
		if err := applyMaintenance(&m, &body); err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			if _, err := RefreshStatus(tx, eq.ID); err != nil {
				return err
			}
			return rec.Log(tx, eq.CompanyID, "equipment_maintenance", m.ID, models.AuditActionCreate,
				fmt.Sprintf("Maintenance %q for %s", m.Title, eq.Name), nil, m)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create maintenance")
		}
		return c.Status(fiber.StatusCreated).JSON(toMaintenanceResponse(&m))
	}
}

// PUT /api/maintenance/:id
func UpdateMaintenanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var m models.EquipmentMaintenance
		if err := database.DB.First(&m, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Maintenance not found")
		}
		eq, err := Load(c, database.DB, m.EquipmentID)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Maintenance not found")
		}
		before := m

		var body MaintenanceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := applyMaintenance(&m, &body); err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&m).Error; err != nil {
				return err
			}
			if _, err := RefreshStatus(tx, eq.ID); err != nil {
				return err
			}
			return rec.Log(tx, eq.CompanyID, "equipment_maintenance", m.ID, models.AuditActionUpdate,
				fmt.Sprintf("Maintenance %q updated", m.Title), before, m)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update maintenance")
		}
		return c.JSON(toMaintenanceResponse(&m))
	}
}
