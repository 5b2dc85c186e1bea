package audit

import (

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	CompanyID   *uint              `json:"company_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *uint              `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

// GET /api/audit-logs?entity_type=employee&entity_id=1&user_id=2
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.AuditLog{}).Scopes(scope)

		if s := c.Query("user_id"); s != "" {
			if uid, ok := auth.ParseID(s); ok {
				dbq = dbq.Where("user_id = ?", uid)
			}
		}
		if entityType := c.Query("entity_type"); entityType != "" {
			dbq = dbq.Where("entity_type = ?", entityType)
		}
		if s := c.Query("entity_id"); s != "" {
			if eid, ok := auth.ParseID(s); ok {
				dbq = dbq.Where("entity_id = ?", eid)
			}
		}

		limit := c.QueryInt("limit", 200)
		if limit <= 0 || limit > 1000 {
			limit = 200
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          log.ID,
				CreatedAt:   dateutil.FormatDateTime(log.CreatedAt),
				CompanyID:   log.CompanyID,
				UserID:      log.UserID,
				UserName:    log.UserName,
				EntityType:  log.EntityType,
				EntityID:    log.EntityID,
				Action:      log.Action,
				Description: log.Description,
				IsUndone:    log.IsUndone,
				UndoneBy:    log.UndoneBy,
				UndoneAt:    dateutil.FormatDateTimePtr(log.UndoneAt),
			})
		}

		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logID, ok := auth.ParseID(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid log ID")
		}

		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}

		// Only logs of the caller's own company are visible.
		var log models.AuditLog
		if err := database.DB.Scopes(scope).First(&log, "id = ?", logID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Log not found")
		}

		if err := UndoLog(database.DB, log.ID, user.ID, user.Name); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(fiber.Map{
			"message": "Change undone",
		})
	}
}
