package notification

import (
	"encoding/json"
	"time"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type NotificationResponse struct {
	ID        uint                        `json:"id"`
	Type      models.NotificationType     `json:"type"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	Data      json.RawMessage             `json:"data"`
	ActionURL string                      `json:"action_url"`
	Priority  models.NotificationPriority `json:"priority"`
	Read      bool                        `json:"read"`
	ReadAt    *string                     `json:"read_at"`
	CreatedAt string                      `json:"created_at"`
}

func toResponse(n *models.Notification) NotificationResponse {
	data := json.RawMessage(n.Data)
	if !json.Valid(data) {
		data = json.RawMessage("null")
	}
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		ActionURL: n.ActionURL,
		Priority:  n.Priority,
		Read:      n.Read,
		ReadAt:    dateutil.FormatDateTimePtr(n.ReadAt),
		CreatedAt: dateutil.FormatDateTime(n.CreatedAt),
	}
}

// GET /api/notifications?unread=true&limit=50
func ListNotificationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		q := database.DB.Where("user_id = ?", id.UserID)
		if c.QueryBool("unread") {
			q = q.Where("is_read = ?", false)
		}

		var rows []models.Notification
		if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list notifications")
		}

		unread, err := UnreadCount(database.DB, id.UserID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count notifications")
		}

		res := make([]NotificationResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(fiber.Map{"notifications": res, "unread_count": unread})
	}
}

func loadOwn(c *fiber.Ctx) (*models.Notification, error) {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return nil, err
	}
	nid, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	var n models.Notification
	if err := database.DB.Where("user_id = ?", id.UserID).First(&n, nid).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Notification not found")
	}
	return &n, nil
}

// POST /api/notifications/:id/read
func MarkReadHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := loadOwn(c)
		if err != nil {
			return err
		}
		if !n.Read {
			now := time.Now().UTC()
			n.Read = true
			n.ReadAt = &now
			if err := database.DB.Model(n).Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not update notification")
			}
		}
		return c.JSON(toResponse(n))
	}
}

// POST /api/notifications/read-all
func MarkAllReadHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		res := database.DB.Model(&models.Notification{}).
			Where("user_id = ? AND is_read = ?", id.UserID, false).
			Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})
		if res.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update notifications")
		}
		return c.JSON(fiber.Map{"updated": res.RowsAffected})
	}
}

// DELETE /api/notifications/:id
func DeleteNotificationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := loadOwn(c)
		if err != nil {
			return err
		}
		if err := database.DB.Delete(n).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete notification")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
