package customer

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"snd-backend/internal/config"
	"snd-backend/internal/database"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// POST /api/webhooks/erpnext/customers
//
// Accepts {"event_type": ..., "data": {...}} or the customer document itself.
func WebhookHandler(cfg *config.Config, client *erpnext.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret := cfg.ERPNext.WebhookSecret; secret != "" {
			got := c.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return fiber.NewError(fiber.StatusUnauthorized, "Invalid webhook secret")
			}
		}

		var body map[string]any
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		payload := erpnext.Record(body)
		if data, ok := body["data"].(map[string]any); ok {
			payload = erpnext.Record(data)
		}
		eventType := firstNonEmpty(erpnext.Record(body).String("event_type", "type"), "update")

		name := payload.String("name")
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid customer data in webhook")
		}

		record := payload
		if eventType != "delete" && client.Enabled() {
			full, err := client.GetCustomer(c.UserContext(), name)
			if err != nil {
				zap.L().Warn("erpnext customer fetch failed, using webhook payload",
					zap.String("customer", name), zap.Error(err))
			} else {
				record = full
			}
		}

		companyID, err := IntakeCompany(database.DB, cfg.ERPNext.CompanyID)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "No company configured for ERPNext customers")
		}

		var res SyncResult
		err = database.Transaction(func(tx *gorm.DB) error {
			res, err = Apply(tx, companyID, eventType, record)
			if err != nil {
				return err
			}
			if res.Action == ActionCreated {
				return notifyAdmins(tx, companyID, name, res.CustomerID)
			}
			return nil
		})
		if err != nil {
			zap.L().Error("erpnext webhook failed", zap.String("customer", name), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "Webhook processing failed")
		}

		zap.L().Info("erpnext webhook processed",
			zap.String("event", eventType), zap.String("customer", name), zap.String("action", res.Action))
		return c.JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Customer %s successfully", res.Action),
			"data":    res,
		})
	}
}

func notifyAdmins(tx *gorm.DB, companyID uint, customerName string, customerID uint) error {
	var admins []models.User
	err := tx.Joins("JOIN roles ON roles.id = users.role_id").
		Where("users.company_id = ? AND users.is_active = ? AND roles.name = ?", companyID, true, models.RoleAdmin).
		Find(&admins).Error
	if err != nil {
		return err
	}
	for _, u := range admins {
		if _, err := notification.Notify(tx, notification.Input{
			UserID:    u.ID,
			Type:      models.NotificationInfo,
			Title:     "New customer from ERPNext",
			Message:   customerName,
			Data:      map[string]any{"customer_id": customerID},
			ActionURL: fmt.Sprintf("/customers/%d", customerID),
		}); err != nil {
			return err
		}
	}
	return nil
}

// POST /api/customers/sync
func SyncHandler(cfg *config.Config, client *erpnext.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !client.Enabled() {
			return fiber.NewError(fiber.StatusServiceUnavailable, "ERPNext integration is not configured")
		}
		companyID, err := IntakeCompany(database.DB, cfg.ERPNext.CompanyID)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "No company configured for ERPNext customers")
		}
		sum, err := Sync(c.UserContext(), database.DB, client, companyID)
		if err != nil {
			zap.L().Error("erpnext customer sync failed", zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "ERPNext sync failed")
		}
		return c.JSON(sum)
	}
}
