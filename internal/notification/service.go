package notification

import (
	"encoding/json"
	"fmt"
	"strings"

	"snd-backend/internal/models"

	"gorm.io/gorm"
)

type Input struct {
	UserID    uint
	Type      models.NotificationType
	Title     string
	Message   string
	Data      any
	ActionURL string
	Priority  models.NotificationPriority
}

// Notify stores a notification for one user. db may be a transaction.
func Notify(db *gorm.DB, in Input) (*models.Notification, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("notify: user id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("notify: title is required")
	}
	if in.Type == "" {
		in.Type = models.NotificationInfo
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}

	// jsonb rejects empty strings
	data := "{}"
	if in.Data != nil {
		b, err := json.Marshal(in.Data)
		if err != nil {
			return nil, fmt.Errorf("notify: encode data: %w", err)
		}
		data = string(b)
	}

	n := models.Notification{
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Data:      data,
		ActionURL: in.ActionURL,
		Priority:  in.Priority,
		Read:      false,
	}
	if err := db.Create(&n).Error; err != nil {
		return nil, fmt.Errorf("notify user %d: %w", in.UserID, err)
	}
	return &n, nil
}

// NotifyEmployee notifies the login linked to an employee, if there is one.
func NotifyEmployee(db *gorm.DB, employeeID uint, in Input) error {
	var emp models.Employee
	if err := db.Select("id", "user_id").First(&emp, employeeID).Error; err != nil {
		return fmt.Errorf("load employee %d: %w", employeeID, err)
	}
	if emp.UserID == nil {
		return nil
	}
	in.UserID = *emp.UserID
	_, err := Notify(db, in)
	return err
}

// UnreadCount is used by the dashboard.
func UnreadCount(db *gorm.DB, userID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	return n, err
}
