package models

import "time"

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

type Notification struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	UserID    uint                 `gorm:"not null;index" json:"user_id"`
	Type      NotificationType     `gorm:"size:20;not null" json:"type"`
	Title     string               `gorm:"size:200;not null" json:"title"`
	Message   string               `gorm:"type:text" json:"message"`
	Data      string               `gorm:"type:jsonb" json:"data"`
	ActionURL string               `gorm:"size:255" json:"action_url"`
	Priority  NotificationPriority `gorm:"size:10;not null" json:"priority"`
	Read      bool                 `gorm:"column:is_read;not null;index" json:"read"`
	ReadAt    *time.Time           `json:"read_at"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}
