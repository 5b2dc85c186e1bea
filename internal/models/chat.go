package models

import "time"

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Conversation struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	CompanyID     *uint            `gorm:"index" json:"company_id"`
	Type          ConversationType `gorm:"size:10;not null" json:"type"`
	Title         string           `gorm:"size:150" json:"title"`
	CreatedByID   uint             `gorm:"not null" json:"created_by_id"`
	LastMessageAt *time.Time       `gorm:"index" json:"last_message_at"`

	Participants []ConversationParticipant `json:"participants,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

type ConversationParticipant struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	ConversationID uint  `gorm:"not null;uniqueIndex:idx_participant" json:"conversation_id"`
	UserID         uint  `gorm:"not null;uniqueIndex:idx_participant" json:"user_id"`
	User           *User `json:"user,omitempty"`
	// Messages up to this id count as read.
	LastReadMessageID uint       `gorm:"not null;default:0" json:"last_read_message_id"`
	LastReadAt        *time.Time `json:"last_read_at"`
	JoinedAt          time.Time  `json:"joined_at"`
}

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint      `gorm:"not null" json:"sender_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
