// Package chat implements direct and group conversations between users of a company.
package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	MaxMessageLen   = 5000
)

type CreateInput struct {
	CreatorID      uint
	CompanyID      *uint
	Type           models.ConversationType
	Title          string
	ParticipantIDs []uint
}

func uniqueIDs(ids []uint, exclude uint) []uint {
	seen := map[uint]bool{exclude: true}
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CreateConversation starts a conversation, or returns the existing direct
// conversation between the two users. created reports which happened.
func CreateConversation(db *gorm.DB, in CreateInput) (conv *models.Conversation, created bool, err error) {
	if in.Type == "" {
		in.Type = models.ConversationDirect
	}
	if in.Type != models.ConversationDirect && in.Type != models.ConversationGroup {
		return nil, false, apperror.Validation("type must be direct or group")
	}
	others := uniqueIDs(in.ParticipantIDs, in.CreatorID)
	if len(others) == 0 {
		return nil, false, apperror.Validation("At least one other participant is required")
	}
	if in.Type == models.ConversationDirect && len(others) != 1 {
		return nil, false, apperror.Validation("Direct conversations have exactly one other participant")
	}
	title := strings.TrimSpace(in.Title)
	if in.Type == models.ConversationGroup && title == "" {
		return nil, false, apperror.Validation("Group conversations need a title")
	}

	q := db.Model(&models.User{}).Where("id IN ? AND is_active = ?", others, true)
	if in.CompanyID != nil {
		q = q.Where("company_id = ?", *in.CompanyID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return nil, false, fmt.Errorf("check participants: %w", err)
	}
	if int(n) != len(others) {
		return nil, false, apperror.NotFound("One or more participants were not found")
	}

	if in.Type == models.ConversationDirect {
		existing, err := findDirect(db, in.CreatorID, others[0])
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	now := time.Now()
	conv = &models.Conversation{
		CompanyID:   in.CompanyID,
		Type:        in.Type,
		Title:       title,
		CreatedByID: in.CreatorID,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		members := append([]uint{in.CreatorID}, others...)
		for _, uid := range members {
			p := models.ConversationParticipant{ConversationID: conv.ID, UserID: uid, JoinedAt: now}
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("add participant %d: %w", uid, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func findDirect(db *gorm.DB, a, b uint) (*models.Conversation, error) {
	var mine []uint
	err := db.Model(&models.ConversationParticipant{}).
		Joins("JOIN conversations ON conversations.id = conversation_participants.conversation_id").
		Where("conversation_participants.user_id = ? AND conversations.type = ?", a, models.ConversationDirect).
		Pluck("conversation_participants.conversation_id", &mine).Error
	if err != nil {
		return nil, fmt.Errorf("find direct conversations: %w", err)
	}
	if len(mine) == 0 {
		return nil, nil
	}
	var p models.ConversationParticipant
	err = db.Where("user_id = ? AND conversation_id IN ?", b, mine).Order("conversation_id ASC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv models.Conversation
	if err := db.First(&conv, p.ConversationID).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// Participant returns the caller's membership, or 404 when they are not in
// the conversation.
func Participant(db *gorm.DB, conversationID, userID uint) (*models.ConversationParticipant, error) {
	var p models.ConversationParticipant
	if err := db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&p).Error; err != nil {
		return nil, apperror.NotFound("Conversation not found")
	}
	return &p, nil
}

// Summary is a conversation as seen by one participant.
type Summary struct {
	Conversation models.Conversation
	LastMessage  *models.Message
	Unread       int64
}

// ListConversations returns the user's conversations, most recent activity first.
func ListConversations(db *gorm.DB, userID uint) ([]Summary, error) {
	var memberships []models.ConversationParticipant
	if err := db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	if len(memberships) == 0 {
		return []Summary{}, nil
	}
	ids := make([]uint, 0, len(memberships))
	lastRead := make(map[uint]uint, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.ConversationID)
		lastRead[m.ConversationID] = m.LastReadMessageID
	}

	var convs []models.Conversation
	if err := db.Preload("Participants.User").Where("id IN ?", ids).Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	out := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		s := Summary{Conversation: conv}
		var last models.Message
		err := db.Where("conversation_id = ?", conv.ID).Order("id DESC").First(&last).Error
		if err == nil {
			s.LastMessage = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err := db.Model(&models.Message{}).
			Where("conversation_id = ? AND id > ? AND sender_id <> ?", conv.ID, lastRead[conv.ID], userID).
			Count(&s.Unread).Error; err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i].Conversation).After(activity(out[j].Conversation))
	})
	return out, nil
}

func activity(c models.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Messages pages backwards from before (exclusive, 0 for newest) and returns
// the page oldest first.
func Messages(db *gorm.DB, conversationID, before uint, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	q := db.Where("conversation_id = ?", conversationID)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var rows []models.Message
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Send stores a message, bumps the conversation and notifies the other
// participants. The sender's own message counts as read.
func Send(db *gorm.DB, conversationID uint, sender *models.User, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperror.Validation("Message body is required")
	}
	if len([]rune(body)) > MaxMessageLen {
		return nil, apperror.Newf(apperror.CodeValidation, "Message is longer than %d characters", MaxMessageLen)
	}

	msg := models.Message{ConversationID: conversationID, SenderID: sender.ID, Body: body}
	var recipients []uint
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := Participant(tx, conversationID, sender.ID); err != nil {
			return err
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
			Update("last_message_at", msg.CreatedAt).Error; err != nil {
			return err
		}
		if err := markRead(tx, conversationID, sender.ID, msg.ID); err != nil {
			return err
		}
		return tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, sender.ID).
			Pluck("user_id", &recipients).Error
	})
	if err != nil {
		return nil, err
	}

	preview := body
	if r := []rune(preview); len(r) > 100 {
		preview = string(r[:100]) + "..."
	}
	for _, uid := range recipients {
		_, err := notification.Notify(db, notification.Input{
			UserID:    uid,
			Type:      models.NotificationInfo,
			Title:     "New message from " + sender.Name,
			Message:   preview,
			Data:      map[string]any{"conversation_id": conversationID, "message_id": msg.ID},
			ActionURL: fmt.Sprintf("/chat/%d", conversationID),
			Priority:  models.PriorityLow,
		})
		if err != nil {
			zap.L().Warn("chat notification failed", zap.Uint("user_id", uid), zap.Error(err))
		}
	}
	return &msg, nil
}

// MarkRead marks every message currently in the conversation as read.
func MarkRead(db *gorm.DB, conversationID, userID uint) error {
	if _, err := Participant(db, conversationID, userID); err != nil {
		return err
	}
	var lastID uint
	if err := db.Model(&models.Message{}).Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(id), 0)").Scan(&lastID).Error; err != nil {
		return err
	}
	return markRead(db, conversationID, userID, lastID)
}

func markRead(db *gorm.DB, conversationID, userID, messageID uint) error {
	return db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]any{"last_read_message_id": messageID, "last_read_at": time.Now()}).Error
}
