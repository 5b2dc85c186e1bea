package chat

import (
	"strconv"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ParticipantResponse struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type MessageResponse struct {
	ID             uint   `json:"id"`
	ConversationID uint   `json:"conversation_id"`
	SenderID       uint   `json:"sender_id"`
	Body           string `json:"body"`
	CreatedAt      string `json:"created_at"`
}

type ConversationResponse struct {
	ID            uint                    `json:"id"`
	Type          models.ConversationType `json:"type"`
	Title         string                  `json:"title"`
	CreatedByID   uint                    `json:"created_by_id"`
	LastMessageAt *string                 `json:"last_message_at"`
	LastMessage   *MessageResponse        `json:"last_message,omitempty"`
	UnreadCount   int64                   `json:"unread_count"`
	Participants  []ParticipantResponse   `json:"participants"`
}

func toMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      dateutil.FormatDateTime(m.CreatedAt),
	}
}

func toConversationResponse(s Summary) ConversationResponse {
	out := ConversationResponse{
		ID:            s.Conversation.ID,
		Type:          s.Conversation.Type,
		Title:         s.Conversation.Title,
		CreatedByID:   s.Conversation.CreatedByID,
		LastMessageAt: dateutil.FormatDateTimePtr(s.Conversation.LastMessageAt),
		UnreadCount:   s.Unread,
		Participants:  make([]ParticipantResponse, 0, len(s.Conversation.Participants)),
	}
	if s.LastMessage != nil {
		m := toMessageResponse(s.LastMessage)
		out.LastMessage = &m
	}
	for _, p := range s.Conversation.Participants {
		pr := ParticipantResponse{UserID: p.UserID}
		if p.User != nil {
			pr.Name = p.User.Name
			pr.Email = p.User.Email
		}
		out.Participants = append(out.Participants, pr)
	}
	return out
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

// GET /api/chat/conversations
func ListConversationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		rows, err := ListConversations(database.DB, id.UserID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list conversations")
		}
		out := make([]ConversationResponse, 0, len(rows))
		for _, s := range rows {
			out = append(out, toConversationResponse(s))
		}
		return c.JSON(out)
	}
}

type CreateConversationRequest struct {
	Type           models.ConversationType `json:"type"`
	Title          string                  `json:"title"`
	ParticipantIDs []uint                  `json:"participant_ids"`
}

// POST /api/chat/conversations
func CreateConversationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateConversationRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		conv, created, err := CreateConversation(database.DB, CreateInput{
			CreatorID:      id.UserID,
			CompanyID:      id.CompanyID,
			Type:           body.Type,
			Title:          body.Title,
			ParticipantIDs: body.ParticipantIDs,
		})
		if err != nil {
			return err
		}
		if err := database.DB.Preload("Participants.User").First(conv, conv.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load conversation")
		}

		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(toConversationResponse(Summary{Conversation: *conv}))
	}
}

// GET /api/chat/conversations/:id/messages?before=&limit=
func ListMessagesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		convID, err := parseID(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		if _, err := Participant(database.DB, convID, id.UserID); err != nil {
			return err
		}

		var before uint64
		if s := c.Query("before"); s != "" {
			if before, err = strconv.ParseUint(s, 10, 64); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid before")
			}
		}
		limit := c.QueryInt("limit", DefaultPageSize)

		rows, err := Messages(database.DB, convID, uint(before), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list messages")
		}
		out := make([]MessageResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toMessageResponse(&rows[i]))
		}
		return c.JSON(out)
	}
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

// POST /api/chat/conversations/:id/messages
func SendMessageHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		convID, err := parseID(c)
		if err != nil {
			return err
		}
		var body SendMessageRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		msg, err := Send(database.DB, convID, user, body.Body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toMessageResponse(msg))
	}
}

// POST /api/chat/conversations/:id/read
func MarkReadHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		convID, err := parseID(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		if err := MarkRead(database.DB, convID, id.UserID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Conversation marked as read"})
	}
}
