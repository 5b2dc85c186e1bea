package audit

import (
	"snd-backend/internal/auth"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Recorder carries the acting user so handlers only supply the entity details.
type Recorder struct {
	UserID   uint
	UserName string
}

func RecorderFor(c *fiber.Ctx) (Recorder, error) {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return Recorder{}, err
	}
	return Recorder{UserID: user.ID, UserName: user.Name}, nil
}

func (r Recorder) Log(db *gorm.DB, companyID uint, entityType string, entityID uint, action models.AuditAction, description string, before, after any) error {
	return WriteLog(db, LogOptions{
		CompanyID:   &companyID,
		UserID:      r.UserID,
		UserName:    r.UserName,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: description,
		Before:      before,
		After:       after,
	})
}
