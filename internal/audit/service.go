package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"snd-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LogOptions struct {
	CompanyID   *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Entity types that can be undone, mapped to a constructor for their model.
var entities = map[string]func() any{
	"employee":              func() any { return &models.Employee{} },
	"department":            func() any { return &models.Department{} },
	"employee_assignment":   func() any { return &models.EmployeeAssignment{} },
	"customer":              func() any { return &models.Customer{} },
	"project":               func() any { return &models.Project{} },
	"equipment":             func() any { return &models.Equipment{} },
	"equipment_maintenance": func() any { return &models.EquipmentMaintenance{} },
}

// WriteLog stores one audit entry using db, which may be a transaction.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	// jsonb rejects empty strings
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		CompanyID:   opts.CompanyID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := db.Create(&log).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// UndoLog reverts the change recorded by a log entry and records the undo.
func UndoLog(db *gorm.DB, logID uint, userID uint, userName string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var log models.AuditLog
		if err := tx.First(&log, "id = ?", logID).Error; err != nil {
			return fmt.Errorf("log not found: %w", err)
		}

		if log.IsUndone {
			return fmt.Errorf("this change was already undone")
		}
		if log.Action == models.AuditActionUndo {
			return fmt.Errorf("undo entries cannot be undone")
		}

		newEntity, ok := entities[log.EntityType]
		if !ok {
			return fmt.Errorf("unknown entity type: %s", log.EntityType)
		}

		switch log.Action {
		case models.AuditActionCreate:
			if err := tx.Delete(newEntity(), "id = ?", log.EntityID).Error; err != nil {
				return fmt.Errorf("delete entity: %w", err)
			}

		case models.AuditActionUpdate:
			entity := newEntity()
			if err := json.Unmarshal([]byte(log.BeforeData), entity); err != nil {
				return fmt.Errorf("decode previous state: %w", err)
			}
			if err := tx.Omit(clause.Associations).Save(entity).Error; err != nil {
				return fmt.Errorf("restore entity: %w", err)
			}

		case models.AuditActionDelete:
			entity := newEntity()
			if err := json.Unmarshal([]byte(log.BeforeData), entity); err != nil {
				return fmt.Errorf("decode deleted state: %w", err)
			}
			// Recreated with its original id so references stay valid.
			if err := tx.Omit(clause.Associations).Create(entity).Error; err != nil {
				return fmt.Errorf("recreate entity: %w", err)
			}

		default:
			return fmt.Errorf("action %s cannot be undone", log.Action)
		}

		now := time.Now()
		log.IsUndone = true
		log.UndoneBy = &userID
		log.UndoneAt = &now
		if err := tx.Save(&log).Error; err != nil {
			return fmt.Errorf("mark log undone: %w", err)
		}

		undoLog := models.AuditLog{
			CompanyID:   log.CompanyID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  log.EntityType,
			EntityID:    log.EntityID,
			Action:      models.AuditActionUndo,
			Description: fmt.Sprintf("Undone: %s", log.Description),
			BeforeData:  log.AfterData,
			AfterData:   log.BeforeData,
			Undone:      true,
		}
		if err := tx.Create(&undoLog).Error; err != nil {
			return fmt.Errorf("write undo log: %w", err)
		}
		return nil
	})
}
