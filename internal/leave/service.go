package leave

import (
	"fmt"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/assignment"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateInput struct {
	EmployeeID uint
	LeaveType  models.LeaveType
	StartDate  time.Time
	EndDate    time.Time
	Days       int
	Reason     string
}

// Create files a pending leave request. Days default to the inclusive span.
// A request may not overlap another pending or approved one.
func Create(db *gorm.DB, in CreateInput) (*models.EmployeeLeave, error) {
	if !in.LeaveType.Valid() {
		return nil, apperror.Validation("invalid leave_type")
	}
	start, end := dateutil.Day(in.StartDate), dateutil.Day(in.EndDate)
	if end.Before(start) {
		return nil, apperror.Validation("end_date cannot be before start_date")
	}
	if in.Days < 0 {
		return nil, apperror.Validation("days cannot be negative")
	}
	days := in.Days
	if days == 0 {
		days = dateutil.DaysInclusive(start, end)
	}

	var existing []models.EmployeeLeave
	if err := db.Where("employee_id = ? AND status IN ?", in.EmployeeID,
		[]models.LeaveStatus{models.LeaveStatusPending, models.LeaveStatusApproved}).
		Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	for _, l := range existing {
		if !dateutil.Day(l.StartDate).After(end) && !dateutil.Day(l.EndDate).Before(start) {
			return nil, apperror.Newf(apperror.CodeConflict, "Overlaps %s leave from %s to %s",
				l.LeaveType, dateutil.Format(l.StartDate), dateutil.Format(l.EndDate))
		}
	}

	l := models.EmployeeLeave{
		EmployeeID: in.EmployeeID,
		LeaveType:  in.LeaveType,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		Reason:     in.Reason,
		Status:     models.LeaveStatusPending,
	}
	if err := db.Create(&l).Error; err != nil {
		return nil, fmt.Errorf("create leave: %w", err)
	}
	return &l, nil
}

func loadPending(tx *gorm.DB, id uint) (*models.EmployeeLeave, error) {
	var l models.EmployeeLeave
	if err := tx.First(&l, id).Error; err != nil {
		return nil, apperror.NotFound("Leave request not found")
	}
	if l.Status != models.LeaveStatusPending {
		return nil, apperror.Newf(apperror.CodeConflict, "Leave request is already %s", l.Status)
	}
	return &l, nil
}

// Approve approves a pending request. Annual and vacation leave close the
// employee's open assignments the day before the leave starts.
func Approve(db *gorm.DB, id, approverID uint) (*models.EmployeeLeave, error) {
	var l *models.EmployeeLeave
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if l, err = loadPending(tx, id); err != nil {
			return err
		}
		now := time.Now()
		l.Status = models.LeaveStatusApproved
		l.ApprovedByID = &approverID
		l.ApprovedAt = &now
		if err := tx.Model(l).Updates(map[string]any{
			"status":         l.Status,
			"approved_by_id": approverID,
			"approved_at":    now,
		}).Error; err != nil {
			return fmt.Errorf("approve leave %d: %w", id, err)
		}

		if l.LeaveType.TakesEmployeeOffSite() {
			n, err := assignment.CompleteForVacation(tx, l.EmployeeID, l.StartDate)
			if err != nil {
				return err
			}
			if n > 0 {
				zap.L().Info("assignments closed for leave", zap.Uint("employee_id", l.EmployeeID), zap.Int("count", n))
			}
		}

		return notification.NotifyEmployee(tx, l.EmployeeID, notification.Input{
			Type:      models.NotificationSuccess,
			Title:     "Leave request approved",
			Message:   fmt.Sprintf("Your %s leave from %s to %s was approved.", l.LeaveType, dateutil.Format(l.StartDate), dateutil.Format(l.EndDate)),
			Data:      map[string]any{"leave_id": l.ID},
			ActionURL: fmt.Sprintf("/leave-requests/%d", l.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func Reject(db *gorm.DB, id, userID uint, reason string) (*models.EmployeeLeave, error) {
	var l *models.EmployeeLeave
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if l, err = loadPending(tx, id); err != nil {
			return err
		}
		now := time.Now()
		l.Status = models.LeaveStatusRejected
		l.RejectedByID = &userID
		l.RejectedAt = &now
		l.RejectionReason = reason
		if err := tx.Model(l).Updates(map[string]any{
			"status":           l.Status,
			"rejected_by_id":   userID,
			"rejected_at":      now,
			"rejection_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("reject leave %d: %w", id, err)
		}

		msg := fmt.Sprintf("Your %s leave from %s to %s was rejected.", l.LeaveType, dateutil.Format(l.StartDate), dateutil.Format(l.EndDate))
		if reason != "" {
			msg += " Reason: " + reason
		}
		return notification.NotifyEmployee(tx, l.EmployeeID, notification.Input{
			Type:      models.NotificationWarning,
			Title:     "Leave request rejected",
			Message:   msg,
			Data:      map[string]any{"leave_id": l.ID},
			ActionURL: fmt.Sprintf("/leave-requests/%d", l.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Delete removes a request. Assignments closed by an approved vacation are reopened.
func Delete(db *gorm.DB, l *models.EmployeeLeave) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if l.Status == models.LeaveStatusApproved && l.LeaveType.TakesEmployeeOffSite() {
			if _, err := assignment.RestoreAfterVacation(tx, l.EmployeeID, l.StartDate); err != nil {
				return err
			}
		}
		return tx.Delete(&models.EmployeeLeave{}, l.ID).Error
	})
}
