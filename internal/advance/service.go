package advance

import (
	"fmt"
	"math"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"

	"gorm.io/gorm"
)

type CreateInput struct {
	EmployeeID       uint
	Amount           float64
	Reason           string
	MonthlyDeduction float64
	Notes            string
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Create files a pending advance request.
func Create(db *gorm.DB, in CreateInput) (*models.AdvancePayment, error) {
	if in.Amount <= 0 {
		return nil, apperror.Validation("amount must be greater than zero")
	}
	if in.Reason == "" {
		return nil, apperror.Validation("reason is required")
	}
	if in.MonthlyDeduction < 0 || in.MonthlyDeduction > in.Amount {
		return nil, apperror.Validation("monthly_deduction must be between 0 and the amount")
	}
	a := models.AdvancePayment{
		EmployeeID:       in.EmployeeID,
		Amount:           round2(in.Amount),
		Reason:           in.Reason,
		MonthlyDeduction: round2(in.MonthlyDeduction),
		Notes:            in.Notes,
		Status:           models.AdvanceStatusPending,
	}
	if err := db.Create(&a).Error; err != nil {
		return nil, fmt.Errorf("create advance: %w", err)
	}
	return &a, nil
}

func loadPending(tx *gorm.DB, id uint) (*models.AdvancePayment, error) {
	var a models.AdvancePayment
	if err := tx.First(&a, id).Error; err != nil {
		return nil, apperror.NotFound("Advance not found")
	}
	if a.Status != models.AdvanceStatusPending {
		return nil, apperror.Newf(apperror.CodeConflict, "Advance is already %s", a.Status)
	}
	return &a, nil
}

// Approve marks a pending advance as paid out. It is recovered from the
// employee's next payrolls.
func Approve(db *gorm.DB, id, approverID uint) (*models.AdvancePayment, error) {
	var a *models.AdvancePayment
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if a, err = loadPending(tx, id); err != nil {
			return err
		}
		now := time.Now()
		paid := dateutil.Today()
		a.Status = models.AdvanceStatusApproved
		a.ApprovedByID = &approverID
		a.ApprovedAt = &now
		a.PaymentDate = &paid
		if err := tx.Model(a).Updates(map[string]any{
			"status":         a.Status,
			"approved_by_id": approverID,
			"approved_at":    now,
			"payment_date":   paid,
		}).Error; err != nil {
			return fmt.Errorf("approve advance %d: %w", id, err)
		}
		return notification.NotifyEmployee(tx, a.EmployeeID, notification.Input{
			Type:      models.NotificationSuccess,
			Title:     "Advance approved",
			Message:   fmt.Sprintf("Your advance of %.2f was approved.", a.Amount),
			Data:      map[string]any{"advance_id": a.ID},
			ActionURL: fmt.Sprintf("/advances/%d", a.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func Reject(db *gorm.DB, id, userID uint, reason string) (*models.AdvancePayment, error) {
	var a *models.AdvancePayment
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if a, err = loadPending(tx, id); err != nil {
			return err
		}
		now := time.Now()
		a.Status = models.AdvanceStatusRejected
		a.RejectedByID = &userID
		a.RejectedAt = &now
		a.RejectionReason = reason
		if err := tx.Model(a).Updates(map[string]any{
			"status":           a.Status,
			"rejected_by_id":   userID,
			"rejected_at":      now,
			"rejection_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("reject advance %d: %w", id, err)
		}
		msg := fmt.Sprintf("Your advance request of %.2f was rejected.", a.Amount)
		if reason != "" {
			msg += " Reason: " + reason
		}
		return notification.NotifyEmployee(tx, a.EmployeeID, notification.Input{
			Type:      models.NotificationWarning,
			Title:     "Advance rejected",
			Message:   msg,
			Data:      map[string]any{"advance_id": a.ID},
			ActionURL: fmt.Sprintf("/advances/%d", a.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes a pending or rejected advance. Advances with money out stay.
func Delete(db *gorm.DB, a *models.AdvancePayment) error {
	if a.Status != models.AdvanceStatusPending && a.Status != models.AdvanceStatusRejected {
		return apperror.Newf(apperror.CodeConflict, "An %s advance cannot be deleted", a.Status)
	}
	return db.Delete(&models.AdvancePayment{}, a.ID).Error
}

// Deduction is one advance recovered by a payroll.
type Deduction struct {
	AdvanceID uint
	Amount    float64
	Reason    string
}

// Plan returns what the employee's approved advances would deduct from a
// payroll, oldest advance first. Each advance gives its monthly deduction,
// or its whole balance when none is set, and the total never exceeds limit.
func Plan(tx *gorm.DB, employeeID uint, limit float64) ([]Deduction, error) {
	var open []models.AdvancePayment
	if err := tx.Where("employee_id = ? AND status = ?", employeeID, models.AdvanceStatusApproved).
		Order("approved_at, id").Find(&open).Error; err != nil {
		return nil, fmt.Errorf("load advances: %w", err)
	}
	var out []Deduction
	for i := range open {
		if limit <= 0 {
			break
		}
		a := &open[i]
		amount := a.Outstanding()
		if a.MonthlyDeduction > 0 && a.MonthlyDeduction < amount {
			amount = a.MonthlyDeduction
		}
		amount = round2(math.Min(amount, limit))
		if amount <= 0 {
			continue
		}
		limit -= amount
		out = append(out, Deduction{AdvanceID: a.ID, Amount: amount, Reason: a.Reason})
	}
	return out, nil
}

// Recover books planned deductions against a payroll. Advances whose balance
// reaches zero become repaid.
func Recover(tx *gorm.DB, employeeID, payrollID uint, on time.Time, recordedBy *uint, ds []Deduction) error {
	for _, d := range ds {
		var a models.AdvancePayment
		if err := tx.First(&a, d.AdvanceID).Error; err != nil {
			return fmt.Errorf("load advance %d: %w", d.AdvanceID, err)
		}
		if err := tx.Create(&models.AdvanceRepayment{
			AdvancePaymentID: a.ID,
			EmployeeID:       employeeID,
			PayrollID:        &payrollID,
			Amount:           d.Amount,
			PaymentDate:      dateutil.Day(on),
			RecordedByID:     recordedBy,
			Notes:            fmt.Sprintf("Payroll #%d", payrollID),
		}).Error; err != nil {
			return fmt.Errorf("record repayment: %w", err)
		}
		repaid := round2(a.RepaidAmount + d.Amount)
		updates := map[string]any{"repaid_amount": repaid}
		if repaid >= a.Amount {
			updates["status"] = models.AdvanceStatusRepaid
		}
		if err := tx.Model(&models.AdvancePayment{}).Where("id = ?", a.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update advance %d: %w", a.ID, err)
		}
	}
	return nil
}
