package payroll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"snd-backend/internal/advance"
	"snd-backend/internal/apperror"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	Currency                  = "SAR"
	DefaultOvertimeMultiplier = 1.5
	// Hourly rate is basic / 30 days / 8 hours.
	daysPerMonth = 30
	hoursPerDay  = 8
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidatePeriod accepts months 1-12 of years 2000-2100.
func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return apperror.Validation("month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return apperror.Validation("year must be between 2000 and 2100")
	}
	return nil
}

// OvertimePay returns the overtime amount and the payslip line describing it.
// A fixed hourly rate wins over the multiplier.
func OvertimePay(emp *models.Employee, hours float64) (float64, string) {
	if hours <= 0 {
		return 0, ""
	}
	if emp.OvertimeFixedRate > 0 {
		return round2(hours * emp.OvertimeFixedRate),
			fmt.Sprintf("Overtime Pay (Fixed Rate: %s SAR/hr)", strconv.FormatFloat(emp.OvertimeFixedRate, 'f', -1, 64))
	}
	multiplier := emp.OvertimeRateMultiplier
	if multiplier <= 0 {
		multiplier = DefaultOvertimeMultiplier
	}
	hourly := emp.BasicSalary / daysPerMonth / hoursPerDay
	return round2(hours * hourly * multiplier),
		fmt.Sprintf("Overtime Pay (%sx Rate)", strconv.FormatFloat(multiplier, 'f', -1, 64))
}

type GenerateInput struct {
	CompanyID   uint
	Month       int
	Year        int
	EmployeeIDs []uint
	// Bonuses are one-off amounts keyed by employee id.
	Bonuses map[uint]float64
	RunByID *uint
}

type GenerateResult struct {
	RunID      uint     `json:"run_id"`
	BatchID    string   `json:"batch_id"`
	Generated  int      `json:"generated"`
	Skipped    int      `json:"skipped"`
	Total      float64  `json:"total_amount"`
	Errors     []string `json:"errors"`
	PayrollIDs []uint   `json:"payroll_ids"`
}

// Generate creates pending payrolls for the active employees of a company.
// Employees that already have a payroll for the period are skipped, so
// running it twice changes nothing.
func Generate(ctx context.Context, db *gorm.DB, in GenerateInput) (*GenerateResult, error) {
	if err := ValidatePeriod(in.Month, in.Year); err != nil {
		return nil, err
	}
	for _, b := range in.Bonuses {
		if b < 0 {
			return nil, apperror.Validation("bonuses cannot be negative")
		}
	}
	db = db.WithContext(ctx)

	q := db.Where("company_id = ? AND status = ?", in.CompanyID, models.EmployeeStatusActive)
	if len(in.EmployeeIDs) > 0 {
		q = q.Where("id IN ?", in.EmployeeIDs)
	}
	var employees []models.Employee
	if err := q.Order("id ASC").Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}

	start, end := dateutil.MonthRange(in.Year, in.Month)
	res := &GenerateResult{BatchID: uuid.NewString(), Errors: []string{}, PayrollIDs: []uint{}}

	run := models.PayrollRun{
		CompanyID: in.CompanyID,
		BatchID:   res.BatchID,
		Month:     in.Month,
		Year:      in.Year,
		Status:    string(models.PayrollStatusPending),
		RunByID:   in.RunByID,
		RunAt:     time.Now(),
	}
	if err := db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("create payroll run: %w", err)
	}
	res.RunID = run.ID

	for i := range employees {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		emp := &employees[i]
		p, err := generateOne(db, emp, in, start, end, run.ID)
		switch {
		case errors.Is(err, errExists):
			res.Skipped++
		case err != nil:
			msg := fmt.Sprintf("%s: %v", emp.FullName(), err)
			res.Errors = append(res.Errors, msg)
			zap.L().Error("payroll generation failed", zap.Uint("employee_id", emp.ID), zap.Error(err))
		default:
			res.Generated++
			res.Total = round2(res.Total + p.FinalAmount)
			res.PayrollIDs = append(res.PayrollIDs, p.ID)
		}
	}

	if err := db.Model(&run).Updates(map[string]any{
		"total_employees": res.Generated,
		"total_amount":    res.Total,
	}).Error; err != nil {
		return nil, fmt.Errorf("update payroll run: %w", err)
	}
	zap.L().Info("payroll generated",
		zap.String("batch_id", res.BatchID),
		zap.Int("month", in.Month), zap.Int("year", in.Year),
		zap.Int("generated", res.Generated), zap.Int("skipped", res.Skipped))
	return res, nil
}

var errExists = errors.New("payroll already exists")

// generateOne builds one payroll: basic salary, overtime from the period's
// timesheets, an optional bonus and recoveries of approved advances. Advance
// deductions never take the final amount below zero.
func generateOne(db *gorm.DB, emp *models.Employee, in GenerateInput, start, end time.Time, runID uint) (*models.Payroll, error) {
	var p models.Payroll
	err := db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Payroll{}).
			Where("employee_id = ? AND month = ? AND year = ?", emp.ID, in.Month, in.Year).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errExists
		}

		var sheets []models.Timesheet
		if err := tx.Where("employee_id = ? AND status <> ?", emp.ID, models.TimesheetStatusRejected).
			Find(&sheets).Error; err != nil {
			return fmt.Errorf("load timesheets: %w", err)
		}
		var hours, overtime float64
		for _, ts := range sheets {
			d := dateutil.Day(ts.Date)
			if d.Before(start) || !d.Before(end) {
				continue
			}
			hours += ts.HoursWorked
			overtime += ts.OvertimeHours
		}

		overtimePay, overtimeLine := OvertimePay(emp, overtime)
		bonus := round2(in.Bonuses[emp.ID])
		gross := round2(emp.BasicSalary + overtimePay + bonus)

		deductions, err := advance.Plan(tx, emp.ID, gross)
		if err != nil {
			return err
		}
		var deducted float64
		for _, d := range deductions {
			deducted += d.Amount
		}
		deducted = round2(deducted)

		p = models.Payroll{
			EmployeeID:      emp.ID,
			Month:           in.Month,
			Year:            in.Year,
			PayrollRunID:    &runID,
			BaseSalary:      emp.BasicSalary,
			TotalHours:      hours,
			OvertimeHours:   overtime,
			OvertimeAmount:  overtimePay,
			BonusAmount:     bonus,
			DeductionAmount: deducted,
			FinalAmount:     round2(gross - deducted),
			Currency:        Currency,
			Status:          models.PayrollStatusPending,
			Notes:           fmt.Sprintf("Generated for %d/%d", in.Month, in.Year),
		}
		p.Items = []models.PayrollItem{{
			Type:        models.PayrollItemEarnings,
			Description: "Basic Salary",
			Amount:      emp.BasicSalary,
			IsTaxable:   true,
			SortOrder:   1,
		}}
		if overtime > 0 {
			p.Items = append(p.Items, models.PayrollItem{
				Type:        models.PayrollItemOvertime,
				Description: overtimeLine,
				Amount:      overtimePay,
				IsTaxable:   true,
				SortOrder:   2,
			})
		}
		if bonus > 0 {
			p.Items = append(p.Items, models.PayrollItem{
				Type:        models.PayrollItemBonus,
				Description: "Bonus",
				Amount:      bonus,
				IsTaxable:   true,
				SortOrder:   3,
			})
		}
		for i, d := range deductions {
			p.Items = append(p.Items, models.PayrollItem{
				Type:        models.PayrollItemDeduction,
				Description: "Advance Repayment: " + d.Reason,
				Amount:      d.Amount,
				SortOrder:   4 + i,
			})
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return advance.Recover(tx, emp.ID, p.ID, dateutil.DayBefore(end), in.RunByID, deductions)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Approve marks a pending payroll approved and tells the employee.
func Approve(db *gorm.DB, id, approverID uint) (*models.Payroll, error) {
	var p models.Payroll
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return apperror.NotFound("Payroll not found")
		}
		if p.Status != models.PayrollStatusPending {
			return apperror.Newf(apperror.CodeConflict, "Payroll is already %s", p.Status)
		}
		now := time.Now()
		p.Status = models.PayrollStatusApproved
		p.ApprovedByID = &approverID
		p.ApprovedAt = &now
		if err := tx.Model(&p).Updates(map[string]any{
			"status":         p.Status,
			"approved_by_id": approverID,
			"approved_at":    now,
		}).Error; err != nil {
			return fmt.Errorf("approve payroll %d: %w", id, err)
		}
		return notification.NotifyEmployee(tx, p.EmployeeID, notification.Input{
			Type:      models.NotificationSuccess,
			Title:     "Payroll approved",
			Message:   fmt.Sprintf("Your payroll for %d/%d was approved: %.2f %s.", p.Month, p.Year, p.FinalAmount, p.Currency),
			Data:      map[string]any{"payroll_id": p.ID},
			ActionURL: fmt.Sprintf("/payroll/%d", p.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Pay marks an approved payroll paid.
func Pay(db *gorm.DB, id uint) (*models.Payroll, error) {
	var p models.Payroll
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return apperror.NotFound("Payroll not found")
		}
		if p.Status != models.PayrollStatusApproved {
			return apperror.Newf(apperror.CodeConflict, "Only approved payrolls can be paid, this one is %s", p.Status)
		}
		now := time.Now()
		res := tx.Model(&models.Payroll{}).
			Where("id = ? AND status = ?", p.ID, models.PayrollStatusApproved).
			Updates(map[string]any{"status": models.PayrollStatusPaid, "paid_at": now})
		if res.Error != nil {
			return fmt.Errorf("pay payroll %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Newf(apperror.CodeConflict, "Payroll was paid by another request")
		}
		p.Status = models.PayrollStatusPaid
		p.PaidAt = &now
		return notification.NotifyEmployee(tx, p.EmployeeID, notification.Input{
			Type:      models.NotificationSuccess,
			Title:     "Salary paid",
			Message:   fmt.Sprintf("Your salary for %d/%d was paid: %.2f %s.", p.Month, p.Year, p.FinalAmount, p.Currency),
			Data:      map[string]any{"payroll_id": p.ID},
			ActionURL: fmt.Sprintf("/payroll/%d", p.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
