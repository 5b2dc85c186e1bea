package assignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateInput struct {
	EmployeeID   uint
	Type         models.AssignmentType
	Name         string
	Location     string
	ProjectID    *uint
	RentalID     *uint
	StartDate    time.Time
	EndDate      *time.Time
	Notes        string
	AssignedByID *uint
}

// Create stores a new assignment. Active assignments of the same employee that
// started earlier are completed the day before the new start. When an active
// assignment already starts on or after the new start, the new row is
// historical and ends the day before that one.
func Create(db *gorm.DB, in CreateInput) (*models.EmployeeAssignment, error) {
	if !in.Type.Valid() {
		return nil, apperror.Validation("type must be rental, project or manual")
	}
	if in.StartDate.IsZero() {
		return nil, apperror.Validation("start_date is required")
	}
	start := dateutil.Day(in.StartDate)
	if in.EndDate != nil && dateutil.Day(*in.EndDate).Before(start) {
		return nil, apperror.Validation("end_date cannot be before start_date")
	}

	var created models.EmployeeAssignment
	err := db.Transaction(func(tx *gorm.DB) error {
		name, location, err := defaultLabels(tx, in)
		if err != nil {
			return err
		}

		var active []models.EmployeeAssignment
		if err := tx.Where("employee_id = ? AND status = ?", in.EmployeeID, models.AssignmentStatusActive).
			Find(&active).Error; err != nil {
			return fmt.Errorf("load active assignments: %w", err)
		}

		a := models.EmployeeAssignment{
			EmployeeID:   in.EmployeeID,
			Type:         in.Type,
			Name:         name,
			Location:     location,
			ProjectID:    in.ProjectID,
			RentalID:     in.RentalID,
			StartDate:    start,
			Status:       models.AssignmentStatusActive,
			Notes:        in.Notes,
			AssignedByID: in.AssignedByID,
		}
		if in.EndDate != nil {
			end := dateutil.Day(*in.EndDate)
			a.EndDate = &end
			a.Status = models.AssignmentStatusCompleted
		}

		var laterStart *time.Time
		for _, prev := range active {
			prevStart := dateutil.Day(prev.StartDate)
			if !prevStart.Before(start) {
				if laterStart == nil || prevStart.Before(*laterStart) {
					s := prevStart
					laterStart = &s
				}
				continue
			}
			end := dateutil.DayBefore(start)
			if err := tx.Model(&models.EmployeeAssignment{}).Where("id = ?", prev.ID).Updates(map[string]any{
				"status":   models.AssignmentStatusCompleted,
				"end_date": end,
			}).Error; err != nil {
				return fmt.Errorf("complete assignment %d: %w", prev.ID, err)
			}
		}
		if laterStart != nil {
			end := dateutil.DayBefore(*laterStart)
			if end.Before(start) {
				end = start
			}
			if a.EndDate == nil || a.EndDate.After(end) {
				a.EndDate = &end
			}
			a.Status = models.AssignmentStatusCompleted
		}

		if err := tx.Create(&a).Error; err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func defaultLabels(tx *gorm.DB, in CreateInput) (string, string, error) {
	name := strings.TrimSpace(in.Name)
	location := strings.TrimSpace(in.Location)

	switch in.Type {
	case models.AssignmentTypeRental:
		if name == "" {
			name = "Rental Operator"
			if in.RentalID != nil {
				var r models.Rental
				if err := tx.Select("rental_number").First(&r, *in.RentalID).Error; err != nil {
					return "", "", apperror.NotFound("Rental not found")
				}
				name = "Rental Operator - " + r.RentalNumber
			}
		}
		if location == "" {
			location = "Rental Site"
		}
	case models.AssignmentTypeProject:
		var p models.Project
		if in.ProjectID != nil {
			if err := tx.Select("name", "location").First(&p, *in.ProjectID).Error; err != nil {
				return "", "", apperror.NotFound("Project not found")
			}
		}
		if name == "" {
			name = "Project Assignment"
			if p.Name != "" {
				name = "Project Assignment - " + p.Name
			}
		}
		if location == "" {
			location = p.Location
		}
		if location == "" {
			location = "Project Site"
		}
	case models.AssignmentTypeManual:
		if name == "" {
			name = strings.TrimSpace(in.Notes)
		}
		if name == "" {
			name = "Manual Assignment"
		}
	}
	if len(name) > 150 {
		name = name[:150]
	}
	return name, location, nil
}

// Complete closes one assignment. endDate defaults to today.
func Complete(db *gorm.DB, id uint, endDate *time.Time) (*models.EmployeeAssignment, error) {
	var a models.EmployeeAssignment
	if err := db.First(&a, id).Error; err != nil {
		return nil, apperror.NotFound("Assignment not found")
	}

	end := dateutil.Today()
	if endDate != nil {
		end = dateutil.Day(*endDate)
	}
	if end.Before(dateutil.Day(a.StartDate)) {
		return nil, apperror.Validation("end_date cannot be before start_date")
	}

	a.Status = models.AssignmentStatusCompleted
	a.EndDate = &end
	if err := db.Model(&a).Updates(map[string]any{"status": a.Status, "end_date": end}).Error; err != nil {
		return nil, fmt.Errorf("complete assignment %d: %w", id, err)
	}
	return &a, nil
}

// ReconcileEmployee applies Reconcile to one employee's rows and returns what changed.
func ReconcileEmployee(db *gorm.DB, employeeID uint) ([]Change, error) {
	var changes []Change
	err := db.Transaction(func(tx *gorm.DB) error {
		var rows []models.EmployeeAssignment
		if err := tx.Where("employee_id = ?", employeeID).Find(&rows).Error; err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}

		changes = Reconcile(rows)
		for _, ch := range changes {
			updates := map[string]any{"status": ch.ToStatus, "end_date": nil}
			if ch.ToEndDate != nil {
				updates["end_date"] = *ch.ToEndDate
			}
			if err := tx.Model(&models.EmployeeAssignment{}).Where("id = ?", ch.AssignmentID).Updates(updates).Error; err != nil {
				return fmt.Errorf("update assignment %d: %w", ch.AssignmentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

type ReconcileSummary struct {
	Employees int `json:"employees"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
}

// ReconcileAll reconciles every employee that has assignments. A failure for
// one employee is logged and counted; the rest still run.
func ReconcileAll(ctx context.Context, db *gorm.DB) (ReconcileSummary, error) {
	var employeeIDs []uint
	if err := db.WithContext(ctx).Model(&models.EmployeeAssignment{}).
		Distinct("employee_id").Order("employee_id").Pluck("employee_id", &employeeIDs).Error; err != nil {
		return ReconcileSummary{}, fmt.Errorf("list employees: %w", err)
	}

	var sum ReconcileSummary
	for _, id := range employeeIDs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Employees++
		changes, err := ReconcileEmployee(db.WithContext(ctx), id)
		if err != nil {
			sum.Failed++
			zap.L().Error("reconcile assignments", zap.Uint("employee_id", id), zap.Error(err))
			continue
		}
		sum.Changed += len(changes)
	}
	return sum, nil
}

// CompleteForVacation closes open assignments that began before the vacation,
// ending them the day before it starts.
func CompleteForVacation(db *gorm.DB, employeeID uint, vacationStart time.Time) (int, error) {
	return completeOpen(db, employeeID, dateutil.DayBefore(vacationStart))
}

// RestoreAfterVacation reopens the assignments CompleteForVacation closed.
func RestoreAfterVacation(db *gorm.DB, employeeID uint, vacationStart time.Time) (int, error) {
	return reopen(db, employeeID, dateutil.DayBefore(vacationStart))
}

// CompleteForExit closes open assignments on the employee's last working day.
func CompleteForExit(db *gorm.DB, employeeID uint, lastWorkingDate time.Time) (int, error) {
	return completeOpen(db, employeeID, dateutil.Day(lastWorkingDate))
}

func RestoreAfterExit(db *gorm.DB, employeeID uint, lastWorkingDate time.Time) (int, error) {
	return reopen(db, employeeID, dateutil.Day(lastWorkingDate))
}

func completeOpen(db *gorm.DB, employeeID uint, end time.Time) (int, error) {
	var open []models.EmployeeAssignment
	if err := db.Where("employee_id = ? AND status <> ?", employeeID, models.AssignmentStatusCompleted).
		Find(&open).Error; err != nil {
		return 0, fmt.Errorf("load open assignments: %w", err)
	}

	n := 0
	for _, a := range open {
		if dateutil.Day(a.StartDate).After(end) {
			continue
		}
		if err := db.Model(&models.EmployeeAssignment{}).Where("id = ?", a.ID).Updates(map[string]any{
			"status":   models.AssignmentStatusCompleted,
			"end_date": end,
		}).Error; err != nil {
			return n, fmt.Errorf("complete assignment %d: %w", a.ID, err)
		}
		n++
	}
	return n, nil
}

func reopen(db *gorm.DB, employeeID uint, endedOn time.Time) (int, error) {
	var done []models.EmployeeAssignment
	if err := db.Where("employee_id = ? AND status = ? AND end_date IS NOT NULL", employeeID, models.AssignmentStatusCompleted).
		Find(&done).Error; err != nil {
		return 0, fmt.Errorf("load completed assignments: %w", err)
	}

	n := 0
	for _, a := range done {
		if !dateutil.SameDay(*a.EndDate, endedOn) {
			continue
		}
		if err := db.Model(&models.EmployeeAssignment{}).Where("id = ?", a.ID).Updates(map[string]any{
			"status":   models.AssignmentStatusActive,
			"end_date": nil,
		}).Error; err != nil {
			return n, fmt.Errorf("reopen assignment %d: %w", a.ID, err)
		}
		n++
	}
	return n, nil
}
