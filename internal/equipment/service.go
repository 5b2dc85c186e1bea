package equipment

import (
	"fmt"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"gorm.io/gorm"
)

type AssignInput struct {
	Type       models.AssignmentType
	RentalID   *uint
	ProjectID  *uint
	EmployeeID *uint
	StartDate  time.Time
	Notes      string
}

// Assign deploys a piece of equipment. Whatever it was deployed to before is
// closed the day before the new start, including rental lines of other rentals.
func Assign(db *gorm.DB, equipmentID uint, in AssignInput) (*models.EquipmentRentalHistory, error) {
	if !in.Type.Valid() {
		return nil, apperror.Validation("assignment_type must be rental, project or manual")
	}
	if in.Type == models.AssignmentTypeRental && in.RentalID == nil {
		return nil, apperror.Validation("rental_id is required for rental assignments")
	}
	if in.Type == models.AssignmentTypeProject && in.ProjectID == nil {
		return nil, apperror.Validation("project_id is required for project assignments")
	}
	if in.StartDate.IsZero() {
		in.StartDate = dateutil.Today()
	}
	start := dateutil.Day(in.StartDate)

	var created models.EquipmentRentalHistory
	err := db.Transaction(func(tx *gorm.DB) error {
		var eq models.Equipment
		if err := tx.First(&eq, equipmentID).Error; err != nil {
			return apperror.NotFound("Equipment not found")
		}
		if eq.Status == models.EquipmentStatusOutOfService || eq.Status == models.EquipmentStatusUnderMaintenance {
			return apperror.Newf(apperror.CodeConflict, "Equipment %s is %s", eq.Name, eq.Status)
		}

		var active []models.EquipmentRentalHistory
		if err := tx.Where("equipment_id = ? AND status = ?", eq.ID, models.HistoryStatusActive).Find(&active).Error; err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		for _, h := range active {
			end := dateutil.DayBefore(start)
			if end.Before(dateutil.Day(h.StartDate)) {
				end = dateutil.Day(h.StartDate)
			}
			if err := tx.Model(&models.EquipmentRentalHistory{}).Where("id = ?", h.ID).Updates(map[string]any{
				"status":   models.HistoryStatusCompleted,
				"end_date": end,
			}).Error; err != nil {
				return fmt.Errorf("complete history %d: %w", h.ID, err)
			}
		}

		items := tx.Model(&models.RentalItem{}).Where("equipment_id = ? AND status = ?", eq.ID, models.AssignmentStatusActive)
		if in.RentalID != nil {
			items = items.Where("rental_id <> ?", *in.RentalID)
		}
		if err := items.Update("status", models.AssignmentStatusCompleted).Error; err != nil {
			return fmt.Errorf("complete rental items: %w", err)
		}

		created = models.EquipmentRentalHistory{
			EquipmentID:    eq.ID,
			AssignmentType: in.Type,
			RentalID:       in.RentalID,
			ProjectID:      in.ProjectID,
			EmployeeID:     in.EmployeeID,
			StartDate:      start,
			Status:         models.HistoryStatusActive,
			Notes:          in.Notes,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("create history: %w", err)
		}
		return tx.Model(&eq).Update("status", models.EquipmentStatusAssigned).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// CompleteHistory closes one deployment and re-derives the equipment status.
func CompleteHistory(db *gorm.DB, historyID uint, endDate *time.Time) (*models.EquipmentRentalHistory, error) {
	var h models.EquipmentRentalHistory
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&h, historyID).Error; err != nil {
			return apperror.NotFound("Assignment not found")
		}
		if h.Status == models.HistoryStatusCompleted {
			return apperror.Conflict("Assignment is already completed")
		}
		end := dateutil.Today()
		if endDate != nil {
			end = dateutil.Day(*endDate)
		}
		if end.Before(dateutil.Day(h.StartDate)) {
			return apperror.Validation("end_date cannot be before start_date")
		}
		h.Status = models.HistoryStatusCompleted
		h.EndDate = &end
		if err := tx.Model(&h).Updates(map[string]any{"status": h.Status, "end_date": end}).Error; err != nil {
			return err
		}
		_, err := RefreshStatus(tx, h.EquipmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ReleaseRental closes every active deployment belonging to a rental.
func ReleaseRental(db *gorm.DB, rentalID uint, end time.Time) error {
	var active []models.EquipmentRentalHistory
	if err := db.Where("rental_id = ? AND status = ?", rentalID, models.HistoryStatusActive).Find(&active).Error; err != nil {
		return fmt.Errorf("load rental history: %w", err)
	}
	for _, h := range active {
		e := dateutil.Day(end)
		if e.Before(dateutil.Day(h.StartDate)) {
			e = dateutil.Day(h.StartDate)
		}
		if err := db.Model(&models.EquipmentRentalHistory{}).Where("id = ?", h.ID).Updates(map[string]any{
			"status":   models.HistoryStatusCompleted,
			"end_date": e,
		}).Error; err != nil {
			return fmt.Errorf("complete history %d: %w", h.ID, err)
		}
		if _, err := RefreshStatus(db, h.EquipmentID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshStatus derives the status from open maintenance and active
// deployments. Out-of-service equipment is left alone.
func RefreshStatus(db *gorm.DB, equipmentID uint) (models.EquipmentStatus, error) {
	var eq models.Equipment
	if err := db.First(&eq, equipmentID).Error; err != nil {
		return "", apperror.NotFound("Equipment not found")
	}
	if eq.Status == models.EquipmentStatusOutOfService {
		return eq.Status, nil
	}

	want, err := derivedStatus(db, eq.ID)
	if err != nil {
		return "", err
	}
	if want != eq.Status {
		if err := db.Model(&eq).Update("status", want).Error; err != nil {
			return "", fmt.Errorf("update equipment %d status: %w", eq.ID, err)
		}
	}
	return want, nil
}

func derivedStatus(db *gorm.DB, equipmentID uint) (models.EquipmentStatus, error) {
	openMaint, err := hasOpenMaintenance(db, equipmentID)
	if err != nil {
		return "", err
	}
	if openMaint {
		return models.EquipmentStatusUnderMaintenance, nil
	}
	deployed, err := hasActiveHistory(db, equipmentID)
	if err != nil {
		return "", err
	}
	if deployed {
		return models.EquipmentStatusAssigned, nil
	}
	return models.EquipmentStatusAvailable, nil
}

func hasOpenMaintenance(db *gorm.DB, equipmentID uint) (bool, error) {
	var n int64
	err := db.Model(&models.EquipmentMaintenance{}).
		Where("equipment_id = ? AND status IN ?", equipmentID,
			[]models.MaintenanceStatus{models.MaintenanceStatusOpen, models.MaintenanceStatusInProgress}).
		Count(&n).Error
	return n > 0, err
}

func hasActiveHistory(db *gorm.DB, equipmentID uint) (bool, error) {
	var n int64
	err := db.Model(&models.EquipmentRentalHistory{}).
		Where("equipment_id = ? AND status = ?", equipmentID, models.HistoryStatusActive).
		Count(&n).Error
	return n > 0, err
}
