package equipment

import (
	"context"
	"fmt"
	"time"

	"snd-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StatusIssue struct {
	EquipmentID   uint                   `json:"equipment_id"`
	Name          string                 `json:"name"`
	ERPNextID     string                 `json:"erpnext_id"`
	CurrentStatus models.EquipmentStatus `json:"current_status"`
	Issue         string                 `json:"issue"`
	Action        string                 `json:"action"`
}

type StatusReport struct {
	Checked int           `json:"checked"`
	Fixed   int           `json:"fixed"`
	Issues  []StatusIssue `json:"issues"`
}

// CheckStatuses repairs statuses that disagree with maintenance and
// deployment records. companyID nil checks every company.
func CheckStatuses(ctx context.Context, db *gorm.DB, companyID *uint) (*StatusReport, error) {
	db = db.WithContext(ctx)

	q := db.Where("status IN ?", []models.EquipmentStatus{
		models.EquipmentStatusAvailable, models.EquipmentStatusAssigned, models.EquipmentStatusUnderMaintenance,
	})
	if companyID != nil {
		q = q.Where("company_id = ?", *companyID)
	}
	var all []models.Equipment
	if err := q.Order("id").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("load equipment: %w", err)
	}

	report := &StatusReport{Issues: []StatusIssue{}}
	for _, eq := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		openMaint, err := hasOpenMaintenance(db, eq.ID)
		if err != nil {
			return report, err
		}
		deployed, err := hasActiveHistory(db, eq.ID)
		if err != nil {
			return report, err
		}

		var want models.EquipmentStatus
		var issue string
		switch {
		case eq.Status == models.EquipmentStatusUnderMaintenance && !openMaint:
			want, issue = models.EquipmentStatusAvailable, "Under maintenance without open maintenance records"
		case eq.Status == models.EquipmentStatusAssigned && !deployed:
			want, issue = models.EquipmentStatusAvailable, "Assigned without an active assignment"
		case eq.Status == models.EquipmentStatusAvailable && openMaint:
			want, issue = models.EquipmentStatusUnderMaintenance, "Available with open maintenance records"
		case eq.Status == models.EquipmentStatusAvailable && deployed:
			want, issue = models.EquipmentStatusAssigned, "Available with an active assignment"
		default:
			continue
		}

		if err := db.Model(&models.Equipment{}).Where("id = ?", eq.ID).Update("status", want).Error; err != nil {
			return report, fmt.Errorf("update equipment %d: %w", eq.ID, err)
		}
		report.Fixed++
		report.Issues = append(report.Issues, StatusIssue{
			EquipmentID:   eq.ID,
			Name:          eq.Name,
			ERPNextID:     eq.ERPNextID,
			CurrentStatus: eq.Status,
			Issue:         issue,
			Action:        fmt.Sprintf("Changed status to %s", want),
		})
	}
	return report, nil
}

// Monitor runs CheckStatuses on a fixed interval until its context ends.
type Monitor struct {
	DB       *gorm.DB
	Interval time.Duration
}

func (m *Monitor) Run(ctx context.Context) {
	if m.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := CheckStatuses(ctx, m.DB, nil)
			if err != nil {
				if ctx.Err() == nil {
					zap.L().Error("equipment status check failed", zap.Error(err))
				}
				continue
			}
			if report.Fixed > 0 {
				zap.L().Info("equipment status check",
					zap.Int("checked", report.Checked), zap.Int("fixed", report.Fixed))
			}
		}
	}
}
