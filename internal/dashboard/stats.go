// Package dashboard serves the summary numbers and charts on the landing page.
package dashboard

import (
	"context"
	"fmt"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/models"
	"snd-backend/internal/notification"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type EmployeeStats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	OnLeave int64 `json:"on_leave"`
}

type Stats struct {
	Employees           EmployeeStats                    `json:"employees"`
	EquipmentByStatus   map[models.EquipmentStatus]int64 `json:"equipment_by_status"`
	ActiveRentals       int64                            `json:"active_rentals"`
	ActiveProjects      int64                            `json:"active_projects"`
	PendingLeaves       int64                            `json:"pending_leaves"`
	PendingTimesheets   int64                            `json:"pending_timesheets"`
	UnreadNotifications int64                            `json:"unread_notifications"`
}

// Scope narrows the counts to what the caller may see.
type Scope struct {
	Company   func(*gorm.DB) *gorm.DB
	Employees func(*gorm.DB) *gorm.DB
	UserID    uint
}

// Collect runs every count concurrently and fails if any of them fails.
func Collect(ctx context.Context, db *gorm.DB, s Scope) (*Stats, error) {
	st := &Stats{EquipmentByStatus: map[models.EquipmentStatus]int64{
		models.EquipmentStatusAvailable:        0,
		models.EquipmentStatusAssigned:         0,
		models.EquipmentStatusUnderMaintenance: 0,
		models.EquipmentStatusOutOfService:     0,
	}}

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, model any, scope func(*gorm.DB) *gorm.DB, query string, args ...any) {
		g.Go(func() error {
			q := db.WithContext(gctx).Model(model).Scopes(scope)
			if query != "" {
				q = q.Where(query, args...)
			}
			if err := q.Count(dst).Error; err != nil {
				return fmt.Errorf("count %T: %w", model, err)
			}
			return nil
		})
	}

	count(&st.Employees.Total, &models.Employee{}, s.Company, "")
	count(&st.Employees.Active, &models.Employee{}, s.Company, "status = ?", models.EmployeeStatusActive)
	count(&st.Employees.OnLeave, &models.Employee{}, s.Company, "status = ?", models.EmployeeStatusOnLeave)
	count(&st.ActiveRentals, &models.Rental{}, s.Company, "status = ?", models.RentalStatusActive)
	count(&st.ActiveProjects, &models.Project{}, s.Company, "status = ?", models.ProjectStatusActive)
	count(&st.PendingLeaves, &models.EmployeeLeave{}, s.Employees, "status = ?", models.LeaveStatusPending)
	count(&st.PendingTimesheets, &models.Timesheet{}, s.Employees, "status = ?", models.TimesheetStatusPending)

	var byStatus []struct {
		Status models.EquipmentStatus
		N      int64
	}
	g.Go(func() error {
		return db.WithContext(gctx).Model(&models.Equipment{}).Scopes(s.Company).
			Select("status, COUNT(*) AS n").Group("status").Scan(&byStatus).Error
	})
	g.Go(func() error {
		n, err := notification.UnreadCount(db.WithContext(gctx), s.UserID)
		st.UnreadNotifications = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, r := range byStatus {
		st.EquipmentByStatus[r.Status] = r.N
	}
	return st, nil
}

// GET /api/dashboard/stats
func StatsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		company, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		employees, err := auth.EmployeeScope(c)
		if err != nil {
			return err
		}

		st, err := Collect(c.UserContext(), database.DB, Scope{Company: company, Employees: employees, UserID: id.UserID})
		if err != nil {
			zap.L().Error("dashboard stats", zap.Uint("user_id", id.UserID), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load dashboard statistics")
		}
		return c.JSON(st)
	}
}
