package assignment

import (
	"sort"
	"time"

	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
)

// Change is one assignment row whose status or end date must move.
type Change struct {
	AssignmentID uint                    `json:"assignment_id"`
	Name         string                  `json:"name"`
	FromStatus   models.AssignmentStatus `json:"from_status"`
	ToStatus     models.AssignmentStatus `json:"to_status"`
	FromEndDate  *time.Time              `json:"from_end_date"`
	ToEndDate    *time.Time              `json:"to_end_date"`
}

// Reconcile derives status and end dates for one employee's assignments.
//
// Rows are ordered by start date, then id. The first row holding the latest
// start date is current: active with no end date. Every other row is
// completed and ends the day before the next row that starts strictly later,
// or the day before the current row when none does. Only rows that differ
// from the derived state are returned, so a second pass yields nothing.
func Reconcile(rows []models.EmployeeAssignment) []Change {
	if len(rows) == 0 {
		return nil
	}

	sorted := make([]models.EmployeeAssignment, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := dateutil.Day(sorted[i].StartDate), dateutil.Day(sorted[j].StartDate)
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return sorted[i].ID < sorted[j].ID
	})

	current := 0
	for i := range sorted {
		if dateutil.Day(sorted[i].StartDate).After(dateutil.Day(sorted[current].StartDate)) {
			current = i
		}
	}

	var changes []Change
	for i, a := range sorted {
		if i == current {
			if a.Status != models.AssignmentStatusActive || a.EndDate != nil {
				changes = append(changes, Change{
					AssignmentID: a.ID,
					Name:         a.Name,
					FromStatus:   a.Status,
					ToStatus:     models.AssignmentStatusActive,
					FromEndDate:  a.EndDate,
				})
			}
			continue
		}

		next := sorted[current]
		start := dateutil.Day(a.StartDate)
		for j := i + 1; j < len(sorted); j++ {
			if dateutil.Day(sorted[j].StartDate).After(start) {
				next = sorted[j]
				break
			}
		}
		end := dateutil.DayBefore(next.StartDate)

		if a.Status != models.AssignmentStatusCompleted || a.EndDate == nil || !dateutil.SameDay(*a.EndDate, end) {
			changes = append(changes, Change{
				AssignmentID: a.ID,
				Name:         a.Name,
				FromStatus:   a.Status,
				ToStatus:     models.AssignmentStatusCompleted,
				FromEndDate:  a.EndDate,
				ToEndDate:    &end,
			})
		}
	}
	return changes
}
