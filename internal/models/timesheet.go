package models

import "time"

type TimesheetStatus string

const (
	TimesheetStatusPending  TimesheetStatus = "pending"
	TimesheetStatusApproved TimesheetStatus = "approved"
	TimesheetStatusRejected TimesheetStatus = "rejected"
)

type Timesheet struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	EmployeeID    uint            `gorm:"not null;uniqueIndex:idx_timesheet_employee_date" json:"employee_id"`
	Employee      *Employee       `json:"employee,omitempty"`
	Date          time.Time       `gorm:"not null;uniqueIndex:idx_timesheet_employee_date" json:"date"`
	HoursWorked   float64         `gorm:"type:decimal(5,2);not null" json:"hours_worked"`
	OvertimeHours float64         `gorm:"type:decimal(5,2);not null;default:0" json:"overtime_hours"`
	ProjectID     *uint           `gorm:"index" json:"project_id"`
	RentalID      *uint           `gorm:"index" json:"rental_id"`
	Description   string          `gorm:"type:text" json:"description"`
	Status        TimesheetStatus `gorm:"size:20;not null;index" json:"status"`
	ApprovedByID  *uint           `json:"approved_by_id"`
	ApprovedAt    *time.Time      `json:"approved_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
