package models

import "time"

type AssignmentType string

const (
	AssignmentTypeRental  AssignmentType = "rental"
	AssignmentTypeProject AssignmentType = "project"
	AssignmentTypeManual  AssignmentType = "manual"
)

func (t AssignmentType) Valid() bool {
	switch t {
	case AssignmentTypeRental, AssignmentTypeProject, AssignmentTypeManual:
		return true
	}
	return false
}

type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "pending"
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

type EmployeeAssignment struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	EmployeeID uint           `gorm:"not null;index" json:"employee_id"`
	Employee   *Employee      `json:"employee,omitempty"`
	Type       AssignmentType `gorm:"size:20;not null" json:"type"`
	Name       string         `gorm:"size:150;not null" json:"name"`
	Location   string         `gorm:"size:150" json:"location"`
	ProjectID  *uint          `gorm:"index" json:"project_id"`
	RentalID   *uint          `gorm:"index" json:"rental_id"`

	StartDate time.Time        `gorm:"not null" json:"start_date"`
	EndDate   *time.Time       `json:"end_date"`
	Status    AssignmentStatus `gorm:"size:20;not null;index" json:"status"`
	Notes     string           `gorm:"type:text" json:"notes"`

	AssignedByID *uint     `json:"assigned_by_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
