package models

import "time"

type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusOnHold, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

type Project struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	CompanyID   uint          `gorm:"not null;index" json:"company_id"`
	CustomerID  *uint         `gorm:"index" json:"customer_id"`
	Customer    *Customer     `json:"customer,omitempty"`
	Name        string        `gorm:"size:150;not null" json:"name"`
	Code        string        `gorm:"size:50" json:"code"`
	Location    string        `gorm:"size:150" json:"location"`
	StartDate   *time.Time    `json:"start_date"`
	EndDate     *time.Time    `json:"end_date"`
	Status      ProjectStatus `gorm:"size:20;not null" json:"status"`
	Budget      float64       `gorm:"type:decimal(14,2);not null;default:0" json:"budget"`
	Description string        `gorm:"type:text" json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
