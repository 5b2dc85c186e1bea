package models

import "time"

type EquipmentStatus string

const (
	EquipmentStatusAvailable        EquipmentStatus = "available"
	EquipmentStatusAssigned         EquipmentStatus = "assigned"
	EquipmentStatusUnderMaintenance EquipmentStatus = "under_maintenance"
	EquipmentStatusOutOfService     EquipmentStatus = "out_of_service"
)

func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentStatusAvailable, EquipmentStatusAssigned, EquipmentStatusUnderMaintenance, EquipmentStatusOutOfService:
		return true
	}
	return false
}

type Equipment struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CompanyID    uint            `gorm:"not null;index" json:"company_id"`
	Name         string          `gorm:"size:150;not null" json:"name"`
	Model        string          `gorm:"size:100" json:"model"`
	Manufacturer string          `gorm:"size:100" json:"manufacturer"`
	SerialNumber string          `gorm:"size:100" json:"serial_number"`
	Category     string          `gorm:"size:100" json:"category"`
	DailyRate    float64         `gorm:"type:decimal(12,2);not null;default:0" json:"daily_rate"`
	Status       EquipmentStatus `gorm:"size:30;not null;index" json:"status"`
	ERPNextID    string          `gorm:"column:erpnext_id;size:100;index" json:"erpnext_id"`
	PurchaseDate *time.Time      `json:"purchase_date"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type HistoryStatus string

const (
	HistoryStatusActive    HistoryStatus = "active"
	HistoryStatusCompleted HistoryStatus = "completed"
)

// EquipmentRentalHistory records where a piece of equipment was (or is) deployed.
type EquipmentRentalHistory struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	EquipmentID    uint           `gorm:"not null;index" json:"equipment_id"`
	Equipment      *Equipment     `json:"equipment,omitempty"`
	AssignmentType AssignmentType `gorm:"size:20;not null" json:"assignment_type"`
	RentalID       *uint          `gorm:"index" json:"rental_id"`
	ProjectID      *uint          `gorm:"index" json:"project_id"`
	// Operator, if one goes with the equipment.
	EmployeeID *uint         `gorm:"index" json:"employee_id"`
	StartDate  time.Time     `gorm:"not null" json:"start_date"`
	EndDate    *time.Time    `json:"end_date"`
	Status     HistoryStatus `gorm:"size:20;not null;index" json:"status"`
	Notes      string        `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type MaintenanceStatus string

const (
	MaintenanceStatusOpen       MaintenanceStatus = "open"
	MaintenanceStatusInProgress MaintenanceStatus = "in_progress"
	MaintenanceStatusCompleted  MaintenanceStatus = "completed"
	MaintenanceStatusCancelled  MaintenanceStatus = "cancelled"
)

func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenanceStatusOpen, MaintenanceStatusInProgress, MaintenanceStatusCompleted, MaintenanceStatusCancelled:
		return true
	}
	return false
}

func (s MaintenanceStatus) Open() bool {
	return s == MaintenanceStatusOpen || s == MaintenanceStatusInProgress
}

type EquipmentMaintenance struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	EquipmentID uint              `gorm:"not null;index" json:"equipment_id"`
	Title       string            `gorm:"size:150;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Status      MaintenanceStatus `gorm:"size:20;not null;index" json:"status"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
	CompletedAt *time.Time        `json:"completed_at"`
	Cost        float64           `gorm:"type:decimal(12,2);not null;default:0" json:"cost"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
