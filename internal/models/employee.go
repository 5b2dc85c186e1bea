package models

import (
	"strings"
	"time"
)

type EmployeeStatus string

const (
	EmployeeStatusActive     EmployeeStatus = "active"
	EmployeeStatusInactive   EmployeeStatus = "inactive"
	EmployeeStatusOnLeave    EmployeeStatus = "on_leave"
	EmployeeStatusTerminated EmployeeStatus = "terminated"
)

func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeStatusActive, EmployeeStatusInactive, EmployeeStatusOnLeave, EmployeeStatusTerminated:
		return true
	}
	return false
}

type Department struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CompanyID   uint   `gorm:"not null;uniqueIndex:idx_department_company_name" json:"company_id"`
	Name        string `gorm:"size:100;not null;uniqueIndex:idx_department_company_name" json:"name"`
	Code        string `gorm:"size:30" json:"code"`
	Description string `gorm:"size:255" json:"description"`
	IsActive    bool   `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Employee struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	CompanyID    uint        `gorm:"not null;uniqueIndex:idx_employee_company_file" json:"company_id"`
	DepartmentID *uint       `gorm:"index" json:"department_id"`
	Department   *Department `json:"department,omitempty"`
	// Login account for self-service, if any.
	UserID *uint `gorm:"index" json:"user_id"`

	FileNumber     string `gorm:"size:50;not null;uniqueIndex:idx_employee_company_file" json:"file_number"`
	FirstName      string `gorm:"size:100;not null" json:"first_name"`
	LastName       string `gorm:"size:100" json:"last_name"`
	Email          string `gorm:"size:150" json:"email"`
	Phone          string `gorm:"size:50" json:"phone"`
	Nationality    string `gorm:"size:50" json:"nationality"`
	IqamaNumber    string `gorm:"size:50" json:"iqama_number"`
	PassportNumber string `gorm:"size:50" json:"passport_number"`
	Position       string `gorm:"size:100" json:"position"`

	HireDate        *time.Time     `json:"hire_date"`
	Status          EmployeeStatus `gorm:"size:20;not null;index" json:"status"`
	LastWorkingDate *time.Time     `json:"last_working_date"`

	BasicSalary float64 `gorm:"type:decimal(12,2);not null;default:0" json:"basic_salary"`
	// Zero means the standard 1.5x multiplier.
	OvertimeRateMultiplier float64 `gorm:"type:decimal(5,2);not null;default:0" json:"overtime_rate_multiplier"`
	// Fixed SAR per overtime hour; takes precedence over the multiplier when set.
	OvertimeFixedRate float64 `gorm:"type:decimal(10,2);not null;default:0" json:"overtime_fixed_rate"`

	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}
