package models

import "time"

type PayrollStatus string

const (
	PayrollStatusPending  PayrollStatus = "pending"
	PayrollStatusApproved PayrollStatus = "approved"
	PayrollStatusPaid     PayrollStatus = "paid"
)

// PayrollRun groups the payrolls produced by one generation request.
type PayrollRun struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CompanyID      uint      `gorm:"not null;index" json:"company_id"`
	BatchID        string    `gorm:"size:36;not null;uniqueIndex" json:"batch_id"`
	Month          int       `gorm:"not null" json:"month"`
	Year           int       `gorm:"not null" json:"year"`
	Status         string    `gorm:"size:20;not null" json:"status"`
	TotalEmployees int       `gorm:"not null" json:"total_employees"`
	TotalAmount    float64   `gorm:"type:decimal(14,2);not null" json:"total_amount"`
	RunByID        *uint     `json:"run_by_id"`
	RunAt          time.Time `json:"run_at"`
}

type Payroll struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EmployeeID   uint      `gorm:"not null;uniqueIndex:idx_payroll_employee_period" json:"employee_id"`
	Employee     *Employee `json:"employee,omitempty"`
	Month        int       `gorm:"not null;uniqueIndex:idx_payroll_employee_period" json:"month"`
	Year         int       `gorm:"not null;uniqueIndex:idx_payroll_employee_period" json:"year"`
	PayrollRunID *uint     `gorm:"index" json:"payroll_run_id"`

	BaseSalary      float64 `gorm:"type:decimal(12,2);not null" json:"base_salary"`
	TotalHours      float64 `gorm:"type:decimal(8,2);not null;default:0" json:"total_hours"`
	OvertimeHours   float64 `gorm:"type:decimal(8,2);not null;default:0" json:"overtime_hours"`
	OvertimeAmount  float64 `gorm:"type:decimal(12,2);not null;default:0" json:"overtime_amount"`
	BonusAmount     float64 `gorm:"type:decimal(12,2);not null;default:0" json:"bonus_amount"`
	DeductionAmount float64 `gorm:"type:decimal(12,2);not null;default:0" json:"deduction_amount"`
	FinalAmount     float64 `gorm:"type:decimal(12,2);not null" json:"final_amount"`
	Currency        string  `gorm:"size:3;not null" json:"currency"`

	Status       PayrollStatus `gorm:"size:20;not null;index" json:"status"`
	Notes        string        `gorm:"type:text" json:"notes"`
	ApprovedByID *uint         `json:"approved_by_id"`
	ApprovedAt   *time.Time    `json:"approved_at"`
	PaidAt       *time.Time    `json:"paid_at"`

	Items     []PayrollItem `json:"items,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type PayrollItem struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	PayrollID   uint    `gorm:"not null;index" json:"payroll_id"`
	Type        string  `gorm:"size:20;not null" json:"type"`
	Description string  `gorm:"size:255;not null" json:"description"`
	Amount      float64 `gorm:"type:decimal(12,2);not null" json:"amount"`
	IsTaxable   bool    `gorm:"not null" json:"is_taxable"`
	SortOrder   int     `gorm:"not null" json:"sort_order"`
}

const (
	PayrollItemEarnings  = "earnings"
	PayrollItemOvertime  = "overtime"
	PayrollItemBonus     = "bonus"
	PayrollItemDeduction = "deduction"
)
