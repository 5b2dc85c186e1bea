package models

import "time"

type AdvanceStatus string

const (
	AdvanceStatusPending  AdvanceStatus = "pending"
	AdvanceStatusApproved AdvanceStatus = "approved"
	AdvanceStatusRejected AdvanceStatus = "rejected"
	// Fully repaid through payroll deductions.
	AdvanceStatusRepaid AdvanceStatus = "repaid"
)

// AdvancePayment is money paid to an employee ahead of salary and recovered
// from later payrolls.
type AdvancePayment struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	EmployeeID uint          `gorm:"not null;index" json:"employee_id"`
	Employee   *Employee     `json:"employee,omitempty"`
	Amount     float64       `gorm:"type:decimal(12,2);not null" json:"amount"`
	Reason     string        `gorm:"type:text;not null" json:"reason"`
	Status     AdvanceStatus `gorm:"size:20;not null;index" json:"status"`
	// 0 recovers the whole outstanding amount from the next payroll.
	MonthlyDeduction float64    `gorm:"type:decimal(12,2);not null;default:0" json:"monthly_deduction"`
	RepaidAmount     float64    `gorm:"type:decimal(12,2);not null;default:0" json:"repaid_amount"`
	PaymentDate      *time.Time `json:"payment_date"`
	Notes            string     `gorm:"type:text" json:"notes"`

	ApprovedByID    *uint      `json:"approved_by_id"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectedByID    *uint      `json:"rejected_by_id"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason string     `gorm:"size:255" json:"rejection_reason"`

	Repayments []AdvanceRepayment `json:"repayments,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (a *AdvancePayment) Outstanding() float64 {
	if o := a.Amount - a.RepaidAmount; o > 0 {
		return o
	}
	return 0
}

// AdvanceRepayment records one recovery of an advance, usually a payroll deduction.
type AdvanceRepayment struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	AdvancePaymentID uint      `gorm:"not null;index" json:"advance_payment_id"`
	EmployeeID       uint      `gorm:"not null;index" json:"employee_id"`
	PayrollID        *uint     `gorm:"index" json:"payroll_id"`
	Amount           float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentDate      time.Time `gorm:"not null" json:"payment_date"`
	RecordedByID     *uint     `json:"recorded_by_id"`
	Notes            string    `gorm:"size:255" json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
}
