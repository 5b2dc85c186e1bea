package models

import "time"

type LeaveType string

const (
	LeaveTypeAnnual    LeaveType = "annual"
	LeaveTypeVacation  LeaveType = "vacation"
	LeaveTypeSick      LeaveType = "sick"
	LeaveTypeEmergency LeaveType = "emergency"
	LeaveTypeUnpaid    LeaveType = "unpaid"
	LeaveTypeOther     LeaveType = "other"
)

func (t LeaveType) Valid() bool {
	switch t {
	case LeaveTypeAnnual, LeaveTypeVacation, LeaveTypeSick, LeaveTypeEmergency, LeaveTypeUnpaid, LeaveTypeOther:
		return true
	}
	return false
}

// TakesEmployeeOffSite reports whether approval ends the employee's current assignments.
func (t LeaveType) TakesEmployeeOffSite() bool {
	return t == LeaveTypeAnnual || t == LeaveTypeVacation
}

type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "pending"
	LeaveStatusApproved LeaveStatus = "approved"
	LeaveStatusRejected LeaveStatus = "rejected"
)

type EmployeeLeave struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	EmployeeID uint        `gorm:"not null;index" json:"employee_id"`
	Employee   *Employee   `json:"employee,omitempty"`
	LeaveType  LeaveType   `gorm:"size:20;not null" json:"leave_type"`
	StartDate  time.Time   `gorm:"not null" json:"start_date"`
	EndDate    time.Time   `gorm:"not null" json:"end_date"`
	Days       int         `gorm:"not null" json:"days"`
	Reason     string      `gorm:"type:text" json:"reason"`
	Status     LeaveStatus `gorm:"size:20;not null;index" json:"status"`

	ApprovedByID    *uint      `json:"approved_by_id"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectedByID    *uint      `json:"rejected_by_id"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason string     `gorm:"size:255" json:"rejection_reason"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
