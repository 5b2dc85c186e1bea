package models

import "time"

type RentalStatus string

const (
	RentalStatusPending   RentalStatus = "pending"
	RentalStatusActive    RentalStatus = "active"
	RentalStatusCompleted RentalStatus = "completed"
	RentalStatusCancelled RentalStatus = "cancelled"
)

type Rental struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CompanyID    uint      `gorm:"not null;uniqueIndex:idx_rental_company_number" json:"company_id"`
	RentalNumber string    `gorm:"size:50;not null;uniqueIndex:idx_rental_company_number" json:"rental_number"`
	CustomerID   uint      `gorm:"not null;index" json:"customer_id"`
	Customer     *Customer `json:"customer,omitempty"`
	ProjectID    *uint     `gorm:"index" json:"project_id"`

	StartDate       time.Time    `gorm:"not null" json:"start_date"`
	ExpectedEndDate *time.Time   `json:"expected_end_date"`
	ActualEndDate   *time.Time   `json:"actual_end_date"`
	Status          RentalStatus `gorm:"size:20;not null;index" json:"status"`

	Subtotal         float64 `gorm:"type:decimal(14,2);not null;default:0" json:"subtotal"`
	DiscountAmount   float64 `gorm:"type:decimal(14,2);not null;default:0" json:"discount_amount"`
	TaxRate          float64 `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	TaxAmount        float64 `gorm:"type:decimal(14,2);not null;default:0" json:"tax_amount"`
	TotalAmount      float64 `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`
	PaymentTermsDays int     `gorm:"not null;default:30" json:"payment_terms_days"`

	// ERPNext Sales Invoice name once invoiced.
	InvoiceID   string     `gorm:"size:140" json:"invoice_id"`
	InvoiceDate *time.Time `json:"invoice_date"`

	Notes     string       `gorm:"type:text" json:"notes"`
	Items     []RentalItem `json:"items,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type RateType string

const (
	RateTypeHourly  RateType = "hourly"
	RateTypeDaily   RateType = "daily"
	RateTypeWeekly  RateType = "weekly"
	RateTypeMonthly RateType = "monthly"
)

type RentalItem struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RentalID    uint       `gorm:"not null;index" json:"rental_id"`
	EquipmentID *uint      `gorm:"index" json:"equipment_id"`
	Equipment   *Equipment `json:"equipment,omitempty"`
	// Employee operating the equipment, if any.
	OperatorID  *uint            `gorm:"index" json:"operator_id"`
	Description string           `gorm:"size:255" json:"description"`
	Quantity    int              `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   float64          `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	RateType    RateType         `gorm:"size:20;not null" json:"rate_type"`
	Days        int              `gorm:"not null;default:1" json:"days"`
	TotalPrice  float64          `gorm:"type:decimal(14,2);not null" json:"total_price"`
	Status      AssignmentStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
