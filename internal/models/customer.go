package models

import "time"

type Customer struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	CompanyID     uint    `gorm:"not null;index" json:"company_id"`
	Name          string  `gorm:"size:150;not null" json:"name"`
	CompanyName   string  `gorm:"size:150" json:"company_name"`
	ContactPerson string  `gorm:"size:100" json:"contact_person"`
	Email         string  `gorm:"size:150" json:"email"`
	Phone         string  `gorm:"size:50" json:"phone"`
	Address       string  `gorm:"size:255" json:"address"`
	City          string  `gorm:"size:100" json:"city"`
	Country       string  `gorm:"size:100" json:"country"`
	TaxID         string  `gorm:"size:50" json:"tax_id"`
	CreditLimit   float64 `gorm:"type:decimal(12,2);not null;default:0" json:"credit_limit"`
	PaymentTerms  string  `gorm:"size:100" json:"payment_terms"`
	CustomerGroup string  `gorm:"size:100" json:"customer_group"`
	// ERPNext document name; unique when present.
	ERPNextID string    `gorm:"column:erpnext_id;size:140;index" json:"erpnext_id"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	Status    string    `gorm:"size:20;not null" json:"status"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	CustomerStatusActive   = "active"
	CustomerStatusInactive = "inactive"
)
