package customer

import (
	"context"
	"errors"
	"fmt"

	"snd-backend/internal/erpnext"
	"snd-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionDeactivated = "deactivated"
	ActionSkipped     = "skipped"
)

type SyncResult struct {
	Action     string `json:"action"`
	CustomerID uint   `json:"customer_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// fromRecord copies the ERPNext fields we keep onto c.
func fromRecord(c *models.Customer, rec erpnext.Record) {
	c.Name = firstNonEmpty(rec.String("customer_name", "name"), "Unknown Customer")
	c.CompanyName = firstNonEmpty(rec.String("company_name", "customer_name", "name"), c.Name)
	c.ContactPerson = rec.String("contact_person", "contact_person_name")
	c.Email = rec.String("email", "email_id")
	c.Phone = rec.String("phone", "mobile_no", "phone_no")
	c.Address = rec.String("address", "primary_address", "customer_primary_address")
	c.City = rec.String("city")
	c.Country = rec.String("country")
	c.TaxID = rec.String("tax_id", "tax_number", "vat_number")
	c.CreditLimit = rec.Float("credit_limit")
	c.PaymentTerms = rec.String("payment_terms")
	c.CustomerGroup = rec.String("customer_group", "customer_type")
	c.Notes = rec.String("notes", "remarks")

	c.IsActive = true
	if disabled, ok := rec.Bool("disabled"); ok && disabled {
		c.IsActive = false
	}
	if active, ok := rec.Bool("is_active"); ok && !active {
		c.IsActive = false
	}
	c.Status = models.CustomerStatusActive
	if !c.IsActive {
		c.Status = models.CustomerStatusInactive
	}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// Apply upserts one ERPNext customer by erpnext_id. Delete events deactivate
// the local row instead of removing it.
func Apply(db *gorm.DB, companyID uint, eventType string, rec erpnext.Record) (SyncResult, error) {
	erpID := rec.String("erpnext_id", "name")
	if erpID == "" {
		return SyncResult{}, errors.New("customer has no ERPNext id")
	}

	var existing models.Customer
	err := db.Where("company_id = ? AND erpnext_id = ?", companyID, erpID).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return SyncResult{}, fmt.Errorf("load customer %s: %w", erpID, err)
	}

	if eventType == "delete" {
		if !found {
			return SyncResult{Action: ActionSkipped, Reason: "Customer not found for deletion"}, nil
		}
		if err := db.Model(&existing).Updates(map[string]any{
			"is_active": false,
			"status":    models.CustomerStatusInactive,
		}).Error; err != nil {
			return SyncResult{}, fmt.Errorf("deactivate customer %d: %w", existing.ID, err)
		}
		return SyncResult{Action: ActionDeactivated, CustomerID: existing.ID}, nil
	}

	if found {
		fromRecord(&existing, rec)
		if err := db.Save(&existing).Error; err != nil {
			return SyncResult{}, fmt.Errorf("update customer %d: %w", existing.ID, err)
		}
		return SyncResult{Action: ActionUpdated, CustomerID: existing.ID}, nil
	}

	c := models.Customer{CompanyID: companyID, ERPNextID: erpID}
	fromRecord(&c, rec)
	if err := db.Create(&c).Error; err != nil {
		return SyncResult{}, fmt.Errorf("create customer %s: %w", erpID, err)
	}
	return SyncResult{Action: ActionCreated, CustomerID: c.ID}, nil
}

type SyncSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Sync pulls every ERPNext customer into companyID.
func Sync(ctx context.Context, db *gorm.DB, client *erpnext.Client, companyID uint) (SyncSummary, error) {
	records, err := client.ListCustomers(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	var sum SyncSummary
	for _, rec := range records {
		sum.Total++
		res, err := Apply(db.WithContext(ctx), companyID, "update", rec)
		if err != nil {
			sum.Failed++
			zap.L().Warn("customer sync failed", zap.String("erpnext_id", rec.String("name")), zap.Error(err))
			continue
		}
		switch res.Action {
		case ActionCreated:
			sum.Created++
		case ActionUpdated:
			sum.Updated++
		}
	}
	return sum, nil
}

// IntakeCompany is where ERPNext customers land: the configured company, or
// the oldest one when none is configured.
func IntakeCompany(db *gorm.DB, configured uint) (uint, error) {
	if configured != 0 {
		return configured, nil
	}
	var c models.Company
	if err := db.Order("id ASC").First(&c).Error; err != nil {
		return 0, fmt.Errorf("no company to attach ERPNext customers to: %w", err)
	}
	return c.ID, nil
}
