package rental

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"snd-backend/internal/apperror"
	"snd-backend/internal/assignment"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/equipment"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ItemTotal is unit price × quantity × days. Zero quantity or days count as 1.
func ItemTotal(it *models.RentalItem) float64 {
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	if it.Days <= 0 {
		it.Days = 1
	}
	return round2(it.UnitPrice * float64(it.Quantity) * float64(it.Days))
}

// ApplyTotals recomputes item totals and the rental's money fields from r.Items.
// VAT is charged on the discounted subtotal.
func ApplyTotals(r *models.Rental) {
	var subtotal float64
	for i := range r.Items {
		r.Items[i].TotalPrice = ItemTotal(&r.Items[i])
		subtotal += r.Items[i].TotalPrice
	}
	r.Subtotal = round2(subtotal)
	r.TaxRate = erpnext.VATRate

	taxable := r.Subtotal - r.DiscountAmount
	if taxable < 0 {
		taxable = 0
	}
	r.TaxAmount = round2(taxable * r.TaxRate / 100)
	r.TotalAmount = round2(taxable + r.TaxAmount)
}

// NextNumber returns the first free RNT-NNNN number of a company.
func NextNumber(db *gorm.DB, companyID uint) (string, error) {
	var count int64
	if err := db.Model(&models.Rental{}).Where("company_id = ?", companyID).Count(&count).Error; err != nil {
		return "", fmt.Errorf("count rentals: %w", err)
	}
	for n := count + 1; ; n++ {
		number := fmt.Sprintf("RNT-%04d", n)
		taken, err := numberTaken(db, companyID, number, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
}

func numberTaken(db *gorm.DB, companyID uint, number string, exceptID uint) (bool, error) {
	var n int64
	q := db.Model(&models.Rental{}).Where("company_id = ? AND rental_number = ?", companyID, number)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check rental number: %w", err)
	}
	return n > 0, nil
}

func loadWithItems(db *gorm.DB, id uint) (*models.Rental, error) {
	var r models.Rental
	if err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Rental not found")
		}
		return nil, fmt.Errorf("load rental %d: %w", id, err)
	}
	return &r, nil
}

// Activate moves a pending rental to active, deploying its equipment and
// operators from the rental start date.
func Activate(db *gorm.DB, id uint) (*models.Rental, error) {
	var r *models.Rental
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if r, err = loadWithItems(tx, id); err != nil {
			return err
		}
		if r.Status != models.RentalStatusPending {
			return apperror.Newf(apperror.CodeConflict, "Only pending rentals can be activated, this one is %s", r.Status)
		}
		// A concurrent activation matches no row here.
		res := tx.Model(&models.Rental{}).
			Where("id = ? AND status = ?", r.ID, models.RentalStatusPending).
			Update("status", models.RentalStatusActive)
		if res.Error != nil {
			return fmt.Errorf("activate rental %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Newf(apperror.CodeConflict, "Rental %s was activated by another request", r.RentalNumber)
		}
		r.Status = models.RentalStatusActive

		for i := range r.Items {
			if err := deployItem(tx, r, &r.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func deployItem(tx *gorm.DB, r *models.Rental, it *models.RentalItem) error {
	if it.EquipmentID != nil {
		_, err := equipment.Assign(tx, *it.EquipmentID, equipment.AssignInput{
			Type:       models.AssignmentTypeRental,
			RentalID:   &r.ID,
			EmployeeID: it.OperatorID,
			StartDate:  r.StartDate,
			Notes:      "Rental " + r.RentalNumber,
		})
		if err != nil {
			return err
		}
	}
	if it.OperatorID != nil {
		_, err := assignment.Create(tx, assignment.CreateInput{
			EmployeeID: *it.OperatorID,
			Type:       models.AssignmentTypeRental,
			RentalID:   &r.ID,
			StartDate:  r.StartDate,
		})
		if err != nil {
			return err
		}
	}
	it.Status = models.AssignmentStatusActive
	return tx.Model(&models.RentalItem{}).Where("id = ?", it.ID).Update("status", it.Status).Error
}

// Complete ends an active rental on end, closing its items, equipment history
// and operator assignments.
func Complete(db *gorm.DB, id uint, end time.Time) (*models.Rental, error) {
	r, err := loadWithItems(db, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RentalStatusActive {
		return nil, apperror.Newf(apperror.CodeConflict, "Only active rentals can be completed, this one is %s", r.Status)
	}
	end = dateutil.Day(end)
	if end.Before(dateutil.Day(r.StartDate)) {
		return nil, apperror.Validation("end date cannot be before the rental start date")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := release(tx, r, end); err != nil {
			return err
		}
		r.Status = models.RentalStatusCompleted
		r.ActualEndDate = &end
		return tx.Model(&models.Rental{}).Where("id = ?", r.ID).Updates(map[string]any{
			"status":          r.Status,
			"actual_end_date": end,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel drops a pending or active rental. Anything already deployed is
// released today.
func Cancel(db *gorm.DB, id uint) (*models.Rental, error) {
	r, err := loadWithItems(db, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RentalStatusPending && r.Status != models.RentalStatusActive {
		return nil, apperror.Newf(apperror.CodeConflict, "A %s rental cannot be cancelled", r.Status)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if r.Status == models.RentalStatusActive {
			end := dateutil.Today()
			if end.Before(dateutil.Day(r.StartDate)) {
				end = dateutil.Day(r.StartDate)
			}
			if err := release(tx, r, end); err != nil {
				return err
			}
		}
		r.Status = models.RentalStatusCancelled
		return tx.Model(&models.Rental{}).Where("id = ?", r.ID).Update("status", r.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func release(tx *gorm.DB, r *models.Rental, end time.Time) error {
	if err := equipment.ReleaseRental(tx, r.ID, end); err != nil {
		return err
	}

	var operators []models.EmployeeAssignment
	if err := tx.Where("rental_id = ? AND status = ?", r.ID, models.AssignmentStatusActive).
		Find(&operators).Error; err != nil {
		return fmt.Errorf("load operator assignments: %w", err)
	}
	for _, a := range operators {
		closeOn := end
		if closeOn.Before(dateutil.Day(a.StartDate)) {
			closeOn = dateutil.Day(a.StartDate)
		}
		if _, err := assignment.Complete(tx, a.ID, &closeOn); err != nil {
			return err
		}
	}

	for i := range r.Items {
		r.Items[i].Status = models.AssignmentStatusCompleted
	}
	return tx.Model(&models.RentalItem{}).Where("rental_id = ? AND status <> ?", r.ID, models.AssignmentStatusCompleted).
		Update("status", models.AssignmentStatusCompleted).Error
}

var uomByRate = map[models.RateType]string{
	models.RateTypeHourly:  "Hour",
	models.RateTypeDaily:   "Day",
	models.RateTypeWeekly:  "Week",
	models.RateTypeMonthly: "Month",
}

// BuildInvoice maps a rental onto an ERPNext Sales Invoice posted on postingDate.
func BuildInvoice(r *models.Rental, cu *models.Customer, postingDate time.Time) erpnext.SalesInvoice {
	customerName := cu.ERPNextID
	if customerName == "" {
		customerName = cu.Name
	}
	due := postingDate.AddDate(0, 0, r.PaymentTermsDays)
	inv := erpnext.NewSalesInvoice(customerName, dateutil.Format(postingDate), dateutil.Format(due))
	inv.Subject = "Rental " + r.RentalNumber
	inv.FromDate = dateutil.Format(r.StartDate)
	switch {
	case r.ActualEndDate != nil:
		inv.ToDate = dateutil.Format(*r.ActualEndDate)
	case r.ExpectedEndDate != nil:
		inv.ToDate = dateutil.Format(*r.ExpectedEndDate)
	}
	inv.DiscountAmount = r.DiscountAmount

	for _, it := range r.Items {
		code, name := erpnext.RentalItemSKU, it.Description
		if it.Equipment != nil {
			if it.Equipment.ERPNextID != "" {
				code = it.Equipment.ERPNextID
			}
			if name == "" {
				name = it.Equipment.Name
			}
		}
		if name == "" {
			name = erpnext.RentalItemSKU
		}
		uom := uomByRate[it.RateType]
		if uom == "" {
			uom = "Day"
		}
		qty := float64(it.Quantity * it.Days)
		inv.Items = append(inv.Items, erpnext.InvoiceItem{
			ItemCode:    code,
			ItemName:    name,
			Description: it.Description,
			Qty:         qty,
			Rate:        it.UnitPrice,
			Amount:      it.TotalPrice,
			UOM:         uom,
		})
	}
	return inv
}

// Invoice creates and submits the ERPNext invoice for a rental and stores its
// document name. A rental is invoiced at most once.
func Invoice(ctx context.Context, db *gorm.DB, client *erpnext.Client, id uint) (*models.Rental, error) {
	if !client.Enabled() {
		return nil, apperror.New(apperror.CodeUpstream, "ERPNext integration is not configured")
	}

	var r models.Rental
	if err := db.WithContext(ctx).Preload("Customer").Preload("Items.Equipment").First(&r, id).Error; err != nil {
		return nil, apperror.NotFound("Rental not found")
	}
	if r.InvoiceID != "" {
		return nil, apperror.Newf(apperror.CodeConflict, "Rental already invoiced as %s", r.InvoiceID)
	}
	if r.Status != models.RentalStatusActive && r.Status != models.RentalStatusCompleted {
		return nil, apperror.Validation("Only active or completed rentals can be invoiced")
	}
	if len(r.Items) == 0 {
		return nil, apperror.Validation("Rental has no items to invoice")
	}
	if r.Customer == nil {
		return nil, apperror.Validation("Rental has no customer")
	}

	posting := dateutil.Today()
	name, err := client.CreateSalesInvoice(ctx, BuildInvoice(&r, r.Customer, posting))
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeUpstream, "Could not create ERPNext invoice", err)
	}
	if err := client.SubmitSalesInvoice(ctx, name); err != nil {
		// The draft stays in ERPNext; keep its name so it is not created twice.
		zap.L().Warn("erpnext invoice submit failed", zap.String("invoice", name), zap.Error(err))
	}

	r.InvoiceID = name
	r.InvoiceDate = &posting
	if err := db.WithContext(ctx).Model(&models.Rental{}).Where("id = ?", r.ID).Updates(map[string]any{
		"invoice_id":   name,
		"invoice_date": posting,
	}).Error; err != nil {
		return nil, fmt.Errorf("store invoice %s on rental %d: %w", name, r.ID, err)
	}
	return &r, nil
}
