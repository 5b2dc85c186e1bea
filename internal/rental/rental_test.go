package rental

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"snd-backend/internal/apperror"
	"snd-backend/internal/config"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/models"
	"snd-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func TestApplyTotals(t *testing.T) {
	r := models.Rental{
		DiscountAmount: 50,
		Items: []models.RentalItem{
			{UnitPrice: 100, Quantity: 2, Days: 3},
			{UnitPrice: 50},
		},
	}
	ApplyTotals(&r)

	assert.Equal(t, 600.0, r.Items[0].TotalPrice)
	assert.Equal(t, 50.0, r.Items[1].TotalPrice)
	assert.Equal(t, 1, r.Items[1].Days)
	assert.Equal(t, 650.0, r.Subtotal)
	assert.Equal(t, 15.0, r.TaxRate)
	assert.Equal(t, 90.0, r.TaxAmount)
	assert.Equal(t, 690.0, r.TotalAmount)

	r.DiscountAmount = 1000
	ApplyTotals(&r)
	assert.Equal(t, 0.0, r.TaxAmount)
	assert.Equal(t, 0.0, r.TotalAmount)
}

func TestNextNumber(t *testing.T) {
	db := testutil.SetupDB(t)
	company := testutil.CreateCompany(t, db, "SND")

	n, err := NextNumber(db, company.ID)
	require.NoError(t, err)
	assert.Equal(t, "RNT-0001", n)

	require.NoError(t, db.Create(&models.Rental{CompanyID: company.ID, RentalNumber: "RNT-0002", CustomerID: 1,
		StartDate: testutil.Date(2025, 1, 1), Status: models.RentalStatusPending}).Error)
	n, err = NextNumber(db, company.ID)
	require.NoError(t, err)
	assert.Equal(t, "RNT-0003", n)
}

func TestBuildInvoice(t *testing.T) {
	end := testutil.Date(2025, 1, 31)
	r := models.Rental{
		RentalNumber:     "RNT-0009",
		StartDate:        testutil.Date(2025, 1, 1),
		ActualEndDate:    &end,
		PaymentTermsDays: 30,
		DiscountAmount:   10,
		Items: []models.RentalItem{
			{Description: "", Quantity: 1, Days: 31, UnitPrice: 800, TotalPrice: 24800, RateType: models.RateTypeDaily,
				Equipment: &models.Equipment{Name: "Crane 50T", ERPNextID: "EQ-CRANE-50"}},
			{Description: "Mobilisation", Quantity: 1, Days: 1, UnitPrice: 500, TotalPrice: 500, RateType: models.RateTypeMonthly},
		},
	}
	inv := BuildInvoice(&r, &models.Customer{Name: "SABIC"}, testutil.Date(2025, 2, 1))

	assert.Equal(t, "SABIC", inv.Customer)
	assert.Equal(t, "2025-02-01", inv.PostingDate)
	assert.Equal(t, "2025-03-03", inv.DueDate)
	assert.Equal(t, "2025-01-31", inv.ToDate)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "EQ-CRANE-50", inv.Items[0].ItemCode)
	assert.Equal(t, "Crane 50T", inv.Items[0].ItemName)
	assert.Equal(t, 31.0, inv.Items[0].Qty)
	assert.Equal(t, "Day", inv.Items[0].UOM)
	assert.Equal(t, erpnext.RentalItemSKU, inv.Items[1].ItemCode)
	assert.Equal(t, "Month", inv.Items[1].UOM)
	require.Len(t, inv.Taxes, 1)
	assert.Equal(t, erpnext.VATRate, inv.Taxes[0].Rate)
}

type fixture struct {
	db       *gorm.DB
	app      *fiber.App
	token    string
	company  *models.Company
	customer models.Customer
	crane    models.Equipment
	operator *models.Employee

	mu       sync.Mutex
	invoices []erpnext.SalesInvoice
	submits  int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testutil.SetupDB(t)}
	cfg := testutil.Config()
	f.company = testutil.CreateCompany(t, f.db, "SND")
	f.customer = models.Customer{CompanyID: f.company.ID, Name: "SABIC", ERPNextID: "CUST-SABIC", IsActive: true, Status: models.CustomerStatusActive}
	require.NoError(t, f.db.Create(&f.customer).Error)
	f.crane = models.Equipment{CompanyID: f.company.ID, Name: "Crane", Status: models.EquipmentStatusAvailable, ERPNextID: "EQ-CRANE"}
	require.NoError(t, f.db.Create(&f.crane).Error)
	f.operator = testutil.CreateEmployee(t, f.db, f.company.ID, "OP-1", "Faisal")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var inv erpnext.SalesInvoice
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&inv))
			f.invoices = append(f.invoices, inv)
			fmt.Fprintf(w, `{"data":{"name":"ACC-SINV-%05d"}}`, len(f.invoices))
		case http.MethodPut:
			f.submits++
			_, _ = w.Write([]byte(`{"data":{"docstatus":1}}`))
		}
	}))
	t.Cleanup(srv.Close)
	client := erpnext.New(config.ERPNextConfig{URL: srv.URL, APIKey: "k", APISecret: "s"})

	f.app = testutil.NewApp()
	api := testutil.Protected(f.app, cfg)
	api.Get("/rentals", ListRentalsHandler())
	api.Post("/rentals", CreateRentalHandler())
	api.Get("/rentals/:id", GetRentalHandler())
	api.Put("/rentals/:id", UpdateRentalHandler())
	api.Delete("/rentals/:id", DeleteRentalHandler())
	api.Post("/rentals/:id/activate", ActivateRentalHandler())
	api.Post("/rentals/:id/complete", CompleteRentalHandler())
	api.Post("/rentals/:id/cancel", CancelRentalHandler())
	api.Post("/rentals/:id/invoice", InvoiceRentalHandler(client))

	f.token = testutil.Token(t, cfg, testutil.CreateUser(t, f.db, &f.company.ID, models.RoleManager, "m@snd.test"))
	return f
}

func (f *fixture) create(t *testing.T, body RentalRequest) RentalResponse {
	t.Helper()
	resp := testutil.Do(t, f.app, http.MethodPost, "/api/rentals", f.token, body)
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var out RentalResponse
	testutil.Decode(t, resp, &out)
	return out
}

func TestRentalLifecycle(t *testing.T) {
	f := setup(t)

	out := f.create(t, RentalRequest{
		CustomerID:     &f.customer.ID,
		StartDate:      strPtr("2025-01-10"),
		DiscountAmount: ptrF(100),
		Items: &[]ItemRequest{
			{EquipmentID: &f.crane.ID, OperatorID: &f.operator.ID, UnitPrice: 1000, Quantity: 1, Days: 10},
		},
	})
	assert.Equal(t, "RNT-0001", out.RentalNumber)
	assert.Equal(t, models.RentalStatusPending, out.Status)
	assert.Equal(t, 10000.0, out.Subtotal)
	assert.Equal(t, 1485.0, out.TaxAmount)
	assert.Equal(t, 11385.0, out.TotalAmount)
	assert.Equal(t, "SABIC", out.CustomerName)
	require.Len(t, out.Items, 1)
	assert.Equal(t, models.RateTypeDaily, out.Items[0].RateType)

	base := fmt.Sprintf("/api/rentals/%d", out.ID)

	resp := testutil.Do(t, f.app, http.MethodPost, base+"/invoice", f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp = testutil.Do(t, f.app, http.MethodPost, base+"/activate", f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &out)
	assert.Equal(t, models.RentalStatusActive, out.Status)
	assert.Equal(t, models.AssignmentStatusActive, out.Items[0].Status)

	var crane models.Equipment
	require.NoError(t, f.db.First(&crane, f.crane.ID).Error)
	assert.Equal(t, models.EquipmentStatusAssigned, crane.Status)

	var op models.EmployeeAssignment
	require.NoError(t, f.db.Where("employee_id = ?", f.operator.ID).First(&op).Error)
	assert.Equal(t, "Rental Operator - RNT-0001", op.Name)
	assert.Equal(t, models.AssignmentStatusActive, op.Status)

	resp = testutil.Do(t, f.app, http.MethodPost, base+"/activate", f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, f.app, http.MethodPut, base, f.token, RentalRequest{DiscountAmount: ptrF(0)})
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, f.app, http.MethodPut, base, f.token, RentalRequest{Notes: strPtr("Site gate 3")})
	testutil.RequireStatus(t, resp, http.StatusOK)

	resp = testutil.Do(t, f.app, http.MethodPost, base+"/complete", f.token, CompleteRequest{EndDate: strPtr("2025-01-05")})
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp = testutil.Do(t, f.app, http.MethodPost, base+"/complete", f.token, CompleteRequest{EndDate: strPtr("2025-01-20")})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &out)
	assert.Equal(t, models.RentalStatusCompleted, out.Status)
	assert.Equal(t, "2025-01-20", *out.ActualEndDate)
	assert.Equal(t, models.AssignmentStatusCompleted, out.Items[0].Status)

	require.NoError(t, f.db.First(&crane, f.crane.ID).Error)
	assert.Equal(t, models.EquipmentStatusAvailable, crane.Status)
	var hist models.EquipmentRentalHistory
	require.NoError(t, f.db.Where("rental_id = ?", out.ID).First(&hist).Error)
	assert.Equal(t, models.HistoryStatusCompleted, hist.Status)
	assert.True(t, hist.EndDate.Equal(testutil.Date(2025, 1, 20)))
	require.NoError(t, f.db.First(&op, op.ID).Error)
	assert.Equal(t, models.AssignmentStatusCompleted, op.Status)
	assert.True(t, op.EndDate.Equal(testutil.Date(2025, 1, 20)))

	resp = testutil.Do(t, f.app, http.MethodPost, base+"/invoice", f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &out)
	assert.Equal(t, "ACC-SINV-00001", out.InvoiceID)
	assert.NotNil(t, out.InvoiceDate)

	resp = testutil.Do(t, f.app, http.MethodPost, base+"/invoice", f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	f.mu.Lock()
	require.Len(t, f.invoices, 1)
	assert.Equal(t, "CUST-SABIC", f.invoices[0].Customer)
	assert.Equal(t, "EQ-CRANE", f.invoices[0].Items[0].ItemCode)
	assert.Equal(t, 100.0, f.invoices[0].DiscountAmount)
	assert.Equal(t, 1, f.submits)
	f.mu.Unlock()

	resp = testutil.Do(t, f.app, http.MethodDelete, base, f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusConflict)
}

func TestCreateActiveThenCancel(t *testing.T) {
	f := setup(t)

	out := f.create(t, RentalRequest{
		CustomerID:   &f.customer.ID,
		RentalNumber: strPtr("R-77"),
		StartDate:    strPtr("2025-02-01"),
		Status:       strPtr("active"),
		Items:        &[]ItemRequest{{EquipmentID: &f.crane.ID, UnitPrice: 500, RateType: "weekly"}},
	})
	assert.Equal(t, "R-77", out.RentalNumber)
	assert.Equal(t, models.RentalStatusActive, out.Status)

	resp := testutil.Do(t, f.app, http.MethodPost, "/api/rentals", f.token, RentalRequest{
		CustomerID: &f.customer.ID, RentalNumber: strPtr("R-77"), StartDate: strPtr("2025-02-01"),
	})
	testutil.RequireStatus(t, resp, http.StatusConflict)

	resp = testutil.Do(t, f.app, http.MethodPost, fmt.Sprintf("/api/rentals/%d/cancel", out.ID), f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &out)
	assert.Equal(t, models.RentalStatusCancelled, out.Status)

	var crane models.Equipment
	require.NoError(t, f.db.First(&crane, f.crane.ID).Error)
	assert.Equal(t, models.EquipmentStatusAvailable, crane.Status)

	resp = testutil.Do(t, f.app, http.MethodDelete, fmt.Sprintf("/api/rentals/%d", out.ID), f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusNoContent)
}

func TestRentalValidation(t *testing.T) {
	f := setup(t)
	other := testutil.CreateCompany(t, f.db, "Other")
	foreignCrane := models.Equipment{CompanyID: other.ID, Name: "Foreign", Status: models.EquipmentStatusAvailable}
	require.NoError(t, f.db.Create(&foreignCrane).Error)

	cases := []struct {
		name string
		body RentalRequest
	}{
		{"missing customer", RentalRequest{StartDate: strPtr("2025-01-01")}},
		{"missing start", RentalRequest{CustomerID: &f.customer.ID}},
		{"bad status", RentalRequest{CustomerID: &f.customer.ID, StartDate: strPtr("2025-01-01"), Status: strPtr("completed")}},
		{"bad rate", RentalRequest{CustomerID: &f.customer.ID, StartDate: strPtr("2025-01-01"), Items: &[]ItemRequest{{RateType: "yearly"}}}},
		{"foreign equipment", RentalRequest{CustomerID: &f.customer.ID, StartDate: strPtr("2025-01-01"), Items: &[]ItemRequest{{EquipmentID: &foreignCrane.ID}}}},
		{"end before start", RentalRequest{CustomerID: &f.customer.ID, StartDate: strPtr("2025-01-10"), ExpectedEndDate: strPtr("2025-01-01")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := testutil.Do(t, f.app, http.MethodPost, "/api/rentals", f.token, tc.body)
			testutil.RequireStatus(t, resp, http.StatusBadRequest)
		})
	}

	// Pending rentals accept item replacement.
	out := f.create(t, RentalRequest{CustomerID: &f.customer.ID, StartDate: strPtr("2025-01-01"),
		Items: &[]ItemRequest{{UnitPrice: 100}}})
	resp := testutil.Do(t, f.app, http.MethodPut, fmt.Sprintf("/api/rentals/%d", out.ID), f.token, RentalRequest{
		Items: &[]ItemRequest{{UnitPrice: 200, Days: 2}, {UnitPrice: 10}},
	})
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.Decode(t, resp, &out)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, 410.0, out.Subtotal)

	resp = testutil.Do(t, f.app, http.MethodGet, "/api/rentals?status=pending", f.token, nil)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var list []RentalResponse
	testutil.Decode(t, resp, &list)
	assert.Len(t, list, 1)
}

func ptrF(v float64) *float64 { return &v }

func TestActivateIsAtomic(t *testing.T) {
	f := setup(t)
	out := f.create(t, RentalRequest{
		CustomerID: &f.customer.ID,
		StartDate:  strPtr("2025-03-01"),
		Items:      &[]ItemRequest{{EquipmentID: &f.crane.ID, UnitPrice: 800}},
	})
	require.NoError(t, f.db.Model(&f.crane).Update("status", models.EquipmentStatusUnderMaintenance).Error)

	_, err := Activate(f.db, out.ID)
	assert.Equal(t, apperror.CodeConflict, apperror.GetCode(err))
	var r models.Rental
	require.NoError(t, f.db.First(&r, out.ID).Error)
	assert.Equal(t, models.RentalStatusPending, r.Status)

	require.NoError(t, f.db.Model(&f.crane).Update("status", models.EquipmentStatusAvailable).Error)
	activated, err := Activate(f.db, out.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RentalStatusActive, activated.Status)

	_, err = Activate(f.db, out.ID)
	assert.Equal(t, apperror.CodeConflict, apperror.GetCode(err))

	var deployed int64
	require.NoError(t, f.db.Model(&models.EquipmentRentalHistory{}).
		Where("rental_id = ? AND status = ?", out.ID, models.HistoryStatusActive).Count(&deployed).Error)
	assert.Equal(t, int64(1), deployed)
}
