package erpnext

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"snd-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.ERPNextConfig{URL: srv.URL + "/", APIKey: "key", APISecret: "secret"})
}

func TestDisabledClient(t *testing.T) {
	c := New(config.ERPNextConfig{})
	assert.False(t, c.Enabled())
	_, err := c.GetCustomer(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestGetCustomer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token key:secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/resource/Customer/Al%20Rajhi", r.URL.EscapedPath())
		w.Write([]byte(`{"data":{"name":"Al Rajhi","customer_name":"Al Rajhi Co","credit_limit":"2500.5","disabled":0}}`))
	})

	rec, err := c.GetCustomer(context.Background(), "Al Rajhi")
	require.NoError(t, err)
	assert.Equal(t, "Al Rajhi Co", rec.String("customer_name"))
	assert.Equal(t, 2500.5, rec.Float("credit_limit"))
	disabled, ok := rec.Bool("disabled")
	assert.True(t, ok)
	assert.False(t, disabled)
}

func TestNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"exc_type":"DoesNotExistError"}`, http.StatusNotFound)
	})
	_, err := c.GetCustomer(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestListCustomers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/resource/Customer":
			assert.Equal(t, "1000", r.URL.Query().Get("limit_page_length"))
			w.Write([]byte(`{"data":[{"name":"A"},{"name":""},{"name":"B"}]}`))
		default:
			name := r.URL.Path[len("/api/resource/Customer/"):]
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"name": name, "city": "Dammam"}})
		}
	})

	all, err := c.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B", all[1].String("name"))
	assert.Equal(t, "Dammam", all[0].String("city"))
}

func TestCreateAndSubmitInvoice(t *testing.T) {
	var got SalesInvoice
	var submitted bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/api/resource/Sales%20Invoice", r.URL.EscapedPath())
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"data":{"name":"ACC-SINV-2025-00001"}}`))
		case http.MethodPut:
			submitted = true
			w.Write([]byte(`{"data":{}}`))
		}
	})

	inv := NewSalesInvoice("Al Rajhi", "2025-05-01", "2025-05-31")
	_, err := c.CreateSalesInvoice(context.Background(), inv)
	assert.Error(t, err)

	inv.Items = []InvoiceItem{{ItemCode: RentalItemSKU, ItemName: "Crane", Qty: 1, Rate: 1000, Amount: 1000, UOM: "Nos"}}
	name, err := c.CreateSalesInvoice(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "ACC-SINV-2025-00001", name)
	assert.Equal(t, "SAR", got.Currency)
	require.Len(t, got.Taxes, 1)
	assert.Equal(t, VATAccount, got.Taxes[0].AccountHead)
	assert.Equal(t, 15.0, got.Taxes[0].Rate)

	require.NoError(t, c.SubmitSalesInvoice(context.Background(), name))
	assert.True(t, submitted)
}
