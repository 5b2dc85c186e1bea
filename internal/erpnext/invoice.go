package erpnext

import (
	"context"
	"fmt"
)

const (
	VATRate       = 15.0
	VATAccount    = "VAT - SND"
	Currency      = "SAR"
	RentalItemSKU = "Equipment Rental"
)

type InvoiceItem struct {
	ItemCode    string  `json:"item_code"`
	ItemName    string  `json:"item_name"`
	Description string  `json:"description,omitempty"`
	Qty         float64 `json:"qty"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
	UOM         string  `json:"uom"`
}

type TaxRow struct {
	ChargeType  string  `json:"charge_type"`
	AccountHead string  `json:"account_head"`
	Description string  `json:"description"`
	Rate        float64 `json:"rate"`
}

type SalesInvoice struct {
	Doctype          string        `json:"doctype"`
	Customer         string        `json:"customer"`
	Company          string        `json:"company,omitempty"`
	PostingDate      string        `json:"posting_date"`
	DueDate          string        `json:"due_date"`
	SetPostingTime   int           `json:"set_posting_time"`
	FromDate         string        `json:"from_date,omitempty"`
	ToDate           string        `json:"to_date,omitempty"`
	Subject          string        `json:"custom_subject,omitempty"`
	Currency         string        `json:"currency"`
	DiscountAmount   float64       `json:"discount_amount,omitempty"`
	Items            []InvoiceItem `json:"items"`
	Taxes            []TaxRow      `json:"taxes"`
	SellingPriceList string        `json:"selling_price_list"`
}

// NewSalesInvoice fills the fixed parts of a KSA VAT invoice.
func NewSalesInvoice(customer, postingDate, dueDate string) SalesInvoice {
	return SalesInvoice{
		Doctype:          "Sales Invoice",
		Customer:         customer,
		PostingDate:      postingDate,
		DueDate:          dueDate,
		SetPostingTime:   1,
		Currency:         Currency,
		SellingPriceList: "Standard Selling",
		Taxes: []TaxRow{{
			ChargeType:  "On Net Total",
			AccountHead: VATAccount,
			Description: "VAT",
			Rate:        VATRate,
		}},
	}
}

// CreateSalesInvoice stores a draft invoice and returns its document name.
func (c *Client) CreateSalesInvoice(ctx context.Context, inv SalesInvoice) (string, error) {
	if len(inv.Items) == 0 {
		return "", fmt.Errorf("sales invoice needs at least one item")
	}
	var env envelope
	if err := c.do(ctx, "POST", resourcePath("Sales Invoice"), inv, &env); err != nil {
		return "", err
	}
	name := env.Data.String("name")
	if name == "" {
		return "", fmt.Errorf("sales invoice created without a name")
	}
	return name, nil
}

func (c *Client) SubmitSalesInvoice(ctx context.Context, name string) error {
	return c.do(ctx, "PUT", resourcePath("Sales Invoice", name), map[string]any{"docstatus": 1}, nil)
}
