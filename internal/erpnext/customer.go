package erpnext

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Record is an ERPNext document as loosely typed JSON. Webhook payloads and
// API responses disagree on field names and types, so values are read through
// the accessors below.
type Record map[string]any

// String returns the first non-empty value among keys.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func (r Record) Float(keys ...string) float64 {
	for _, k := range keys {
		switch v := r[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// Bool treats 1, "1", "true" and true as set.
func (r Record) Bool(key string) (value, ok bool) {
	switch v := r[key].(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	}
	return false, false
}

type envelope struct {
	Data Record `json:"data"`
}

type listEnvelope struct {
	Data []Record `json:"data"`
}

func (c *Client) GetCustomer(ctx context.Context, name string) (Record, error) {
	var env envelope
	if err := c.do(ctx, "GET", resourcePath("Customer", name), nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, fmt.Errorf("customer %s: empty response", name)
	}
	return env.Data, nil
}

// ListCustomers fetches every customer with full details.
func (c *Client) ListCustomers(ctx context.Context) ([]Record, error) {
	q := url.Values{}
	q.Set("limit_page_length", "1000")
	q.Set("fields", `["name"]`)

	var list listEnvelope
	if err := c.do(ctx, "GET", resourcePath("Customer")+"?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(list.Data))
	for _, item := range list.Data {
		name := item.String("name")
		if name == "" {
			continue
		}
		full, err := c.GetCustomer(ctx, name)
		if err != nil {
			return out, fmt.Errorf("fetch customer %s: %w", name, err)
		}
		out = append(out, full)
	}
	return out, nil
}
