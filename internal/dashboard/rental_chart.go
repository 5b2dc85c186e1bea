package dashboard

import (
	"strconv"
	"time"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ChartPoint struct {
	Label    string  `json:"label"` // bucket start date
	Rentals  int     `json:"rentals"`
	Revenue  float64 `json:"revenue"`
	Invoiced float64 `json:"invoiced"`
}

type ChartTotals struct {
	Rentals  int     `json:"rentals"`
	Revenue  float64 `json:"revenue"`
	Invoiced float64 `json:"invoiced"`
}

type ChartResponse struct {
	Period      string       `json:"period"` // daily | weekly | monthly
	From        string       `json:"from"`
	To          string       `json:"to"`
	Points      []ChartPoint `json:"points"`
	GrandTotals ChartTotals  `json:"grand_totals"`
}

// bucketStart truncates t to the start of its day, ISO week or month.
func bucketStart(period string, t time.Time) time.Time {
	d := dateutil.Day(t)
	switch period {
	case "weekly":
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case "monthly":
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
	}
	return d
}

func step(period string, t time.Time) time.Time {
	switch period {
	case "weekly":
		return t.AddDate(0, 0, 7)
	case "monthly":
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// Buckets returns count consecutive bucket starts ending with the one holding today.
func Buckets(period string, count int, today time.Time) []time.Time {
	last := bucketStart(period, today)
	var first time.Time
	switch period {
	case "weekly":
		first = last.AddDate(0, 0, -7*(count-1))
	case "monthly":
		first = last.AddDate(0, -(count - 1), 0)
	default:
		first = last.AddDate(0, 0, -(count - 1))
	}
	out := make([]time.Time, 0, count)
	for b := first; len(out) < count; b = step(period, b) {
		out = append(out, b)
	}
	return out
}

// Chart groups started, non-cancelled rentals into buckets by start date.
// Every bucket is present, empty ones with zeros.
func Chart(period string, buckets []time.Time, rentals []models.Rental) ChartResponse {
	resp := ChartResponse{Period: period, Points: make([]ChartPoint, len(buckets))}
	if len(buckets) == 0 {
		return resp
	}
	index := make(map[time.Time]int, len(buckets))
	for i, b := range buckets {
		index[b] = i
		resp.Points[i].Label = dateutil.Format(b)
	}
	end := step(period, buckets[len(buckets)-1])
	resp.From = dateutil.Format(buckets[0])
	resp.To = dateutil.Format(dateutil.DayBefore(end))

	for _, r := range rentals {
		if r.Status != models.RentalStatusActive && r.Status != models.RentalStatusCompleted {
			continue
		}
		i, ok := index[bucketStart(period, r.StartDate)]
		if !ok {
			continue
		}
		p := &resp.Points[i]
		p.Rentals++
		p.Revenue += r.TotalAmount
		if r.InvoiceID != "" {
			p.Invoiced += r.TotalAmount
		}
	}
	for _, p := range resp.Points {
		resp.GrandTotals.Rentals += p.Rentals
		resp.GrandTotals.Revenue += p.Revenue
		resp.GrandTotals.Invoiced += p.Invoiced
	}
	return resp
}

// GET /api/dashboard/rental-chart?period=daily&count=7
func RentalChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		period := c.Query("period", "daily")
		var count int
		switch period {
		case "weekly":
			count = 8
		case "monthly":
			count = 12
		case "daily":
			count = 7
		default:
			return fiber.NewError(fiber.StatusBadRequest, "period must be daily, weekly or monthly")
		}
		if s := c.Query("count"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 366 {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid count")
			}
			count = n
		}

		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		buckets := Buckets(period, count, dateutil.Today())
		from, to := buckets[0], step(period, buckets[len(buckets)-1])

		var rentals []models.Rental
		err = database.DB.Scopes(scope).
			Select("id", "start_date", "status", "total_amount", "invoice_id").
			Where("status IN ?", []models.RentalStatus{models.RentalStatusActive, models.RentalStatusCompleted}).
			Where("start_date >= ? AND start_date < ?", from, to).
			Find(&rentals).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load rentals")
		}
		return c.JSON(Chart(period, buckets, rentals))
	}
}
