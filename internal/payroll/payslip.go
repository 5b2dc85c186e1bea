package payroll

import (
	"bytes"
	"fmt"
	"time"

	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/go-pdf/fpdf"
	"github.com/gofiber/fiber/v2"
)

// Payslip renders a one page A4 payslip. Deduction lines are shown negative.
func Payslip(p *models.Payroll, company string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(company), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	period := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	pdf.CellFormat(0, 8, "Payslip for "+period.Format("January 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	name, fileNo, position := "", "", ""
	if p.Employee != nil {
		name, fileNo, position = p.Employee.FullName(), p.Employee.FileNumber, p.Employee.Position
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range [][2]string{
		{"Employee", name},
		{"File number", fileNo},
		{"Position", position},
		{"Status", string(p.Status)},
		{"Hours worked", fmt.Sprintf("%.2f", p.TotalHours)},
		{"Overtime hours", fmt.Sprintf("%.2f", p.OvertimeHours)},
	} {
		pdf.CellFormat(40, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(130, 7, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 7, "Amount ("+p.Currency+")", "1", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, it := range p.Items {
		amount := it.Amount
		if it.Type == models.PayrollItemDeduction {
			amount = -amount
		}
		pdf.CellFormat(130, 7, tr(it.Description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%.2f", amount), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 10)
	for _, row := range []struct {
		label  string
		amount float64
	}{
		{"Total deductions", -p.DeductionAmount},
		{"Net pay", p.FinalAmount},
	} {
		pdf.CellFormat(130, 7, row.label, "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%.2f", row.amount), "1", 1, "R", false, 0, "")
	}

	if p.PaidAt != nil {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 6, "Paid on "+dateutil.Format(*p.PaidAt), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GET /api/payroll/:id/payslip
func PayslipHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}
		company := "Payslip"
		if p.Employee != nil {
			var co models.Company
			if err := database.DB.Select("name").First(&co, p.Employee.CompanyID).Error; err == nil {
				company = co.Name
			}
		}
		data, err := Payslip(p, company)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not render payslip")
		}
		fileNo := fmt.Sprint(p.EmployeeID)
		if p.Employee != nil {
			fileNo = p.Employee.FileNumber
		}
		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="payslip-%s-%04d-%02d.pdf"`, fileNo, p.Year, p.Month))
		return c.Send(data)
	}
}
