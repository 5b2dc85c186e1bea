package payroll

import (
	"fmt"

	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{
	"File Number", "Employee", "Month", "Year", "Basic Salary", "Hours", "Overtime Hours",
	"Overtime Amount", "Bonus", "Deduction", "Final Amount", "Currency", "Status",
}

// GET /api/payroll/export?month=&year=
func ExportPayrollHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		month, year := c.QueryInt("month"), c.QueryInt("year")
		if err := ValidatePeriod(month, year); err != nil {
			return err
		}
		q, err := scoped(c)
		if err != nil {
			return err
		}

		var rows []models.Payroll
		if err := q.Preload("Employee").Order("employee_id ASC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load payrolls")
		}

		f, err := buildWorkbook(rows)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build export")
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build export")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="payroll-%04d-%02d.xlsx"`, year, month))
		return c.Send(buf.Bytes())
	}
}

func buildWorkbook(rows []models.Payroll) (*excelize.File, error) {
	const sheet = "Payroll"
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	f.SetCellStyle(sheet, "A1", last, bold)

	var total float64
	for r, p := range rows {
		fileNumber, name := "", ""
		if p.Employee != nil {
			fileNumber, name = p.Employee.FileNumber, p.Employee.FullName()
		}
		values := []any{
			fileNumber, name, p.Month, p.Year, p.BaseSalary, p.TotalHours, p.OvertimeHours,
			p.OvertimeAmount, p.BonusAmount, p.DeductionAmount, p.FinalAmount, p.Currency, string(p.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
		total += p.FinalAmount
	}

	// Totals row under the Final Amount column.
	totalRow := len(rows) + 2
	label, _ := excelize.CoordinatesToCellName(len(exportHeaders)-3, totalRow)
	sum, _ := excelize.CoordinatesToCellName(len(exportHeaders)-2, totalRow)
	f.SetCellValue(sheet, label, "Total")
	f.SetCellValue(sheet, sum, round2(total))
	f.SetCellStyle(sheet, label, sum, bold)
	return f, nil
}
