package employee

import (
	"fmt"
	"time"

	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

type DepartmentCount struct {
	DepartmentID *uint  `json:"department_id"`
	Name         string `json:"name"`
	Count        int64  `json:"count"`
}

type StatisticsResponse struct {
	Total        int64                           `json:"total"`
	ByStatus     map[models.EmployeeStatus]int64 `json:"by_status"`
	ByDepartment []DepartmentCount               `json:"by_department"`
}

// GET /api/employees/statistics
func StatisticsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := visible(c)
		if err != nil {
			return err
		}

		res := StatisticsResponse{
			ByStatus: map[models.EmployeeStatus]int64{
				models.EmployeeStatusActive:     0,
				models.EmployeeStatusInactive:   0,
				models.EmployeeStatusOnLeave:    0,
				models.EmployeeStatusTerminated: 0,
			},
			ByDepartment: []DepartmentCount{},
		}

		var rows []models.Employee
		if err := q.Select("id", "status", "department_id").Preload("Department").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load statistics")
		}

		deptIndex := map[uint]int{}
		unassigned := -1
		for _, e := range rows {
			res.Total++
			res.ByStatus[e.Status]++

			if e.DepartmentID == nil || e.Department == nil {
				if unassigned < 0 {
					res.ByDepartment = append(res.ByDepartment, DepartmentCount{Name: "Unassigned"})
					unassigned = len(res.ByDepartment) - 1
				}
				res.ByDepartment[unassigned].Count++
				continue
			}
			i, ok := deptIndex[*e.DepartmentID]
			if !ok {
				res.ByDepartment = append(res.ByDepartment, DepartmentCount{DepartmentID: e.DepartmentID, Name: e.Department.Name})
				i = len(res.ByDepartment) - 1
				deptIndex[*e.DepartmentID] = i
			}
			res.ByDepartment[i].Count++
		}
		return c.JSON(res)
	}
}

var exportHeaders = []string{
	"File Number", "First Name", "Last Name", "Department", "Position", "Status",
	"Email", "Phone", "Nationality", "Iqama Number", "Hire Date", "Basic Salary",
}

// GET /api/employees/export
func ExportEmployeesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := visible(c)
		if err != nil {
			return err
		}
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}

		var rows []models.Employee
		if err := q.Preload("Department").Order("file_number ASC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load employees")
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
			fmt.Sprintf(`attachment; filename="employees-%s.xlsx"`, time.Now().Format("20060102")))
		return c.Send(buf.Bytes())
	}
}

func buildWorkbook(rows []models.Employee) (*excelize.File, error) {
	const sheet = "Employees"
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

	for r, e := range rows {
		dept := ""
		if e.Department != nil {
			dept = e.Department.Name
		}
		hire := ""
		if e.HireDate != nil {
			hire = dateutil.Format(*e.HireDate)
		}
		values := []any{
			e.FileNumber, e.FirstName, e.LastName, dept, e.Position, string(e.Status),
			e.Email, e.Phone, e.Nationality, e.IqamaNumber, hire, e.BasicSalary,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return f, nil
}
