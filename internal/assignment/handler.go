package assignment

import (
	"fmt"

	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateAssignmentRequest struct {
	Type      models.AssignmentType `json:"type"`
	Name      string                `json:"name"`
	Location  string                `json:"location"`
	ProjectID *uint                 `json:"project_id"`
	RentalID  *uint                 `json:"rental_id"`
	StartDate string                `json:"start_date"`
	EndDate   *string               `json:"end_date"`
	Notes     string                `json:"notes"`
}

type CompleteAssignmentRequest struct {
	EndDate *string `json:"end_date"`
}

type AssignmentResponse struct {
	ID         uint                    `json:"id"`
	EmployeeID uint                    `json:"employee_id"`
	Type       models.AssignmentType   `json:"type"`
	Name       string                  `json:"name"`
	Location   string                  `json:"location"`
	ProjectID  *uint                   `json:"project_id"`
	RentalID   *uint                   `json:"rental_id"`
	StartDate  string                  `json:"start_date"`
	EndDate    *string                 `json:"end_date"`
	Status     models.AssignmentStatus `json:"status"`
	Notes      string                  `json:"notes"`
}

func toResponse(a *models.EmployeeAssignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         a.ID,
		EmployeeID: a.EmployeeID,
		Type:       a.Type,
		Name:       a.Name,
		Location:   a.Location,
		ProjectID:  a.ProjectID,
		RentalID:   a.RentalID,
		StartDate:  dateutil.Format(a.StartDate),
		EndDate:    dateutil.FormatPtr(a.EndDate),
		Status:     a.Status,
		Notes:      a.Notes,
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

func loadAssignment(c *fiber.Ctx, db *gorm.DB) (*models.EmployeeAssignment, *models.Employee, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, nil, err
	}
	var a models.EmployeeAssignment
	if err := db.First(&a, id).Error; err != nil {
		return nil, nil, fiber.NewError(fiber.StatusNotFound, "Assignment not found")
	}
	emp, err := auth.LoadEmployee(c, db, a.EmployeeID)
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusNotFound, "Assignment not found")
	}
	return &a, emp, nil
}

// GET /api/employees/:id/assignments
func ListAssignmentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		empID, err := parseID(c)
		if err != nil {
			return err
		}
		if _, err := auth.LoadEmployee(c, database.DB, empID); err != nil {
			return err
		}

		q := database.DB.Where("employee_id = ?", empID)
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}

		var rows []models.EmployeeAssignment
		if err := q.Order("start_date DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list assignments")
		}

		res := make([]AssignmentResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/employees/:id/assignments
func CreateAssignmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		empID, err := parseID(c)
		if err != nil {
			return err
		}
		emp, err := auth.LoadEmployee(c, database.DB, empID)
		if err != nil {
			return err
		}

		var body CreateAssignmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		start, err := dateutil.Parse(body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		end, err := dateutil.ParseOptional(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		var created *models.EmployeeAssignment
		err = database.Transaction(func(tx *gorm.DB) error {
			created, err = Create(tx, CreateInput{
				EmployeeID:   emp.ID,
				Type:         body.Type,
				Name:         body.Name,
				Location:     body.Location,
				ProjectID:    body.ProjectID,
				RentalID:     body.RentalID,
				StartDate:    start,
				EndDate:      end,
				Notes:        body.Notes,
				AssignedByID: &rec.UserID,
			})
			if err != nil {
				return err
			}
			return rec.Log(tx, emp.CompanyID, "employee_assignment", created.ID, models.AuditActionCreate,
				fmt.Sprintf("Assignment %q for %s", created.Name, emp.FullName()), nil, created)
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(created))
	}
}

// PUT /api/assignments/:id/complete
func CompleteAssignmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, emp, err := loadAssignment(c, database.DB)
		if err != nil {
			return err
		}

		var body CompleteAssignmentRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
			}
		}
		end, err := dateutil.ParseOptional(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		var done *models.EmployeeAssignment
		err = database.Transaction(func(tx *gorm.DB) error {
			done, err = Complete(tx, a.ID, end)
			if err != nil {
				return err
			}
			return rec.Log(tx, emp.CompanyID, "employee_assignment", a.ID, models.AuditActionUpdate,
				fmt.Sprintf("Completed assignment %q", a.Name), a, done)
		})
		if err != nil {
			return err
		}
		return c.JSON(toResponse(done))
	}
}

// DELETE /api/assignments/:id
func DeleteAssignmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, emp, err := loadAssignment(c, database.DB)
		if err != nil {
			return err
		}
		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&models.EmployeeAssignment{}, a.ID).Error; err != nil {
				return err
			}
			return rec.Log(tx, emp.CompanyID, "employee_assignment", a.ID, models.AuditActionDelete,
				fmt.Sprintf("Deleted assignment %q", a.Name), a, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete assignment")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/employees/:id/assignments/reconcile
func ReconcileHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		empID, err := parseID(c)
		if err != nil {
			return err
		}
		if _, err := auth.LoadEmployee(c, database.DB, empID); err != nil {
			return err
		}

		changes, err := ReconcileEmployee(database.DB, empID)
		if err != nil {
			return err
		}
		if changes == nil {
			changes = []Change{}
		}
		return c.JSON(fiber.Map{
			"employee_id": empID,
			"changed":     len(changes),
			"changes":     changes,
		})
	}
}
