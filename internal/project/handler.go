package project

import (
	"fmt"
	"strings"

	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ProjectRequest struct {
	CompanyID   *uint    `json:"company_id"`
	CustomerID  *uint    `json:"customer_id"`
	Name        *string  `json:"name"`
	Code        *string  `json:"code"`
	Location    *string  `json:"location"`
	StartDate   *string  `json:"start_date"`
	EndDate     *string  `json:"end_date"`
	Status      *string  `json:"status"`
	Budget      *float64 `json:"budget"`
	Description *string  `json:"description"`
}

type ProjectResponse struct {
	ID           uint                 `json:"id"`
	CompanyID    uint                 `json:"company_id"`
	CustomerID   *uint                `json:"customer_id"`
	CustomerName string               `json:"customer_name"`
	Name         string               `json:"name"`
	Code         string               `json:"code"`
	Location     string               `json:"location"`
	StartDate    *string              `json:"start_date"`
	EndDate      *string              `json:"end_date"`
	Status       models.ProjectStatus `json:"status"`
	Budget       float64              `json:"budget"`
	Description  string               `json:"description"`
	CreatedAt    string               `json:"created_at"`
}

func toResponse(p *models.Project) ProjectResponse {
	res := ProjectResponse{
		ID:          p.ID,
		CompanyID:   p.CompanyID,
		CustomerID:  p.CustomerID,
		Name:        p.Name,
		Code:        p.Code,
		Location:    p.Location,
		StartDate:   dateutil.FormatPtr(p.StartDate),
		EndDate:     dateutil.FormatPtr(p.EndDate),
		Status:      p.Status,
		Budget:      p.Budget,
		Description: p.Description,
		CreatedAt:   dateutil.FormatDateTime(p.CreatedAt),
	}
	if p.Customer != nil {
		res.CustomerName = p.Customer.Name
	}
	return res
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func load(c *fiber.Ctx) (*models.Project, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var p models.Project
	if err := database.DB.Scopes(scope).Preload("Customer").First(&p, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Project not found")
	}
	return &p, nil
}

func apply(db *gorm.DB, p *models.Project, body *ProjectRequest) error {
	setString(&p.Name, body.Name)
	setString(&p.Code, body.Code)
	setString(&p.Location, body.Location)
	setString(&p.Description, body.Description)
	if body.Budget != nil {
		if *body.Budget < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Budget cannot be negative")
		}
		p.Budget = *body.Budget
	}
	if body.Status != nil {
		s := models.ProjectStatus(*body.Status)
		if !s.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid project status")
		}
		p.Status = s
	}

	var err error
	if body.StartDate != nil {
		if p.StartDate, err = dateutil.ParseOptional(body.StartDate); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if body.EndDate != nil {
		if p.EndDate, err = dateutil.ParseOptional(body.EndDate); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return fiber.NewError(fiber.StatusBadRequest, "end_date cannot be before start_date")
	}

	if body.CustomerID != nil {
		if *body.CustomerID == 0 {
			p.CustomerID = nil
			p.Customer = nil
			return nil
		}
		var cu models.Customer
		if err := db.Where("company_id = ?", p.CompanyID).First(&cu, *body.CustomerID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Customer not found")
		}
		p.CustomerID = &cu.ID
		p.Customer = &cu
	}
	return nil
}

// GET /api/projects?status=&customer_id=&q=
func ListProjectsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope).Preload("Customer")
		if s := c.Query("status"); s != "" {
			q = q.Where("status = ?", s)
		}
		if s := c.Query("customer_id"); s != "" {
			q = q.Where("customer_id = ?", s)
		}
		if s := strings.TrimSpace(c.Query("q")); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			q = q.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(location) LIKE ?", like, like, like)
		}

		var rows []models.Project
		if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list projects")
		}
		res := make([]ProjectResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/projects/:id
func GetProjectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// POST /api/projects
func CreateProjectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		companyID, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}
		if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Project name is required")
		}

		p := models.Project{CompanyID: companyID, Status: models.ProjectStatusPlanning}
		if err := apply(database.DB, &p, &body); err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Customer").Create(&p).Error; err != nil {
				return err
			}
			return rec.Log(tx, companyID, "project", p.ID, models.AuditActionCreate,
				fmt.Sprintf("Project %s created", p.Name), nil, p)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create project")
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&p))
	}
}

// PUT /api/projects/:id
func UpdateProjectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}
		var body ProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name != nil && strings.TrimSpace(*body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Project name is required")
		}

		before := *p
		before.Customer = nil
		if err := apply(database.DB, p, &body); err != nil {
			return err
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Customer").Save(p).Error; err != nil {
				return err
			}
			return rec.Log(tx, p.CompanyID, "project", p.ID, models.AuditActionUpdate,
				fmt.Sprintf("Project %s updated", p.Name), before, p)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update project")
		}
		return c.JSON(toResponse(p))
	}
}

// DELETE /api/projects/:id
func DeleteProjectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}

		var inUse int64
		if err := database.DB.Model(&models.EmployeeAssignment{}).
			Where("project_id = ? AND status = ?", p.ID, models.AssignmentStatusActive).Count(&inUse).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not check project usage")
		}
		if inUse == 0 {
			if err := database.DB.Model(&models.EquipmentRentalHistory{}).
				Where("project_id = ? AND status = ?", p.ID, models.HistoryStatusActive).Count(&inUse).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not check project usage")
			}
		}
		if inUse > 0 {
			return fiber.NewError(fiber.StatusConflict, "Project still has active assignments")
		}

		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}
		p.Customer = nil
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&models.Project{}, p.ID).Error; err != nil {
				return err
			}
			return rec.Log(tx, p.CompanyID, "project", p.ID, models.AuditActionDelete,
				fmt.Sprintf("Project %s deleted", p.Name), p, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete project")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type ResourceEmployee struct {
	AssignmentID uint   `json:"assignment_id"`
	EmployeeID   uint   `json:"employee_id"`
	Name         string `json:"name"`
	StartDate    string `json:"start_date"`
}

type ResourceEquipment struct {
	HistoryID   uint   `json:"history_id"`
	EquipmentID uint   `json:"equipment_id"`
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
}

// GET /api/projects/:id/resources
//
// Employees and equipment currently deployed on the project.
func ResourcesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := load(c)
		if err != nil {
			return err
		}

		var assignments []models.EmployeeAssignment
		if err := database.DB.Preload("Employee").
			Where("project_id = ? AND status = ?", p.ID, models.AssignmentStatusActive).
			Order("start_date ASC, id ASC").Find(&assignments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load project employees")
		}
		var history []models.EquipmentRentalHistory
		if err := database.DB.Preload("Equipment").
			Where("project_id = ? AND status = ?", p.ID, models.HistoryStatusActive).
			Order("start_date ASC, id ASC").Find(&history).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load project equipment")
		}

		employees := make([]ResourceEmployee, 0, len(assignments))
		for _, a := range assignments {
			r := ResourceEmployee{AssignmentID: a.ID, EmployeeID: a.EmployeeID, StartDate: dateutil.Format(a.StartDate)}
			if a.Employee != nil {
				r.Name = a.Employee.FullName()
			}
			employees = append(employees, r)
		}
		equipment := make([]ResourceEquipment, 0, len(history))
		for _, h := range history {
			r := ResourceEquipment{HistoryID: h.ID, EquipmentID: h.EquipmentID, StartDate: dateutil.Format(h.StartDate)}
			if h.Equipment != nil {
				r.Name = h.Equipment.Name
			}
			equipment = append(equipment, r)
		}
		return c.JSON(fiber.Map{
			"project":   toResponse(p),
			"employees": employees,
			"equipment": equipment,
		})
	}
}
