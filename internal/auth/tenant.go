package auth

import (
	"strconv"

	"snd-backend/internal/database"
	"snd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ParseID reads a positive decimal id. Signs, blanks and trailing characters are rejected.
func ParseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Identity is the caller as carried by the access token.
type Identity struct {
	UserID    uint
	Role      models.RoleName
	CompanyID *uint
}

func (i Identity) IsSuperAdmin() bool {
	return i.Role == models.RoleSuperAdmin
}

// SelfService roles only ever see records of the employee linked to their account.
func (i Identity) SelfService() bool {
	switch i.Role {
	case models.RoleEmployee, models.RoleOperator, models.RoleUser:
		return true
	}
	return false
}

func CurrentIdentity(c *fiber.Ctx) (Identity, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusForbidden, "User missing from session")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.RoleName)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusForbidden, "Role missing from session")
	}
	companyID, _ := c.Locals(CtxCompanyIDKey).(*uint)
	return Identity{UserID: userID, Role: role, CompanyID: companyID}, nil
}

// CurrentUser loads the caller's user row, for audit names and the like.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	id, err := CurrentIdentity(c)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := database.DB.First(&user, "id = ?", id.UserID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found")
	}
	return &user, nil
}

// CompanyIDFromBodyOrRole resolves the company a write goes to. Super admins
// must name it; everyone else writes into their own company.
func CompanyIDFromBodyOrRole(c *fiber.Ctx, bodyCompanyID *uint) (uint, error) {
	id, err := CurrentIdentity(c)
	if err != nil {
		return 0, err
	}
	if !id.IsSuperAdmin() {
		if id.CompanyID == nil {
			return 0, fiber.NewError(fiber.StatusForbidden, "User is not attached to a company")
		}
		return *id.CompanyID, nil
	}
	if bodyCompanyID == nil || *bodyCompanyID == 0 {
		if id.CompanyID != nil {
			return *id.CompanyID, nil
		}
		return 0, fiber.NewError(fiber.StatusBadRequest, "company_id is required")
	}
	return *bodyCompanyID, nil
}

// CompanyIDFromQueryOrRole is CompanyIDFromBodyOrRole reading ?company_id=.
func CompanyIDFromQueryOrRole(c *fiber.Ctx) (uint, error) {
	var fromQuery *uint
	if s := c.Query("company_id"); s != "" {
		cid, ok := ParseID(s)
		if !ok {
			return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid company_id")
		}
		fromQuery = &cid
	}
	return CompanyIDFromBodyOrRole(c, fromQuery)
}

// CompanyScope filters company-owned tables. Super admins see every company
// unless ?company_id= narrows it.
func CompanyScope(c *fiber.Ctx) (func(*gorm.DB) *gorm.DB, error) {
	id, err := CurrentIdentity(c)
	if err != nil {
		return nil, err
	}
	if id.IsSuperAdmin() {
		s := c.Query("company_id")
		if s == "" {
			return func(db *gorm.DB) *gorm.DB { return db }, nil
		}
		cid, ok := ParseID(s)
		if !ok {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid company_id")
		}
		return func(db *gorm.DB) *gorm.DB { return db.Where("company_id = ?", cid) }, nil
	}
	if id.CompanyID == nil {
		return func(db *gorm.DB) *gorm.DB { return db.Where("1 = 0") }, nil
	}
	cid := *id.CompanyID
	return func(db *gorm.DB) *gorm.DB { return db.Where("company_id = ?", cid) }, nil
}

// EmployeeScope filters tables keyed by employee_id to the caller's company,
// and to the caller's own employee record for self-service roles.
func EmployeeScope(c *fiber.Ctx) (func(*gorm.DB) *gorm.DB, error) {
	id, err := CurrentIdentity(c)
	if err != nil {
		return nil, err
	}
	companyScope, err := CompanyScope(c)
	if err != nil {
		return nil, err
	}
	return func(db *gorm.DB) *gorm.DB {
		employees := db.Session(&gorm.Session{NewDB: true}).Model(&models.Employee{}).Select("id").Scopes(companyScope)
		if id.SelfService() {
			employees = employees.Where("user_id = ?", id.UserID)
		}
		return db.Where("employee_id IN (?)", employees)
	}, nil
}

// LoadEmployee fetches an employee visible to the caller.
func LoadEmployee(c *fiber.Ctx, db *gorm.DB, employeeID uint) (*models.Employee, error) {
	scope, err := CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var emp models.Employee
	if err := db.Scopes(scope).First(&emp, "id = ?", employeeID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Employee not found")
	}
	return &emp, nil
}
