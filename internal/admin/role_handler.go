package admin

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/models"
	"snd-backend/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	roleNamePattern       = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,49}$`)
	permissionNamePattern = regexp.MustCompile(`^[a-z]+\.[A-Za-z]+$`)
)

func validPermissionName(name string) bool {
	return name == rbac.WildcardAll || permissionNamePattern.MatchString(name)
}

// findPermissions resolves names to rows; every name must exist.
func findPermissions(db *gorm.DB, names []string) ([]models.Permission, error) {
	uniq := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		uniq = append(uniq, n)
	}
	if len(uniq) == 0 {
		return []models.Permission{}, nil
	}
	var perms []models.Permission
	if err := db.Where("name IN ?", uniq).Find(&perms).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not load permissions")
	}
	if len(perms) != len(uniq) {
		found := map[string]bool{}
		for _, p := range perms {
			found[p.Name] = true
		}
		var missing []string
		for _, n := range uniq {
			if !found[n] {
				missing = append(missing, n)
			}
		}
		return nil, fiber.NewError(fiber.StatusBadRequest, "Unknown permissions: "+strings.Join(missing, ", "))
	}
	return perms, nil
}

// grantable keeps the global wildcards in super admin hands.
func grantable(c *fiber.Ctx, perms []models.Permission) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	if id.IsSuperAdmin() {
		return nil
	}
	for _, p := range perms {
		if p.Name == rbac.WildcardAll || p.Name == rbac.ManageAll {
			return fiber.NewError(fiber.StatusForbidden, "Only a super admin can grant "+p.Name)
		}
	}
	return nil
}

type RoleResponse struct {
	ID          uint            `json:"id"`
	Name        models.RoleName `json:"name"`
	Description string          `json:"description"`
	Permissions []string        `json:"permissions"`
	Users       int64           `json:"users"`
}

func toRoleResponse(db *gorm.DB, r *models.Role) RoleResponse {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	var n int64
	db.Model(&models.User{}).Where("role_id = ?", r.ID).Count(&n)
	return RoleResponse{ID: r.ID, Name: r.Name, Description: r.Description, Permissions: names, Users: n}
}

// GET /api/roles
func ListRolesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var roles []models.Role
		if err := database.DB.Preload("Permissions").Order("id ASC").Find(&roles).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list roles")
		}
		res := make([]RoleResponse, 0, len(roles))
		for i := range roles {
			res = append(res, toRoleResponse(database.DB, &roles[i]))
		}
		return c.JSON(res)
	}
}

type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// POST /api/roles
func CreateRoleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRoleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		name := strings.ToUpper(strings.TrimSpace(body.Name))
		if !roleNamePattern.MatchString(name) {
			return fiber.NewError(fiber.StatusBadRequest, "Role name must be upper case letters, digits and underscores")
		}
		var n int64
		database.DB.Model(&models.Role{}).Where("name = ?", name).Count(&n)
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, "Role already exists")
		}
		perms, err := findPermissions(database.DB, body.Permissions)
		if err != nil {
			return err
		}

		role := models.Role{Name: models.RoleName(name), Description: strings.TrimSpace(body.Description)}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Permissions").Create(&role).Error; err != nil {
				return err
			}
			return tx.Model(&role).Association("Permissions").Replace(perms)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create role")
		}
		role.Permissions = perms
		return c.Status(fiber.StatusCreated).JSON(toRoleResponse(database.DB, &role))
	}
}

// PUT /api/roles/:id/permissions replaces the role's permission set.
func UpdateRolePermissionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var role models.Role
		if err := database.DB.First(&role, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Role not found")
		}
		if role.Name == models.RoleSuperAdmin {
			return fiber.NewError(fiber.StatusForbidden, "The SUPER_ADMIN role cannot be changed")
		}
		var body PermissionSetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		perms, err := findPermissions(database.DB, body.Permissions)
		if err != nil {
			return err
		}
		if err := database.DB.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update role permissions")
		}
		role.Permissions = perms
		return c.JSON(toRoleResponse(database.DB, &role))
	}
}

// ----------------------------------------
// PERMISSIONS
// ----------------------------------------

type PermissionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func loadPermission(c *fiber.Ctx) (*models.Permission, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	var p models.Permission
	if err := database.DB.First(&p, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Permission not found")
	}
	return &p, nil
}

func applyPermission(p *models.Permission, body *PermissionRequest) error {
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if !validPermissionName(name) {
			return fiber.NewError(fiber.StatusBadRequest, `Permission names look like "action.Subject"`)
		}
		var n int64
		database.DB.Model(&models.Permission{}).Where("name = ? AND id <> ?", name, p.ID).Count(&n)
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, "Permission already exists")
		}
		p.Name = name
	}
	setString(&p.Description, body.Description)
	return nil
}

// GET /api/permissions
func ListPermissionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var perms []models.Permission
		if err := database.DB.Order("name ASC").Find(&perms).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list permissions")
		}
		return c.JSON(perms)
	}
}

// GET /api/permissions/:id
func GetPermissionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadPermission(c)
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
}

// POST /api/permissions
func CreatePermissionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PermissionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == nil {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}
		var p models.Permission
		if err := applyPermission(&p, &body); err != nil {
			return err
		}
		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create permission")
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// PUT /api/permissions/:id
func UpdatePermissionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadPermission(c)
		if err != nil {
			return err
		}
		if p.Name == rbac.WildcardAll || p.Name == rbac.ManageAll {
			return fiber.NewError(fiber.StatusForbidden, "Built-in wildcard permissions cannot be changed")
		}
		var body PermissionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := applyPermission(p, &body); err != nil {
			return err
		}
		if err := database.DB.Save(p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update permission")
		}
		return c.JSON(p)
	}
}

// DELETE /api/permissions/:id unlinks the permission from roles and users first.
func DeletePermissionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadPermission(c)
		if err != nil {
			return err
		}
		if p.Name == rbac.WildcardAll || p.Name == rbac.ManageAll {
			return fiber.NewError(fiber.StatusForbidden, "Built-in wildcard permissions cannot be deleted")
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			for _, table := range []string{"role_has_permissions", "model_has_permissions"} {
				if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE permission_id = ?", table), p.ID).Error; err != nil {
					return err
				}
			}
			return tx.Delete(&models.Permission{}, p.ID).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete permission")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
