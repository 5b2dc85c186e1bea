package admin

import (
	"fmt"
	"strings"

	"snd-backend/internal/auth"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
	"snd-backend/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserResponse struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        models.RoleName `json:"role"`
	CompanyID   *uint           `json:"company_id"`
	IsActive    bool            `json:"is_active"`
	LastLoginAt *string         `json:"last_login_at"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.RoleName(),
		CompanyID:   u.CompanyID,
		IsActive:    u.IsActive,
		LastLoginAt: dateutil.FormatDateTimePtr(u.LastLoginAt),
		CreatedAt:   dateutil.FormatDateTime(u.CreatedAt),
		UpdatedAt:   dateutil.FormatDateTime(u.UpdatedAt),
	}
}

type newUser struct {
	CompanyID *uint
	Name      string
	Email     string
	Password  string
	Role      models.RoleName
}

func emailTaken(db *gorm.DB, email string, exceptID uint) bool {
	var n int64
	db.Model(&models.User{}).Where("email = ? AND id <> ?", email, exceptID).Count(&n)
	return n > 0
}

func createUser(db *gorm.DB, in newUser) (*models.User, error) {
	in.Email = auth.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Name, email and password are required")
	}
	if !strings.Contains(in.Email, "@") {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid email")
	}
	if emailTaken(db, in.Email, 0) {
		return nil, fiber.NewError(fiber.StatusConflict, "This email is already registered")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	role, err := rbac.FindRole(db, in.Role)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Unknown role")
	}

	user := models.User{
		CompanyID:    in.CompanyID,
		RoleID:       &role.ID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not create user")
	}
	user.Role = role
	return &user, nil
}

// loadUser fetches a user the caller may manage. Company admins never see
// accounts outside their company, super admins included.
func loadUser(c *fiber.Ctx, id uint) (*models.User, error) {
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := database.DB.Scopes(scope).Preload("Role").First(&u, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "User not found")
	}
	return &u, nil
}

// checkAssignable stops non-super admins from handing out SUPER_ADMIN.
func checkAssignable(c *fiber.Ctx, role models.RoleName) error {
	if role != models.RoleSuperAdmin {
		return nil
	}
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	if !id.IsSuperAdmin() {
		return fiber.NewError(fiber.StatusForbidden, "Only a super admin can grant SUPER_ADMIN")
	}
	return nil
}

// GET /api/users?q=&role=
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.CompanyScope(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope).Preload("Role")
		if s := strings.TrimSpace(c.Query("q")); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
		}
		if s := c.Query("role"); s != "" {
			q = q.Where("role_id IN (?)", database.DB.Model(&models.Role{}).Select("id").Where("name = ?", strings.ToUpper(s)))
		}

		var users []models.User
		if err := q.Order("name ASC, id ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list users")
		}
		res := make([]UserResponse, 0, len(users))
		for i := range users {
			res = append(res, toUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}

type CreateUserRequest struct {
	CompanyID *uint  `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

// POST /api/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		role := models.RoleUser
		if body.Role != "" {
			role = models.RoleName(strings.ToUpper(strings.TrimSpace(body.Role)))
		}
		if err := checkAssignable(c, role); err != nil {
			return err
		}

		var companyID *uint
		if role != models.RoleSuperAdmin {
			cid, err := auth.CompanyIDFromBodyOrRole(c, body.CompanyID)
			if err != nil {
				return err
			}
			companyID = &cid
		}

		user, err := createUser(database.DB, newUser{
			CompanyID: companyID,
			Name:      body.Name,
			Email:     body.Email,
			Password:  body.Password,
			Role:      role,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

// PUT /api/users/:id
func UpdateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		user, err := loadUser(c, id)
		if err != nil {
			return err
		}
		var body UpdateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			user.Name = name
		}
		if body.Email != nil {
			email := auth.NormalizeEmail(*body.Email)
			if email == "" || !strings.Contains(email, "@") {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid email")
			}
			if emailTaken(database.DB, email, user.ID) {
				return fiber.NewError(fiber.StatusConflict, "This email is already registered")
			}
			user.Email = email
		}
		if body.Password != nil {
			hash, err := auth.HashPassword(*body.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}
		if body.IsActive != nil {
			ident, err := auth.CurrentIdentity(c)
			if err != nil {
				return err
			}
			if ident.UserID == user.ID && !*body.IsActive {
				return fiber.NewError(fiber.StatusBadRequest, "You cannot deactivate your own account")
			}
			user.IsActive = *body.IsActive
		}

		err = database.DB.Model(user).Select("name", "email", "password_hash", "is_active").Updates(user).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update user")
		}
		return c.JSON(toUserResponse(user))
	}
}

type UpdateUserRoleRequest struct {
	Role string `json:"role"`
}

// PUT /api/users/:id/role
func UpdateUserRoleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		user, err := loadUser(c, id)
		if err != nil {
			return err
		}
		var body UpdateUserRoleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		name := models.RoleName(strings.ToUpper(strings.TrimSpace(body.Role)))
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "role is required")
		}
		if err := checkAssignable(c, name); err != nil {
			return err
		}
		if user.RoleName() == models.RoleSuperAdmin && name != models.RoleSuperAdmin {
			return fiber.NewError(fiber.StatusConflict, "The super admin role cannot be taken away")
		}

		var role models.Role
		if err := database.DB.Where("name = ?", name).First(&role).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Unknown role")
		}
		if err := database.DB.Model(user).Update("role_id", role.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update role")
		}
		user.RoleID = &role.ID
		user.Role = &role
		return c.JSON(toUserResponse(user))
	}
}

type UserPermissionsResponse struct {
	UserID    uint            `json:"user_id"`
	Role      models.RoleName `json:"role"`
	Direct    []string        `json:"direct"`
	Effective []string        `json:"effective"`
}

// GET /api/users/:id/permissions
func UserPermissionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		user, err := loadUser(c, id)
		if err != nil {
			return err
		}
		var direct []models.Permission
		if err := database.DB.Model(user).Association("Permissions").Find(&direct); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load permissions")
		}
		effective, err := rbac.EffectivePermissions(database.DB, user.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load permissions")
		}

		names := make([]string, 0, len(direct))
		for _, p := range direct {
			names = append(names, p.Name)
		}
		return c.JSON(UserPermissionsResponse{
			UserID:    user.ID,
			Role:      user.RoleName(),
			Direct:    names,
			Effective: effective,
		})
	}
}

type PermissionSetRequest struct {
	Permissions []string `json:"permissions"`
}

// PUT /api/users/:id/permissions replaces the direct grants.
func UpdateUserPermissionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		user, err := loadUser(c, id)
		if err != nil {
			return err
		}
		var body PermissionSetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		perms, err := findPermissions(database.DB, body.Permissions)
		if err != nil {
			return err
		}
		if err := grantable(c, perms); err != nil {
			return err
		}
		if err := database.DB.Model(user).Association("Permissions").Replace(perms); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update permissions")
		}
		return c.JSON(fiber.Map{"message": fmt.Sprintf("%d permissions granted", len(perms))})
	}
}
