package auth

import (
	"strings"
	"time"

	"snd-backend/internal/config"
	"snd-backend/internal/database"
	"snd-backend/internal/models"
	"snd-backend/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type RegisterSuperAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

const minPasswordLength = 8

// HashPassword wraps bcrypt with the length rule shared by every account form.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fiber.NewError(fiber.StatusBadRequest, "Password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fiber.NewError(fiber.StatusInternalServerError, "Could not hash password")
	}
	return string(hash), nil
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func RegisterSuperAdminHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterSuperAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Email = NormalizeEmail(body.Email)
		body.Name = strings.TrimSpace(body.Name)

		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name, email and password are required")
		}

		role, err := rbac.FindRole(database.DB, models.RoleSuperAdmin)
		if err != nil {
			zap.L().Error("load super admin role", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "Roles are not available")
		}

		var count int64
		database.DB.Model(&models.User{}).Where("role_id = ?", role.ID).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "A super admin already exists")
		}

		hash, err := HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: hash,
			RoleID:       &role.ID,
			IsActive:     true,
		}

		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "Could not create user, the email may already be in use")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  role.Name,
		})
	}
}

func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Email = NormalizeEmail(body.Email)

		var user models.User
		if err := database.DB.Preload("Role").Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		if !user.IsActive {
			return fiber.NewError(fiber.StatusForbidden, "Account is disabled")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create token")
		}

		now := time.Now()
		if err := database.DB.Model(&user).Update("last_login_at", now).Error; err != nil {
			zap.L().Warn("update last login", zap.Uint("user_id", user.ID), zap.Error(err))
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":         user.ID,
				"name":       user.Name,
				"email":      user.Email,
				"role":       user.RoleName(),
				"company_id": user.CompanyID,
			},
		})
	}
}

func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := CurrentIdentity(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := database.DB.Preload("Role").Preload("Company").First(&user, id.UserID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}

		perms, err := rbac.EffectivePermissions(database.DB, user.ID)
		if err != nil {
			return err
		}

		response := fiber.Map{
			"user_id":     user.ID,
			"name":        user.Name,
			"email":       user.Email,
			"role":        user.RoleName(),
			"company_id":  user.CompanyID,
			"permissions": perms,
		}
		if user.Company != nil {
			response["company"] = fiber.Map{
				"id":   user.Company.ID,
				"name": user.Company.Name,
				"code": user.Company.Code,
			}
		}

		var emp models.Employee
		if err := database.DB.Where("user_id = ?", user.ID).First(&emp).Error; err == nil {
			response["employee_id"] = emp.ID
		}

		return c.JSON(response)
	}
}
