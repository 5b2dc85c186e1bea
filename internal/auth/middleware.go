package auth

import (
	"strings"

	"snd-backend/internal/config"
	"snd-backend/internal/database"
	"snd-backend/internal/models"
	"snd-backend/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	CtxUserIDKey    = "user_id"
	CtxUserRoleKey  = "user_role"
	CtxCompanyIDKey = "company_id"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxCompanyIDKey, claims.CompanyID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.RoleName) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.RoleName)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Role missing from session")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "You are not allowed to perform this action")
	}
}

// RequirePermission gates a route on "<action>.<subject>".
func RequirePermission(action, subject string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(CtxUserIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "User missing from session")
		}

		allowed, err := rbac.Check(database.DB, userID, action, subject)
		if err != nil {
			zap.L().Error("permission check", zap.Uint("user_id", userID), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "Permission check failed")
		}
		if !allowed {
			return fiber.NewError(fiber.StatusForbidden, "Missing permission "+rbac.PermissionName(action, subject))
		}
		return c.Next()
	}
}
