package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/permitcourse/course-backend/internal/httpx"
)

const RoleAdmin = "admin"

// RequireRole must run after AuthRequired.
func RequireRole(role string) fiber.Handler {
	role = strings.ToLower(strings.TrimSpace(role))
	return func(c *fiber.Ctx) error {
		userRole, _ := c.Locals("role").(string)
		if strings.ToLower(userRole) != role {
			return httpx.Forbidden(c, "forbidden", "Insufficient permissions")
		}
		return c.Next()
	}
}
