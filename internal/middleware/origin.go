package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/permitcourse/course-backend/internal/httpx"
)

// OriginAllowed blocks browser requests from origins outside allowed. Requests
// without an Origin header, and every request when allowed is empty, pass.
func OriginAllowed(allowed []string) fiber.Handler {
	allowedOrigins := trimAll(allowed)
	return func(c *fiber.Ctx) error {
		origin := strings.TrimSpace(c.Get("Origin"))
		if origin == "" || len(allowedOrigins) == 0 {
			return c.Next()
		}
		if !originAllowed(origin, allowedOrigins) {
			return httpx.Forbidden(c, "forbidden_origin", "Origin not allowed")
		}
		return c.Next()
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func originAllowed(origin string, allowed []string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}
