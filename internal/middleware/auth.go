package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/httpx"
)

// Claims are issued by the hosted auth provider. Subject carries the user UUID.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthRequired rejects any request without a valid HS256 bearer token whose
// subject is a user UUID. Cookies are never read, so a cross-site form post
// carries no credentials.
func AuthRequired(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			return httpx.Unauthorized(c, "auth_unavailable", "Authentication is not configured")
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return httpx.Unauthorized(c, "missing_access_token", "Missing access token")
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return httpx.Unauthorized(c, "invalid_authorization", "Invalid authorization format")
		}
		tokenString := parts[1]

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return httpx.Unauthorized(c, "invalid_access_token", "Invalid or expired token")
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return httpx.Unauthorized(c, "invalid_access_token", "Invalid token")
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil || userID == uuid.Nil {
			return httpx.Unauthorized(c, "invalid_access_token", "Token subject is not a user")
		}

		c.Locals("userID", userID)
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}
