package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-only"

func signToken(t *testing.T, method jwt.SigningMethod, secret, subject, role string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newAuthApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(Observe(logger.Nop()))
	app.Get("/me", AuthRequired(secret), func(c *fiber.Ctx) error {
		id, err := httpx.LocalUUID(c, "userID")
		if err != nil {
			return httpx.Unauthorized(c, "unauthorized", "no user")
		}
		return c.SendString(id.String())
	})
	app.Get("/admin", AuthRequired(secret), RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	userID := uuid.New()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		cookie string
		secret string
		status int
	}{
		{"valid bearer", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, userID.String(), "learner", future), "", testSecret, fiber.StatusOK},
		{"cookie is not a credential", "", signToken(t, jwt.SigningMethodHS256, testSecret, userID.String(), "learner", future), testSecret, fiber.StatusUnauthorized},
		{"empty bearer", "Bearer ", "", testSecret, fiber.StatusUnauthorized},
		{"missing token", "", "", testSecret, fiber.StatusUnauthorized},
		{"bad scheme", "Token abc", "", testSecret, fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", userID.String(), "", future), "", testSecret, fiber.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, userID.String(), "", time.Now().Add(-time.Minute)), "", testSecret, fiber.StatusUnauthorized},
		{"wrong alg", "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, userID.String(), "", future), "", testSecret, fiber.StatusUnauthorized},
		{"subject not uuid", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "guest", "", future), "", testSecret, fiber.StatusUnauthorized},
		{"unconfigured secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, userID.String(), "", future), "", "", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAuthApp(tt.secret)
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.Header.Set("Cookie", "pc_access="+tt.cookie)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := newAuthApp(testSecret)
	future := time.Now().Add(time.Hour)

	for role, want := range map[string]int{
		"admin":   fiber.StatusNoContent,
		"ADMIN":   fiber.StatusNoContent,
		"learner": fiber.StatusForbidden,
		"":        fiber.StatusForbidden,
	} {
		req := httptest.NewRequest("GET", "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, uuid.NewString(), role, future))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "role %q", role)
	}
}

func TestOriginAllowed(t *testing.T) {
	app := fiber.New()
	app.Get("/", OriginAllowed([]string{"https://learn.example.com/", " "}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		origin string
		status int
	}{
		{"", fiber.StatusOK},
		{"https://learn.example.com", fiber.StatusOK},
		{"https://evil.example.com", fiber.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.status, resp.StatusCode, tt.origin)
	}

	open := fiber.New()
	open.Get("/", OriginAllowed(nil), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	resp, err := open.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
