package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/validation"
)

// respondError maps service errors onto the JSON error envelope. Anything it
// does not recognize is a store fault and is logged before answering 500.
func respondError(c *fiber.Ctx, log *logger.Logger, code string, err error) error {
	var fields validation.FieldErrors
	switch {
	case errors.As(err, &fields):
		return httpx.ValidationFailed(c, fields)
	case errors.Is(err, service.ErrInvalidInput):
		return httpx.BadRequest(c, "invalid_input", err.Error())
	case errors.Is(err, service.ErrSlideNotFound):
		return httpx.NotFound(c, "slide_not_found", "Slide not found")
	case errors.Is(err, service.ErrModuleNotFound):
		return httpx.NotFound(c, "module_not_found", "Module not found")
	case errors.Is(err, service.ErrModuleLocked):
		return httpx.Forbidden(c, "module_locked", "Complete the previous module first")
	case errors.Is(err, service.ErrExamLocked):
		return httpx.Forbidden(c, "exam_locked", "Complete every module before the exam")
	}
	log.Error("request failed", "code", code, "path", c.Path(), "request_id", httpx.RequestID(c), "error", err)
	return httpx.Internal(c, code)
}

// currentUser reads the authenticated user; on failure it has already written
// a 401.
func currentUser(c *fiber.Ctx) (uuid.UUID, bool, error) {
	id, err := httpx.LocalUUID(c, "userID")
	if err != nil {
		return uuid.Nil, false, httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	return id, true, nil
}

// pathUUID parses a route parameter; on failure it has already written a 400.
func pathUUID(c *fiber.Ctx, name string) (uuid.UUID, bool, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false, httpx.ValidationFailed(c, map[string]string{name: name + " must be a valid UUID"})
	}
	return id, true, nil
}
