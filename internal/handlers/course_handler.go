package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/validation"
)

type CourseHandler struct {
	statuses   *service.CourseStatusService
	navigation *service.NavigationService
	log        *logger.Logger
}

func NewCourseHandler(statuses *service.CourseStatusService, navigation *service.NavigationService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{statuses: statuses, navigation: navigation, log: log}
}

// Status GET /api/courses/:courseId/status
func (h *CourseHandler) Status(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}

	resp, err := h.statuses.GetStatus(c.UserContext(), userID, courseID)
	if err != nil {
		return respondError(c, h.log, "status_failed", err)
	}
	return c.JSON(resp)
}

// Complete asks for course completion. Below the time threshold the answer
// is 200 with course_complete false.
// POST /api/courses/:courseId/complete
func (h *CourseHandler) Complete(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}

	resp, summary, err := h.statuses.MarkTimeComplete(c.UserContext(), userID, courseID)
	if err != nil {
		return respondError(c, h.log, "complete_failed", err)
	}
	return c.JSON(fiber.Map{
		"status":  resp,
		"summary": summary,
	})
}

type examRequest struct {
	Passed *bool `json:"passed" validate:"required"`
	Score  *int  `json:"score" validate:"omitempty,gte=0,lte=100"`
}

// Exam POST /api/courses/:courseId/exam
func (h *CourseHandler) Exam(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}

	var req examRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return respondError(c, h.log, "exam_failed", err)
	}

	resp, err := h.statuses.RecordExamResult(c.UserContext(), userID, courseID, *req.Passed, req.Score)
	if err != nil {
		return respondError(c, h.log, "exam_failed", err)
	}
	return c.JSON(resp)
}

// Navigation GET /api/courses/:courseId/navigation?target=N
func (h *CourseHandler) Navigation(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}
	target, convErr := strconv.Atoi(c.Query("target"))
	if convErr != nil {
		return httpx.ValidationFailed(c, map[string]string{"target": "target must be an integer"})
	}

	decision, err := h.navigation.CheckNavigation(c.UserContext(), userID, courseID, target)
	if err != nil {
		return respondError(c, h.log, "navigation_failed", err)
	}
	return c.JSON(decision)
}

// Timeline GET /api/courses/:courseId/timeline
func (h *CourseHandler) Timeline(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}

	segments, err := h.navigation.Timeline(c.UserContext(), userID, courseID)
	if err != nil {
		return respondError(c, h.log, "timeline_failed", err)
	}
	return c.JSON(fiber.Map{"segments": segments})
}
