package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/validation"
)

type ProgressHandler struct {
	progress *service.ProgressService
	log      *logger.Logger
}

func NewProgressHandler(progress *service.ProgressService, log *logger.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, log: log}
}

type slideRequest struct {
	ModuleID   string `json:"module_id" validate:"required,uuid"`
	LessonID   string `json:"lesson_id" validate:"omitempty,uuid"`
	SlideID    string `json:"slide_id" validate:"required,uuid"`
	SlideIndex int    `json:"slide_index" validate:"gte=0"`
}

func (r slideRequest) input() service.SlideInput {
	in := service.SlideInput{SlideIndex: r.SlideIndex}
	in.ModuleID, _ = uuid.Parse(r.ModuleID)
	in.SlideID, _ = uuid.Parse(r.SlideID)
	if r.LessonID != "" {
		in.LessonID, _ = uuid.Parse(r.LessonID)
	}
	return in
}

type completeSlideRequest struct {
	slideRequest
	IncrementSeconds int `json:"increment_seconds" validate:"gte=0,lte=3600"`
}

// StartSlide records that the learner opened a slide
// POST /api/progress/slides/start
func (h *ProgressHandler) StartSlide(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}

	var req slideRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return respondError(c, h.log, "start_slide_failed", err)
	}

	row, err := h.progress.StartSlide(c.UserContext(), userID, req.input())
	if err != nil {
		return respondError(c, h.log, "start_slide_failed", err)
	}
	return c.JSON(row)
}

// CompleteSlide credits watch time to a slide. Required time always comes from
// the slide's captions, never from the client.
// POST /api/progress/slides/complete
func (h *ProgressHandler) CompleteSlide(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}

	var req completeSlideRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return respondError(c, h.log, "record_slide_failed", err)
	}

	res, err := h.progress.RecordSlideProgress(c.UserContext(), userID, req.input(), req.IncrementSeconds)
	if err != nil {
		return respondError(c, h.log, "record_slide_failed", err)
	}
	return c.JSON(fiber.Map{
		"slide":  res.Slide,
		"module": res.Module,
	})
}

// RequiredSeconds GET /api/progress/slides/:slideId/required
func (h *ProgressHandler) RequiredSeconds(c *fiber.Ctx) error {
	if _, ok, err := currentUser(c); !ok {
		return err
	}
	slideID, ok, err := pathUUID(c, "slideId")
	if !ok {
		return err
	}

	seconds, err := h.progress.RequiredSecondsForSlide(c.UserContext(), slideID)
	if err != nil {
		return respondError(c, h.log, "required_seconds_failed", err)
	}
	return c.JSON(fiber.Map{
		"slide_id":         slideID,
		"required_seconds": seconds,
	})
}

// Summary GET /api/courses/:courseId/summary
func (h *ProgressHandler) Summary(c *fiber.Ctx) error {
	userID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}

	overview, err := h.progress.Overview(c.UserContext(), userID, courseID)
	if err != nil {
		return respondError(c, h.log, "summary_failed", err)
	}
	return c.JSON(overview)
}
