package handlers

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/storage"
	"github.com/permitcourse/course-backend/internal/submission"
)

// ReceiptReader fetches archived submission receipts.
type ReceiptReader interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectStat, error)
}

type AdminHandler struct {
	statuses *service.CourseStatusService
	receipts ReceiptReader
	log      *logger.Logger
}

// NewAdminHandler accepts a nil receipts reader when object storage is off.
func NewAdminHandler(statuses *service.CourseStatusService, receipts ReceiptReader, log *logger.Logger) *AdminHandler {
	return &AdminHandler{statuses: statuses, receipts: receipts, log: log}
}

// ListSubmissions GET /api/admin/courses/:courseId/submissions?limit=N
func (h *AdminHandler) ListSubmissions(c *fiber.Ctx) error {
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}

	rows, err := h.statuses.ListSubmissions(c.UserContext(), courseID, c.QueryInt("limit", 100))
	if err != nil {
		return respondError(c, h.log, "list_submissions_failed", err)
	}
	return c.JSON(fiber.Map{"submissions": rows})
}

// Receipt streams the archived JSON receipt of one submission.
// GET /api/admin/courses/:courseId/users/:userId/submissions/:auditId/receipt
func (h *AdminHandler) Receipt(c *fiber.Ctx) error {
	if h.receipts == nil {
		return httpx.ServiceUnavailable(c, "storage_unavailable", "Receipt storage is not configured")
	}
	courseID, ok, err := pathUUID(c, "courseId")
	if !ok {
		return err
	}
	userID, ok, err := pathUUID(c, "userId")
	if !ok {
		return err
	}
	auditID, ok, err := pathUUID(c, "auditId")
	if !ok {
		return err
	}

	key, err := submission.ReceiptKey(models.SubmissionEvent{AuditID: auditID, UserID: userID, CourseID: courseID})
	if err != nil {
		return httpx.BadRequest(c, "invalid_key", "Invalid receipt key")
	}
	body, stat, err := h.receipts.GetObject(c.UserContext(), key)
	if err != nil {
		h.log.Warn("receipt fetch failed", "key", key, "error", err)
		return httpx.NotFound(c, "receipt_not_found", "Receipt not found")
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return respondError(c, h.log, "receipt_read_failed", err)
	}
	c.Set(fiber.HeaderContentType, stat.ContentType)
	return c.Send(data)
}
