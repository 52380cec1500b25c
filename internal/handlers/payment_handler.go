package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/validation"
)

const webhookSecretHeader = "X-Webhook-Secret"

type PaymentHandler struct {
	statuses *service.CourseStatusService
	secret   []byte
	log      *logger.Logger
}

func NewPaymentHandler(statuses *service.CourseStatusService, secret string, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{statuses: statuses, secret: []byte(secret), log: log}
}

type paymentWebhookRequest struct {
	UserID   string     `json:"user_id" validate:"required,uuid"`
	CourseID string     `json:"course_id" validate:"required,uuid"`
	PaidAt   *time.Time `json:"paid_at"`
}

// Webhook is called by the payment processor once a charge settles. Replays
// are harmless: paid_at is only ever set once.
// POST /api/payments/webhook
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	if len(h.secret) == 0 {
		return httpx.ServiceUnavailable(c, "webhook_disabled", "Payment webhook is not configured")
	}
	got := []byte(c.Get(webhookSecretHeader))
	if subtle.ConstantTimeCompare(got, h.secret) != 1 {
		return httpx.Unauthorized(c, "invalid_webhook_secret", "Invalid webhook secret")
	}

	var req paymentWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return respondError(c, h.log, "payment_failed", err)
	}

	var paidAt time.Time
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	userID := uuid.MustParse(req.UserID)
	courseID := uuid.MustParse(req.CourseID)

	resp, err := h.statuses.RecordPayment(c.UserContext(), userID, courseID, paidAt)
	if err != nil {
		return respondError(c, h.log, "payment_failed", err)
	}
	return c.JSON(resp)
}
