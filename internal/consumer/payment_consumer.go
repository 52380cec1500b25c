package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/mq"
	"github.com/permitcourse/course-backend/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PaymentRecorder stores the payment fact for a learner and course.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, userID, courseID uuid.UUID, paidAt time.Time) (models.CourseStatusResponse, error)
}

// Action is what to do with a delivery once it has been handled.
type Action int

const (
	Ack Action = iota
	// Requeue is for failures that may succeed on redelivery.
	Requeue
	// Drop discards a message that can never be processed.
	Drop
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Drop:
		return "drop"
	}
	return "unknown"
}

// PaymentPaid is the data of a payment.paid envelope.
type PaymentPaid struct {
	UserID   uuid.UUID `json:"user_id"`
	CourseID uuid.UUID `json:"course_id"`
	PaidAt   time.Time `json:"paid_at"`
	ChargeID string    `json:"charge_id,omitempty"`
}

type PaymentConsumer struct {
	payments PaymentRecorder
	log      *logger.Logger
}

func NewPaymentConsumer(payments PaymentRecorder, log *logger.Logger) *PaymentConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentConsumer{payments: payments, log: log.With("consumer", mq.EventPaymentPaid)}
}

// Handle records one payment event. Recording is set-if-null, so redelivery
// of an already applied event is acknowledged without effect.
func (p *PaymentConsumer) Handle(ctx context.Context, routingKey string, body []byte) (Action, error) {
	if routingKey != mq.EventPaymentPaid {
		p.log.Warn("skip unknown event", "routing_key", routingKey)
		return Ack, nil
	}

	var env mq.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Drop, fmt.Errorf("decode envelope: %w", err)
	}
	var ev PaymentPaid
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return Drop, fmt.Errorf("decode payment: %w", err)
	}
	if ev.UserID == uuid.Nil || ev.CourseID == uuid.Nil {
		return Drop, fmt.Errorf("payment event missing user or course")
	}
	paidAt := ev.PaidAt
	if paidAt.IsZero() {
		paidAt = env.OccurredAt
	}

	resp, err := p.payments.RecordPayment(ctx, ev.UserID, ev.CourseID, paidAt)
	if errors.Is(err, service.ErrInvalidInput) {
		return Drop, err
	}
	if err != nil {
		return Requeue, err
	}
	p.log.Info("payment recorded",
		"user_id", ev.UserID,
		"course_id", ev.CourseID,
		"charge_id", ev.ChargeID,
		"status", resp.Status,
	)
	return Ack, nil
}

// Run consumes deliveries until ctx is done or the channel closes.
func (p *PaymentConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			action, err := p.Handle(ctx, d.RoutingKey, d.Body)
			if err != nil {
				p.log.Error("payment event failed",
					"routing_key", d.RoutingKey,
					"message_id", d.MessageId,
					"action", action.String(),
					"error", err,
				)
			}
			switch action {
			case Requeue:
				_ = d.Nack(false, true)
			case Drop:
				_ = d.Nack(false, false)
			default:
				_ = d.Ack(false)
			}
		}
	}
}
