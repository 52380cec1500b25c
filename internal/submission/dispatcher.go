package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/mq"
	"github.com/permitcourse/course-backend/internal/storage"
)

const receiptPrefix = "submissions"

type EventPublisher interface {
	PublishJSON(ctx context.Context, key, messageID string, v any) error
}

type ReceiptStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectStat, error)
}

// Dispatcher hands a submitted learner to DMV reporting: an event on the bus
// for the reporting worker and a JSON receipt in object storage for audits.
// Either sink may be nil when it is not configured.
type Dispatcher struct {
	publisher EventPublisher
	receipts  ReceiptStore
	log       *logger.Logger
}

func NewDispatcher(publisher EventPublisher, receipts ReceiptStore, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{publisher: publisher, receipts: receipts, log: log}
}

// ReceiptKey is where the receipt for one audit entry is archived.
func ReceiptKey(evt models.SubmissionEvent) (string, error) {
	return storage.SafeJoinKey(receiptPrefix, fmt.Sprintf("%s/%s/%s.json", evt.CourseID, evt.UserID, evt.AuditID))
}

// Dispatch delivers to every configured sink and reports all failures
// together. The caller has already committed the submission; a failure here
// is for operators to replay from the audit log.
func (d *Dispatcher) Dispatch(ctx context.Context, evt models.SubmissionEvent) error {
	var errs []error

	if d.publisher != nil {
		env, err := mq.NewEnvelope(mq.EventSubmissionRequested, evt.SubmittedAt, evt)
		if err == nil {
			err = d.publisher.PublishJSON(ctx, mq.EventSubmissionRequested, evt.AuditID.String(), env)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("publish submission: %w", err))
		}
	}

	if d.receipts != nil {
		if err := d.archive(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("archive receipt: %w", err))
		}
	}

	if len(errs) == 0 {
		d.log.Info("dmv submission dispatched", "audit_id", evt.AuditID, "course_id", evt.CourseID)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) archive(ctx context.Context, evt models.SubmissionEvent) error {
	key, err := ReceiptKey(evt)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return err
	}
	_, err = d.receipts.PutObject(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json")
	return err
}
