package mq

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentPaid         = "payment.paid"
	EventSubmissionRequested = "dmv.submission.requested"
)

// Envelope is the wire shape shared by every event on the exchange.
type Envelope struct {
	Event      string          `json:"event"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func NewEnvelope(event string, occurredAt time.Time, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Version: 1, OccurredAt: occurredAt.UTC(), Data: raw}, nil
}
