package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"SignalGrid/internal/domain/models"
)

// SignalsTopicHandler feeds webhook-shaped events from a Kafka topic into the
// ingest path. Malformed events are rejected without retry.
type SignalsTopicHandler struct {
	topic    string
	ingest   *SignalIngest
	validate *validator.Validate
}

// NewSignalsTopicHandler creates a handler for topic.
func NewSignalsTopicHandler(topic string, ingest *SignalIngest) *SignalsTopicHandler {
	return &SignalsTopicHandler{topic: topic, ingest: ingest, validate: validator.New()}
}

func (h *SignalsTopicHandler) Topic() string { return h.topic }

// Handle decodes and ingests one message. A returned error is retried by the
// consumer, so validation failures are wrapped as permanent.
func (h *SignalsTopicHandler) Handle(ctx context.Context, value []byte) error {
	var req models.SignalRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return &PermanentError{Err: fmt.Errorf("decode signal: %w", err)}
	}
	if err := h.validate.StructCtx(ctx, &req); err != nil {
		return &PermanentError{Err: fmt.Errorf("validate signal: %w", err)}
	}
	if _, err := h.ingest.Accept(ctx, &req); err != nil {
		return &PermanentError{Err: err}
	}
	return nil
}

// PermanentError marks a message that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent satisfies the consumer's non-retryable check.
func (e *PermanentError) Permanent() bool { return true }
