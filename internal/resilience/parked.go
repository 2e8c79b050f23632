package resilience

import (
	"time"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// ParkedEvent is an envelope that could not be admitted into the pipeline
// because the dedup index or store was unavailable. Parked events are
// retried later; they are never silently dropped.
type ParkedEvent struct {
	ID          string         `json:"id"`
	Envelope    model.Envelope `json:"envelope"`
	Error       string         `json:"error"`
	ErrorType   string         `json:"error_type"` // "transient" or "permanent"
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	NextRetryAt time.Time      `json:"next_retry_at"`
	CreatedAt   time.Time      `json:"created_at"`
	LastTriedAt time.Time      `json:"last_tried_at"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *ParkedEvent) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
