// Package progress publishes advisory, human-readable pipeline stage
// updates. A failed report never aborts the pipeline; the orchestrator logs
// and moves on.
package progress

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Event is one stage transition of one pipeline run.
type Event struct {
	RequestID uuid.UUID `json:"requestId"`
	AccountID uuid.UUID `json:"accountId"`
	Stage     string    `json:"stage"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Ts        time.Time `json:"ts"`
}

type Reporter interface {
	Report(ctx context.Context, ev Event) error
}

// LogReporter writes stage transitions to the process log.
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, ev Event) error {
	log.Printf("[progress] request=%s stage=%d/%d %s", ev.RequestID, ev.Index, ev.Total, ev.Stage)
	return nil
}

// Multi fans one event out to several reporters; the first error wins but
// every reporter still runs.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, ev Event) error {
	var firstErr error
	for _, r := range m {
		if err := r.Report(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
