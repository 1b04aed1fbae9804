package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type recordingReporter struct {
	events []Event
	err    error
}

func (r *recordingReporter) Report(ctx context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiReportsToAllDespiteError(t *testing.T) {
	failing := &recordingReporter{err: errors.New("broker down")}
	healthy := &recordingReporter{}
	m := Multi{failing, healthy}

	ev := Event{RequestID: uuid.New(), Stage: "Generating article text", Index: 5, Total: 12}
	err := m.Report(context.Background(), ev)

	assert.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
	assert.Equal(t, "Generating article text", healthy.events[0].Stage)
}
