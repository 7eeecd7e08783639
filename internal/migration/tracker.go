package migration

import (
	"context"

	"github.com/codebypatrickleung/cloudhop/internal/events"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

// Overall progress bands per phase.
const (
	progressPrepared  = 10
	progressExecuted  = 80
	progressValidated = 95
)

// tracker persists checkpoints and execute-phase progress straight to the
// migration record.
type tracker struct {
	o *Orchestrator
	m *model.Migration
}

func (t *tracker) Checkpoint(ctx context.Context, key, value string) error {
	if t.m.Checkpoint == nil {
		t.m.Checkpoint = make(map[string]string)
	}
	t.m.Checkpoint[key] = value
	return t.o.save(ctx, t.m)
}

func (t *tracker) Progress(ctx context.Context, percent int, message string) error {
	percent = min(max(percent, 0), 100)
	t.m.ProgressPercentage = progressPrepared + percent*(progressExecuted-progressPrepared)/100
	if message != "" {
		t.m.Log(t.o.now(), "info", message)
	}
	t.o.publish(ctx, t.m, events.MigrationProgress, message)
	return t.o.save(ctx, t.m)
}
