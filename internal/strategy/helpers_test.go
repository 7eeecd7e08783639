package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/poll"
)

// recordingTracker writes checkpoints into the migration the way the
// orchestrator does.
type recordingTracker struct {
	mu       sync.Mutex
	m        *model.Migration
	progress []int
	failKey  string
}

func newTracker(m *model.Migration) *recordingTracker {
	return &recordingTracker{m: m}
}

func (t *recordingTracker) Checkpoint(ctx context.Context, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key == t.failKey {
		return fmt.Errorf("store unavailable")
	}
	if t.m.Checkpoint == nil {
		t.m.Checkpoint = make(map[string]string)
	}
	t.m.Checkpoint[key] = value
	return nil
}

func (t *recordingTracker) Progress(ctx context.Context, percent int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = append(t.progress, percent)
	return nil
}

func fastOptions() Options {
	return Options{Poll: poll.Config{
		Interval: time.Second,
		Timeout:  time.Hour,
		Clock:    testclock.NewDilatedWallClock(time.Millisecond),
	}}
}

func vmAsset() *model.Asset {
	return &model.Asset{
		ID:              "asset-1",
		ProjectID:       "proj-1",
		Name:            "web-01",
		Type:            model.AssetVM,
		SourceID:        "/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/web-01",
		CurrentProvider: cloud.ProviderAzure,
		Specs:           map[string]any{"cpu_cores": 2, "memory_gb": 4.0, "disk_gb": 50},
		Configuration:   map[string]any{"os_type": "Linux"},
		Tags:            map[string]string{"env": "prod"},
	}
}

func newMigration(asset *model.Asset, strategy string) *model.Migration {
	return &model.Migration{
		ID:               "mig-1",
		AssetID:          asset.ID,
		Strategy:         strategy,
		Status:           model.StatusInProgress,
		SourceResourceID: asset.SourceID,
		Parameters:       map[string]string{},
	}
}
