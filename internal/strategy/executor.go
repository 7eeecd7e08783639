// Package strategy implements the migration strategies the orchestrator
// drives through prepare, execute, validate, rollback and cleanup.
package strategy

import (
	"context"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/poll"
)

// Risk levels reported by EstimateMigration.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// unpricedConfidence is the ceiling used when the target cannot price the move.
const unpricedConfidence = 0.3

// PrerequisiteReport is the read-only readiness assessment of an asset.
type PrerequisiteReport struct {
	CanMigrate               bool            `json:"can_migrate"`
	Checks                   map[string]bool `json:"checks"`
	Warnings                 []string        `json:"warnings,omitempty"`
	EstimatedDowntimeMinutes int             `json:"estimated_downtime_minutes"`
}

// Estimate is an advisory projection of duration, cost and risk.
type Estimate struct {
	DurationHours   float64        `json:"duration_hours"`
	CostUSD         float64        `json:"estimated_cost"`
	RiskLevel       string         `json:"risk_level"`
	Confidence      float64        `json:"confidence"`
	DowntimeMinutes int            `json:"downtime_minutes"`
	TargetSpecs     map[string]any `json:"target_specs,omitempty"`
}

// Result describes what Execute created on the target.
type Result struct {
	TargetResourceID  string            `json:"target_resource_id"`
	TargetResourceURL string            `json:"target_resource_url,omitempty"`
	Details           map[string]string `json:"details,omitempty"`
}

// Tracker persists in-flight progress of a migration so Execute can resume
// after a restart.
type Tracker interface {
	// Checkpoint durably records key=value in the migration's checkpoint.
	Checkpoint(ctx context.Context, key, value string) error
	// Progress reports completion within the execute phase, 0 to 100.
	Progress(ctx context.Context, percent int, message string) error
}

// Executor is one migration strategy bound to a source and target adapter.
type Executor interface {
	// Name returns the strategy name (e.g., "rehost").
	Name() string

	// ValidatePrerequisites assesses the asset without changing anything.
	ValidatePrerequisites(ctx context.Context, asset *model.Asset) (*PrerequisiteReport, error)

	// EstimateMigration projects duration, cost and risk.
	EstimateMigration(ctx context.Context, asset *model.Asset) (*Estimate, error)

	// Prepare creates whatever is needed to undo the migration and returns it
	// as the rollback point.
	Prepare(ctx context.Context, asset *model.Asset, m *model.Migration) (model.RollbackPoint, error)

	// Execute performs the move, persisting resumable state through tracker.
	Execute(ctx context.Context, asset *model.Asset, m *model.Migration, tracker Tracker) (*Result, error)

	// Validate runs the strategy's required tests against the target.
	Validate(ctx context.Context, asset *model.Asset, m *model.Migration) model.ValidationResult

	// Rollback removes what Execute created and restores the source. It
	// reports success and never returns an error.
	Rollback(ctx context.Context, asset *model.Asset, m *model.Migration) bool

	// Cleanup decommissions the source after a validated migration. Failures
	// are logged only.
	Cleanup(ctx context.Context, asset *model.Asset, m *model.Migration)
}

// Options carries collaborators shared by every executor.
type Options struct {
	Logger *logger.Logger
	Poll   poll.Config
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	return o
}

// Constructor binds a strategy to its adapters.
type Constructor func(source, target cloud.Adapter, opts Options) Executor
