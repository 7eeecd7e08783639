package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a migration.
type Status string

// Migration statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether no orchestrator goroutine should be driving the migration.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRolledBack
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusRolledBack},
	StatusCompleted:  {StatusRolledBack},
	StatusFailed:     {StatusRolledBack},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Phase subdivides StatusInProgress.
type Phase string

// Migration phases, in execution order.
const (
	PhasePrepare  Phase = "prepare"
	PhaseExecute  Phase = "execute"
	PhaseValidate Phase = "validate"
	PhaseRollback Phase = "rollback"
	PhaseCleanup  Phase = "cleanup"
)

// RollbackPoint is the strategy-owned token needed to undo a migration.
// The orchestrator persists it verbatim.
type RollbackPoint map[string]string

// ValidationResult is the outcome of the validate phase.
type ValidationResult struct {
	Tests          map[string]bool `json:"tests"`
	AllTestsPassed bool            `json:"all_tests_passed"`
	Errors         []string        `json:"errors,omitempty"`
}

// AggregateValidation builds a ValidationResult over the required tests.
// A required test missing from results is recorded as failed.
func AggregateValidation(required []string, results map[string]bool) ValidationResult {
	tests := make(map[string]bool, len(required)+len(results))
	for name, ok := range results {
		tests[name] = ok
	}
	for _, name := range required {
		if _, ok := tests[name]; !ok {
			tests[name] = false
		}
	}
	all := len(tests) > 0
	for _, ok := range tests {
		all = all && ok
	}
	return ValidationResult{Tests: tests, AllTestsPassed: all}
}

// LogEntry is one line of a migration's execution log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Phase   Phase     `json:"phase,omitempty"`
	Message string    `json:"message"`
}

// Migration is the orchestration record for one attempt to move an asset.
type Migration struct {
	ID                         string            `json:"id"`
	AssetID                    string            `json:"asset_id"`
	ProjectID                  string            `json:"project_id"`
	WaveID                     string            `json:"wave_id,omitempty"`
	Strategy                   string            `json:"strategy"`
	SourceProvider             string            `json:"source_provider"`
	TargetProvider             string            `json:"target_provider"`
	Status                     Status            `json:"status"`
	CurrentPhase               Phase             `json:"current_phase,omitempty"`
	ProgressPercentage         int               `json:"progress_percentage"`
	SourceResourceID           string            `json:"source_resource_id"`
	TargetResourceID           string            `json:"target_resource_id,omitempty"`
	TargetResourceURL          string            `json:"target_resource_url,omitempty"`
	StartedAt                  *time.Time        `json:"started_at,omitempty"`
	CompletedAt                *time.Time        `json:"completed_at,omitempty"`
	DurationSeconds            int64             `json:"duration_seconds,omitempty"`
	ValidationResults          *ValidationResult `json:"validation_results,omitempty"`
	ValidationPassed           bool              `json:"validation_passed"`
	RollbackAvailable          bool              `json:"rollback_available"`
	RollbackPoint              RollbackPoint     `json:"rollback_point,omitempty"`
	RolledBackAt               *time.Time        `json:"rolled_back_at,omitempty"`
	Checkpoint                 map[string]string `json:"checkpoint,omitempty"`
	Parameters                 map[string]string `json:"parameters,omitempty"`
	ManualInterventionRequired bool              `json:"manual_intervention_required"`
	ErrorMessage               string            `json:"error_message,omitempty"`
	ErrorDetails               map[string]string `json:"error_details,omitempty"`
	ExecutionLogs              []LogEntry        `json:"execution_logs,omitempty"`
	CleanupSource              bool              `json:"cleanup_source"`
	CreatedAt                  time.Time         `json:"created_at"`
	UpdatedAt                  time.Time         `json:"updated_at"`
}

// SetStatus moves the migration to next, enforcing the state machine.
func (m *Migration) SetStatus(next Status) error {
	if m.Status == next {
		return nil
	}
	if !CanTransition(m.Status, next) {
		return fmt.Errorf("invalid migration status transition %s -> %s", m.Status, next)
	}
	m.Status = next
	return nil
}

// Log appends an execution log entry.
func (m *Migration) Log(at time.Time, level string, msg string) {
	m.ExecutionLogs = append(m.ExecutionLogs, LogEntry{Time: at, Level: level, Phase: m.CurrentPhase, Message: msg})
}

// Clone returns a deep copy so stored records are never aliased.
func (m *Migration) Clone() *Migration {
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("migration %s is not serialisable: %v", m.ID, err))
	}
	var out Migration
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("migration %s is not serialisable: %v", m.ID, err))
	}
	return &out
}
