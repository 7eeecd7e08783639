package migration

import (
	"errors"
	"fmt"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

var (
	// ErrActiveMigration is returned when the asset already has a pending or
	// in-progress migration.
	ErrActiveMigration = errors.New("asset already has an active migration")

	// ErrRollbackUnavailable is returned when a migration cannot be rolled back
	// in its current state.
	ErrRollbackUnavailable = errors.New("rollback not available")

	// ErrNotAttached is returned when no adapters are bound to a migration in
	// this process. ResumeMigration attaches them.
	ErrNotAttached = errors.New("migration is not attached to this process")
)

// PhaseError records the phase a migration failed in.
type PhaseError struct {
	Phase model.Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// errorClass names the taxonomy bucket err falls into for error_details.
func errorClass(err error) string {
	switch {
	case cloud.IsConfiguration(err):
		return "configuration"
	case cloud.IsNotSupported(err):
		return "capability_not_supported"
	case cloud.IsTransient(err):
		return "transient_provider"
	case errors.Is(err, errValidation):
		return "validation"
	default:
		return "provider"
	}
}

var errValidation = errors.New("validation failed")
