package strategy

import (
	"context"
	"fmt"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

const (
	refactorDurationHours = 40
	// CheckCodeAnalysis passes when the asset names a deployable artifact.
	CheckCodeAnalysis = "code_analysis"
)

var functionValidation = []cloud.ValidationCheck{cloud.CheckHealthCheckPassed}

// refactorExecutor redeploys an application as a serverless function. The
// source keeps running until cleanup, so there is no cutover downtime.
type refactorExecutor struct {
	base
}

// NewRefactor builds the refactor strategy.
func NewRefactor(source, target cloud.Adapter, opts Options) Executor {
	return &refactorExecutor{base: newBase(Refactor, source, target, opts)}
}

func (r *refactorExecutor) function(asset *model.Asset, m *model.Migration) (cloud.FunctionSpec, bool) {
	spec := cloud.FunctionSpec{
		Name:     asset.Name,
		Runtime:  param(asset, m, "function_runtime"),
		Artifact: param(asset, m, "function_artifact"),
		Handler:  param(asset, m, "function_handler"),
	}
	if m != nil {
		spec.Options = createOptions(m)
	}
	return spec, spec.Runtime != "" && spec.Artifact != ""
}

func (r *refactorExecutor) ValidatePrerequisites(ctx context.Context, asset *model.Asset) (*PrerequisiteReport, error) {
	_, ok := r.function(asset, nil)
	report := &PrerequisiteReport{
		CanMigrate: ok && r.target.Capabilities().Has(cloud.CapDeployServerless),
		Checks:     map[string]bool{CheckCodeAnalysis: ok},
	}
	if !ok {
		report.Warnings = append(report.Warnings, "Refactoring needs function_artifact and function_runtime in the asset configuration")
	}
	if !r.target.Capabilities().Has(cloud.CapDeployServerless) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s cannot deploy serverless functions", r.target.Provider()))
	}
	return report, nil
}

func (r *refactorExecutor) EstimateMigration(ctx context.Context, asset *model.Asset) (*Estimate, error) {
	return &Estimate{
		DurationHours: refactorDurationHours,
		RiskLevel:     RiskHigh,
		Confidence:    unpricedConfidence,
	}, nil
}

// Prepare records the source only; it is never modified before cleanup.
func (r *refactorExecutor) Prepare(ctx context.Context, asset *model.Asset, m *model.Migration) (model.RollbackPoint, error) {
	return model.RollbackPoint{
		keySourceID:   asset.SourceID,
		keySourceKind: string(sourceKind(asset.Type)),
	}, nil
}

func (r *refactorExecutor) Execute(ctx context.Context, asset *model.Asset, m *model.Migration, tracker Tracker) (*Result, error) {
	spec, ok := r.function(asset, m)
	if !ok {
		return nil, &cloud.CapabilityNotSupportedError{
			Provider:   r.target.Provider(),
			Capability: cloud.CapDeployServerless,
			Reason:     "refactoring requires function_artifact and function_runtime",
		}
	}
	if res, ok := r.existingTarget(m, cloud.KindFunction); ok {
		return res, nil
	}
	dep, err := r.target.DeployServerless(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy function %s: %w", spec.Name, err)
	}
	r.checkpointTarget(ctx, tracker, dep.ResourceID, dep.ResourceURL, cloud.KindFunction)
	r.logger.Successf("Deployed function %s", dep.ResourceID)
	return &Result{
		TargetResourceID:  dep.ResourceID,
		TargetResourceURL: dep.ResourceURL,
		Details:           map[string]string{"runtime": spec.Runtime},
	}, nil
}

func (r *refactorExecutor) Validate(ctx context.Context, asset *model.Asset, m *model.Migration) model.ValidationResult {
	return r.validate(ctx, m, functionValidation)
}

func (r *refactorExecutor) Rollback(ctx context.Context, asset *model.Asset, m *model.Migration) bool {
	return r.rollback(ctx, m, cloud.KindFunction)
}

func (r *refactorExecutor) Cleanup(ctx context.Context, asset *model.Asset, m *model.Migration) {
	r.cleanup(ctx, asset, m)
}
