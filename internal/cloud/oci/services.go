package oci

import (
	"context"
	"time"

	"github.com/oracle/oci-go-sdk/v65/core"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// RunValidation checks an instance's lifecycle state, primary VNIC and boot
// volume attachment.
func (a *Adapter) RunValidation(ctx context.Context, resourceID string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	inst, err := a.getInstance(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	running := inst.LifecycleState == core.InstanceLifecycleStateRunning

	var private string
	var bootAttached bool
	if running {
		if p, _, err := a.instanceAddresses(ctx, resourceID); err == nil {
			private = p
		} else {
			a.logger.Warningf("Could not resolve addresses of %s: %v", resourceID, err)
		}
		if id, err := a.bootVolumeID(ctx, inst); err == nil {
			bootAttached = id != ""
		} else {
			a.logger.Warningf("Could not list boot volume of %s: %v", resourceID, err)
		}
	}

	out := make(map[cloud.ValidationCheck]bool, len(checks))
	for _, c := range checks {
		switch c {
		case cloud.CheckInstanceRunning:
			out[c] = running
		case cloud.CheckNetworkAccessible:
			out[c] = running && private != ""
		case cloud.CheckDiskMounted:
			out[c] = bootAttached
		case cloud.CheckServicesRunning:
			out[c] = running
		default:
			out[c] = false
		}
	}
	return out, nil
}

// MigrateDatabase is not implemented for OCI.
func (a *Adapter) MigrateDatabase(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderOCI, cloud.CapMigrateDatabase)
}

// Containerize is not implemented for OCI.
func (a *Adapter) Containerize(ctx context.Context, sourceID string, opts map[string]string) (string, error) {
	return "", cloud.NotSupported(cloud.ProviderOCI, cloud.CapContainerize)
}

// DeployContainer is not implemented for OCI.
func (a *Adapter) DeployContainer(ctx context.Context, spec cloud.ContainerSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderOCI, cloud.CapDeployContainer)
}

// DeployServerless is not implemented for OCI.
func (a *Adapter) DeployServerless(ctx context.Context, spec cloud.FunctionSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderOCI, cloud.CapDeployServerless)
}

// EstimateCost is not implemented for OCI.
func (a *Adapter) EstimateCost(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error) {
	return nil, cloud.NotSupported(cloud.ProviderOCI, cloud.CapEstimateCost)
}

// Metrics is not implemented for OCI.
func (a *Adapter) Metrics(ctx context.Context, resourceID string, names []string, since time.Duration) ([]cloud.MetricSample, error) {
	return nil, cloud.NotSupported(cloud.ProviderOCI, cloud.CapGetMetrics)
}
