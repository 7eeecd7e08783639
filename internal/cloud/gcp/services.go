package gcp

import (
	"context"
	"time"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// RunValidation checks an instance's status, network interface and disks.
func (a *Adapter) RunValidation(ctx context.Context, resourceID string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	zone, name := a.parseZonal(resourceID)
	inst, err := a.getInstance(ctx, zone, name)
	if err != nil {
		return nil, err
	}
	running := inst.Status == "RUNNING"
	private := ""
	if len(inst.NetworkInterfaces) > 0 && inst.NetworkInterfaces[0] != nil {
		private = inst.NetworkInterfaces[0].NetworkIP
	}

	out := make(map[cloud.ValidationCheck]bool, len(checks))
	for _, c := range checks {
		switch c {
		case cloud.CheckInstanceRunning, cloud.CheckServicesRunning:
			out[c] = running
		case cloud.CheckNetworkAccessible:
			out[c] = running && private != ""
		case cloud.CheckDiskMounted:
			out[c] = bootDisk(inst) != nil
		default:
			out[c] = false
		}
	}
	return out, nil
}

// MigrateDatabase is not implemented for GCP.
func (a *Adapter) MigrateDatabase(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderGCP, cloud.CapMigrateDatabase)
}

// Containerize is not implemented for GCP.
func (a *Adapter) Containerize(ctx context.Context, sourceID string, opts map[string]string) (string, error) {
	return "", cloud.NotSupported(cloud.ProviderGCP, cloud.CapContainerize)
}

// DeployContainer is not implemented for GCP.
func (a *Adapter) DeployContainer(ctx context.Context, spec cloud.ContainerSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderGCP, cloud.CapDeployContainer)
}

// DeployServerless is not implemented for GCP.
func (a *Adapter) DeployServerless(ctx context.Context, spec cloud.FunctionSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderGCP, cloud.CapDeployServerless)
}

// EstimateCost is not implemented for GCP.
func (a *Adapter) EstimateCost(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error) {
	return nil, cloud.NotSupported(cloud.ProviderGCP, cloud.CapEstimateCost)
}

// Metrics is not implemented for GCP.
func (a *Adapter) Metrics(ctx context.Context, resourceID string, names []string, since time.Duration) ([]cloud.MetricSample, error) {
	return nil, cloud.NotSupported(cloud.ProviderGCP, cloud.CapGetMetrics)
}
