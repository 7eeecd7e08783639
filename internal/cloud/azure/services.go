package azure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// RunValidation checks a VM through its instance view. Checks that target
// databases or containers fail.
func (a *Adapter) RunValidation(ctx context.Context, resourceID string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	group, name, err := parseID(resourceID)
	if err != nil {
		return nil, err
	}
	var view armcompute.VirtualMachinesClientInstanceViewResponse
	err = a.call(ctx, "GetInstanceView", func(ctx context.Context) error {
		var err error
		view, err = a.compute.NewVirtualMachinesClient().InstanceView(ctx, group, name, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get instance view for %s: %w", name, err)
	}
	running := powerState(view.Statuses) == "running"
	agentReady := false
	if view.VMAgent != nil {
		for _, s := range view.VMAgent.Statuses {
			if s != nil && strings.EqualFold(str(s.DisplayStatus), "Ready") {
				agentReady = true
			}
		}
	}
	disks := len(view.Disks) > 0

	var private string
	if running {
		if vm, err := a.getVM(ctx, group, name); err == nil {
			private, _ = a.vmAddresses(ctx, vm)
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
			out[c] = disks
		case cloud.CheckServicesRunning:
			out[c] = running && agentReady
		default:
			out[c] = false
		}
	}
	return out, nil
}

// MigrateDatabase is not implemented for Azure.
func (a *Adapter) MigrateDatabase(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderAzure, cloud.CapMigrateDatabase)
}

// Containerize is not implemented for Azure.
func (a *Adapter) Containerize(ctx context.Context, sourceID string, opts map[string]string) (string, error) {
	return "", cloud.NotSupported(cloud.ProviderAzure, cloud.CapContainerize)
}

// DeployContainer is not implemented for Azure.
func (a *Adapter) DeployContainer(ctx context.Context, spec cloud.ContainerSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderAzure, cloud.CapDeployContainer)
}

// DeployServerless is not implemented for Azure.
func (a *Adapter) DeployServerless(ctx context.Context, spec cloud.FunctionSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderAzure, cloud.CapDeployServerless)
}

// EstimateCost is not implemented for Azure.
func (a *Adapter) EstimateCost(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error) {
	return nil, cloud.NotSupported(cloud.ProviderAzure, cloud.CapEstimateCost)
}

// Metrics is not implemented for Azure.
func (a *Adapter) Metrics(ctx context.Context, resourceID string, names []string, since time.Duration) ([]cloud.MetricSample, error) {
	return nil, cloud.NotSupported(cloud.ProviderAzure, cloud.CapGetMetrics)
}
