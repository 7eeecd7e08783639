package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/common"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/poll"
)

const (
	rehostDowntimeMinutes = 30
	rehostConfidence      = 0.9
	// defaultDiskGB is assumed when discovery could not size the disk.
	defaultDiskGB = 100
	// maxRehostDiskGB is the largest boot disk every target accepts on import.
	maxRehostDiskGB = 16384
)

// Rehost prerequisite checks.
const (
	CheckOSSupported          = "os_supported"
	CheckNetworkAccessible    = "network_accessible"
	CheckDiskSpaceAvailable   = "disk_space_available"
	CheckCredentialsValid     = "credentials_valid"
	CheckReplicationSupported = "replication_supported"
)

var rehostValidation = []cloud.ValidationCheck{
	cloud.CheckInstanceRunning,
	cloud.CheckNetworkAccessible,
	cloud.CheckDiskMounted,
	cloud.CheckServicesRunning,
}

// rehostExecutor lifts a VM onto the target by importing its exported image
// and launching an instance of the matching tier.
type rehostExecutor struct {
	base
}

// NewRehost builds the rehost strategy.
func NewRehost(source, target cloud.Adapter, opts Options) Executor {
	return &rehostExecutor{base: newBase(Rehost, source, target, opts)}
}

func machine(asset *model.Asset) (cpu int, memGB float64, diskGB int) {
	return asset.SpecInt("cpu_cores", cloud.DefaultCPUCores),
		asset.SpecFloat("memory_gb", cloud.DefaultMemoryGB),
		asset.SpecInt("disk_gb", defaultDiskGB)
}

func osType(asset *model.Asset) string {
	if s := asset.ConfigString("os_type"); s != "" {
		return s
	}
	return asset.SpecString("os_type")
}

func (r *rehostExecutor) ValidatePrerequisites(ctx context.Context, asset *model.Asset) (*PrerequisiteReport, error) {
	report := &PrerequisiteReport{Checks: make(map[string]bool), EstimatedDowntimeMinutes: rehostDowntimeMinutes}
	if asset.Type != model.AssetVM {
		report.Warnings = append(report.Warnings, (&UnsupportedAssetTypeError{Strategy: Rehost, Type: asset.Type}).Error())
		return report, nil
	}

	switch os := osType(asset); {
	case os == "":
		report.Checks[CheckOSSupported] = true
		report.Warnings = append(report.Warnings, "Operating system is unknown; the exported image must boot on the target")
	default:
		report.Checks[CheckOSSupported] = common.IsLinuxOS(os) || common.IsWindowsOS(os)
	}

	net, err := r.target.DiscoverNetwork(ctx)
	report.Checks[CheckCredentialsValid] = err == nil
	report.Checks[CheckNetworkAccessible] = err == nil && (len(net.VPCs) > 0 || len(net.Subnets) > 0)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Target network discovery failed: %v", err))
	}

	disk := asset.SpecInt("disk_gb", 0)
	report.Checks[CheckDiskSpaceAvailable] = disk <= maxRehostDiskGB
	if disk == 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Disk size is unknown; assuming %d GB", defaultDiskGB))
	}

	caps := r.target.Capabilities()
	report.Checks[CheckReplicationSupported] = caps.Has(cloud.CapStartReplication) && caps.Has(cloud.CapPollReplication) && caps.Has(cloud.CapCutover)

	if param(asset, nil, "source_image_uri") == "" {
		report.Warnings = append(report.Warnings, "source_image_uri must be supplied when the migration starts")
	}
	cpu, mem, _ := machine(asset)
	if _, _, err := TierFor(r.target.Provider(), cpu, mem); err != nil {
		report.Warnings = append(report.Warnings, err.Error())
		return report, nil
	}

	report.CanMigrate = true
	for _, ok := range report.Checks {
		report.CanMigrate = report.CanMigrate && ok
	}
	return report, nil
}

func (r *rehostExecutor) EstimateMigration(ctx context.Context, asset *model.Asset) (*Estimate, error) {
	cpu, mem, disk := machine(asset)
	specs, err := TargetSpecs(r.target.Provider(), cpu, mem, disk)
	if err != nil {
		return nil, err
	}
	est := &Estimate{
		DurationHours:   float64(disk)/10 + 1,
		RiskLevel:       RiskLow,
		Confidence:      rehostConfidence,
		DowntimeMinutes: rehostDowntimeMinutes,
		TargetSpecs:     specs,
	}
	spec, err := r.targetSpec(asset, nil)
	if err != nil {
		return nil, err
	}
	cost, priced := r.price(ctx, spec)
	if !priced {
		est.Confidence = unpricedConfidence
	}
	est.CostUSD = cost
	return est, nil
}

// targetSpec sizes the target instance. Migration parameters override the
// tier options.
func (r *rehostExecutor) targetSpec(asset *model.Asset, m *model.Migration) (cloud.InstanceSpec, error) {
	cpu, mem, disk := machine(asset)
	_, tier, err := TierFor(r.target.Provider(), cpu, mem)
	if err != nil {
		return cloud.InstanceSpec{}, fmt.Errorf("failed to size target: %w", err)
	}
	opts := tier.Options
	if os := osType(asset); os != "" {
		opts["os_type"] = os
	}
	if m != nil {
		for k, v := range createOptions(m) {
			opts[k] = v
		}
	}
	instanceType := tier.InstanceType
	if v := opts["instance_type"]; v != "" {
		instanceType = v
	}
	return cloud.InstanceSpec{
		Name:         asset.Name,
		InstanceType: instanceType,
		CPUCores:     cpu,
		MemoryGB:     mem,
		DiskGB:       disk,
		SubnetID:     opts["subnet_id"],
		Tags:         cloud.CloneTags(asset.Tags),
		Options:      opts,
	}, nil
}

func (r *rehostExecutor) Prepare(ctx context.Context, asset *model.Asset, m *model.Migration) (model.RollbackPoint, error) {
	if asset.Type != model.AssetVM {
		return nil, &UnsupportedAssetTypeError{Strategy: Rehost, Type: asset.Type}
	}
	net, err := r.target.DiscoverNetwork(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover target network: %w", err)
	}
	point := model.RollbackPoint{}
	if len(net.VPCs) > 0 {
		point[keyTargetNetwork] = net.VPCs[0].ID
	}
	if err := r.snapshotSource(ctx, asset, point); err != nil {
		return nil, err
	}
	return point, nil
}

func (r *rehostExecutor) Execute(ctx context.Context, asset *model.Asset, m *model.Migration, tracker Tracker) (*Result, error) {
	if res, ok := r.existingTarget(m, cloud.KindInstance); ok {
		r.tag(ctx, res.TargetResourceID, m, asset)
		return res, nil
	}
	spec, err := r.targetSpec(asset, m)
	if err != nil {
		return nil, err
	}

	replicationID := m.Checkpoint[keyReplicationID]
	if replicationID == "" {
		imageURI := param(asset, m, "source_image_uri")
		if imageURI == "" {
			return nil, fmt.Errorf("source_image_uri is required to replicate %s: %w", asset.SourceID, cloud.ErrConfiguration)
		}
		replicationID, err = r.target.StartReplication(ctx, cloud.ReplicationRequest{
			SourceID:       asset.SourceID,
			SourceProvider: asset.CurrentProvider,
			SourceImageURI: imageURI,
			Name:           asset.Name,
			InstanceType:   spec.InstanceType,
			Options:        spec.Options,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start replication: %w", err)
		}
		if err := tracker.Checkpoint(ctx, keyReplicationID, replicationID); err != nil {
			return nil, fmt.Errorf("failed to checkpoint replication %s: %w", replicationID, err)
		}
		r.logger.Infof("Started replication %s for %s", replicationID, asset.SourceID)
	} else {
		r.logger.Infof("Resuming replication %s for %s", replicationID, asset.SourceID)
	}

	if err := r.awaitReplication(ctx, replicationID, tracker); err != nil {
		return nil, err
	}

	cut, err := r.target.Cutover(ctx, replicationID, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to cut over replication %s: %w", replicationID, err)
	}
	r.checkpointTarget(ctx, tracker, cut.ResourceID, cut.ResourceURL, cloud.KindInstance)
	r.logger.Successf("Cut over %s to %s", asset.SourceID, cut.ResourceID)
	r.tag(ctx, cut.ResourceID, m, asset)

	return &Result{
		TargetResourceID:  cut.ResourceID,
		TargetResourceURL: cut.ResourceURL,
		Details: map[string]string{
			keyReplicationID: replicationID,
			"instance_type":  spec.InstanceType,
		},
	}, nil
}

func (r *rehostExecutor) tag(ctx context.Context, id string, m *model.Migration, asset *model.Asset) {
	if err := r.target.TagResource(ctx, id, cloud.KindInstance, migrationTags(m, asset, Rehost)); err != nil {
		r.logger.Warningf("Failed to tag %s: %v", id, err)
	}
}

func (r *rehostExecutor) awaitReplication(ctx context.Context, id string, tracker Tracker) error {
	err := poll.Until(ctx, r.poll, func(ctx context.Context) (bool, error) {
		st, err := r.target.ReplicationStatus(ctx, id)
		if err != nil {
			return false, fmt.Errorf("failed to poll replication %s: %w", id, err)
		}
		switch st.State {
		case cloud.ReplicationCompleted:
			return true, nil
		case cloud.ReplicationFailed:
			return false, fmt.Errorf("replication %s failed: %s", id, st.Message)
		}
		if err := tracker.Progress(ctx, st.Progress, fmt.Sprintf("Replication %s is %s", id, st.State)); err != nil {
			r.logger.Warningf("Failed to record progress: %v", err)
		}
		return false, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return fmt.Errorf("replication %s did not complete: %w", id, err)
	}
	return err
}

func (r *rehostExecutor) Validate(ctx context.Context, asset *model.Asset, m *model.Migration) model.ValidationResult {
	return r.validate(ctx, m, rehostValidation)
}

func (r *rehostExecutor) Rollback(ctx context.Context, asset *model.Asset, m *model.Migration) bool {
	return r.rollback(ctx, m, cloud.KindInstance)
}

func (r *rehostExecutor) Cleanup(ctx context.Context, asset *model.Asset, m *model.Migration) {
	r.cleanup(ctx, asset, m)
}
