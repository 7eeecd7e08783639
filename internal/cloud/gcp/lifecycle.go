package gcp

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/compute/v1"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/common"
)

// CreateInstance inserts an instance booting from spec.ImageID and waits for
// the insert operation.
func (a *Adapter) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	if spec.ImageID == "" || spec.InstanceType == "" {
		return nil, fmt.Errorf("image id and machine type are required: %w", cloud.ErrConfiguration)
	}
	zone := spec.Options["zone"]
	if zone == "" {
		zone = a.zone
	}
	name := strings.ReplaceAll(common.SanitizeName(spec.Name), "_", "-")
	if name == "" {
		return nil, fmt.Errorf("instance name %q has no usable characters: %w", spec.Name, cloud.ErrConfiguration)
	}
	inst := buildInstance(name, zone, spec)

	requestID := cloud.IdempotencyToken(spec.Options, "InsertInstance")
	var op *compute.Operation
	err := a.call(ctx, "InsertInstance", func(ctx context.Context) error {
		var err error
		op, err = a.services.Compute.Instances.Insert(a.project, zone, inst).RequestId(requestID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert instance %s: %w", name, err)
	}
	if err := a.wait(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to create instance %s: %w", name, err)
	}
	a.logger.Successf("Created instance %s in %s", name, zone)
	return &cloud.CutoverResult{
		ResourceID:  a.zonalID(zone, "instances", name),
		ResourceURL: fmt.Sprintf("https://console.cloud.google.com/compute/instancesDetail/zones/%s/instances/%s?project=%s", zone, name, a.project),
	}, nil
}

func buildInstance(name, zone string, spec cloud.InstanceSpec) *compute.Instance {
	nic := &compute.NetworkInterface{Network: "global/networks/default"}
	if n := spec.Options["network"]; n != "" {
		nic.Network = n
	}
	if spec.SubnetID != "" {
		nic.Subnetwork = spec.SubnetID
	}
	if spec.Options["assign_public_ip"] == "true" {
		nic.AccessConfigs = []*compute.AccessConfig{{Name: "External NAT", Type: "ONE_TO_ONE_NAT"}}
	}
	boot := &compute.AttachedDisk{
		Boot:       true,
		AutoDelete: true,
		Type:       "PERSISTENT",
		InitializeParams: &compute.AttachedDiskInitializeParams{
			SourceImage: spec.ImageID,
		},
	}
	if spec.DiskGB > 0 {
		boot.InitializeParams.DiskSizeGb = int64(spec.DiskGB)
	}
	return &compute.Instance{
		Name:              name,
		MachineType:       fmt.Sprintf("zones/%s/machineTypes/%s", zone, spec.InstanceType),
		Disks:             []*compute.AttachedDisk{boot},
		NetworkInterfaces: []*compute.NetworkInterface{nic},
		Labels:            labelsFrom(spec.Tags),
	}
}

func (a *Adapter) getInstance(ctx context.Context, zone, name string) (*compute.Instance, error) {
	var inst *compute.Instance
	err := a.call(ctx, "GetInstance", func(ctx context.Context) error {
		var err error
		inst, err = a.services.Compute.Instances.Get(a.project, zone, name).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", name, err)
	}
	return inst, nil
}

func bootDisk(inst *compute.Instance) *compute.AttachedDisk {
	for _, d := range inst.Disks {
		if d != nil && d.Boot {
			return d
		}
	}
	return nil
}

// CreateSnapshot snapshots an instance boot disk or a disk directly.
func (a *Adapter) CreateSnapshot(ctx context.Context, resourceID string, kind cloud.ResourceKind) (*cloud.Snapshot, error) {
	zone, name := a.parseZonal(resourceID)
	diskName := name
	switch kind {
	case cloud.KindInstance:
		inst, err := a.getInstance(ctx, zone, name)
		if err != nil {
			return nil, err
		}
		boot := bootDisk(inst)
		if boot == nil {
			return nil, fmt.Errorf("instance %s has no boot disk", name)
		}
		diskName = lastSegment(boot.Source)
	case cloud.KindDisk:
	default:
		return nil, &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderGCP,
			Capability: cloud.CapSnapshot,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}

	snapName := resourceName("ss", name)
	snap := &compute.Snapshot{
		Name:   snapName,
		Labels: map[string]string{"source-disk": common.SanitizeName(diskName)},
	}
	var op *compute.Operation
	err := a.call(ctx, "CreateDiskSnapshot", func(ctx context.Context) error {
		var err error
		op, err = a.services.Compute.Disks.CreateSnapshot(a.project, zone, diskName, snap).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot disk %s: %w", diskName, err)
	}
	if err := a.wait(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to snapshot disk %s: %w", diskName, err)
	}
	a.logger.Infof("Created snapshot %s of disk %s", snapName, diskName)
	return &cloud.Snapshot{ID: a.globalID("snapshots", snapName), SourceID: resourceID, SourceKind: kind}, nil
}

// RestoreSnapshot creates a disk from the snapshot. For an instance source
// the instance is stopped, its boot disk swapped for the restored disk and
// started again.
func (a *Adapter) RestoreSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	if snap.SourceKind != cloud.KindInstance && snap.SourceKind != cloud.KindDisk {
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderGCP,
			Capability: cloud.CapRestore,
			Reason:     fmt.Sprintf("resource kind %q", snap.SourceKind),
		}
	}
	zone, name := a.parseZonal(snap.SourceID)
	diskName := resourceName("restored", name)
	disk := &compute.Disk{
		Name:           diskName,
		SourceSnapshot: snap.ID,
		Labels:         map[string]string{"restored-from": common.SanitizeName(lastSegment(snap.ID))},
	}
	if err := a.do(ctx, "InsertDisk", func(ctx context.Context) (*compute.Operation, error) {
		return a.services.Compute.Disks.Insert(a.project, zone, disk).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to restore snapshot %s: %w", snap.ID, err)
	}
	a.logger.Infof("Restored snapshot %s to disk %s", snap.ID, diskName)
	if snap.SourceKind != cloud.KindInstance {
		return nil
	}
	return a.swapBootDisk(ctx, zone, name, diskName)
}

func (a *Adapter) swapBootDisk(ctx context.Context, zone, instance, diskName string) error {
	inst, err := a.getInstance(ctx, zone, instance)
	if err != nil {
		return err
	}
	boot := bootDisk(inst)
	if boot == nil {
		return fmt.Errorf("instance %s has no boot disk", instance)
	}
	svc := a.services.Compute.Instances
	steps := []struct {
		op string
		fn func(ctx context.Context) (*compute.Operation, error)
	}{
		{"StopInstance", func(ctx context.Context) (*compute.Operation, error) {
			return svc.Stop(a.project, zone, instance).Context(ctx).Do()
		}},
		{"DetachDisk", func(ctx context.Context) (*compute.Operation, error) {
			return svc.DetachDisk(a.project, zone, instance, boot.DeviceName).Context(ctx).Do()
		}},
		{"AttachDisk", func(ctx context.Context) (*compute.Operation, error) {
			return svc.AttachDisk(a.project, zone, instance, &compute.AttachedDisk{
				Boot:       true,
				DeviceName: boot.DeviceName,
				Source:     fmt.Sprintf("projects/%s/zones/%s/disks/%s", a.project, zone, diskName),
			}).Context(ctx).Do()
		}},
		{"StartInstance", func(ctx context.Context) (*compute.Operation, error) {
			return svc.Start(a.project, zone, instance).Context(ctx).Do()
		}},
	}
	for _, s := range steps {
		if err := a.do(ctx, s.op, s.fn); err != nil {
			return fmt.Errorf("failed to swap boot disk of %s (%s): %w", instance, s.op, err)
		}
	}
	a.logger.Infof("Instance %s now boots from %s", instance, diskName)
	return nil
}

// do issues a mutating call and waits for its operation.
func (a *Adapter) do(ctx context.Context, op string, fn func(ctx context.Context) (*compute.Operation, error)) error {
	var operation *compute.Operation
	err := a.call(ctx, op, func(ctx context.Context) error {
		var err error
		operation, err = fn(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return a.wait(ctx, operation)
}

// DeleteResource removes an instance, image, snapshot or disk. Resources that
// no longer exist count as deleted.
func (a *Adapter) DeleteResource(ctx context.Context, resourceID string, kind cloud.ResourceKind) error {
	zone, name := a.parseZonal(resourceID)
	var fn func(ctx context.Context) (*compute.Operation, error)
	switch kind {
	case cloud.KindInstance:
		fn = func(ctx context.Context) (*compute.Operation, error) {
			return a.services.Compute.Instances.Delete(a.project, zone, name).Context(ctx).Do()
		}
	case cloud.KindDisk:
		fn = func(ctx context.Context) (*compute.Operation, error) {
			return a.services.Compute.Disks.Delete(a.project, zone, name).Context(ctx).Do()
		}
	case cloud.KindImage:
		fn = func(ctx context.Context) (*compute.Operation, error) {
			return a.services.Compute.Images.Delete(a.project, name).Context(ctx).Do()
		}
	case cloud.KindSnapshot:
		fn = func(ctx context.Context) (*compute.Operation, error) {
			return a.services.Compute.Snapshots.Delete(a.project, name).Context(ctx).Do()
		}
	default:
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderGCP,
			Capability: cloud.CapDelete,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
	err := a.do(ctx, "Delete", fn)
	if isNotFound(err) {
		a.logger.Debugf("%s %s already gone", kind, name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, name, err)
	}
	a.logger.Infof("Deleted %s %s", kind, name)
	return nil
}

// TagResource merges labels into an instance, image or snapshot. The current
// label fingerprint is read first so concurrent edits are rejected.
func (a *Adapter) TagResource(ctx context.Context, resourceID string, kind cloud.ResourceKind, tags map[string]string) error {
	zone, name := a.parseZonal(resourceID)
	svc := a.services.Compute
	var err error
	switch kind {
	case cloud.KindInstance:
		var inst *compute.Instance
		if inst, err = a.getInstance(ctx, zone, name); err != nil {
			return err
		}
		req := &compute.InstancesSetLabelsRequest{Labels: mergeLabels(inst.Labels, tags), LabelFingerprint: inst.LabelFingerprint}
		err = a.do(ctx, "SetInstanceLabels", func(ctx context.Context) (*compute.Operation, error) {
			return svc.Instances.SetLabels(a.project, zone, name, req).Context(ctx).Do()
		})
	case cloud.KindImage:
		var img *compute.Image
		err = a.call(ctx, "GetImage", func(ctx context.Context) error {
			var err error
			img, err = svc.Images.Get(a.project, name).Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to get image %s: %w", name, err)
		}
		req := &compute.GlobalSetLabelsRequest{Labels: mergeLabels(img.Labels, tags), LabelFingerprint: img.LabelFingerprint}
		err = a.do(ctx, "SetImageLabels", func(ctx context.Context) (*compute.Operation, error) {
			return svc.Images.SetLabels(a.project, name, req).Context(ctx).Do()
		})
	case cloud.KindSnapshot:
		var snap *compute.Snapshot
		err = a.call(ctx, "GetSnapshot", func(ctx context.Context) error {
			var err error
			snap, err = svc.Snapshots.Get(a.project, name).Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to get snapshot %s: %w", name, err)
		}
		req := &compute.GlobalSetLabelsRequest{Labels: mergeLabels(snap.Labels, tags), LabelFingerprint: snap.LabelFingerprint}
		err = a.do(ctx, "SetSnapshotLabels", func(ctx context.Context) (*compute.Operation, error) {
			return svc.Snapshots.SetLabels(a.project, name, req).Context(ctx).Do()
		})
	default:
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderGCP,
			Capability: cloud.CapTag,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
	if err != nil {
		return fmt.Errorf("failed to label %s %s: %w", kind, name, err)
	}
	return nil
}
