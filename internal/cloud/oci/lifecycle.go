package oci

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	commonutil "github.com/codebypatrickleung/cloudhop/internal/common"
)

const maxNameLength = 100

// CreateInstance launches an instance from an image. Flex shapes get a shape
// config from the ocpus and memory_gb options or from the requested size.
func (a *Adapter) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	if spec.ImageID == "" {
		return nil, fmt.Errorf("image id is required: %w", cloud.ErrConfiguration)
	}
	subnetID := spec.SubnetID
	if subnetID == "" {
		subnetID = spec.Options["subnet_id"]
	}
	if subnetID == "" {
		return nil, fmt.Errorf("subnet id is required: %w", cloud.ErrConfiguration)
	}
	shape := spec.InstanceType
	if shape == "" {
		shape = FlexShape(spec.Options["architecture"])
	}
	ad := spec.Options["availability_domain"]
	if ad == "" {
		var err error
		if ad, err = a.firstAvailabilityDomain(ctx); err != nil {
			return nil, err
		}
	}

	source := core.InstanceSourceViaImageDetails{ImageId: common.String(spec.ImageID)}
	if spec.DiskGB > 0 {
		source.BootVolumeSizeInGBs = common.Int64(int64(spec.DiskGB))
	}
	details := core.LaunchInstanceDetails{
		AvailabilityDomain: common.String(ad),
		CompartmentId:      common.String(a.compartmentID),
		DisplayName:        common.String(spec.Name),
		Shape:              common.String(shape),
		SourceDetails:      source,
		CreateVnicDetails: &core.CreateVnicDetails{
			SubnetId:       common.String(subnetID),
			AssignPublicIp: common.Bool(spec.Options["assign_public_ip"] == "true"),
		},
		FreeformTags: cloud.CloneTags(spec.Tags),
	}
	if key := spec.Options["ssh_public_key"]; key != "" {
		details.Metadata = map[string]string{"ssh_authorized_keys": key}
	}
	if IsFlexShape(shape) {
		ocpus, memGB, err := shapeConfig(spec)
		if err != nil {
			return nil, err
		}
		details.ShapeConfig = &core.LaunchInstanceShapeConfigDetails{
			Ocpus:       common.Float32(float32(ocpus)),
			MemoryInGBs: common.Float32(float32(memGB)),
		}
	}

	token := cloud.IdempotencyToken(spec.Options, "LaunchInstance")
	var resp core.LaunchInstanceResponse
	err := a.call(ctx, "LaunchInstance", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Compute.LaunchInstance(ctx, core.LaunchInstanceRequest{
			LaunchInstanceDetails: details,
			OpcRetryToken:         common.String(token),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch instance %s: %w", spec.Name, err)
	}
	id := str(resp.Instance.Id)
	a.logger.Successf("Launched instance %s (%s, %s)", spec.Name, id, shape)
	return &cloud.CutoverResult{
		ResourceID:  id,
		ResourceURL: consoleURL(a.region, "compute/instances/"+id),
	}, nil
}

// shapeConfig resolves OCPUs and memory for a Flex launch.
func shapeConfig(spec cloud.InstanceSpec) (int, int, error) {
	ocpus, memGB := FlexConfig(spec.CPUCores, spec.MemoryGB)
	if v := spec.Options["ocpus"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinOCPUs {
			return 0, 0, fmt.Errorf("invalid ocpus %q: %w", v, cloud.ErrConfiguration)
		}
		ocpus = n
	}
	if v := spec.Options["memory_gb"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < ocpus*MinMemoryPerOCPU || n > ocpus*MaxMemoryPerOCPU {
			return 0, 0, fmt.Errorf("invalid memory_gb %q for %d OCPUs: %w", v, ocpus, cloud.ErrConfiguration)
		}
		memGB = n
	}
	return ocpus, memGB, nil
}

func (a *Adapter) firstAvailabilityDomain(ctx context.Context) (string, error) {
	var resp identity.ListAvailabilityDomainsResponse
	err := a.call(ctx, "ListAvailabilityDomains", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Identity.ListAvailabilityDomains(ctx, identity.ListAvailabilityDomainsRequest{
			CompartmentId: common.String(a.compartmentID),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to list availability domains: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Name == nil {
		return "", fmt.Errorf("no availability domains found in compartment %s", a.compartmentID)
	}
	return *resp.Items[0].Name, nil
}

func (a *Adapter) getInstance(ctx context.Context, id string) (core.Instance, error) {
	var resp core.GetInstanceResponse
	err := a.call(ctx, "GetInstance", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Compute.GetInstance(ctx, core.GetInstanceRequest{InstanceId: common.String(id)})
		return err
	})
	if err != nil {
		return core.Instance{}, fmt.Errorf("failed to get instance %s: %w", id, err)
	}
	return resp.Instance, nil
}

// CreateSnapshot takes a full boot volume backup of an instance.
func (a *Adapter) CreateSnapshot(ctx context.Context, resourceID string, kind cloud.ResourceKind) (*cloud.Snapshot, error) {
	if kind != cloud.KindInstance {
		return nil, &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderOCI,
			Capability: cloud.CapSnapshot,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
	inst, err := a.getInstance(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	volumeID, err := a.bootVolumeID(ctx, inst)
	if err != nil {
		return nil, err
	}
	if volumeID == "" {
		return nil, fmt.Errorf("instance %s has no attached boot volume", resourceID)
	}
	name := commonutil.ResourceName("bkp", str(inst.DisplayName), maxNameLength, time.Now())
	var resp core.CreateBootVolumeBackupResponse
	err = a.call(ctx, "CreateBootVolumeBackup", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Blockstorage.CreateBootVolumeBackup(ctx, core.CreateBootVolumeBackupRequest{
			CreateBootVolumeBackupDetails: core.CreateBootVolumeBackupDetails{
				BootVolumeId: common.String(volumeID),
				DisplayName:  common.String(name),
				Type:         core.CreateBootVolumeBackupDetailsTypeFull,
			},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to back up boot volume %s: %w", volumeID, err)
	}
	id := str(resp.BootVolumeBackup.Id)
	a.logger.Infof("Created boot volume backup %s for %s", id, resourceID)
	return &cloud.Snapshot{ID: id, SourceID: resourceID, SourceKind: kind}, nil
}

// RestoreSnapshot creates a boot volume from an instance backup in the
// instance's availability domain. Attaching it in place of the running boot
// volume is left to the operator.
func (a *Adapter) RestoreSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	if snap.SourceKind != cloud.KindInstance {
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderOCI,
			Capability: cloud.CapRestore,
			Reason:     fmt.Sprintf("resource kind %q", snap.SourceKind),
		}
	}
	inst, err := a.getInstance(ctx, snap.SourceID)
	if err != nil {
		return err
	}
	name := commonutil.ResourceName("restored", str(inst.DisplayName), maxNameLength, time.Now())
	var resp core.CreateBootVolumeResponse
	err = a.call(ctx, "CreateBootVolume", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Blockstorage.CreateBootVolume(ctx, core.CreateBootVolumeRequest{
			CreateBootVolumeDetails: core.CreateBootVolumeDetails{
				AvailabilityDomain: inst.AvailabilityDomain,
				CompartmentId:      common.String(a.compartmentID),
				DisplayName:        common.String(name),
				SourceDetails:      core.BootVolumeSourceFromBootVolumeBackupDetails{Id: common.String(snap.ID)},
				FreeformTags:       map[string]string{"RestoredFrom": snap.ID, "SourceInstance": snap.SourceID},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to restore boot volume backup %s: %w", snap.ID, err)
	}
	a.logger.Infof("Restored backup %s to boot volume %s", snap.ID, str(resp.BootVolume.Id))
	return nil
}

// DeleteResource removes an instance, image or boot volume backup. Resources
// that no longer exist count as deleted.
func (a *Adapter) DeleteResource(ctx context.Context, resourceID string, kind cloud.ResourceKind) error {
	var op string
	var fn func(ctx context.Context) error
	switch kind {
	case cloud.KindInstance:
		op = "TerminateInstance"
		fn = func(ctx context.Context) error {
			_, err := a.clients.Compute.TerminateInstance(ctx, core.TerminateInstanceRequest{
				InstanceId:         common.String(resourceID),
				PreserveBootVolume: common.Bool(false),
			})
			return err
		}
	case cloud.KindImage:
		op = "DeleteImage"
		fn = func(ctx context.Context) error {
			_, err := a.clients.Compute.DeleteImage(ctx, core.DeleteImageRequest{ImageId: common.String(resourceID)})
			return err
		}
	case cloud.KindSnapshot:
		op = "DeleteBootVolumeBackup"
		fn = func(ctx context.Context) error {
			_, err := a.clients.Blockstorage.DeleteBootVolumeBackup(ctx, core.DeleteBootVolumeBackupRequest{
				BootVolumeBackupId: common.String(resourceID),
			})
			return err
		}
	default:
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderOCI,
			Capability: cloud.CapDelete,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
	err := a.call(ctx, op, fn)
	if isNotFound(err) {
		a.logger.Debugf("%s %s already gone", kind, resourceID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, resourceID, err)
	}
	a.logger.Infof("Deleted %s %s", kind, resourceID)
	return nil
}

// TagResource merges freeform tags into an instance or image.
func (a *Adapter) TagResource(ctx context.Context, resourceID string, kind cloud.ResourceKind, tags map[string]string) error {
	switch kind {
	case cloud.KindInstance:
		inst, err := a.getInstance(ctx, resourceID)
		if err != nil {
			return err
		}
		merged := mergeTags(inst.FreeformTags, tags)
		err = a.call(ctx, "UpdateInstance", func(ctx context.Context) error {
			_, err := a.clients.Compute.UpdateInstance(ctx, core.UpdateInstanceRequest{
				InstanceId:            common.String(resourceID),
				UpdateInstanceDetails: core.UpdateInstanceDetails{FreeformTags: merged},
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to tag instance %s: %w", resourceID, err)
		}
		return nil
	case cloud.KindImage:
		var resp core.GetImageResponse
		err := a.call(ctx, "GetImage", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Compute.GetImage(ctx, core.GetImageRequest{ImageId: common.String(resourceID)})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to get image %s: %w", resourceID, err)
		}
		merged := mergeTags(resp.Image.FreeformTags, tags)
		err = a.call(ctx, "UpdateImage", func(ctx context.Context) error {
			_, err := a.clients.Compute.UpdateImage(ctx, core.UpdateImageRequest{
				ImageId:            common.String(resourceID),
				UpdateImageDetails: core.UpdateImageDetails{FreeformTags: merged},
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to tag image %s: %w", resourceID, err)
		}
		return nil
	}
	return &cloud.CapabilityNotSupportedError{
		Provider:   cloud.ProviderOCI,
		Capability: cloud.CapTag,
		Reason:     fmt.Sprintf("resource kind %q", kind),
	}
}
