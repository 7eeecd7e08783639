package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/common"
)

// Azure limits most compute resource names to 80 characters.
const maxNameLength = 80

// CreateInstance creates a VM from a managed image. The NIC comes from the
// nic_id option, or is created in spec.SubnetID.
func (a *Adapter) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	group, err := a.requireResourceGroup()
	if err != nil {
		return nil, err
	}
	if spec.ImageID == "" {
		return nil, fmt.Errorf("image id is required to create a VM: %w", cloud.ErrConfiguration)
	}
	osProfile, err := a.osProfile(spec.Name)
	if err != nil {
		return nil, err
	}
	nicID := spec.Options["nic_id"]
	if nicID == "" {
		if nicID, err = a.createNIC(ctx, group, spec.Name, spec.SubnetID); err != nil {
			return nil, err
		}
	}

	osDisk := &armcompute.OSDisk{
		CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
		ManagedDisk:  &armcompute.ManagedDiskParameters{StorageAccountType: to.Ptr(armcompute.StorageAccountTypesPremiumLRS)},
	}
	if spec.DiskGB > 0 {
		osDisk.DiskSizeGB = to.Ptr(int32(spec.DiskGB))
	}
	vm := armcompute.VirtualMachine{
		Location: to.Ptr(a.region),
		Tags:     tagsTo(spec.Tags),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(spec.InstanceType))},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{ID: to.Ptr(spec.ImageID)},
				OSDisk:         osDisk,
			},
			OSProfile: osProfile,
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID:         to.Ptr(nicID),
					Properties: &armcompute.NetworkInterfaceReferenceProperties{Primary: to.Ptr(true)},
				}},
			},
		},
	}

	vmClient := a.compute.NewVirtualMachinesClient()
	resp, err := await(ctx, a, "CreateVirtualMachine", func(ctx context.Context) (*runtime.Poller[armcompute.VirtualMachinesClientCreateOrUpdateResponse], error) {
		return vmClient.BeginCreateOrUpdate(ctx, group, spec.Name, vm, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VM %s: %w", spec.Name, err)
	}
	id := str(resp.ID)
	a.logger.Infof("Created VM %s", spec.Name)
	return &cloud.CutoverResult{ResourceID: id, ResourceURL: portalURL(id)}, nil
}

// osProfile builds the guest login settings. An ssh_public_key credential
// selects key-based Linux login, otherwise admin_password is required.
func (a *Adapter) osProfile(name string) (*armcompute.OSProfile, error) {
	user := a.creds.Get("admin_username")
	if user == "" {
		user = "cloudhop"
	}
	profile := &armcompute.OSProfile{
		ComputerName:  to.Ptr(common.SanitizeName(name)),
		AdminUsername: to.Ptr(user),
	}
	if key := a.creds.Get("ssh_public_key"); key != "" {
		profile.LinuxConfiguration = &armcompute.LinuxConfiguration{
			DisablePasswordAuthentication: to.Ptr(true),
			SSH: &armcompute.SSHConfiguration{
				PublicKeys: []*armcompute.SSHPublicKey{{
					Path:    to.Ptr(fmt.Sprintf("/home/%s/.ssh/authorized_keys", user)),
					KeyData: to.Ptr(key),
				}},
			},
		}
		return profile, nil
	}
	password, err := a.creds.Require("admin_password")
	if err != nil {
		return nil, err
	}
	profile.AdminPassword = to.Ptr(password)
	return profile, nil
}

func (a *Adapter) createNIC(ctx context.Context, group, name, subnetID string) (string, error) {
	if subnetID == "" {
		return "", fmt.Errorf("a subnet id or nic_id option is required to create a VM: %w", cloud.ErrConfiguration)
	}
	nicName := common.SanitizeName(name) + "-nic"
	nic := armnetwork.Interface{
		Location: to.Ptr(a.region),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
				Name: to.Ptr("ipconfig1"),
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
					Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
					PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
				},
			}},
		},
	}
	resp, err := await(ctx, a, "CreateNetworkInterface", func(ctx context.Context) (*runtime.Poller[armnetwork.InterfacesClientCreateOrUpdateResponse], error) {
		return a.interfaces.BeginCreateOrUpdate(ctx, group, nicName, nic, nil)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network interface %s: %w", nicName, err)
	}
	return str(resp.ID), nil
}

// CreateSnapshot copies the OS disk of a VM, or a managed disk directly, into
// a snapshot.
func (a *Adapter) CreateSnapshot(ctx context.Context, resourceID string, kind cloud.ResourceKind) (*cloud.Snapshot, error) {
	group, name, err := parseID(resourceID)
	if err != nil {
		return nil, err
	}
	diskName := name
	switch kind {
	case cloud.KindInstance:
		vm, err := a.getVM(ctx, group, name)
		if err != nil {
			return nil, err
		}
		if vm.Properties == nil || vm.Properties.StorageProfile == nil || vm.Properties.StorageProfile.OSDisk == nil || vm.Properties.StorageProfile.OSDisk.Name == nil {
			return nil, fmt.Errorf("VM %s has no OS disk", name)
		}
		diskName = *vm.Properties.StorageProfile.OSDisk.Name
	case cloud.KindDisk:
	default:
		return nil, &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderAzure,
			Capability: cloud.CapSnapshot,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}

	var disk armcompute.DisksClientGetResponse
	err = a.call(ctx, "GetDisk", func(ctx context.Context) error {
		var err error
		disk, err = a.compute.NewDisksClient().Get(ctx, group, diskName, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get disk %s: %w", diskName, err)
	}
	snapshotName := common.ResourceName("ss", diskName, maxNameLength, time.Now())
	a.logger.Infof("Creating snapshot: %s", snapshotName)
	snapshots := a.compute.NewSnapshotsClient()
	resp, err := await(ctx, a, "CreateSnapshot", func(ctx context.Context) (*runtime.Poller[armcompute.SnapshotsClientCreateOrUpdateResponse], error) {
		return snapshots.BeginCreateOrUpdate(ctx, group, snapshotName, armcompute.Snapshot{
			Location: disk.Location,
			Properties: &armcompute.SnapshotProperties{
				CreationData: &armcompute.CreationData{
					CreateOption:     to.Ptr(armcompute.DiskCreateOptionCopy),
					SourceResourceID: disk.ID,
				},
			},
		}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	a.logger.Successf("Snapshot created: %s", snapshotName)
	return &cloud.Snapshot{ID: str(resp.ID), SourceID: resourceID, SourceKind: kind}, nil
}

// RestoreSnapshot creates a managed disk from the snapshot. For a VM source
// the VM is deallocated, its OS disk swapped for the restored one and started.
func (a *Adapter) RestoreSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	snapGroup, snapName, err := parseID(snap.ID)
	if err != nil {
		return err
	}
	var snapshot armcompute.SnapshotsClientGetResponse
	err = a.call(ctx, "GetSnapshot", func(ctx context.Context) error {
		var err error
		snapshot, err = a.compute.NewSnapshotsClient().Get(ctx, snapGroup, snapName, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get snapshot %s: %w", snapName, err)
	}

	diskName := common.ResourceName("restored", snapName, maxNameLength, time.Now())
	disks := a.compute.NewDisksClient()
	disk, err := await(ctx, a, "CreateDisk", func(ctx context.Context) (*runtime.Poller[armcompute.DisksClientCreateOrUpdateResponse], error) {
		return disks.BeginCreateOrUpdate(ctx, snapGroup, diskName, armcompute.Disk{
			Location: snapshot.Location,
			Properties: &armcompute.DiskProperties{
				CreationData: &armcompute.CreationData{
					CreateOption:     to.Ptr(armcompute.DiskCreateOptionCopy),
					SourceResourceID: snapshot.ID,
				},
			},
		}, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to restore disk from snapshot %s: %w", snapName, err)
	}
	a.logger.Infof("Restored disk %s from snapshot %s", diskName, snapName)
	if snap.SourceKind != cloud.KindInstance {
		return nil
	}
	return a.swapOSDisk(ctx, snap.SourceID, str(disk.ID), diskName)
}

func (a *Adapter) swapOSDisk(ctx context.Context, vmID, diskID, diskName string) error {
	group, name, err := parseID(vmID)
	if err != nil {
		return err
	}
	vms := a.compute.NewVirtualMachinesClient()
	if _, err := await(ctx, a, "DeallocateVirtualMachine", func(ctx context.Context) (*runtime.Poller[armcompute.VirtualMachinesClientDeallocateResponse], error) {
		return vms.BeginDeallocate(ctx, group, name, nil)
	}); err != nil {
		return fmt.Errorf("failed to deallocate VM %s: %w", name, err)
	}
	vm, err := a.getVM(ctx, group, name)
	if err != nil {
		return err
	}
	if vm.Properties == nil || vm.Properties.StorageProfile == nil || vm.Properties.StorageProfile.OSDisk == nil {
		return fmt.Errorf("VM %s has no OS disk", name)
	}
	osDisk := vm.Properties.StorageProfile.OSDisk
	osDisk.Name = to.Ptr(diskName)
	if osDisk.ManagedDisk == nil {
		osDisk.ManagedDisk = &armcompute.ManagedDiskParameters{}
	}
	osDisk.ManagedDisk.ID = to.Ptr(diskID)
	if _, err := await(ctx, a, "UpdateVirtualMachine", func(ctx context.Context) (*runtime.Poller[armcompute.VirtualMachinesClientCreateOrUpdateResponse], error) {
		return vms.BeginCreateOrUpdate(ctx, group, name, *vm, nil)
	}); err != nil {
		return fmt.Errorf("failed to swap OS disk on VM %s: %w", name, err)
	}
	if _, err := await(ctx, a, "StartVirtualMachine", func(ctx context.Context) (*runtime.Poller[armcompute.VirtualMachinesClientStartResponse], error) {
		return vms.BeginStart(ctx, group, name, nil)
	}); err != nil {
		return fmt.Errorf("failed to start VM %s: %w", name, err)
	}
	a.logger.Infof("VM %s restarted on restored OS disk %s", name, diskName)
	return nil
}

// DeleteResource deletes a VM, snapshot, image or disk.
func (a *Adapter) DeleteResource(ctx context.Context, resourceID string, kind cloud.ResourceKind) error {
	group, name, err := parseID(resourceID)
	if err != nil {
		return err
	}
	switch kind {
	case cloud.KindInstance:
		vms := a.compute.NewVirtualMachinesClient()
		_, err = await(ctx, a, "DeleteVirtualMachine", func(ctx context.Context) (*runtime.Poller[armcompute.VirtualMachinesClientDeleteResponse], error) {
			return vms.BeginDelete(ctx, group, name, nil)
		})
	case cloud.KindSnapshot:
		snapshots := a.compute.NewSnapshotsClient()
		_, err = await(ctx, a, "DeleteSnapshot", func(ctx context.Context) (*runtime.Poller[armcompute.SnapshotsClientDeleteResponse], error) {
			return snapshots.BeginDelete(ctx, group, name, nil)
		})
	case cloud.KindImage:
		images := a.compute.NewImagesClient()
		_, err = await(ctx, a, "DeleteImage", func(ctx context.Context) (*runtime.Poller[armcompute.ImagesClientDeleteResponse], error) {
			return images.BeginDelete(ctx, group, name, nil)
		})
	case cloud.KindDisk:
		disks := a.compute.NewDisksClient()
		_, err = await(ctx, a, "DeleteDisk", func(ctx context.Context) (*runtime.Poller[armcompute.DisksClientDeleteResponse], error) {
			return disks.BeginDelete(ctx, group, name, nil)
		})
	default:
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderAzure,
			Capability: cloud.CapDelete,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
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

// TagResource merges tags onto a VM, image or snapshot.
func (a *Adapter) TagResource(ctx context.Context, resourceID string, kind cloud.ResourceKind, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	group, name, err := parseID(resourceID)
	if err != nil {
		return err
	}
	switch kind {
	case cloud.KindInstance:
		vm, err := a.getVM(ctx, group, name)
		if err != nil {
			return err
		}
		merged := mergeTags(vm.Tags, tags)
		vms := a.compute.NewVirtualMachinesClient()
		_, err = await(ctx, a, "UpdateVirtualMachine", func(ctx context.Context) (*runtime.Poller[armcompute.VirtualMachinesClientUpdateResponse], error) {
			return vms.BeginUpdate(ctx, group, name, armcompute.VirtualMachineUpdate{Tags: merged}, nil)
		})
		if err != nil {
			return fmt.Errorf("failed to tag VM %s: %w", name, err)
		}
	case cloud.KindImage:
		images := a.compute.NewImagesClient()
		var current armcompute.ImagesClientGetResponse
		if err := a.call(ctx, "GetImage", func(ctx context.Context) error {
			var err error
			current, err = images.Get(ctx, group, name, nil)
			return err
		}); err != nil {
			return fmt.Errorf("failed to get image %s: %w", name, err)
		}
		merged := mergeTags(current.Tags, tags)
		_, err = await(ctx, a, "UpdateImage", func(ctx context.Context) (*runtime.Poller[armcompute.ImagesClientUpdateResponse], error) {
			return images.BeginUpdate(ctx, group, name, armcompute.ImageUpdate{Tags: merged}, nil)
		})
		if err != nil {
			return fmt.Errorf("failed to tag image %s: %w", name, err)
		}
	case cloud.KindSnapshot:
		snapshots := a.compute.NewSnapshotsClient()
		var current armcompute.SnapshotsClientGetResponse
		if err := a.call(ctx, "GetSnapshot", func(ctx context.Context) error {
			var err error
			current, err = snapshots.Get(ctx, group, name, nil)
			return err
		}); err != nil {
			return fmt.Errorf("failed to get snapshot %s: %w", name, err)
		}
		merged := mergeTags(current.Tags, tags)
		_, err = await(ctx, a, "UpdateSnapshot", func(ctx context.Context) (*runtime.Poller[armcompute.SnapshotsClientUpdateResponse], error) {
			return snapshots.BeginUpdate(ctx, group, name, armcompute.SnapshotUpdate{Tags: merged}, nil)
		})
		if err != nil {
			return fmt.Errorf("failed to tag snapshot %s: %w", name, err)
		}
	default:
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderAzure,
			Capability: cloud.CapTag,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
	return nil
}

func (a *Adapter) getVM(ctx context.Context, group, name string) (*armcompute.VirtualMachine, error) {
	var resp armcompute.VirtualMachinesClientGetResponse
	err := a.call(ctx, "GetVirtualMachine", func(ctx context.Context) error {
		var err error
		resp, err = a.compute.NewVirtualMachinesClient().Get(ctx, group, name, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get VM %s: %w", name, err)
	}
	return &resp.VirtualMachine, nil
}

func mergeTags(current map[string]*string, extra map[string]string) map[string]*string {
	merged := make(map[string]*string, len(current)+len(extra))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = to.Ptr(v)
	}
	return merged
}
