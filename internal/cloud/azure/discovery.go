package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// maxBlobsPerContainer caps the blob listing used to size a container.
const maxBlobsPerContainer = 5000

// DiscoverCompute lists every VM in the subscription with its power state and NIC addresses.
func (a *Adapter) DiscoverCompute(ctx context.Context) ([]cloud.ComputeInstance, error) {
	pager := a.compute.NewVirtualMachinesClient().NewListAllPager(&armcompute.VirtualMachinesClientListAllOptions{
		StatusOnly: to.Ptr("true"),
	})
	var vms []*armcompute.VirtualMachine
	for pager.More() {
		var page armcompute.VirtualMachinesClientListAllResponse
		err := a.call(ctx, "ListVirtualMachines", func(ctx context.Context) error {
			var err error
			page, err = pager.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list virtual machines: %w", err)
		}
		vms = append(vms, page.Value...)
	}

	result := make([]cloud.ComputeInstance, 0, len(vms))
	for _, vm := range vms {
		if vm == nil || vm.ID == nil {
			continue
		}
		inst := mapVM(vm)
		if size, ok := a.vmSize(ctx, str(vm.Location), inst.InstanceType); ok {
			inst.CPUCores, inst.MemoryGB = size.CPUCores, size.MemoryGB
		}
		inst.PrivateIP, inst.PublicIP = a.vmAddresses(ctx, vm)
		result = append(result, inst)
	}
	return result, nil
}

func mapVM(vm *armcompute.VirtualMachine) cloud.ComputeInstance {
	inst := cloud.ComputeInstance{
		ID:       str(vm.ID),
		Name:     str(vm.Name),
		Region:   str(vm.Location),
		Tags:     tagsFrom(vm.Tags),
		Metadata: map[string]any{},
		CPUCores: cloud.DefaultCPUCores,
		MemoryGB: cloud.DefaultMemoryGB,
	}
	if group, _, err := parseID(inst.ID); err == nil {
		inst.Metadata["resource_group"] = group
	}
	props := vm.Properties
	if props == nil {
		return inst
	}
	if props.HardwareProfile != nil && props.HardwareProfile.VMSize != nil {
		inst.InstanceType = string(*props.HardwareProfile.VMSize)
		if size, ok := cloud.LookupSize(cloud.ProviderAzure, inst.InstanceType); ok {
			inst.CPUCores, inst.MemoryGB = size.CPUCores, size.MemoryGB
		}
	}
	if props.InstanceView != nil {
		inst.State = powerState(props.InstanceView.Statuses)
	}
	if sp := props.StorageProfile; sp != nil {
		if sp.OSDisk != nil {
			if sp.OSDisk.DiskSizeGB != nil {
				inst.DiskGB += int(*sp.OSDisk.DiskSizeGB)
			}
			if sp.OSDisk.OSType != nil {
				inst.Metadata["os_type"] = string(*sp.OSDisk.OSType)
			}
			inst.Metadata["os_disk"] = str(sp.OSDisk.Name)
		}
		for _, d := range sp.DataDisks {
			if d != nil && d.DiskSizeGB != nil {
				inst.DiskGB += int(*d.DiskSizeGB)
			}
		}
		if ref := sp.ImageReference; ref != nil {
			inst.Metadata["image"] = strings.Trim(strings.Join([]string{str(ref.Publisher), str(ref.Offer), str(ref.SKU)}, ":"), ":")
		}
	}
	if props.VMID != nil {
		inst.Metadata["vm_id"] = *props.VMID
	}
	return inst
}

// vmSize resolves cores and memory for a size the static table does not know,
// listing the location's sizes once and caching the answer.
func (a *Adapter) vmSize(ctx context.Context, location, sizeName string) (cloud.Size, bool) {
	if sizeName == "" || location == "" {
		return cloud.Size{}, false
	}
	if size, ok := cloud.LookupSize(cloud.ProviderAzure, sizeName); ok {
		return size, true
	}
	a.sizeMu.Lock()
	defer a.sizeMu.Unlock()
	sizes, ok := a.sizeCache[location]
	if !ok {
		sizes = map[string]cloud.Size{}
		pager := a.compute.NewVirtualMachineSizesClient().NewListPager(location, nil)
		for pager.More() {
			var page armcompute.VirtualMachineSizesClientListResponse
			err := a.call(ctx, "ListVirtualMachineSizes", func(ctx context.Context) error {
				var err error
				page, err = pager.NextPage(ctx)
				return err
			})
			if err != nil {
				a.logger.Debugf("Could not list VM sizes in %s: %v", location, err)
				return cloud.Size{}, false
			}
			for _, s := range page.Value {
				if s == nil || s.Name == nil || s.NumberOfCores == nil || s.MemoryInMB == nil {
					continue
				}
				sizes[*s.Name] = cloud.Size{CPUCores: int(*s.NumberOfCores), MemoryGB: float64(*s.MemoryInMB) / 1024}
			}
		}
		a.sizeCache[location] = sizes
	}
	size, ok := sizes[sizeName]
	return size, ok
}

// vmAddresses returns the first private and public IP of the VM's NICs.
// Lookup failures leave the addresses empty.
func (a *Adapter) vmAddresses(ctx context.Context, vm *armcompute.VirtualMachine) (private, public string) {
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil {
		return "", ""
	}
	for _, ref := range vm.Properties.NetworkProfile.NetworkInterfaces {
		if ref == nil || ref.ID == nil {
			continue
		}
		group, name, err := parseID(*ref.ID)
		if err != nil {
			continue
		}
		var nic armnetwork.InterfacesClientGetResponse
		err = a.call(ctx, "GetNetworkInterface", func(ctx context.Context) error {
			var err error
			nic, err = a.interfaces.Get(ctx, group, name, nil)
			return err
		})
		if err != nil {
			a.logger.Debugf("Could not read NIC %s: %v", name, err)
			continue
		}
		if nic.Properties == nil {
			continue
		}
		for _, ipc := range nic.Properties.IPConfigurations {
			if ipc == nil || ipc.Properties == nil {
				continue
			}
			if private == "" {
				private = str(ipc.Properties.PrivateIPAddress)
			}
			if public == "" && ipc.Properties.PublicIPAddress != nil && ipc.Properties.PublicIPAddress.ID != nil {
				public = a.publicIP(ctx, *ipc.Properties.PublicIPAddress.ID)
			}
		}
		if private != "" {
			return private, public
		}
	}
	return private, public
}

func (a *Adapter) publicIP(ctx context.Context, id string) string {
	group, name, err := parseID(id)
	if err != nil {
		return ""
	}
	var resp armnetwork.PublicIPAddressesClientGetResponse
	err = a.call(ctx, "GetPublicIPAddress", func(ctx context.Context) error {
		var err error
		resp, err = a.publicIPs.Get(ctx, group, name, nil)
		return err
	})
	if err != nil || resp.Properties == nil {
		return ""
	}
	return str(resp.Properties.IPAddress)
}

// DiscoverDatabases returns no databases; managed database discovery is not
// wired for Azure.
func (a *Adapter) DiscoverDatabases(ctx context.Context) ([]cloud.Database, error) {
	a.logger.Debug("Azure database discovery returns no results")
	return []cloud.Database{}, nil
}

// DiscoverStorage sizes the blob containers of the storage accounts listed in
// the storage_accounts credential. A container that cannot be listed is skipped.
func (a *Adapter) DiscoverStorage(ctx context.Context) ([]cloud.StorageBucket, error) {
	var result []cloud.StorageBucket
	for _, account := range splitList(a.creds.Get("storage_accounts")) {
		client, err := azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net/", account), a.credential, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client for %s: %w", account, err)
		}
		pager := client.NewListContainersPager(&azblob.ListContainersOptions{Include: azblob.ListContainersInclude{Metadata: true}})
		for pager.More() {
			var page azblob.ListContainersResponse
			err := a.call(ctx, "ListContainers", func(ctx context.Context) error {
				var err error
				page, err = pager.NextPage(ctx)
				return err
			})
			if err != nil {
				a.logger.Warningf("Skipping storage account %s: %v", account, err)
				cloud.RecordSkip(ctx, "storage_account", account, err)
				break
			}
			for _, c := range page.ContainerItems {
				if c == nil || c.Name == nil {
					continue
				}
				bucket, err := a.describeContainer(ctx, client, account, *c.Name)
				if err != nil {
					id := account + "/" + *c.Name
					a.logger.Warningf("Skipping container %s: %v", id, err)
					cloud.RecordSkip(ctx, "bucket", id, err)
					continue
				}
				result = append(result, *bucket)
			}
		}
	}
	return result, nil
}

func (a *Adapter) describeContainer(ctx context.Context, client *azblob.Client, account, name string) (*cloud.StorageBucket, error) {
	bucket := &cloud.StorageBucket{
		ID:       account + "/" + name,
		Name:     name,
		Region:   a.region,
		Tags:     map[string]string{},
		Metadata: map[string]any{"storage_account": account},
	}
	var bytes int64
	pager := client.NewListBlobsFlatPager(name, nil)
	for pager.More() {
		var page azblob.ListBlobsFlatResponse
		err := a.call(ctx, "ListBlobs", func(ctx context.Context) error {
			var err error
			page, err = pager.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		if page.Segment == nil {
			break
		}
		for _, b := range page.Segment.BlobItems {
			bucket.ObjectCount++
			if b != nil && b.Properties != nil && b.Properties.ContentLength != nil {
				bytes += *b.Properties.ContentLength
			}
			if bucket.StorageClass == "" && b != nil && b.Properties != nil && b.Properties.AccessTier != nil {
				bucket.StorageClass = string(*b.Properties.AccessTier)
			}
		}
		if bucket.ObjectCount >= maxBlobsPerContainer {
			bucket.Metadata["truncated"] = true
			break
		}
	}
	bucket.SizeGB = float64(bytes) / (1024 * 1024 * 1024)
	return bucket, nil
}

// DiscoverNetwork returns VNets with their subnets, NSGs and route tables.
func (a *Adapter) DiscoverNetwork(ctx context.Context) (*cloud.NetworkInfo, error) {
	info := &cloud.NetworkInfo{}

	vnetPager := a.vnets.NewListAllPager(nil)
	for vnetPager.More() {
		var page armnetwork.VirtualNetworksClientListAllResponse
		if err := a.call(ctx, "ListVirtualNetworks", func(ctx context.Context) error {
			var err error
			page, err = vnetPager.NextPage(ctx)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to list virtual networks: %w", err)
		}
		for _, vnet := range page.Value {
			if vnet == nil {
				continue
			}
			res := cloud.NetworkResource{ID: str(vnet.ID), Name: str(vnet.Name), Tags: tagsFrom(vnet.Tags)}
			if vnet.Properties == nil {
				info.VPCs = append(info.VPCs, res)
				continue
			}
			if as := vnet.Properties.AddressSpace; as != nil && len(as.AddressPrefixes) > 0 {
				res.CIDR = str(as.AddressPrefixes[0])
			}
			info.VPCs = append(info.VPCs, res)
			for _, sn := range vnet.Properties.Subnets {
				if sn == nil {
					continue
				}
				sub := cloud.NetworkResource{ID: str(sn.ID), Name: str(sn.Name), Parent: str(vnet.ID)}
				if sn.Properties != nil {
					sub.CIDR = str(sn.Properties.AddressPrefix)
				}
				info.Subnets = append(info.Subnets, sub)
			}
		}
	}

	nsgPager := a.nsgs.NewListAllPager(nil)
	for nsgPager.More() {
		var page armnetwork.SecurityGroupsClientListAllResponse
		if err := a.call(ctx, "ListNetworkSecurityGroups", func(ctx context.Context) error {
			var err error
			page, err = nsgPager.NextPage(ctx)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to list network security groups: %w", err)
		}
		for _, nsg := range page.Value {
			if nsg != nil {
				info.SecurityGroups = append(info.SecurityGroups, cloud.NetworkResource{ID: str(nsg.ID), Name: str(nsg.Name), Tags: tagsFrom(nsg.Tags)})
			}
		}
	}

	rtPager := a.routeTables.NewListAllPager(nil)
	for rtPager.More() {
		var page armnetwork.RouteTablesClientListAllResponse
		if err := a.call(ctx, "ListRouteTables", func(ctx context.Context) error {
			var err error
			page, err = rtPager.NextPage(ctx)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to list route tables: %w", err)
		}
		for _, rt := range page.Value {
			if rt != nil {
				info.RouteTables = append(info.RouteTables, cloud.NetworkResource{ID: str(rt.ID), Name: str(rt.Name), Tags: tagsFrom(rt.Tags)})
			}
		}
	}
	return info, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
