package oci

import (
	"context"
	"fmt"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/database"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

const (
	bytesPerGB = 1024 * 1024 * 1024
	gbPerTB    = 1024
)

// DiscoverCompute lists compartment instances with their boot volume size
// and primary VNIC addresses.
func (a *Adapter) DiscoverCompute(ctx context.Context) ([]cloud.ComputeInstance, error) {
	var instances []core.Instance
	var page *string
	for {
		var resp core.ListInstancesResponse
		err := a.call(ctx, "ListInstances", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Compute.ListInstances(ctx, core.ListInstancesRequest{
				CompartmentId: common.String(a.compartmentID),
				Page:          page,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list instances: %w", err)
		}
		instances = append(instances, resp.Items...)
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}

	result := make([]cloud.ComputeInstance, 0, len(instances))
	for _, inst := range instances {
		id := str(inst.Id)
		if id == "" || inst.LifecycleState == core.InstanceLifecycleStateTerminated {
			continue
		}
		diskGB, err := a.bootVolumeSizeGB(ctx, inst)
		if err != nil {
			a.logger.Warningf("Skipping instance %s: %v", id, err)
			cloud.RecordSkip(ctx, "instance", id, err)
			continue
		}
		out := mapInstance(inst, diskGB, a.region)
		if private, public, err := a.instanceAddresses(ctx, id); err == nil {
			out.PrivateIP, out.PublicIP = private, public
		} else {
			a.logger.Debugf("Could not resolve addresses of %s: %v", id, err)
		}
		result = append(result, out)
	}
	return result, nil
}

func mapInstance(inst core.Instance, diskGB int, region string) cloud.ComputeInstance {
	shape := str(inst.Shape)
	size, _ := cloud.LookupSize(cloud.ProviderOCI, shape)
	if cfg := inst.ShapeConfig; cfg != nil {
		switch {
		case cfg.Vcpus != nil && *cfg.Vcpus > 0:
			size.CPUCores = *cfg.Vcpus
		case cfg.Ocpus != nil && *cfg.Ocpus > 0:
			size.CPUCores = int(*cfg.Ocpus) * vcpusPerOCPU(shape)
		}
		if cfg.MemoryInGBs != nil && *cfg.MemoryInGBs > 0 {
			size.MemoryGB = float64(*cfg.MemoryInGBs)
		}
	}
	name := str(inst.DisplayName)
	if name == "" {
		name = str(inst.Id)
	}
	if inst.Region != nil && *inst.Region != "" {
		region = *inst.Region
	}
	return cloud.ComputeInstance{
		ID:           str(inst.Id),
		Name:         name,
		InstanceType: shape,
		CPUCores:     size.CPUCores,
		MemoryGB:     size.MemoryGB,
		DiskGB:       diskGB,
		State:        strings.ToLower(string(inst.LifecycleState)),
		Region:       region,
		Tags:         cloud.CloneTags(inst.FreeformTags),
		Metadata: map[string]any{
			"availability_domain": str(inst.AvailabilityDomain),
			"compartment_id":      str(inst.CompartmentId),
			"image_id":            str(inst.ImageId),
			"flex":                IsFlexShape(shape),
		},
	}
}

func (a *Adapter) bootVolumeSizeGB(ctx context.Context, inst core.Instance) (int, error) {
	volumeID, err := a.bootVolumeID(ctx, inst)
	if err != nil || volumeID == "" {
		return 0, err
	}
	var resp core.GetBootVolumeResponse
	err = a.call(ctx, "GetBootVolume", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Blockstorage.GetBootVolume(ctx, core.GetBootVolumeRequest{BootVolumeId: common.String(volumeID)})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get boot volume %s: %w", volumeID, err)
	}
	if resp.BootVolume.SizeInGBs == nil {
		return 0, nil
	}
	return int(*resp.BootVolume.SizeInGBs), nil
}

func (a *Adapter) bootVolumeID(ctx context.Context, inst core.Instance) (string, error) {
	var resp core.ListBootVolumeAttachmentsResponse
	err := a.call(ctx, "ListBootVolumeAttachments", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Compute.ListBootVolumeAttachments(ctx, core.ListBootVolumeAttachmentsRequest{
			AvailabilityDomain: inst.AvailabilityDomain,
			CompartmentId:      common.String(a.compartmentID),
			InstanceId:         inst.Id,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to list boot volume attachments: %w", err)
	}
	for _, att := range resp.Items {
		if att.LifecycleState == core.BootVolumeAttachmentLifecycleStateAttached && att.BootVolumeId != nil {
			return *att.BootVolumeId, nil
		}
	}
	return "", nil
}

// instanceAddresses returns the private and public IP of the primary VNIC.
func (a *Adapter) instanceAddresses(ctx context.Context, instanceID string) (string, string, error) {
	var resp core.ListVnicAttachmentsResponse
	err := a.call(ctx, "ListVnicAttachments", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Compute.ListVnicAttachments(ctx, core.ListVnicAttachmentsRequest{
			CompartmentId: common.String(a.compartmentID),
			InstanceId:    common.String(instanceID),
		})
		return err
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list vnic attachments: %w", err)
	}
	for _, att := range resp.Items {
		if att.VnicId == nil || att.LifecycleState != core.VnicAttachmentLifecycleStateAttached {
			continue
		}
		var vnic core.GetVnicResponse
		err := a.call(ctx, "GetVnic", func(ctx context.Context) error {
			var err error
			vnic, err = a.clients.Network.GetVnic(ctx, core.GetVnicRequest{VnicId: att.VnicId})
			return err
		})
		if err != nil {
			return "", "", fmt.Errorf("failed to get vnic %s: %w", *att.VnicId, err)
		}
		if vnic.Vnic.IsPrimary == nil || *vnic.Vnic.IsPrimary {
			return str(vnic.Vnic.PrivateIp), str(vnic.Vnic.PublicIp), nil
		}
	}
	return "", "", nil
}

// DiscoverDatabases lists Autonomous Databases in the compartment.
func (a *Adapter) DiscoverDatabases(ctx context.Context) ([]cloud.Database, error) {
	var result []cloud.Database
	var page *string
	for {
		var resp database.ListAutonomousDatabasesResponse
		err := a.call(ctx, "ListAutonomousDatabases", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Database.ListAutonomousDatabases(ctx, database.ListAutonomousDatabasesRequest{
				CompartmentId: common.String(a.compartmentID),
				Page:          page,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list autonomous databases: %w", err)
		}
		for _, db := range resp.Items {
			if db.Id == nil || db.LifecycleState == database.AutonomousDatabaseSummaryLifecycleStateTerminated {
				continue
			}
			result = append(result, mapDatabase(db))
		}
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return result, nil
}

func mapDatabase(db database.AutonomousDatabaseSummary) cloud.Database {
	storageGB := 0
	if db.DataStorageSizeInTBs != nil {
		storageGB = *db.DataStorageSizeInTBs * gbPerTB
	}
	name := str(db.DisplayName)
	if name == "" {
		name = str(db.DbName)
	}
	class := ""
	if db.CpuCoreCount != nil {
		class = fmt.Sprintf("%d-ocpu", *db.CpuCoreCount)
	}
	return cloud.Database{
		ID:            str(db.Id),
		Name:          name,
		Engine:        "oracle",
		EngineVersion: str(db.DbVersion),
		InstanceClass: class,
		StorageGB:     storageGB,
		State:         strings.ToLower(string(db.LifecycleState)),
		Tags:          cloud.CloneTags(db.FreeformTags),
		Metadata: map[string]any{
			"db_name":  str(db.DbName),
			"workload": string(db.DbWorkload),
		},
	}
}

// DiscoverStorage lists Object Storage buckets with their approximate size
// and object count. Buckets whose details cannot be read are skipped.
func (a *Adapter) DiscoverStorage(ctx context.Context) ([]cloud.StorageBucket, error) {
	namespace, err := a.namespace(ctx)
	if err != nil {
		return nil, err
	}
	var summaries []objectstorage.BucketSummary
	var page *string
	for {
		var resp objectstorage.ListBucketsResponse
		err := a.call(ctx, "ListBuckets", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.ObjectStorage.ListBuckets(ctx, objectstorage.ListBucketsRequest{
				NamespaceName: common.String(namespace),
				CompartmentId: common.String(a.compartmentID),
				Page:          page,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list buckets: %w", err)
		}
		summaries = append(summaries, resp.Items...)
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}

	result := make([]cloud.StorageBucket, 0, len(summaries))
	for _, s := range summaries {
		name := str(s.Name)
		var resp objectstorage.GetBucketResponse
		err := a.call(ctx, "GetBucket", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.ObjectStorage.GetBucket(ctx, objectstorage.GetBucketRequest{
				NamespaceName: common.String(namespace),
				BucketName:    common.String(name),
				Fields: []objectstorage.GetBucketFieldsEnum{
					objectstorage.GetBucketFieldsApproximatecount,
					objectstorage.GetBucketFieldsApproximatesize,
				},
			})
			return err
		})
		if err != nil {
			a.logger.Warningf("Skipping bucket %s: %v", name, err)
			cloud.RecordSkip(ctx, "bucket", name, err)
			continue
		}
		result = append(result, mapBucket(resp.Bucket, namespace, a.region))
	}
	return result, nil
}

func mapBucket(b objectstorage.Bucket, namespace, region string) cloud.StorageBucket {
	out := cloud.StorageBucket{
		ID:           str(b.Id),
		Name:         str(b.Name),
		Region:       region,
		StorageClass: string(b.StorageTier),
		Tags:         cloud.CloneTags(b.FreeformTags),
		Metadata:     map[string]any{"namespace": namespace},
	}
	if out.ID == "" {
		out.ID = namespace + "/" + out.Name
	}
	if b.ApproximateSize != nil {
		out.SizeGB = float64(*b.ApproximateSize) / bytesPerGB
	}
	if b.ApproximateCount != nil {
		out.ObjectCount = *b.ApproximateCount
	}
	return out
}

func (a *Adapter) namespace(ctx context.Context) (string, error) {
	var resp objectstorage.GetNamespaceResponse
	err := a.call(ctx, "GetNamespace", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.ObjectStorage.GetNamespace(ctx, objectstorage.GetNamespaceRequest{})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get object storage namespace: %w", err)
	}
	return str(resp.Value), nil
}

// DiscoverNetwork lists VCNs, subnets, security lists and route tables.
func (a *Adapter) DiscoverNetwork(ctx context.Context) (*cloud.NetworkInfo, error) {
	info := &cloud.NetworkInfo{}
	compartment := common.String(a.compartmentID)

	var page *string
	for {
		var resp core.ListVcnsResponse
		err := a.call(ctx, "ListVcns", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Network.ListVcns(ctx, core.ListVcnsRequest{CompartmentId: compartment, Page: page})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list vcns: %w", err)
		}
		for _, v := range resp.Items {
			cidr := str(v.CidrBlock)
			if cidr == "" && len(v.CidrBlocks) > 0 {
				cidr = v.CidrBlocks[0]
			}
			info.VPCs = append(info.VPCs, cloud.NetworkResource{
				ID: str(v.Id), Name: str(v.DisplayName), CIDR: cidr, Tags: v.FreeformTags,
			})
		}
		if page = resp.OpcNextPage; page == nil {
			break
		}
	}

	for {
		var resp core.ListSubnetsResponse
		err := a.call(ctx, "ListSubnets", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Network.ListSubnets(ctx, core.ListSubnetsRequest{CompartmentId: compartment, Page: page})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list subnets: %w", err)
		}
		for _, s := range resp.Items {
			info.Subnets = append(info.Subnets, cloud.NetworkResource{
				ID: str(s.Id), Name: str(s.DisplayName), CIDR: str(s.CidrBlock), Parent: str(s.VcnId), Tags: s.FreeformTags,
			})
		}
		if page = resp.OpcNextPage; page == nil {
			break
		}
	}

	for {
		var resp core.ListSecurityListsResponse
		err := a.call(ctx, "ListSecurityLists", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Network.ListSecurityLists(ctx, core.ListSecurityListsRequest{CompartmentId: compartment, Page: page})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list security lists: %w", err)
		}
		for _, sl := range resp.Items {
			info.SecurityGroups = append(info.SecurityGroups, cloud.NetworkResource{
				ID: str(sl.Id), Name: str(sl.DisplayName), Parent: str(sl.VcnId), Tags: sl.FreeformTags,
			})
		}
		if page = resp.OpcNextPage; page == nil {
			break
		}
	}

	for {
		var resp core.ListRouteTablesResponse
		err := a.call(ctx, "ListRouteTables", func(ctx context.Context) error {
			var err error
			resp, err = a.clients.Network.ListRouteTables(ctx, core.ListRouteTablesRequest{CompartmentId: compartment, Page: page})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list route tables: %w", err)
		}
		for _, rt := range resp.Items {
			info.RouteTables = append(info.RouteTables, cloud.NetworkResource{
				ID: str(rt.Id), Name: str(rt.DisplayName), Parent: str(rt.VcnId), Tags: rt.FreeformTags,
			})
		}
		if page = resp.OpcNextPage; page == nil {
			break
		}
	}
	return info, nil
}
