package gcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/sqladmin/v1"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

const (
	bytesPerGB = 1024 * 1024 * 1024

	// maxObjectsPerBucket bounds the object walk used to size a bucket.
	maxObjectsPerBucket = 5000
)

// DiscoverCompute lists instances across all zones of the project.
func (a *Adapter) DiscoverCompute(ctx context.Context) ([]cloud.ComputeInstance, error) {
	var instances []*compute.Instance
	err := a.call(ctx, "AggregatedListInstances", func(ctx context.Context) error {
		instances = instances[:0]
		return a.services.Compute.Instances.AggregatedList(a.project).Context(ctx).
			Pages(ctx, func(page *compute.InstanceAggregatedList) error {
				for _, scoped := range page.Items {
					instances = append(instances, scoped.Instances...)
				}
				return nil
			})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	result := make([]cloud.ComputeInstance, 0, len(instances))
	for _, inst := range instances {
		if inst == nil || inst.Name == "" {
			continue
		}
		diskGB, err := a.diskSizeGB(ctx, inst)
		if err != nil {
			a.logger.Warningf("Skipping instance %s: %v", inst.Name, err)
			cloud.RecordSkip(ctx, "instance", inst.Name, err)
			continue
		}
		result = append(result, a.mapInstance(inst, diskGB))
	}
	return result, nil
}

// diskSizeGB sums attached disk sizes, reading disks whose size the instance
// listing does not carry.
func (a *Adapter) diskSizeGB(ctx context.Context, inst *compute.Instance) (int, error) {
	total := 0
	zone := lastSegment(inst.Zone)
	for _, d := range inst.Disks {
		if d == nil {
			continue
		}
		if d.DiskSizeGb > 0 {
			total += int(d.DiskSizeGb)
			continue
		}
		if d.Source == "" {
			continue
		}
		name := lastSegment(d.Source)
		var disk *compute.Disk
		err := a.call(ctx, "GetDisk", func(ctx context.Context) error {
			var err error
			disk, err = a.services.Compute.Disks.Get(a.project, zone, name).Context(ctx).Do()
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("failed to get disk %s: %w", name, err)
		}
		total += int(disk.SizeGb)
	}
	return total, nil
}

func (a *Adapter) mapInstance(inst *compute.Instance, diskGB int) cloud.ComputeInstance {
	machineType := lastSegment(inst.MachineType)
	size := machineSize(machineType)
	zone := lastSegment(inst.Zone)
	out := cloud.ComputeInstance{
		ID:           a.zonalID(zone, "instances", inst.Name),
		Name:         inst.Name,
		InstanceType: machineType,
		CPUCores:     size.CPUCores,
		MemoryGB:     size.MemoryGB,
		DiskGB:       diskGB,
		State:        strings.ToLower(inst.Status),
		Region:       regionOf(zone),
		Tags:         cloud.CloneTags(inst.Labels),
		Metadata: map[string]any{
			"zone":        zone,
			"instance_id": strconv.FormatUint(inst.Id, 10),
		},
	}
	for _, nic := range inst.NetworkInterfaces {
		if nic == nil {
			continue
		}
		if out.PrivateIP == "" {
			out.PrivateIP = nic.NetworkIP
		}
		for _, ac := range nic.AccessConfigs {
			if ac != nil && ac.NatIP != "" && out.PublicIP == "" {
				out.PublicIP = ac.NatIP
			}
		}
	}
	for _, d := range inst.Disks {
		if d != nil && d.Boot && len(d.Licenses) > 0 {
			out.Metadata["os_license"] = lastSegment(d.Licenses[0])
		}
	}
	return out
}

// machineSize resolves predefined types from the sizing table and decodes
// custom types of the form [family-]custom-<cpus>-<memoryMB>.
func machineSize(machineType string) cloud.Size {
	size, known := cloud.LookupSize(cloud.ProviderGCP, machineType)
	if known {
		return size
	}
	if i := strings.Index(machineType, "custom-"); i >= 0 {
		parts := strings.Split(machineType[i+len("custom-"):], "-")
		if len(parts) >= 2 {
			cpus, err1 := strconv.Atoi(parts[0])
			memMB, err2 := strconv.Atoi(parts[1])
			if err1 == nil && err2 == nil && cpus > 0 && memMB > 0 {
				return cloud.Size{CPUCores: cpus, MemoryGB: float64(memMB) / 1024}
			}
		}
	}
	return size
}

// DiscoverDatabases lists Cloud SQL instances.
func (a *Adapter) DiscoverDatabases(ctx context.Context) ([]cloud.Database, error) {
	var items []*sqladmin.DatabaseInstance
	err := a.call(ctx, "ListSQLInstances", func(ctx context.Context) error {
		items = items[:0]
		return a.services.SQL.Instances.List(a.project).Context(ctx).
			Pages(ctx, func(page *sqladmin.InstancesListResponse) error {
				items = append(items, page.Items...)
				return nil
			})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sql instances: %w", err)
	}
	result := make([]cloud.Database, 0, len(items))
	for _, db := range items {
		if db == nil {
			continue
		}
		result = append(result, a.mapDatabase(db))
	}
	return result, nil
}

func (a *Adapter) mapDatabase(db *sqladmin.DatabaseInstance) cloud.Database {
	engine, version := splitDatabaseVersion(db.DatabaseVersion)
	out := cloud.Database{
		ID:            a.globalID("sqlInstances", db.Name),
		Name:          db.Name,
		Engine:        engine,
		EngineVersion: version,
		State:         strings.ToLower(db.State),
		Tags:          map[string]string{},
		Metadata: map[string]any{
			"connection_name": db.ConnectionName,
			"region":          db.Region,
		},
	}
	if s := db.Settings; s != nil {
		out.InstanceClass = s.Tier
		out.StorageGB = int(s.DataDiskSizeGb)
		out.MultiAZ = s.AvailabilityType == "REGIONAL"
		out.Tags = cloud.CloneTags(s.UserLabels)
	}
	for _, ip := range db.IpAddresses {
		if ip != nil && ip.IpAddress != "" {
			out.Endpoint = ip.IpAddress
			if ip.Type == "PRIVATE" {
				break
			}
		}
	}
	switch engine {
	case "postgres":
		out.Port = 5432
	case "mysql":
		out.Port = 3306
	case "sqlserver":
		out.Port = 1433
	}
	return out
}

// splitDatabaseVersion turns "POSTGRES_14" into ("postgres", "14") and
// "MYSQL_8_0" into ("mysql", "8.0").
func splitDatabaseVersion(v string) (string, string) {
	engine, version, _ := strings.Cut(strings.ToLower(v), "_")
	return engine, strings.ReplaceAll(version, "_", ".")
}

// DiscoverStorage lists GCS buckets. Size and object count come from a
// bounded object walk; buckets that cannot be walked are skipped.
func (a *Adapter) DiscoverStorage(ctx context.Context) ([]cloud.StorageBucket, error) {
	if a.services.Storage == nil {
		return nil, fmt.Errorf("storage client not configured: %w", cloud.ErrConfiguration)
	}
	var attrs []*storage.BucketAttrs
	err := a.call(ctx, "ListBuckets", func(ctx context.Context) error {
		attrs = attrs[:0]
		it := a.services.Storage.Buckets(ctx, a.project)
		for {
			b, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			attrs = append(attrs, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	result := make([]cloud.StorageBucket, 0, len(attrs))
	for _, b := range attrs {
		bucket, err := a.describeBucket(ctx, b)
		if err != nil {
			a.logger.Warningf("Skipping bucket %s: %v", b.Name, err)
			cloud.RecordSkip(ctx, "bucket", b.Name, err)
			continue
		}
		result = append(result, bucket)
	}
	return result, nil
}

func (a *Adapter) describeBucket(ctx context.Context, b *storage.BucketAttrs) (cloud.StorageBucket, error) {
	out := cloud.StorageBucket{
		ID:           "gs://" + b.Name,
		Name:         b.Name,
		Region:       strings.ToLower(b.Location),
		StorageClass: b.StorageClass,
		Tags:         cloud.CloneTags(b.Labels),
		Metadata:     map[string]any{"location_type": b.LocationType},
	}
	var bytes int64
	var count int64
	err := a.call(ctx, "ListObjects", func(ctx context.Context) error {
		bytes, count = 0, 0
		it := a.services.Storage.Bucket(b.Name).Objects(ctx, &storage.Query{})
		for count < maxObjectsPerBucket {
			obj, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			bytes += obj.Size
			count++
		}
		out.Metadata["truncated"] = true
		return nil
	})
	if err != nil {
		return cloud.StorageBucket{}, fmt.Errorf("failed to list objects: %w", err)
	}
	out.SizeGB = float64(bytes) / bytesPerGB
	out.ObjectCount = count
	return out, nil
}

// DiscoverNetwork lists networks, subnetworks, firewall rules and routes.
func (a *Adapter) DiscoverNetwork(ctx context.Context) (*cloud.NetworkInfo, error) {
	info := &cloud.NetworkInfo{}
	svc := a.services.Compute

	err := a.call(ctx, "ListNetworks", func(ctx context.Context) error {
		info.VPCs = info.VPCs[:0]
		return svc.Networks.List(a.project).Context(ctx).Pages(ctx, func(page *compute.NetworkList) error {
			for _, n := range page.Items {
				info.VPCs = append(info.VPCs, cloud.NetworkResource{
					ID: a.globalID("networks", n.Name), Name: n.Name, CIDR: n.IPv4Range,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	err = a.call(ctx, "AggregatedListSubnetworks", func(ctx context.Context) error {
		info.Subnets = info.Subnets[:0]
		return svc.Subnetworks.AggregatedList(a.project).Context(ctx).Pages(ctx, func(page *compute.SubnetworkAggregatedList) error {
			for _, scoped := range page.Items {
				for _, s := range scoped.Subnetworks {
					info.Subnets = append(info.Subnets, cloud.NetworkResource{
						ID:     fmt.Sprintf("projects/%s/regions/%s/subnetworks/%s", a.project, lastSegment(s.Region), s.Name),
						Name:   s.Name,
						CIDR:   s.IpCidrRange,
						Parent: a.globalID("networks", lastSegment(s.Network)),
					})
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subnetworks: %w", err)
	}

	err = a.call(ctx, "ListFirewalls", func(ctx context.Context) error {
		info.SecurityGroups = info.SecurityGroups[:0]
		return svc.Firewalls.List(a.project).Context(ctx).Pages(ctx, func(page *compute.FirewallList) error {
			for _, fw := range page.Items {
				info.SecurityGroups = append(info.SecurityGroups, cloud.NetworkResource{
					ID: a.globalID("firewalls", fw.Name), Name: fw.Name, Parent: a.globalID("networks", lastSegment(fw.Network)),
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list firewalls: %w", err)
	}

	err = a.call(ctx, "ListRoutes", func(ctx context.Context) error {
		info.RouteTables = info.RouteTables[:0]
		return svc.Routes.List(a.project).Context(ctx).Pages(ctx, func(page *compute.RouteList) error {
			for _, r := range page.Items {
				info.RouteTables = append(info.RouteTables, cloud.NetworkResource{
					ID: a.globalID("routes", r.Name), Name: r.Name, CIDR: r.DestRange, Parent: a.globalID("networks", lastSegment(r.Network)),
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return info, nil
}
