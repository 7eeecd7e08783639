package discovery

import (
	"time"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

// Asset kinds reported in Result.Counts.
const (
	KindVM       = "vm"
	KindDatabase = "database"
	KindStorage  = "storage"
	KindNetwork  = "network"
)

func newAsset(projectID, provider, sourceID, name string, typ model.AssetType, region string, now time.Time) *model.Asset {
	if name == "" {
		name = sourceID
	}
	return &model.Asset{
		ID:              model.AssetID(projectID, sourceID),
		ProjectID:       projectID,
		Name:            name,
		Type:            typ,
		SourceID:        sourceID,
		CurrentProvider: provider,
		Region:          region,
		Specs:           map[string]any{},
		Configuration:   map[string]any{},
		Tags:            map[string]string{},
		DiscoveredAt:    now,
		UpdatedAt:       now,
	}
}

func metadata(a *model.Asset, m map[string]any) {
	for k, v := range m {
		a.Configuration[k] = v
	}
}

func instanceAsset(projectID, provider, region string, inst cloud.ComputeInstance, now time.Time) *model.Asset {
	if inst.Region != "" {
		region = inst.Region
	}
	a := newAsset(projectID, provider, inst.ID, inst.Name, model.AssetVM, region, now)
	a.Specs["instance_type"] = inst.InstanceType
	a.Specs["cpu_cores"] = inst.CPUCores
	a.Specs["memory_gb"] = inst.MemoryGB
	a.Specs["disk_gb"] = inst.DiskGB
	a.Specs["state"] = inst.State
	if inst.PrivateIP != "" {
		a.Specs["private_ip"] = inst.PrivateIP
	}
	if inst.PublicIP != "" {
		a.Specs["public_ip"] = inst.PublicIP
	}
	a.Tags = cloud.CloneTags(inst.Tags)
	metadata(a, inst.Metadata)
	return a
}

func databaseAsset(projectID, provider, region string, db cloud.Database, now time.Time) *model.Asset {
	a := newAsset(projectID, provider, db.ID, db.Name, model.AssetDatabase, region, now)
	a.Specs["engine"] = db.Engine
	a.Specs["engine_version"] = db.EngineVersion
	a.Specs["instance_class"] = db.InstanceClass
	a.Specs["storage_gb"] = db.StorageGB
	a.Specs["state"] = db.State
	a.Specs["multi_az"] = db.MultiAZ
	if db.Endpoint != "" {
		a.Specs["endpoint"] = db.Endpoint
	}
	if db.Port != 0 {
		a.Specs["port"] = db.Port
	}
	a.Tags = cloud.CloneTags(db.Tags)
	metadata(a, db.Metadata)
	return a
}

func bucketAsset(projectID, provider, region string, b cloud.StorageBucket, now time.Time) *model.Asset {
	if b.Region != "" {
		region = b.Region
	}
	a := newAsset(projectID, provider, b.ID, b.Name, model.AssetStorage, region, now)
	a.Specs["size_gb"] = b.SizeGB
	a.Specs["object_count"] = b.ObjectCount
	if b.StorageClass != "" {
		a.Specs["storage_class"] = b.StorageClass
	}
	a.Tags = cloud.CloneTags(b.Tags)
	metadata(a, b.Metadata)
	return a
}

// networkAssets produces one asset per VPC carrying its subnets, security
// groups and route tables.
func networkAssets(projectID, provider, region string, n *cloud.NetworkInfo, now time.Time) []*model.Asset {
	out := make([]*model.Asset, 0, len(n.VPCs))
	for _, vpc := range n.VPCs {
		a := newAsset(projectID, provider, vpc.ID, vpc.Name, model.AssetNetwork, region, now)
		a.Specs["cidr"] = vpc.CIDR
		a.Configuration["subnets"] = children(n.Subnets, vpc.ID)
		a.Configuration["security_groups"] = children(n.SecurityGroups, vpc.ID)
		a.Configuration["route_tables"] = children(n.RouteTables, vpc.ID)
		a.Specs["subnet_count"] = len(a.Configuration["subnets"].([]cloud.NetworkResource))
		a.Tags = cloud.CloneTags(vpc.Tags)
		out = append(out, a)
	}
	return out
}

// children returns resources whose parent is vpcID. Resources without a
// parent are attributed to every VPC when there is no better information.
func children(rs []cloud.NetworkResource, vpcID string) []cloud.NetworkResource {
	out := []cloud.NetworkResource{}
	for _, r := range rs {
		if r.Parent == "" || r.Parent == vpcID {
			out = append(out, r)
		}
	}
	return out
}
