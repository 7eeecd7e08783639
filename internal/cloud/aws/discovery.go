package aws

import (
	"context"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

const bytesPerGB = 1024 * 1024 * 1024

// DiscoverCompute lists EC2 instances and sizes their attached EBS volumes.
func (a *Adapter) DiscoverCompute(ctx context.Context) ([]cloud.ComputeInstance, error) {
	var instances []ec2types.Instance
	paginator := ec2.NewDescribeInstancesPaginator(a.clients.EC2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		var page *ec2.DescribeInstancesOutput
		err := a.call(ctx, "DescribeInstances", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, r := range page.Reservations {
			instances = append(instances, r.Instances...)
		}
	}

	result := make([]cloud.ComputeInstance, 0, len(instances))
	for _, inst := range instances {
		id := str(inst.InstanceId)
		if id == "" {
			continue
		}
		if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameTerminated {
			continue
		}
		diskGB, err := a.volumeSizeGB(ctx, inst)
		if err != nil {
			a.logger.Warningf("Skipping instance %s: %v", id, err)
			cloud.RecordSkip(ctx, "instance", id, err)
			continue
		}
		result = append(result, mapInstance(inst, diskGB, a.region))
	}
	return result, nil
}

func (a *Adapter) volumeSizeGB(ctx context.Context, inst ec2types.Instance) (int, error) {
	var ids []string
	for _, bdm := range inst.BlockDeviceMappings {
		if bdm.Ebs != nil && bdm.Ebs.VolumeId != nil {
			ids = append(ids, *bdm.Ebs.VolumeId)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var out *ec2.DescribeVolumesOutput
	err := a.call(ctx, "DescribeVolumes", func(ctx context.Context) error {
		var err error
		out, err = a.clients.EC2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: ids})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to describe volumes: %w", err)
	}
	total := 0
	for _, v := range out.Volumes {
		total += int(awsv2.ToInt32(v.Size))
	}
	return total, nil
}

func mapInstance(inst ec2types.Instance, diskGB int, region string) cloud.ComputeInstance {
	instanceType := string(inst.InstanceType)
	size, _ := cloud.LookupSize(cloud.ProviderAWS, instanceType)
	tags := tagMap(inst.Tags)
	state := ""
	if inst.State != nil {
		state = string(inst.State.Name)
	}
	metadata := map[string]any{
		"image_id":     str(inst.ImageId),
		"vpc_id":       str(inst.VpcId),
		"subnet_id":    str(inst.SubnetId),
		"architecture": string(inst.Architecture),
		"platform":     string(inst.Platform),
	}
	if inst.Placement != nil {
		metadata["availability_zone"] = str(inst.Placement.AvailabilityZone)
	}
	if inst.LaunchTime != nil {
		metadata["launch_time"] = inst.LaunchTime.UTC().Format(time.RFC3339)
	}
	name := tags["Name"]
	if name == "" {
		name = str(inst.InstanceId)
	}
	return cloud.ComputeInstance{
		ID:           str(inst.InstanceId),
		Name:         name,
		InstanceType: instanceType,
		CPUCores:     size.CPUCores,
		MemoryGB:     size.MemoryGB,
		DiskGB:       diskGB,
		State:        state,
		PrivateIP:    str(inst.PrivateIpAddress),
		PublicIP:     str(inst.PublicIpAddress),
		Region:       region,
		Tags:         tags,
		Metadata:     metadata,
	}
}

// DiscoverDatabases lists RDS instances.
func (a *Adapter) DiscoverDatabases(ctx context.Context) ([]cloud.Database, error) {
	var result []cloud.Database
	paginator := rds.NewDescribeDBInstancesPaginator(a.clients.RDS, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		var page *rds.DescribeDBInstancesOutput
		err := a.call(ctx, "DescribeDBInstances", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe DB instances: %w", err)
		}
		for _, db := range page.DBInstances {
			if db.DBInstanceIdentifier == nil {
				continue
			}
			result = append(result, mapDatabase(db))
		}
	}
	return result, nil
}

func mapDatabase(db rdstypes.DBInstance) cloud.Database {
	out := cloud.Database{
		ID:            str(db.DBInstanceIdentifier),
		Name:          str(db.DBInstanceIdentifier),
		Engine:        str(db.Engine),
		EngineVersion: str(db.EngineVersion),
		InstanceClass: str(db.DBInstanceClass),
		StorageGB:     int(awsv2.ToInt32(db.AllocatedStorage)),
		State:         str(db.DBInstanceStatus),
		MultiAZ:       awsv2.ToBool(db.MultiAZ),
		Tags:          make(map[string]string, len(db.TagList)),
		Metadata: map[string]any{
			"arn":               str(db.DBInstanceArn),
			"availability_zone": str(db.AvailabilityZone),
		},
	}
	if db.Endpoint != nil {
		out.Endpoint = str(db.Endpoint.Address)
		out.Port = int(awsv2.ToInt32(db.Endpoint.Port))
	}
	for _, t := range db.TagList {
		out.Tags[str(t.Key)] = str(t.Value)
	}
	return out
}

// DiscoverStorage lists S3 buckets. A bucket whose location cannot be read
// is skipped; size and object counts come from CloudWatch daily metrics and
// are left at zero when unavailable.
func (a *Adapter) DiscoverStorage(ctx context.Context) ([]cloud.StorageBucket, error) {
	var out *s3.ListBucketsOutput
	err := a.call(ctx, "ListBuckets", func(ctx context.Context) error {
		var err error
		out, err = a.clients.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	result := make([]cloud.StorageBucket, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := str(b.Name)
		bucket, err := a.describeBucket(ctx, b)
		if err != nil {
			a.logger.Warningf("Skipping bucket %s: %v", name, err)
			cloud.RecordSkip(ctx, "bucket", name, err)
			continue
		}
		result = append(result, *bucket)
	}
	return result, nil
}

func (a *Adapter) describeBucket(ctx context.Context, b s3types.Bucket) (*cloud.StorageBucket, error) {
	name := str(b.Name)
	var loc *s3.GetBucketLocationOutput
	err := a.call(ctx, "GetBucketLocation", func(ctx context.Context) error {
		var err error
		loc, err = a.clients.S3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: awsv2.String(name)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket location: %w", err)
	}
	region := string(loc.LocationConstraint)
	if region == "" {
		region = defaultRegion
	}

	tags := map[string]string{}
	var tagging *s3.GetBucketTaggingOutput
	err = a.call(ctx, "GetBucketTagging", func(ctx context.Context) error {
		var err error
		tagging, err = a.clients.S3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: awsv2.String(name)})
		return err
	})
	switch {
	case err == nil:
		for _, t := range tagging.TagSet {
			tags[str(t.Key)] = str(t.Value)
		}
	case apiErrorCode(err) == "NoSuchTagSet":
	default:
		a.logger.Debugf("Could not read tags for bucket %s: %v", name, err)
	}

	bucket := &cloud.StorageBucket{
		ID:           name,
		Name:         name,
		Region:       region,
		StorageClass: "STANDARD",
		Tags:         tags,
		Metadata:     map[string]any{},
	}
	if b.CreationDate != nil {
		bucket.Metadata["created_at"] = b.CreationDate.UTC().Format(time.RFC3339)
	}
	if v, ok := a.bucketMetric(ctx, name, "BucketSizeBytes", "StandardStorage"); ok {
		bucket.SizeGB = v / bytesPerGB
	}
	if v, ok := a.bucketMetric(ctx, name, "NumberOfObjects", "AllStorageTypes"); ok {
		bucket.ObjectCount = int64(v)
	}
	return bucket, nil
}

// bucketMetric reads the latest daily S3 storage metric for a bucket.
func (a *Adapter) bucketMetric(ctx context.Context, bucket, metric, storageType string) (float64, bool) {
	end := time.Now().UTC()
	start := end.Add(-48 * time.Hour)
	var out *cloudwatch.GetMetricStatisticsOutput
	err := a.call(ctx, "GetMetricStatistics", func(ctx context.Context) error {
		var err error
		out, err = a.clients.CloudWatch.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
			Namespace:  awsv2.String("AWS/S3"),
			MetricName: awsv2.String(metric),
			Dimensions: []cwtypes.Dimension{
				{Name: awsv2.String("BucketName"), Value: awsv2.String(bucket)},
				{Name: awsv2.String("StorageType"), Value: awsv2.String(storageType)},
			},
			StartTime:  awsv2.Time(start),
			EndTime:    awsv2.Time(end),
			Period:     awsv2.Int32(86400),
			Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
		})
		return err
	})
	if err != nil {
		a.logger.Debugf("No %s metric for bucket %s: %v", metric, bucket, err)
		return 0, false
	}
	var latest *cwtypes.Datapoint
	for i := range out.Datapoints {
		dp := &out.Datapoints[i]
		if latest == nil || (dp.Timestamp != nil && latest.Timestamp != nil && dp.Timestamp.After(*latest.Timestamp)) {
			latest = dp
		}
	}
	if latest == nil || latest.Average == nil {
		return 0, false
	}
	return *latest.Average, true
}

// DiscoverNetwork returns VPCs, subnets, security groups and route tables.
func (a *Adapter) DiscoverNetwork(ctx context.Context) (*cloud.NetworkInfo, error) {
	info := &cloud.NetworkInfo{}

	var vpcs *ec2.DescribeVpcsOutput
	if err := a.call(ctx, "DescribeVpcs", func(ctx context.Context) error {
		var err error
		vpcs, err = a.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{})
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to describe VPCs: %w", err)
	}
	for _, v := range vpcs.Vpcs {
		tags := tagMap(v.Tags)
		info.VPCs = append(info.VPCs, cloud.NetworkResource{ID: str(v.VpcId), Name: tags["Name"], CIDR: str(v.CidrBlock), Tags: tags})
	}

	var subnets *ec2.DescribeSubnetsOutput
	if err := a.call(ctx, "DescribeSubnets", func(ctx context.Context) error {
		var err error
		subnets, err = a.clients.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{})
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to describe subnets: %w", err)
	}
	for _, s := range subnets.Subnets {
		tags := tagMap(s.Tags)
		info.Subnets = append(info.Subnets, cloud.NetworkResource{ID: str(s.SubnetId), Name: tags["Name"], CIDR: str(s.CidrBlock), Parent: str(s.VpcId), Tags: tags})
	}

	var groups *ec2.DescribeSecurityGroupsOutput
	if err := a.call(ctx, "DescribeSecurityGroups", func(ctx context.Context) error {
		var err error
		groups, err = a.clients.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{})
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to describe security groups: %w", err)
	}
	for _, g := range groups.SecurityGroups {
		info.SecurityGroups = append(info.SecurityGroups, cloud.NetworkResource{ID: str(g.GroupId), Name: str(g.GroupName), Parent: str(g.VpcId), Tags: tagMap(g.Tags)})
	}

	var routes *ec2.DescribeRouteTablesOutput
	if err := a.call(ctx, "DescribeRouteTables", func(ctx context.Context) error {
		var err error
		routes, err = a.clients.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{})
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to describe route tables: %w", err)
	}
	for _, rt := range routes.RouteTables {
		tags := tagMap(rt.Tags)
		info.RouteTables = append(info.RouteTables, cloud.NetworkResource{ID: str(rt.RouteTableId), Name: tags["Name"], Parent: str(rt.VpcId), Tags: tags})
	}
	return info, nil
}

func tagMap(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[str(t.Key)] = str(t.Value)
	}
	return out
}

func ec2Tags(tags map[string]string) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, ec2types.Tag{Key: awsv2.String(k), Value: awsv2.String(v)})
	}
	return out
}
