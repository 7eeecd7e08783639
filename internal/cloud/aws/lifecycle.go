package aws

import (
	"context"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// CreateInstance launches one EC2 instance from spec.ImageID.
func (a *Adapter) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	if spec.ImageID == "" {
		return nil, fmt.Errorf("image id is required to create an instance: %w", cloud.ErrConfiguration)
	}
	if spec.InstanceType == "" {
		return nil, fmt.Errorf("instance type is required to create an instance: %w", cloud.ErrConfiguration)
	}
	tags := cloud.CloneTags(spec.Tags)
	if spec.Name != "" {
		tags["Name"] = spec.Name
	}
	input := &ec2.RunInstancesInput{
		ImageId:      awsv2.String(spec.ImageID),
		InstanceType: ec2types.InstanceType(spec.InstanceType),
		MinCount:     awsv2.Int32(1),
		MaxCount:     awsv2.Int32(1),
		ClientToken:  awsv2.String(cloud.IdempotencyToken(spec.Options, "RunInstances")),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         ec2Tags(tags),
		}},
	}
	if spec.SubnetID != "" {
		input.SubnetId = awsv2.String(spec.SubnetID)
	}
	if key := spec.Options["key_name"]; key != "" {
		input.KeyName = awsv2.String(key)
	}
	if spec.DiskGB > 0 {
		device := spec.Options["root_device"]
		if device == "" {
			device = "/dev/xvda"
		}
		input.BlockDeviceMappings = []ec2types.BlockDeviceMapping{{
			DeviceName: awsv2.String(device),
			Ebs: &ec2types.EbsBlockDevice{
				VolumeSize: awsv2.Int32(int32(spec.DiskGB)),
				VolumeType: ec2types.VolumeTypeGp3,
			},
		}}
	}

	var out *ec2.RunInstancesOutput
	err := a.call(ctx, "RunInstances", func(ctx context.Context) error {
		var err error
		out, err = a.clients.EC2.RunInstances(ctx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return nil, fmt.Errorf("run instances returned no instance")
	}
	id := *out.Instances[0].InstanceId
	a.logger.Infof("Launched instance %s (%s)", id, spec.InstanceType)
	return &cloud.CutoverResult{
		ResourceID:  id,
		ResourceURL: consoleURL(a.region, "InstanceDetails:instanceId="+id),
	}, nil
}

// CreateSnapshot snapshots every EBS volume of an instance, or takes a manual
// RDS snapshot. Instance snapshot ids are comma-joined.
func (a *Adapter) CreateSnapshot(ctx context.Context, resourceID string, kind cloud.ResourceKind) (*cloud.Snapshot, error) {
	switch kind {
	case cloud.KindInstance:
		var out *ec2.CreateSnapshotsOutput
		err := a.call(ctx, "CreateSnapshots", func(ctx context.Context) error {
			var err error
			out, err = a.clients.EC2.CreateSnapshots(ctx, &ec2.CreateSnapshotsInput{
				InstanceSpecification: &ec2types.InstanceSpecification{InstanceId: awsv2.String(resourceID)},
				Description:           awsv2.String("cloudhop rollback point for " + resourceID),
				CopyTagsFromSource:    ec2types.CopyTagsFromSourceVolume,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot instance %s: %w", resourceID, err)
		}
		ids := make([]string, 0, len(out.Snapshots))
		for _, s := range out.Snapshots {
			ids = append(ids, str(s.SnapshotId))
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("instance %s has no volumes to snapshot", resourceID)
		}
		return &cloud.Snapshot{ID: strings.Join(ids, ","), SourceID: resourceID, SourceKind: kind}, nil

	case cloud.KindDatabase:
		snapshotID := resourceID + "-cloudhop-snapshot"
		err := a.call(ctx, "CreateDBSnapshot", func(ctx context.Context) error {
			_, err := a.clients.RDS.CreateDBSnapshot(ctx, &rds.CreateDBSnapshotInput{
				DBInstanceIdentifier: awsv2.String(resourceID),
				DBSnapshotIdentifier: awsv2.String(snapshotID),
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot database %s: %w", resourceID, err)
		}
		return &cloud.Snapshot{ID: snapshotID, SourceID: resourceID, SourceKind: kind}, nil
	}
	return nil, &cloud.CapabilityNotSupportedError{
		Provider:   cloud.ProviderAWS,
		Capability: cloud.CapSnapshot,
		Reason:     fmt.Sprintf("resource kind %q", kind),
	}
}

// RestoreSnapshot restores an RDS snapshot into "<source>-restored". Instance
// restores need a volume swap on the running host and are reported as
// unsupported.
func (a *Adapter) RestoreSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	if snap.SourceKind != cloud.KindDatabase {
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderAWS,
			Capability: cloud.CapRestore,
			Reason:     fmt.Sprintf("restoring %s snapshots requires manual volume replacement", snap.SourceKind),
		}
	}
	err := a.call(ctx, "RestoreDBInstanceFromDBSnapshot", func(ctx context.Context) error {
		_, err := a.clients.RDS.RestoreDBInstanceFromDBSnapshot(ctx, &rds.RestoreDBInstanceFromDBSnapshotInput{
			DBInstanceIdentifier: awsv2.String(snap.SourceID + "-restored"),
			DBSnapshotIdentifier: awsv2.String(snap.ID),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to restore database snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// DeleteResource removes an instance, database, snapshot, image or ECS
// service. Service ids have the form "cluster/service". Image ids may be an
// AMI or the import task that produces one. A resource that is already gone
// counts as deleted.
func (a *Adapter) DeleteResource(ctx context.Context, resourceID string, kind cloud.ResourceKind) error {
	var err error
	switch kind {
	case cloud.KindImage:
		err = a.deleteImage(ctx, resourceID)
	case cloud.KindInstance:
		err = a.call(ctx, "TerminateInstances", func(ctx context.Context) error {
			_, err := a.clients.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{resourceID}})
			return err
		})
	case cloud.KindDatabase:
		err = a.call(ctx, "DeleteDBInstance", func(ctx context.Context) error {
			_, err := a.clients.RDS.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
				DBInstanceIdentifier: awsv2.String(resourceID),
				SkipFinalSnapshot:    awsv2.Bool(true),
			})
			return err
		})
	case cloud.KindSnapshot:
		for _, id := range strings.Split(resourceID, ",") {
			err = a.call(ctx, "DeleteSnapshot", func(ctx context.Context) error {
				_, err := a.clients.EC2.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: awsv2.String(id)})
				return err
			})
			if err != nil {
				break
			}
		}
	case cloud.KindService, cloud.KindContainer:
		cluster, service := splitServiceID(resourceID)
		err = a.call(ctx, "DeleteService", func(ctx context.Context) error {
			_, err := a.clients.ECS.DeleteService(ctx, &ecs.DeleteServiceInput{
				Cluster: awsv2.String(cluster),
				Service: awsv2.String(service),
				Force:   awsv2.Bool(true),
			})
			return err
		})
	default:
		return &cloud.CapabilityNotSupportedError{
			Provider:   cloud.ProviderAWS,
			Capability: cloud.CapDelete,
			Reason:     fmt.Sprintf("resource kind %q", kind),
		}
	}
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

// deleteImage cancels an import that is still running, or deregisters the
// AMI of a finished one together with its snapshots.
func (a *Adapter) deleteImage(ctx context.Context, id string) error {
	if strings.HasPrefix(id, "ami-") {
		return a.deregisterImage(ctx, id, nil)
	}
	var out *ec2.DescribeImportImageTasksOutput
	err := a.call(ctx, "DescribeImportImageTasks", func(ctx context.Context) error {
		var err error
		out, err = a.clients.EC2.DescribeImportImageTasks(ctx, &ec2.DescribeImportImageTasksInput{
			ImportTaskIds: []string{id},
		})
		return err
	})
	if err != nil {
		return err
	}
	if len(out.ImportImageTasks) == 0 {
		return nil
	}
	task := out.ImportImageTasks[0]
	st := importTaskStatus(task)
	switch st.State {
	case cloud.ReplicationFailed:
		return nil
	case cloud.ReplicationCompleted:
		if st.ImageID == "" {
			return nil
		}
		var snapshots []string
		for _, d := range task.SnapshotDetails {
			if sid := str(d.SnapshotId); sid != "" {
				snapshots = append(snapshots, sid)
			}
		}
		return a.deregisterImage(ctx, st.ImageID, snapshots)
	}
	return a.call(ctx, "CancelImportTask", func(ctx context.Context) error {
		_, err := a.clients.EC2.CancelImportTask(ctx, &ec2.CancelImportTaskInput{
			ImportTaskId: awsv2.String(id),
			CancelReason: awsv2.String("cloudhop rollback"),
		})
		return err
	})
}

func (a *Adapter) deregisterImage(ctx context.Context, imageID string, snapshots []string) error {
	err := a.call(ctx, "DeregisterImage", func(ctx context.Context) error {
		_, err := a.clients.EC2.DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: awsv2.String(imageID)})
		return err
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	for _, id := range snapshots {
		err := a.call(ctx, "DeleteSnapshot", func(ctx context.Context) error {
			_, err := a.clients.EC2.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: awsv2.String(id)})
			return err
		})
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// TagResource merges tags onto an instance or database.
func (a *Adapter) TagResource(ctx context.Context, resourceID string, kind cloud.ResourceKind, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	switch kind {
	case cloud.KindInstance, cloud.KindSnapshot, cloud.KindImage:
		err := a.call(ctx, "CreateTags", func(ctx context.Context) error {
			_, err := a.clients.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
				Resources: []string{resourceID},
				Tags:      ec2Tags(tags),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to tag %s: %w", resourceID, err)
		}
		return nil
	case cloud.KindDatabase:
		arn, err := a.databaseARN(ctx, resourceID)
		if err != nil {
			return err
		}
		rdsTags := make([]rdstypes.Tag, 0, len(tags))
		for k, v := range tags {
			rdsTags = append(rdsTags, rdstypes.Tag{Key: awsv2.String(k), Value: awsv2.String(v)})
		}
		err = a.call(ctx, "AddTagsToResource", func(ctx context.Context) error {
			_, err := a.clients.RDS.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
				ResourceName: awsv2.String(arn),
				Tags:         rdsTags,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to tag database %s: %w", resourceID, err)
		}
		return nil
	}
	return &cloud.CapabilityNotSupportedError{
		Provider:   cloud.ProviderAWS,
		Capability: cloud.CapTag,
		Reason:     fmt.Sprintf("resource kind %q", kind),
	}
}

func (a *Adapter) describeDatabase(ctx context.Context, id string) (*rdstypes.DBInstance, error) {
	var out *rds.DescribeDBInstancesOutput
	err := a.call(ctx, "DescribeDBInstances", func(ctx context.Context) error {
		var err error
		out, err = a.clients.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: awsv2.String(id)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe database %s: %w", id, err)
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("database %s not found", id)
	}
	return &out.DBInstances[0], nil
}

func (a *Adapter) databaseARN(ctx context.Context, id string) (string, error) {
	db, err := a.describeDatabase(ctx, id)
	if err != nil {
		return "", err
	}
	return str(db.DBInstanceArn), nil
}

func splitServiceID(id string) (cluster, service string) {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "default", id
}
