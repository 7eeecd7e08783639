package aws

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// StartReplication imports an exported machine image from S3 through VM
// Import. SourceImageURI must have the form s3://bucket/key.
func (a *Adapter) StartReplication(ctx context.Context, req cloud.ReplicationRequest) (string, error) {
	bucket, key, err := parseS3URI(req.SourceImageURI)
	if err != nil {
		return "", err
	}
	format := diskFormat(key)
	input := &ec2.ImportImageInput{
		ClientToken: awsv2.String(cloud.IdempotencyToken(req.Options, "ImportImage")),
		Description: awsv2.String(fmt.Sprintf("cloudhop import of %s from %s", req.SourceID, req.SourceProvider)),
		DiskContainers: []ec2types.ImageDiskContainer{{
			Description: awsv2.String(req.Name),
			Format:      awsv2.String(format),
			UserBucket: &ec2types.UserBucket{
				S3Bucket: awsv2.String(bucket),
				S3Key:    awsv2.String(key),
			},
		}},
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeImportImageTask,
			Tags: ec2Tags(map[string]string{
				"SourceAsset":    req.SourceID,
				"SourceProvider": req.SourceProvider,
			}),
		}},
	}
	if role := req.Options["role_name"]; role != "" {
		input.RoleName = awsv2.String(role)
	}

	var out *ec2.ImportImageOutput
	err = a.call(ctx, "ImportImage", func(ctx context.Context) error {
		var err error
		out, err = a.clients.EC2.ImportImage(ctx, input)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to start image import: %w", err)
	}
	id := str(out.ImportTaskId)
	if id == "" {
		return "", fmt.Errorf("image import returned no task id")
	}
	a.logger.Infof("Started image import %s from %s", id, req.SourceImageURI)
	return id, nil
}

// ReplicationStatus polls an image import task.
func (a *Adapter) ReplicationStatus(ctx context.Context, replicationID string) (*cloud.ReplicationStatus, error) {
	var out *ec2.DescribeImportImageTasksOutput
	err := a.call(ctx, "DescribeImportImageTasks", func(ctx context.Context) error {
		var err error
		out, err = a.clients.EC2.DescribeImportImageTasks(ctx, &ec2.DescribeImportImageTasksInput{
			ImportTaskIds: []string{replicationID},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe image import %s: %w", replicationID, err)
	}
	if len(out.ImportImageTasks) == 0 {
		return nil, fmt.Errorf("image import %s not found", replicationID)
	}
	return importTaskStatus(out.ImportImageTasks[0]), nil
}

func importTaskStatus(task ec2types.ImportImageTask) *cloud.ReplicationStatus {
	st := &cloud.ReplicationStatus{
		ID:      str(task.ImportTaskId),
		Message: str(task.StatusMessage),
		ImageID: str(task.ImageId),
	}
	switch strings.ToLower(str(task.Status)) {
	case "completed":
		st.State = cloud.ReplicationCompleted
		st.Progress = 100
	case "deleted", "deleting":
		st.State = cloud.ReplicationFailed
	case "":
		st.State = cloud.ReplicationPending
	default:
		st.State = cloud.ReplicationInProgress
		if p, err := strconv.Atoi(str(task.Progress)); err == nil {
			st.Progress = p
		}
	}
	return st
}

// Cutover launches an instance from the AMI produced by a completed import.
func (a *Adapter) Cutover(ctx context.Context, replicationID string, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	st, err := a.ReplicationStatus(ctx, replicationID)
	if err != nil {
		return nil, err
	}
	if st.State != cloud.ReplicationCompleted {
		return nil, fmt.Errorf("image import %s is %s, not completed", replicationID, st.State)
	}
	if st.ImageID == "" {
		return nil, fmt.Errorf("image import %s completed without an image id", replicationID)
	}
	spec.ImageID = st.ImageID
	return a.CreateInstance(ctx, spec)
}

func parseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("source image uri %q must be an s3:// location: %w", uri, cloud.ErrConfiguration)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("source image uri %q must name a bucket and key: %w", uri, cloud.ErrConfiguration)
	}
	return bucket, key, nil
}

// diskFormat maps an image file extension to a VM Import disk format.
func diskFormat(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".vhd", ".vhdx":
		return "VHD"
	case ".vmdk":
		return "VMDK"
	case ".ova":
		return "OVA"
	default:
		return "RAW"
	}
}
