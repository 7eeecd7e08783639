// Package aws implements the cloud adapter for Amazon Web Services.
package aws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
)

const defaultRegion = "us-east-1"

// EC2Client defines the EC2 operations used by the adapter.
type EC2Client interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	CreateSnapshots(ctx context.Context, params *ec2.CreateSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotsOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	ImportImage(ctx context.Context, params *ec2.ImportImageInput, optFns ...func(*ec2.Options)) (*ec2.ImportImageOutput, error)
	DescribeImportImageTasks(ctx context.Context, params *ec2.DescribeImportImageTasksInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImportImageTasksOutput, error)
	CancelImportTask(ctx context.Context, params *ec2.CancelImportTaskInput, optFns ...func(*ec2.Options)) (*ec2.CancelImportTaskOutput, error)
	DeregisterImage(ctx context.Context, params *ec2.DeregisterImageInput, optFns ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error)
}

// RDSClient defines the RDS operations used by the adapter.
type RDSClient interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	CreateDBInstance(ctx context.Context, params *rds.CreateDBInstanceInput, optFns ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error)
	DeleteDBInstance(ctx context.Context, params *rds.DeleteDBInstanceInput, optFns ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error)
	CreateDBSnapshot(ctx context.Context, params *rds.CreateDBSnapshotInput, optFns ...func(*rds.Options)) (*rds.CreateDBSnapshotOutput, error)
	RestoreDBInstanceFromDBSnapshot(ctx context.Context, params *rds.RestoreDBInstanceFromDBSnapshotInput, optFns ...func(*rds.Options)) (*rds.RestoreDBInstanceFromDBSnapshotOutput, error)
	AddTagsToResource(ctx context.Context, params *rds.AddTagsToResourceInput, optFns ...func(*rds.Options)) (*rds.AddTagsToResourceOutput, error)
}

// S3Client defines the S3 operations used by the adapter.
type S3Client interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

// CloudWatchClient defines the CloudWatch operations used by the adapter.
type CloudWatchClient interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// ECSClient defines the ECS operations used by the adapter.
type ECSClient interface {
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	CreateService(ctx context.Context, params *ecs.CreateServiceInput, optFns ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error)
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DeleteService(ctx context.Context, params *ecs.DeleteServiceInput, optFns ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error)
}

// Clients bundles the service clients an Adapter talks to.
type Clients struct {
	EC2        EC2Client
	RDS        RDSClient
	S3         S3Client
	CloudWatch CloudWatchClient
	ECS        ECSClient
}

// Adapter implements cloud.Adapter on AWS.
type Adapter struct {
	region  string
	creds   cloud.Credentials
	clients Clients
	caller  *cloud.Caller
	logger  *logger.Logger
}

var _ cloud.Adapter = (*Adapter)(nil)

// New builds an Adapter from credentials. Static keys are used when both
// access_key_id and secret_access_key are supplied, otherwise the default
// credential chain applies.
func New(ctx context.Context, creds cloud.Credentials, opts cloud.Options) (cloud.Adapter, error) {
	region := creds.Region
	if region == "" {
		region = defaultRegion
	}
	// cloud.Caller owns retries; the SDK retryer makes a single attempt.
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(1),
	}
	ak, sk := creds.Get("access_key_id"), creds.Get("secret_access_key")
	switch {
	case ak != "" && sk != "":
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, creds.Get("session_token")),
		))
	case ak != "":
		return nil, &cloud.MissingCredentialError{Provider: cloud.ProviderAWS, Key: "secret_access_key"}
	case sk != "":
		return nil, &cloud.MissingCredentialError{Provider: cloud.ProviderAWS, Key: "access_key_id"}
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClients(region, creds, Clients{
		EC2:        ec2.NewFromConfig(cfg),
		RDS:        rds.NewFromConfig(cfg),
		S3:         s3.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
		ECS:        ecs.NewFromConfig(cfg),
	}, opts), nil
}

// NewWithClients builds an Adapter around pre-built service clients.
func NewWithClients(region string, creds cloud.Credentials, clients Clients, opts cloud.Options) *Adapter {
	opts = opts.WithDefaults()
	return &Adapter{
		region:  region,
		creds:   creds,
		clients: clients,
		caller:  opts.Caller,
		logger:  opts.Logger.Named("aws"),
	}
}

// Provider returns "aws".
func (a *Adapter) Provider() string { return cloud.ProviderAWS }

// Region returns the region the adapter is bound to.
func (a *Adapter) Region() string { return a.region }

// Capabilities lists the operations this adapter implements.
func (a *Adapter) Capabilities() cloud.CapabilitySet {
	return cloud.NewCapabilitySet(
		cloud.CapDiscoverCompute, cloud.CapDiscoverDatabase, cloud.CapDiscoverStorage, cloud.CapDiscoverNetwork,
		cloud.CapCreate, cloud.CapSnapshot, cloud.CapRestore, cloud.CapDelete, cloud.CapTag,
		cloud.CapStartReplication, cloud.CapPollReplication, cloud.CapCutover,
		cloud.CapMigrateDatabase, cloud.CapDeployContainer,
		cloud.CapRunValidation, cloud.CapGetMetrics,
	)
}

// call runs one SDK request through the shared retry policy.
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return a.caller.Call(ctx, op, func(ctx context.Context) error {
		return classify(op, fn(ctx))
	})
}

var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestLimitExceeded":                   true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"TooManyRequestsException":               true,
	"SlowDown":                               true,
	"ProvisionedThroughputExceededException": true,
	"RequestTimeout":                         true,
	"RequestTimeoutException":                true,
	"InternalError":                          true,
	"InternalFailure":                        true,
	"ServiceUnavailable":                     true,
}

// classify marks throttling and server-side failures as transient.
func classify(op string, err error) error {
	if err == nil || cloud.IsTransient(err) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && throttleCodes[apiErr.ErrorCode()] {
		return &cloud.TransientError{Provider: cloud.ProviderAWS, Op: op, Err: err}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return &cloud.TransientError{Provider: cloud.ProviderAWS, Op: op, Err: err}
		}
	}
	return err
}

var notFoundCodes = map[string]bool{
	"DBInstanceNotFound":       true,
	"DBInstanceNotFoundFault":  true,
	"ServiceNotFoundException": true,
	"InvalidAMIID.Unavailable": true,
}

// isNotFound reports whether err says the resource does not exist. EC2 codes
// end in ".NotFound", e.g. InvalidInstanceID.NotFound.
func isNotFound(err error) bool {
	code := apiErrorCode(err)
	return strings.HasSuffix(code, ".NotFound") || notFoundCodes[code]
}

func isAlreadyExists(err error) bool {
	switch apiErrorCode(err) {
	case "DBInstanceAlreadyExists", "DBInstanceAlreadyExistsFault":
		return true
	}
	return false
}

// apiErrorCode returns the AWS error code carried by err, if any.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func consoleURL(region, fragment string) string {
	return fmt.Sprintf("https://console.aws.amazon.com/ec2/v2/home?region=%s#%s", region, fragment)
}

func str(s *string) string {
	return awsv2.ToString(s)
}
