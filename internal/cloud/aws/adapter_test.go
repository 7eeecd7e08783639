package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/juju/clock/testclock"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// Mocks embed the client interface so only the methods a test sets are live.

type mockEC2 struct {
	EC2Client
	describeInstances        func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
	describeVolumes          func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error)
	importImage              func(*ec2.ImportImageInput) (*ec2.ImportImageOutput, error)
	describeImportImageTasks func(*ec2.DescribeImportImageTasksInput) (*ec2.DescribeImportImageTasksOutput, error)
	runInstances             func(*ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error)
	terminateInstances       func(*ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error)
	cancelImportTask         func(*ec2.CancelImportTaskInput) (*ec2.CancelImportTaskOutput, error)
	deregisterImage          func(*ec2.DeregisterImageInput) (*ec2.DeregisterImageOutput, error)
	deleteSnapshot           func(*ec2.DeleteSnapshotInput) (*ec2.DeleteSnapshotOutput, error)
}

func (m *mockEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return m.describeInstances(in)
}

func (m *mockEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	return m.describeVolumes(in)
}

func (m *mockEC2) ImportImage(_ context.Context, in *ec2.ImportImageInput, _ ...func(*ec2.Options)) (*ec2.ImportImageOutput, error) {
	return m.importImage(in)
}

func (m *mockEC2) DescribeImportImageTasks(_ context.Context, in *ec2.DescribeImportImageTasksInput, _ ...func(*ec2.Options)) (*ec2.DescribeImportImageTasksOutput, error) {
	return m.describeImportImageTasks(in)
}

func (m *mockEC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	return m.runInstances(in)
}

func (m *mockEC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	return m.terminateInstances(in)
}

func (m *mockEC2) CancelImportTask(_ context.Context, in *ec2.CancelImportTaskInput, _ ...func(*ec2.Options)) (*ec2.CancelImportTaskOutput, error) {
	return m.cancelImportTask(in)
}

func (m *mockEC2) DeregisterImage(_ context.Context, in *ec2.DeregisterImageInput, _ ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error) {
	return m.deregisterImage(in)
}

func (m *mockEC2) DeleteSnapshot(_ context.Context, in *ec2.DeleteSnapshotInput, _ ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error) {
	return m.deleteSnapshot(in)
}

type mockECS struct {
	ECSClient
	registerTaskDefinition func(*ecs.RegisterTaskDefinitionInput) (*ecs.RegisterTaskDefinitionOutput, error)
	createService          func(*ecs.CreateServiceInput) (*ecs.CreateServiceOutput, error)
}

func (m *mockECS) RegisterTaskDefinition(_ context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	return m.registerTaskDefinition(in)
}

func (m *mockECS) CreateService(_ context.Context, in *ecs.CreateServiceInput, _ ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error) {
	return m.createService(in)
}

type mockRDS struct {
	RDSClient
	describeDBInstances func(*rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error)
	createDBInstance    func(*rds.CreateDBInstanceInput) (*rds.CreateDBInstanceOutput, error)
}

func (m *mockRDS) DescribeDBInstances(_ context.Context, in *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return m.describeDBInstances(in)
}

func (m *mockRDS) CreateDBInstance(_ context.Context, in *rds.CreateDBInstanceInput, _ ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error) {
	return m.createDBInstance(in)
}

type mockS3 struct {
	listBuckets       func() (*s3.ListBucketsOutput, error)
	getBucketLocation func(bucket string) (*s3.GetBucketLocationOutput, error)
	getBucketTagging  func(bucket string) (*s3.GetBucketTaggingOutput, error)
}

func (m *mockS3) ListBuckets(context.Context, *s3.ListBucketsInput, ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return m.listBuckets()
}

func (m *mockS3) GetBucketLocation(_ context.Context, in *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	return m.getBucketLocation(awsv2.ToString(in.Bucket))
}

func (m *mockS3) GetBucketTagging(_ context.Context, in *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	return m.getBucketTagging(awsv2.ToString(in.Bucket))
}

type mockCloudWatch struct {
	getMetricStatistics func(*cloudwatch.GetMetricStatisticsInput) (*cloudwatch.GetMetricStatisticsOutput, error)
}

func (m *mockCloudWatch) GetMetricStatistics(_ context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	return m.getMetricStatistics(in)
}

func newTestAdapter(clients Clients, values map[string]string) *Adapter {
	caller := cloud.NewCaller(cloud.CallerConfig{
		Attempts: 3,
		Delay:    time.Second,
		Clock:    testclock.NewDilatedWallClock(time.Millisecond),
	}, nil)
	creds := cloud.Credentials{Provider: cloud.ProviderAWS, Region: "eu-west-1", Values: values}
	return NewWithClients("eu-west-1", creds, clients, cloud.Options{Caller: caller})
}

func TestDiscoverCompute(t *testing.T) {
	ec2Mock := &mockEC2{
		describeInstances: func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
				Instances: []ec2types.Instance{
					{
						InstanceId:       awsv2.String("i-web"),
						InstanceType:     ec2types.InstanceTypeT3Large,
						State:            &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
						PrivateIpAddress: awsv2.String("10.0.0.5"),
						Tags:             []ec2types.Tag{{Key: awsv2.String("Name"), Value: awsv2.String("web")}},
						BlockDeviceMappings: []ec2types.InstanceBlockDeviceMapping{
							{Ebs: &ec2types.EbsInstanceBlockDevice{VolumeId: awsv2.String("vol-1")}},
							{Ebs: &ec2types.EbsInstanceBlockDevice{VolumeId: awsv2.String("vol-2")}},
						},
					},
					{
						InstanceId: awsv2.String("i-gone"),
						State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameTerminated},
					},
				},
			}}}, nil
		},
		describeVolumes: func(in *ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error) {
			if len(in.VolumeIds) != 2 {
				t.Errorf("Expected 2 volume ids, got %v", in.VolumeIds)
			}
			return &ec2.DescribeVolumesOutput{Volumes: []ec2types.Volume{
				{Size: awsv2.Int32(30)},
				{Size: awsv2.Int32(70)},
			}}, nil
		},
	}
	a := newTestAdapter(Clients{EC2: ec2Mock}, nil)

	got, err := a.DiscoverCompute(context.Background())
	if err != nil {
		t.Fatalf("DiscoverCompute failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected terminated instance to be dropped, got %d instances", len(got))
	}
	inst := got[0]
	if inst.Name != "web" || inst.CPUCores != 2 || inst.MemoryGB != 8 || inst.DiskGB != 100 {
		t.Errorf("Unexpected mapping: %+v", inst)
	}
	if inst.State != "running" || inst.PrivateIP != "10.0.0.5" || inst.Region != "eu-west-1" {
		t.Errorf("Unexpected state or address: %+v", inst)
	}
}

func TestDiscoverStorageSkipsUnreadableBucket(t *testing.T) {
	s3Mock := &mockS3{
		listBuckets: func() (*s3.ListBucketsOutput, error) {
			return &s3.ListBucketsOutput{Buckets: []s3types.Bucket{
				{Name: awsv2.String("logs")},
				{Name: awsv2.String("locked")},
			}}, nil
		},
		getBucketLocation: func(bucket string) (*s3.GetBucketLocationOutput, error) {
			if bucket == "locked" {
				return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
			}
			return &s3.GetBucketLocationOutput{}, nil
		},
		getBucketTagging: func(string) (*s3.GetBucketTaggingOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "NoSuchTagSet"}
		},
	}
	cw := &mockCloudWatch{
		getMetricStatistics: func(in *cloudwatch.GetMetricStatisticsInput) (*cloudwatch.GetMetricStatisticsOutput, error) {
			ts := time.Now().Add(-time.Hour)
			v := 2 * float64(bytesPerGB)
			if awsv2.ToString(in.MetricName) == "NumberOfObjects" {
				v = 42
			}
			return &cloudwatch.GetMetricStatisticsOutput{Datapoints: []cwtypes.Datapoint{{Timestamp: &ts, Average: &v}}}, nil
		},
	}
	a := newTestAdapter(Clients{S3: s3Mock, CloudWatch: cw}, nil)

	rec := cloud.NewSkipRecorder(cloud.ProviderAWS)
	got, err := a.DiscoverStorage(cloud.WithSkipRecorder(context.Background(), rec))
	if err != nil {
		t.Fatalf("DiscoverStorage failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "logs" {
		t.Fatalf("Expected only the readable bucket, got %+v", got)
	}
	if got[0].Region != defaultRegion {
		t.Errorf("Expected empty location to mean %s, got %s", defaultRegion, got[0].Region)
	}
	if got[0].SizeGB != 2 || got[0].ObjectCount != 42 {
		t.Errorf("Unexpected metrics: size=%v objects=%d", got[0].SizeGB, got[0].ObjectCount)
	}
	if rec.Count() != 1 {
		t.Errorf("Expected 1 skipped item, got %d", rec.Count())
	}
}

func TestDiscoverDatabases(t *testing.T) {
	rdsMock := &mockRDS{
		describeDBInstances: func(*rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error) {
			return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{{
				DBInstanceIdentifier: awsv2.String("orders"),
				Engine:               awsv2.String("postgres"),
				DBInstanceClass:      awsv2.String("db.m5.large"),
				AllocatedStorage:     awsv2.Int32(200),
				DBInstanceStatus:     awsv2.String("available"),
				Endpoint:             &rdstypes.Endpoint{Address: awsv2.String("orders.example"), Port: awsv2.Int32(5432)},
			}}}, nil
		},
	}
	a := newTestAdapter(Clients{RDS: rdsMock}, nil)
	got, err := a.DiscoverDatabases(context.Background())
	if err != nil {
		t.Fatalf("DiscoverDatabases failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 database, got %d", len(got))
	}
	if got[0].Engine != "postgres" || got[0].StorageGB != 200 || got[0].Port != 5432 {
		t.Errorf("Unexpected mapping: %+v", got[0])
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "Throttling"}, true},
		{"request limit", &smithy.GenericAPIError{Code: "RequestLimitExceeded"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cloud.IsTransient(classify("Op", tt.err)); got != tt.transient {
				t.Errorf("Expected transient=%v, got %v", tt.transient, got)
			}
		})
	}
	if classify("Op", nil) != nil {
		t.Error("Expected nil to stay nil")
	}
}

func TestStartReplicationRetriesThrottling(t *testing.T) {
	calls := 0
	ec2Mock := &mockEC2{
		importImage: func(in *ec2.ImportImageInput) (*ec2.ImportImageOutput, error) {
			calls++
			if calls == 1 {
				return nil, &smithy.GenericAPIError{Code: "RequestLimitExceeded"}
			}
			dc := in.DiskContainers[0]
			if awsv2.ToString(dc.Format) != "VMDK" || awsv2.ToString(dc.UserBucket.S3Bucket) != "exports" {
				t.Errorf("Unexpected disk container: %+v", dc)
			}
			return &ec2.ImportImageOutput{ImportTaskId: awsv2.String("import-ami-1")}, nil
		},
	}
	a := newTestAdapter(Clients{EC2: ec2Mock}, nil)
	id, err := a.StartReplication(context.Background(), cloud.ReplicationRequest{
		SourceID:       "vm-1",
		SourceProvider: "azure",
		SourceImageURI: "s3://exports/vm-1/disk.vmdk",
	})
	if err != nil {
		t.Fatalf("StartReplication failed: %v", err)
	}
	if id != "import-ami-1" || calls != 2 {
		t.Errorf("Expected import-ami-1 after 2 calls, got %q after %d", id, calls)
	}
}

func TestStartReplicationRejectsBadURI(t *testing.T) {
	a := newTestAdapter(Clients{EC2: &mockEC2{}}, nil)
	_, err := a.StartReplication(context.Background(), cloud.ReplicationRequest{SourceImageURI: "https://example.com/disk.vhd"})
	if !cloud.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestImportTaskStatus(t *testing.T) {
	tests := []struct {
		status   string
		progress string
		want     cloud.ReplicationState
		pct      int
	}{
		{"active", "40", cloud.ReplicationInProgress, 40},
		{"completed", "", cloud.ReplicationCompleted, 100},
		{"deleted", "", cloud.ReplicationFailed, 0},
		{"", "", cloud.ReplicationPending, 0},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			st := importTaskStatus(ec2types.ImportImageTask{Status: awsv2.String(tt.status), Progress: awsv2.String(tt.progress)})
			if st.State != tt.want || st.Progress != tt.pct {
				t.Errorf("Expected %s/%d, got %s/%d", tt.want, tt.pct, st.State, st.Progress)
			}
		})
	}
}

func TestCutoverLaunchesImportedImage(t *testing.T) {
	ec2Mock := &mockEC2{
		describeImportImageTasks: func(*ec2.DescribeImportImageTasksInput) (*ec2.DescribeImportImageTasksOutput, error) {
			return &ec2.DescribeImportImageTasksOutput{ImportImageTasks: []ec2types.ImportImageTask{{
				ImportTaskId: awsv2.String("import-ami-1"),
				Status:       awsv2.String("completed"),
				ImageId:      awsv2.String("ami-123"),
			}}}, nil
		},
		runInstances: func(in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			if awsv2.ToString(in.ImageId) != "ami-123" {
				t.Errorf("Expected ami-123, got %s", awsv2.ToString(in.ImageId))
			}
			return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: awsv2.String("i-new")}}}, nil
		},
	}
	a := newTestAdapter(Clients{EC2: ec2Mock}, nil)
	res, err := a.Cutover(context.Background(), "import-ami-1", cloud.InstanceSpec{Name: "web", InstanceType: "t3.medium"})
	if err != nil {
		t.Fatalf("Cutover failed: %v", err)
	}
	if res.ResourceID != "i-new" {
		t.Errorf("Expected i-new, got %s", res.ResourceID)
	}
}

func TestMigrateDatabaseRequiresPassword(t *testing.T) {
	a := newTestAdapter(Clients{RDS: &mockRDS{}}, nil)
	_, err := a.MigrateDatabase(context.Background(), cloud.DatabaseMigrationRequest{Name: "orders"})
	var missing *cloud.MissingCredentialError
	if !errors.As(err, &missing) || missing.Key != "db_master_password" {
		t.Errorf("Expected missing db_master_password, got %v", err)
	}
}

func TestRunValidationDatabase(t *testing.T) {
	rdsMock := &mockRDS{
		describeDBInstances: func(*rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error) {
			return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{{
				DBInstanceIdentifier: awsv2.String("orders"),
				DBInstanceStatus:     awsv2.String("available"),
				AllocatedStorage:     awsv2.Int32(20),
			}}}, nil
		},
	}
	a := newTestAdapter(Clients{RDS: rdsMock}, nil)
	got, err := a.RunValidation(context.Background(), "orders", []cloud.ValidationCheck{
		cloud.CheckDatabaseAvailable, cloud.CheckConnection, cloud.CheckDataIntegrity,
	})
	if err != nil {
		t.Fatalf("RunValidation failed: %v", err)
	}
	if !got[cloud.CheckDatabaseAvailable] || !got[cloud.CheckDataIntegrity] {
		t.Errorf("Expected available database to pass, got %v", got)
	}
	if got[cloud.CheckConnection] {
		t.Error("Expected connection check to fail without an endpoint")
	}
}

func TestUnsupportedOperations(t *testing.T) {
	a := newTestAdapter(Clients{}, nil)
	if _, err := a.DeployServerless(context.Background(), cloud.FunctionSpec{}); !cloud.IsNotSupported(err) {
		t.Errorf("Expected DeployServerless to be unsupported, got %v", err)
	}
	if _, err := a.Containerize(context.Background(), "i-1", nil); !cloud.IsNotSupported(err) {
		t.Errorf("Expected Containerize to be unsupported, got %v", err)
	}
	if err := a.RestoreSnapshot(context.Background(), cloud.Snapshot{ID: "snap-1", SourceKind: cloud.KindInstance}); !cloud.IsNotSupported(err) {
		t.Errorf("Expected instance restore to be unsupported, got %v", err)
	}
	if a.Capabilities().Has(cloud.CapDeployServerless) {
		t.Error("Expected serverless capability to be absent")
	}
}

func TestCreateInstanceRetrySendsSameClientToken(t *testing.T) {
	var tokens []string
	ec2Mock := &mockEC2{
		runInstances: func(in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			tokens = append(tokens, awsv2.ToString(in.ClientToken))
			if len(tokens) == 1 {
				return nil, &smithy.GenericAPIError{Code: "InternalError"}
			}
			return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: awsv2.String("i-new")}}}, nil
		},
	}
	a := newTestAdapter(Clients{EC2: ec2Mock}, nil)
	opts := map[string]string{cloud.OptionIdempotencyToken: "mig-1"}
	res, err := a.CreateInstance(context.Background(), cloud.InstanceSpec{
		Name:         "web",
		InstanceType: "t3.medium",
		ImageID:      "ami-123",
		Options:      opts,
	})
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if res.ResourceID != "i-new" {
		t.Errorf("Expected i-new, got %s", res.ResourceID)
	}
	if len(tokens) != 2 {
		t.Fatalf("Expected 2 RunInstances calls, got %d", len(tokens))
	}
	want := cloud.IdempotencyToken(opts, "RunInstances")
	for i, tok := range tokens {
		if tok != want {
			t.Errorf("Expected attempt %d to send token %s, got %q", i+1, want, tok)
		}
	}
}

func TestCreateInstanceWithoutSeedKeepsTokenAcrossRetries(t *testing.T) {
	var tokens []string
	ec2Mock := &mockEC2{
		runInstances: func(in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			tokens = append(tokens, awsv2.ToString(in.ClientToken))
			if len(tokens) == 1 {
				return nil, &smithy.GenericAPIError{Code: "ServiceUnavailable"}
			}
			return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: awsv2.String("i-new")}}}, nil
		},
	}
	a := newTestAdapter(Clients{EC2: ec2Mock}, nil)
	if _, err := a.CreateInstance(context.Background(), cloud.InstanceSpec{InstanceType: "t3.medium", ImageID: "ami-123"}); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if len(tokens) != 2 || tokens[0] == "" || tokens[0] != tokens[1] {
		t.Errorf("Expected one non-empty token on both attempts, got %v", tokens)
	}
}

func TestDeployContainerRetrySendsSameClientToken(t *testing.T) {
	var tokens []string
	ecsMock := &mockECS{
		registerTaskDefinition: func(*ecs.RegisterTaskDefinitionInput) (*ecs.RegisterTaskDefinitionOutput, error) {
			return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: &ecstypes.TaskDefinition{
				TaskDefinitionArn: awsv2.String("arn:aws:ecs:eu-west-1:1:task-definition/shop:1"),
			}}, nil
		},
		createService: func(in *ecs.CreateServiceInput) (*ecs.CreateServiceOutput, error) {
			tokens = append(tokens, awsv2.ToString(in.ClientToken))
			if len(tokens) == 1 {
				return nil, &smithy.GenericAPIError{Code: "ServiceUnavailable"}
			}
			return &ecs.CreateServiceOutput{}, nil
		},
	}
	a := newTestAdapter(Clients{ECS: ecsMock}, nil)
	dep, err := a.DeployContainer(context.Background(), cloud.ContainerSpec{
		Name:    "shop",
		Image:   "registry.example.com/shop:1",
		Options: map[string]string{cloud.OptionIdempotencyToken: "mig-1", "cluster": "apps"},
	})
	if err != nil {
		t.Fatalf("DeployContainer failed: %v", err)
	}
	if dep.ResourceID != "apps/shop" {
		t.Errorf("Expected apps/shop, got %s", dep.ResourceID)
	}
	if len(tokens) != 2 || tokens[0] == "" || tokens[0] != tokens[1] {
		t.Errorf("Expected one non-empty token on both attempts, got %v", tokens)
	}
	if len(tokens[0]) > 36 {
		t.Errorf("Expected an ECS token of at most 36 characters, got %d", len(tokens[0]))
	}
}

func TestMigrateDatabaseRetryAfterServerSideSuccess(t *testing.T) {
	tests := []struct {
		name        string
		errs        []error
		expectError bool
	}{
		{"retry finds the instance", []error{&smithy.GenericAPIError{Code: "InternalFailure"}, &smithy.GenericAPIError{Code: "DBInstanceAlreadyExists"}}, false},
		{"name taken before the first attempt", []error{&smithy.GenericAPIError{Code: "DBInstanceAlreadyExists"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			rdsMock := &mockRDS{
				createDBInstance: func(*rds.CreateDBInstanceInput) (*rds.CreateDBInstanceOutput, error) {
					calls++
					if calls <= len(tt.errs) {
						return nil, tt.errs[calls-1]
					}
					return &rds.CreateDBInstanceOutput{}, nil
				},
			}
			a := newTestAdapter(Clients{RDS: rdsMock}, map[string]string{"db_master_password": "secret"})
			_, err := a.MigrateDatabase(context.Background(), cloud.DatabaseMigrationRequest{Name: "orders"})
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
			if calls != len(tt.errs) {
				t.Errorf("Expected %d CreateDBInstance calls, got %d", len(tt.errs), calls)
			}
		})
	}
}

func TestDeleteImage(t *testing.T) {
	task := func(status, imageID string) func(*ec2.DescribeImportImageTasksInput) (*ec2.DescribeImportImageTasksOutput, error) {
		return func(*ec2.DescribeImportImageTasksInput) (*ec2.DescribeImportImageTasksOutput, error) {
			return &ec2.DescribeImportImageTasksOutput{ImportImageTasks: []ec2types.ImportImageTask{{
				ImportTaskId:    awsv2.String("import-ami-1"),
				Status:          awsv2.String(status),
				ImageId:         awsv2.String(imageID),
				SnapshotDetails: []ec2types.SnapshotDetail{{SnapshotId: awsv2.String("snap-1")}},
			}}}, nil
		}
	}

	tests := []struct {
		name         string
		id           string
		describe     func(*ec2.DescribeImportImageTasksInput) (*ec2.DescribeImportImageTasksOutput, error)
		deregister   error
		wantCancel   bool
		wantImage    string
		wantSnapshot bool
	}{
		{name: "running import is cancelled", id: "import-ami-1", describe: task("active", ""), wantCancel: true},
		{name: "finished import is deregistered", id: "import-ami-1", describe: task("completed", "ami-123"), wantImage: "ami-123", wantSnapshot: true},
		{name: "failed import leaves nothing", id: "import-ami-1", describe: task("deleted", "")},
		{name: "plain AMI", id: "ami-456", wantImage: "ami-456"},
		{name: "AMI already gone", id: "ami-456", deregister: &smithy.GenericAPIError{Code: "InvalidAMIID.NotFound"}, wantImage: "ami-456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cancelled bool
			var deregistered string
			var snapshots []string
			ec2Mock := &mockEC2{
				describeImportImageTasks: tt.describe,
				cancelImportTask: func(in *ec2.CancelImportTaskInput) (*ec2.CancelImportTaskOutput, error) {
					cancelled = awsv2.ToString(in.ImportTaskId) == tt.id
					return &ec2.CancelImportTaskOutput{}, nil
				},
				deregisterImage: func(in *ec2.DeregisterImageInput) (*ec2.DeregisterImageOutput, error) {
					deregistered = awsv2.ToString(in.ImageId)
					return &ec2.DeregisterImageOutput{}, tt.deregister
				},
				deleteSnapshot: func(in *ec2.DeleteSnapshotInput) (*ec2.DeleteSnapshotOutput, error) {
					snapshots = append(snapshots, awsv2.ToString(in.SnapshotId))
					return &ec2.DeleteSnapshotOutput{}, nil
				},
			}
			a := newTestAdapter(Clients{EC2: ec2Mock}, nil)
			if err := a.DeleteResource(context.Background(), tt.id, cloud.KindImage); err != nil {
				t.Fatalf("DeleteResource failed: %v", err)
			}
			if cancelled != tt.wantCancel {
				t.Errorf("Expected cancelled=%v, got %v", tt.wantCancel, cancelled)
			}
			if deregistered != tt.wantImage {
				t.Errorf("Expected deregistered image %q, got %q", tt.wantImage, deregistered)
			}
			if tt.wantSnapshot && (len(snapshots) != 1 || snapshots[0] != "snap-1") {
				t.Errorf("Expected snap-1 to be deleted, got %v", snapshots)
			}
		})
	}
}

func TestDeleteResourceAlreadyGone(t *testing.T) {
	ec2Mock := &mockEC2{
		terminateInstances: func(*ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound"}
		},
	}
	a := newTestAdapter(Clients{EC2: ec2Mock}, nil)
	if err := a.DeleteResource(context.Background(), "i-gone", cloud.KindInstance); err != nil {
		t.Errorf("Expected a missing instance to count as deleted, got %v", err)
	}
}
