package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// MigrateDatabase provisions an RDS instance shaped like the source database.
// The master password is taken from the db_master_password credential.
func (a *Adapter) MigrateDatabase(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
	password, err := a.creds.Require("db_master_password")
	if err != nil {
		return nil, err
	}
	username := a.creds.Get("db_master_username")
	if username == "" {
		username = "admin"
	}
	engine := req.Engine
	if engine == "" {
		engine = "postgres"
	}
	class := req.InstanceClass
	if class == "" {
		class = "db.t3.medium"
	}
	storage := req.StorageGB
	if storage <= 0 {
		storage = 20
	}
	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: awsv2.String(req.Name),
		DBInstanceClass:      awsv2.String(class),
		Engine:               awsv2.String(engine),
		AllocatedStorage:     awsv2.Int32(int32(storage)),
		MasterUsername:       awsv2.String(username),
		MasterUserPassword:   awsv2.String(password),
	}
	if req.EngineVersion != "" {
		input.EngineVersion = awsv2.String(req.EngineVersion)
	}
	// CreateDBInstance has no request token. The identifier is unique, so an
	// AlreadyExists on a retry means an earlier attempt went through.
	attempt := 0
	err = a.call(ctx, "CreateDBInstance", func(ctx context.Context) error {
		attempt++
		_, err := a.clients.RDS.CreateDBInstance(ctx, input)
		if attempt > 1 && isAlreadyExists(err) {
			a.logger.Debugf("RDS instance %s was created by an earlier attempt", req.Name)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database %s: %w", req.Name, err)
	}
	a.logger.Infof("Created RDS instance %s (%s, %s)", req.Name, engine, class)
	return &cloud.Deployment{
		ResourceID:  req.Name,
		ResourceURL: fmt.Sprintf("https://console.aws.amazon.com/rds/home?region=%s#database:id=%s", a.region, req.Name),
	}, nil
}

// Containerize is not offered by AWS; images must be built elsewhere.
func (a *Adapter) Containerize(ctx context.Context, sourceID string, opts map[string]string) (string, error) {
	return "", cloud.NotSupported(cloud.ProviderAWS, cloud.CapContainerize)
}

// DeployContainer runs spec as a single-task Fargate service. The cluster and
// subnets come from the "cluster" and "subnets" options.
func (a *Adapter) DeployContainer(ctx context.Context, spec cloud.ContainerSpec) (*cloud.Deployment, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("container image is required: %w", cloud.ErrConfiguration)
	}
	cluster := spec.Options["cluster"]
	if cluster == "" {
		cluster = "default"
	}
	cpu, memory := spec.CPU, spec.MemoryMB
	if cpu == "" {
		cpu = "256"
	}
	if memory == "" {
		memory = "512"
	}

	container := ecstypes.ContainerDefinition{
		Name:      awsv2.String(spec.Name),
		Image:     awsv2.String(spec.Image),
		Essential: awsv2.Bool(true),
	}
	if spec.Port > 0 {
		container.PortMappings = []ecstypes.PortMapping{{
			ContainerPort: awsv2.Int32(int32(spec.Port)),
			Protocol:      ecstypes.TransportProtocolTcp,
		}}
	}
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		container.Environment = append(container.Environment, ecstypes.KeyValuePair{Name: awsv2.String(k), Value: awsv2.String(spec.Env[k])})
	}

	var td *ecs.RegisterTaskDefinitionOutput
	err := a.call(ctx, "RegisterTaskDefinition", func(ctx context.Context) error {
		var err error
		td, err = a.clients.ECS.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
			Family:                  awsv2.String(spec.Name),
			RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
			NetworkMode:             ecstypes.NetworkModeAwsvpc,
			Cpu:                     awsv2.String(cpu),
			Memory:                  awsv2.String(memory),
			ContainerDefinitions:    []ecstypes.ContainerDefinition{container},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register task definition: %w", err)
	}
	taskDefARN := ""
	if td.TaskDefinition != nil {
		taskDefARN = str(td.TaskDefinition.TaskDefinitionArn)
	}

	input := &ecs.CreateServiceInput{
		ServiceName:    awsv2.String(spec.Name),
		Cluster:        awsv2.String(cluster),
		TaskDefinition: awsv2.String(taskDefARN),
		DesiredCount:   awsv2.Int32(1),
		LaunchType:     ecstypes.LaunchTypeFargate,
		ClientToken:    awsv2.String(cloud.IdempotencyToken(spec.Options, "CreateService")),
	}
	if subnets := splitList(spec.Options["subnets"]); len(subnets) > 0 {
		input.NetworkConfiguration = &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        subnets,
				SecurityGroups: splitList(spec.Options["security_groups"]),
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		}
	}
	err = a.call(ctx, "CreateService", func(ctx context.Context) error {
		_, err := a.clients.ECS.CreateService(ctx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create service %s: %w", spec.Name, err)
	}
	id := cluster + "/" + spec.Name
	a.logger.Infof("Created ECS service %s", id)
	return &cloud.Deployment{
		ResourceID:  id,
		ResourceURL: fmt.Sprintf("https://console.aws.amazon.com/ecs/v2/clusters/%s/services/%s?region=%s", cluster, spec.Name, a.region),
	}, nil
}

// DeployServerless is not implemented for AWS.
func (a *Adapter) DeployServerless(ctx context.Context, spec cloud.FunctionSpec) (*cloud.Deployment, error) {
	return nil, cloud.NotSupported(cloud.ProviderAWS, cloud.CapDeployServerless)
}

// EstimateCost is not implemented for AWS.
func (a *Adapter) EstimateCost(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error) {
	return nil, cloud.NotSupported(cloud.ProviderAWS, cloud.CapEstimateCost)
}

// RunValidation evaluates checks against an instance, database or service.
// The resource family is inferred from the checks requested.
func (a *Adapter) RunValidation(ctx context.Context, resourceID string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	switch cloud.KindForChecks(checks) {
	case cloud.KindDatabase:
		return a.validateDatabase(ctx, resourceID, checks)
	case cloud.KindService:
		return a.validateService(ctx, resourceID, checks)
	default:
		return a.validateInstance(ctx, resourceID, checks)
	}
}

func (a *Adapter) validateInstance(ctx context.Context, id string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	var status *ec2.DescribeInstanceStatusOutput
	err := a.call(ctx, "DescribeInstanceStatus", func(ctx context.Context) error {
		var err error
		status, err = a.clients.EC2.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
			InstanceIds:         []string{id},
			IncludeAllInstances: awsv2.Bool(true),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance status %s: %w", id, err)
	}
	var running, reachable, systemOK bool
	if len(status.InstanceStatuses) > 0 {
		s := status.InstanceStatuses[0]
		running = s.InstanceState != nil && s.InstanceState.Name == "running"
		reachable = s.InstanceStatus != nil && s.InstanceStatus.Status == "ok"
		systemOK = s.SystemStatus != nil && s.SystemStatus.Status == "ok"
	}

	var desc *ec2.DescribeInstancesOutput
	err = a.call(ctx, "DescribeInstances", func(ctx context.Context) error {
		var err error
		desc, err = a.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", id, err)
	}
	var disks, hasIP bool
	for _, r := range desc.Reservations {
		for _, inst := range r.Instances {
			disks = disks || len(inst.BlockDeviceMappings) > 0
			hasIP = hasIP || inst.PrivateIpAddress != nil
		}
	}

	out := make(map[cloud.ValidationCheck]bool, len(checks))
	for _, c := range checks {
		switch c {
		case cloud.CheckInstanceRunning:
			out[c] = running
		case cloud.CheckNetworkAccessible:
			out[c] = running && reachable && hasIP
		case cloud.CheckDiskMounted:
			out[c] = disks
		case cloud.CheckServicesRunning:
			out[c] = running && reachable && systemOK
		default:
			out[c] = false
		}
	}
	return out, nil
}

func (a *Adapter) validateDatabase(ctx context.Context, id string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	db, err := a.describeDatabase(ctx, id)
	if err != nil {
		return nil, err
	}
	available := str(db.DBInstanceStatus) == "available"
	out := make(map[cloud.ValidationCheck]bool, len(checks))
	for _, c := range checks {
		switch c {
		case cloud.CheckDatabaseAvailable:
			out[c] = available
		case cloud.CheckConnection:
			out[c] = db.Endpoint != nil && db.Endpoint.Address != nil
		case cloud.CheckDataIntegrity:
			out[c] = available && awsv2.ToInt32(db.AllocatedStorage) > 0
		default:
			out[c] = false
		}
	}
	return out, nil
}

func (a *Adapter) validateService(ctx context.Context, id string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	cluster, service := splitServiceID(id)
	var out *ecs.DescribeServicesOutput
	err := a.call(ctx, "DescribeServices", func(ctx context.Context) error {
		var err error
		out, err = a.clients.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  awsv2.String(cluster),
			Services: []string{service},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe service %s: %w", id, err)
	}
	var running, healthy bool
	if len(out.Services) > 0 {
		svc := out.Services[0]
		running = svc.RunningCount > 0
		healthy = running
		for _, d := range svc.Deployments {
			if str(d.Status) == "PRIMARY" {
				healthy = running && d.RolloutState == ecstypes.DeploymentRolloutStateCompleted
			}
		}
	}
	result := make(map[cloud.ValidationCheck]bool, len(checks))
	for _, c := range checks {
		switch c {
		case cloud.CheckContainerRunning:
			result[c] = running
		case cloud.CheckHealthCheckPassed:
			result[c] = healthy
		default:
			result[c] = false
		}
	}
	return result, nil
}

// Metrics reads 5-minute averages of EC2 metrics for an instance.
func (a *Adapter) Metrics(ctx context.Context, resourceID string, names []string, since time.Duration) ([]cloud.MetricSample, error) {
	if len(names) == 0 {
		names = []string{"CPUUtilization"}
	}
	end := time.Now().UTC()
	start := end.Add(-since)
	var samples []cloud.MetricSample
	for _, name := range names {
		var out *cloudwatch.GetMetricStatisticsOutput
		err := a.call(ctx, "GetMetricStatistics", func(ctx context.Context) error {
			var err error
			out, err = a.clients.CloudWatch.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
				Namespace:  awsv2.String("AWS/EC2"),
				MetricName: awsv2.String(name),
				Dimensions: []cwtypes.Dimension{{Name: awsv2.String("InstanceId"), Value: awsv2.String(resourceID)}},
				StartTime:  awsv2.Time(start),
				EndTime:    awsv2.Time(end),
				Period:     awsv2.Int32(300),
				Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read metric %s: %w", name, err)
		}
		for _, dp := range out.Datapoints {
			if dp.Average == nil || dp.Timestamp == nil {
				continue
			}
			samples = append(samples, cloud.MetricSample{
				Name:      name,
				Value:     *dp.Average,
				Unit:      string(dp.Unit),
				Timestamp: dp.Timestamp.Unix(),
			})
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })
	return samples, nil
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
