// Package cloud defines the provider-neutral resource model and the adapter
// contract every cloud backend implements.
package cloud

import (
	"strings"

	"github.com/google/uuid"
)

// Provider identifiers understood by the adapter factory.
const (
	ProviderAWS   = "aws"
	ProviderAzure = "azure"
	ProviderGCP   = "gcp"
	ProviderOCI   = "oci"
)

// NormalizeProvider returns the canonical lowercase form of a provider id.
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Credentials identifies a provider account. Values is an opaque bag whose
// keys are interpreted by the provider adapter.
type Credentials struct {
	Provider string            `json:"provider"`
	Region   string            `json:"region"`
	Values   map[string]string `json:"-"`
}

// Get returns the credential value for key, or "" when absent.
func (c Credentials) Get(key string) string {
	if c.Values == nil {
		return ""
	}
	return c.Values[key]
}

// Require returns the value for key or a MissingCredentialError.
func (c Credentials) Require(key string) (string, error) {
	v := c.Get(key)
	if v == "" {
		return "", &MissingCredentialError{Provider: NormalizeProvider(c.Provider), Key: key}
	}
	return v, nil
}

// ComputeInstance is a discovered virtual machine.
type ComputeInstance struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	InstanceType string            `json:"instance_type"`
	CPUCores     int               `json:"cpu_cores"`
	MemoryGB     float64           `json:"memory_gb"`
	DiskGB       int               `json:"disk_gb"`
	State        string            `json:"state"`
	PrivateIP    string            `json:"private_ip,omitempty"`
	PublicIP     string            `json:"public_ip,omitempty"`
	Region       string            `json:"region,omitempty"`
	Tags         map[string]string `json:"tags"`
	Metadata     map[string]any    `json:"metadata"`
}

// Database is a discovered managed database instance.
type Database struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Engine        string            `json:"engine"`
	EngineVersion string            `json:"engine_version"`
	InstanceClass string            `json:"instance_class"`
	StorageGB     int               `json:"storage_gb"`
	State         string            `json:"state"`
	Endpoint      string            `json:"endpoint,omitempty"`
	Port          int               `json:"port,omitempty"`
	MultiAZ       bool              `json:"multi_az"`
	Tags          map[string]string `json:"tags"`
	Metadata      map[string]any    `json:"metadata"`
}

// StorageBucket is a discovered object storage bucket or container.
type StorageBucket struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Region       string            `json:"region,omitempty"`
	SizeGB       float64           `json:"size_gb"`
	ObjectCount  int64             `json:"object_count"`
	StorageClass string            `json:"storage_class,omitempty"`
	Tags         map[string]string `json:"tags"`
	Metadata     map[string]any    `json:"metadata"`
}

// NetworkResource is one element of a provider's network topology.
type NetworkResource struct {
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	CIDR   string            `json:"cidr,omitempty"`
	Parent string            `json:"parent,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// NetworkInfo is the discovered network topology of an account or region.
type NetworkInfo struct {
	VPCs           []NetworkResource `json:"vpcs"`
	Subnets        []NetworkResource `json:"subnets"`
	SecurityGroups []NetworkResource `json:"security_groups"`
	RouteTables    []NetworkResource `json:"route_tables"`
}

// InstanceSpec describes a compute instance to create on a target provider.
type InstanceSpec struct {
	Name         string
	InstanceType string
	ImageID      string
	CPUCores     int
	MemoryGB     float64
	DiskGB       int
	SubnetID     string
	Tags         map[string]string
	Options      map[string]string
}

// OptionIdempotencyToken is the Options key that seeds request tokens for
// create calls. Callers set it to a value that is stable for one migration.
const OptionIdempotencyToken = "idempotency_token"

// IdempotencyToken returns the request token for op. Tokens derived from the
// same seed and op are equal, so a retried create is deduplicated by the
// provider. Without a seed every call gets a fresh token. Tokens are UUIDs
// and fit every provider's length and format limits.
func IdempotencyToken(opts map[string]string, op string) string {
	seed := opts[OptionIdempotencyToken]
	if seed == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed+"/"+op)).String()
}

// ResourceKind tells lifecycle operations which family an identifier belongs to.
type ResourceKind string

// Resource kinds.
const (
	KindInstance  ResourceKind = "instance"
	KindDatabase  ResourceKind = "database"
	KindBucket    ResourceKind = "bucket"
	KindImage     ResourceKind = "image"
	KindSnapshot  ResourceKind = "snapshot"
	KindService   ResourceKind = "service"
	KindFunction  ResourceKind = "function"
	KindDisk      ResourceKind = "disk"
	KindContainer ResourceKind = "container"
)

// Snapshot is a point-in-time copy usable as a restore source.
type Snapshot struct {
	ID         string       `json:"id"`
	SourceID   string       `json:"source_id"`
	SourceKind ResourceKind `json:"source_kind"`
}

// ReplicationRequest starts a block or image replication onto the target.
// SourceImageURI points at an exported machine image the target can ingest.
type ReplicationRequest struct {
	SourceID       string
	SourceProvider string
	SourceImageURI string
	Name           string
	InstanceType   string
	Options        map[string]string
}

// ReplicationState is the coarse state of a replication job.
type ReplicationState string

// Replication states.
const (
	ReplicationPending    ReplicationState = "pending"
	ReplicationInProgress ReplicationState = "in_progress"
	ReplicationCompleted  ReplicationState = "completed"
	ReplicationFailed     ReplicationState = "failed"
)

// Terminal reports whether no further progress is expected.
func (s ReplicationState) Terminal() bool {
	return s == ReplicationCompleted || s == ReplicationFailed
}

// ReplicationStatus is one poll result.
type ReplicationStatus struct {
	ID       string           `json:"id"`
	State    ReplicationState `json:"state"`
	Progress int              `json:"progress"`
	Message  string           `json:"message,omitempty"`
	ImageID  string           `json:"image_id,omitempty"`
}

// CutoverResult describes the resource that took over from the source.
type CutoverResult struct {
	ResourceID  string `json:"resource_id"`
	ResourceURL string `json:"resource_url,omitempty"`
}

// DatabaseMigrationRequest provisions a managed database from a discovered one.
type DatabaseMigrationRequest struct {
	SourceID      string
	Name          string
	Engine        string
	EngineVersion string
	InstanceClass string
	StorageGB     int
	Options       map[string]string
}

// ContainerSpec describes a container workload to deploy.
type ContainerSpec struct {
	Name     string
	Image    string
	CPU      string
	MemoryMB string
	Port     int
	Env      map[string]string
	Options  map[string]string
}

// FunctionSpec describes a serverless function to deploy.
type FunctionSpec struct {
	Name     string
	Runtime  string
	Artifact string
	Handler  string
	Options  map[string]string
}

// Deployment is the result of a container, database or function deployment.
type Deployment struct {
	ResourceID  string `json:"resource_id"`
	ResourceURL string `json:"resource_url,omitempty"`
}

// CostEstimate is an advisory monthly cost for a resource spec.
type CostEstimate struct {
	MonthlyUSD float64 `json:"monthly_usd"`
	Currency   string  `json:"currency"`
}

// ValidationCheck names one post-migration validation to run on a resource.
type ValidationCheck string

// Validation checks.
const (
	CheckInstanceRunning   ValidationCheck = "instance_running"
	CheckNetworkAccessible ValidationCheck = "network_accessible"
	CheckDiskMounted       ValidationCheck = "disk_mounted"
	CheckServicesRunning   ValidationCheck = "services_running"
	CheckDatabaseAvailable ValidationCheck = "database_available"
	CheckConnection        ValidationCheck = "connection_successful"
	CheckDataIntegrity     ValidationCheck = "data_integrity"
	CheckContainerRunning  ValidationCheck = "container_running"
	CheckHealthCheckPassed ValidationCheck = "health_check_passed"
)

// MetricSample is one datapoint returned by Metrics.
type MetricSample struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// CloneTags returns a non-nil copy of tags.
func CloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// KindForChecks infers the resource family a set of validation checks targets.
func KindForChecks(checks []ValidationCheck) ResourceKind {
	for _, c := range checks {
		switch c {
		case CheckDatabaseAvailable, CheckConnection, CheckDataIntegrity:
			return KindDatabase
		case CheckContainerRunning, CheckHealthCheckPassed:
			return KindService
		}
	}
	return KindInstance
}
