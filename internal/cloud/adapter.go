package cloud

import (
	"context"
	"time"
)

// Capability names one operation of the Adapter contract.
type Capability string

// Capabilities every adapter is asked about.
const (
	CapDiscoverCompute  Capability = "discover-compute"
	CapDiscoverDatabase Capability = "discover-database"
	CapDiscoverStorage  Capability = "discover-storage"
	CapDiscoverNetwork  Capability = "discover-network"
	CapCreate           Capability = "create"
	CapSnapshot         Capability = "snapshot"
	CapRestore          Capability = "restore"
	CapDelete           Capability = "delete"
	CapTag              Capability = "tag"
	CapStartReplication Capability = "start-replication"
	CapPollReplication  Capability = "poll-replication"
	CapCutover          Capability = "cutover"
	CapMigrateDatabase  Capability = "migrate-database"
	CapContainerize     Capability = "containerize"
	CapDeployContainer  Capability = "deploy-container"
	CapDeployServerless Capability = "deploy-serverless"
	CapEstimateCost     Capability = "estimate-cost"
	CapRunValidation    Capability = "run-validation"
	CapGetMetrics       Capability = "get-metrics"
)

// AllCapabilities lists the full contract in a stable order.
var AllCapabilities = []Capability{
	CapDiscoverCompute, CapDiscoverDatabase, CapDiscoverStorage, CapDiscoverNetwork,
	CapCreate, CapSnapshot, CapRestore, CapDelete, CapTag,
	CapStartReplication, CapPollReplication, CapCutover,
	CapMigrateDatabase, CapContainerize, CapDeployContainer, CapDeployServerless,
	CapEstimateCost, CapRunValidation, CapGetMetrics,
}

// CapabilitySet is the set of operations an adapter implements.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// Has reports whether c is supported.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// Adapter is implemented by every cloud provider backend.
//
// Discovery methods skip items that cannot be read and only fail when the
// provider-level listing fails. Lifecycle methods a backend does not offer
// return a *CapabilityNotSupportedError.
type Adapter interface {
	Provider() string
	Region() string
	Capabilities() CapabilitySet

	DiscoverCompute(ctx context.Context) ([]ComputeInstance, error)
	DiscoverDatabases(ctx context.Context) ([]Database, error)
	DiscoverStorage(ctx context.Context) ([]StorageBucket, error)
	DiscoverNetwork(ctx context.Context) (*NetworkInfo, error)

	CreateInstance(ctx context.Context, spec InstanceSpec) (*CutoverResult, error)
	CreateSnapshot(ctx context.Context, resourceID string, kind ResourceKind) (*Snapshot, error)
	RestoreSnapshot(ctx context.Context, snapshot Snapshot) error
	DeleteResource(ctx context.Context, resourceID string, kind ResourceKind) error
	TagResource(ctx context.Context, resourceID string, kind ResourceKind, tags map[string]string) error

	StartReplication(ctx context.Context, req ReplicationRequest) (string, error)
	ReplicationStatus(ctx context.Context, replicationID string) (*ReplicationStatus, error)
	Cutover(ctx context.Context, replicationID string, spec InstanceSpec) (*CutoverResult, error)

	MigrateDatabase(ctx context.Context, req DatabaseMigrationRequest) (*Deployment, error)
	Containerize(ctx context.Context, sourceID string, opts map[string]string) (string, error)
	DeployContainer(ctx context.Context, spec ContainerSpec) (*Deployment, error)
	DeployServerless(ctx context.Context, spec FunctionSpec) (*Deployment, error)

	EstimateCost(ctx context.Context, spec InstanceSpec) (*CostEstimate, error)
	RunValidation(ctx context.Context, resourceID string, checks []ValidationCheck) (map[ValidationCheck]bool, error)
	Metrics(ctx context.Context, resourceID string, names []string, since time.Duration) ([]MetricSample, error)
}
