// Package cloudtest provides a scriptable in-memory cloud.Adapter for tests.
package cloudtest

import (
	"context"
	"sync"
	"time"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// Adapter is a cloud.Adapter whose behaviour is set per test. Discovery
// returns the canned slices; every lifecycle hook left nil reports the
// capability as not supported. Calls are recorded by operation name.
type Adapter struct {
	ProviderID string
	RegionID   string

	Instances []cloud.ComputeInstance
	Databases []cloud.Database
	Buckets   []cloud.StorageBucket
	Network   *cloud.NetworkInfo
	// DiscoverErr fails every discovery call when set.
	DiscoverErr error
	// Skips are reported through cloud.RecordSkip on each DiscoverCompute call.
	Skips []cloud.ItemError
	// DiscoverComputeFunc replaces the canned instances when set.
	DiscoverComputeFunc func(ctx context.Context) ([]cloud.ComputeInstance, error)

	CreateInstanceFunc    func(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CutoverResult, error)
	CreateSnapshotFunc    func(ctx context.Context, id string, kind cloud.ResourceKind) (*cloud.Snapshot, error)
	RestoreSnapshotFunc   func(ctx context.Context, snap cloud.Snapshot) error
	DeleteResourceFunc    func(ctx context.Context, id string, kind cloud.ResourceKind) error
	TagResourceFunc       func(ctx context.Context, id string, kind cloud.ResourceKind, tags map[string]string) error
	StartReplicationFunc  func(ctx context.Context, req cloud.ReplicationRequest) (string, error)
	ReplicationStatusFunc func(ctx context.Context, id string) (*cloud.ReplicationStatus, error)
	CutoverFunc           func(ctx context.Context, id string, spec cloud.InstanceSpec) (*cloud.CutoverResult, error)
	MigrateDatabaseFunc   func(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error)
	ContainerizeFunc      func(ctx context.Context, sourceID string, opts map[string]string) (string, error)
	DeployContainerFunc   func(ctx context.Context, spec cloud.ContainerSpec) (*cloud.Deployment, error)
	DeployServerlessFunc  func(ctx context.Context, spec cloud.FunctionSpec) (*cloud.Deployment, error)
	EstimateCostFunc      func(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error)
	RunValidationFunc     func(ctx context.Context, id string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error)

	mu    sync.Mutex
	calls []string
}

var _ cloud.Adapter = (*Adapter)(nil)

// New returns an empty fake for provider.
func New(provider string) *Adapter {
	return &Adapter{ProviderID: provider, RegionID: "test-region-1"}
}

func (a *Adapter) record(op string) {
	a.mu.Lock()
	a.calls = append(a.calls, op)
	a.mu.Unlock()
}

// Calls returns the recorded operation names in call order.
func (a *Adapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

// Called reports how many times op was invoked.
func (a *Adapter) Called(op string) int {
	n := 0
	for _, c := range a.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (a *Adapter) Provider() string { return a.ProviderID }
func (a *Adapter) Region() string   { return a.RegionID }

// Capabilities reports discovery plus every hook that is set.
func (a *Adapter) Capabilities() cloud.CapabilitySet {
	set := cloud.NewCapabilitySet(cloud.CapDiscoverCompute, cloud.CapDiscoverDatabase, cloud.CapDiscoverStorage, cloud.CapDiscoverNetwork)
	hooks := map[cloud.Capability]bool{
		cloud.CapCreate:           a.CreateInstanceFunc != nil,
		cloud.CapSnapshot:         a.CreateSnapshotFunc != nil,
		cloud.CapRestore:          a.RestoreSnapshotFunc != nil,
		cloud.CapDelete:           a.DeleteResourceFunc != nil,
		cloud.CapTag:              a.TagResourceFunc != nil,
		cloud.CapStartReplication: a.StartReplicationFunc != nil,
		cloud.CapPollReplication:  a.ReplicationStatusFunc != nil,
		cloud.CapCutover:          a.CutoverFunc != nil,
		cloud.CapMigrateDatabase:  a.MigrateDatabaseFunc != nil,
		cloud.CapContainerize:     a.ContainerizeFunc != nil,
		cloud.CapDeployContainer:  a.DeployContainerFunc != nil,
		cloud.CapDeployServerless: a.DeployServerlessFunc != nil,
		cloud.CapEstimateCost:     a.EstimateCostFunc != nil,
		cloud.CapRunValidation:    a.RunValidationFunc != nil,
	}
	for c, ok := range hooks {
		if ok {
			set[c] = true
		}
	}
	return set
}

func (a *Adapter) DiscoverCompute(ctx context.Context) ([]cloud.ComputeInstance, error) {
	a.record("DiscoverCompute")
	if a.DiscoverErr != nil {
		return nil, a.DiscoverErr
	}
	if a.DiscoverComputeFunc != nil {
		return a.DiscoverComputeFunc(ctx)
	}
	for _, s := range a.Skips {
		cloud.RecordSkip(ctx, s.Kind, s.ID, s.Err)
	}
	return append([]cloud.ComputeInstance(nil), a.Instances...), nil
}

func (a *Adapter) DiscoverDatabases(ctx context.Context) ([]cloud.Database, error) {
	a.record("DiscoverDatabases")
	if a.DiscoverErr != nil {
		return nil, a.DiscoverErr
	}
	return append([]cloud.Database(nil), a.Databases...), nil
}

func (a *Adapter) DiscoverStorage(ctx context.Context) ([]cloud.StorageBucket, error) {
	a.record("DiscoverStorage")
	if a.DiscoverErr != nil {
		return nil, a.DiscoverErr
	}
	return append([]cloud.StorageBucket(nil), a.Buckets...), nil
}

func (a *Adapter) DiscoverNetwork(ctx context.Context) (*cloud.NetworkInfo, error) {
	a.record("DiscoverNetwork")
	if a.DiscoverErr != nil {
		return nil, a.DiscoverErr
	}
	if a.Network == nil {
		return &cloud.NetworkInfo{}, nil
	}
	n := *a.Network
	return &n, nil
}

func (a *Adapter) unsupported(c cloud.Capability) error {
	return cloud.NotSupported(a.ProviderID, c)
}

func (a *Adapter) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	a.record("CreateInstance")
	if a.CreateInstanceFunc == nil {
		return nil, a.unsupported(cloud.CapCreate)
	}
	return a.CreateInstanceFunc(ctx, spec)
}

func (a *Adapter) CreateSnapshot(ctx context.Context, id string, kind cloud.ResourceKind) (*cloud.Snapshot, error) {
	a.record("CreateSnapshot")
	if a.CreateSnapshotFunc == nil {
		return nil, a.unsupported(cloud.CapSnapshot)
	}
	return a.CreateSnapshotFunc(ctx, id, kind)
}

func (a *Adapter) RestoreSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	a.record("RestoreSnapshot")
	if a.RestoreSnapshotFunc == nil {
		return a.unsupported(cloud.CapRestore)
	}
	return a.RestoreSnapshotFunc(ctx, snap)
}

func (a *Adapter) DeleteResource(ctx context.Context, id string, kind cloud.ResourceKind) error {
	a.record("DeleteResource")
	if a.DeleteResourceFunc == nil {
		return a.unsupported(cloud.CapDelete)
	}
	return a.DeleteResourceFunc(ctx, id, kind)
}

func (a *Adapter) TagResource(ctx context.Context, id string, kind cloud.ResourceKind, tags map[string]string) error {
	a.record("TagResource")
	if a.TagResourceFunc == nil {
		return a.unsupported(cloud.CapTag)
	}
	return a.TagResourceFunc(ctx, id, kind, tags)
}

func (a *Adapter) StartReplication(ctx context.Context, req cloud.ReplicationRequest) (string, error) {
	a.record("StartReplication")
	if a.StartReplicationFunc == nil {
		return "", a.unsupported(cloud.CapStartReplication)
	}
	return a.StartReplicationFunc(ctx, req)
}

func (a *Adapter) ReplicationStatus(ctx context.Context, id string) (*cloud.ReplicationStatus, error) {
	a.record("ReplicationStatus")
	if a.ReplicationStatusFunc == nil {
		return nil, a.unsupported(cloud.CapPollReplication)
	}
	return a.ReplicationStatusFunc(ctx, id)
}

func (a *Adapter) Cutover(ctx context.Context, id string, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	a.record("Cutover")
	if a.CutoverFunc == nil {
		return nil, a.unsupported(cloud.CapCutover)
	}
	return a.CutoverFunc(ctx, id, spec)
}

func (a *Adapter) MigrateDatabase(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
	a.record("MigrateDatabase")
	if a.MigrateDatabaseFunc == nil {
		return nil, a.unsupported(cloud.CapMigrateDatabase)
	}
	return a.MigrateDatabaseFunc(ctx, req)
}

func (a *Adapter) Containerize(ctx context.Context, sourceID string, opts map[string]string) (string, error) {
	a.record("Containerize")
	if a.ContainerizeFunc == nil {
		return "", a.unsupported(cloud.CapContainerize)
	}
	return a.ContainerizeFunc(ctx, sourceID, opts)
}

func (a *Adapter) DeployContainer(ctx context.Context, spec cloud.ContainerSpec) (*cloud.Deployment, error) {
	a.record("DeployContainer")
	if a.DeployContainerFunc == nil {
		return nil, a.unsupported(cloud.CapDeployContainer)
	}
	return a.DeployContainerFunc(ctx, spec)
}

func (a *Adapter) DeployServerless(ctx context.Context, spec cloud.FunctionSpec) (*cloud.Deployment, error) {
	a.record("DeployServerless")
	if a.DeployServerlessFunc == nil {
		return nil, a.unsupported(cloud.CapDeployServerless)
	}
	return a.DeployServerlessFunc(ctx, spec)
}

func (a *Adapter) EstimateCost(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error) {
	a.record("EstimateCost")
	if a.EstimateCostFunc == nil {
		return nil, a.unsupported(cloud.CapEstimateCost)
	}
	return a.EstimateCostFunc(ctx, spec)
}

func (a *Adapter) RunValidation(ctx context.Context, id string, checks []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
	a.record("RunValidation")
	if a.RunValidationFunc == nil {
		return nil, a.unsupported(cloud.CapRunValidation)
	}
	return a.RunValidationFunc(ctx, id, checks)
}

func (a *Adapter) Metrics(ctx context.Context, id string, names []string, since time.Duration) ([]cloud.MetricSample, error) {
	a.record("Metrics")
	return nil, a.unsupported(cloud.CapGetMetrics)
}

// Factory resolves credentials to pre-built fakes keyed by provider id.
type Factory struct {
	Adapters map[string]cloud.Adapter
}

// New returns the fake registered for creds.Provider.
func (f *Factory) New(ctx context.Context, creds cloud.Credentials, opts cloud.Options) (cloud.Adapter, error) {
	a, ok := f.Adapters[cloud.NormalizeProvider(creds.Provider)]
	if !ok {
		return nil, &cloud.UnsupportedProviderError{Provider: creds.Provider}
	}
	return a, nil
}

var _ cloud.Factory = (*Factory)(nil)
