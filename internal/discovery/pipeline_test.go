package discovery

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/cloudtest"
	"github.com/codebypatrickleung/cloudhop/internal/metrics"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/store"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func azureAccount() *cloudtest.Adapter {
	a := cloudtest.New(cloud.ProviderAzure)
	a.Instances = []cloud.ComputeInstance{
		{ID: "vm-web", Name: "web-01", InstanceType: "Standard_B2s", CPUCores: 2, MemoryGB: 4, DiskGB: 30, State: "running",
			Tags: map[string]string{"env": "prod"}, Metadata: map[string]any{"os_type": "Linux"}},
		{ID: "vm-db", Name: "db-01", InstanceType: "Standard_D8s_v3", CPUCores: 8, MemoryGB: 32, DiskGB: 256, State: "running"},
	}
	a.Databases = []cloud.Database{
		{ID: "pg-1", Name: "orders", Engine: "postgres", EngineVersion: "15", StorageGB: 100, Port: 5432},
	}
	a.Buckets = []cloud.StorageBucket{{ID: "logs", Name: "logs", SizeGB: 12.5, ObjectCount: 400}}
	a.Network = &cloud.NetworkInfo{
		VPCs: []cloud.NetworkResource{{ID: "vnet-1", Name: "main", CIDR: "10.0.0.0/16"}, {ID: "vnet-2", Name: "dmz", CIDR: "10.1.0.0/16"}},
		Subnets: []cloud.NetworkResource{
			{ID: "sn-1", Parent: "vnet-1"},
			{ID: "sn-2", Parent: "vnet-1"},
			{ID: "sn-3", Parent: "vnet-2"},
		},
	}
	return a
}

func newTestPipeline(s store.AssetStore, rec *metrics.Recorder) *Pipeline {
	p := NewPipeline(s, nil, rec)
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestRunStoresAssets(t *testing.T) {
	s := store.NewMemory()
	rec := metrics.New()
	res, err := newTestPipeline(s, rec).Run(context.Background(), "proj-1", azureAccount(), Options{IncludeNetwork: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := map[string]int{KindVM: 2, KindDatabase: 1, KindStorage: 1, KindNetwork: 2}
	if !reflect.DeepEqual(res.Counts, want) {
		t.Errorf("Expected counts %v, got %v", want, res.Counts)
	}
	if res.Total() != 6 || len(res.AssetIDs) != 6 {
		t.Errorf("Expected 6 assets, got total %d and %d ids", res.Total(), len(res.AssetIDs))
	}

	assets, err := s.ListAssets(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(assets) != 6 {
		t.Fatalf("Expected 6 stored assets, got %d", len(assets))
	}

	web, err := s.GetAsset(context.Background(), model.AssetID("proj-1", "vm-web"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if web.Type != model.AssetVM || web.CurrentProvider != cloud.ProviderAzure {
		t.Errorf("Unexpected vm asset: %+v", web)
	}
	if web.SpecInt("cpu_cores", 0) != 2 || web.ConfigString("os_type") != "Linux" || web.Tags["env"] != "prod" {
		t.Errorf("Expected specs, metadata and tags to be mapped, got %+v", web)
	}
	if web.RecommendedStrategy != "" {
		t.Errorf("Expected no recommendation without a target, got %q", web.RecommendedStrategy)
	}

	vnet, err := s.GetAsset(context.Background(), model.AssetID("proj-1", "vnet-1"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := vnet.SpecInt("subnet_count", 0); got != 2 {
		t.Errorf("Expected 2 subnets on vnet-1, got %d", got)
	}

	if got := testutil.ToFloat64(rec.DiscoveredAssets.WithLabelValues(cloud.ProviderAzure, KindVM)); got != 2 {
		t.Errorf("Expected 2 vms counted, got %v", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	s := store.NewMemory()
	p := newTestPipeline(s, nil)
	account := azureAccount()

	first, err := p.Run(context.Background(), "proj-1", account, Options{IncludeNetwork: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	before, _ := s.ListAssets(context.Background(), "proj-1")

	second, err := p.Run(context.Background(), "proj-1", account, Options{IncludeNetwork: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	after, _ := s.ListAssets(context.Background(), "proj-1")

	if !reflect.DeepEqual(first.Counts, second.Counts) {
		t.Errorf("Expected identical counts, got %v and %v", first.Counts, second.Counts)
	}
	if len(after) != len(before) {
		t.Fatalf("Expected %d assets after the second run, got %d", len(before), len(after))
	}
	if !reflect.DeepEqual(before, after) {
		t.Error("Expected the second run to leave assets unchanged")
	}
}

func TestRunKeepsFirstDiscoveryTime(t *testing.T) {
	s := store.NewMemory()
	p := newTestPipeline(s, nil)
	account := azureAccount()

	if _, err := p.Run(context.Background(), "proj-1", account, Options{TargetProvider: "aws"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	later := fixedNow.Add(time.Hour)
	p.now = func() time.Time { return later }
	if _, err := p.Run(context.Background(), "proj-1", account, Options{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	web, err := s.GetAsset(context.Background(), model.AssetID("proj-1", "vm-web"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !web.DiscoveredAt.Equal(fixedNow) {
		t.Errorf("Expected discovered_at %v, got %v", fixedNow, web.DiscoveredAt)
	}
	if !web.UpdatedAt.Equal(later) {
		t.Errorf("Expected updated_at %v, got %v", later, web.UpdatedAt)
	}
	if web.RecommendedStrategy != "rehost" {
		t.Errorf("Expected the earlier recommendation to survive, got %q", web.RecommendedStrategy)
	}
}

func TestRunRecommendations(t *testing.T) {
	s := store.NewMemory()
	if _, err := newTestPipeline(s, nil).Run(context.Background(), "proj-1", azureAccount(), Options{TargetProvider: "AWS"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		source     string
		strategy   string
		confidence float64
		instance   any
	}{
		{"vm-web", "rehost", 0.9, "t3.medium"},
		{"vm-db", "rehost", 0.9, "m5.2xlarge"},
		{"pg-1", "replatform", 0.75, nil},
		{"logs", "", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			a, err := s.GetAsset(context.Background(), model.AssetID("proj-1", tt.source))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if a.RecommendedStrategy != tt.strategy {
				t.Errorf("Expected strategy %q, got %q", tt.strategy, a.RecommendedStrategy)
			}
			if a.RecommendationConfidence != tt.confidence {
				t.Errorf("Expected confidence %v, got %v", tt.confidence, a.RecommendationConfidence)
			}
			if got := a.TargetSpecs["instance_type"]; got != tt.instance {
				t.Errorf("Expected instance type %v, got %v", tt.instance, got)
			}
			if tt.strategy != "" && a.TargetProvider != cloud.ProviderAWS {
				t.Errorf("Expected target provider aws, got %q", a.TargetProvider)
			}
		})
	}
}

func TestRunCountsSkippedItems(t *testing.T) {
	account := azureAccount()
	account.Skips = []cloud.ItemError{
		{Kind: "instance", ID: "vm-broken", Err: errors.New("access denied")},
		{Kind: "instance", ID: "vm-gone", Err: errors.New("not found")},
	}
	rec := metrics.New()
	res, err := newTestPipeline(store.NewMemory(), rec).Run(context.Background(), "proj-1", account, Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.PartialFailures != 2 || len(res.Skipped) != 2 {
		t.Errorf("Expected 2 skipped items, got %d (%v)", res.PartialFailures, res.Skipped)
	}
	if res.Counts[KindVM] != 2 {
		t.Errorf("Expected the healthy vms to be kept, got %d", res.Counts[KindVM])
	}
}

func TestRunSkipsUnsupportedKinds(t *testing.T) {
	account := cloudtest.New(cloud.ProviderOCI)
	account.DiscoverErr = cloud.NotSupported(cloud.ProviderOCI, cloud.CapDiscoverDatabase)

	res, err := newTestPipeline(store.NewMemory(), nil).Run(context.Background(), "proj-1", account, Options{IncludeNetwork: true})
	if err != nil {
		t.Fatalf("Expected unsupported kinds to be skipped, got %v", err)
	}
	if res.Total() != 0 {
		t.Errorf("Expected no assets, got %d", res.Total())
	}
}

func TestRunFailureWritesNothing(t *testing.T) {
	s := store.NewMemory()
	account := azureAccount()
	account.DiscoverErr = &cloud.TransientError{Op: "ListVirtualMachines", Err: errors.New("throttled")}

	var progress []int
	_, err := newTestPipeline(s, nil).Run(context.Background(), "proj-1", account, Options{
		Progress: func(done, total int) { progress = append(progress, done) },
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !cloud.IsTransient(err) {
		t.Errorf("Expected the transient cause to be preserved, got %v", err)
	}
	assets, _ := s.ListAssets(context.Background(), "proj-1")
	if len(assets) != 0 {
		t.Errorf("Expected nothing stored, got %d assets", len(assets))
	}
	if len(progress) != 0 {
		t.Errorf("Expected no progress on failure, got %v", progress)
	}
}

func TestRunTraces(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	p := newTestPipeline(store.NewMemory(), nil)
	p.tracer = tp.Tracer("test")
	if _, err := p.Run(context.Background(), "proj-1", azureAccount(), Options{IncludeNetwork: true}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	for _, want := range []string{"discovery.run", "discovery.vm", "discovery.database", "discovery.storage", "discovery.network"} {
		if !names[want] {
			t.Errorf("Expected span %q, got %v", want, names)
		}
	}
}
