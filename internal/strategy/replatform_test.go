package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/cloudtest"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

func databaseAsset() *model.Asset {
	return &model.Asset{
		ID:              "asset-db",
		Name:            "orders",
		Type:            model.AssetDatabase,
		SourceID:        "orders-db",
		CurrentProvider: cloud.ProviderAWS,
		Specs: map[string]any{
			"engine":         "postgres",
			"engine_version": "15.4",
			"instance_class": "db.t3.medium",
			"storage_gb":     100,
		},
		Configuration: map[string]any{},
	}
}

func TestReplatformRejectsUnsupportedAssetType(t *testing.T) {
	for _, typ := range []model.AssetType{model.AssetStorage, model.AssetNetwork, model.AssetVM} {
		t.Run(string(typ), func(t *testing.T) {
			source, target := cloudtest.New(cloud.ProviderAWS), cloudtest.New(cloud.ProviderAzure)
			exec := NewReplatform(source, target, Options{})
			asset := &model.Asset{Type: typ, SourceID: "res-1"}
			m := newMigration(asset, Replatform)

			_, err := exec.Prepare(context.Background(), asset, m)
			var unsupported *UnsupportedAssetTypeError
			if !errors.As(err, &unsupported) || !errors.Is(err, cloud.ErrConfiguration) {
				t.Fatalf("Expected UnsupportedAssetTypeError, got %v", err)
			}
			if _, err := exec.Execute(context.Background(), asset, m, newTracker(m)); !errors.As(err, &unsupported) {
				t.Errorf("Expected execute to reject %s, got %v", typ, err)
			}
			if len(source.Calls())+len(target.Calls()) != 0 {
				t.Errorf("Expected no adapter calls, got %v %v", source.Calls(), target.Calls())
			}
		})
	}
}

func TestReplatformPrerequisites(t *testing.T) {
	target := cloudtest.New(cloud.ProviderAzure)
	target.MigrateDatabaseFunc = func(ctx context.Context, req cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
		return nil, nil
	}
	exec := NewReplatform(cloudtest.New(cloud.ProviderAWS), target, Options{})

	report, err := exec.ValidatePrerequisites(context.Background(), databaseAsset())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !report.CanMigrate || report.EstimatedDowntimeMinutes != 120 {
		t.Errorf("Expected a migratable database, got %+v", report)
	}
	for _, c := range []string{CheckDatabaseCompatible, CheckSchemaConvertible, CheckVersionSupported} {
		if !report.Checks[c] {
			t.Errorf("Expected %s to pass", c)
		}
	}

	asset := databaseAsset()
	asset.Specs["engine"] = "db2"
	report, _ = exec.ValidatePrerequisites(context.Background(), asset)
	if report.CanMigrate {
		t.Error("Expected an unmanaged engine to be rejected")
	}
}

func TestReplatformEstimate(t *testing.T) {
	target := cloudtest.New(cloud.ProviderAzure)
	exec := NewReplatform(cloudtest.New(cloud.ProviderAWS), target, Options{})

	est, err := exec.EstimateMigration(context.Background(), databaseAsset())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if est.DurationHours != 4 || est.RiskLevel != RiskMedium || est.CostUSD != 0 || est.Confidence > 0.3 {
		t.Errorf("Unexpected unpriced estimate: %+v", est)
	}

	target.EstimateCostFunc = func(ctx context.Context, spec cloud.InstanceSpec) (*cloud.CostEstimate, error) {
		return &cloud.CostEstimate{MonthlyUSD: 120}, nil
	}
	est, _ = exec.EstimateMigration(context.Background(), databaseAsset())
	if est.Confidence != 0.75 || est.CostUSD != 120 {
		t.Errorf("Unexpected priced estimate: %+v", est)
	}
}

func TestReplatformDatabase(t *testing.T) {
	source := cloudtest.New(cloud.ProviderAWS)
	source.CreateSnapshotFunc = func(ctx context.Context, id string, kind cloud.ResourceKind) (*cloud.Snapshot, error) {
		return &cloud.Snapshot{ID: "rds:orders-pre", SourceID: id, SourceKind: kind}, nil
	}
	target := cloudtest.New(cloud.ProviderAzure)
	var req cloud.DatabaseMigrationRequest
	target.MigrateDatabaseFunc = func(ctx context.Context, r cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
		req = r
		return &cloud.Deployment{ResourceID: "/servers/orders"}, nil
	}
	var checks []cloud.ValidationCheck
	target.RunValidationFunc = func(ctx context.Context, id string, c []cloud.ValidationCheck) (map[cloud.ValidationCheck]bool, error) {
		checks = c
		out := make(map[cloud.ValidationCheck]bool)
		for _, check := range c {
			out[check] = true
		}
		return out, nil
	}
	exec := NewReplatform(source, target, Options{})
	asset := databaseAsset()
	m := newMigration(asset, Replatform)
	m.Parameters["instance_class"] = "GP_Standard_D2s_v3"

	point, err := exec.Prepare(context.Background(), asset, m)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if point["snapshot_id"] != "rds:orders-pre" || point["source_kind"] != "database" {
		t.Errorf("Unexpected rollback point: %v", point)
	}

	res, err := exec.Execute(context.Background(), asset, m, newTracker(m))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.TargetResourceID != "/servers/orders" {
		t.Errorf("Expected /servers/orders, got %s", res.TargetResourceID)
	}
	if req.Engine != "postgres" || req.EngineVersion != "15.4" || req.InstanceClass != "GP_Standard_D2s_v3" || req.StorageGB != 100 {
		t.Errorf("Unexpected request: %+v", req)
	}
	if m.Checkpoint["target_resource_kind"] != "database" {
		t.Errorf("Expected target kind to be checkpointed, got %v", m.Checkpoint)
	}

	m.TargetResourceID = res.TargetResourceID
	if v := exec.Validate(context.Background(), asset, m); !v.AllTestsPassed || len(checks) != 3 {
		t.Errorf("Expected 3 passing database checks, got %+v", v)
	}
}

func TestReplatformContainer(t *testing.T) {
	source := cloudtest.New(cloud.ProviderAzure)
	source.ContainerizeFunc = func(ctx context.Context, id string, opts map[string]string) (string, error) {
		return "registry.example.com/shop:1", nil
	}
	target := cloudtest.New(cloud.ProviderAWS)
	var spec cloud.ContainerSpec
	target.DeployContainerFunc = func(ctx context.Context, s cloud.ContainerSpec) (*cloud.Deployment, error) {
		spec = s
		return &cloud.Deployment{ResourceID: "arn:aws:ecs:service/shop"}, nil
	}
	asset := &model.Asset{Name: "shop", Type: model.AssetApplication, SourceID: "vm-shop", Configuration: map[string]any{"port": "8080"}}
	m := newMigration(asset, Replatform)

	res, err := NewReplatform(source, target, Options{}).Execute(context.Background(), asset, m, newTracker(m))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.TargetResourceID != "arn:aws:ecs:service/shop" {
		t.Errorf("Unexpected target: %s", res.TargetResourceID)
	}
	if spec.Image != "registry.example.com/shop:1" || spec.Port != 8080 {
		t.Errorf("Unexpected container spec: %+v", spec)
	}
	if m.Checkpoint["container_image"] != "registry.example.com/shop:1" {
		t.Errorf("Expected image to be checkpointed, got %v", m.Checkpoint)
	}
}

func TestReplatformContainerResumesFromImage(t *testing.T) {
	source := cloudtest.New(cloud.ProviderAzure)
	target := cloudtest.New(cloud.ProviderAWS)
	target.DeployContainerFunc = func(ctx context.Context, s cloud.ContainerSpec) (*cloud.Deployment, error) {
		return &cloud.Deployment{ResourceID: "svc-1"}, nil
	}
	asset := &model.Asset{Name: "shop", Type: model.AssetContainer, SourceID: "vm-shop"}
	m := newMigration(asset, Replatform)
	m.Checkpoint = map[string]string{"container_image": "registry.example.com/shop:1"}

	if _, err := NewReplatform(source, target, Options{}).Execute(context.Background(), asset, m, newTracker(m)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if source.Called("Containerize") != 0 {
		t.Error("Expected a checkpointed image to skip containerization")
	}
}

func TestReplatformExecuteReusesCheckpointedTarget(t *testing.T) {
	tests := []struct {
		name   string
		asset  *model.Asset
		kind   string
		create string
	}{
		{"database", databaseAsset(), "database", "MigrateDatabase"},
		{"container", &model.Asset{Name: "shop", Type: model.AssetContainer, SourceID: "vm-shop"}, "service", "DeployContainer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := cloudtest.New(cloud.ProviderAzure)
			target := cloudtest.New(cloud.ProviderAWS)
			m := newMigration(tt.asset, Replatform)
			m.Checkpoint = map[string]string{
				"container_image":      "registry.example.com/shop:1",
				"target_resource_id":   "created-1",
				"target_resource_kind": tt.kind,
			}

			res, err := NewReplatform(source, target, Options{}).Execute(context.Background(), tt.asset, m, newTracker(m))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.TargetResourceID != "created-1" {
				t.Errorf("Expected created-1, got %s", res.TargetResourceID)
			}
			if target.Called(tt.create) != 0 {
				t.Errorf("Expected no %s on resume, got %d", tt.create, target.Called(tt.create))
			}
			if source.Called("Containerize") != 0 {
				t.Error("Expected no containerization on resume")
			}
		})
	}
}

func TestReplatformCreateCallsCarryIdempotencySeed(t *testing.T) {
	target := cloudtest.New(cloud.ProviderAWS)
	var dbOpts, svcOpts map[string]string
	target.MigrateDatabaseFunc = func(ctx context.Context, r cloud.DatabaseMigrationRequest) (*cloud.Deployment, error) {
		dbOpts = r.Options
		return &cloud.Deployment{ResourceID: "db-1"}, nil
	}
	target.DeployContainerFunc = func(ctx context.Context, s cloud.ContainerSpec) (*cloud.Deployment, error) {
		svcOpts = s.Options
		return &cloud.Deployment{ResourceID: "svc-1"}, nil
	}
	exec := NewReplatform(cloudtest.New(cloud.ProviderAzure), target, Options{})

	db := databaseAsset()
	m := newMigration(db, Replatform)
	if _, err := exec.Execute(context.Background(), db, m, newTracker(m)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	app := &model.Asset{Name: "shop", Type: model.AssetContainer, SourceID: "vm-shop"}
	m2 := newMigration(app, Replatform)
	m2.ID = "mig-2"
	m2.Checkpoint = map[string]string{"container_image": "registry.example.com/shop:1"}
	if _, err := exec.Execute(context.Background(), app, m2, newTracker(m2)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if dbOpts[cloud.OptionIdempotencyToken] != "mig-1" {
		t.Errorf("Expected database create seeded with mig-1, got %v", dbOpts)
	}
	if svcOpts[cloud.OptionIdempotencyToken] != "mig-2" {
		t.Errorf("Expected service create seeded with mig-2, got %v", svcOpts)
	}
}

func TestReplatformRollbackDeletesService(t *testing.T) {
	target := cloudtest.New(cloud.ProviderAWS)
	var kind cloud.ResourceKind
	target.DeleteResourceFunc = func(ctx context.Context, id string, k cloud.ResourceKind) error {
		kind = k
		return nil
	}
	asset := &model.Asset{Name: "shop", Type: model.AssetApplication, SourceID: "vm-shop"}
	m := newMigration(asset, Replatform)
	m.TargetResourceID = "svc-1"

	if !NewReplatform(cloudtest.New(cloud.ProviderAzure), target, Options{}).Rollback(context.Background(), asset, m) {
		t.Error("Expected rollback to succeed")
	}
	if kind != cloud.KindService {
		t.Errorf("Expected service delete, got %s", kind)
	}
}

func TestEngineFamily(t *testing.T) {
	tests := map[string]string{
		"aurora-postgresql":  "postgres",
		"POSTGRES_15":        "postgres",
		"mysql":              "mysql",
		"MYSQL_8_0":          "mysql",
		"mariadb":            "mariadb",
		"sqlserver-ee":       "sqlserver",
		"SQLSERVER_2019_STD": "sqlserver",
		"oracle-se2":         "oracle",
		"db2":                "db2",
	}
	for in, want := range tests {
		if got := engineFamily(in); got != want {
			t.Errorf("engineFamily(%q) = %q, want %q", in, got, want)
		}
	}
}
