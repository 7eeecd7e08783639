package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

const (
	replatformDowntimeMinutes = 120
	replatformDurationHours   = 4
	replatformConfidence      = 0.75
)

// Replatform prerequisite checks.
const (
	CheckDatabaseCompatible = "database_compatible"
	CheckSchemaConvertible  = "schema_convertible"
	CheckVersionSupported   = "version_supported"
	CheckContainerizable    = "containerizable"
	CheckDeploySupported    = "deploy_supported"
)

// managedEngines are the engines a managed database service can host.
var managedEngines = map[string]bool{
	"postgres":  true,
	"mysql":     true,
	"mariadb":   true,
	"sqlserver": true,
	"oracle":    true,
}

var (
	databaseValidation = []cloud.ValidationCheck{
		cloud.CheckDatabaseAvailable,
		cloud.CheckConnection,
		cloud.CheckDataIntegrity,
	}
	containerValidation = []cloud.ValidationCheck{
		cloud.CheckContainerRunning,
		cloud.CheckHealthCheckPassed,
	}
)

// replatformExecutor moves databases onto a managed service and
// applications onto a container platform.
type replatformExecutor struct {
	base
}

// NewReplatform builds the replatform strategy.
func NewReplatform(source, target cloud.Adapter, opts Options) Executor {
	return &replatformExecutor{base: newBase(Replatform, source, target, opts)}
}

func isContainerWorkload(t model.AssetType) bool {
	return t == model.AssetApplication || t == model.AssetContainer
}

func (r *replatformExecutor) supports(t model.AssetType) error {
	if t == model.AssetDatabase || isContainerWorkload(t) {
		return nil
	}
	return &UnsupportedAssetTypeError{Strategy: Replatform, Type: t}
}

// engineFamily reduces engine names such as "aurora-postgresql" or
// "POSTGRES_15" to a managed engine key.
func engineFamily(engine string) string {
	e := strings.ToLower(engine)
	switch {
	case strings.Contains(e, "postgres"):
		return "postgres"
	case strings.Contains(e, "mariadb"):
		return "mariadb"
	case strings.Contains(e, "mysql"):
		return "mysql"
	case strings.Contains(e, "sqlserver"), strings.Contains(e, "sql server"), strings.Contains(e, "mssql"):
		return "sqlserver"
	case strings.Contains(e, "oracle"):
		return "oracle"
	}
	return e
}

func (r *replatformExecutor) ValidatePrerequisites(ctx context.Context, asset *model.Asset) (*PrerequisiteReport, error) {
	report := &PrerequisiteReport{Checks: make(map[string]bool), EstimatedDowntimeMinutes: replatformDowntimeMinutes}
	if err := r.supports(asset.Type); err != nil {
		report.Warnings = append(report.Warnings, err.Error())
		return report, nil
	}

	caps := r.target.Capabilities()
	if asset.Type == model.AssetDatabase {
		engine := asset.SpecString("engine")
		report.Checks[CheckDatabaseCompatible] = managedEngines[engineFamily(engine)] && caps.Has(cloud.CapMigrateDatabase)
		report.Checks[CheckVersionSupported] = asset.SpecString("engine_version") != ""
		report.Checks[CheckSchemaConvertible] = managedEngines[engineFamily(engine)]
		if !caps.Has(cloud.CapMigrateDatabase) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s cannot provision managed databases", r.target.Provider()))
		}
	} else {
		report.Checks[CheckContainerizable] = r.source.Capabilities().Has(cloud.CapContainerize) || asset.ConfigString("container_image") != ""
		report.Checks[CheckDeploySupported] = caps.Has(cloud.CapDeployContainer)
	}

	report.CanMigrate = true
	for _, ok := range report.Checks {
		report.CanMigrate = report.CanMigrate && ok
	}
	return report, nil
}

func (r *replatformExecutor) EstimateMigration(ctx context.Context, asset *model.Asset) (*Estimate, error) {
	if err := r.supports(asset.Type); err != nil {
		return nil, err
	}
	est := &Estimate{
		DurationHours:   replatformDurationHours,
		RiskLevel:       RiskMedium,
		Confidence:      replatformConfidence,
		DowntimeMinutes: replatformDowntimeMinutes,
	}
	cost, priced := r.price(ctx, cloud.InstanceSpec{
		Name:         asset.Name,
		InstanceType: asset.SpecString("instance_class"),
		CPUCores:     asset.SpecInt("cpu_cores", cloud.DefaultCPUCores),
		MemoryGB:     asset.SpecFloat("memory_gb", cloud.DefaultMemoryGB),
		DiskGB:       asset.SpecInt("storage_gb", 0),
	})
	if !priced {
		est.Confidence = unpricedConfidence
	}
	est.CostUSD = cost
	return est, nil
}

func (r *replatformExecutor) Prepare(ctx context.Context, asset *model.Asset, m *model.Migration) (model.RollbackPoint, error) {
	if err := r.supports(asset.Type); err != nil {
		return nil, err
	}
	point := model.RollbackPoint{}
	if err := r.snapshotSource(ctx, asset, point); err != nil {
		return nil, err
	}
	return point, nil
}

func (r *replatformExecutor) Execute(ctx context.Context, asset *model.Asset, m *model.Migration, tracker Tracker) (*Result, error) {
	if err := r.supports(asset.Type); err != nil {
		return nil, err
	}
	if asset.Type == model.AssetDatabase {
		return r.migrateDatabase(ctx, asset, m, tracker)
	}
	return r.containerize(ctx, asset, m, tracker)
}

func (r *replatformExecutor) migrateDatabase(ctx context.Context, asset *model.Asset, m *model.Migration, tracker Tracker) (*Result, error) {
	if res, ok := r.existingTarget(m, cloud.KindDatabase); ok {
		return res, nil
	}
	class := param(asset, m, "instance_class")
	if class == "" {
		class = asset.SpecString("instance_class")
	}
	dep, err := r.target.MigrateDatabase(ctx, cloud.DatabaseMigrationRequest{
		SourceID:      asset.SourceID,
		Name:          asset.Name,
		Engine:        asset.SpecString("engine"),
		EngineVersion: asset.SpecString("engine_version"),
		InstanceClass: class,
		StorageGB:     asset.SpecInt("storage_gb", 0),
		Options:       createOptions(m),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database %s: %w", asset.SourceID, err)
	}
	r.checkpointTarget(ctx, tracker, dep.ResourceID, dep.ResourceURL, cloud.KindDatabase)
	r.logger.Successf("Migrated database %s to %s", asset.SourceID, dep.ResourceID)
	return &Result{
		TargetResourceID:  dep.ResourceID,
		TargetResourceURL: dep.ResourceURL,
		Details:           map[string]string{"engine": asset.SpecString("engine")},
	}, nil
}

// containerize builds an image from the source unless one is configured or
// already checkpointed, then deploys it on the target.
func (r *replatformExecutor) containerize(ctx context.Context, asset *model.Asset, m *model.Migration, tracker Tracker) (*Result, error) {
	if res, ok := r.existingTarget(m, cloud.KindService); ok {
		return res, nil
	}
	image := m.Checkpoint[keyContainerImage]
	if image == "" {
		image = param(asset, m, "container_image")
	}
	if image == "" {
		var err error
		image, err = r.source.Containerize(ctx, asset.SourceID, cloud.CloneTags(m.Parameters))
		if err != nil {
			return nil, fmt.Errorf("failed to containerize %s: %w", asset.SourceID, err)
		}
		if err := tracker.Checkpoint(ctx, keyContainerImage, image); err != nil {
			return nil, fmt.Errorf("failed to checkpoint image %s: %w", image, err)
		}
		r.logger.Infof("Built container image %s from %s", image, asset.SourceID)
	}

	port, _ := strconv.Atoi(param(asset, m, "port"))
	dep, err := r.target.DeployContainer(ctx, cloud.ContainerSpec{
		Name:     asset.Name,
		Image:    image,
		CPU:      param(asset, m, "cpu"),
		MemoryMB: param(asset, m, "memory_mb"),
		Port:     port,
		Options:  createOptions(m),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy container %s: %w", image, err)
	}
	r.checkpointTarget(ctx, tracker, dep.ResourceID, dep.ResourceURL, cloud.KindService)
	r.logger.Successf("Deployed %s as %s", image, dep.ResourceID)
	return &Result{
		TargetResourceID:  dep.ResourceID,
		TargetResourceURL: dep.ResourceURL,
		Details:           map[string]string{keyContainerImage: image},
	}, nil
}

func (r *replatformExecutor) Validate(ctx context.Context, asset *model.Asset, m *model.Migration) model.ValidationResult {
	if asset.Type == model.AssetDatabase {
		return r.validate(ctx, m, databaseValidation)
	}
	return r.validate(ctx, m, containerValidation)
}

func (r *replatformExecutor) Rollback(ctx context.Context, asset *model.Asset, m *model.Migration) bool {
	kind := cloud.KindService
	if asset.Type == model.AssetDatabase {
		kind = cloud.KindDatabase
	}
	return r.rollback(ctx, m, kind)
}

func (r *replatformExecutor) Cleanup(ctx context.Context, asset *model.Asset, m *model.Migration) {
	r.cleanup(ctx, asset, m)
}
