package strategy

import (
	"context"
	"fmt"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/poll"
)

// Rollback point and checkpoint keys.
const (
	keySnapshotID           = "snapshot_id"
	keySnapshotKind         = "snapshot_kind"
	keySourceID             = "source_id"
	keySourceKind           = "source_kind"
	keyTargetNetwork        = "target_network"
	keyReplicationID        = "replication_id"
	keyTargetResourceID     = "target_resource_id"
	keyTargetResourceKind   = "target_resource_kind"
	keyTargetResourceURL    = "target_resource_url"
	keyContainerImage       = "container_image"
	keySourceDecommissioned = "source_decommissioned"
)

// Tag keys applied to migrated resources.
const (
	TagMigrationID       = "MigrationID"
	TagSourceAsset       = "SourceAsset"
	TagMigrationStrategy = "MigrationStrategy"
)

type base struct {
	name   string
	source cloud.Adapter
	target cloud.Adapter
	logger *logger.Logger
	poll   poll.Config
}

func newBase(name string, source, target cloud.Adapter, opts Options) base {
	opts = opts.withDefaults()
	return base{
		name:   name,
		source: source,
		target: target,
		logger: opts.Logger.Named(name),
		poll:   opts.Poll,
	}
}

func (b *base) Name() string { return b.name }

// param reads a migration parameter, falling back to the asset configuration.
func param(asset *model.Asset, m *model.Migration, key string) string {
	if m != nil {
		if v := m.Parameters[key]; v != "" {
			return v
		}
	}
	return asset.ConfigString(key)
}

func sourceKind(t model.AssetType) cloud.ResourceKind {
	switch t {
	case model.AssetDatabase:
		return cloud.KindDatabase
	case model.AssetStorage:
		return cloud.KindBucket
	case model.AssetContainer, model.AssetApplication:
		return cloud.KindService
	case model.AssetServerless:
		return cloud.KindFunction
	default:
		return cloud.KindInstance
	}
}

// snapshotSource snapshots the source into point. A source that cannot be
// snapshotted is recorded with a warning rather than failing prepare.
func (b *base) snapshotSource(ctx context.Context, asset *model.Asset, point model.RollbackPoint) error {
	kind := sourceKind(asset.Type)
	point[keySourceID] = asset.SourceID
	point[keySourceKind] = string(kind)

	snap, err := b.source.CreateSnapshot(ctx, asset.SourceID, kind)
	if cloud.IsNotSupported(err) {
		b.logger.Warningf("Source %s cannot be snapshotted on %s; rollback will not restore it", asset.SourceID, b.source.Provider())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to snapshot source %s: %w", asset.SourceID, err)
	}
	point[keySnapshotID] = snap.ID
	point[keySnapshotKind] = string(snap.SourceKind)
	b.logger.Successf("Created snapshot %s of %s", snap.ID, asset.SourceID)
	return nil
}

// targetOf returns the created target id and kind, including one recorded
// by a checkpoint before execute finished.
func targetOf(m *model.Migration, def cloud.ResourceKind) (string, cloud.ResourceKind) {
	id := m.TargetResourceID
	if id == "" {
		id = m.Checkpoint[keyTargetResourceID]
	}
	kind := def
	if k := m.Checkpoint[keyTargetResourceKind]; k != "" {
		kind = cloud.ResourceKind(k)
	}
	return id, kind
}

// createOptions returns the migration parameters plus the idempotency seed
// for the target's create calls.
func createOptions(m *model.Migration) map[string]string {
	opts := cloud.CloneTags(m.Parameters)
	if opts[cloud.OptionIdempotencyToken] == "" {
		opts[cloud.OptionIdempotencyToken] = m.ID
	}
	return opts
}

// checkpointTarget records a created target before execute returns, so a
// resumed execute finds it instead of creating another.
func (b *base) checkpointTarget(ctx context.Context, tracker Tracker, id, url string, kind cloud.ResourceKind) {
	if err := tracker.Checkpoint(ctx, keyTargetResourceID, id); err != nil {
		b.logger.Warningf("Failed to checkpoint target %s: %v", id, err)
		return
	}
	if err := tracker.Checkpoint(ctx, keyTargetResourceKind, string(kind)); err != nil {
		b.logger.Warningf("Failed to checkpoint target kind of %s: %v", id, err)
	}
	if url == "" {
		return
	}
	if err := tracker.Checkpoint(ctx, keyTargetResourceURL, url); err != nil {
		b.logger.Warningf("Failed to checkpoint target url of %s: %v", id, err)
	}
}

// existingTarget returns the target an interrupted execute already created.
func (b *base) existingTarget(m *model.Migration, def cloud.ResourceKind) (*Result, bool) {
	id, kind := targetOf(m, def)
	if id == "" {
		return nil, false
	}
	b.logger.Infof("Target %s %s already exists; not creating it again", kind, id)
	return &Result{
		TargetResourceID:  id,
		TargetResourceURL: m.Checkpoint[keyTargetResourceURL],
		Details:           map[string]string{"resumed": "true"},
	}, true
}

// rollback deletes the created target and any image replicated for it and,
// when the source has already been decommissioned, restores it from the
// rollback snapshot.
func (b *base) rollback(ctx context.Context, m *model.Migration, targetKind cloud.ResourceKind) bool {
	ok := true
	if id, kind := targetOf(m, targetKind); id != "" {
		if err := b.target.DeleteResource(ctx, id, kind); err != nil {
			b.logger.Errorf("Failed to delete target %s %s: %v", kind, id, err)
			ok = false
		} else {
			b.logger.Infof("Deleted target %s %s", kind, id)
		}
	}
	if id := m.Checkpoint[keyReplicationID]; id != "" {
		if err := b.target.DeleteResource(ctx, id, cloud.KindImage); err != nil {
			b.logger.Errorf("Failed to delete replicated image %s: %v", id, err)
			ok = false
		} else {
			b.logger.Infof("Deleted replicated image %s", id)
		}
	}

	if m.Checkpoint[keySourceDecommissioned] != "true" {
		return ok
	}
	snapID := m.RollbackPoint[keySnapshotID]
	if snapID == "" {
		b.logger.Errorf("Source %s was decommissioned and no snapshot exists to restore it", m.SourceResourceID)
		return false
	}
	snap := cloud.Snapshot{
		ID:         snapID,
		SourceID:   m.RollbackPoint[keySourceID],
		SourceKind: cloud.ResourceKind(m.RollbackPoint[keySnapshotKind]),
	}
	if err := b.source.RestoreSnapshot(ctx, snap); err != nil {
		b.logger.Errorf("Failed to restore source from snapshot %s: %v", snapID, err)
		return false
	}
	b.logger.Successf("Restored source %s from snapshot %s", snap.SourceID, snapID)
	return ok
}

// cleanup deletes the source and marks it decommissioned on m.
func (b *base) cleanup(ctx context.Context, asset *model.Asset, m *model.Migration) {
	kind := sourceKind(asset.Type)
	if err := b.source.DeleteResource(ctx, asset.SourceID, kind); err != nil {
		b.logger.Warningf("Failed to decommission source %s %s: %v", kind, asset.SourceID, err)
		return
	}
	if m.Checkpoint == nil {
		m.Checkpoint = make(map[string]string)
	}
	m.Checkpoint[keySourceDecommissioned] = "true"
	b.logger.Successf("Decommissioned source %s %s", kind, asset.SourceID)
}

// validate runs checks against the target and aggregates them.
func (b *base) validate(ctx context.Context, m *model.Migration, checks []cloud.ValidationCheck) model.ValidationResult {
	required := make([]string, len(checks))
	for i, c := range checks {
		required[i] = string(c)
	}
	if m.TargetResourceID == "" {
		res := model.AggregateValidation(required, nil)
		res.Errors = append(res.Errors, "no target resource to validate")
		return res
	}

	results, err := b.target.RunValidation(ctx, m.TargetResourceID, checks)
	if err != nil {
		b.logger.Warningf("Validation of %s failed: %v", m.TargetResourceID, err)
		res := model.AggregateValidation(required, nil)
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	got := make(map[string]bool, len(results))
	for c, passed := range results {
		got[string(c)] = passed
	}
	res := model.AggregateValidation(required, got)
	for _, name := range required {
		if !res.Tests[name] {
			res.Errors = append(res.Errors, fmt.Sprintf("%s failed", name))
		}
	}
	return res
}

// price asks the target for a monthly cost. ok is false when pricing is
// unavailable for any reason.
func (b *base) price(ctx context.Context, spec cloud.InstanceSpec) (float64, bool) {
	est, err := b.target.EstimateCost(ctx, spec)
	if err != nil {
		if !cloud.IsNotSupported(err) {
			b.logger.Warningf("Cost estimate failed: %v", err)
		}
		return 0, false
	}
	return est.MonthlyUSD, true
}

func migrationTags(m *model.Migration, asset *model.Asset, strategy string) map[string]string {
	return map[string]string{
		TagMigrationID:       m.ID,
		TagSourceAsset:       asset.SourceID,
		TagMigrationStrategy: strategy,
	}
}
