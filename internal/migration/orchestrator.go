// Package migration drives strategy executors through their phases and
// persists every transition.
package migration

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/events"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/codebypatrickleung/cloudhop/internal/metrics"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/store"
	"github.com/codebypatrickleung/cloudhop/internal/strategy"
)

// Request starts one migration.
type Request struct {
	AssetID           string
	Strategy          string
	SourceCredentials cloud.Credentials
	TargetCredentials cloud.Credentials
	WaveID            string
	CleanupSource     bool
	// Parameters are strategy inputs such as source_image_uri or subnet_id.
	Parameters map[string]string
}

// Options carries the orchestrator's collaborators. Every field is optional.
type Options struct {
	Logger    *logger.Logger
	Metrics   *metrics.Recorder
	Publisher events.Publisher
	// Adapter is passed to the cloud factory for every adapter built.
	Adapter cloud.Options
	// Strategy is passed to every executor; its Logger is replaced with a
	// per-migration child.
	Strategy strategy.Options
}

// task is one migration attached to this process.
type task struct {
	exec    strategy.Executor
	cancel  context.CancelFunc
	done    chan struct{}
	aborted atomic.Bool
}

func (t *task) running() bool {
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Orchestrator runs migrations as independent goroutines.
type Orchestrator struct {
	assets     store.AssetStore
	migrations store.MigrationStore
	factory    cloud.Factory
	strategies *strategy.Registry
	opts       Options
	logger     *logger.Logger
	metrics    *metrics.Recorder
	publisher  events.Publisher
	tracer     trace.Tracer
	now        func() time.Time

	mu sync.Mutex
	// tasks holds every migration with bound adapters, running or not.
	tasks map[string]*task
	// busy maps asset ids to the migration currently holding them.
	busy map[string]string
}

// New creates an Orchestrator.
func New(assets store.AssetStore, migrations store.MigrationStore, factory cloud.Factory, strategies *strategy.Registry, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if strategies == nil {
		strategies = strategy.DefaultRegistry()
	}
	return &Orchestrator{
		assets:     assets,
		migrations: migrations,
		factory:    factory,
		strategies: strategies,
		opts:       opts,
		logger:     opts.Logger.Named("migration"),
		metrics:    opts.Metrics,
		publisher:  opts.Publisher,
		tracer:     otel.GetTracerProvider().Tracer("cloudhop/migration"),
		now:        func() time.Time { return time.Now().UTC() },
		tasks:      make(map[string]*task),
		busy:       make(map[string]string),
	}
}

// StartMigration validates the request, records a PENDING migration and runs
// it in the background. The returned id can be polled through the store or
// passed to Wait.
func (o *Orchestrator) StartMigration(ctx context.Context, req Request) (string, error) {
	name := strings.ToLower(strings.TrimSpace(req.Strategy))
	if !o.strategies.Executable(name) {
		_, err := o.strategies.New(name, nil, nil, strategy.Options{})
		return "", err
	}
	asset, err := o.assets.GetAsset(ctx, req.AssetID)
	if err != nil {
		return "", fmt.Errorf("failed to load asset %s: %w", req.AssetID, err)
	}

	id := uuid.NewString()
	if err := o.reserve(ctx, asset.ID, id); err != nil {
		return "", err
	}
	reserved := true
	defer func() {
		if reserved {
			o.release(asset.ID, id)
		}
	}()

	exec, err := o.executor(ctx, name, id, req.SourceCredentials, req.TargetCredentials)
	if err != nil {
		return "", err
	}

	now := o.now()
	m := &model.Migration{
		ID:               id,
		AssetID:          asset.ID,
		ProjectID:        asset.ProjectID,
		WaveID:           req.WaveID,
		Strategy:         name,
		SourceProvider:   cloud.NormalizeProvider(req.SourceCredentials.Provider),
		TargetProvider:   cloud.NormalizeProvider(req.TargetCredentials.Provider),
		Status:           model.StatusPending,
		SourceResourceID: asset.SourceID,
		Parameters:       maps.Clone(req.Parameters),
		CleanupSource:    req.CleanupSource,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.Log(now, "info", fmt.Sprintf("Migration created: %s from %s to %s", name, m.SourceProvider, m.TargetProvider))
	if err := o.migrations.CreateMigration(ctx, m); err != nil {
		return "", fmt.Errorf("failed to create migration: %w", err)
	}

	o.launch(ctx, m, asset, exec)
	reserved = false
	o.logger.Infof("Started %s migration %s for asset %s", name, id, asset.Name)
	return id, nil
}

// ResumeMigration attaches fresh adapters to a migration recorded by an
// earlier process. A pending or in-progress migration continues from its
// last completed phase and execute checkpoint. A failed or completed one is
// only attached, as with Attach.
func (o *Orchestrator) ResumeMigration(ctx context.Context, id string, source, target cloud.Credentials) error {
	o.mu.Lock()
	t, ok := o.tasks[id]
	o.mu.Unlock()
	if ok && t.running() {
		return fmt.Errorf("migration %s is already running: %w", id, ErrActiveMigration)
	}

	m, err := o.migrations.GetMigration(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load migration %s: %w", id, err)
	}
	if m.Status.Terminal() {
		return o.Attach(ctx, id, source, target)
	}
	exec, err := o.executor(ctx, m.Strategy, id, source, target)
	if err != nil {
		return err
	}

	asset, err := o.assets.GetAsset(ctx, m.AssetID)
	if err != nil {
		return fmt.Errorf("failed to load asset %s: %w", m.AssetID, err)
	}
	if err := o.reserve(ctx, m.AssetID, id); err != nil {
		return err
	}
	m.Log(o.now(), "info", "Migration resumed")
	o.launch(ctx, m, asset, exec)
	o.logger.Infof("Resumed migration %s at phase %q", id, m.CurrentPhase)
	return nil
}

// Attach binds fresh adapters to a migration without running it, so that a
// record left by another process can be rolled back.
func (o *Orchestrator) Attach(ctx context.Context, id string, source, target cloud.Credentials) error {
	m, err := o.migrations.GetMigration(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load migration %s: %w", id, err)
	}
	if m.Status == model.StatusRolledBack {
		return fmt.Errorf("migration %s was already rolled back", id)
	}
	exec, err := o.executor(ctx, m.Strategy, id, source, target)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.tasks[id]; ok && t.running() {
		return fmt.Errorf("migration %s is already running: %w", id, ErrActiveMigration)
	}
	o.tasks[id] = &task{exec: exec}
	o.logger.Infof("Attached %s migration %s", m.Status, id)
	return nil
}

// RollbackMigration undoes a migration that has a rollback point and is in
// progress, failed or completed. A running migration is cancelled first.
func (o *Orchestrator) RollbackMigration(ctx context.Context, id string) error {
	m, err := o.migrations.GetMigration(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load migration %s: %w", id, err)
	}
	if err := rollbackAllowed(m); err != nil {
		return err
	}

	o.mu.Lock()
	t, ok := o.tasks[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("migration %s: %w", id, ErrNotAttached)
	}
	if t.running() {
		t.aborted.Store(true)
		t.cancel()
		<-t.done
		if m, err = o.migrations.GetMigration(ctx, id); err != nil {
			return fmt.Errorf("failed to reload migration %s: %w", id, err)
		}
		if err := rollbackAllowed(m); err != nil {
			return err
		}
	}

	if err := o.reserve(ctx, m.AssetID, id); err != nil {
		return err
	}
	defer o.release(m.AssetID, id)

	asset, err := o.assets.GetAsset(ctx, m.AssetID)
	if err != nil {
		return fmt.Errorf("failed to load asset %s: %w", m.AssetID, err)
	}

	m.CurrentPhase = model.PhaseRollback
	m.Log(o.now(), "info", "Rollback requested")
	start := o.now()
	pctx, span := o.tracer.Start(ctx, "migration.rollback", trace.WithAttributes(
		attribute.String("cloudhop.migration_id", id),
		attribute.String("cloudhop.strategy", m.Strategy),
	))
	ok = t.exec.Rollback(pctx, asset, m)
	span.End()
	o.metrics.PhaseObserved(m.Strategy, string(model.PhaseRollback), o.now().Sub(start))

	if !ok {
		m.ManualInterventionRequired = true
		m.Log(o.now(), "error", "Rollback did not complete; manual intervention required")
		if err := o.save(ctx, m); err != nil {
			return err
		}
		return fmt.Errorf("rollback of migration %s did not complete", id)
	}

	if err := m.SetStatus(model.StatusRolledBack); err != nil {
		return err
	}
	now := o.now()
	m.RolledBackAt = &now
	m.RollbackAvailable = false
	m.Log(now, "info", "Migration rolled back")
	if err := o.save(ctx, m); err != nil {
		return err
	}
	o.metrics.MigrationRolledBack(m.Strategy)
	o.publish(ctx, m, events.MigrationRolledBack, "")
	o.logger.Successf("Rolled back migration %s", id)
	return nil
}

func rollbackAllowed(m *model.Migration) error {
	switch m.Status {
	case model.StatusInProgress, model.StatusFailed, model.StatusCompleted:
	default:
		return fmt.Errorf("migration %s is %s: %w", m.ID, m.Status, ErrRollbackUnavailable)
	}
	if !m.RollbackAvailable {
		return fmt.Errorf("migration %s has no rollback point: %w", m.ID, ErrRollbackUnavailable)
	}
	return nil
}

// Wait blocks until the migration's goroutine exits or ctx is done and
// returns the persisted record. A migration not running here returns at once.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*model.Migration, error) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	o.mu.Unlock()
	if ok && t.done != nil {
		select {
		case <-t.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.migrations.GetMigration(ctx, id)
}

// Shutdown cancels every running migration and waits for them to persist
// their state. They stay in progress and can be resumed later.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	var running []*task
	for _, t := range o.tasks {
		if t.running() {
			t.aborted.Store(true)
			t.cancel()
			running = append(running, t)
		}
	}
	o.mu.Unlock()

	for _, t := range running {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (o *Orchestrator) executor(ctx context.Context, name, id string, source, target cloud.Credentials) (strategy.Executor, error) {
	src, err := o.factory.New(ctx, source, o.opts.Adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create source adapter: %w", err)
	}
	dst, err := o.factory.New(ctx, target, o.opts.Adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create target adapter: %w", err)
	}
	opts := o.opts.Strategy
	opts.Logger = o.opts.Logger.Named(name).With("migration_id", id)
	return o.strategies.New(name, src, dst, opts)
}

// reserve claims assetID for migrationID, checking both this process and the
// store for another active migration. A claim is exclusive: while a run or
// rollback of migrationID holds it, a second run or rollback of the same
// migration is refused too.
func (o *Orchestrator) reserve(ctx context.Context, assetID, migrationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if holder, ok := o.busy[assetID]; ok {
		if holder == migrationID {
			return fmt.Errorf("migration %s has an operation in progress: %w", migrationID, ErrActiveMigration)
		}
		return fmt.Errorf("asset %s is held by migration %s: %w", assetID, holder, ErrActiveMigration)
	}
	active, err := o.migrations.ActiveMigrationForAsset(ctx, assetID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to check active migrations for %s: %w", assetID, err)
	case active.ID != migrationID:
		return fmt.Errorf("asset %s has migration %s %s: %w", assetID, active.ID, active.Status, ErrActiveMigration)
	}
	o.busy[assetID] = migrationID
	return nil
}

func (o *Orchestrator) release(assetID, migrationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy[assetID] == migrationID {
		delete(o.busy, assetID)
	}
}

// launch runs m on its own goroutine. The caller must hold the asset
// reservation; the goroutine releases it.
func (o *Orchestrator) launch(ctx context.Context, m *model.Migration, asset *model.Asset, exec strategy.Executor) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{exec: exec, cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.tasks[m.ID] = t
	o.mu.Unlock()

	o.metrics.MigrationStarted()
	go func() {
		defer close(t.done)
		defer cancel()
		defer o.release(asset.ID, m.ID)
		o.run(runCtx, t, m, asset)
	}()
}

func (o *Orchestrator) run(ctx context.Context, t *task, m *model.Migration, asset *model.Asset) {
	log := o.logger.With("migration_id", m.ID)
	ctx, span := o.tracer.Start(ctx, "migration.run", trace.WithAttributes(
		attribute.String("cloudhop.migration_id", m.ID),
		attribute.String("cloudhop.asset_id", m.AssetID),
		attribute.String("cloudhop.strategy", m.Strategy),
	))
	defer span.End()

	outcome := "aborted"
	defer func() { o.metrics.MigrationFinished(m.Strategy, outcome) }()

	if m.Status == model.StatusPending {
		if err := m.SetStatus(model.StatusInProgress); err != nil {
			log.Errorf("Cannot start migration: %v", err)
			return
		}
		now := o.now()
		m.StartedAt = &now
		m.Log(now, "info", "Migration started")
		if err := o.save(ctx, m); err != nil {
			log.Errorf("%v", err)
			return
		}
		o.publish(ctx, m, events.MigrationStarted, "")
	}

	err := o.phases(ctx, t, m, asset)
	switch {
	case err == nil:
	case t.aborted.Load() && ctx.Err() != nil:
		m.Log(o.now(), "warning", "Migration interrupted")
		if err := o.save(ctx, m); err != nil {
			log.Errorf("%v", err)
		}
		log.Warningf("Migration %s interrupted during %s", m.ID, m.CurrentPhase)
		return
	default:
		o.fail(ctx, m, err)
		outcome = string(m.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("Migration %s failed: %v", m.ID, err)
		return
	}

	if err := m.SetStatus(model.StatusCompleted); err != nil {
		log.Errorf("Cannot complete migration: %v", err)
		return
	}
	o.finish(m)
	m.ProgressPercentage = 100
	m.Log(o.now(), "info", "Migration completed")
	if err := o.save(ctx, m); err != nil {
		log.Errorf("%v", err)
	}
	outcome = string(m.Status)
	o.publish(ctx, m, events.MigrationCompleted, "")
	log.Successf("Migration %s completed: %s", m.ID, m.TargetResourceID)

	if m.CleanupSource {
		o.phase(ctx, m, model.PhaseCleanup, func(ctx context.Context) error {
			t.exec.Cleanup(ctx, asset, m)
			return nil
		})
		if err := o.save(ctx, m); err != nil {
			log.Errorf("%v", err)
		}
	}
}

// phases runs prepare, execute and validate, skipping any phase a resumed
// record already got past.
func (o *Orchestrator) phases(ctx context.Context, t *task, m *model.Migration, asset *model.Asset) error {
	if !m.RollbackAvailable {
		err := o.phase(ctx, m, model.PhasePrepare, func(ctx context.Context) error {
			point, err := t.exec.Prepare(ctx, asset, m)
			if err != nil {
				return err
			}
			m.RollbackPoint = point
			m.RollbackAvailable = true
			m.ProgressPercentage = progressPrepared
			return nil
		})
		if err != nil {
			return err
		}
	}

	if m.TargetResourceID == "" {
		err := o.phase(ctx, m, model.PhaseExecute, func(ctx context.Context) error {
			res, err := t.exec.Execute(ctx, asset, m, &tracker{o: o, m: m})
			if err != nil {
				return err
			}
			m.TargetResourceID = res.TargetResourceID
			m.TargetResourceURL = res.TargetResourceURL
			m.ProgressPercentage = progressExecuted
			for k, v := range res.Details {
				m.Log(o.now(), "info", fmt.Sprintf("%s: %s", k, v))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return o.phase(ctx, m, model.PhaseValidate, func(ctx context.Context) error {
		res := t.exec.Validate(ctx, asset, m)
		m.ValidationResults = &res
		m.ValidationPassed = res.AllTestsPassed
		m.ProgressPercentage = progressValidated
		if !res.AllTestsPassed {
			return fmt.Errorf("%w: %s", errValidation, strings.Join(failedTests(res), ", "))
		}
		return nil
	})
}

// phase runs fn as one traced, timed, persisted phase.
func (o *Orchestrator) phase(ctx context.Context, m *model.Migration, p model.Phase, fn func(ctx context.Context) error) error {
	m.CurrentPhase = p
	m.Log(o.now(), "info", fmt.Sprintf("Phase %s started", p))
	if err := o.save(ctx, m); err != nil {
		return &PhaseError{Phase: p, Err: err}
	}
	o.publish(ctx, m, events.MigrationPhase, "")

	pctx, span := o.tracer.Start(ctx, "migration."+string(p))
	start := o.now()
	err := fn(pctx)
	o.metrics.PhaseObserved(m.Strategy, string(p), o.now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return &PhaseError{Phase: p, Err: err}
	}
	span.End()

	m.Log(o.now(), "info", fmt.Sprintf("Phase %s finished", p))
	return o.save(ctx, m)
}

func (o *Orchestrator) fail(ctx context.Context, m *model.Migration, err error) {
	if serr := m.SetStatus(model.StatusFailed); serr != nil {
		o.logger.Errorf("Cannot mark migration %s failed: %v", m.ID, serr)
		return
	}
	o.finish(m)
	m.ErrorMessage = err.Error()
	m.ErrorDetails = map[string]string{
		"error_type": errorClass(err),
		"cause":      err.Error(),
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		m.ErrorDetails["phase"] = string(pe.Phase)
		m.ErrorDetails["cause"] = pe.Err.Error()
	}
	m.ManualInterventionRequired = cloud.IsNotSupported(err)
	m.Log(o.now(), "error", err.Error())
	if serr := o.save(ctx, m); serr != nil {
		o.logger.Errorf("%v", serr)
	}
	o.publish(ctx, m, events.MigrationFailed, err.Error())
}

// finish stamps completion time and duration.
func (o *Orchestrator) finish(m *model.Migration) {
	now := o.now()
	m.CompletedAt = &now
	if m.StartedAt != nil {
		m.DurationSeconds = int64(now.Sub(*m.StartedAt).Seconds())
	}
}

// save persists m. Writes ignore cancellation so an interrupted migration
// still records where it stopped.
func (o *Orchestrator) save(ctx context.Context, m *model.Migration) error {
	m.UpdatedAt = o.now()
	if err := o.migrations.SaveMigration(context.WithoutCancel(ctx), m); err != nil {
		return fmt.Errorf("failed to save migration %s: %w", m.ID, err)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, m *model.Migration, typ, msg string) {
	e := events.Event{
		Source:      events.SourceMigration,
		Type:        typ,
		MigrationID: m.ID,
		AssetID:     m.AssetID,
		ProjectID:   m.ProjectID,
		Status:      string(m.Status),
		Phase:       string(m.CurrentPhase),
		Progress:    m.ProgressPercentage,
		Message:     msg,
		Time:        o.now(),
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warningf("Failed to publish %s event for %s: %v", typ, m.ID, err)
	}
}

func failedTests(res model.ValidationResult) []string {
	var out []string
	for name, ok := range res.Tests {
		if !ok {
			out = append(out, name)
		}
	}
	if len(out) == 0 && len(res.Tests) == 0 {
		out = append(out, "no tests ran")
	}
	sort.Strings(out)
	return out
}
