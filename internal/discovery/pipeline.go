// Package discovery enumerates a provider account and persists what it finds
// as assets.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/codebypatrickleung/cloudhop/internal/metrics"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/store"
	"github.com/codebypatrickleung/cloudhop/internal/strategy"
)

// Recommendation confidences attached when planning against a target.
const (
	rehostRecommendationConfidence     = 0.9
	replatformRecommendationConfidence = 0.75
)

// Options selects what one run discovers.
type Options struct {
	IncludeNetwork bool
	// TargetProvider, when set, attaches a rehost or replatform
	// recommendation to each vm and database asset.
	TargetProvider string
	// Concurrency caps the kinds listed at once; zero means no cap.
	Concurrency int
	// Progress is told each time one resource kind finishes.
	Progress func(done, total int)
}

// Result summarises one discovery run.
type Result struct {
	ProjectID       string         `json:"project_id"`
	Provider        string         `json:"provider"`
	Counts          map[string]int `json:"counts"`
	PartialFailures int            `json:"partial_failures"`
	Skipped         []string       `json:"skipped,omitempty"`
	Duration        time.Duration  `json:"duration"`
	AssetIDs        []string       `json:"asset_ids"`
}

// Total returns the number of assets produced.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Pipeline runs discovery against one adapter and upserts the assets.
type Pipeline struct {
	assets  store.AssetStore
	logger  *logger.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
	now     func() time.Time
}

// NewPipeline creates a pipeline writing to assets. rec may be nil.
func NewPipeline(assets store.AssetStore, log *logger.Logger, rec *metrics.Recorder) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		assets:  assets,
		logger:  log.Named("discovery"),
		metrics: rec,
		tracer:  otel.GetTracerProvider().Tracer("cloudhop/discovery"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type task struct {
	kind string
	run  func(ctx context.Context, now time.Time) ([]*model.Asset, error)
}

// Run discovers every requested kind concurrently. A kind the adapter does
// not support is skipped; any other list failure fails the run before
// anything is written.
func (p *Pipeline) Run(ctx context.Context, projectID string, adapter cloud.Adapter, opts Options) (*Result, error) {
	start := p.now()
	provider := adapter.Provider()
	region := adapter.Region()

	ctx, span := p.tracer.Start(ctx, "discovery.run", trace.WithAttributes(
		attribute.String("cloudhop.project_id", projectID),
		attribute.String("cloudhop.provider", provider),
	))
	defer span.End()

	skips := cloud.NewSkipRecorder(provider)
	ctx = cloud.WithSkipRecorder(ctx, skips)

	tasks := []task{
		{KindVM, func(ctx context.Context, now time.Time) ([]*model.Asset, error) {
			insts, err := adapter.DiscoverCompute(ctx)
			out := make([]*model.Asset, 0, len(insts))
			for _, inst := range insts {
				out = append(out, instanceAsset(projectID, provider, region, inst, now))
			}
			return out, err
		}},
		{KindDatabase, func(ctx context.Context, now time.Time) ([]*model.Asset, error) {
			dbs, err := adapter.DiscoverDatabases(ctx)
			out := make([]*model.Asset, 0, len(dbs))
			for _, db := range dbs {
				out = append(out, databaseAsset(projectID, provider, region, db, now))
			}
			return out, err
		}},
		{KindStorage, func(ctx context.Context, now time.Time) ([]*model.Asset, error) {
			buckets, err := adapter.DiscoverStorage(ctx)
			out := make([]*model.Asset, 0, len(buckets))
			for _, b := range buckets {
				out = append(out, bucketAsset(projectID, provider, region, b, now))
			}
			return out, err
		}},
	}
	if opts.IncludeNetwork {
		tasks = append(tasks, task{KindNetwork, func(ctx context.Context, now time.Time) ([]*model.Asset, error) {
			n, err := adapter.DiscoverNetwork(ctx)
			if err != nil {
				return nil, err
			}
			return networkAssets(projectID, provider, region, n, now), nil
		}})
	}

	var (
		mu    sync.Mutex
		found = make(map[string][]*model.Asset, len(tasks))
		done  int
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for _, t := range tasks {
		g.Go(func() error {
			kctx, kspan := p.tracer.Start(gctx, "discovery."+t.kind)
			defer kspan.End()

			assets, err := t.run(kctx, start)
			if cloud.IsNotSupported(err) {
				p.logger.Warningf("Skipping %s discovery on %s: %v", t.kind, provider, err)
				err = nil
			}
			if err != nil {
				kspan.RecordError(err)
				kspan.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("failed to discover %s: %w", t.kind, err)
			}
			kspan.SetAttributes(attribute.Int("cloudhop.assets", len(assets)))

			mu.Lock()
			found[t.kind] = assets
			done++
			n := done
			mu.Unlock()
			if opts.Progress != nil {
				opts.Progress(n, len(tasks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := &Result{
		ProjectID:       projectID,
		Provider:        provider,
		Counts:          make(map[string]int, len(tasks)),
		PartialFailures: skips.Count(),
	}
	var partial *cloud.PartialDiscoveryError
	if errors.As(skips.Err(), &partial) {
		for _, it := range partial.Items {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s %s: %v", it.Kind, it.ID, it.Err))
		}
	}

	for _, t := range tasks {
		for _, a := range found[t.kind] {
			if opts.TargetProvider != "" {
				p.recommend(a, opts.TargetProvider)
			}
			if err := p.upsert(ctx, a); err != nil {
				return nil, err
			}
			res.AssetIDs = append(res.AssetIDs, a.ID)
		}
		res.Counts[t.kind] = len(found[t.kind])
		p.metrics.AssetsDiscovered(provider, t.kind, len(found[t.kind]))
	}
	p.metrics.DiscoverySkipped(provider, res.PartialFailures)

	res.Duration = p.now().Sub(start)
	p.logger.Successf("Discovered %d assets in %s on %s (%d skipped)", res.Total(), projectID, provider, res.PartialFailures)
	return res, nil
}

// upsert keeps the first discovery time and any plan not replaced by this run.
func (p *Pipeline) upsert(ctx context.Context, a *model.Asset) error {
	prev, err := p.assets.GetAsset(ctx, a.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to read asset %s: %w", a.ID, err)
	default:
		a.DiscoveredAt = prev.DiscoveredAt
		if a.RecommendedStrategy == "" {
			a.RecommendedStrategy = prev.RecommendedStrategy
			a.RecommendationConfidence = prev.RecommendationConfidence
			a.TargetProvider = prev.TargetProvider
			a.TargetSpecs = prev.TargetSpecs
		}
	}
	if err := p.assets.UpsertAsset(ctx, a); err != nil {
		return fmt.Errorf("failed to store asset %s: %w", a.ID, err)
	}
	return nil
}

func (p *Pipeline) recommend(a *model.Asset, target string) {
	switch a.Type {
	case model.AssetVM:
		specs, err := strategy.TargetSpecs(target, a.SpecInt("cpu_cores", cloud.DefaultCPUCores),
			a.SpecFloat("memory_gb", cloud.DefaultMemoryGB), a.SpecInt("disk_gb", 0))
		if err != nil {
			p.logger.Warningf("Cannot plan %s for %s: %v", a.Name, target, err)
			return
		}
		a.TargetSpecs = specs
		a.RecommendedStrategy = strategy.Rehost
		a.RecommendationConfidence = rehostRecommendationConfidence
	case model.AssetDatabase:
		a.RecommendedStrategy = strategy.Replatform
		a.RecommendationConfidence = replatformRecommendationConfidence
	default:
		return
	}
	a.TargetProvider = cloud.NormalizeProvider(target)
}
