package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codebypatrickleung/cloudhop/internal/discovery"
	"github.com/codebypatrickleung/cloudhop/internal/migration"
	"github.com/codebypatrickleung/cloudhop/internal/model"
	"github.com/codebypatrickleung/cloudhop/internal/store"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover the assets of one provider account into a project",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			project, _ := cmd.Flags().GetString("project")
			includeNetwork, _ := cmd.Flags().GetBool("include-network")
			target, _ := cmd.Flags().GetString("target-provider")
			creds, err := credentials(cmd, "source")
			if err != nil {
				return err
			}

			svc := discovery.NewService(discovery.NewPipeline(a.store, a.log, a.metrics), a.factory, a.adapterOptions(), a.publisher, a.log)
			a.log.Step(1, fmt.Sprintf("Discovering %s assets for project %s", creds.Provider, project))
			jobID, err := svc.StartDiscovery(ctx, project, creds, discovery.Options{
				IncludeNetwork: includeNetwork,
				TargetProvider: target,
				Concurrency:    a.cfg.DiscoveryConcurrency,
				Progress: func(done, total int) {
					a.log.Infof("Discovery progress: %d/%d resource kinds", done, total)
				},
			})
			if err != nil {
				return err
			}
			job, err := svc.Wait(ctx, jobID)
			if err != nil {
				if cerr := svc.Cancel(jobID); cerr != nil {
					a.log.Warningf("Failed to cancel discovery job %s: %v", jobID, cerr)
				}
				return err
			}
			if job.Status == discovery.JobFailed || job.Status == discovery.JobCanceled {
				return fmt.Errorf("discovery failed: %s", job.Error)
			}
			return printJSON(job)
		}),
	}
	cmd.Flags().String("project", "", "Project the assets belong to")
	cmd.Flags().Bool("include-network", false, "Also discover VPCs, subnets, security groups and route tables")
	cmd.Flags().String("target-provider", "", "Attach rehost/replatform recommendations for this target")
	credFlags(cmd, "source")
	cmd.MarkFlagRequired("project")
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Check prerequisites and estimate a migration without changing anything",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			assetID, _ := cmd.Flags().GetString("asset")
			name, _ := cmd.Flags().GetString("strategy")
			source, err := credentials(cmd, "source")
			if err != nil {
				return err
			}
			target, err := credentials(cmd, "target")
			if err != nil {
				return err
			}

			asset, err := a.store.GetAsset(ctx, assetID)
			if err != nil {
				return fmt.Errorf("failed to load asset %s: %w", assetID, err)
			}
			opts := a.adapterOptions()
			src, err := a.factory.New(ctx, source, opts)
			if err != nil {
				return err
			}
			dst, err := a.factory.New(ctx, target, opts)
			if err != nil {
				return err
			}
			exec, err := a.strategies.New(name, src, dst, strategyOptions(a))
			if err != nil {
				return err
			}

			report, err := exec.ValidatePrerequisites(ctx, asset)
			if err != nil {
				return err
			}
			estimate, err := exec.EstimateMigration(ctx, asset)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"asset_id":      asset.ID,
				"strategy":      exec.Name(),
				"prerequisites": report,
				"estimate":      estimate,
			})
		}),
	}
	cmd.Flags().String("asset", "", "Asset id")
	cmd.Flags().String("strategy", "rehost", "Migration strategy")
	credFlags(cmd, "source")
	credFlags(cmd, "target")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate one asset and wait for it to finish",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			assetID, _ := cmd.Flags().GetString("asset")
			name, _ := cmd.Flags().GetString("strategy")
			wave, _ := cmd.Flags().GetString("wave")
			cleanup, _ := cmd.Flags().GetBool("cleanup-source")
			params, _ := cmd.Flags().GetStringArray("param")
			source, err := credentials(cmd, "source")
			if err != nil {
				return err
			}
			target, err := credentials(cmd, "target")
			if err != nil {
				return err
			}
			parameters, err := keyValues(params)
			if err != nil {
				return fmt.Errorf("invalid --param: %w", err)
			}

			orch := a.orchestrator()
			id, err := orch.StartMigration(ctx, migration.Request{
				AssetID:           assetID,
				Strategy:          name,
				SourceCredentials: source,
				TargetCredentials: target,
				WaveID:            wave,
				CleanupSource:     cleanup,
				Parameters:        parameters,
			})
			if err != nil {
				return err
			}
			a.log.Infof("Migration %s started", id)
			return waitAndPrint(ctx, a, orch, id)
		}),
	}
	cmd.Flags().String("asset", "", "Asset id")
	cmd.Flags().String("strategy", "rehost", "Migration strategy")
	cmd.Flags().String("wave", "", "Wave the migration belongs to")
	cmd.Flags().Bool("cleanup-source", false, "Decommission the source after a validated migration")
	cmd.Flags().StringArray("param", nil, "Strategy parameter as key=value (repeatable), e.g. source_image_uri=s3://bucket/disk.vhd")
	credFlags(cmd, "source")
	credFlags(cmd, "target")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted migration from its last checkpoint",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			id, _ := cmd.Flags().GetString("id")
			source, err := credentials(cmd, "source")
			if err != nil {
				return err
			}
			target, err := credentials(cmd, "target")
			if err != nil {
				return err
			}
			orch := a.orchestrator()
			if err := orch.ResumeMigration(ctx, id, source, target); err != nil {
				return err
			}
			return waitAndPrint(ctx, a, orch, id)
		}),
	}
	cmd.Flags().String("id", "", "Migration id")
	credFlags(cmd, "source")
	credFlags(cmd, "target")
	cmd.MarkFlagRequired("id")
	return cmd
}

func rollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Remove what a migration created and restore its source",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			id, _ := cmd.Flags().GetString("id")
			source, err := credentials(cmd, "source")
			if err != nil {
				return err
			}
			target, err := credentials(cmd, "target")
			if err != nil {
				return err
			}
			orch := a.orchestrator()
			if err := orch.Attach(ctx, id, source, target); err != nil {
				return err
			}
			if err := orch.RollbackMigration(ctx, id); err != nil {
				return err
			}
			m, err := a.store.GetMigration(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(m)
		}),
	}
	cmd.Flags().String("id", "", "Migration id")
	credFlags(cmd, "source")
	credFlags(cmd, "target")
	cmd.MarkFlagRequired("id")
	return cmd
}

// waitAndPrint waits for the migration. On interrupt it stops the migration
// where it is so that it can be resumed.
func waitAndPrint(ctx context.Context, a *app, orch *migration.Orchestrator, id string) error {
	m, err := orch.Wait(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			return err
		}
		a.log.Warningf("Interrupted; stopping migration %s", id)
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orch.Shutdown(sctx); err != nil {
			return fmt.Errorf("failed to stop migration %s: %w", id, err)
		}
		return fmt.Errorf("migration %s interrupted; continue it with: cloudhop resume --id %s", id, id)
	}
	if err := printJSON(m); err != nil {
		return err
	}
	if m.Status == model.StatusFailed {
		return fmt.Errorf("migration %s failed: %s", id, m.ErrorMessage)
	}
	return nil
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show one migration record",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			id, _ := cmd.Flags().GetString("id")
			m, err := a.store.GetMigration(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(m)
		}),
	}
	cmd.Flags().String("id", "", "Migration id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func migrationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "List migrations by project, wave, asset or status",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			var f store.MigrationFilter
			f.ProjectID, _ = cmd.Flags().GetString("project")
			f.WaveID, _ = cmd.Flags().GetString("wave")
			f.AssetID, _ = cmd.Flags().GetString("asset")
			status, _ := cmd.Flags().GetString("status")
			f.Status = model.Status(status)
			ms, err := a.store.ListMigrations(ctx, f)
			if err != nil {
				return err
			}
			return printJSON(ms)
		}),
	}
	cmd.Flags().String("project", "", "Project id")
	cmd.Flags().String("wave", "", "Wave id")
	cmd.Flags().String("asset", "", "Asset id")
	cmd.Flags().String("status", "", "Migration status")
	return cmd
}

func assetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List the discovered assets of a project",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			project, _ := cmd.Flags().GetString("project")
			assets, err := a.store.ListAssets(ctx, project)
			if err != nil {
				return err
			}
			return printJSON(assets)
		}),
	}
	cmd.Flags().String("project", "", "Project id")
	cmd.MarkFlagRequired("project")
	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported cloud providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range newProviderList() {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List migration strategies and whether they can be executed",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := newStrategyRegistry()
			for _, name := range reg.Names() {
				mode := "planning only"
				if reg.Executable(name) {
					mode = "executable"
				}
				fmt.Printf("%-12s %s\n", name, mode)
			}
			return nil
		},
	}
}
