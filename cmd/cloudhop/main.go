// Package main provides the entry point for the cloudhop CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/providers"
	"github.com/codebypatrickleung/cloudhop/internal/config"
	"github.com/codebypatrickleung/cloudhop/internal/events"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/codebypatrickleung/cloudhop/internal/metrics"
	"github.com/codebypatrickleung/cloudhop/internal/migration"
	"github.com/codebypatrickleung/cloudhop/internal/store"
	"github.com/codebypatrickleung/cloudhop/internal/strategy"
)

var (
	cfgFile string
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cloudhop",
	Short:         "cloudhop - multi-cloud discovery and migration",
	Long:          `cloudhop discovers compute, database, storage and network assets across AWS, Azure, GCP and OCI and migrates them between providers.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cloudhop-config.env)")

	flags := []struct {
		name, usage, defaultValue string
	}{
		{"store-backend", "Persistence backend (memory, sqlite, badger)", "sqlite"},
		{"store-path", "Path of the sqlite file or badger directory", "./cloudhop.db"},
		{"metrics-addr", "Serve Prometheus metrics on this address", ""},
		{"nats-url", "Publish lifecycle events to this NATS server", ""},
		{"log-file", "Also write logs to this file (\"auto\" for cloudhop-<timestamp>.log)", ""},
	}
	for _, f := range flags {
		rootCmd.PersistentFlags().String(f.name, f.defaultValue, f.usage)
	}
	rootCmd.PersistentFlags().Duration("poll-interval", time.Minute, "Replication polling interval")
	rootCmd.PersistentFlags().Duration("max-wait", 4*time.Hour, "Maximum replication wait")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	bindings := map[string]string{
		"STORE_BACKEND": "store-backend",
		"STORE_PATH":    "store-path",
		"METRICS_ADDR":  "metrics-addr",
		"NATS_URL":      "nats-url",
		"LOG_FILE":      "log-file",
		"POLL_INTERVAL": "poll-interval",
		"MAX_WAIT":      "max-wait",
		"DEBUG":         "debug",
	}
	for env, flag := range bindings {
		if err := viper.BindPFlag(env, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to bind flag %s to env %s: %v\n", flag, env, err)
		}
	}

	rootCmd.AddCommand(discoverCmd(), planCmd(), migrateCmd(), rollbackCmd(), resumeCmd(),
		statusCmd(), migrationsCmd(), assetsCmd(), providersCmd(), strategiesCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("cloudhop-config")
		viper.SetConfigType("env")
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	store      store.Store
	metrics    *metrics.Recorder
	publisher  events.Publisher
	factory    *cloud.Registry
	strategies *strategy.Registry
	server     *http.Server
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logFile := cfg.LogFile
	if logFile == "auto" {
		logFile = fmt.Sprintf("cloudhop-%s.log", logger.GetTimestamp())
	}
	var log *logger.Logger
	if logFile != "" {
		if log, err = logger.NewWithFile(cfg.Debug, logFile); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		log.Debugf("Log file: %s", logFile)
	} else {
		log = logger.New(cfg.Debug)
	}
	log.Debugf("cloudhop version %s", version)

	st, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		store:      st,
		metrics:    metrics.New(),
		publisher:  events.Nop{},
		factory:    providers.NewRegistry(),
		strategies: newStrategyRegistry(),
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, log)
		if err != nil {
			log.Warningf("Event publishing disabled: %v", err)
		} else {
			a.publisher = pub
		}
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		a.server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warningf("Metrics server stopped: %v", err)
			}
		}()
		log.Infof("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}
	return a, nil
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(ctx)
	}
	a.publisher.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warningf("Failed to close store: %v", err)
	}
	a.log.Close()
}

func (a *app) adapterOptions() cloud.Options {
	callerCfg := a.cfg.CallerConfig()
	callerCfg.OnRetry = a.metrics.Retried
	return cloud.Options{Logger: a.log, Caller: cloud.NewCaller(callerCfg, a.log)}
}

func (a *app) orchestrator() *migration.Orchestrator {
	return migration.New(a.store, a.store, a.factory, a.strategies, migration.Options{
		Logger:    a.log,
		Metrics:   a.metrics,
		Publisher: a.publisher,
		Adapter:   a.adapterOptions(),
		Strategy:  strategyOptions(a),
	})
}

func strategyOptions(a *app) strategy.Options {
	return strategy.Options{Logger: a.log, Poll: a.cfg.PollConfig()}
}

func newProviderList() []string {
	return providers.NewRegistry().Providers()
}

func newStrategyRegistry() *strategy.Registry {
	return strategy.DefaultRegistry()
}

// withApp wraps a subcommand body with app setup and teardown.
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, cmd)
	}
}

// credFlags registers --<side>-provider, --<side>-region and repeated
// --<side>-cred key=value flags.
func credFlags(cmd *cobra.Command, side string) {
	cmd.Flags().String(side+"-provider", "", fmt.Sprintf("%s cloud provider (aws, azure, gcp, oci)", side))
	cmd.Flags().String(side+"-region", "", fmt.Sprintf("%s region", side))
	cmd.Flags().StringArray(side+"-cred", nil, fmt.Sprintf("%s credential as key=value (repeatable)", side))
}

func credentials(cmd *cobra.Command, side string) (cloud.Credentials, error) {
	provider, _ := cmd.Flags().GetString(side + "-provider")
	region, _ := cmd.Flags().GetString(side + "-region")
	pairs, _ := cmd.Flags().GetStringArray(side + "-cred")
	if provider == "" {
		return cloud.Credentials{}, fmt.Errorf("--%s-provider is required", side)
	}
	values, err := keyValues(pairs)
	if err != nil {
		return cloud.Credentials{}, fmt.Errorf("invalid --%s-cred: %w", side, err)
	}
	return cloud.Credentials{Provider: provider, Region: region, Values: values}, nil
}

func keyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
