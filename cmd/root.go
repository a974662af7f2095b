package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/output"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/report"
	"github.com/cityfix/cityfix/internal/store"
	"github.com/cityfix/cityfix/internal/wfs"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "cityfix",
	Short: "cityfix - report and track city infrastructure issues",
	Long: `cityfix is a client for a municipal issue layer served over WFS.
It loads reported issues (broken lights, roadworks, blockages) from the
feature service, filters them by category and status, and submits new
reports as WFS transactions.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/cityfix/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "cityfix")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CITYFIX")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	viper.SetDefault("wfs.url", "http://localhost:8080/geoserver/cityfix/wfs")
	viper.SetDefault("wfs.type_name", "cityfix:Münster-Issues")
	viper.SetDefault("wfs.default_namespace", wfs.DefaultNamespace)
	viper.SetDefault("wfs.timeout_seconds", 15)
	viper.SetDefault("serve.port", 8080)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is initialized lazily. Issues live for the lifetime of
	// the process only; the WFS service is the system of record.
}

// getStore returns the shared in-memory store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(store.MemoryDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newWFSClient builds a client for the configured feature service.
func newWFSClient() *wfs.Client {
	return wfs.NewClient(wfs.Config{
		URL:              viper.GetString("wfs.url"),
		TypeName:         viper.GetString("wfs.type_name"),
		DefaultNamespace: viper.GetString("wfs.default_namespace"),
		Timeout:          time.Duration(viper.GetInt("wfs.timeout_seconds")) * time.Second,
	})
}

// app bundles the wired client stack for commands that need all of it.
type app struct {
	store    store.Store
	client   *wfs.Client
	engine   *filter.Engine
	workflow *report.Workflow
}

func getApp() (*app, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	client := newWFSClient()
	engine := filter.NewEngine(s, render.NopCanvas{})
	return &app{
		store:    s,
		client:   client,
		engine:   engine,
		workflow: report.NewWorkflow(s, engine, client),
	}, nil
}

// loadIssues fetches the feature layer into the store and reports counts.
func loadIssues(ctx context.Context, a *app) error {
	feats, err := a.client.GetFeatures(ctx)
	if err != nil {
		return fmt.Errorf("fetch features: %w", err)
	}

	loaded, skipped, err := a.store.BulkLoad(ctx, feats, func(i models.Issue) render.Handle {
		return render.NewMarker(i)
	})
	if err != nil {
		return fmt.Errorf("load features: %w", err)
	}
	if err := a.engine.Recompute(ctx); err != nil {
		return fmt.Errorf("refresh filters: %w", err)
	}

	ui.VerboseLog("Loaded %d issues (%d skipped)", loaded, skipped)
	if skipped > 0 {
		ui.Warning("%d features skipped (malformed geometry)", skipped)
	}
	return nil
}
