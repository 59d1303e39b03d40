package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/gossip-sim/sim/experiment"
)

var (
	// CLI flags for the run command
	configPath string // Path to the YAML experiment config
	seed       int64  // Master seed, overrides the config when set
	workers    int    // Parallel trials, overrides the config when set
	trials     int    // Trials per row, overrides the config when set
	traceLevel string // Exchange trace level, overrides the config when set
	logLevel   string // Log verbosity level
	metricsOut string // File receiving the exported metrics
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "gossip-sim",
	Short: "Discrete-event simulator for gossip dissemination under churn",
}

// runCmd runs the experiment described by --config
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a dissemination experiment",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		if configPath == "" {
			logrus.Fatalf("--config is required")
		}
		cfg, err := experiment.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load experiment config: %v", err)
		}
		applyOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid experiment config: %v", err)
		}

		logrus.Infof("Starting experiment %s: seed=%d, workers=%d, trials=%d", configPath, cfg.Seed, cfg.Workers, cfg.Trials)
		startTime := time.Now()

		reg := prometheus.NewRegistry()
		if err := runExperiment(cmd.Context(), cfg, reg); err != nil {
			logrus.Fatalf("Experiment failed: %v", err)
		}
		fmt.Println("=== Experiment Results ===")
		if err := writeMetrics(os.Stdout, reg); err != nil {
			logrus.Fatalf("Failed to print metrics: %v", err)
		}
		if metricsOut != "" {
			if err := saveMetrics(metricsOut, reg); err != nil {
				logrus.Fatalf("Failed to write metrics: %v", err)
			}
		}
		logrus.Infof("Experiment complete in %v.", time.Since(startTime).Round(time.Millisecond))
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// applyOverrides copies the flags the user set onto cfg.
func applyOverrides(cmd *cobra.Command, cfg *experiment.Config) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		logrus.Infof("CLI --seed %d overrides config seed %d", seed, cfg.Seed)
		cfg.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("trials") {
		cfg.Trials = trials
	}
	if flags.Changed("trace-level") {
		cfg.TraceLevel = traceLevel
	}
}

// runExperiment runs every row of cfg and registers the row aggregates
// with reg.
func runExperiment(ctx context.Context, cfg *experiment.Config, reg prometheus.Registerer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := experiment.NewDisseminationDriver(cfg, reg)
	if err != nil {
		return err
	}
	pool := &experiment.Pool{Workers: cfg.Workers, Trials: cfg.Trials, Precision: cfg.Precision}
	rows, err := experiment.RunExperiment[experiment.Row, experiment.Result](ctx, pool, d)
	if err != nil {
		return err
	}
	logrus.Infof("%d rows done", rows)
	return nil
}

// writeMetrics prints every gathered family in the text exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func saveMetrics(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	if err := writeMetrics(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML experiment config")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed (overrides the config)")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Parallel trials (overrides the config)")
	runCmd.Flags().IntVar(&trials, "trials", 1, "Trials per row (overrides the config)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Exchange trace level: none, exchanges, selections (overrides the config)")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Also write the metrics to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(churnCmd)
}
