package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag names. Each can also be set through a PIPELINESIM_<NAME> environment
// variable, dashes replaced by underscores (e.g. PIPELINESIM_TRACE_OUT).
const (
	flagConfig         = "config"
	flagSeed           = "seed"
	flagHorizon        = "horizon"
	flagLog            = "log"
	flagTraceLevel     = "trace-level"
	flagTraceOut       = "trace-out"
	flagChromeTraceOut = "chrome-trace-out"
	flagMetricsOut     = "metrics-out"
	flagSummaryOut     = "summary-out"
)

const envPrefix = "PIPELINESIM"

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "pipeline-sim",
	Short:         "Discrete-event simulator for multi-stage, multi-replica batch pipelines",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runCmd executes a scenario using the config file and flag overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := bindEnv(cmd)
		if err != nil {
			return err
		}
		if err := setupLogging(v.GetString(flagLog)); err != nil {
			return err
		}

		sc := DefaultScenario()
		if path := v.GetString(flagConfig); path != "" {
			if sc, err = LoadScenario(path); err != nil {
				return err
			}
		}
		// flags and env override the scenario file only when set explicitly
		if v.IsSet(flagSeed) {
			sc.Seed = v.GetInt64(flagSeed)
		}
		if v.IsSet(flagHorizon) {
			sc.Horizon = v.GetFloat64(flagHorizon)
		}

		opts := outputOptions{
			TraceLevel:     v.GetString(flagTraceLevel),
			TraceOut:       v.GetString(flagTraceOut),
			ChromeTraceOut: v.GetString(flagChromeTraceOut),
			MetricsOut:     v.GetString(flagMetricsOut),
			SummaryOut:     v.GetString(flagSummaryOut),
		}
		logrus.Infof("Starting simulation %q: %d replicas x %d stages, horizon=%v, seed=%d",
			sc.Name, sc.Cluster.Replicas, sc.Cluster.Stages, sc.Horizon, sc.Seed)

		if _, err := runScenario(sc, opts, cmd.OutOrStdout(), logrus.StandardLogger()); err != nil {
			return err
		}
		logrus.Info("Simulation complete.")
		return nil
	},
}

// validateTraceCmd checks a recorded trace against the record schema
var validateTraceCmd = &cobra.Command{
	Use:   "validate-trace <records.jsonl>",
	Short: "Validate a JSON-lines event trace against the record schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateTraceFile(args[0], cmd.OutOrStdout())
	},
}

// bindEnv layers PIPELINESIM_* environment variables under the command's flags.
func bindEnv(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return v, nil
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().String(flagConfig, "", "Scenario YAML file (built-in default scenario when empty)")
	runCmd.Flags().Int64(flagSeed, 42, "Seed for workload generation (overrides the scenario)")
	runCmd.Flags().Float64(flagHorizon, 0, "Simulation horizon in seconds, <= 0 runs to completion (overrides the scenario)")
	runCmd.Flags().String(flagLog, "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().String(flagTraceLevel, "", "Trace level (none, spans, events); derived from the requested outputs when empty")
	runCmd.Flags().String(flagTraceOut, "", "Write event records as JSON lines to this file")
	runCmd.Flags().String(flagChromeTraceOut, "", "Write batch stage spans as a Chrome trace to this file")
	runCmd.Flags().String(flagMetricsOut, "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().String(flagSummaryOut, "", "Write the JSON run summary to this file instead of stdout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateTraceCmd)
}
