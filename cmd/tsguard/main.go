// tsguard runs one anomaly detection algorithm under the harness contract:
// a single configuration document selects train or execute, the input
// series, and the artifact paths.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hed1ad/tsguard/pkg/config"
	"github.com/hed1ad/tsguard/pkg/detectors"
	"github.com/hed1ad/tsguard/pkg/detectors/baseline"
	"github.com/hed1ad/tsguard/pkg/detectors/dae"
	"github.com/hed1ad/tsguard/pkg/detectors/subif"
	"github.com/hed1ad/tsguard/pkg/journal"
	"github.com/hed1ad/tsguard/pkg/logging"
)

var version = "0.1.0"

var (
	logLevel string
	jsonLog  bool
)

func main() {
	root := &cobra.Command{
		Use:           "tsguard",
		Short:         "Interchangeable time-series anomaly detectors under one train/execute contract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&jsonLog, "json", false, "emit JSON logs instead of console output")

	root.AddCommand(&cobra.Command{
		Use:   "baseline <config>",
		Short: "Statistical baseline: flag values outside a tolerance band around per-channel normal statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := config.DefaultBaselineParams()
			return runDetector(args[0], params, func(log zerolog.Logger) detectors.Detector {
				return baseline.New(params, log)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "subif <config>",
		Short: "Windowed isolation-forest ensemble scoring sliding subsequences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := config.DefaultSubIFParams()
			return runDetector(args[0], params, func(log zerolog.Logger) detectors.Detector {
				return subif.New(params, log)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "dae <config>",
		Short: "Denoising autoencoder scoring rows by reconstruction error, checkpointed every improving epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := config.DefaultDAEParams()
			return runDetector(args[0], params, func(log zerolog.Logger) detectors.Detector {
				return dae.New(params, log)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tsguard %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		newLogger().Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if jsonLog {
		return logging.New(os.Stderr, logLevel)
	}
	return logging.NewConsole(logLevel)
}

// runDetector drives one harness invocation: load and echo the
// configuration, dispatch, and journal the outcome when a run database is
// configured.
func runDetector(source string, params config.Params, build func(zerolog.Logger) detectors.Detector) error {
	args, err := config.Load(source, params)
	if err != nil {
		return err
	}

	log := newLogger()
	log.Info().Fields(args.Echo()).Msg("configuration loaded")

	det := build(log)
	started := time.Now()
	runErr := detectors.Run(args, det, log)
	journalRun(log, args, det, started, time.Since(started), runErr)
	return runErr
}

// journalRun appends the run outcome to the configured journal. Journal
// trouble is logged and swallowed; it never fails the run itself.
func journalRun(log zerolog.Logger, args *config.Args, det detectors.Detector, started time.Time, elapsed time.Duration, runErr error) {
	if args.RunDatabase == "" {
		return
	}
	j, err := journal.Open(args.RunDatabase)
	if err != nil {
		log.Warn().Err(err).Msg("run journal unavailable")
		return
	}
	defer j.Close()

	rec := journal.Record{
		Started:       started.UTC(),
		Algorithm:     det.Name(),
		ExecutionType: string(args.ExecutionType),
		DataInput:     args.DataInput,
		DataOutput:    args.DataOutput,
		ModelInput:    args.ModelInput,
		ModelOutput:   args.ModelOutput,
		Channels:      det.Common().TargetChannels,
		Elapsed:       elapsed,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := j.Append(rec); err != nil {
		log.Warn().Err(err).Msg("recording run failed")
	}
}
