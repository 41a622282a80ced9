// Package detectors defines the train/execute contract shared by every
// anomaly detection algorithm and the runner that drives one invocation.
package detectors

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/hed1ad/tsguard/pkg/config"
	"github.com/hed1ad/tsguard/pkg/dataset"
	"github.com/hed1ad/tsguard/pkg/errors"
)

// Detector is the common interface for all anomaly detection algorithms.
// Train and Execute are alternative entry points selected by the run
// configuration; they never call each other.
type Detector interface {
	// Name identifies the algorithm in logs and the run journal.
	Name() string

	// Common exposes the parameters shared by every algorithm. The runner
	// records the effective channel selection there before dispatching.
	Common() *config.CommonParams

	// Train fits the detector on the resolved series and persists its model
	// artifacts at the configured model output path.
	Train(args *config.Args, res *dataset.Resolution) error

	// Execute loads the artifacts written by a prior Train, scores the
	// resolved series, and writes one score sequence to the configured data
	// output path.
	Execute(args *config.Args, res *dataset.Resolution) error
}

// Run drives one invocation end to end: load the input series, resolve the
// channel selection, and dispatch to the detector's Train or Execute.
func Run(args *config.Args, det Detector, log zerolog.Logger) error {
	log.Info().
		Str("algorithm", det.Name()).
		Str("executionType", string(args.ExecutionType)).
		Str("dataInput", args.DataInput).
		Msg("starting run")
	start := time.Now()

	table, err := dataset.Load(args.DataInput)
	if err != nil {
		return err
	}

	common := det.Common()
	res, err := table.Resolve(common.TargetChannels, log)
	if err != nil {
		return err
	}

	// Record the effective selection so later stages and the config echo see
	// resolved names and indices instead of the raw request.
	common.TargetChannels = res.Channels
	common.TargetChannelIndices = res.Indices

	switch args.ExecutionType {
	case config.Train:
		err = det.Train(args, res)
	case config.Execute:
		err = det.Execute(args, res)
	default:
		err = errors.Configurationf("unknown executionType %q; expected either %q or %q",
			args.ExecutionType, config.Train, config.Execute)
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("algorithm", det.Name()).
		Dur("elapsed", time.Since(start)).
		Msg("run finished")
	return nil
}

// ArtifactSize returns the humanized on-disk size of path for logging, or
// "unknown" when the file cannot be inspected.
func ArtifactSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}
