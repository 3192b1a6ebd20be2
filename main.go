// Package main is the fruit detection command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-ripeness/benchmark"
	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/nvr-ai/go-ripeness/profiler"
	"github.com/nvr-ai/go-ripeness/util"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	flagConfig     = "config"
	flagModel      = "model"
	flagLabels     = "labels"
	flagBackend    = "backend"
	flagConfidence = "confidence"
	flagLogLevel   = "log-level"
	flagWatch      = "watch"
	flagFruit      = "fruit"
	flagIterations = "iterations"
	flagWarmup     = "warmup"
	flagOutput     = "output"
	flagStats      = "stats-interval"
)

func main() {
	app := &cli.App{
		Name:  "ripeness",
		Usage: "detect fruit and its condition in camera frames",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagLogLevel, Value: "info", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "run the detector over an image file or a directory of frames",
				ArgsUsage: "<image|directory>",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "YAML detector config"},
					&cli.PathFlag{Name: flagModel, Aliases: []string{"m"}, Usage: "ONNX model, overrides the config"},
					&cli.PathFlag{Name: flagLabels, Aliases: []string{"l"}, Usage: "label file, overrides the config"},
					&cli.StringFlag{Name: flagBackend, Aliases: []string{"b"}, Usage: "execution provider, overrides the config"},
					&cli.Float64Flag{Name: flagConfidence, Usage: "confidence threshold, overrides the config"},
					&cli.StringSliceFlag{Name: flagFruit, Usage: "print the condition report for a fruit"},
					&cli.BoolFlag{Name: flagWatch, Usage: "keep running and restart the backend when the config file changes"},
					&cli.DurationFlag{Name: flagStats, Usage: "log pipeline stats at this interval, 0 disables"},
				},
				Action: detectAction,
			},
			{
				Name:      "benchmark",
				Usage:     "compare execution providers over a directory of frames",
				ArgsUsage: "<directory>",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "YAML detector config"},
					&cli.PathFlag{Name: flagModel, Aliases: []string{"m"}, Usage: "ONNX model, overrides the config"},
					&cli.PathFlag{Name: flagLabels, Aliases: []string{"l"}, Usage: "label file, overrides the config"},
					&cli.StringSliceFlag{Name: flagBackend, Aliases: []string{"b"}, Value: cli.NewStringSlice("cpu"), Usage: "execution providers to compare, in order"},
					&cli.IntFlag{Name: flagIterations, Value: 100, Usage: "measured frames per backend"},
					&cli.IntFlag{Name: flagWarmup, Value: 10, Usage: "unmeasured frames run before each backend"},
					&cli.PathFlag{Name: flagOutput, Aliases: []string{"o"}, Value: "benchmark_results", Usage: "directory for the JSON and CSV results"},
				},
				Action: benchmarkAction,
			},
			{
				Name:  "backends",
				Usage: "list the execution providers",
				Action: func(c *cli.Context) error {
					for _, b := range providers.Backends() {
						fmt.Fprintln(c.App.Writer, b)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func configFromFlags(c *cli.Context) (detector.Config, error) {
	cfg := detector.DefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "error reading config")
		}
		if cfg, err = detector.ParseConfig(data); err != nil {
			return cfg, err
		}
	}

	if v := c.Path(flagModel); v != "" {
		cfg.ModelPath = v
	}
	if v := c.Path(flagLabels); v != "" {
		cfg.LabelsPath = v
	}
	if v := c.String(flagBackend); v != "" && c.Command.Name == "detect" {
		backend, err := providers.NewConfig(v)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = backend
	}
	if c.IsSet(flagConfidence) {
		cfg.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}

	return cfg, cfg.Validate()
}

func detectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	input := c.Args().First()

	logger, err := newLogger(c.String(flagLogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	files, err := loadInput(input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no image files in %s", input)
	}

	out := newPrinter(c.App.Writer, logger)
	det, err := detector.New(cfg, out,
		detector.WithLogger(logger),
		detector.WithErrorReporter(out),
		detector.WithStatusReports(c.Duration(flagStats)),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := det.Close(); err != nil {
			logger.Warn("detector close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() error {
		if err := runFrames(ctx, det, out, files); err != nil {
			return err
		}
		frame, cumulative := det.Counts()
		fmt.Fprintln(c.App.Writer, detector.FormatSummary(frame, cumulative))
		totals := det.Aggregator().FruitTotals()
		for _, fruit := range c.StringSlice(flagFruit) {
			fmt.Fprintln(c.App.Writer, detector.FormatFruitCount(fruit, totals[fruit]))
			if totals[fruit] > 0 {
				fmt.Fprintln(c.App.Writer, detector.FormatFruitStatus(fruit, det.Aggregator().FruitStatus(fruit)))
			}
		}
		logStats(logger, det.Stats())
		return nil
	}

	if err := run(); err != nil {
		return err
	}
	if !c.Bool(flagWatch) {
		return nil
	}

	path := c.Path(flagConfig)
	if path == "" {
		return errors.New("--watch needs --config")
	}
	return watchConfig(ctx, path, logger, func(next detector.Config) {
		if err := det.Restart(next.Backend); err != nil {
			logger.Warn("restart rejected", zap.Error(err))
			return
		}
		if err := out.waitRestart(ctx); err != nil {
			return
		}
		if err := run(); err != nil {
			logger.Warn("rerun failed", zap.Error(err))
		}
	})
}

func loadInput(path string) ([]util.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading input")
	}
	if info.IsDir() {
		return util.LoadDirectoryImageFiles(path)
	}
	file, err := util.LoadImageFile(path)
	if err != nil {
		return nil, err
	}
	return []util.ImageFile{file}, nil
}

// runFrames submits files one at a time and waits for each to be processed, so no frame is
// replaced in the detector's slot.
func runFrames(ctx context.Context, det *detector.Detector, out *printer, files []util.ImageFile) error {
	for _, file := range files {
		frame, err := file.Decode()
		if err != nil {
			out.logger.Warn("skipping frame", zap.String("path", file.Path), zap.Error(err))
			continue
		}

		out.begin(file.Path)
		for {
			err = det.Detect(frame)
			if !errors.Is(err, detector.ErrRestarting) {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		if err != nil {
			return err
		}

		select {
		case <-out.processed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func logStats(logger *zap.Logger, stats profiler.Stats) {
	fields := []zap.Field{
		zap.Int64("frames", stats.Counters[profiler.CounterFrames]),
		zap.Int64("errors", stats.Counters[profiler.CounterErrors]),
	}
	for _, stage := range []string{profiler.StagePreprocess, profiler.StageInference, profiler.StageDecode, profiler.StageSuppress} {
		fields = append(fields, zap.Duration(stage, stats.Operations[stage].Mean))
	}
	logger.Info("pipeline stats", fields...)
}

func benchmarkAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}

	logger, err := newLogger(c.String(flagLogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	scenarios, err := benchmark.BackendScenarios(c.StringSlice(flagBackend), c.Int(flagIterations), c.Int(flagWarmup))
	if err != nil {
		return err
	}

	if len(scenarios) == 0 {
		return errors.New("no backends to benchmark")
	}
	// Load the first backend directly rather than restarting into it.
	cfg.Backend = scenarios[0].Backend
	suite := benchmark.NewSuite(cfg, c.Path(flagOutput), logger)
	for _, s := range scenarios {
		if err := suite.AddScenario(s); err != nil {
			return err
		}
	}
	if err := suite.LoadCorpus(c.Args().First()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := suite.Run(ctx)
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "%-10s %8.2f fps  %8s/frame  %d detections  %.2f%% errors\n",
			r.Scenario.Name, r.FramesPerSecond, r.AverageFrameDuration(), r.DetectionCount, r.ErrorRate*100)
	}
	if len(results) > 0 {
		jsonPath, csvPath, err := suite.SaveResults()
		if err != nil {
			return multierr.Append(runErr, err)
		}
		logger.Info("results saved", zap.String("json", jsonPath), zap.String("csv", csvPath))
	}
	return runErr
}
