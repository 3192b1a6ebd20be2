package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/nvr-ai/go-ripeness/models/postprocess"
	"github.com/nvr-ai/go-ripeness/profiler"
	"github.com/nvr-ai/go-ripeness/util"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Suite runs scenarios against one detector, switching its backend between scenarios.
type Suite struct {
	cfg       detector.Config
	opts      []detector.Option
	outputDir string
	logger    *zap.Logger

	mu        sync.RWMutex
	frames    []images.Frame
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuite creates a suite for the detector described by cfg. Results are saved under outputDir.
func NewSuite(cfg detector.Config, outputDir string, logger *zap.Logger, opts ...detector.Option) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{
		cfg:       cfg,
		opts:      opts,
		outputDir: outputDir,
		logger:    logger.Named("benchmark"),
	}
}

// AddScenario adds a scenario to the suite
func (s *Suite) AddScenario(scenario Scenario) error {
	if err := scenario.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios = append(s.scenarios, scenario)
	return nil
}

// LoadCorpus decodes every image in dir, in frame order.
func (s *Suite) LoadCorpus(dir string) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	frames := make([]images.Frame, 0, len(files))
	for _, f := range files {
		frame, err := f.Decode()
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return errors.Errorf("no images in %s", dir)
	}
	s.SetFrames(frames)
	return nil
}

// SetFrames replaces the corpus.
func (s *Suite) SetFrames(frames []images.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = frames
}

// Run executes every scenario in order and returns their metrics.
func (s *Suite) Run(ctx context.Context) (results []PerformanceMetrics, err error) {
	s.mu.RLock()
	frames := s.frames
	scenarios := append([]Scenario(nil), s.scenarios...)
	s.mu.RUnlock()

	if len(frames) == 0 {
		return nil, errors.New("no frames to benchmark")
	}
	if len(scenarios) == 0 {
		return nil, errors.New("no scenarios to run")
	}

	c := newCollector()
	opts := append([]detector.Option{detector.WithErrorReporter(c), detector.WithLogger(s.logger)}, s.opts...)
	det, err := detector.New(s.cfg, c, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		multierr.AppendInto(&err, det.Close())
	}()

	for _, scenario := range scenarios {
		s.logger.Info("running scenario", zap.String("scenario", scenario.Name), zap.Stringer("backend", scenario.Backend))
		m, err := s.runScenario(ctx, det, c, frames, scenario)
		if err != nil {
			return results, errors.Wrapf(err, "scenario %s", scenario.Name)
		}
		s.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", m.FramesPerSecond),
			zap.Float64("error_rate", m.ErrorRate))

		s.mu.Lock()
		s.results = append(s.results, m)
		s.mu.Unlock()
		results = append(results, m)
	}
	return results, nil
}

func (s *Suite) runScenario(
	ctx context.Context,
	det *detector.Detector,
	c *collector,
	frames []images.Frame,
	scenario Scenario,
) (PerformanceMetrics, error) {
	m := PerformanceMetrics{Scenario: scenario, Timestamp: time.Now()}

	if !reflect.DeepEqual(det.Backend(), scenario.Backend) {
		if err := det.Restart(scenario.Backend); err != nil {
			return m, err
		}
		if err := c.waitRestart(ctx); err != nil {
			return m, err
		}
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, err := c.detect(ctx, det, frames[i%len(frames)]); err != nil {
			return m, err
		}
	}

	runtime.GC()
	var memBefore, memAfter runtime.MemStats
	runtime.ReadMemStats(&memBefore)
	before := det.Stats()

	failures := 0
	start := time.Now()
	for i := 0; i < scenario.Iterations; i++ {
		res, err := c.detect(ctx, det, frames[i%len(frames)])
		if err != nil {
			return m, err
		}
		if res.err != nil {
			failures++
			continue
		}
		m.DetectionCount += res.detections
	}
	m.TotalDuration = time.Since(start)

	runtime.ReadMemStats(&memAfter)
	after := det.Stats()

	m.Frames = scenario.Iterations
	m.MemoryStats = memoryDelta(&memBefore, &memAfter)
	m.PreprocessDuration = stageTotal(before, after, profiler.StagePreprocess)
	m.InferenceDuration = stageTotal(before, after, profiler.StageInference)
	m.PostProcessDuration = stageTotal(before, after, profiler.StageDecode) +
		stageTotal(before, after, profiler.StageSuppress)
	m.ErrorRate = float64(failures) / float64(scenario.Iterations)
	if m.TotalDuration > 0 {
		m.FramesPerSecond = float64(scenario.Iterations) / m.TotalDuration.Seconds()
	}
	return m, nil
}

func stageTotal(before, after profiler.Stats, stage string) time.Duration {
	return after.Operations[stage].Total - before.Operations[stage].Total
}

// Results returns the metrics of every completed scenario.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]PerformanceMetrics, len(s.results))
	copy(results, s.results)
	return results
}

// SaveResults writes the results as JSON and a CSV summary and returns both paths.
func (s *Suite) SaveResults() (jsonPath, csvPath string, err error) {
	results := s.Results()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	jsonPath = filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	csvPath = filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "failed to write results file")
	}
	if err := saveSummaryCSV(csvPath, results); err != nil {
		return "", "", errors.Wrap(err, "failed to save summary CSV")
	}
	return jsonPath, csvPath, nil
}

func saveSummaryCSV(path string, results []PerformanceMetrics) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		multierr.AppendInto(&err, file.Close())
	}()

	w := csv.NewWriter(file)
	if err := w.Write([]string{
		"scenario", "backend", "fps", "total_ms", "preprocess_ms", "inference_ms", "postprocess_ms",
		"alloc_mb", "detections", "error_rate",
	}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{
			r.Scenario.Name,
			string(r.Scenario.Backend.Backend),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			millis(r.TotalDuration),
			millis(r.PreprocessDuration),
			millis(r.InferenceDuration),
			millis(r.PostProcessDuration),
			strconv.FormatFloat(float64(r.MemoryStats.TotalAllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Nanoseconds())/1e6, 'f', 2, 64)
}

type outcome struct {
	detections int
	err        error
}

// collector turns detector callbacks into per-frame outcomes.
type collector struct {
	results   chan outcome
	restarted chan error
}

func newCollector() *collector {
	return &collector{
		results:   make(chan outcome, 1),
		restarted: make(chan error, 1),
	}
}

func (c *collector) OnDetect(postprocess.DetectionSet, int64) {}

func (c *collector) OnEmptyDetect() {}

func (c *collector) OnCounts(frame, _ detector.LabelCounts) {
	send(c.results, outcome{detections: frame.Total()})
}

func (c *collector) OnRestart(providers.Config) {
	send(c.restarted, nil)
}

func (c *collector) OnError(err error) {
	var (
		ie *inference.InferenceError
		re *detector.RestartError
	)
	switch {
	case errors.As(err, &ie):
		send(c.results, outcome{err: err})
	case errors.As(err, &re):
		send(c.restarted, err)
	}
}

// detect submits one frame and waits for its outcome. A failed frame is an outcome, not an error.
func (c *collector) detect(ctx context.Context, det *detector.Detector, frame images.Frame) (outcome, error) {
	if err := det.Detect(frame); err != nil {
		return outcome{}, err
	}
	select {
	case res := <-c.results:
		return res, nil
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	}
}

func (c *collector) waitRestart(ctx context.Context) error {
	select {
	case err := <-c.restarted:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func send[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
