// Package detector - Runs the fruit detection pipeline on a single worker behind a
// fire-and-forget API.
package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/nvr-ai/go-ripeness/models"
	"github.com/nvr-ai/go-ripeness/models/model/preprocess"
	"github.com/nvr-ai/go-ripeness/models/postprocess"
	"github.com/nvr-ai/go-ripeness/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Detector.
type State int

const (
	// StateIdle means the worker is waiting for a frame.
	StateIdle State = iota
	// StateProcessing means a frame is in flight.
	StateProcessing
	// StateRestarting means a backend restart is queued or running. Frames are dropped.
	StateRestarting
	// StateUnloaded means the last restart failed. Frames are dropped until the next Restart.
	StateUnloaded
	// StateClosed is terminal.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateRestarting:
		return "restarting"
	case StateUnloaded:
		return "unloaded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener receives results. Calls come from the worker goroutine, one at a time, in the
// order frames were processed.
//
// Callbacks must not call Close: Close waits for the worker, which is blocked in the
// callback. Call it from another goroutine instead.
type Listener interface {
	// OnDetect is called with a non-empty result and the time the pipeline took.
	OnDetect(set postprocess.DetectionSet, inferenceTimeMillis int64)
	// OnEmptyDetect is called for frames without detections, at most once per EmptyThrottle.
	OnEmptyDetect()
}

// CountsListener is implemented by listeners that want label counts after every frame.
// OnCounts is the last callback for a successful frame, after OnDetect or OnEmptyDetect.
type CountsListener interface {
	OnCounts(frame, cumulative LabelCounts)
}

// RestartListener is implemented by listeners that want to know when a restart succeeded.
type RestartListener interface {
	OnRestart(backend providers.Config)
}

// Detector owns the pipeline and the worker that runs it.
type Detector struct {
	cfg          Config
	listener     Listener
	reporter     ErrorReporter
	logger       *zap.SugaredLogger
	clock        clock.Clock
	labels       *models.LabelTable
	preprocessor *preprocess.Preprocessor
	decode       postprocess.DecodeOptions
	aggregator   *Aggregator
	profiler     *profiler.RuntimeProfiler
	queue        *frameQueue

	// Owned by the worker.
	engine    *inference.Engine
	lastEmpty time.Time
	hasEmpty  bool

	mu         sync.Mutex
	processing bool
	restarts   int
	unloaded   bool
	closed     bool
	backend    providers.Config

	done chan struct{}
}

// New loads the model and labels and starts the worker.
//
// Arguments:
//   - cfg: The detector configuration.
//   - listener: Receives results.
//   - opts: Optional collaborators.
//
// Returns:
//   - *Detector: A running detector.
//   - error: A *inference.LoadError if the configuration, labels, or model cannot be loaded.
//     The error is also passed to the ErrorReporter.
func New(cfg Config, listener Listener, opts ...Option) (*Detector, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Detector{
		listener: listener,
		reporter: o.reporter,
		logger:   o.logger.Sugar().Named("detector"),
		clock:    o.clock,
		queue:    newFrameQueue(),
		done:     make(chan struct{}),
	}

	if err := d.load(cfg, o); err != nil {
		d.report(err)
		return nil, err
	}

	d.logger.Infow("detector ready",
		"model", d.cfg.ModelPath,
		"backend", d.backend.String(),
		"classes", d.labels.Len(),
		"input_shape", d.engine.InputShape(),
	)

	if o.reportEvery > 0 {
		d.profiler.Start(context.Background())
	}
	go d.run()
	return d, nil
}

func (d *Detector) load(cfg Config, o options) error {
	if d.listener == nil {
		return &inference.LoadError{Source: "listener", Cause: errors.New("listener is nil")}
	}
	if err := cfg.Validate(); err != nil {
		return &inference.LoadError{Source: "config", Cause: err}
	}

	var metaNames []string
	if cfg.UseModelMetadata {
		meta, err := o.readMetadata(cfg.LibraryPath, cfg.ModelPath)
		if err != nil {
			return &inference.LoadError{Source: cfg.ModelPath, Cause: err}
		}
		cfg = applyMetadata(cfg, meta)
		metaNames = meta.Names
		d.logger.Debugw("model metadata applied", "producer", meta.Producer, "task", meta.Task)
	}
	d.cfg = cfg

	var err error
	switch {
	case cfg.LabelsPath != "":
		d.labels, err = models.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return &inference.LoadError{Source: cfg.LabelsPath, Cause: err}
		}
	case len(metaNames) > 0:
		d.labels, err = models.NewLabelTable(metaNames)
		if err != nil {
			return &inference.LoadError{Source: cfg.ModelPath, Cause: err}
		}
	default:
		return &inference.LoadError{Source: cfg.ModelPath, Cause: errors.New("model metadata carries no class names")}
	}

	modelConfig, err := cfg.Preprocess.ModelConfig()
	if err != nil {
		return &inference.LoadError{Source: "config", Cause: err}
	}
	if d.preprocessor, err = preprocess.NewPreprocessor(modelConfig); err != nil {
		return &inference.LoadError{Source: "config", Cause: err}
	}
	if d.decode, err = cfg.Decode.Options(); err != nil {
		return &inference.LoadError{Source: "config", Cause: err}
	}

	factory := o.factory
	if factory == nil {
		factory = inference.ONNXSessionFactory{
			LibraryPath: cfg.LibraryPath,
			InputSize:   cfg.InputSize.Point(),
			Layout: inference.InputLayout{
				ChannelsLast: modelConfig.ChannelOrder == preprocess.ChannelOrderHWC,
				Channels:     modelConfig.Channels(),
			},
		}
	}

	model, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return &inference.LoadError{Source: cfg.ModelPath, Backend: cfg.Backend.Backend, Cause: err}
	}
	if d.engine, err = inference.Load(factory, model, cfg.Backend); err != nil {
		return err
	}

	d.backend = cfg.Backend
	d.aggregator = NewAggregator()
	d.profiler = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: o.reportEvery,
		Clock:          o.clock,
		Logger:         o.logger,
	})
	return nil
}

// applyMetadata lets values embedded in the model override the configured ones.
func applyMetadata(cfg Config, meta models.Metadata) Config {
	if meta.InputSize.X > 0 && meta.InputSize.Y > 0 {
		cfg.InputSize = Size{Width: meta.InputSize.X, Height: meta.InputSize.Y}
	}
	if meta.Confidence > 0 {
		cfg.ConfidenceThreshold = meta.Confidence
	}
	if meta.IoU > 0 {
		cfg.NMS.IoUThreshold = meta.IoU
	}
	return cfg
}

// Detect submits a frame. It never blocks on the pipeline.
//
// Returns:
//   - error: nil if the frame was queued, ErrRestarting or ErrUnloaded if it was dropped,
//     ErrClosed after Close, or a validation error for an unusable frame.
func (d *Detector) Detect(frame images.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return ErrClosed
	case d.restarts > 0:
		d.profiler.Increment(profiler.CounterDropped, 1)
		return ErrRestarting
	case d.unloaded:
		d.profiler.Increment(profiler.CounterDropped, 1)
		return ErrUnloaded
	}

	if err := frame.Validate(); err != nil {
		return err
	}
	if d.queue.PutFrame(frame) {
		d.profiler.Increment(profiler.CounterDropped, 1)
	}
	return nil
}

// Restart queues a rebuild of the engine for backend behind the in-flight frame.
//
// A pending frame is discarded, and frames submitted until the rebuild finishes are dropped.
// The outcome is reported asynchronously: a *RestartError to the ErrorReporter on failure,
// RestartListener.OnRestart on success.
//
// Returns:
//   - error: ErrClosed after Close, or the backend validation error.
func (d *Detector) Restart(backend providers.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := backend.Validate(); err != nil {
		return errors.Wrap(err, "invalid backend")
	}

	d.restarts++
	if d.queue.PutControl(task{kind: taskRestart, backend: backend}) {
		d.profiler.Increment(profiler.CounterDropped, 1)
	}
	return nil
}

// Close waits for the in-flight frame and any queued restarts, releases the engine, and
// stops the worker. A pending frame is discarded. Close must not be called from a listener
// or ErrorReporter callback; it would wait on itself.
//
// Returns:
//   - error: ErrClosed if already closed, or the error from releasing the engine.
func (d *Detector) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	done := make(chan error, 1)
	if d.queue.PutControl(task{kind: taskClose, done: done}) {
		d.profiler.Increment(profiler.CounterDropped, 1)
	}
	d.mu.Unlock()

	err := <-done
	<-d.done
	return err
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return StateClosed
	case d.restarts > 0:
		return StateRestarting
	case d.unloaded:
		return StateUnloaded
	case d.processing:
		return StateProcessing
	default:
		return StateIdle
	}
}

// Backend returns the backend of the last successful load or restart.
func (d *Detector) Backend() providers.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend
}

// Counts returns copies of the latest frame and cumulative label counts.
func (d *Detector) Counts() (frame, cumulative LabelCounts) {
	return d.aggregator.Frame(), d.aggregator.Cumulative()
}

// Aggregator exposes the counts for fruit status queries.
func (d *Detector) Aggregator() *Aggregator {
	return d.aggregator
}

// Stats returns stage timings and frame counters.
func (d *Detector) Stats() profiler.Stats {
	return d.profiler.GetCurrentStats()
}

// Labels returns the class labels in index order.
func (d *Detector) Labels() []string {
	return d.labels.Names()
}

func (d *Detector) run() {
	defer close(d.done)

	for {
		t := d.queue.Next()
		switch t.kind {
		case taskFrame:
			d.process(t.frame)
		case taskRestart:
			d.restart(t.backend)
		case taskClose:
			t.done <- d.shutdown()
			return
		}
	}
}

func (d *Detector) process(frame images.Frame) {
	d.setProcessing(true)
	defer d.setProcessing(false)

	d.profiler.Increment(profiler.CounterFrames, 1)

	set, elapsed, err := d.runPipeline(frame)
	if err != nil {
		d.profiler.Increment(profiler.CounterErrors, 1)
		d.logger.Warnw("frame failed", "error", err)
		d.aggregator.Observe(nil)
		d.notifyEmpty()
		d.report(err)
		return
	}

	obs := d.aggregator.Observe(set)
	if obs.Empty {
		d.notifyEmpty()
	} else {
		d.safeCall("OnDetect", func() { d.listener.OnDetect(set, elapsed.Milliseconds()) })
	}

	if cl, ok := d.listener.(CountsListener); ok {
		d.safeCall("OnCounts", func() { cl.OnCounts(obs.Frame, obs.Cumulative) })
	}
}

// runPipeline runs every stage for one frame. A panic in any stage becomes an
// *inference.InferenceError for that stage.
func (d *Detector) runPipeline(frame images.Frame) (set postprocess.DetectionSet, elapsed time.Duration, err error) {
	stage := profiler.StagePreprocess
	defer func() {
		if r := recover(); r != nil {
			err = &inference.InferenceError{Stage: stage, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := d.clock.Now()

	done := d.profiler.StartOperation(stage)
	input, box, err := d.preprocessor.Prepare(frame, d.inputSize())
	done()
	if err != nil {
		return nil, 0, &inference.InferenceError{Stage: stage, Cause: err}
	}

	stage = profiler.StageInference
	done = d.profiler.StartOperation(stage)
	output, err := d.engine.Infer(input)
	done()
	if err != nil {
		var ie *inference.InferenceError
		if errors.As(err, &ie) {
			return nil, 0, err
		}
		return nil, 0, &inference.InferenceError{Stage: stage, Cause: err}
	}

	stage = profiler.StageDecode
	done = d.profiler.StartOperation(stage)
	candidates, err := postprocess.Decode(output, d.labels, d.cfg.ConfidenceThreshold, box, d.decode)
	done()
	if err != nil {
		return nil, 0, &inference.InferenceError{Stage: stage, Cause: err}
	}

	stage = profiler.StageSuppress
	done = d.profiler.StartOperation(stage)
	set = postprocess.Suppress(candidates, d.cfg.NMS)
	done()

	return set, d.clock.Since(start), nil
}

// inputSize returns the model's spatial input size, falling back to the configured size.
func (d *Detector) inputSize() image.Point {
	shape := d.engine.InputShape()
	if len(shape) == 4 {
		if d.preprocessor.Config().ChannelOrder == preprocess.ChannelOrderHWC {
			return image.Pt(shape[2], shape[1])
		}
		return image.Pt(shape[3], shape[2])
	}
	if !d.cfg.InputSize.IsZero() {
		return d.cfg.InputSize.Point()
	}
	return inference.DefaultInputSize
}

func (d *Detector) notifyEmpty() {
	now := d.clock.Now()
	if d.hasEmpty && now.Sub(d.lastEmpty) <= d.cfg.EmptyThrottle {
		return
	}
	d.hasEmpty = true
	d.lastEmpty = now
	d.safeCall("OnEmptyDetect", d.listener.OnEmptyDetect)
}

func (d *Detector) restart(backend providers.Config) {
	d.logger.Infow("restarting engine", "from", d.engine.Backend().String(), "to", backend.String())

	// An unreadable model still tears down the old session: the engine ends up unloaded.
	model, readErr := os.ReadFile(d.cfg.ModelPath)
	err := d.engine.Rebuild(model, backend)
	if readErr != nil {
		err = &inference.LoadError{Source: d.cfg.ModelPath, Backend: backend.Backend, Cause: readErr}
	}

	d.mu.Lock()
	d.restarts--
	d.unloaded = err != nil
	if err == nil {
		d.backend = backend
	}
	d.mu.Unlock()

	if err != nil {
		rerr := &RestartError{Backend: backend, Cause: err}
		d.logger.Errorw("restart failed", "backend", backend.String(), "error", err)
		d.report(rerr)
		return
	}

	d.profiler.Increment(profiler.CounterRestarts, 1)
	d.logger.Infow("engine restarted", "backend", backend.String(), "input_shape", d.engine.InputShape())
	if rl, ok := d.listener.(RestartListener); ok {
		d.safeCall("OnRestart", func() { rl.OnRestart(backend) })
	}
}

func (d *Detector) shutdown() error {
	d.profiler.Stop()
	err := d.engine.Close()
	if errors.Is(err, inference.ErrEngineClosed) {
		err = nil
	}
	stats := d.profiler.GetCurrentStats()
	d.logger.Infow("detector closed",
		"frames", stats.Counters[profiler.CounterFrames],
		"dropped", stats.Counters[profiler.CounterDropped],
		"errors", stats.Counters[profiler.CounterErrors],
	)
	return err
}

func (d *Detector) setProcessing(v bool) {
	d.mu.Lock()
	d.processing = v
	d.mu.Unlock()
}

func (d *Detector) report(err error) {
	d.safeCall("OnError", func() { d.reporter.OnError(err) })
}

// safeCall runs a callback on the worker, logging instead of crashing if it panics.
func (d *Detector) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}
