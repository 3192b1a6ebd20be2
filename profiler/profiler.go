// Package profiler - Stage timings and counters for the detection pipeline.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Stage names recorded by the detector.
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
	StageSuppress   = "suppress"
)

// Counter names recorded by the detector.
const (
	CounterFrames   = "frames"
	CounterDropped  = "dropped"
	CounterErrors   = "errors"
	CounterRestarts = "restarts"
)

// RuntimeProfiler tracks operation timings and counters. It is safe for concurrent use.
//
// Timings come from the injected clock, so tests can drive them with clock.NewMock().
type RuntimeProfiler struct {
	reportInterval time.Duration
	clock          clock.Clock
	logger         *zap.SugaredLogger

	mu             sync.RWMutex
	startTime      time.Time
	operationTimes map[string]*TimeTracker
	counters       map[string]int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	lastTime  time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often Start emits status reports (default: 10s).
	ReportInterval time.Duration
	// Clock is the time source (default: wall clock).
	Clock clock.Clock
	// Logger receives status reports (default: no-op).
	Logger *zap.Logger
}

// OperationStats is a snapshot of one TimeTracker.
type OperationStats struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	Last  time.Duration `json:"last"`
}

// Stats is a point-in-time snapshot of the profiler.
type Stats struct {
	Uptime     time.Duration             `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	Operations map[string]OperationStats `json:"operations"`
	Counters   map[string]int64          `json:"counters"`
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - *RuntimeProfiler: A configured profiler. Reporting starts only with Start.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		clock:          opts.Clock,
		logger:         opts.Logger.Sugar().Named("profiler"),
		startTime:      opts.Clock.Now(),
		operationTimes: make(map[string]*TimeTracker),
		counters:       make(map[string]int64),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func() time.Duration: Call when the operation completes; returns the recorded duration.
func (rp *RuntimeProfiler) StartOperation(name string) func() time.Duration {
	start := rp.clock.Now()
	return func() time.Duration {
		d := rp.clock.Since(start)
		rp.RecordOperation(name, d)
		return d
	}
}

// RecordOperation records the completion time of an operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operationTimes[name] = tracker
	}

	tracker.totalTime += duration
	tracker.lastTime = duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Increment adds delta to a named counter.
func (rp *RuntimeProfiler) Increment(name string, delta int64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.counters[name] += delta
}

// GetCurrentStats returns the current profiling statistics as a snapshot.
func (rp *RuntimeProfiler) GetCurrentStats() Stats {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	stats := Stats{
		Uptime:     rp.clock.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		Operations: make(map[string]OperationStats, len(rp.operationTimes)),
		Counters:   make(map[string]int64, len(rp.counters)),
	}

	for name, t := range rp.operationTimes {
		s := OperationStats{
			Count: t.count,
			Total: t.totalTime,
			Min:   t.minTime,
			Max:   t.maxTime,
			Last:  t.lastTime,
		}
		if t.count > 0 {
			s.Mean = t.totalTime / time.Duration(t.count)
		}
		stats.Operations[name] = s
	}
	for name, v := range rp.counters {
		stats.Counters[name] = v
	}

	return stats
}

// Start emits a status report every ReportInterval until Stop or ctx is done.
// Calling Start on a running profiler is a no-op.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	rp.mu.Lock()
	if rp.cancel != nil {
		rp.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	rp.cancel = cancel
	rp.mu.Unlock()

	ticker := rp.clock.Ticker(rp.reportInterval)

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rp.EmitStatusReport()
			}
		}
	}()
}

// Stop stops periodic reporting and waits for the reporter to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	cancel := rp.cancel
	rp.cancel = nil
	rp.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	rp.wg.Wait()
}

// EmitStatusReport logs the current stats.
func (rp *RuntimeProfiler) EmitStatusReport() {
	stats := rp.GetCurrentStats()

	names := make([]string, 0, len(stats.Operations))
	for name := range stats.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := []interface{}{
		"uptime", stats.Uptime.Truncate(time.Millisecond),
		"goroutines", stats.Goroutines,
	}
	for _, name := range names {
		op := stats.Operations[name]
		fields = append(fields, name, fmt.Sprintf("avg=%v min=%v max=%v count=%d",
			op.Mean.Truncate(time.Microsecond),
			op.Min.Truncate(time.Microsecond),
			op.Max.Truncate(time.Microsecond),
			op.Count))
	}
	for name, v := range stats.Counters {
		fields = append(fields, name, v)
	}

	rp.logger.Infow("status report", fields...)
}
