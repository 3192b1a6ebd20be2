// Package benchmark compares execution providers by running a frame corpus through the detector.
package benchmark

import (
	"runtime"
	"time"
)

// PerformanceMetrics captures the measurements of one scenario run.
type PerformanceMetrics struct {
	Scenario            Scenario      `json:"scenario"`
	Timestamp           time.Time     `json:"timestamp"`
	Frames              int           `json:"frames"`
	TotalDuration       time.Duration `json:"total_duration"`
	PreprocessDuration  time.Duration `json:"preprocess_duration"`
	InferenceDuration   time.Duration `json:"inference_duration"`
	PostProcessDuration time.Duration `json:"post_process_duration"`
	FramesPerSecond     float64       `json:"frames_per_second"`
	MemoryStats         MemoryMetrics `json:"memory_stats"`
	DetectionCount      int           `json:"detection_count"`
	ErrorRate           float64       `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// memoryDelta reports the heap in use after a run and what the run allocated.
func memoryDelta(before, after *runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      after.Alloc,
		TotalAllocBytes: after.TotalAlloc - before.TotalAlloc,
		SysBytes:        after.Sys,
		NumGC:           after.NumGC - before.NumGC,
		HeapAllocBytes:  after.HeapAlloc,
		HeapSysBytes:    after.HeapSys,
	}
}

// AverageFrameDuration returns the mean wall time per frame.
func (m PerformanceMetrics) AverageFrameDuration() time.Duration {
	if m.Frames == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Frames)
}
