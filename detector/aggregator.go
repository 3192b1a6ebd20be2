package detector

import (
	"sync"

	"github.com/nvr-ai/go-ripeness/models/postprocess"
)

// LabelCounts maps a class label to how many times it was detected.
type LabelCounts map[string]int

// Clone returns a copy of the counts. The copy of a nil map is an empty map.
func (c LabelCounts) Clone() LabelCounts {
	out := make(LabelCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total returns the sum of all counts.
func (c LabelCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Observation is what the aggregator reports for one processed frame.
type Observation struct {
	// Frame counts labels in this frame only.
	Frame LabelCounts
	// Cumulative counts labels over the aggregator's lifetime.
	Cumulative LabelCounts
	// Empty is set when the frame had no detections.
	Empty bool
}

// Aggregator keeps per-frame and cumulative label counts.
//
// Observe is called from the detector's worker only. Readers take snapshots under the lock
// and never see a half-applied frame.
type Aggregator struct {
	mu         sync.RWMutex
	frame      LabelCounts
	cumulative LabelCounts
}

// NewAggregator returns an aggregator with no counts.
func NewAggregator() *Aggregator {
	return &Aggregator{
		frame:      LabelCounts{},
		cumulative: LabelCounts{},
	}
}

// Observe records one frame's detections.
//
// The frame counts are replaced by a tally of set. Every detection adds one to the cumulative
// count of its label. An empty set clears the frame counts and leaves the cumulative counts
// alone.
//
// Arguments:
//   - set: The suppressed detections of the frame.
//
// Returns:
//   - Observation: Copies of the counts after the update.
func (a *Aggregator) Observe(set postprocess.DetectionSet) Observation {
	frame := make(LabelCounts, len(set))
	for _, d := range set {
		frame[d.ClassName]++
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.frame = frame
	for label, n := range frame {
		a.cumulative[label] += n
	}

	return Observation{
		Frame:      a.frame.Clone(),
		Cumulative: a.cumulative.Clone(),
		Empty:      len(set) == 0,
	}
}

// Frame returns a copy of the latest frame's counts.
func (a *Aggregator) Frame() LabelCounts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frame.Clone()
}

// Cumulative returns a copy of the lifetime counts.
func (a *Aggregator) Cumulative() LabelCounts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cumulative.Clone()
}

// FruitStatus returns the cumulative condition breakdown for one fruit.
func (a *Aggregator) FruitStatus(fruit string) FruitStatus {
	return StatusOf(a.Cumulative(), fruit)
}

// FruitTotals returns cumulative counts summed by fruit.
func (a *Aggregator) FruitTotals() map[string]int {
	return TotalsByFruit(a.Cumulative())
}
