// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-ripeness/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which the lower-confidence box is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// Suppress sorts detections by descending confidence and removes overlapping boxes.
//
// The sort is stable, so equal confidences keep their candidate order and the result is
// deterministic. The input slice is not modified.
//
// Arguments:
//   - detections: Decoded candidates in any order.
//   - config: NMS configuration.
//
// Returns:
//   - DetectionSet: The survivors, confidence-descending. Never nil.
func Suppress(detections []Detection, config NMSConfig) DetectionSet {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	return ApplyGreedyNMS(sorted, config)
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: NMS configuration.
//
// Returns:
//   - DetectionSet: The kept detections in input order. Never nil.
func ApplyGreedyNMS(detections []Detection, config NMSConfig) DetectionSet {
	n := len(detections)
	filtered := make(DetectionSet, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.ClassIndex != detections[j].ClassIndex {
				continue
			}

			// Suppress if IoU exceeds threshold.
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
