package detector

import (
	"fmt"
	"sort"
	"strings"
)

// Conditions a fruit label can carry after its fruit name, as in "apple-ripe".
const (
	ConditionRipe   = "ripe"
	ConditionUnripe = "unripe"
	ConditionRotten = "rotten"
	ConditionDefect = "defect"
)

// FruitStatus is the number of detections of one fruit per condition.
type FruitStatus struct {
	Ripe   int `json:"ripe"`
	Unripe int `json:"unripe"`
	Rotten int `json:"rotten"`
	Defect int `json:"defect"`
	// Other counts labels of the fruit with an unknown or missing condition.
	Other int `json:"other"`
}

// Total returns the number of detections of the fruit.
func (s FruitStatus) Total() int {
	return s.Ripe + s.Unripe + s.Rotten + s.Defect + s.Other
}

// SplitLabel splits "apple-ripe" into "apple" and "ripe". A label without a dash is all fruit.
func SplitLabel(label string) (fruit, condition string) {
	i := strings.LastIndex(label, "-")
	if i < 0 {
		return label, ""
	}
	return label[:i], label[i+1:]
}

// StatusOf sums counts into a condition breakdown for fruit.
func StatusOf(counts LabelCounts, fruit string) FruitStatus {
	var s FruitStatus
	for label, n := range counts {
		f, condition := SplitLabel(label)
		if f != fruit {
			continue
		}
		switch condition {
		case ConditionRipe:
			s.Ripe += n
		case ConditionUnripe:
			s.Unripe += n
		case ConditionRotten:
			s.Rotten += n
		case ConditionDefect:
			s.Defect += n
		default:
			s.Other += n
		}
	}
	return s
}

// TotalsByFruit sums counts by the fruit part of each label.
func TotalsByFruit(counts LabelCounts) map[string]int {
	totals := make(map[string]int)
	for label, n := range counts {
		fruit, _ := SplitLabel(label)
		totals[fruit] += n
	}
	return totals
}

// FormatSummary renders the frame and cumulative counts as the announcement text.
//
// @example
//
//	Captured fruits:
//	apple-ripe: 1
//
//	Total fruits:
//	apple-ripe: 3
func FormatSummary(frame, cumulative LabelCounts) string {
	if len(frame) == 0 {
		return "No fruits detected"
	}
	return "Captured fruits:\n" + formatCounts(frame) + "\n\nTotal fruits:\n" + formatCounts(cumulative)
}

// FormatFruitCount renders the cumulative count of one fruit.
func FormatFruitCount(fruit string, count int) string {
	if count <= 0 {
		return fmt.Sprintf("No %s detected", fruit)
	}
	return fmt.Sprintf("%s count: %d", fruit, count)
}

// FormatFruitStatus renders the condition breakdown of one fruit.
func FormatFruitStatus(fruit string, s FruitStatus) string {
	if s.Ripe == 0 && s.Unripe == 0 && s.Rotten == 0 && s.Defect == 0 {
		return fmt.Sprintf("No %s detected", fruit)
	}
	return fmt.Sprintf("%s status:\nRipe: %d\nUnripe: %d\nRotten: %d\nDefect: %d",
		fruit, s.Ripe, s.Unripe, s.Rotten, s.Defect)
}

func formatCounts(c LabelCounts) string {
	labels := make([]string, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	lines := make([]string, len(labels))
	for i, label := range labels {
		lines[i] = fmt.Sprintf("%s: %d", label, c[label])
	}
	return strings.Join(lines, "\n")
}
