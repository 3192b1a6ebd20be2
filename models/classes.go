// Package models - Model companion data: class labels and embedded metadata.
package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// LabelTable maps class indices to names. The index of a name is its line number in the
// label file, starting at zero.
type LabelTable struct {
	classes   []OutputClass
	nameToIdx map[string]int
}

// NewLabelTable builds a table from names in index order.
//
// Returns:
//   - *LabelTable: The table.
//   - error: An error if names is empty or contains a blank name.
func NewLabelTable(names []string) (*LabelTable, error) {
	if len(names) == 0 {
		return nil, errors.New("label table is empty")
	}

	t := &LabelTable{
		classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("label %d is blank", i)
		}
		t.classes[i] = OutputClass{Index: i, Name: name}
		if _, dup := t.nameToIdx[name]; !dup {
			t.nameToIdx[name] = i
		}
	}
	return t, nil
}

// ParseLabels reads newline-delimited labels. Trailing blank lines are ignored.
//
// A file with a single line is also accepted as a comma- or space-separated list.
func ParseLabels(r io.Reader) (*LabelTable, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading labels")
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 1 {
		line := strings.TrimSpace(lines[0])
		switch {
		case strings.Contains(line, ","):
			lines = strings.Split(line, ",")
		case strings.Contains(line, " "):
			lines = strings.Fields(line)
		}
	}

	return NewLabelTable(lines)
}

// LoadLabels reads a label file from disk.
func LoadLabels(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening label file")
	}
	defer f.Close()

	return ParseLabels(f)
}

// Len returns the number of classes.
func (t *LabelTable) Len() int {
	return len(t.classes)
}

// Name returns the label for a class index. Indices outside the table yield "class_<n>".
func (t *LabelTable) Name(idx int) string {
	if idx < 0 || idx >= len(t.classes) {
		return fmt.Sprintf("class_%d", idx)
	}
	return t.classes[idx].Name
}

// Index returns the first class index carrying name.
func (t *LabelTable) Index(name string) (int, bool) {
	idx, ok := t.nameToIdx[name]
	return idx, ok
}

// Names returns the labels in index order.
func (t *LabelTable) Names() []string {
	names := make([]string, len(t.classes))
	for i, c := range t.classes {
		names[i] = c.Name
	}
	return names
}
