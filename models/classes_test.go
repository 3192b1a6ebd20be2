package models

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "newline delimited",
			input: "apple-ripe\napple-unripe\nbanana-rotten\n",
			want:  []string{"apple-ripe", "apple-unripe", "banana-rotten"},
		},
		{
			name:  "trailing blank lines and CRLF",
			input: "apple-ripe\r\nbanana-ripe\r\n\r\n\n",
			want:  []string{"apple-ripe", "banana-ripe"},
		},
		{
			name:  "single comma separated line",
			input: "apple-ripe, apple-defect,banana-unripe",
			want:  []string{"apple-ripe", "apple-defect", "banana-unripe"},
		},
		{
			name:  "single space separated line",
			input: "apple-ripe banana-ripe",
			want:  []string{"apple-ripe", "banana-ripe"},
		},
		{
			name:  "single label",
			input: "apple-ripe\n",
			want:  []string{"apple-ripe"},
		},
		{
			name:    "empty",
			input:   "\n\n",
			wantErr: true,
		},
		{
			name:    "blank line in the middle",
			input:   "apple-ripe\n\nbanana-ripe\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseLabels(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, table.Names())
			assert.Equal(t, len(tt.want), table.Len())
		})
	}
}

func TestLabelTable_Lookup(t *testing.T) {
	table, err := NewLabelTable([]string{"apple-ripe", "apple-rotten"})
	require.NoError(t, err)

	assert.Equal(t, "apple-rotten", table.Name(1))
	assert.Equal(t, "class_7", table.Name(7))
	assert.Equal(t, "class_-1", table.Name(-1))

	idx, ok := table.Index("apple-ripe")
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = table.Index("pear-ripe")
	assert.False(t, ok)
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("apple-ripe\nbanana-defect\n"), 0o600))

	table, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata(map[string]string{
		"task":  "detect",
		"names": "{0: 'apple-ripe', 1: \"apple-rotten\", 2: 'banana-ripe'}",
		"imgsz": "[480, 640]",
		"conf":  "0.3",
		"iou":   " 0.45 ",
	})
	require.NoError(t, err)

	assert.Equal(t, "detect", meta.Task)
	assert.Equal(t, []string{"apple-ripe", "apple-rotten", "banana-ripe"}, meta.Names)
	assert.Equal(t, image.Point{X: 640, Y: 480}, meta.InputSize)
	assert.InDelta(t, 0.3, meta.Confidence, 1e-6)
	assert.InDelta(t, 0.45, meta.IoU, 1e-6)

	meta, err = ParseMetadata(map[string]string{"imgsz": "320"})
	require.NoError(t, err)
	assert.Equal(t, image.Point{X: 320, Y: 320}, meta.InputSize)
	assert.Nil(t, meta.Names)

	_, err = ParseMetadata(map[string]string{"names": "{0: 'a', 2: 'c'}"})
	assert.Error(t, err)

	_, err = ParseMetadata(map[string]string{"conf": "high"})
	assert.Error(t, err)

	_, err = ParseMetadata(map[string]string{"imgsz": "[1, 2, 3]"})
	assert.Error(t, err)
}
