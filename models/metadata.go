package models

import (
	"image"
	"regexp"
	"sort"
	"strings"

	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	ort "github.com/yalue/onnxruntime_go"
)

// Metadata is the subset of a model's custom metadata the pipeline can use.
// Zero values mean the key was absent.
type Metadata struct {
	// Producer is the tool that exported the model.
	Producer string
	// Task is the model task, "detect" for detectors.
	Task string
	// Names are the class labels in index order.
	Names []string
	// InputSize is the training input size.
	InputSize image.Point
	// Confidence is a suggested score threshold.
	Confidence float32
	// IoU is a suggested suppression threshold.
	IoU float32
}

var (
	namePattern = regexp.MustCompile(`(\d+)\s*:\s*(?:'([^']*)'|"([^"]*)")`)
	intPattern  = regexp.MustCompile(`\d+`)
)

// ReadMetadata reads the custom metadata embedded in an ONNX model file.
//
// Arguments:
//   - libPath: The ONNX Runtime shared library, empty for the platform default.
//   - modelPath: The model file.
//
// Returns:
//   - Metadata: The parsed metadata.
//   - error: An error if the runtime or the model cannot be read, or a value is malformed.
func ReadMetadata(libPath, modelPath string) (Metadata, error) {
	if err := providers.InitializeEnvironment(libPath); err != nil {
		return Metadata{}, err
	}

	md, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "error reading model metadata")
	}
	defer md.Destroy()

	keys, err := md.GetCustomMetadataMapKeys()
	if err != nil {
		return Metadata{}, errors.Wrap(err, "error listing metadata keys")
	}

	custom := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := md.LookupCustomMetadataMap(k)
		if err != nil {
			return Metadata{}, errors.Wrapf(err, "error reading metadata key %q", k)
		}
		if ok {
			custom[k] = v
		}
	}

	meta, err := ParseMetadata(custom)
	if err != nil {
		return Metadata{}, err
	}
	if producer, err := md.GetProducerName(); err == nil {
		meta.Producer = producer
	}
	return meta, nil
}

// ParseMetadata interprets exporter metadata values.
//
// Recognized keys:
//   - names: a dict literal such as {0: 'apple-ripe', 1: 'apple-rotten'}
//   - imgsz: [height, width], or a single size
//   - conf, iou: numbers
//   - task: free text
func ParseMetadata(custom map[string]string) (Metadata, error) {
	var meta Metadata
	meta.Task = strings.TrimSpace(custom["task"])

	if raw, ok := custom["names"]; ok {
		names, err := parseNames(raw)
		if err != nil {
			return Metadata{}, err
		}
		meta.Names = names
	}

	if raw, ok := custom["imgsz"]; ok {
		dims := intPattern.FindAllString(raw, -1)
		switch len(dims) {
		case 1:
			n := cast.ToInt(dims[0])
			meta.InputSize = image.Point{X: n, Y: n}
		case 2:
			meta.InputSize = image.Point{X: cast.ToInt(dims[1]), Y: cast.ToInt(dims[0])}
		default:
			return Metadata{}, errors.Errorf("unexpected imgsz %q", raw)
		}
	}

	for key, dst := range map[string]*float32{"conf": &meta.Confidence, "iou": &meta.IoU} {
		raw, ok := custom[key]
		if !ok {
			continue
		}
		v, err := cast.ToFloat32E(strings.TrimSpace(raw))
		if err != nil {
			return Metadata{}, errors.Wrapf(err, "invalid %s", key)
		}
		*dst = v
	}

	return meta, nil
}

func parseNames(raw string) ([]string, error) {
	matches := namePattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, errors.Errorf("unexpected names %q", raw)
	}

	byIndex := make(map[int]string, len(matches))
	indices := make([]int, 0, len(matches))
	for _, m := range matches {
		idx := cast.ToInt(m[1])
		name := m[2]
		if name == "" {
			name = m[3]
		}
		if _, dup := byIndex[idx]; !dup {
			indices = append(indices, idx)
		}
		byIndex[idx] = name
	}
	sort.Ints(indices)

	names := make([]string, len(indices))
	for i, idx := range indices {
		if idx != i {
			return nil, errors.Errorf("names are not contiguous from 0: missing index %d", i)
		}
		names[i] = byIndex[idx]
	}
	return names, nil
}
