package detector

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/nvr-ai/go-ripeness/models/model/preprocess"
	"github.com/nvr-ai/go-ripeness/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults applied by DefaultConfig.
const (
	DefaultConfidenceThreshold = 0.25
	DefaultIoUThreshold        = 0.45
	DefaultEmptyThrottle       = 5 * time.Second
)

// Size is a model input size in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Point returns the size as an image.Point.
func (s Size) Point() image.Point {
	return image.Pt(s.Width, s.Height)
}

// IsZero reports whether either dimension is unset.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// PreprocessConfig is the serializable form of preprocess.ModelConfig.
type PreprocessConfig struct {
	// Normalization is one of none, zero_to_one, minus_one_to_one, standardize.
	Normalization string `json:"normalization" yaml:"normalization"`
	// ChannelOrder is chw or hwc.
	ChannelOrder string `json:"channel_order" yaml:"channel_order"`
	// ColorMode is rgb, bgr or grayscale.
	ColorMode string `json:"color_mode" yaml:"color_mode"`
	// Mean and Std are per-channel values on the 0-255 scale for standardize.
	Mean []float32 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std  []float32 `json:"std,omitempty" yaml:"std,omitempty"`
	// PadColor is the letterbox fill as [r, g, b]. Empty means grey 114.
	PadColor []uint8 `json:"pad_color,omitempty" yaml:"pad_color,omitempty"`
	// Interpolation is nearest, bilinear or bicubic.
	Interpolation string `json:"interpolation" yaml:"interpolation"`
}

// DecodeConfig is the serializable form of postprocess.DecodeOptions.
type DecodeConfig struct {
	// Layout is auto, row_major or channel_major.
	Layout string `json:"layout" yaml:"layout"`
	// BoxFormat is normalized, pixels or auto.
	BoxFormat string `json:"box_format" yaml:"box_format"`
}

// Config holds everything a Detector needs to load and run a model.
type Config struct {
	// ModelPath is the ONNX model file. It is read at construction and on every restart.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LabelsPath is the newline-delimited label file. It may be empty when UseModelMetadata
	// supplies the names.
	LabelsPath string `json:"labels_path" yaml:"labels_path"`
	// LibraryPath is the ONNX Runtime shared library, empty for the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputSize resolves dynamic model input dimensions.
	InputSize Size `json:"input_size" yaml:"input_size"`
	// ConfidenceThreshold is the minimum winning class score.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMS configures suppression.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// Preprocess configures frame preparation.
	Preprocess PreprocessConfig `json:"preprocess" yaml:"preprocess"`
	// Decode configures output interpretation.
	Decode DecodeConfig `json:"decode" yaml:"decode"`
	// Backend is the initial execution provider.
	Backend providers.Config `json:"backend" yaml:"backend"`
	// EmptyThrottle is the minimum interval between two empty-frame notifications.
	EmptyThrottle time.Duration `json:"empty_throttle" yaml:"empty_throttle"`
	// UseModelMetadata fills unset fields from the model's embedded metadata.
	UseModelMetadata bool `json:"use_model_metadata" yaml:"use_model_metadata"`
}

// DefaultConfig returns a configuration for a 640x640 YOLO-style detector on the CPU.
func DefaultConfig() Config {
	return Config{
		InputSize:           Size{Width: 640, Height: 640},
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMS:                 postprocess.NMSConfig{IoUThreshold: DefaultIoUThreshold},
		Preprocess: PreprocessConfig{
			Normalization: "zero_to_one",
			ChannelOrder:  "chw",
			ColorMode:     "rgb",
			Interpolation: "bilinear",
		},
		Decode:        DecodeConfig{Layout: "auto", BoxFormat: "normalized"},
		Backend:       providers.DefaultConfig(),
		EmptyThrottle: DefaultEmptyThrottle,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read, parsed, or validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "error reading config %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes YAML on top of DefaultConfig. The result is not validated, so callers
// can apply overrides first.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "error parsing config")
	}
	return cfg, nil
}

// Validate checks the configuration for values a Detector cannot run with.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model_path is required")
	}
	if c.LabelsPath == "" && !c.UseModelMetadata {
		return errors.New("labels_path is required unless use_model_metadata is set")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %v is outside [0, 1]", c.ConfidenceThreshold)
	}
	if c.NMS.IoUThreshold < 0 || c.NMS.IoUThreshold > 1 {
		return fmt.Errorf("nms.iou_threshold %v is outside [0, 1]", c.NMS.IoUThreshold)
	}
	if c.InputSize.Width < 0 || c.InputSize.Height < 0 {
		return fmt.Errorf("input_size %dx%d is negative", c.InputSize.Width, c.InputSize.Height)
	}
	if c.EmptyThrottle < 0 {
		return fmt.Errorf("empty_throttle %v is negative", c.EmptyThrottle)
	}
	if err := c.Backend.Validate(); err != nil {
		return errors.Wrap(err, "invalid backend")
	}
	if _, err := c.Preprocess.ModelConfig(); err != nil {
		return err
	}
	if _, err := c.Decode.Options(); err != nil {
		return err
	}
	return nil
}

// ModelConfig converts the serializable settings into a preprocess.ModelConfig.
func (p PreprocessConfig) ModelConfig() (preprocess.ModelConfig, error) {
	cfg := preprocess.DefaultModelConfig()

	switch key(p.Normalization) {
	case "", "zero_to_one":
		cfg.NormalizationType = preprocess.NormalizeZeroToOne
	case "none":
		cfg.NormalizationType = preprocess.NormalizeNone
	case "minus_one_to_one":
		cfg.NormalizationType = preprocess.NormalizeMinusOneToOne
	case "standardize":
		cfg.NormalizationType = preprocess.NormalizeStandardize
	default:
		return cfg, fmt.Errorf("unknown normalization %q", p.Normalization)
	}

	switch key(p.ChannelOrder) {
	case "", "chw":
		cfg.ChannelOrder = preprocess.ChannelOrderCHW
	case "hwc":
		cfg.ChannelOrder = preprocess.ChannelOrderHWC
	default:
		return cfg, fmt.Errorf("unknown channel_order %q", p.ChannelOrder)
	}

	switch key(p.ColorMode) {
	case "", "rgb":
		cfg.ColorMode = preprocess.ColorModeRGB
	case "bgr":
		cfg.ColorMode = preprocess.ColorModeBGR
	case "grayscale", "gray":
		cfg.ColorMode = preprocess.ColorModeGrayscale
	default:
		return cfg, fmt.Errorf("unknown color_mode %q", p.ColorMode)
	}

	switch key(p.Interpolation) {
	case "", "bilinear":
		cfg.Interpolation = resize.Bilinear
	case "nearest":
		cfg.Interpolation = resize.NearestNeighbor
	case "bicubic":
		cfg.Interpolation = resize.Bicubic
	default:
		return cfg, fmt.Errorf("unknown interpolation %q", p.Interpolation)
	}

	switch len(p.PadColor) {
	case 0:
	case 3:
		cfg.LetterboxColor = color.NRGBA{R: p.PadColor[0], G: p.PadColor[1], B: p.PadColor[2], A: 255}
	default:
		return cfg, fmt.Errorf("pad_color needs 3 values, got %d", len(p.PadColor))
	}

	cfg.MeanValues = p.Mean
	cfg.StdValues = p.Std
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Options converts the serializable settings into postprocess.DecodeOptions.
func (d DecodeConfig) Options() (postprocess.DecodeOptions, error) {
	var opts postprocess.DecodeOptions

	switch key(d.Layout) {
	case "", "auto":
		opts.Layout = postprocess.LayoutAuto
	case "row_major":
		opts.Layout = postprocess.LayoutRowMajor
	case "channel_major":
		opts.Layout = postprocess.LayoutChannelMajor
	default:
		return opts, fmt.Errorf("unknown decode layout %q", d.Layout)
	}

	switch key(d.BoxFormat) {
	case "", "normalized":
		opts.BoxFormat = postprocess.BoxNormalized
	case "pixels":
		opts.BoxFormat = postprocess.BoxPixels
	case "auto":
		opts.BoxFormat = postprocess.BoxAuto
	default:
		return opts, fmt.Errorf("unknown box_format %q", d.BoxFormat)
	}

	return opts, nil
}

func key(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
