// Package preprocess - Turns camera frames into model input tensors.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/pkg/errors"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// DefaultLetterboxColor is the grey YOLO-family models are trained with.
var DefaultLetterboxColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// ModelConfig defines preprocessing configuration for a model.
type ModelConfig struct {
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization (if NormalizationType is Standardize), on the 0-255 scale.
	MeanValues []float32
	// StdValues for standardization (if NormalizationType is Standardize), on the 0-255 scale.
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
	// LetterboxColor is the color used for letterbox padding.
	LetterboxColor color.Color
	// Interpolation is the resampling filter. The zero value is nearest neighbor;
	// DefaultModelConfig uses bilinear.
	Interpolation resize.InterpolationFunction
}

// DefaultModelConfig returns the YOLO layout: RGB, CHW, 0-1 normalization, grey padding.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
		LetterboxColor:    DefaultLetterboxColor,
		Interpolation:     resize.Bilinear,
	}
}

// Channels returns the number of tensor channels the color mode produces.
func (c ModelConfig) Channels() int {
	if c.ColorMode == ColorModeGrayscale {
		return 1
	}
	return 3
}

// Validate checks that standardization parameters match the channel count.
func (c ModelConfig) Validate() error {
	if c.NormalizationType == NormalizeStandardize {
		if len(c.MeanValues) != c.Channels() || len(c.StdValues) != c.Channels() {
			return fmt.Errorf("standardization needs %d mean and std values, got %d and %d",
				c.Channels(), len(c.MeanValues), len(c.StdValues))
		}
		for _, s := range c.StdValues {
			if s == 0 {
				return errors.New("std values must be non-zero")
			}
		}
	}
	return nil
}

// Preprocessor prepares frames for a model. It holds no mutable state and is safe for
// concurrent use.
type Preprocessor struct {
	config ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: The preprocessor.
//   - error: An error if the configuration is invalid.
//
// @example
//
//	p, err := NewPreprocessor(DefaultModelConfig())
//	tensor, box, err := p.Prepare(frame, image.Pt(640, 640))
func NewPreprocessor(config ModelConfig) (*Preprocessor, error) {
	if config.LetterboxColor == nil {
		config.LetterboxColor = DefaultLetterboxColor
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid preprocessing config")
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return p.config
}

// Prepare orients, letterboxes and normalizes a frame into a model input tensor.
//
// Steps:
//  1. Rotation and mirroring from the frame hints.
//  2. Uniform scaling to fit size, centered on a canvas of the letterbox color.
//  3. Conversion to float32 in the configured channel order, color mode and normalization.
//
// Identical inputs always produce byte-identical tensors.
//
// Arguments:
//   - frame: The camera frame.
//   - size: The model input width (X) and height (Y).
//
// Returns:
//   - *inference.Tensor: Shape [1, C, H, W] or [1, H, W, C].
//   - Letterbox: The geometry needed to map model coordinates back to the frame.
//   - error: An error if the frame or size is invalid.
func (p *Preprocessor) Prepare(frame images.Frame, size image.Point) (*inference.Tensor, Letterbox, error) {
	if err := frame.Validate(); err != nil {
		return nil, Letterbox{}, errors.Wrap(err, "input validation failed")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, Letterbox{}, fmt.Errorf("invalid target size: %dx%d", size.X, size.Y)
	}

	oriented := frame.Oriented()
	canvas, box := p.letterbox(oriented, size)

	data := p.imageToTensor(canvas)
	p.normalize(data)

	var shape []int
	if p.config.ChannelOrder == ChannelOrderCHW {
		shape = []int{1, p.config.Channels(), size.Y, size.X}
	} else {
		shape = []int{1, size.Y, size.X, p.config.Channels()}
	}

	tensor, err := inference.NewTensor(shape, data)
	if err != nil {
		return nil, Letterbox{}, errors.Wrap(err, "tensor conversion failed")
	}

	return tensor, box, nil
}

// letterbox resizes img to fit size without distortion and pads the remainder.
func (p *Preprocessor) letterbox(img image.Image, size image.Point) (*image.NRGBA, Letterbox) {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	scale := math.Min(float64(size.X)/float64(srcW), float64(size.Y)/float64(srcH))
	newW := clampInt(int(math.Round(float64(srcW)*scale)), 1, size.X)
	newH := clampInt(int(math.Round(float64(srcH)*scale)), 1, size.Y)

	padLeft := (size.X - newW) / 2
	padTop := (size.Y - newH) / 2

	canvas := imaging.New(size.X, size.Y, p.config.LetterboxColor)
	if newW == srcW && newH == srcH {
		canvas = imaging.Paste(canvas, img, image.Pt(padLeft, padTop))
	} else {
		resized := resize.Resize(uint(newW), uint(newH), img, p.config.Interpolation)
		canvas = imaging.Paste(canvas, resized, image.Pt(padLeft, padTop))
	}

	return canvas, Letterbox{
		ScaleX:    float64(newW) / float64(srcW),
		ScaleY:    float64(newH) / float64(srcH),
		PadLeft:   padLeft,
		PadTop:    padTop,
		SrcWidth:  srcW,
		SrcHeight: srcH,
		DstWidth:  size.X,
		DstHeight: size.Y,
	}
}

// imageToTensor converts an image to 0-255 float32 values in the configured layout.
func (p *Preprocessor) imageToTensor(img *image.NRGBA) []float32 {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	channels := p.config.Channels()
	plane := width * height

	tensor := make([]float32, plane*channels)

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			r := float32(row[x*4])
			g := float32(row[x*4+1])
			b := float32(row[x*4+2])
			i := y*width + x

			if channels == 1 {
				tensor[i] = 0.299*r + 0.587*g + 0.114*b
				continue
			}

			ch0, ch1, ch2 := r, g, b
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch2 = b, r
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[i] = ch0
				tensor[plane+i] = ch1
				tensor[2*plane+i] = ch2
			} else {
				tensor[i*3] = ch0
				tensor[i*3+1] = ch1
				tensor[i*3+2] = ch2
			}
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.Channels()
		pixelsPerChannel := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += channels {
					tensor[i] = (tensor[i] - mean) / std
				}
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
