package preprocess

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-ripeness/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// quadImage is 2x2: red, green / blue, white.
func quadImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 255, 0, 255})
	img.SetNRGBA(0, 1, color.NRGBA{0, 0, 255, 255})
	img.SetNRGBA(1, 1, color.NRGBA{255, 255, 255, 255})
	return img
}

func mustPreprocessor(t *testing.T, cfg ModelConfig) *Preprocessor {
	t.Helper()
	p, err := NewPreprocessor(cfg)
	require.NoError(t, err)
	return p
}

// chwAt returns the value of channel c at (x, y) of a [1, C, H, W] tensor.
func chwAt(data []float32, w, h, c, x, y int) float32 {
	return data[c*w*h+y*w+x]
}

// TestPrepareLetterbox validates scaling, padding and normalization of a landscape frame.
func TestPrepareLetterbox(t *testing.T) {
	p := mustPreprocessor(t, DefaultModelConfig())
	frame := images.NewFrame(solidImage(800, 600, color.NRGBA{255, 0, 0, 255}))

	tensor, box, err := p.Prepare(frame, image.Pt(640, 640))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 640, 640}, tensor.Shape)
	assert.Len(t, tensor.Data, 3*640*640)

	assert.InDelta(t, 0.8, box.ScaleX, 1e-9)
	assert.InDelta(t, 0.8, box.ScaleY, 1e-9)
	assert.Equal(t, 0, box.PadLeft)
	assert.Equal(t, 80, box.PadTop)
	assert.Equal(t, 800, box.SrcWidth)
	assert.Equal(t, 600, box.SrcHeight)
	assert.True(t, box.Valid())

	grey := float32(114) / 255
	for c := 0; c < 3; c++ {
		assert.InDelta(t, grey, chwAt(tensor.Data, 640, 640, c, 10, 10), 1e-6, "top padding channel %d", c)
		assert.InDelta(t, grey, chwAt(tensor.Data, 640, 640, c, 600, 630), 1e-6, "bottom padding channel %d", c)
	}

	assert.InDelta(t, 1.0, chwAt(tensor.Data, 640, 640, 0, 320, 320), 0.01)
	assert.InDelta(t, 0.0, chwAt(tensor.Data, 640, 640, 1, 320, 320), 0.01)
	assert.InDelta(t, 0.0, chwAt(tensor.Data, 640, 640, 2, 320, 320), 0.01)
}

func TestPrepareDeterministic(t *testing.T) {
	p := mustPreprocessor(t, DefaultModelConfig())

	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, 97, 53))
	rng.Read(img.Pix)
	frame := images.Frame{Image: img, Rotation: images.Rotate90, Mirror: true}

	a, boxA, err := p.Prepare(frame, image.Pt(64, 64))
	require.NoError(t, err)
	b, boxB, err := p.Prepare(frame, image.Pt(64, 64))
	require.NoError(t, err)

	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, boxA, boxB)
}

func TestPrepareOrientation(t *testing.T) {
	p := mustPreprocessor(t, DefaultModelConfig())
	frame := images.Frame{Image: solidImage(4, 2, color.NRGBA{0, 255, 0, 255}), Rotation: images.Rotate90}

	tensor, box, err := p.Prepare(frame, image.Pt(8, 8))
	require.NoError(t, err)

	// Upright the frame is 2x4, so it scales by 2 to 4x8 and is centered horizontally.
	assert.Equal(t, 2, box.SrcWidth)
	assert.Equal(t, 4, box.SrcHeight)
	assert.Equal(t, 2, box.PadLeft)
	assert.Equal(t, 0, box.PadTop)

	assert.InDelta(t, float32(114)/255, chwAt(tensor.Data, 8, 8, 1, 0, 4), 1e-6)
	assert.InDelta(t, 1.0, chwAt(tensor.Data, 8, 8, 1, 4, 4), 0.01)
}

func TestPrepareLayouts(t *testing.T) {
	tests := []struct {
		name  string
		cfg   ModelConfig
		shape []int
		want  []float32
	}{
		{
			name:  "RGB CHW raw",
			cfg:   ModelConfig{ColorMode: ColorModeRGB, ChannelOrder: ChannelOrderCHW},
			shape: []int{1, 3, 2, 2},
			want: []float32{
				255, 0, 0, 255,
				0, 255, 0, 255,
				0, 0, 255, 255,
			},
		},
		{
			name:  "BGR HWC raw",
			cfg:   ModelConfig{ColorMode: ColorModeBGR, ChannelOrder: ChannelOrderHWC},
			shape: []int{1, 2, 2, 3},
			want: []float32{
				0, 0, 255, 0, 255, 0,
				255, 0, 0, 255, 255, 255,
			},
		},
		{
			name:  "grayscale",
			cfg:   ModelConfig{ColorMode: ColorModeGrayscale},
			shape: []int{1, 1, 2, 2},
			want:  []float32{76.245, 149.685, 29.07, 255},
		},
		{
			name:  "minus one to one",
			cfg:   ModelConfig{NormalizationType: NormalizeMinusOneToOne},
			shape: []int{1, 3, 2, 2},
			want: []float32{
				1, -1, -1, 1,
				-1, 1, -1, 1,
				-1, -1, 1, 1,
			},
		},
		{
			name: "standardize",
			cfg: ModelConfig{
				NormalizationType: NormalizeStandardize,
				MeanValues:        []float32{127.5, 0, 255},
				StdValues:         []float32{127.5, 255, 255},
			},
			shape: []int{1, 3, 2, 2},
			want: []float32{
				1, -1, -1, 1,
				0, 1, 0, 1,
				-1, -1, 0, 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPreprocessor(t, tt.cfg)
			tensor, box, err := p.Prepare(images.NewFrame(quadImage()), image.Pt(2, 2))
			require.NoError(t, err)

			assert.Equal(t, tt.shape, tensor.Shape)
			assert.InDeltaSlice(t, tt.want, tensor.Data, 0.001)
			assert.Equal(t, 0, box.PadLeft)
			assert.Equal(t, 0, box.PadTop)
		})
	}
}

// TestLetterboxRoundTrip maps random source boxes into model space and back.
func TestLetterboxRoundTrip(t *testing.T) {
	p := mustPreprocessor(t, DefaultModelConfig())
	sizes := []image.Point{{1920, 1080}, {1080, 1920}, {640, 480}, {333, 777}, {100, 100}}
	rng := rand.New(rand.NewSource(42))

	for _, src := range sizes {
		_, box, err := p.Prepare(images.NewFrame(image.NewNRGBA(image.Rect(0, 0, src.X, src.Y))), image.Pt(640, 640))
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			x1 := rng.Float32() * float32(src.X)
			y1 := rng.Float32() * float32(src.Y)
			x2 := x1 + rng.Float32()*(float32(src.X)-x1)
			y2 := y1 + rng.Float32()*(float32(src.Y)-y1)

			mx1, my1 := box.FromSource(x1, y1)
			mx2, my2 := box.FromSource(x2, y2)
			back := box.ToNormalized(images.Rect{X1: mx1, Y1: my1, X2: mx2, Y2: my2})

			assert.InDelta(t, x1, back.X1*float32(src.X), 1.0)
			assert.InDelta(t, y1, back.Y1*float32(src.Y), 1.0)
			assert.InDelta(t, x2, back.X2*float32(src.X), 1.0)
			assert.InDelta(t, y2, back.Y2*float32(src.Y), 1.0)
		}
	}
}

func TestLetterboxToNormalizedClamps(t *testing.T) {
	box := Letterbox{ScaleX: 0.5, ScaleY: 0.5, PadLeft: 0, PadTop: 80, SrcWidth: 1280, SrcHeight: 960, DstWidth: 640, DstHeight: 640}

	// A box reaching into the top padding and past the right edge.
	r := box.ToNormalized(images.Rect{X1: 600, Y1: 40, X2: 700, Y2: 120})
	assert.InDelta(t, 1200.0/1280.0, r.X1, 1e-6)
	assert.Equal(t, float32(0), r.Y1)
	assert.Equal(t, float32(1), r.X2)
	assert.InDelta(t, 80.0/960.0, r.Y2, 1e-6)

	// Inverted corners come back canonical.
	r = box.ToNormalized(images.Rect{X1: 100, Y1: 200, X2: 50, Y2: 100})
	assert.LessOrEqual(t, r.X1, r.X2)
	assert.LessOrEqual(t, r.Y1, r.Y2)
}

func TestPrepareValidation(t *testing.T) {
	p := mustPreprocessor(t, DefaultModelConfig())

	_, _, err := p.Prepare(images.Frame{}, image.Pt(640, 640))
	assert.Error(t, err)

	_, _, err = p.Prepare(images.NewFrame(quadImage()), image.Pt(0, 640))
	assert.Error(t, err)

	_, err = NewPreprocessor(ModelConfig{NormalizationType: NormalizeStandardize, MeanValues: []float32{1}})
	assert.Error(t, err)

	_, err = NewPreprocessor(ModelConfig{
		NormalizationType: NormalizeStandardize,
		MeanValues:        []float32{0, 0, 0},
		StdValues:         []float32{1, 0, 1},
	})
	assert.Error(t, err)
}
