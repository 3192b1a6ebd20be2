package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markedImage returns a w x h black image with a red pixel in the top-left corner.
func markedImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{0, 0, 0, 255})
		}
	}
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	return img
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 == 255 && g>>8 == 0 && b>>8 == 0
}

func TestParseRotation(t *testing.T) {
	tests := []struct {
		in      int
		want    Rotation
		wantErr bool
	}{
		{in: 0, want: Rotate0},
		{in: 90, want: Rotate90},
		{in: 450, want: Rotate90},
		{in: -90, want: Rotate270},
		{in: 180, want: Rotate180},
		{in: 45, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseRotation(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "rotation %d", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "rotation %d", tt.in)
	}
}

func TestFrame_Oriented(t *testing.T) {
	tests := []struct {
		name     string
		rotation Rotation
		mirror   bool
		wantW    int
		wantH    int
		// Where the top-left marker ends up.
		markX, markY int
	}{
		{name: "identity", rotation: Rotate0, wantW: 4, wantH: 2, markX: 0, markY: 0},
		{name: "clockwise quarter", rotation: Rotate90, wantW: 2, wantH: 4, markX: 1, markY: 0},
		{name: "half turn", rotation: Rotate180, wantW: 4, wantH: 2, markX: 3, markY: 1},
		{name: "counter-clockwise quarter", rotation: Rotate270, wantW: 2, wantH: 4, markX: 0, markY: 3},
		{name: "mirror", rotation: Rotate0, mirror: true, wantW: 4, wantH: 2, markX: 3, markY: 0},
		{name: "rotate then mirror", rotation: Rotate90, mirror: true, wantW: 2, wantH: 4, markX: 0, markY: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Frame{Image: markedImage(4, 2), Rotation: tt.rotation, Mirror: tt.mirror}
			require.NoError(t, f.Validate())

			out := f.Oriented()
			b := out.Bounds()
			assert.Equal(t, tt.wantW, b.Dx())
			assert.Equal(t, tt.wantH, b.Dy())

			w, h := f.OrientedSize()
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)

			assert.True(t, isRed(out.At(b.Min.X+tt.markX, b.Min.Y+tt.markY)), "marker position")
		})
	}
}

func TestFrame_Validate(t *testing.T) {
	assert.Error(t, Frame{}.Validate())
	assert.Error(t, Frame{Image: image.NewRGBA(image.Rect(0, 0, 0, 5))}.Validate())
	assert.Error(t, Frame{Image: markedImage(2, 2), Rotation: 30}.Validate())
	assert.NoError(t, NewFrame(markedImage(2, 2)).Validate())
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, markedImage(3, 3)))

	img, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Equal(t, 3, img.Bounds().Dx())

	_, _, err = Decode(nil)
	assert.Error(t, err)

	_, _, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	f, ok := FormatFromPath("frames/frame-1.JPG")
	assert.True(t, ok)
	assert.Equal(t, FormatJPEG, f)

	f, ok = FormatFromPath("x.webp")
	assert.True(t, ok)
	assert.Equal(t, FormatWebP, f)

	_, ok = FormatFromPath("notes.txt")
	assert.False(t, ok)
}
