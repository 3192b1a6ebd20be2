package util

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-ripeness/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestLoadDirectoryImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.png", "frame-2.png", "frame-1.png", "cover.png"} {
		writePNG(t, filepath.Join(dir, name), 4, 3)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o700))

	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)

	var frames []int
	for _, f := range files {
		frames = append(frames, f.Frame)
		assert.Equal(t, images.FormatPNG, f.Format)
		assert.NotEmpty(t, f.Data)
	}
	assert.Equal(t, []int{1, 2, 10, -1}, frames)
	assert.Equal(t, "cover.png", filepath.Base(files[3].Path))
}

func TestLoadDirectoryImageFiles_MissingDir(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestImageFile_Decode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img_0007.png")
	writePNG(t, path, 8, 6)

	file, err := LoadImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, file.Frame)

	frame, err := file.Decode()
	require.NoError(t, err)
	require.NoError(t, frame.Validate())
	assert.Equal(t, 8, frame.Image.Bounds().Dx())

	_, err = ImageFile{Path: "broken.png", Data: []byte("nope")}.Decode()
	assert.Error(t, err)

	_, err = LoadImageFile("clip.mp4")
	assert.Error(t, err)
}
