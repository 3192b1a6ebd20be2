// Package util - Frame sources backed by image files.
package util

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/nvr-ai/go-ripeness/images"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from the file name, or -1 if it carries none.
	Frame int
	// Format is the format implied by the extension.
	Format images.ImageFormat
}

var frameNumber = regexp.MustCompile(`(\d+)$`)

// LoadDirectoryImageFiles reads all supported image files from a directory.
//
// Files are ordered by the trailing number of their base name ("frame-12.jpg" is frame 12),
// then by name. Files without a number sort last.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The image files in frame order.
//   - error: Error if the directory or a file cannot be read.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading directory %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := images.FormatFromPath(path); !ok {
			continue
		}

		file, err := LoadImageFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return b.Frame < 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return files, nil
}

// LoadImageFile reads one image file.
func LoadImageFile(path string) (ImageFile, error) {
	format, ok := images.FormatFromPath(path)
	if !ok {
		return ImageFile{}, errors.Errorf("unsupported image file %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "error reading %s", path)
	}

	frame := -1
	base := filepath.Base(path)
	if m := frameNumber.FindStringSubmatch(base[:len(base)-len(filepath.Ext(base))]); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			frame = n
		}
	}

	return ImageFile{Path: path, Data: data, Frame: frame, Format: format}, nil
}

// Decode decodes the file into a frame with no orientation hints.
func (f ImageFile) Decode() (images.Frame, error) {
	img, _, err := images.Decode(f.Data)
	if err != nil {
		return images.Frame{}, errors.Wrapf(err, "error decoding %s", f.Path)
	}
	return images.NewFrame(img), nil
}
