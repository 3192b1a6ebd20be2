package images

import (
	"bytes"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// ImageFormat represents supported frame file formats.
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// FormatFromPath maps a file extension to a known format.
//
// Returns:
//   - ImageFormat: The format, empty when the extension is not supported.
//   - bool: Whether the extension is supported.
func FormatFromPath(path string) (ImageFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	case ".bmp":
		return FormatBMP, true
	}
	return "", false
}

// Decode decodes encoded frame bytes into an image.
//
// Arguments:
//   - data: The encoded bytes (jpeg, png, webp or bmp).
//
// Returns:
//   - image.Image: The decoded image.
//   - ImageFormat: The detected format.
//   - error: An error if the data cannot be decoded.
func Decode(data []byte) (image.Image, ImageFormat, error) {
	if len(data) == 0 {
		return nil, "", errors.New("image data is empty")
	}

	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(err, "image decoding failed")
	}

	return img, ImageFormat(name), nil
}
