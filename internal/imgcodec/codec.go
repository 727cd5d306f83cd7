// Package imgcodec decodes uploaded images and encodes results as PNG or base64.
package imgcodec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"

	"github.com/pkg/errors"

	// registered decoders
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode reports input that is not a decodable image
var ErrDecode = errors.New("cannot decode image")

const dataURIMarker = "base64,"

// DefaultMaxPixels bounds width*height of a decoded image. It matches
// Pillow's decompression bomb threshold.
const DefaultMaxPixels int64 = 178956970

// Decode decodes any registered image format and returns the format name.
// Images above DefaultMaxPixels are rejected.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeWithLimit(data, DefaultMaxPixels)
}

// DecodeWithLimit is Decode with an explicit pixel limit. The header is read
// first so the canvas is never allocated for an oversized image. A
// non-positive limit uses DefaultMaxPixels.
func DecodeWithLimit(data []byte, maxPixels int64) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.Wrap(ErrDecode, "empty input")
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrapf(ErrDecode, "%v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", errors.Wrapf(ErrDecode, "invalid image size %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", errors.Wrapf(ErrDecode, "image size %dx%d exceeds the limit of %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrapf(ErrDecode, "%v", err)
	}
	return img, format, nil
}

// EncodePNG encodes img as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}

// ImageToBase64 encodes img as a standard base64 PNG string without a data-URI prefix
func ImageToBase64(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBase64 strips an optional data-URI prefix (everything up to and
// including "base64,") and returns the raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, dataURIMarker); i >= 0 {
		s = s[i+len(dataURIMarker):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "invalid base64: %v", err)
	}
	return data, nil
}

// Base64ToImage decodes a base64 or data-URI encoded image
func Base64ToImage(s string) (image.Image, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	return img, err
}
