// internal/sizing/sizing.go
package sizing

import (
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ErrResize is the class of every resize failure
var ErrResize = errors.New("resize failed")

// CapToBounds downscales img so that it fits within maxW x maxH, keeping the
// aspect ratio. Images that already fit are returned unchanged. The new size is
// truncated towards zero and the Lanczos filter is used for resampling.
func CapToBounds(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	ratio := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	newW := max(1, int(float64(w)*ratio))
	newH := max(1, int(float64(h)*ratio))

	return imaging.Resize(img, newW, newH, imaging.Lanczos)
}

// FitExact resizes img to exactly width x height with a bilinear filter.
// The aspect ratio is not preserved.
func FitExact(img image.Image, width, height int) (image.Image, error) {
	if err := checkResize(img.Bounds(), width, height); err != nil {
		return nil, err
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear), nil
}

// FitMask resizes a single channel plane to exactly width x height with a
// bilinear filter.
func FitMask(mask *image.Gray16, width, height int) (*image.Gray16, error) {
	if err := checkResize(mask.Bounds(), width, height); err != nil {
		return nil, err
	}

	out := resize.Resize(uint(width), uint(height), mask, resize.Bilinear)
	if g, ok := out.(*image.Gray16); ok {
		return g, nil
	}

	g := image.NewGray16(image.Rect(0, 0, width, height))
	draw.Draw(g, g.Bounds(), out, out.Bounds().Min, draw.Src)
	return g, nil
}

func checkResize(src image.Rectangle, width, height int) error {
	if src.Empty() {
		return errors.Wrapf(ErrResize, "empty source image %v", src)
	}
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrResize, "invalid target size %dx%d", width, height)
	}
	return nil
}
