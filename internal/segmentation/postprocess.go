// internal/segmentation/postprocess.go
package segmentation

import (
	"fmt"
	"image"
	"math"

	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
	"github.com/SyedDaiam9101/rmbg-service/internal/sizing"
)

// PostprocessMask turns the model output into an 8-bit mask of width x height.
//
// The first H x W plane of out (batch 0, channel 0) is resized bilinearly and
// min-max normalized to [0,255]. A uniform output yields an all-zero mask.
// Min-max normalization commutes with the linear resize, so the plane is
// normalized once into a 16-bit raster for resizing and again afterwards.
func PostprocessMask(out inference.Tensor, width, height int) (*image.Gray, error) {
	plane, ph, pw, err := firstPlane(out)
	if err != nil {
		return nil, stageError(KindInference, StagePostprocess, err)
	}

	resized, err := sizing.FitMask(toGray16(plane, pw, ph), width, height)
	if err != nil {
		return nil, stageError(KindResize, StagePostprocess, err)
	}

	return quantize(resized), nil
}

// firstPlane drops the leading axes and returns the first 2D plane.
func firstPlane(out inference.Tensor) ([]float32, int, int, error) {
	shape := out.Shape
	if len(shape) < 2 {
		return nil, 0, 0, fmt.Errorf("unexpected output shape %v", shape)
	}
	h, w := shape[len(shape)-2], shape[len(shape)-1]
	if h <= 0 || w <= 0 {
		return nil, 0, 0, fmt.Errorf("unexpected output shape %v", shape)
	}
	n := h * w
	if int64(len(out.Data)) < n {
		return nil, 0, 0, fmt.Errorf("output has %d values, shape %v needs at least %d", len(out.Data), shape, n)
	}
	return out.Data[:n], int(h), int(w), nil
}

// toGray16 min-max normalizes plane into a 16-bit raster. Non-finite values
// count as the minimum.
func toGray16(plane []float32, w, h int) *image.Gray16 {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range plane {
		if !finite(v) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}

	g := image.NewGray16(image.Rect(0, 0, w, h))
	if !(hi > lo) {
		return g
	}

	scale := 65535 / float64(hi-lo)
	for i, v := range plane {
		var q uint16
		if finite(v) {
			q = uint16(math.Round(float64(v-lo) * scale))
		}
		g.Pix[2*i] = uint8(q >> 8)
		g.Pix[2*i+1] = uint8(q)
	}
	return g
}

// quantize min-max normalizes a 16-bit raster to [0,255], truncating.
func quantize(src *image.Gray16) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	vals := make([]uint16, 0, w*h)
	lo, hi := uint16(math.MaxUint16), uint16(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.Gray16At(x, y).Y
			lo = min(lo, v)
			hi = max(hi, v)
			vals = append(vals, v)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if hi <= lo {
		return dst
	}

	span := float64(hi - lo)
	for i, v := range vals {
		dst.Pix[i] = uint8(float64(v-lo) / span * 255)
	}
	return dst
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
