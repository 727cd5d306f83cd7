// internal/segmentation/preprocess.go
package segmentation

import (
	"image"
	"image/draw"

	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
	"github.com/SyedDaiam9101/rmbg-service/internal/sizing"
)

// Per-channel normalization applied after scaling bytes to [0,1].
var (
	mean = [3]float32{0.5, 0.5, 0.5}
	std  = [3]float32{1.0, 1.0, 1.0}
)

// Preprocess converts img into the [1,3,height,width] float32 tensor the model
// expects: RGB, bilinear resize to the model input size, x/255, then
// (x-0.5)/1.0 per channel, laid out channel-major.
func Preprocess(img image.Image, width, height int) (inference.Tensor, error) {
	rgb := toRGB(img)

	resized, err := sizing.FitExact(rgb, width, height)
	if err != nil {
		return inference.Tensor{}, stageError(KindResize, StagePreprocess, err)
	}
	px := toNRGBA(resized)

	plane := width * height
	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+width*4]
		for x := 0; x < width; x++ {
			i := y*width + x
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c]) / 255
				data[c*plane+i] = (v - mean[c]) / std[c]
			}
		}
	}

	t, err := inference.NewTensor([]int64{1, 3, int64(height), int64(width)}, data)
	if err != nil {
		return inference.Tensor{}, stageError(KindResize, StagePreprocess, err)
	}
	return t, nil
}

// toRGB copies img into an opaque NRGBA canvas anchored at the origin.
// Grayscale sources get their value replicated into all three channels and
// any alpha is discarded without premultiplying.
func toRGB(img image.Image) *image.NRGBA {
	dst := copyNRGBA(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// toNRGBA returns img as an origin-anchored NRGBA, copying only when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return copyNRGBA(img)
}

// copyNRGBA copies img into a new origin-anchored NRGBA. NRGBA sources are
// copied byte for byte so color under zero alpha survives.
func copyNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.NRGBA); ok {
		rowLen := b.Dx() * 4
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowLen], src.Pix[off:off+rowLen])
		}
		return dst
	}

	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
