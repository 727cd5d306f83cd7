// internal/segmentation/composite.go
package segmentation

import (
	"fmt"
	"image"

	"github.com/SyedDaiam9101/rmbg-service/internal/colors"
)

// Composite pastes img over a background using mask as per-pixel opacity.
// A nil bg gives a fully transparent canvas. Every channel, alpha included,
// is blended as out = bg*(255-m)/255 + src*m/255 with rounding, so output alpha
// follows the mask over a transparent background and stays opaque over an
// opaque one. img and mask are not modified.
func Composite(img image.Image, mask *image.Gray, bg *colors.Color) (*image.NRGBA, error) {
	src := copyNRGBA(img)
	b := src.Bounds()
	if mask.Bounds().Dx() != b.Dx() || mask.Bounds().Dy() != b.Dy() {
		return nil, stageError(KindResize, StageComposite,
			fmt.Errorf("mask size %v does not match image size %v", mask.Bounds().Size(), b.Size()))
	}

	dst := image.NewNRGBA(b)
	if bg != nil {
		c := bg.NRGBA()
		fill := [4]uint8{c.R, c.G, c.B, c.A}
		for i := 0; i < len(dst.Pix); i += 4 {
			copy(dst.Pix[i:i+4], fill[:])
		}
	}

	mb := mask.Bounds()
	for y := 0; y < b.Dy(); y++ {
		mrow := mask.Pix[y*mask.Stride : y*mask.Stride+mb.Dx()]
		srow := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
		for x, m := range mrow {
			for c := 0; c < 4; c++ {
				i := x*4 + c
				drow[i] = blend(drow[i], srow[i], m)
			}
		}
	}

	return dst, nil
}

// blend returns (bg*(255-m) + fg*m) / 255 rounded to nearest.
func blend(bg, fg, m uint8) uint8 {
	t := uint32(bg)*uint32(255-m) + uint32(fg)*uint32(m) + 128
	return uint8((t + t>>8) >> 8)
}
