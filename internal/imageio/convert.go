package imageio

import (
	"image"
	"image/color"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

const inv65535 = 1.0 / 65535.0

// FromImage converts any image to a float RGB buffer in [0,1].
// Alpha is ignored; transparent pixels keep their color channels.
func FromImage(src image.Image) (*nlm.Image, error) {
	bounds := src.Bounds()
	dst, err := nlm.NewImage(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	// Fast path for the common decoded formats
	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := 0; y < dst.Height; y++ {
			row := nrgba.Pix[y*nrgba.Stride:]
			out := dst.Row(y)
			for x := 0; x < dst.Width; x++ {
				out[x*3+0] = float32(row[x*4+0]) / 255
				out[x*3+1] = float32(row[x*4+1]) / 255
				out[x*3+2] = float32(row[x*4+2]) / 255
			}
		}
		return dst, nil
	}

	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			c := color.NRGBA64Model.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			dst.Set(x, y, nlm.Pixel{
				float32(float64(c.R) * inv65535),
				float32(float64(c.G) * inv65535),
				float32(float64(c.B) * inv65535),
			})
		}
	}
	return dst, nil
}

// ToNRGBA quantizes a float buffer to an opaque 8-bit image, rounding to nearest
func ToNRGBA(src *nlm.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		in := src.Row(y)
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < src.Width; x++ {
			row[x*4+0] = quantize(in[x*3+0])
			row[x*4+1] = quantize(in[x*3+1])
			row[x*4+2] = quantize(in[x*3+2])
			row[x*4+3] = 255
		}
	}
	return dst
}

func quantize(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
