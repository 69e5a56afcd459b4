package nlm

import (
	"fmt"
	"math"
)

// Pad returns a copy of src extended by offset pixels on every side.
// The source is embedded bit-identically at (offset, offset); the border is filled
// according to mode. With BorderZero every border pixel is (0,0,0).
func Pad(src *Image, offset int, mode BorderMode) (*Image, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative padding %d", ErrInvalidInput, offset)
	}
	border, err := ParseBorderMode(string(mode))
	if err != nil {
		return nil, err
	}

	if offset > (math.MaxInt-max(src.Width, src.Height))/2 {
		return nil, fmt.Errorf("%w: padding %d overflows image dimensions", ErrInvalidInput, offset)
	}
	dst, err := NewImage(src.Width+2*offset, src.Height+2*offset)
	if err != nil {
		return nil, err
	}

	srcStride := src.Stride()
	for y := 0; y < src.Height; y++ {
		i := dst.PixOffset(offset, y+offset)
		copy(dst.Pix[i:i+srcStride], src.Row(y))
	}

	if border == BorderZero || offset == 0 {
		return dst, nil
	}

	// Fill the border by mapping every padded coordinate back into the source.
	for py := 0; py < dst.Height; py++ {
		sy := borderIndex(py-offset, src.Height, border)
		inRow := py >= offset && py < offset+src.Height
		for px := 0; px < dst.Width; px++ {
			if inRow && px >= offset && px < offset+src.Width {
				px = offset + src.Width - 1 // skip the interior
				continue
			}
			sx := borderIndex(px-offset, src.Width, border)
			dst.Set(px, py, src.At(sx, sy))
		}
	}

	return dst, nil
}

// borderIndex maps a possibly out-of-range coordinate into [0, n)
func borderIndex(i, n int, mode BorderMode) int {
	if i >= 0 && i < n {
		return i
	}
	switch mode {
	case BorderReplicate:
		if i < 0 {
			return 0
		}
		return n - 1
	case BorderReflect:
		// Symmetric reflection has period 2n: ... 1 0 | 0 1 ... n-1 | n-1 n-2 ...
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		return 0
	}
}
