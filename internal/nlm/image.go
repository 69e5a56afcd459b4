package nlm

import (
	"fmt"
	"math"
)

// Channels is the number of color channels per pixel
const Channels = 3

// Pixel holds the three float channels of one pixel, conventionally in [0,1]
type Pixel [Channels]float32

// Image is a row-major grid of 3-channel float pixels.
// Pix holds Width*Height*Channels values; the stride of one row is Width*Channels.
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// NewImage allocates a zero-filled image of the given dimensions
func NewImage(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: zero-area image %dx%d", ErrInvalidInput, width, height)
	}
	if width > math.MaxInt/height/Channels {
		return nil, fmt.Errorf("%w: image dimensions %dx%d overflow", ErrInvalidInput, width, height)
	}

	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height*Channels),
	}, nil
}

// Stride returns the number of floats in one row
func (m *Image) Stride() int {
	return m.Width * Channels
}

// PixOffset returns the index of the first channel of pixel (x, y) in Pix
func (m *Image) PixOffset(x, y int) int {
	return y*m.Width*Channels + x*Channels
}

// At returns the pixel at (x, y)
func (m *Image) At(x, y int) Pixel {
	i := m.PixOffset(x, y)
	return Pixel{m.Pix[i], m.Pix[i+1], m.Pix[i+2]}
}

// Set writes the pixel at (x, y)
func (m *Image) Set(x, y int, p Pixel) {
	i := m.PixOffset(x, y)
	m.Pix[i+0] = p[0]
	m.Pix[i+1] = p[1]
	m.Pix[i+2] = p[2]
}

// Row returns the floats of row y without copying
func (m *Image) Row(y int) []float32 {
	s := m.Stride()
	return m.Pix[y*s : (y+1)*s]
}

// Clone returns a deep copy of the image
func (m *Image) Clone() *Image {
	pix := make([]float32, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{Width: m.Width, Height: m.Height, Pix: pix}
}

// Fill sets every pixel to p
func (m *Image) Fill(p Pixel) {
	for i := 0; i < len(m.Pix); i += Channels {
		m.Pix[i+0] = p[0]
		m.Pix[i+1] = p[1]
		m.Pix[i+2] = p[2]
	}
}

// SameSize reports whether both images have identical dimensions
func (m *Image) SameSize(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// validate checks the structural invariants of a caller-supplied image
func (m *Image) validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: zero-area image %dx%d", ErrInvalidInput, m.Width, m.Height)
	}
	if m.Width > math.MaxInt/m.Height/Channels {
		return fmt.Errorf("%w: image dimensions %dx%d overflow", ErrInvalidInput, m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height*Channels {
		return fmt.Errorf("%w: pixel buffer has %d values, want %d", ErrInvalidInput, len(m.Pix), m.Width*m.Height*Channels)
	}
	return nil
}
