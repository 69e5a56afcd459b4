package nlm

import (
	"errors"
	"math"
	"testing"
)

func TestPad_Embedding(t *testing.T) {
	src := randomImage(t, 5, 3, 21)

	for _, offset := range []int{0, 1, 4} {
		padded, err := Pad(src, offset, BorderZero)
		if err != nil {
			t.Fatalf("Pad(%d) failed: %v", offset, err)
		}

		if padded.Width != src.Width+2*offset || padded.Height != src.Height+2*offset {
			t.Fatalf("offset=%d: expected %dx%d, got %dx%d", offset,
				src.Width+2*offset, src.Height+2*offset, padded.Width, padded.Height)
		}

		for y := 0; y < padded.Height; y++ {
			for x := 0; x < padded.Width; x++ {
				got := padded.At(x, y)
				sx, sy := x-offset, y-offset
				if sx >= 0 && sx < src.Width && sy >= 0 && sy < src.Height {
					if got != src.At(sx, sy) {
						t.Errorf("offset=%d: interior (%d,%d) = %v, want %v", offset, x, y, got, src.At(sx, sy))
					}
				} else if got != (Pixel{}) {
					t.Errorf("offset=%d: border (%d,%d) = %v, want zero", offset, x, y, got)
				}
			}
		}
	}
}

func TestPad_Replicate(t *testing.T) {
	src, _ := NewImage(2, 2)
	src.Set(0, 0, Pixel{0.1, 0.1, 0.1})
	src.Set(1, 0, Pixel{0.2, 0.2, 0.2})
	src.Set(0, 1, Pixel{0.3, 0.3, 0.3})
	src.Set(1, 1, Pixel{0.4, 0.4, 0.4})

	padded, err := Pad(src, 2, BorderReplicate)
	if err != nil {
		t.Fatalf("Pad failed: %v", err)
	}

	tests := []struct {
		x, y int
		want Pixel
	}{
		{0, 0, Pixel{0.1, 0.1, 0.1}}, // top-left corner
		{5, 0, Pixel{0.2, 0.2, 0.2}}, // top-right corner
		{0, 5, Pixel{0.3, 0.3, 0.3}}, // bottom-left corner
		{5, 5, Pixel{0.4, 0.4, 0.4}}, // bottom-right corner
		{1, 3, Pixel{0.3, 0.3, 0.3}}, // left of (0,1)
		{3, 1, Pixel{0.2, 0.2, 0.2}}, // above (1,0)
	}

	for _, tt := range tests {
		if got := padded.At(tt.x, tt.y); got != tt.want {
			t.Errorf("(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPad_Reflect(t *testing.T) {
	// Single row 0.1 0.2 0.3
	src, _ := NewImage(3, 1)
	for x := 0; x < 3; x++ {
		v := float32(x+1) / 10
		src.Set(x, 0, Pixel{v, v, v})
	}

	padded, err := Pad(src, 4, BorderReflect)
	if err != nil {
		t.Fatalf("Pad failed: %v", err)
	}

	// Expected row: 0.3 0.3 0.2 0.1 | 0.1 0.2 0.3 | 0.3 0.2 0.1 0.1
	want := []float32{0.3, 0.3, 0.2, 0.1, 0.1, 0.2, 0.3, 0.3, 0.2, 0.1, 0.1}
	for x, w := range want {
		if got := padded.At(x, 4)[0]; got != w {
			t.Errorf("x=%d: got %v, want %v", x, got, w)
		}
	}
}

func TestPad_Errors(t *testing.T) {
	src := flatImage(t, 3, 3, Pixel{0.5, 0.5, 0.5})

	if _, err := Pad(src, -1, BorderZero); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative offset, got %v", err)
	}
	if _, err := Pad(src, math.MaxInt/2, BorderZero); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for overflowing offset, got %v", err)
	}
	if _, err := Pad(src, 1, BorderMode("wrap")); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for unknown border, got %v", err)
	}
}

// Zero padding darkens reconstructed pixels at the image edge while the
// other policies keep a flat bright image unchanged.
func TestDenoise_BorderRegion(t *testing.T) {
	img := flatImage(t, 8, 8, Pixel{1, 1, 1})

	run := func(border BorderMode) *Image {
		d, err := NewDenoiser(Params{SampleRadius: 0, SearchRadius: 2, FilterParam: 400, Border: border}, Options{Workers: 1})
		if err != nil {
			t.Fatalf("NewDenoiser failed: %v", err)
		}
		out, err := d.Denoise(t.Context(), img)
		if err != nil {
			t.Fatalf("Denoise(%s) failed: %v", border, err)
		}
		return out
	}

	zero := run(BorderZero)
	corner := zero.At(0, 0)[0]
	center := zero.At(4, 4)[0]
	if !(corner < center) {
		t.Errorf("Zero border: corner %v should be darker than center %v", corner, center)
	}
	if math.Abs(float64(center)-1) > 1e-5 {
		t.Errorf("Zero border: center %v should be unaffected", center)
	}

	for _, border := range []BorderMode{BorderReplicate, BorderReflect} {
		out := run(border)
		if diff := maxAbsDiff(img, out); diff > 1e-5 {
			t.Errorf("%s border changed flat image by %g", border, diff)
		}
	}
}

func TestParseBorderMode(t *testing.T) {
	tests := []struct {
		in   string
		want BorderMode
	}{
		{"", BorderZero},
		{"zero", BorderZero},
		{" Replicate ", BorderReplicate},
		{"edge", BorderReplicate},
		{"mirror", BorderReflect},
		{"REFLECT", BorderReflect},
	}

	for _, tt := range tests {
		got, err := ParseBorderMode(tt.in)
		if err != nil {
			t.Errorf("ParseBorderMode(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBorderMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseBorderMode("wrap"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}
}
