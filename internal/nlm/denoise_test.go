package nlm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
)

// ---------------------- Test Utilities ----------------------

// flatImage creates an image where every pixel has the same value
func flatImage(t *testing.T, width, height int, p Pixel) *Image {
	t.Helper()
	img, err := NewImage(width, height)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	img.Fill(p)
	return img
}

// randomImage creates an image with uniform random values in [0,1]
func randomImage(t *testing.T, width, height int, seed int64) *Image {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img, err := NewImage(width, height)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	for i := range img.Pix {
		img.Pix[i] = rng.Float32()
	}
	return img
}

// noisyFlatImage adds clamped gaussian noise of the given sigma to a flat gray image
func noisyFlatImage(t *testing.T, width, height int, sigma float64, seed int64) *Image {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := flatImage(t, width, height, Pixel{0.5, 0.5, 0.5})
	for i := range img.Pix {
		img.Pix[i] = clamp01(img.Pix[i] + float32(rng.NormFloat64()*sigma))
	}
	return img
}

// maxAbsDiff returns the largest channel difference between two images
func maxAbsDiff(a, b *Image) float64 {
	var worst float64
	for i := range a.Pix {
		d := math.Abs(float64(a.Pix[i] - b.Pix[i]))
		if d > worst {
			worst = d
		}
	}
	return worst
}

// localVariance averages the 3x3 neighborhood variance over the interior of the image
func localVariance(img *Image, margin int) float64 {
	var total float64
	var n int
	for y := margin; y < img.Height-margin; y++ {
		for x := margin; x < img.Width-margin; x++ {
			for c := 0; c < Channels; c++ {
				var sum, sumSq float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						v := float64(img.At(x+dx, y+dy)[c])
						sum += v
						sumSq += v * v
					}
				}
				mean := sum / 9
				total += sumSq/9 - mean*mean
				n++
			}
		}
	}
	return total / float64(n)
}

// ---------------------- Correctness Tests ----------------------

func TestDenoise_DimensionPreservation(t *testing.T) {
	sizes := []struct {
		width, height int
	}{
		{1, 1},
		{4, 4},
		{7, 3},
		{3, 11},
		{16, 9},
	}

	for _, sz := range sizes {
		t.Run(fmt.Sprintf("%dx%d", sz.width, sz.height), func(t *testing.T) {
			img := randomImage(t, sz.width, sz.height, 42)

			out, err := Denoise(img, 1, 2, 20)
			if err != nil {
				t.Fatalf("Denoise failed: %v", err)
			}

			if out.Width != img.Width || out.Height != img.Height {
				t.Errorf("Expected %dx%d, got %dx%d", img.Width, img.Height, out.Width, out.Height)
			}
			if len(out.Pix) != len(img.Pix) {
				t.Errorf("Expected %d values, got %d", len(img.Pix), len(out.Pix))
			}
		})
	}
}

func TestDenoise_RangeInvariant(t *testing.T) {
	img := randomImage(t, 12, 10, 7)
	// Push some values outside [0,1] to exercise the clamp
	img.Pix[0] = 1.5
	img.Pix[5] = -0.25

	out, err := Denoise(img, 1, 2, 200)
	if err != nil {
		t.Fatalf("Denoise failed: %v", err)
	}

	for i, v := range out.Pix {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			t.Fatalf("Value %d out of range: %v", i, v)
		}
	}
}

func TestDenoise_FlatImageScenario(t *testing.T) {
	img := flatImage(t, 4, 4, Pixel{0.5, 0.5, 0.5})

	out, err := Denoise(img, 1, 1, 20.0)
	if err != nil {
		t.Fatalf("Denoise failed: %v", err)
	}

	if diff := maxAbsDiff(img, out); diff > 1e-5 {
		t.Errorf("Flat 4x4 image changed by %g, want <= 1e-5", diff)
	}
}

func TestDenoise_FlatImageFixedPoint(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		pixel  Pixel
		params Params
	}{
		{"gray zero border", 9, 6, Pixel{0.5, 0.5, 0.5}, Params{SampleRadius: 1, SearchRadius: 2, FilterParam: 20}},
		{"color zero border", 5, 8, Pixel{0.9, 0.2, 0.6}, Params{SampleRadius: 2, SearchRadius: 3, FilterParam: 10}},
		{"black", 6, 6, Pixel{0, 0, 0}, Params{SampleRadius: 1, SearchRadius: 1, FilterParam: 50}},
		{"replicate border", 7, 7, Pixel{0.3, 0.7, 0.1}, Params{SampleRadius: 1, SearchRadius: 3, FilterParam: 200, Border: BorderReplicate}},
		{"reflect border", 7, 5, Pixel{0.8, 0.8, 0.8}, Params{SampleRadius: 2, SearchRadius: 2, FilterParam: 200, Border: BorderReflect}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := flatImage(t, tt.width, tt.height, tt.pixel)

			d, err := NewDenoiser(tt.params, Options{Workers: 2})
			if err != nil {
				t.Fatalf("NewDenoiser failed: %v", err)
			}
			defer d.Close()

			out, err := d.Denoise(context.Background(), img)
			if err != nil {
				t.Fatalf("Denoise failed: %v", err)
			}

			if diff := maxAbsDiff(img, out); diff > 1e-5 {
				t.Errorf("Flat image changed by %g, want <= 1e-5", diff)
			}
		})
	}
}

func TestDenoise_DegenerateSearchWindow(t *testing.T) {
	img := randomImage(t, 10, 8, 99)

	for _, sampleRadius := range []int{0, 1, 3} {
		for _, filter := range []float64{0.5, 20, 500} {
			t.Run(fmt.Sprintf("sample=%d/filter=%g", sampleRadius, filter), func(t *testing.T) {
				out, err := Denoise(img, sampleRadius, 0, filter)
				if err != nil {
					t.Fatalf("Denoise failed: %v", err)
				}
				if diff := maxAbsDiff(img, out); diff > 1e-5 {
					t.Errorf("Search radius 0 should be identity, max diff %g", diff)
				}
			})
		}
	}
}

func TestDenoise_MonotonicSmoothing(t *testing.T) {
	img := noisyFlatImage(t, 24, 24, 0.08, 1234)

	var prev float64 = math.Inf(1)
	for _, filter := range []float64{2, 10, 40, 120} {
		d, err := NewDenoiser(Params{SampleRadius: 1, SearchRadius: 3, FilterParam: filter, Border: BorderReplicate}, Options{})
		if err != nil {
			t.Fatalf("NewDenoiser failed: %v", err)
		}
		out, err := d.Denoise(context.Background(), img)
		d.Close()
		if err != nil {
			t.Fatalf("Denoise failed: %v", err)
		}

		v := localVariance(out, 2)
		if v > prev*1.0001 {
			t.Errorf("filter=%g: local variance %g increased over smaller filter (%g)", filter, v, prev)
		}
		prev = v
	}

	if noisy := localVariance(img, 2); prev >= noisy {
		t.Errorf("Strong filtering should reduce variance: got %g, input %g", prev, noisy)
	}
}

func TestDenoise_ParallelMatchesSequential(t *testing.T) {
	img := randomImage(t, 21, 17, 5)
	params := Params{SampleRadius: 1, SearchRadius: 3, FilterParam: 30}

	seq, err := NewDenoiser(params, Options{Workers: 1})
	if err != nil {
		t.Fatalf("NewDenoiser failed: %v", err)
	}
	want, err := seq.Denoise(context.Background(), img)
	if err != nil {
		t.Fatalf("Sequential denoise failed: %v", err)
	}

	par, err := NewDenoiser(params, Options{Workers: 4})
	if err != nil {
		t.Fatalf("NewDenoiser failed: %v", err)
	}
	defer par.Close()
	got, err := par.Denoise(context.Background(), img)
	if err != nil {
		t.Fatalf("Parallel denoise failed: %v", err)
	}

	for i := range want.Pix {
		if want.Pix[i] != got.Pix[i] {
			t.Fatalf("Value %d differs: sequential %v, parallel %v", i, want.Pix[i], got.Pix[i])
		}
	}
}

func TestDenoise_DoesNotModifyInput(t *testing.T) {
	img := randomImage(t, 8, 8, 3)
	orig := img.Clone()

	if _, err := Denoise(img, 1, 2, 20); err != nil {
		t.Fatalf("Denoise failed: %v", err)
	}

	if diff := maxAbsDiff(img, orig); diff != 0 {
		t.Errorf("Input image was modified (max diff %g)", diff)
	}
}

// ---------------------- Error Handling Tests ----------------------

func TestDenoise_InvalidParameter(t *testing.T) {
	img := flatImage(t, 4, 4, Pixel{0.5, 0.5, 0.5})

	tests := []struct {
		name   string
		filter float64
		sample int
		search int
	}{
		{"zero filter", 0, 1, 1},
		{"negative filter", -3, 1, 1},
		{"NaN filter", math.NaN(), 1, 1},
		{"infinite filter", math.Inf(1), 1, 1},
		{"denormal filter", 1e-300, 1, 1},
		{"negative sample radius", 20, -1, 1},
		{"negative search radius", 20, 1, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Denoise(img, tt.sample, tt.search, tt.filter)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("Expected ErrInvalidParameter, got %v", err)
			}
			if out != nil {
				t.Error("Expected no output image on error")
			}
		})
	}
}

func TestDenoise_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		img  *Image
	}{
		{"nil image", nil},
		{"zero width", &Image{Width: 0, Height: 4}},
		{"zero height", &Image{Width: 4, Height: 0, Pix: []float32{}}},
		{"short buffer", &Image{Width: 2, Height: 2, Pix: make([]float32, 5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Denoise(tt.img, 1, 1, 20)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestDenoise_ComputationAnomaly(t *testing.T) {
	img := randomImage(t, 6, 6, 11)
	img.Pix[img.PixOffset(3, 3)+1] = float32(math.NaN())

	_, err := Denoise(img, 1, 1, 20)
	if !errors.Is(err, ErrComputationAnomaly) {
		t.Errorf("Expected ErrComputationAnomaly, got %v", err)
	}
}

func TestNewImage_Invalid(t *testing.T) {
	if _, err := NewImage(0, 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero width, got %v", err)
	}
	if _, err := NewImage(5, -1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative height, got %v", err)
	}
	if _, err := NewImage(math.MaxInt/2, 4); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for overflow, got %v", err)
	}
}

// ---------------------- Progress & Cancellation ----------------------

func TestDenoise_Progress(t *testing.T) {
	img := randomImage(t, 9, 13, 1)

	var calls atomic.Int32
	var last atomic.Int32
	d, err := NewDenoiser(Params{SampleRadius: 1, SearchRadius: 1, FilterParam: 20}, Options{
		Workers: 3,
		Progress: func(done, total int) {
			calls.Add(1)
			if total != 13 {
				t.Errorf("Expected total 13, got %d", total)
			}
			for {
				cur := last.Load()
				if int32(done) <= cur || last.CompareAndSwap(cur, int32(done)) {
					break
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("NewDenoiser failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Denoise(context.Background(), img); err != nil {
		t.Fatalf("Denoise failed: %v", err)
	}

	if calls.Load() != 13 {
		t.Errorf("Expected 13 progress calls, got %d", calls.Load())
	}
	if last.Load() != 13 {
		t.Errorf("Expected final progress 13, got %d", last.Load())
	}
}

func TestDenoise_ProgressDoesNotChangeResult(t *testing.T) {
	img := randomImage(t, 10, 10, 8)
	params := Params{SampleRadius: 1, SearchRadius: 2, FilterParam: 25}

	plain, _ := NewDenoiser(params, Options{Workers: 1})
	observed, _ := NewDenoiser(params, Options{Workers: 1, Progress: func(int, int) {}})

	a, err := plain.Denoise(context.Background(), img)
	if err != nil {
		t.Fatalf("Denoise failed: %v", err)
	}
	b, err := observed.Denoise(context.Background(), img)
	if err != nil {
		t.Fatalf("Denoise failed: %v", err)
	}

	if diff := maxAbsDiff(a, b); diff != 0 {
		t.Errorf("Progress observer changed output (max diff %g)", diff)
	}
}

func TestDenoise_Cancelled(t *testing.T) {
	img := randomImage(t, 16, 16, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := NewDenoiser(Params{SampleRadius: 1, SearchRadius: 2, FilterParam: 20}, Options{Workers: 2})
	if err != nil {
		t.Fatalf("NewDenoiser failed: %v", err)
	}
	defer d.Close()

	out, err := d.Denoise(ctx, img)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if out != nil {
		t.Error("Expected no output for cancelled run")
	}
}

func TestDenoise_SharedPool(t *testing.T) {
	d1, _ := NewDenoiser(Params{SampleRadius: 1, SearchRadius: 1, FilterParam: 20}, Options{Workers: 2})
	defer d1.Close()

	// Borrow d1's pool; closing d2 must leave it usable.
	d2, err := NewDenoiser(Params{SampleRadius: 1, SearchRadius: 1, FilterParam: 20}, Options{Pool: d1.pool})
	if err != nil {
		t.Fatalf("NewDenoiser failed: %v", err)
	}
	d2.Close()

	img := randomImage(t, 8, 8, 4)
	if _, err := d1.Denoise(context.Background(), img); err != nil {
		t.Fatalf("Denoise on shared pool failed: %v", err)
	}
	if _, err := d2.Denoise(context.Background(), img); err != nil {
		t.Fatalf("Denoise with borrowed pool failed: %v", err)
	}
}

// ---------------------- Benchmarks ----------------------

func BenchmarkDenoise(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	img, _ := NewImage(64, 64)
	for i := range img.Pix {
		img.Pix[i] = rng.Float32()
	}

	for _, workers := range []int{1, 0} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			d, _ := NewDenoiser(DefaultParams(), Options{Workers: workers})
			defer d.Close()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := d.Denoise(context.Background(), img); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
