package quality

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

func flatImage(t *testing.T, w, h int, p nlm.Pixel) *nlm.Image {
	t.Helper()
	img, err := nlm.NewImage(w, h)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	img.Fill(p)
	return img
}

// checkerImage alternates black and white blocks of the given size
func checkerImage(t *testing.T, w, h, block int) *nlm.Image {
	t.Helper()
	img, err := nlm.NewImage(w, h)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/block+y/block)%2 == 0 {
				img.Set(x, y, nlm.Pixel{1, 1, 1})
			}
		}
	}
	return img
}

func TestMSE(t *testing.T) {
	a := flatImage(t, 4, 4, nlm.Pixel{0.5, 0.5, 0.5})
	b := flatImage(t, 4, 4, nlm.Pixel{0.5, 0.5, 0.5})

	mse, err := MSE(a, b)
	if err != nil {
		t.Fatalf("MSE failed: %v", err)
	}
	if mse != 0 {
		t.Errorf("Expected 0 for identical images, got %v", mse)
	}

	b.Fill(nlm.Pixel{0.5, 0.5, 0.25})
	mse, _ = MSE(a, b)
	// One channel of three differs by 0.25
	want := 0.0625 / 3
	if math.Abs(mse-want) > 1e-9 {
		t.Errorf("Expected %v, got %v", want, mse)
	}
}

func TestMSE_SizeMismatch(t *testing.T) {
	a := flatImage(t, 4, 4, nlm.Pixel{})
	b := flatImage(t, 4, 5, nlm.Pixel{})

	if _, err := MSE(a, b); !errors.Is(err, nlm.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestPSNR(t *testing.T) {
	a := flatImage(t, 3, 3, nlm.Pixel{0, 0, 0})
	b := flatImage(t, 3, 3, nlm.Pixel{0.1, 0.1, 0.1})

	psnr, err := PSNR(a, b)
	if err != nil {
		t.Fatalf("PSNR failed: %v", err)
	}
	// MSE = 0.01 -> 20 dB
	if math.Abs(psnr-20) > 1e-4 {
		t.Errorf("Expected 20 dB, got %v", psnr)
	}

	if got := PSNRFromMSE(0); !math.IsInf(got, 1) {
		t.Errorf("Expected +Inf for zero MSE, got %v", got)
	}
}

func TestMethodNoise(t *testing.T) {
	a := flatImage(t, 2, 2, nlm.Pixel{0.5, 0.5, 0.5})
	b := flatImage(t, 2, 2, nlm.Pixel{0.4, 0.6, 0.5})

	out, err := MethodNoise(a, b, 4)
	if err != nil {
		t.Fatalf("MethodNoise failed: %v", err)
	}

	got := out.At(1, 1)
	for c, want := range []float32{0.4, 0.4, 0} {
		if math.Abs(float64(got[c]-want)) > 1e-5 {
			t.Errorf("Channel %d: got %v, want %v", c, got[c], want)
		}
	}

	out, _ = MethodNoise(a, b, 100)
	if got := out.At(0, 0)[0]; got != 1 {
		t.Errorf("Expected clamp to 1, got %v", got)
	}
}

func TestAddGaussianNoise(t *testing.T) {
	clean := flatImage(t, 64, 64, nlm.Pixel{0.5, 0.5, 0.5})

	noisy, err := AddGaussianNoise(clean, 0.05, 42)
	if err != nil {
		t.Fatalf("AddGaussianNoise failed: %v", err)
	}
	again, _ := AddGaussianNoise(clean, 0.05, 42)

	for i := range noisy.Pix {
		if noisy.Pix[i] != again.Pix[i] {
			t.Fatal("Same seed produced different noise")
		}
		if noisy.Pix[i] < 0 || noisy.Pix[i] > 1 {
			t.Fatalf("Value %v out of range", noisy.Pix[i])
		}
	}

	mse, _ := MSE(clean, noisy)
	if sd := math.Sqrt(mse); math.Abs(sd-0.05) > 0.005 {
		t.Errorf("Expected noise sd near 0.05, got %v", sd)
	}

	// Input untouched
	if clean.At(10, 10) != (nlm.Pixel{0.5, 0.5, 0.5}) {
		t.Error("AddGaussianNoise modified its input")
	}
}

func TestAddGaussianNoise_InvalidSigma(t *testing.T) {
	img := flatImage(t, 2, 2, nlm.Pixel{})
	for _, sigma := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := AddGaussianNoise(img, sigma, 1); !errors.Is(err, nlm.ErrInvalidParameter) {
			t.Errorf("sigma=%v: expected ErrInvalidParameter, got %v", sigma, err)
		}
	}
}

func TestEstimateNoise(t *testing.T) {
	clean := flatImage(t, 128, 128, nlm.Pixel{0.5, 0.5, 0.5})

	est, err := EstimateNoise(clean)
	if err != nil {
		t.Fatalf("EstimateNoise failed: %v", err)
	}
	if est > 1e-6 {
		t.Errorf("Flat image should have no noise, got %v", est)
	}

	// Same noise on all channels so luminance carries the full sigma
	noisy := clean.Clone()
	gray, _ := AddGaussianNoise(flatImage(t, 128, 128, nlm.Pixel{0.5, 0.5, 0.5}), 0.04, 3)
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			v := gray.At(x, y)[0]
			noisy.Set(x, y, nlm.Pixel{v, v, v})
		}
	}

	est, err = EstimateNoise(noisy)
	if err != nil {
		t.Fatalf("EstimateNoise failed: %v", err)
	}
	if math.Abs(est-0.04) > 0.006 {
		t.Errorf("Expected estimate near 0.04, got %v", est)
	}
}

func TestEstimateNoise_Tiny(t *testing.T) {
	img := flatImage(t, 2, 5, nlm.Pixel{0.3, 0.3, 0.3})
	est, err := EstimateNoise(img)
	if err != nil || est != 0 {
		t.Errorf("Expected 0 without error, got %v, %v", est, err)
	}
}

func TestSuggestFilterParam(t *testing.T) {
	if got := SuggestFilterParam(0); got != 1 {
		t.Errorf("Expected floor of 1, got %v", got)
	}
	if got := SuggestFilterParam(math.NaN()); got != 1 {
		t.Errorf("Expected 1 for NaN, got %v", got)
	}
	small := SuggestFilterParam(0.02)
	large := SuggestFilterParam(0.1)
	if !(large > small) {
		t.Errorf("Expected larger filter for more noise: %v vs %v", small, large)
	}
}

func TestGaussianBlurBaseline(t *testing.T) {
	img := checkerImage(t, 16, 16, 2)

	blurred, err := GaussianBlurBaseline(img, 1.5)
	if err != nil {
		t.Fatalf("GaussianBlurBaseline failed: %v", err)
	}
	if !blurred.SameSize(img) {
		t.Fatalf("Expected %dx%d, got %dx%d", img.Width, img.Height, blurred.Width, blurred.Height)
	}

	// Blurring a checkerboard pulls pixels toward gray
	center := blurred.At(8, 8)[0]
	if center <= 0.1 || center >= 0.9 {
		t.Errorf("Expected intermediate value after blur, got %v", center)
	}

	same, err := GaussianBlurBaseline(img, 0)
	if err != nil {
		t.Fatalf("GaussianBlurBaseline(0) failed: %v", err)
	}
	if mse, _ := MSE(img, same); mse != 0 {
		t.Errorf("Zero sigma should be identity, MSE %v", mse)
	}

	if _, err := GaussianBlurBaseline(img, -1); !errors.Is(err, nlm.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}
}
