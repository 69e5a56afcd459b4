package quality

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

// FilterPerSigma maps a noise standard deviation (on [0,1] data) to a filter
// parameter. Two noisy copies of the same patch then differ by an expected
// exponent near 1, which keeps their weight well above unrelated patches.
const FilterPerSigma = 2.5 * 255

// AddGaussianNoise returns a copy of img with zero-mean Gaussian noise of the
// given standard deviation added to every channel, clamped to [0,1].
// The same seed always produces the same output.
func AddGaussianNoise(img *nlm.Image, sigma float64, seed int64) (*nlm.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", nlm.ErrInvalidInput)
	}
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: sigma must be finite and >= 0, got %v", nlm.ErrInvalidParameter, sigma)
	}

	out := img.Clone()
	if sigma == 0 {
		return out, nil
	}

	rng := rand.New(rand.NewSource(seed))
	for i, v := range out.Pix {
		n := float64(v) + rng.NormFloat64()*sigma
		out.Pix[i] = float32(math.Min(1, math.Max(0, n)))
	}
	return out, nil
}

// immerkaer is the 3x3 Laplacian-difference mask from J. Immerkær,
// "Fast Noise Variance Estimation", CVIU 64(2), 1996.
var immerkaer = [9]float32{
	1, -2, 1,
	-2, 4, -2,
	1, -2, 1,
}

// EstimateNoise estimates the standard deviation of additive Gaussian noise
// on the luminance of img. Images smaller than 3x3 yield 0.
func EstimateNoise(img *nlm.Image) (float64, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return 0, fmt.Errorf("%w: empty image", nlm.ErrInvalidInput)
	}
	w, h := img.Width, img.Height
	if w < 3 || h < 3 {
		return 0, nil
	}

	luma := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := img.Row(y)
		for x := 0; x < w; x++ {
			luma[y*w+x] = 0.299*row[x*3] + 0.587*row[x*3+1] + 0.114*row[x*3+2]
		}
	}

	offsets := [9]int{
		-w - 1, -w, -w + 1,
		-1, 0, 1,
		w - 1, w, w + 1,
	}

	var sum float64
	for y := 1; y < h-1; y++ {
		var rowSum float64
		for x := 1; x < w-1; x++ {
			i := y*w + x
			var conv float32
			for j, o := range offsets {
				conv += luma[i+o] * immerkaer[j]
			}
			rowSum += math.Abs(float64(conv))
		}
		sum += rowSum
	}

	factor := math.Sqrt(0.5*math.Pi) / (6 * float64(w-2) * float64(h-2))
	return sum * factor, nil
}

// SuggestFilterParam maps an estimated noise sigma to a filter parameter.
// The result is never below 1.
func SuggestFilterParam(sigma float64) float64 {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return 1
	}
	return math.Max(1, sigma*FilterPerSigma)
}
