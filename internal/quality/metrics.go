package quality

import (
	"fmt"
	"math"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

// MSE computes Mean Squared Error over all RGB channels
func MSE(a, b *nlm.Image) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("%w: nil image", nlm.ErrInvalidInput)
	}
	if !a.SameSize(b) {
		return 0, fmt.Errorf("%w: image dimensions must match (%dx%d vs %dx%d)",
			nlm.ErrInvalidInput, a.Width, a.Height, b.Width, b.Height)
	}

	var sum float64
	for i, v := range a.Pix {
		d := float64(v) - float64(b.Pix[i])
		sum += d * d
	}

	// Mean over pixels and channels
	return sum / float64(len(a.Pix)), nil
}

// PSNR returns the peak signal-to-noise ratio in dB for a peak of 1.0.
// Identical images yield +Inf.
func PSNR(a, b *nlm.Image) (float64, error) {
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	return PSNRFromMSE(mse), nil
}

// PSNRFromMSE converts an MSE on [0,1] data to dB
func PSNRFromMSE(mse float64) float64 {
	if mse <= 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(1/mse)
}

// MethodNoise returns |a-b| per channel scaled by gain and clamped to [0,1].
// For a denoised image this shows what the filter removed.
func MethodNoise(a, b *nlm.Image, gain float32) (*nlm.Image, error) {
	if a == nil || b == nil || !a.SameSize(b) {
		return nil, fmt.Errorf("%w: image dimensions must match", nlm.ErrInvalidInput)
	}

	out, err := nlm.NewImage(a.Width, a.Height)
	if err != nil {
		return nil, err
	}
	for i, v := range a.Pix {
		d := v - b.Pix[i]
		if d < 0 {
			d = -d
		}
		d *= gain
		if d > 1 {
			d = 1
		}
		out.Pix[i] = d
	}
	return out, nil
}
