package quality

import (
	"fmt"
	"image"

	"github.com/disintegration/gift"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

// GaussianBlurBaseline blurs img with a plain Gaussian of the given sigma.
// It serves as the reference a patch-based filter should beat on edges.
// The result passes through 8 bits per channel.
func GaussianBlurBaseline(img *nlm.Image, sigma float32) (*nlm.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", nlm.ErrInvalidInput)
	}
	if !(sigma >= 0) {
		return nil, fmt.Errorf("%w: sigma must be >= 0, got %v", nlm.ErrInvalidParameter, sigma)
	}

	src := imageio.ToNRGBA(img)
	if sigma == 0 {
		return imageio.FromImage(src)
	}

	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	return imageio.FromImage(dst)
}
