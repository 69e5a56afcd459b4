package server

import (
	"encoding/json"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nfnt/resize"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
	"github.com/cwbudde/nlmdenoise/internal/quality"
)

const (
	// methodNoiseGain amplifies |input-output| so removed noise is visible
	methodNoiseGain = 8

	maxPreviewWidth     = 2048
	defaultPreviewWidth = 320
)

// methodNoiseImage visualizes what the filter removed
func methodNoiseImage(input, output *nlm.Image) (*image.NRGBA, error) {
	diff, err := quality.MethodNoise(input, output, methodNoiseGain)
	if err != nil {
		return nil, err
	}
	return imageio.ToNRGBA(diff), nil
}

// previewImage downsizes img to the requested width, keeping the aspect ratio.
// Images already narrower than width are returned unscaled.
func previewImage(img *nlm.Image, width int) image.Image {
	src := imageio.ToNRGBA(img)
	if width <= 0 || width >= img.Width {
		return src
	}
	return resize.Resize(uint(width), 0, src, resize.Lanczos3)
}

// parsePreviewWidth reads ?width=, clamped to (0, maxPreviewWidth]
func parsePreviewWidth(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("width")
	if raw == "" {
		return defaultPreviewWidth, true
	}
	width, err := strconv.Atoi(raw)
	if err != nil || width <= 0 {
		return 0, false
	}
	return min(width, maxPreviewWidth), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}
