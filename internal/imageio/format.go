package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xfmoulet/qoi"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

// Format identifies an on-disk image encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
	FormatQOI  Format = "qoi"
	FormatNLMZ Format = "nlmz"
)

// JPEGQuality is used for .jpg/.jpeg output
const JPEGQuality = 95

// ErrUnsupportedFormat is returned for unknown extensions or write-only misuse
var ErrUnsupportedFormat = errors.New("unsupported image format")

// FormatFromPath picks a format from the file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".gif":
		return FormatGIF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".webp":
		return FormatWebP, nil
	case ".qoi":
		return FormatQOI, nil
	case ".nlmz":
		return FormatNLMZ, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Load reads an image file and converts it to a float RGB buffer.
// Raster formats are sniffed by image.Decode; .nlmz is selected by extension
// because its float payload does not fit image.Image.
func Load(path string) (*nlm.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	if format, err := FormatFromPath(path); err == nil && format == FormatNLMZ {
		img, err := DecodeNLMZ(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return img, nil
	}

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	slog.Debug("Loaded image", "path", path, "width", img.Width, "height", img.Height)
	return img, nil
}

// Decode reads any registered 8/16-bit raster format
func Decode(r io.Reader) (*nlm.Image, error) {
	src, name, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	slog.Debug("Decoded image", "format", name)
	return FromImage(src)
}

// Save writes img to path, choosing the encoder from the extension.
// Raster formats are quantized to 8 bits; .nlmz keeps the floats.
func Save(path string, img *nlm.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := Encode(f, img, format); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	slog.Debug("Saved image", "path", path, "format", format)
	return nil
}

// Encode writes img in the given format
func Encode(w io.Writer, img *nlm.Image, format Format) error {
	if format == FormatNLMZ {
		return EncodeNLMZ(w, img)
	}

	out := ToNRGBA(img)
	switch format {
	case FormatPNG:
		return png.Encode(w, out)
	case FormatJPEG:
		return jpeg.Encode(w, out, &jpeg.Options{Quality: JPEGQuality})
	case FormatGIF:
		return gif.Encode(w, out, nil)
	case FormatBMP:
		return bmp.Encode(w, out)
	case FormatTIFF:
		return tiff.Encode(w, out, &tiff.Options{Compression: tiff.Deflate})
	case FormatQOI:
		return qoi.Encode(w, out)
	}
	return fmt.Errorf("%w: cannot encode %s", ErrUnsupportedFormat, format)
}
