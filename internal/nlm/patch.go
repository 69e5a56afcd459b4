package nlm

import (
	"log/slog"
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/vec"
	"golang.org/x/sys/cpu"
)

// PatchBackend indicates which SSD kernel compares patches
type PatchBackend int

const (
	PatchBackendScalar PatchBackend = iota // Portable scalar loop
	PatchBackendHwy                        // go-highway vector kernel over patch rows
)

func (b PatchBackend) String() string {
	switch b {
	case PatchBackendScalar:
		return "scalar"
	case PatchBackendHwy:
		return "hwy"
	default:
		return "unknown"
	}
}

// ActivePatchBackend reports which kernel was selected at initialization
var ActivePatchBackend PatchBackend

// patchSSD is the runtime-dispatched kernel. Set by init() based on CPU features.
var patchSSD func(img *Image, ax, ay, bx, by, radius int) float32

func init() {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		ActivePatchBackend = PatchBackendHwy
		patchSSD = patchSSDHwy
	} else {
		ActivePatchBackend = PatchBackendScalar
		patchSSD = patchSSDScalar
	}
	slog.Debug("Patch kernel initialized", "backend", ActivePatchBackend.String())
}

// Similarity compares the patches of the given radius centered at (ax, ay) and (bx, by)
// in a padded image and returns exp(-SSD·fp2inv), a value in (0,1].
// Identical centers return exactly 1.0 without comparing.
//
// Both patches must lie inside img; Pad guarantees this for every candidate of the search window.
func Similarity(img *Image, ax, ay, bx, by, sampleRadius int, fp2inv float32) float32 {
	if ax == bx && ay == by {
		return 1.0
	}

	sum := patchSSD(img, ax, ay, bx, by, sampleRadius)
	return float32(math.Exp(float64(-sum * fp2inv)))
}

// patchSSDScalar sums squared channel differences pixel by pixel
func patchSSDScalar(img *Image, ax, ay, bx, by, radius int) float32 {
	size := 2*radius + 1
	stride := img.Stride()
	rowLen := size * Channels

	var sum float32
	ia := img.PixOffset(ax-radius, ay-radius)
	ib := img.PixOffset(bx-radius, by-radius)
	for y := 0; y < size; y++ {
		a := img.Pix[ia : ia+rowLen]
		b := img.Pix[ib : ib+rowLen]
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		ia += stride
		ib += stride
	}
	return sum
}

// patchSSDHwy uses the vector L2 kernel on each patch row.
// Patch rows are contiguous in the flat buffer, so each row is a single slice.
func patchSSDHwy(img *Image, ax, ay, bx, by, radius int) float32 {
	size := 2*radius + 1
	stride := img.Stride()
	rowLen := size * Channels

	var sum float32
	ia := img.PixOffset(ax-radius, ay-radius)
	ib := img.PixOffset(bx-radius, by-radius)
	for y := 0; y < size; y++ {
		sum += vec.BaseL2SquaredDistance(img.Pix[ia:ia+rowLen], img.Pix[ib:ib+rowLen])
		ia += stride
		ib += stride
	}
	return sum
}
