package nlm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// rowBatch is the number of output rows a worker grabs at a time
const rowBatch = 4

// ProgressFunc is notified after every completed output row.
// It may be called concurrently from several workers and must not block for long.
type ProgressFunc func(done, total int)

// Options controls how a Denoiser schedules work
type Options struct {
	// Workers is the number of parallel workers (<= 0 uses GOMAXPROCS, 1 runs sequentially).
	// Ignored when Pool is set.
	Workers int

	// Pool is an optional shared worker pool. The Denoiser never closes a pool it did not create.
	Pool *workerpool.Pool

	// Progress is an optional row completion observer
	Progress ProgressFunc
}

// Denoiser applies Non-Local Means with fixed parameters
type Denoiser struct {
	params   Params
	pool     *workerpool.Pool
	ownsPool bool
	progress ProgressFunc
}

// NewDenoiser validates params and prepares the worker pool
func NewDenoiser(params Params, opts Options) (*Denoiser, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	border, _ := ParseBorderMode(string(params.Border))
	params.Border = border

	d := &Denoiser{
		params:   params,
		progress: opts.Progress,
	}

	switch {
	case opts.Pool != nil:
		d.pool = opts.Pool
	case opts.Workers == 1:
		// sequential
	default:
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		if workers > 1 {
			d.pool = workerpool.New(workers)
			d.ownsPool = true
		}
	}

	return d, nil
}

// Params returns the normalized parameters of this denoiser
func (d *Denoiser) Params() Params {
	return d.params
}

// Close releases the worker pool if the Denoiser created it
func (d *Denoiser) Close() {
	if d.ownsPool && d.pool != nil {
		d.pool.Close()
	}
}

// Denoise runs Non-Local Means sequentially. It is the plain entry point for callers
// that need neither cancellation nor progress.
func Denoise(img *Image, sampleRadius, searchRadius int, filterParam float64) (*Image, error) {
	d, err := NewDenoiser(Params{
		SampleRadius: sampleRadius,
		SearchRadius: searchRadius,
		FilterParam:  filterParam,
		Border:       BorderZero,
	}, Options{Workers: 1})
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return d.Denoise(context.Background(), img)
}

// Denoise returns a new image of identical dimensions with every channel in [0,1].
// Preconditions are checked before any output is allocated. A cancelled context
// stops scheduling further rows and returns ctx.Err().
func (d *Denoiser) Denoise(ctx context.Context, img *Image) (*Image, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}

	p := d.params
	if p.SampleRadius > math.MaxInt/4 || p.SearchRadius > math.MaxInt/4 {
		return nil, fmt.Errorf("%w: radii %d/%d overflow", ErrInvalidInput, p.SampleRadius, p.SearchRadius)
	}
	offset := p.Offset()

	padded, err := Pad(img, offset, p.Border)
	if err != nil {
		return nil, err
	}
	gauss := NewGaussianTable(p.SearchRadius)

	out, err := NewImage(img.Width, img.Height)
	if err != nil {
		return nil, err
	}

	job := &denoiseJob{
		ctx:      ctx,
		src:      padded,
		dst:      out,
		gauss:    gauss,
		offset:   offset,
		radius:   p.SampleRadius,
		search:   p.SearchRadius,
		fp2inv:   p.FP2Inv(),
		progress: d.progress,
	}

	slog.Debug("Denoise started",
		"width", img.Width,
		"height", img.Height,
		"sample_radius", p.SampleRadius,
		"search_radius", p.SearchRadius,
		"filter", p.FilterParam,
		"border", string(p.Border),
		"backend", ActivePatchBackend.String(),
	)
	start := time.Now()

	if d.pool == nil {
		job.rows(0, img.Height)
	} else {
		d.pool.ParallelForAtomicBatched(img.Height, rowBatch, job.rows)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := job.failure(); err != nil {
		return nil, err
	}

	slog.Debug("Denoise complete", "width", img.Width, "height", img.Height, "elapsed", time.Since(start))
	return out, nil
}

// denoiseJob carries the shared read-only state of one invocation
type denoiseJob struct {
	ctx      context.Context
	src      *Image // padded input
	dst      *Image
	gauss    *GaussianTable
	offset   int
	radius   int
	search   int
	fp2inv   float32
	progress ProgressFunc

	done    atomic.Int64
	errOnce sync.Once
	err     error
	failed  atomic.Bool
}

func (j *denoiseJob) fail(err error) {
	j.errOnce.Do(func() {
		j.err = err
		j.failed.Store(true)
	})
}

func (j *denoiseJob) failure() error {
	if !j.failed.Load() {
		return nil
	}
	return j.err
}

// rows reconstructs output rows [start, end) with a task-private weight scratch
func (j *denoiseJob) rows(start, end int) {
	size := j.gauss.Size
	scratch := make([]float32, size*size)
	total := j.dst.Height

	for y := start; y < end; y++ {
		if j.failed.Load() || j.ctx.Err() != nil {
			return
		}
		for x := 0; x < j.dst.Width; x++ {
			if err := j.pixel(x, y, scratch); err != nil {
				j.fail(err)
				return
			}
		}
		n := j.done.Add(1)
		if j.progress != nil {
			j.progress(int(n), total)
		}
	}
}

// pixel reconstructs output pixel (x, y).
// The first pass stores combined weights in scratch so the normalizer is known
// before the channel pass; similarity is computed once per candidate.
func (j *denoiseJob) pixel(x, y int, scratch []float32) error {
	px := x + j.offset
	py := y + j.offset
	size := j.gauss.Size
	src := j.src

	var weightSum float32
	for iy := 0; iy < size; iy++ {
		cy := py - j.search + iy
		for ix := 0; ix < size; ix++ {
			cx := px - j.search + ix
			w := j.gauss.Weights[iy*size+ix] * Similarity(src, px, py, cx, cy, j.radius, j.fp2inv)
			scratch[iy*size+ix] = w
			weightSum += w
		}
	}

	if !(weightSum > 0) || math.IsInf(float64(weightSum), 0) {
		return fmt.Errorf("%w: weight sum %v at pixel (%d,%d)", ErrComputationAnomaly, weightSum, x, y)
	}

	var acc [Channels]float32
	for iy := 0; iy < size; iy++ {
		row := src.PixOffset(px-j.search, py-j.search+iy)
		weights := scratch[iy*size : (iy+1)*size]
		for ix, w := range weights {
			i := row + ix*Channels
			acc[0] += src.Pix[i+0] * w
			acc[1] += src.Pix[i+1] * w
			acc[2] += src.Pix[i+2] * w
		}
	}

	o := j.dst.PixOffset(x, y)
	for c := 0; c < Channels; c++ {
		v := acc[c] / weightSum
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: channel %d is %v at pixel (%d,%d)", ErrComputationAnomaly, c, v, x, y)
		}
		j.dst.Pix[o+c] = clamp01(v)
	}
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
