// Package tune searches the NLM filter parameter that best restores a known
// clean image from its noisy version.
package tune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
	"github.com/cwbudde/nlmdenoise/internal/opt"
	"github.com/cwbudde/nlmdenoise/internal/quality"
)

// Config controls the filter search
type Config struct {
	// Lower and Upper bound the filter parameter (Lower > 0)
	Lower, Upper float64

	// Rounds is the maximum number of optimizer runs
	Rounds int

	// Shrink is the factor applied to the search interval after each round (0 < Shrink <= 1)
	Shrink float64

	Convergence ConvergenceConfig

	// Workers sizes the shared denoising pool (<= 0 uses GOMAXPROCS)
	Workers int

	// BaselineSigma is the Gaussian blur the result is compared against (0 skips it)
	BaselineSigma float32

	// OnRound is called after every completed round
	OnRound func(Round)
}

// DefaultConfig returns the search settings used by the CLI
func DefaultConfig() Config {
	return Config{
		Lower:         1,
		Upper:         100,
		Rounds:        4,
		Shrink:        0.4,
		Convergence:   DefaultConvergenceConfig(),
		BaselineSigma: 1,
	}
}

// Validate checks the search settings
func (c Config) Validate() error {
	if !(c.Lower > 0) || math.IsInf(c.Upper, 0) || !(c.Upper >= c.Lower) {
		return fmt.Errorf("%w: filter bounds must satisfy 0 < lower <= upper, got [%v, %v]",
			nlm.ErrInvalidParameter, c.Lower, c.Upper)
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be > 0, got %d", nlm.ErrInvalidParameter, c.Rounds)
	}
	if !(c.Shrink > 0 && c.Shrink <= 1) {
		return fmt.Errorf("%w: shrink must be in (0,1], got %v", nlm.ErrInvalidParameter, c.Shrink)
	}
	if c.BaselineSigma < 0 {
		return fmt.Errorf("%w: baseline sigma must be >= 0, got %v", nlm.ErrInvalidParameter, c.BaselineSigma)
	}
	return nil
}

// Round is the outcome of one optimizer run
type Round struct {
	Index       int     `json:"index"`
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
	Filter      float64 `json:"filter"`
	MSE         float64 `json:"mse"`
	Evaluations int     `json:"evaluations"`
}

// Result is the best filter found and how it compares to doing nothing
type Result struct {
	Filter   float64 `json:"filter"`
	MSE      float64 `json:"mse"`
	PSNR     float64 `json:"psnr"`
	NoopMSE  float64 `json:"noop_mse"`
	NoopPSNR float64 `json:"noop_psnr"`

	// BaselineMSE is the error of a plain Gaussian blur, zero when skipped
	BaselineMSE  float64 `json:"baseline_mse,omitempty"`
	BaselinePSNR float64 `json:"baseline_psnr,omitempty"`

	Rounds      []Round       `json:"rounds"`
	Evaluations int           `json:"evaluations"`
	Converged   bool          `json:"converged"`
	Elapsed     time.Duration `json:"elapsed"`
}

// TuneFilter minimizes MSE(denoise(noisy), clean) over the filter parameter.
// Radii and border come from base; its FilterParam is ignored. Every round runs
// optimizer over the current interval, then narrows the interval around the best
// filter so far. A cancelled context aborts with ctx.Err().
func TuneFilter(ctx context.Context, clean, noisy *nlm.Image, base nlm.Params, optimizer opt.Optimizer, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if optimizer == nil {
		return nil, errors.New("optimizer is required")
	}

	noopMSE, err := quality.MSE(noisy, clean)
	if err != nil {
		return nil, err
	}

	base.FilterParam = cfg.Lower
	if err := base.Validate(); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool := workerpool.New(workers)
	defer pool.Close()

	start := time.Now()
	result := &Result{
		NoopMSE:  noopMSE,
		NoopPSNR: quality.PSNRFromMSE(noopMSE),
		MSE:      math.Inf(1),
	}

	var evalErr error
	evaluate := func(filter float64) float64 {
		if evalErr != nil {
			return math.Inf(1)
		}
		result.Evaluations++

		params := base
		params.FilterParam = filter
		d, err := nlm.NewDenoiser(params, nlm.Options{Pool: pool})
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		out, err := d.Denoise(ctx, noisy)
		d.Close()
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		mse, err := quality.MSE(out, clean)
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return mse
	}

	tracker := NewConvergenceTracker(cfg.Convergence)
	lower, upper := cfg.Lower, cfg.Upper

	for i := 0; i < cfg.Rounds; i++ {
		before := result.Evaluations
		best, cost, err := optimizer.Run(func(x []float64) float64 {
			return evaluate(x[0])
		}, []float64{lower}, []float64{upper}, 1)
		if evalErr != nil {
			return nil, evalErr
		}
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", i, err)
		}

		round := Round{
			Index:       i,
			Lower:       lower,
			Upper:       upper,
			Filter:      best[0],
			MSE:         cost,
			Evaluations: result.Evaluations - before,
		}
		result.Rounds = append(result.Rounds, round)

		if cost < result.MSE {
			result.MSE = cost
			result.Filter = best[0]
		}

		slog.Info("Tuning round complete",
			"round", i,
			"lower", lower,
			"upper", upper,
			"filter", round.Filter,
			"mse", cost,
			"best_filter", result.Filter,
		)
		if cfg.OnRound != nil {
			cfg.OnRound(round)
		}

		if tracker.Update(result.MSE) {
			result.Converged = true
			break
		}

		// Narrow around the best filter, clamped to the configured bounds
		half := (upper - lower) * cfg.Shrink / 2
		lower = math.Max(cfg.Lower, result.Filter-half)
		upper = math.Min(cfg.Upper, result.Filter+half)
	}

	result.PSNR = quality.PSNRFromMSE(result.MSE)

	if cfg.BaselineSigma > 0 {
		blurred, err := quality.GaussianBlurBaseline(noisy, cfg.BaselineSigma)
		if err != nil {
			return nil, err
		}
		if result.BaselineMSE, err = quality.MSE(blurred, clean); err != nil {
			return nil, err
		}
		result.BaselinePSNR = quality.PSNRFromMSE(result.BaselineMSE)
	}

	result.Elapsed = time.Since(start)
	return result, nil
}
