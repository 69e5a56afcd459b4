package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
	"github.com/cwbudde/nlmdenoise/internal/opt"
	"github.com/cwbudde/nlmdenoise/internal/quality"
	"github.com/cwbudde/nlmdenoise/internal/tune"
)

var (
	tuneClean     string
	tuneNoisy     string
	tuneOut       string
	tuneSigma     float64
	tuneSeed      int64
	tuneLower     float64
	tuneUpper     float64
	tuneRounds    int
	tuneIters     int
	tunePop       int
	tuneOptimizer string
	tuneGridSteps int
	tuneSample    int
	tuneSearch    int
	tuneBorder    string
	tuneWorkers   int
	tuneBaseline  float32
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Find the filter parameter that best restores a clean image",
	Long: `Searches the filter parameter minimizing the error between the denoised
noisy image and the clean reference. Without --noisy, noise of --sigma is
synthesized from the clean image with --seed.`,
	RunE: runTune,
}

func init() {
	defaults := tune.DefaultConfig()
	params := nlm.DefaultParams()

	tuneCmd.Flags().StringVar(&tuneClean, "clean", "", "Clean reference image (required)")
	tuneCmd.Flags().StringVar(&tuneNoisy, "noisy", "", "Noisy image (default: synthesize from --clean)")
	tuneCmd.Flags().StringVar(&tuneOut, "out", "", "Optional path for the image denoised with the best filter")
	tuneCmd.Flags().Float64Var(&tuneSigma, "sigma", 0.05, "Noise sigma when synthesizing")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Random seed for noise and optimizer")
	tuneCmd.Flags().Float64Var(&tuneLower, "lower", defaults.Lower, "Lower filter bound")
	tuneCmd.Flags().Float64Var(&tuneUpper, "upper", defaults.Upper, "Upper filter bound")
	tuneCmd.Flags().IntVar(&tuneRounds, "rounds", defaults.Rounds, "Maximum search rounds")
	tuneCmd.Flags().IntVar(&tuneIters, "iters", 20, "Mayfly iterations per round")
	tuneCmd.Flags().IntVar(&tunePop, "pop", opt.MinPopulation, "Mayfly population size")
	tuneCmd.Flags().StringVar(&tuneOptimizer, "optimizer", "mayfly", "Optimizer: mayfly, grid")
	tuneCmd.Flags().IntVar(&tuneGridSteps, "grid-steps", 8, "Grid points per round for --optimizer grid")
	tuneCmd.Flags().IntVar(&tuneSample, "sample-radius", params.SampleRadius, "Patch radius")
	tuneCmd.Flags().IntVar(&tuneSearch, "search-radius", params.SearchRadius, "Search window radius")
	tuneCmd.Flags().StringVar(&tuneBorder, "border", string(params.Border), "Border fill: zero, replicate, reflect")
	tuneCmd.Flags().IntVar(&tuneWorkers, "workers", 0, "Parallel workers (0 = all CPUs)")
	tuneCmd.Flags().Float32Var(&tuneBaseline, "baseline-sigma", defaults.BaselineSigma, "Gaussian blur sigma to compare against (0 = skip)")

	tuneCmd.MarkFlagRequired("clean")
	rootCmd.AddCommand(tuneCmd)
}

func newOptimizer(name string) (opt.Optimizer, error) {
	switch name {
	case "mayfly":
		return opt.NewMayfly(tuneIters, tunePop, tuneSeed), nil
	case "grid":
		return opt.NewGrid(tuneGridSteps), nil
	default:
		return nil, fmt.Errorf("unknown optimizer: %s", name)
	}
}

func runTune(cmd *cobra.Command, args []string) error {
	optimizer, err := newOptimizer(tuneOptimizer)
	if err != nil {
		return err
	}
	border, err := nlm.ParseBorderMode(tuneBorder)
	if err != nil {
		return err
	}

	clean, err := imageio.Load(tuneClean)
	if err != nil {
		return err
	}

	var noisy *nlm.Image
	if tuneNoisy != "" {
		noisy, err = imageio.Load(tuneNoisy)
	} else {
		noisy, err = quality.AddGaussianNoise(clean, tuneSigma, tuneSeed)
		slog.Info("Synthesized noise", "sigma", tuneSigma, "seed", tuneSeed)
	}
	if err != nil {
		return err
	}

	cfg := tune.DefaultConfig()
	cfg.Lower = tuneLower
	cfg.Upper = tuneUpper
	cfg.Rounds = tuneRounds
	cfg.Workers = tuneWorkers
	cfg.BaselineSigma = tuneBaseline
	cfg.OnRound = func(r tune.Round) {
		slog.Info("Round complete",
			"round", r.Index,
			"lower", r.Lower,
			"upper", r.Upper,
			"filter", r.Filter,
			"mse", r.MSE,
			"evaluations", r.Evaluations,
		)
	}

	base := nlm.Params{SampleRadius: tuneSample, SearchRadius: tuneSearch, Border: border}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := tune.TuneFilter(ctx, clean, noisy, base, optimizer, cfg)
	if err != nil {
		return fmt.Errorf("tuning failed: %w", err)
	}

	slog.Info("Tuning complete",
		"filter", result.Filter,
		"psnr", result.PSNR,
		"noop_psnr", result.NoopPSNR,
		"baseline_psnr", result.BaselinePSNR,
		"evaluations", result.Evaluations,
		"converged", result.Converged,
		"elapsed", result.Elapsed,
	)
	fmt.Printf("Best filter: %.3f (PSNR %.2f dB, noisy %.2f dB, %d evaluations)\n",
		result.Filter, result.PSNR, result.NoopPSNR, result.Evaluations)
	if result.BaselineMSE > 0 {
		fmt.Printf("Gaussian blur baseline: %.2f dB\n", result.BaselinePSNR)
	}

	if tuneOut == "" {
		return nil
	}

	base.FilterParam = result.Filter
	denoiser, err := nlm.NewDenoiser(base, nlm.Options{Workers: tuneWorkers})
	if err != nil {
		return err
	}
	defer denoiser.Close()

	output, err := denoiser.Denoise(ctx, noisy)
	if err != nil {
		return err
	}
	if err := imageio.Save(tuneOut, output); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", tuneOut)
	return nil
}
