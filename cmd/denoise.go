package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
	"github.com/cwbudde/nlmdenoise/internal/quality"
)

var (
	inPath       string
	outPath      string
	sampleRadius int
	searchRadius int
	filterParam  float64
	borderMode   string
	workers      int
	autoFilter   bool
)

var denoiseCmd = &cobra.Command{
	Use:   "denoise",
	Short: "Denoise an image file",
	Long: `Applies Non-Local Means to the input image and writes the result.
The output format is chosen from the extension of --out; .nlmz keeps full float precision.`,
	RunE: runDenoise,
}

func init() {
	defaults := nlm.DefaultParams()

	denoiseCmd.Flags().StringVar(&inPath, "in", "", "Input image path (required)")
	denoiseCmd.Flags().StringVar(&outPath, "out", "out.png", "Output image path")
	denoiseCmd.Flags().IntVar(&sampleRadius, "sample-radius", defaults.SampleRadius, "Patch radius")
	denoiseCmd.Flags().IntVar(&searchRadius, "search-radius", defaults.SearchRadius, "Search window radius")
	denoiseCmd.Flags().Float64Var(&filterParam, "filter", defaults.FilterParam, "Filter parameter (larger smooths more)")
	denoiseCmd.Flags().StringVar(&borderMode, "border", string(defaults.Border), "Border fill: zero, replicate, reflect")
	denoiseCmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (0 = all CPUs, 1 = sequential)")
	denoiseCmd.Flags().BoolVar(&autoFilter, "auto-filter", false, "Derive the filter parameter from the estimated noise")

	denoiseCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(denoiseCmd)
}

func runDenoise(cmd *cobra.Command, args []string) error {
	// Fail on a bad output extension before doing any work
	if _, err := imageio.FormatFromPath(outPath); err != nil {
		return err
	}

	border, err := nlm.ParseBorderMode(borderMode)
	if err != nil {
		return err
	}

	input, err := imageio.Load(inPath)
	if err != nil {
		return err
	}
	slog.Info("Loaded input", "path", inPath, "width", input.Width, "height", input.Height)

	params := nlm.Params{
		SampleRadius: sampleRadius,
		SearchRadius: searchRadius,
		FilterParam:  filterParam,
		Border:       border,
	}
	if autoFilter {
		sigma, err := quality.EstimateNoise(input)
		if err != nil {
			return err
		}
		params.FilterParam = quality.SuggestFilterParam(sigma)
		slog.Info("Estimated noise", "sigma", sigma, "filter", params.FilterParam)
	}

	var rowsDone atomic.Int64
	denoiser, err := nlm.NewDenoiser(params, nlm.Options{
		Workers: workers,
		Progress: func(done, total int) {
			rowsDone.Add(1)
		},
	})
	if err != nil {
		return err
	}
	defer denoiser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	done := make(chan struct{})
	go logProgress(ctx, &rowsDone, input.Height, done)

	start := time.Now()
	output, err := denoiser.Denoise(ctx, input)
	close(done)
	if err != nil {
		return fmt.Errorf("denoising failed: %w", err)
	}
	elapsed := time.Since(start)

	if err := imageio.Save(outPath, output); err != nil {
		return err
	}

	rowsPerSecond := float64(output.Height) / elapsed.Seconds()
	slog.Info("Denoising complete",
		"elapsed", elapsed,
		"filter", params.FilterParam,
		"backend", nlm.ActivePatchBackend.String(),
		"rows_per_second", fmt.Sprintf("%.1f", rowsPerSecond),
	)

	fmt.Printf("Wrote %s (%dx%d, filter %.2f, %s)\n", outPath, output.Width, output.Height, params.FilterParam, elapsed.Round(time.Millisecond))
	return nil
}

// logProgress reports row progress every second until done is closed
func logProgress(ctx context.Context, rows *atomic.Int64, total int, done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := rows.Load()
			slog.Info("Progress", "rows", n, "total", total, "percent", fmt.Sprintf("%.1f", 100*float64(n)/float64(total)))
		}
	}
}
