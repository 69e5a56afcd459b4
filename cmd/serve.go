package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/nlmdenoise/internal/server"
	"github.com/cwbudde/nlmdenoise/internal/store"
)

var (
	serveAddr    string
	serveDataDir string
	serveWorkers int
	noStore      bool
)

// shutdownTimeout bounds how long running jobs get to stop
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Serves the job API under /api/v1/jobs and a job list at /.
Finished jobs are written to --data-dir unless --no-store is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for job results")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Workers shared by all jobs (0 = all CPUs)")
	serveCmd.Flags().BoolVar(&noStore, "no-store", false, "Keep results in memory only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var resultStore store.Store
	if !noStore {
		fsStore, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create result store: %w", err)
		}
		resultStore = fsStore
		slog.Info("Persisting results", "data_dir", serveDataDir)
	}

	srv := server.NewServer(serveAddr, resultStore, serveWorkers)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
