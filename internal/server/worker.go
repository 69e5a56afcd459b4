package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
	"github.com/cwbudde/nlmdenoise/internal/quality"
	"github.com/cwbudde/nlmdenoise/internal/store"
)

// progressInterval throttles progress broadcasts and trace samples
const progressInterval = 250 * time.Millisecond

// runJob executes a denoising job. Rows are scheduled on the shared pool.
// If resultStore is not nil, the outcome and output are persisted.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, pool *workerpool.Pool, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, resultStore, jobID)
		return err
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.Backend = nlm.ActivePatchBackend.String()
	}); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "input", job.Config.InputPath)

	input, err := imageio.Load(job.Config.InputPath)
	if err != nil {
		markJobFailed(jm, resultStore, jobID, err)
		return err
	}

	params := job.Config.Params()
	var noise float64
	if job.Config.AutoFilter {
		noise, err = quality.EstimateNoise(input)
		if err != nil {
			markJobFailed(jm, resultStore, jobID, err)
			return err
		}
		params.FilterParam = quality.SuggestFilterParam(noise)
		slog.Info("Estimated noise", "job_id", jobID, "sigma", noise, "filter", params.FilterParam)
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.input = input
		j.Width = input.Width
		j.Height = input.Height
		j.FilterParam = params.FilterParam
		j.EstimatedNoise = noise
	})

	slog.Info("Loaded input image", "job_id", jobID, "width", input.Width, "height", input.Height)

	denoiser, err := nlm.NewDenoiser(params, nlm.Options{
		Pool: pool,
		Progress: func(done, total int) {
			jm.UpdateJob(jobID, func(j *Job) {
				if done > j.RowsDone {
					j.RowsDone = done
				}
			})
		},
	})
	if err != nil {
		markJobFailed(jm, resultStore, jobID, err)
		return err
	}
	defer denoiser.Close()

	var trace *store.TraceWriter
	if resultStore != nil {
		trace, err = store.NewTraceWriter(resultStore.JobDir(jobID), false)
		if err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		}
	}

	start := time.Now()
	progressDone := make(chan struct{})
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitorProgress(ctx, jm, trace, jobID, start, progressDone)
	}()

	output, err := denoiser.Denoise(ctx, input)

	close(progressDone)
	<-monitorDone
	if trace != nil {
		trace.Close()
	}
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, resultStore, jobID)
		return err
	case err != nil:
		markJobFailed(jm, resultStore, jobID, err)
		return err
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.output = output
		j.RowsDone = output.Height
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	rowsPerSecond := float64(output.Height) / elapsed.Seconds()
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"filter", params.FilterParam,
		"rows_per_second", rowsPerSecond,
	)

	if resultStore != nil {
		if err := persistJob(jm, resultStore, jobID, output, elapsed); err != nil {
			slog.Error("Failed to persist result", "job_id", jobID, "error", err)
		}
	}

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:         jobID,
		State:         StateCompleted,
		RowsDone:      output.Height,
		TotalRows:     output.Height,
		Progress:      1,
		RowsPerSecond: rowsPerSecond,
		Timestamp:     time.Now(),
	})

	return nil
}

// monitorProgress periodically broadcasts progress events and samples the trace
func monitorProgress(ctx context.Context, jm *JobManager, trace *store.TraceWriter, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			elapsed := time.Since(startTime)
			var rps float64
			if elapsed > 0 {
				rps = float64(job.RowsDone) / elapsed.Seconds()
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:         jobID,
				State:         job.State,
				RowsDone:      job.RowsDone,
				TotalRows:     job.Height,
				Progress:      job.Progress(),
				RowsPerSecond: rps,
				Timestamp:     time.Now(),
			})

			if trace != nil {
				if err := trace.Write(store.TraceEntry{
					RowsDone:  job.RowsDone,
					Total:     job.Height,
					ElapsedMs: elapsed.Milliseconds(),
					Timestamp: time.Now(),
				}); err != nil {
					slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
				}
			}
		}
	}
}

// persistJob saves the output artifacts and the job record
func persistJob(jm *JobManager, resultStore store.Store, jobID string, output *nlm.Image, elapsed time.Duration) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := resultStore.SaveOutput(jobID, output); err != nil {
		return err
	}

	result := store.NewResult(jobID, output.Width, output.Height, job.FilterParam, elapsed, job.Config)
	result.EstimatedNoise = job.EstimatedNoise
	result.Backend = job.Backend
	return resultStore.SaveResult(jobID, result)
}

// recordTerminal persists a failed or cancelled job so it shows up in listings
func recordTerminal(jm *JobManager, resultStore store.Store, jobID string, state store.JobState) {
	if resultStore == nil {
		return
	}
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	result := &store.Result{
		JobID:          jobID,
		State:          state,
		Width:          job.Width,
		Height:         job.Height,
		FilterParam:    job.FilterParam,
		EstimatedNoise: job.EstimatedNoise,
		Backend:        job.Backend,
		RowsDone:       job.RowsDone,
		Elapsed:        job.Elapsed(),
		Timestamp:      time.Now(),
		Error:          job.Error,
		Config:         job.Config,
	}
	if err := resultStore.SaveResult(jobID, result); err != nil {
		slog.Error("Failed to persist job record", "job_id", jobID, "error", err)
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, resultStore store.Store, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)

	recordTerminal(jm, resultStore, jobID, store.StateFailed)
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, resultStore store.Store, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)

	recordTerminal(jm, resultStore, jobID, store.StateCancelled)
	broadcastState(jm, jobID)
}

func broadcastState(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     job.State,
		RowsDone:  job.RowsDone,
		TotalRows: job.Height,
		Progress:  job.Progress(),
		Error:     job.Error,
		Timestamp: time.Now(),
	})
}
