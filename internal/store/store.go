package store

import "github.com/cwbudde/nlmdenoise/internal/nlm"

// Store persists finished denoising jobs.
// Implementations must be safe for concurrent use.
//
// Load and Delete return ErrNotFound for unknown job IDs.
type Store interface {
	// SaveResult atomically writes the job record, overwriting any previous one
	SaveResult(jobID string, result *Result) error

	// LoadResult reads the job record
	LoadResult(jobID string) (*Result, error)

	// ListResults returns the listing view of every readable record
	ListResults() ([]ResultInfo, error)

	// DeleteResult removes the job directory with all artifacts
	// (result.json, output.nlmz, output.png, trace.jsonl)
	DeleteResult(jobID string) error

	// SaveOutput writes the denoised image as output.nlmz and output.png
	SaveOutput(jobID string, img *nlm.Image) error

	// LoadOutput reads the full-precision output.nlmz
	LoadOutput(jobID string) (*nlm.Image, error)

	// JobDir returns the directory holding a job's artifacts
	JobDir(jobID string) string
}

// ErrNotFound is returned when a requested job does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing job
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "result not found: " + e.JobID
	}
	return "result not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
