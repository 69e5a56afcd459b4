package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

// JobState is the terminal state recorded for a job
type JobState string

const (
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig holds the configuration of a denoising job.
// It lives here rather than in the server package to avoid an import cycle.
type JobConfig struct {
	InputPath    string  `json:"inputPath"`
	SampleRadius int     `json:"sampleRadius"`
	SearchRadius int     `json:"searchRadius"`
	FilterParam  float64 `json:"filterParam"`
	Border       string  `json:"border,omitempty"`
	Workers      int     `json:"workers,omitempty"`

	// AutoFilter replaces FilterParam with a value derived from the estimated noise
	AutoFilter bool `json:"autoFilter,omitempty"`
}

// Params converts the config to denoiser parameters
func (c JobConfig) Params() nlm.Params {
	return nlm.Params{
		SampleRadius: c.SampleRadius,
		SearchRadius: c.SearchRadius,
		FilterParam:  c.FilterParam,
		Border:       nlm.BorderMode(c.Border),
	}
}

// Result is the persisted record of a finished job.
// Pixel data lives next to it as output.nlmz and output.png.
type Result struct {
	JobID string   `json:"jobId"`
	State JobState `json:"state"`

	Width  int `json:"width"`
	Height int `json:"height"`

	// FilterParam is the value actually used, which differs from
	// Config.FilterParam when AutoFilter is set
	FilterParam float64 `json:"filterParam"`

	// EstimatedNoise is the noise sigma measured on the input, if computed
	EstimatedNoise float64 `json:"estimatedNoise,omitempty"`

	// Backend names the patch kernel in use (scalar or hwy)
	Backend string `json:"backend,omitempty"`

	RowsDone  int           `json:"rowsDone"`
	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`

	Config JobConfig `json:"config"`
}

// ResultInfo is the listing view of a Result
type ResultInfo struct {
	JobID       string        `json:"jobId"`
	State       JobState      `json:"state"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	FilterParam float64       `json:"filterParam"`
	Elapsed     time.Duration `json:"elapsed"`
	Timestamp   time.Time     `json:"timestamp"`
	InputPath   string        `json:"inputPath"`
}

// NewResult creates a completed result stamped with the current time
func NewResult(jobID string, width, height int, filterParam float64, elapsed time.Duration, config JobConfig) *Result {
	return &Result{
		JobID:       jobID,
		State:       StateCompleted,
		Width:       width,
		Height:      height,
		FilterParam: filterParam,
		RowsDone:    height,
		Elapsed:     elapsed,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a Result to its listing view
func (r *Result) ToInfo() ResultInfo {
	return ResultInfo{
		JobID:       r.JobID,
		State:       r.State,
		Width:       r.Width,
		Height:      r.Height,
		FilterParam: r.FilterParam,
		Elapsed:     r.Elapsed,
		Timestamp:   r.Timestamp,
		InputPath:   r.Config.InputPath,
	}
}

// Validate checks that the record is internally consistent
func (r *Result) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	switch r.State {
	case StateCompleted, StateFailed, StateCancelled:
	default:
		return &ValidationError{Field: "State", Reason: fmt.Sprintf("unknown state %q", r.State)}
	}
	if r.Width < 0 || r.Height < 0 {
		return &ValidationError{Field: "Width/Height", Reason: "cannot be negative"}
	}
	if r.RowsDone < 0 || r.RowsDone > r.Height {
		return &ValidationError{Field: "RowsDone", Reason: fmt.Sprintf("must be in [0, %d]", r.Height)}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.InputPath == "" {
		return &ValidationError{Field: "Config.InputPath", Reason: "cannot be empty"}
	}

	if r.State == StateCompleted {
		if r.Width == 0 || r.Height == 0 {
			return &ValidationError{Field: "Width/Height", Reason: "must be positive for a completed job"}
		}
		if r.RowsDone != r.Height {
			return &ValidationError{Field: "RowsDone", Reason: "completed job must cover every row"}
		}
		params := r.Config.Params()
		params.FilterParam = r.FilterParam
		if err := params.Validate(); err != nil {
			return &ValidationError{Field: "Config", Reason: err.Error()}
		}
	}
	return nil
}

// ValidationError represents a result validation error
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}
