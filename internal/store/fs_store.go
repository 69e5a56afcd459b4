package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

const (
	resultFile    = "result.json"
	outputNLMZ    = "output.nlmz"
	outputPreview = "output.png"
)

// FSStore implements Store on the filesystem.
// Each job lives in <baseDir>/jobs/<jobID>/.
//
// Writes use temp file + rename, so readers never observe partial files and
// no locking is needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store, creating baseDir if needed
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// JobDir returns the directory path for a given job ID
func (fs *FSStore) JobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) resultPath(jobID string) string {
	return filepath.Join(fs.JobDir(jobID), resultFile)
}

// checkJobID rejects IDs that would escape the jobs directory
func checkJobID(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return fmt.Errorf("invalid jobID %q", jobID)
	}
	return nil
}

// writeAtomic writes through a temp file in the same directory and renames it into place
func writeAtomic(path string, write func(f *os.File) error) error {
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveResult atomically saves the job record
func (fs *FSStore) SaveResult(jobID string, result *Result) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	jobDir := fs.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	path := fs.resultPath(jobID)
	if err := writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	slog.Debug("Result saved", "job_id", jobID, "path", path)
	return nil
}

// LoadResult retrieves the record for the given job
func (fs *FSStore) LoadResult(jobID string) (*Result, error) {
	if err := checkJobID(jobID); err != nil {
		return nil, err
	}

	path := fs.resultPath(jobID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}

	slog.Debug("Result loaded", "job_id", jobID, "path", path)
	return &result, nil
}

// ListResults returns metadata for all readable records, newest first.
// Directories without result.json and corrupted records are skipped.
func (fs *FSStore) ListResults() ([]ResultInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []ResultInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []ResultInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobID := entry.Name()
		if _, err := os.Stat(fs.resultPath(jobID)); os.IsNotExist(err) {
			continue
		}

		result, err := fs.LoadResult(jobID)
		if err != nil {
			slog.Warn("Failed to load result for listing", "job_id", jobID, "error", err)
			continue
		}
		infos = append(infos, result.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed results", "count", len(infos))
	return infos, nil
}

// DeleteResult removes the job directory and all artifacts
func (fs *FSStore) DeleteResult(jobID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}

	jobDir := fs.JobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Result deleted", "job_id", jobID, "path", jobDir)
	return nil
}

// SaveOutput writes the full-precision buffer and an 8-bit preview
func (fs *FSStore) SaveOutput(jobID string, img *nlm.Image) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("output image cannot be nil")
	}

	jobDir := fs.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	if err := writeAtomic(filepath.Join(jobDir, outputNLMZ), func(f *os.File) error {
		return imageio.EncodeNLMZ(f, img)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputNLMZ, err)
	}

	if err := writeAtomic(filepath.Join(jobDir, outputPreview), func(f *os.File) error {
		return imageio.Encode(f, img, imageio.FormatPNG)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPreview, err)
	}

	slog.Debug("Output saved", "job_id", jobID, "width", img.Width, "height", img.Height)
	return nil
}

// LoadOutput reads the full-precision buffer of a job
func (fs *FSStore) LoadOutput(jobID string) (*nlm.Image, error) {
	if err := checkJobID(jobID); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(fs.JobDir(jobID), outputNLMZ))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()

	img, err := imageio.DecodeNLMZ(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return img, nil
}
