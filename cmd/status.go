package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobView is the subset of the job payload shown by status
type jobView struct {
	ID             string  `json:"id"`
	State          string  `json:"state"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	RowsDone       int     `json:"rowsDone"`
	FilterParam    float64 `json:"filterParam"`
	EstimatedNoise float64 `json:"estimatedNoise"`
	Backend        string  `json:"backend"`
	Progress       float64 `json:"progress"`
	Elapsed        float64 `json:"elapsed"`
	Error          string  `json:"error"`
	Config         struct {
		InputPath    string  `json:"inputPath"`
		SampleRadius int     `json:"sampleRadius"`
		SearchRadius int     `json:"searchRadius"`
		FilterParam  float64 `json:"filterParam"`
		Border       string  `json:"border"`
		AutoFilter   bool    `json:"autoFilter"`
	} `json:"config"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string) error {
	var jobs []jobView
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		fmt.Printf("  Input: %s\n", job.Config.InputPath)
		if job.Height > 0 {
			fmt.Printf("  Rows: %d/%d\n", job.RowsDone, job.Height)
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobView
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Input: %s\n", status.Config.InputPath)
	fmt.Printf("  Sample radius: %d\n", status.Config.SampleRadius)
	fmt.Printf("  Search radius: %d\n", status.Config.SearchRadius)
	fmt.Printf("  Border: %s\n", status.Config.Border)
	if status.Config.AutoFilter {
		fmt.Printf("  Filter: auto (%.2f, sigma %.4f)\n", status.FilterParam, status.EstimatedNoise)
	} else {
		fmt.Printf("  Filter: %.2f\n", status.FilterParam)
	}
	fmt.Println()

	fmt.Println("Progress:")
	if status.Height > 0 {
		fmt.Printf("  Image: %dx%d\n", status.Width, status.Height)
		fmt.Printf("  Rows: %d/%d (%.1f%%)\n", status.RowsDone, status.Height, 100*status.Progress)
	}
	if status.Backend != "" {
		fmt.Printf("  Backend: %s\n", status.Backend)
	}
	if status.Elapsed > 0 {
		elapsed := time.Duration(status.Elapsed * float64(time.Second))
		fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	}

	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}

	return nil
}
