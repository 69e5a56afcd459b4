package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/store"
)

var (
	resultsDataDir string
	exportOut      string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored job results",
	Long:  `List, inspect, export and clean the job results written by the server.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	RunE:  runListResults,
}

var showResultCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Print the full record of a result",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowResult,
}

var exportResultCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Write the output image of a result",
	Long:  `Writes the stored output in the format given by the extension of --out.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExportResult,
}

var traceResultCmd = &cobra.Command{
	Use:   "trace <job-id>",
	Short: "Print the progress trace of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceResult,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old results",
	Long: `Delete results based on a retention policy.
Keep only the newest N results or delete results older than N days.`,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultCmd)
	resultsCmd.AddCommand(exportResultCmd)
	resultsCmd.AddCommand(traceResultCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsDataDir, "data-dir", "./data", "Base directory for job results")

	exportResultCmd.Flags().StringVar(&exportOut, "out", "", "Output image path (required)")
	exportResultCmd.MarkFlagRequired("out")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N results (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete results older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openResultStore() (*store.FSStore, error) {
	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return resultStore, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := openResultStore()
	if err != nil {
		return err
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tSTATE\tTIMESTAMP\tSIZE\tFILTER\tELAPSED\tDISK")
	fmt.Fprintln(w, "------\t-----\t---------\t----\t------\t-------\t----")

	for _, info := range infos {
		diskStr := "unknown"
		if size, err := getDirSize(resultStore.JobDir(info.JobID)); err == nil {
			diskStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%.2f\t%s\t%s\n",
			shortID(info.JobID),
			info.State,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Width, info.Height,
			info.FilterParam,
			info.Elapsed.Round(time.Millisecond),
			diskStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal results: %d\n", len(infos))
	return nil
}

func runShowResult(cmd *cobra.Command, args []string) error {
	resultStore, err := openResultStore()
	if err != nil {
		return err
	}

	result, err := resultStore.LoadResult(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runExportResult(cmd *cobra.Command, args []string) error {
	resultStore, err := openResultStore()
	if err != nil {
		return err
	}

	output, err := resultStore.LoadOutput(args[0])
	if err != nil {
		return err
	}

	if err := imageio.Save(exportOut, output); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%dx%d)\n", exportOut, output.Width, output.Height)
	return nil
}

func runTraceResult(cmd *cobra.Command, args []string) error {
	resultStore, err := openResultStore()
	if err != nil {
		return err
	}

	reader, err := store.NewTraceReader(resultStore.JobDir(args[0]))
	if err != nil {
		return err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ELAPSED\tROWS\tPROGRESS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d/%d\t%.1f%%\n",
			(time.Duration(e.ElapsedMs) * time.Millisecond).String(),
			e.RowsDone, e.Total, 100*e.Fraction())
	}
	w.Flush()

	fmt.Printf("\nSamples: %d\n", len(entries))
	return nil
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	resultStore, err := openResultStore()
	if err != nil {
		return err
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results to clean.")
		return nil
	}

	toDelete := selectResultsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Println("No results match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d result(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %s)\n", shortID(info.JobID), info.State, info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := resultStore.DeleteResult(info.JobID); err != nil {
			slog.Error("Failed to delete result", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted result", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d result(s), %d failed.\n", deleted, failed)
	return nil
}

// selectResultsForDeletion applies the retention policy. A result is selected when it
// is older than olderThanDays or falls outside the keepLast newest results.
func selectResultsForDeletion(infos []store.ResultInfo, keepLast, olderThanDays int, now time.Time) []store.ResultInfo {
	sorted := make([]store.ResultInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)

	var toDelete []store.ResultInfo
	for i, info := range sorted {
		expired := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		surplus := keepLast > 0 && i >= keepLast
		if expired || surplus {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
