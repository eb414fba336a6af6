package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/goldenspiral/internal/store"
	"github.com/spf13/cobra"
)

var (
	resultsDataDir string
	keepLast       int
	olderThanDays  int
	belowRating    float64
	forceClean     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored analysis results",
	Long: `Manage the analysis results saved by the server, including listing them
and cleaning old or poorly rated ones.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	Long:  `Display all results with job ID, timestamp, cluster count, rating, growth rate and size on disk.`,
	RunE:  runListResults,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old results",
	Long: `Delete results based on a retention policy.
You can keep only the newest N results, delete results older than N days or
delete results rated below a threshold.`,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsDataDir, "data-dir", "./data", "Base directory for result storage")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N results (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete results older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().Float64Var(&belowRating, "below-rating", 0, "Delete results rated below this value (0 = no rating limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.After(infos[j].Timestamp) })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTIMESTAMP\tK\tRATING\tB\tSIZE")
	fmt.Fprintln(w, "------\t---------\t-\t------\t-\t----")

	for _, info := range infos {
		size, err := getDirSize(filepath.Join(resultStore.BaseDir(), "jobs", info.JobID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.4f\t%s\n",
			shortID(info.JobID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.K,
			info.Rating,
			info.B,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal results: %d\n", len(infos))
	return nil
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 && belowRating == 0 {
		return fmt.Errorf("must specify --keep-last, --older-than or --below-rating")
	}

	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No results to clean.")
		return nil
	}

	toDelete := selectResultsForDeletion(infos, keepLast, olderThanDays, belowRating)
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No results match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d result(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (rating %.2f, %s)\n",
			shortID(info.JobID),
			info.Rating,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := resultStore.DeleteRecord(info.JobID); err != nil {
			slog.Error("Failed to delete result", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted result", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d result(s), %d failed.\n", deleted, failed)
	return nil
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
	var response string
	fmt.Fscanln(in, &response)
	return response == "y" || response == "Y"
}

// selectResultsForDeletion applies the retention policy. A result is
// selected when it is older than olderThanDays, rated below minRating, or
// not among the keepLast newest results. Each result is selected at most once.
func selectResultsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, minRating float64) []store.RecordInfo {
	sorted := make([]store.RecordInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -olderThanDays)
	}

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		switch {
		case olderThanDays > 0 && info.Timestamp.Before(cutoff):
		case minRating > 0 && info.Rating < minRating:
		case keepLast > 0 && i >= keepLast:
		default:
			continue
		}
		toDelete = append(toDelete, info)
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
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
