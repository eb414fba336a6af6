package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/store"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

// jobStatus mirrors the job JSON returned by the server.
type jobStatus struct {
	ID                   string            `json:"id"`
	State                string            `json:"state"`
	Config               store.JobConfig   `json:"config"`
	Generation           int               `json:"generation"`
	BestScore            float64           `json:"bestScore"`
	Objects              int               `json:"objects"`
	K                    int               `json:"k"`
	Rating               float64           `json:"rating"`
	B                    float64           `json:"b"`
	Elapsed              float64           `json:"elapsed"`
	GenerationsPerSecond float64           `json:"generationsPerSecond"`
	Params               *fit.SpiralParams `json:"params"`
	Error                string            `json:"error"`
}

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

// getJSON fetches url and decodes its body into v.
func getJSON(url string, v any) (int, error) {
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

func listJobs(out io.Writer, url string) error {
	var jobs []jobStatus
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Image: %s\n", job.Config.ImagePath)
		fmt.Fprintf(out, "  Generation: %d/%d\n", job.Generation, job.Config.Generations)
		if job.Rating > 0 {
			fmt.Fprintf(out, "  Rating: %.2f (b=%.4f, k=%d)\n", job.Rating, job.B, job.K)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Image: %s\n", cfg.ImagePath)
	if cfg.K > 0 {
		fmt.Fprintf(out, "  Clusters: %d\n", cfg.K)
	} else {
		fmt.Fprintf(out, "  Clusters: elbow (%d..%d)\n", cfg.MinK, cfg.MaxK)
	}
	fmt.Fprintf(out, "  Golden weight: %g\n", cfg.BWeight)
	fmt.Fprintf(out, "  Generations: %d\n", cfg.Generations)
	fmt.Fprintf(out, "  Population: %d\n", cfg.PopSize)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Generation: %d\n", status.Generation)
	if status.BestScore > 0 {
		fmt.Fprintf(out, "  Best Score: %.4f\n", status.BestScore)
	}
	if status.Objects > 0 {
		fmt.Fprintf(out, "  Objects: %d\n", status.Objects)
	}
	if status.Rating > 0 {
		fmt.Fprintf(out, "  Rating: %.2f\n", status.Rating)
		fmt.Fprintf(out, "  b: %.4f (k=%d)\n", status.B, status.K)
	}
	if status.Params != nil {
		p := status.Params
		fmt.Fprintf(out, "  Spiral: cx=%.1f cy=%.1f a=%.2f b=%.4f\n", p.CX, p.CY, p.A, p.B)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.GenerationsPerSecond > 0 {
		fmt.Fprintf(out, "  Throughput: %.1f generations/sec\n", status.GenerationsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}
