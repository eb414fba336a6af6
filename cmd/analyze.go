package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/cluster"
	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/imaging"
	"github.com/cwbudde/goldenspiral/internal/opt"
	"github.com/cwbudde/goldenspiral/internal/report"
	"github.com/spf13/cobra"
)

var (
	imagePath   string
	outPath     string
	elbowOut    string
	chartOut    string
	numClusters int
	maxK        int
	minK        int
	bWeight     float64
	generations int
	popSize     int
	seed        uint64
	algorithm   string
	restarts    int
	maxDim      int
	workers     int
	jsonOutput  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Fit a golden spiral through the objects of an image",
	Long: `Extracts the objects of an image, groups them into k clusters and searches
for the logarithmic spiral through the cluster centres. Writes an overlay image
and prints the rating and growth rate of the best spiral.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&imagePath, "image", "", "Input image path (required)")
	analyzeCmd.Flags().StringVar(&outPath, "out", "overlay.png", "Overlay output path (empty to skip)")
	analyzeCmd.Flags().StringVar(&elbowOut, "elbow-out", "", "Elbow curve PNG output path")
	analyzeCmd.Flags().StringVar(&chartOut, "chart-out", "", "Convergence chart HTML output path")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	addSearchFlags(analyzeCmd)

	analyzeCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(analyzeCmd)
}

// addSearchFlags registers the clustering and search flags shared by
// analyze and fit.
func addSearchFlags(cmd *cobra.Command) {
	defaults := fit.DefaultConfig()
	cmd.Flags().IntVar(&numClusters, "k", 0, "Cluster count (0 selects it with the elbow method)")
	cmd.Flags().IntVar(&maxK, "max-k", cluster.DefaultMaxK, "Largest cluster count tried by the elbow method")
	cmd.Flags().IntVar(&minK, "min-k", 2, "Smallest cluster count accepted from the elbow method")
	cmd.Flags().Float64Var(&bWeight, "b-weight", analysis.DefaultBWeight, "Weight of the golden growth rate penalty")
	cmd.Flags().IntVar(&generations, "generations", defaults.Generations, "Search generations")
	cmd.Flags().IntVar(&popSize, "pop", defaults.PopulationSize, "Population size")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 draws one)")
	cmd.Flags().StringVar(&algorithm, "algorithm", fit.AlgorithmElitist, "Search backend: elitist, mayfly")
	cmd.Flags().IntVar(&restarts, "restarts", 1, "Maximum searches, stopping early once the score plateaus")
	cmd.Flags().IntVar(&maxDim, "max-dim", imaging.DefaultMaxDim, "Longer image side after resizing (0 keeps the original)")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Parallel scoring workers")
}

// optionsFromFlags builds the analysis options from the shared flags.
func optionsFromFlags() analysis.Options {
	opts := analysis.DefaultOptions()
	opts.MaxDim = maxDim
	opts.K = numClusters
	opts.MaxK = maxK
	opts.MinK = minK
	opts.BWeight = bWeight
	opts.ClusterSeed = seed
	opts.Restarts = restarts

	opts.Fit.Generations = generations
	opts.Fit.PopulationSize = popSize
	opts.Fit.EliteCount = min(opts.Fit.EliteCount, popSize)
	opts.Fit.Seed = seed
	opts.Fit.Algorithm = algorithm
	opts.Fit.Workers = workers
	return opts
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	img, err := imaging.Load(imagePath)
	if err != nil {
		return err
	}
	slog.Info("Loaded image", "path", imagePath, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	opts := optionsFromFlags()
	opts.Fit.OnGeneration = logGeneration(generations)

	rep, err := analysis.Analyze(img, opts)
	if err != nil {
		return err
	}

	if outPath != "" {
		if err := writeFile(outPath, rep.Overlay().WritePNG); err != nil {
			return err
		}
		slog.Info("Wrote overlay", "path", outPath)
	}
	if elbowOut != "" {
		if rep.Selection == nil {
			slog.Warn("No elbow curve with a fixed k", "k", rep.K)
		} else if err := writeFile(elbowOut, func(w io.Writer) error { return report.WriteElbowPNG(w, rep.Selection) }); err != nil {
			return err
		}
	}
	if chartOut != "" {
		err := writeFile(chartOut, func(w io.Writer) error {
			return report.ConvergenceChart(w, "Spiral search", rep.Fit.History)
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	p := rep.Fit.Params
	fmt.Fprintf(out, "\n=== Golden Spiral ===\n")
	fmt.Fprintf(out, "Image: %s (%dx%d after resizing)\n", imagePath, rep.Width, rep.Height)
	fmt.Fprintf(out, "Objects: %d\n", len(rep.Objects))
	fmt.Fprintf(out, "Clusters: %d\n", rep.K)
	fmt.Fprintf(out, "Spiral: cx=%.1f cy=%.1f a=%.2f b=%.4f\n", p.CX, p.CY, p.A, p.B)
	fmt.Fprintf(out, "Score: %.4f (fit distance %.4f)\n", rep.Fit.Score, rep.Fit.FitDistance)
	fmt.Fprintf(out, "Rating: %.2f\n", rep.Rating)
	fmt.Fprintf(out, "b: %.4f (golden %.4f)\n", rep.B, rep.GoldenB)
	fmt.Fprintf(out, "Time: %s\n", rep.Duration)
	if outPath != "" {
		fmt.Fprintf(out, "Overlay: %s\n", outPath)
	}
	return nil
}

// logGeneration reports search progress at debug level, and every tenth of
// the run at info level.
func logGeneration(total int) func(g opt.Generation) {
	step := max(total/10, 1)
	return func(g opt.Generation) {
		level := slog.LevelDebug
		if (g.Index+1)%step == 0 {
			level = slog.LevelInfo
		}
		slog.Log(context.Background(), level, "Generation", "index", g.Index, "best", g.Best, "best_ever", g.BestEver)
	}
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
