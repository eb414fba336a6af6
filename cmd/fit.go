package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/goldenspiral/internal/cluster"
	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/geom"
	"github.com/spf13/cobra"
)

var (
	pointsPath string
	clusterPts bool
)

// pointSet is the input of the fit command.
type pointSet struct {
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Points []geom.Point `json:"points"`
}

// fitOutput is the result printed by the fit command.
type fitOutput struct {
	K       int                    `json:"k,omitempty"`
	Centers []geom.Point           `json:"centers,omitempty"`
	Inertia []cluster.InertiaPoint `json:"inertia,omitempty"`

	Fit     *fit.Result `json:"fit"`
	Rating  float64     `json:"rating"`
	B       float64     `json:"b"`
	GoldenB float64     `json:"goldenB"`
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a golden spiral through a set of points",
	Long: `Reads a JSON document {"width": W, "height": H, "points": [{"x": .., "y": ..}]}
and searches for the logarithmic spiral through the points. With --cluster the
points are first reduced to k cluster centres. Prints the result as JSON.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVar(&pointsPath, "points", "", "Points JSON path (required, - for stdin)")
	fitCmd.Flags().BoolVar(&clusterPts, "cluster", false, "Cluster the points before fitting")
	addSearchFlags(fitCmd)

	fitCmd.MarkFlagRequired("points")
	rootCmd.AddCommand(fitCmd)
}

func readPointSet(path string) (*pointSet, error) {
	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open points: %w", err)
		}
		defer f.Close()
		in = f
	}

	var set pointSet
	if err := json.NewDecoder(in).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode points: %w", err)
	}
	if set.Width <= 0 || set.Height <= 0 {
		return nil, fmt.Errorf("%w: width and height must be positive, got %dx%d", fit.ErrInvalidInput, set.Width, set.Height)
	}
	return &set, nil
}

func runFit(cmd *cobra.Command, args []string) error {
	set, err := readPointSet(pointsPath)
	if err != nil {
		return err
	}
	opts := optionsFromFlags()
	opts.Fit.OnGeneration = logGeneration(generations)

	var out fitOutput
	points := set.Points
	if clusterPts {
		out.K = numClusters
		if out.K <= 0 {
			selector := &cluster.ElbowSelector{
				Clusterer: cluster.NewKMeans(seed),
				MaxK:      opts.MaxK,
				MinK:      opts.MinK,
			}
			sel, err := selector.Select(points)
			if err != nil {
				return fmt.Errorf("failed to select cluster count: %w", err)
			}
			out.K = sel.K
			out.Inertia = sel.Curve
		}
		out.Centers, err = cluster.Centers(points, out.K, seed)
		if err != nil {
			return fmt.Errorf("failed to cluster points: %w", err)
		}
		slog.Info("Clustered points", "points", len(points), "k", out.K)
		points = out.Centers
	}

	bounds := geom.ImageBounds{Width: set.Width, Height: set.Height}
	var res *fit.Result
	if opts.Restarts > 1 {
		res, err = fit.OptimizeRestarts(points, bounds, opts.BWeight, opts.Fit, fit.RestartConfig{
			MaxRuns:     opts.Restarts,
			Convergence: opts.Convergence,
		})
	} else {
		res, err = fit.Optimize(points, bounds, opts.BWeight, opts.Fit)
	}
	if err != nil {
		return err
	}

	out.Fit = res
	out.GoldenB = opts.Fit.Score.GoldenGrowthRate
	out.Rating = fit.Rating(res.FitDistance, res.Params.B, out.GoldenB)
	out.B = fit.RoundB(res.Params.B)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
