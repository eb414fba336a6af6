package main

import (
	"fmt"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/imaging"
	"github.com/spf13/cobra"
)

var (
	previewImage string
	previewOut   string
	previewK     int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Draw the detected objects and cluster centres of an image",
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&previewImage, "image", "", "Input image path (required)")
	previewCmd.Flags().StringVar(&previewOut, "out", "preview.png", "Output image path")
	previewCmd.Flags().IntVar(&previewK, "k", 0, "Cluster count (0 draws no centres)")

	previewCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	img, err := imaging.Load(previewImage)
	if err != nil {
		return err
	}

	res, err := analysis.Preview(img, previewK, analysis.DefaultOptions())
	if err != nil {
		return err
	}
	if err := writeFile(previewOut, res.Overlay().WritePNG); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Objects: %d\nCentres: %d\nPreview: %s\n", len(res.Objects), len(res.Centers), previewOut)
	return nil
}
