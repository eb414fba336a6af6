package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/server"
	"github.com/cwbudde/goldenspiral/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr        string
	serveDataDir     string
	serveGenerations int
	servePop         int
	serveWorkers     int
	serveMaxDim      int
	serveNoStore     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	Long: `Serves synchronous analyze and preview endpoints and background jobs
with SSE progress. Finished jobs are stored under the data directory.`,
	RunE: runServe,
}

func init() {
	defaults := analysis.DefaultOptions()
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for stored results")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Keep results in memory only")
	serveCmd.Flags().IntVar(&serveGenerations, "generations", defaults.Fit.Generations, "Default search generations")
	serveCmd.Flags().IntVar(&servePop, "pop", defaults.Fit.PopulationSize, "Default population size")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", runtime.NumCPU(), "Parallel scoring workers per search")
	serveCmd.Flags().IntVar(&serveMaxDim, "max-dim", defaults.MaxDim, "Longer image side after resizing")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	defaults := analysis.DefaultOptions()
	defaults.MaxDim = serveMaxDim
	defaults.Fit.Generations = serveGenerations
	defaults.Fit.PopulationSize = servePop
	defaults.Fit.EliteCount = min(defaults.Fit.EliteCount, servePop)
	defaults.Fit.Workers = serveWorkers
	if err := defaults.Fit.Validate(); err != nil {
		return err
	}

	var resultStore store.Store
	if !serveNoStore {
		fsStore, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return err
		}
		resultStore = fsStore
		slog.Info("Storing results", "dir", fsStore.BaseDir())
	}

	srv := server.NewServer(serveAddr, resultStore, defaults)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !server.IsServerClosed(err) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
