package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/imaging"
	"github.com/cwbudde/goldenspiral/internal/opt"
	"github.com/cwbudde/goldenspiral/internal/report"
	"github.com/cwbudde/goldenspiral/internal/store"
)

// tracedStore is a store whose job directories can hold a trace file.
type tracedStore interface {
	BaseDir() string
}

// runJob executes an analysis job in the background. If resultStore is not
// nil the finished record, its artifacts and the generation trace are saved.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, base analysis.Options, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "image", job.Config.ImagePath)

	opts, err := analysisOptions(job.Config, base)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	img, err := imaging.Load(job.Config.ImagePath)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	var trace *store.TraceWriter
	if ts, ok := resultStore.(tracedStore); ok {
		trace, err = store.NewTraceWriter(ts.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		} else {
			defer trace.Close()
		}
	}

	opts.Fit.OnGeneration = func(g opt.Generation) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Generation = g.Index + 1
			j.history = append(j.history, g.BestEver)
			if !math.IsInf(g.BestEver, 0) && !math.IsNaN(g.BestEver) {
				j.BestScore = g.BestEver
			}
		})
		if trace != nil && !math.IsInf(g.BestEver, 0) && !math.IsNaN(g.BestEver) {
			if err := trace.Write(store.TraceEntry{
				Generation: g.Index,
				BestScore:  g.BestEver,
				Timestamp:  time.Now(),
				Params:     g.Position,
			}); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	rep, err := analysis.Analyze(img, opts)
	close(progressDone)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	if resultStore != nil {
		if trace != nil {
			if err := trace.Flush(); err != nil {
				slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
			}
		}
		if err := saveResult(resultStore, jobID, job.Config, rep); err != nil {
			slog.Error("Failed to save result", "job_id", jobID, "error", err)
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Objects = len(rep.Objects)
		j.K = rep.K
		j.Rating = rep.Rating
		j.B = rep.B
		j.BestScore = rep.Fit.Score
		j.report = rep
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", endTime.Sub(job.StartTime),
		"objects", len(rep.Objects),
		"k", rep.K,
		"rating", rep.Rating,
		"b", rep.B,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      StateCompleted,
		Generation: rep.Fit.Generations,
		BestScore:  rep.Fit.Score,
		Rating:     rep.Rating,
		Timestamp:  time.Now(),
	})

	return nil
}

// monitorProgress periodically broadcasts progress events during the search
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:      jobID,
				State:      job.State,
				Generation: job.Generation,
				BestScore:  job.BestScore,
				Timestamp:  time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Error: err.Error(), Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}

// newRecord converts a finished analysis into its persisted form.
func newRecord(jobID string, config JobConfig, rep *analysis.Report) *store.Record {
	return &store.Record{
		JobID:       jobID,
		Objects:     len(rep.Objects),
		K:           rep.K,
		Centers:     rep.Centers,
		Params:      rep.Fit.Params,
		Score:       rep.Fit.Score,
		FitDistance: rep.Fit.FitDistance,
		Rating:      rep.Rating,
		B:           rep.B,
		GoldenB:     rep.GoldenB,
		Generations: rep.Fit.Generations,
		Width:       rep.Width,
		Height:      rep.Height,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// saveResult stores the record and renders its artifacts. Artifact failures
// are logged; the record is what listing and cleanup rely on.
func saveResult(resultStore store.Store, jobID string, config JobConfig, rep *analysis.Report) error {
	record := newRecord(jobID, config, rep)
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	if err := resultStore.SaveRecord(jobID, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	artifacts, err := renderArtifacts(rep)
	for name, data := range artifacts {
		if err := resultStore.SaveArtifact(jobID, name, data); err != nil {
			slog.Warn("Failed to save artifact", "job_id", jobID, "name", name, "error", err)
		}
	}
	if err != nil {
		slog.Warn("Failed to render artifacts", "job_id", jobID, "error", err)
	}
	return nil
}

// renderArtifacts draws every artifact the report supports. It returns what
// it managed to render together with the first error.
func renderArtifacts(rep *analysis.Report) (map[string][]byte, error) {
	out := make(map[string][]byte)
	var firstErr error
	render := func(name string, fn func(*bytes.Buffer) error) {
		var buf bytes.Buffer
		if err := fn(&buf); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to render %s: %w", name, err)
			}
			return
		}
		out[name] = buf.Bytes()
	}

	render(store.ArtifactOverlay, func(b *bytes.Buffer) error { return rep.Overlay().WritePNG(b) })
	render(store.ArtifactConvergence, func(b *bytes.Buffer) error {
		return report.ConvergenceChart(b, "Spiral search", rep.Fit.History)
	})
	if rep.Selection != nil && len(rep.Selection.Curve) > 0 {
		render(store.ArtifactElbow, func(b *bytes.Buffer) error { return report.WriteElbowPNG(b, rep.Selection) })
		render(store.ArtifactElbowChart, func(b *bytes.Buffer) error { return report.ElbowChart(b, rep.Selection) })
	}
	return out, firstErr
}
