package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// DefaultJobConfig returns the settings a job runs with when the request
// leaves them out.
func DefaultJobConfig() JobConfig {
	opts := analysis.DefaultOptions()
	return JobConfig{
		MaxK:        opts.MaxK,
		MinK:        opts.MinK,
		BWeight:     opts.BWeight,
		Generations: opts.Fit.Generations,
		PopSize:     opts.Fit.PopulationSize,
		Algorithm:   fit.AlgorithmElitist,
		Restarts:    1,
	}
}

// analysisOptions converts a job configuration into pipeline options on top
// of base. The fit settings are validated here so bad requests fail early.
func analysisOptions(cfg JobConfig, base analysis.Options) (analysis.Options, error) {
	if cfg.ImagePath == "" {
		return base, fmt.Errorf("%w: imagePath is required", fit.ErrInvalidInput)
	}
	if cfg.K < 0 || cfg.MaxK < 0 || cfg.MinK < 0 {
		return base, fmt.Errorf("%w: k, maxK and minK must not be negative", fit.ErrInvalidInput)
	}
	if cfg.BWeight < 0 {
		return base, fmt.Errorf("%w: bWeight must not be negative, got %g", fit.ErrInvalidInput, cfg.BWeight)
	}

	opts := base
	opts.K = cfg.K
	if cfg.MaxK > 0 {
		opts.MaxK = cfg.MaxK
	}
	if cfg.MinK > 0 {
		opts.MinK = cfg.MinK
	}
	opts.BWeight = cfg.BWeight
	opts.ClusterSeed = cfg.Seed
	opts.Restarts = max(cfg.Restarts, 1)

	opts.Fit.Seed = cfg.Seed
	if cfg.Generations > 0 {
		opts.Fit.Generations = cfg.Generations
	}
	if cfg.PopSize > 0 {
		opts.Fit.PopulationSize = cfg.PopSize
		opts.Fit.EliteCount = min(opts.Fit.EliteCount, cfg.PopSize)
	}
	if cfg.Algorithm != "" {
		opts.Fit.Algorithm = cfg.Algorithm
	}

	if err := opts.Fit.Validate(); err != nil {
		return base, err
	}
	return opts, nil
}

// Job represents an analysis job
type Job struct {
	ID     string    `json:"id"`
	State  JobState  `json:"state"`
	Config JobConfig `json:"config"`

	Generation int `json:"generation"`
	// BestScore stays zero until the search reports a finite score.
	BestScore float64 `json:"bestScore,omitempty"`

	Objects int     `json:"objects,omitempty"`
	K       int     `json:"k,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
	B       float64 `json:"b,omitempty"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	report  *analysis.Report
	history []float64
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job
}

// GetJob returns a snapshot of the job with the given ID.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	snapshot.history = append([]float64(nil), job.history...)
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		snapshot.history = nil
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			snapshot := *job
			runningJobs = append(runningJobs, &snapshot)
		}
	}
	return runningJobs
}
