package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/geom"
)

// JobConfig holds the settings an analysis job ran with (record copy).
// This avoids import cycles with server package.
type JobConfig struct {
	ImagePath   string  `json:"imagePath"`
	K           int     `json:"k"` // 0 = elbow selection
	MaxK        int     `json:"maxK"`
	MinK        int     `json:"minK"`
	BWeight     float64 `json:"bWeight"`
	Generations int     `json:"generations"`
	PopSize     int     `json:"popSize"`
	Seed        uint64  `json:"seed"`
	Algorithm   string  `json:"algorithm"`
	Restarts    int     `json:"restarts,omitempty"`
}

// Record is a finished analysis as persisted on disk.
//
// Only the summary of the search is kept: the clustered centres, the best
// spiral and its scores. Per-generation progress lives in trace.jsonl and
// the rendered images live next to the record as artifacts.
type Record struct {
	JobID string `json:"jobId"`

	// Objects is the number of objects extracted from the image.
	Objects int          `json:"objects"`
	K       int          `json:"k"`
	Centers []geom.Point `json:"centers"`

	Params      fit.SpiralParams `json:"params"`
	Score       float64          `json:"score"`
	FitDistance float64          `json:"fitDistance"`
	Rating      float64          `json:"rating"`
	B           float64          `json:"b"`
	GoldenB     float64          `json:"goldenB"`
	Generations int              `json:"generations"`

	Width  int `json:"width"`
	Height int `json:"height"`

	Timestamp time.Time `json:"timestamp"`
	Config    JobConfig `json:"config"`
}

// RecordInfo contains the metadata of a record without the centres.
type RecordInfo struct {
	JobID     string    `json:"jobId"`
	Rating    float64   `json:"rating"`
	B         float64   `json:"b"`
	K         int       `json:"k"`
	Objects   int       `json:"objects"`
	ImagePath string    `json:"imagePath"`
	Timestamp time.Time `json:"timestamp"`
}

// ToInfo converts a full Record to RecordInfo (metadata only).
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		JobID:     r.JobID,
		Rating:    r.Rating,
		B:         r.B,
		K:         r.K,
		Objects:   r.Objects,
		ImagePath: r.Config.ImagePath,
		Timestamp: r.Timestamp,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.K < 1 {
		return &ValidationError{Field: "K", Reason: "must be positive"}
	}
	if len(r.Centers) != r.K {
		return &ValidationError{
			Field:  "Centers",
			Reason: fmt.Sprintf("length mismatch: expected %d centres, got %d", r.K, len(r.Centers)),
		}
	}
	if r.Objects < r.K {
		return &ValidationError{Field: "Objects", Reason: "cannot be fewer than K"}
	}
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) || r.Score < 0 {
		return &ValidationError{Field: "Score", Reason: "must be finite and non-negative"}
	}
	if r.Rating < 0 || r.Rating > 100 {
		return &ValidationError{Field: "Rating", Reason: "must be in [0, 100]"}
	}
	if r.Params.A <= 0 {
		return &ValidationError{Field: "Params.A", Reason: "must be positive"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.ImagePath == "" {
		return &ValidationError{Field: "Config.ImagePath", Reason: "cannot be empty"}
	}
	if r.Config.BWeight < 0 {
		return &ValidationError{Field: "Config.BWeight", Reason: "cannot be negative"}
	}
	if r.Config.Generations <= 0 {
		return &ValidationError{Field: "Config.Generations", Reason: "must be positive"}
	}
	if r.Config.PopSize <= 0 {
		return &ValidationError{Field: "Config.PopSize", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
