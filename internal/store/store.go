// Package store persists finished analyses and their artifacts.
package store

// Store defines persistence for analysis records and their artifacts.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the record or artifact doesn't exist
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically saves the record for the given job, replacing
	// any earlier one.
	SaveRecord(jobID string, record *Record) error

	// LoadRecord retrieves the record for the given job.
	LoadRecord(jobID string) (*Record, error)

	// ListRecords returns metadata for all stored records. Unreadable
	// records are skipped.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and every artifact of the job:
	//   - record.json
	//   - overlay.png, elbow.png
	//   - convergence.html, elbow.html
	//   - trace.jsonl
	DeleteRecord(jobID string) error

	// SaveArtifact atomically writes a named file next to the record.
	SaveArtifact(jobID, name string, data []byte) error

	// LoadArtifact reads a named file written by SaveArtifact.
	LoadArtifact(jobID, name string) ([]byte, error)
}

// Artifact names written by the analysis worker.
const (
	ArtifactOverlay     = "overlay.png"
	ArtifactElbow       = "elbow.png"
	ArtifactConvergence = "convergence.html"
	ArtifactElbowChart  = "elbow.html"
)

// ErrNotFound is returned when a requested record or artifact does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing record or artifact.
type NotFoundError struct {
	JobID string
	Name  string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.JobID != "" && e.Name != "":
		return "artifact not found: " + e.JobID + "/" + e.Name
	case e.JobID != "":
		return "record not found: " + e.JobID
	}
	return "record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
