package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Records are stored in a directory structure: <baseDir>/jobs/<jobID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) jobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) recordPath(jobID string) string {
	return filepath.Join(fs.jobDir(jobID), "record.json")
}

// checkName rejects names that would escape the job directory.
func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SaveRecord atomically saves a record for the given job.
func (fs *FSStore) SaveRecord(jobID string, record *Record) error {
	if err := checkName("jobID", jobID); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if err := os.MkdirAll(fs.jobDir(jobID), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	path := fs.recordPath(jobID)
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	slog.Debug("Record saved", "jobID", jobID, "path", path)
	return nil
}

// LoadRecord retrieves the record for the given job.
func (fs *FSStore) LoadRecord(jobID string) (*Record, error) {
	if err := checkName("jobID", jobID); err != nil {
		return nil, err
	}

	path := fs.recordPath(jobID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Record loaded", "jobID", jobID, "path", path)
	return &record, nil
}

// ListRecords returns metadata for all available records.
func (fs *FSStore) ListRecords() ([]RecordInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobID := entry.Name()
		if _, err := os.Stat(fs.recordPath(jobID)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRecord(jobID)
		if err != nil {
			slog.Warn("Failed to load record for listing", "jobID", jobID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	slog.Debug("Listed records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the job directory with the record and all artifacts.
func (fs *FSStore) DeleteRecord(jobID string) error {
	if err := checkName("jobID", jobID); err != nil {
		return err
	}

	jobDir := fs.jobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Record deleted", "jobID", jobID, "path", jobDir)
	return nil
}

// SaveArtifact atomically writes a named artifact into the job directory.
func (fs *FSStore) SaveArtifact(jobID, name string, data []byte) error {
	if err := checkName("jobID", jobID); err != nil {
		return err
	}
	if err := checkName("artifact name", name); err != nil {
		return err
	}

	if err := os.MkdirAll(fs.jobDir(jobID), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}
	if err := writeAtomic(filepath.Join(fs.jobDir(jobID), name), data); err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", name, err)
	}

	slog.Debug("Artifact saved", "jobID", jobID, "name", name, "bytes", len(data))
	return nil
}

// LoadArtifact reads a named artifact from the job directory.
func (fs *FSStore) LoadArtifact(jobID, name string) ([]byte, error) {
	if err := checkName("jobID", jobID); err != nil {
		return nil, err
	}
	if err := checkName("artifact name", name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(fs.jobDir(jobID), name))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID, Name: name}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}
