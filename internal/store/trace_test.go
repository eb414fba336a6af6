package store

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-123"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Generation: 0, BestScore: 120.5, Timestamp: time.Now()},
		{Generation: 1, BestScore: 80.25, Timestamp: time.Now()},
		{Generation: 2, BestScore: 41.0, Timestamp: time.Now(), Params: []float64{250, 240, 35, 0.31}},
		{Generation: 3, BestScore: 41.0, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "jobs", jobID, "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Expected path %s, got %s", tracePath, writer.Path())
	}
	if _, err := os.Stat(tracePath); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", tracePath)
	}

	readEntries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}
	for i, entry := range readEntries {
		if entry.Generation != entries[i].Generation {
			t.Errorf("Entry %d: expected generation %d, got %d", i, entries[i].Generation, entry.Generation)
		}
		if entry.BestScore != entries[i].BestScore {
			t.Errorf("Entry %d: expected score %f, got %f", i, entries[i].BestScore, entry.BestScore)
		}
		if len(entry.Params) != len(entries[i].Params) {
			t.Errorf("Entry %d: expected %d params, got %d", i, len(entries[i].Params), len(entry.Params))
		}
	}

	scores := Scores(readEntries)
	want := []float64{120.5, 80.25, 41.0, 41.0}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("Scores[%d] = %f, want %f", i, scores[i], want[i])
		}
	}
}

func TestTraceWriter_RejectsNonFinite(t *testing.T) {
	writer, err := NewTraceWriter(t.TempDir(), "job", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	for _, v := range []float64{math.Inf(1), math.NaN()} {
		if err := writer.Write(TraceEntry{Generation: 0, BestScore: v}); err == nil {
			t.Errorf("Expected error for score %v", v)
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-append"

	writer1, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create first writer: %v", err)
	}
	writer1.Write(TraceEntry{Generation: 0, BestScore: 10, Timestamp: time.Now()})
	writer1.Close()

	writer2, err := NewTraceWriter(tmpDir, jobID, true)
	if err != nil {
		t.Fatalf("Failed to create second writer: %v", err)
	}
	writer2.Write(TraceEntry{Generation: 1, BestScore: 5, Timestamp: time.Now()})
	writer2.Close()

	entries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after append, got %d", len(entries))
	}

	writer3, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create truncating writer: %v", err)
	}
	writer3.Close()

	entries, err = ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected truncated trace, got %d entries", len(entries))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-flush"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	writer.Write(TraceEntry{Generation: 0, BestScore: 3.5, Timestamp: time.Now()})
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected flushed data on disk")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-iter"

	writer, _ := NewTraceWriter(tmpDir, jobID, false)
	for i := 0; i < 5; i++ {
		writer.Write(TraceEntry{Generation: i, BestScore: float64(10 - i), Timestamp: time.Now()})
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if entry.Generation != count {
			t.Errorf("Expected generation %d, got %d", count, entry.Generation)
		}
		count++
	}
	if count != 5 {
		t.Errorf("Expected 5 entries, got %d", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-delete"

	writer, _ := NewTraceWriter(tmpDir, jobID, false)
	writer.Write(TraceEntry{Generation: 0, BestScore: 1, Timestamp: time.Now()})
	writer.Close()

	if err := DeleteTrace(tmpDir, jobID); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file should be deleted")
	}
	if err := DeleteTrace(tmpDir, jobID); err != nil {
		t.Errorf("DeleteTrace should not error for nonexistent file, got: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-concurrent"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(gen int) {
			defer wg.Done()
			if err := writer.Write(TraceEntry{Generation: gen, BestScore: float64(gen), Timestamp: time.Now()}); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	writer.Close()

	entries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}
