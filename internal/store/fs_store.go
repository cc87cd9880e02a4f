package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const recordFile = "record.json"

// FSStore implements Store on the filesystem.
// Runs are stored in <baseDir>/runs/<runID>/ as record.json plus artifacts.
//
// Writes go to a temp file and are renamed into place, so concurrent readers
// never observe a partial file.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := ensureDir(baseDir); err != nil {
		return nil, err
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// RunDir returns the directory holding a run's files.
func (fs *FSStore) RunDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) recordPath(runID string) string {
	return filepath.Join(fs.RunDir(runID), recordFile)
}

// SaveRecord atomically writes record.json for the run.
func (fs *FSStore) SaveRecord(runID string, record *Record) error {
	if err := checkID(runID); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	path := fs.recordPath(runID)
	if err := writeAtomic(path, data); err != nil {
		return err
	}

	slog.Debug("Record saved", "run_id", runID, "path", path)
	return nil
}

// LoadRecord reads record.json for the run.
func (fs *FSStore) LoadRecord(runID string) (*Record, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}

	path := fs.recordPath(runID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Record loaded", "run_id", runID, "path", path)
	return &record, nil
}

// ListRecords returns metadata for every readable run, oldest first.
// Unreadable records are skipped with a warning.
func (fs *FSStore) ListRecords() ([]RecordInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		if _, err := os.Stat(fs.recordPath(runID)); os.IsNotExist(err) {
			continue // Run directory without a record (e.g. trace only)
		}

		record, err := fs.LoadRecord(runID)
		if err != nil {
			slog.Warn("Failed to load record for listing", "run_id", runID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.Before(infos[j].Timestamp)
	})

	slog.Debug("Listed records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the run directory and everything in it.
func (fs *FSStore) DeleteRecord(runID string) error {
	if err := checkID(runID); err != nil {
		return err
	}

	dir := fs.RunDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Record deleted", "run_id", runID, "path", dir)
	return nil
}

// SaveArtifact writes <runDir>/<name> atomically.
func (fs *FSStore) SaveArtifact(runID, name string, data []byte) error {
	if err := checkArtifact(runID, name); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(fs.RunDir(runID), name), data)
}

// LoadArtifact reads <runDir>/<name>.
func (fs *FSStore) LoadArtifact(runID, name string) ([]byte, error) {
	if err := checkArtifact(runID, name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(fs.RunDir(runID), name))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}

// AppendTrace appends entries to <runDir>/trace.jsonl.
func (fs *FSStore) AppendTrace(runID string, entries ...TraceEntry) error {
	tw, err := NewTraceWriter(fs.baseDir, runID, true)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := tw.Write(entry); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// LoadTrace reads <runDir>/trace.jsonl. A trace without entries is
// reported as not found.
func (fs *FSStore) LoadTrace(runID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(fs.baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{RunID: runID}
	}
	return entries, nil
}

// Close is a no-op for the filesystem store.
func (fs *FSStore) Close() error {
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	return nil
}

func checkArtifact(runID, name string) error {
	if err := checkID(runID); err != nil {
		return err
	}
	if err := checkID(name); err != nil {
		return fmt.Errorf("invalid artifact name: %w", err)
	}
	return nil
}

// checkID rejects IDs that would escape the run directory.
func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("id %q is not a valid path element", id)
	}
	return nil
}
