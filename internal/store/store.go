package store

// Store persists benchmark run records and their artifacts.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord saves the record for the given run, replacing any existing one.
	SaveRecord(runID string, record *Record) error

	// LoadRecord retrieves the record for the given run.
	LoadRecord(runID string) (*Record, error)

	// ListRecords returns metadata for all stored runs, oldest first.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and all artifacts of the run.
	DeleteRecord(runID string) error

	// SaveArtifact stores a named blob (best.png, diff.png) for the run.
	SaveArtifact(runID, name string, data []byte) error

	// LoadArtifact retrieves a named blob for the run.
	LoadArtifact(runID, name string) ([]byte, error)

	// AppendTrace appends per-pass entries to the run's trace.
	AppendTrace(runID string, entries ...TraceEntry) error

	// LoadTrace returns the run's trace in the order it was written.
	LoadTrace(runID string) ([]TraceEntry, error)

	// Close releases resources held by the store.
	Close() error
}

// Artifact names written by the run command
const (
	ArtifactBest = "best.png"
	ArtifactDiff = "diff.png"
)

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run or artifact.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
