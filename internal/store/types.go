package store

import (
	"fmt"
	"time"
)

// RunConfig is the configuration a run was started with.
// It is a copy of the CLI settings so this package stays free of imports
// from the objective and bench packages.
type RunConfig struct {
	AssetDir    string `json:"assetDir" yaml:"assetDir"`
	ProblemType string `json:"problemType" yaml:"problemType"`
	IndexPb     int    `json:"indexPb" yaml:"indexPb"`
	Optimizer   string `json:"optimizer" yaml:"optimizer"`
	Iters       int    `json:"iters" yaml:"iters"`
	PopSize     int    `json:"popSize" yaml:"popSize"`
	Passes      int    `json:"passes" yaml:"passes"`
	Seed        int64  `json:"seed" yaml:"seed"`
}

// Record is the persisted outcome of a benchmark run.
type Record struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId" yaml:"runId"`

	// Recommendation is the flattened (256, 256, 3) candidate the optimizer
	// recommended, after clipping to [0, 255]
	Recommendation []float64 `json:"recommendation" yaml:"recommendation"`

	// Loss is the evaluation function value of Recommendation
	Loss float64 `json:"loss" yaml:"loss"`

	// InitialLoss is the loss of the initial full-range sample
	InitialLoss float64 `json:"initialLoss" yaml:"initialLoss"`

	Passes      int       `json:"passes" yaml:"passes"`
	Evaluations int64     `json:"evaluations" yaml:"evaluations"`
	Converged   bool      `json:"converged" yaml:"converged"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Config      RunConfig `json:"config" yaml:"config"`
}

// RecordInfo is record metadata without the recommendation.
type RecordInfo struct {
	RunID       string    `json:"runId" yaml:"runId"`
	Loss        float64   `json:"loss" yaml:"loss"`
	InitialLoss float64   `json:"initialLoss" yaml:"initialLoss"`
	Passes      int       `json:"passes" yaml:"passes"`
	Evaluations int64     `json:"evaluations" yaml:"evaluations"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	ProblemType string    `json:"problemType" yaml:"problemType"`
	IndexPb     int       `json:"indexPb" yaml:"indexPb"`
	Optimizer   string    `json:"optimizer" yaml:"optimizer"`
}

// NewRecord creates a record stamped with the current time.
func NewRecord(runID string, recommendation []float64, loss, initialLoss float64, passes int, evaluations int64, converged bool, config RunConfig) *Record {
	return &Record{
		RunID:          runID,
		Recommendation: recommendation,
		Loss:           loss,
		InitialLoss:    initialLoss,
		Passes:         passes,
		Evaluations:    evaluations,
		Converged:      converged,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo drops the recommendation.
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RunID:       r.RunID,
		Loss:        r.Loss,
		InitialLoss: r.InitialLoss,
		Passes:      r.Passes,
		Evaluations: r.Evaluations,
		Timestamp:   r.Timestamp,
		ProblemType: r.Config.ProblemType,
		IndexPb:     r.Config.IndexPb,
		Optimizer:   r.Config.Optimizer,
	}
}

// Validate checks that the record is complete.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Recommendation) == 0 {
		return &ValidationError{Field: "Recommendation", Reason: "cannot be empty"}
	}
	if r.Loss < 0 {
		return &ValidationError{Field: "Loss", Reason: "cannot be negative"}
	}
	if r.InitialLoss < 0 {
		return &ValidationError{Field: "InitialLoss", Reason: "cannot be negative"}
	}
	if r.Passes <= 0 {
		return &ValidationError{Field: "Passes", Reason: "must be positive"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.ProblemType == "" {
		return &ValidationError{Field: "Config.ProblemType", Reason: "cannot be empty"}
	}
	if r.Config.Optimizer == "" {
		return &ValidationError{Field: "Config.Optimizer", Reason: "cannot be empty"}
	}
	if r.Config.Passes < r.Passes {
		return &ValidationError{
			Field:  "Passes",
			Reason: fmt.Sprintf("%d exceeds configured %d", r.Passes, r.Config.Passes),
		}
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

// IsComparable reports whether two runs scored against the same target, so
// their losses can be compared. Returns an error naming the first mismatch.
func (r *Record) IsComparable(config RunConfig) error {
	if r.Config.ProblemType != config.ProblemType {
		return &CompatibilityError{
			Field:    "ProblemType",
			Expected: r.Config.ProblemType,
			Actual:   config.ProblemType,
		}
	}
	if r.Config.IndexPb != config.IndexPb {
		return &CompatibilityError{
			Field:    "IndexPb",
			Expected: fmt.Sprintf("%d", r.Config.IndexPb),
			Actual:   fmt.Sprintf("%d", config.IndexPb),
		}
	}
	if r.Config.AssetDir != config.AssetDir {
		return &CompatibilityError{
			Field:    "AssetDir",
			Expected: r.Config.AssetDir,
			Actual:   config.AssetDir,
		}
	}
	return nil
}

// CompatibilityError represents a mismatch between two run configurations.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
