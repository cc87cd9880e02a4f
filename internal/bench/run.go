// Package bench binds the image objective to an external optimizer and
// scores the optimizer's final recommendation.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/imagerecovery/internal/objective"
	"github.com/cwbudde/imagerecovery/internal/opt"
)

// RunConfig controls a single benchmark run
type RunConfig struct {
	Passes      int               `json:"passes" yaml:"passes"`
	Seed        int64             `json:"seed" yaml:"seed"`
	Convergence ConvergenceConfig `json:"convergence" yaml:"convergence"`
}

// DefaultRunConfig runs a single pass
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Passes:      1,
		Seed:        42,
		Convergence: DefaultConvergenceConfig(),
	}
}

// PassResult is reported after every optimizer pass
type PassResult struct {
	Pass        int
	PassLoss    float64   // Best loss found by this pass
	BestLoss    float64   // Best loss over all passes so far
	Best        []float64 // Current recommendation, not to be modified
	Evaluations int64
	StalePasses int // Passes since the last significant improvement
}

// TraceFunc receives per-pass progress. It runs on the caller's goroutine.
type TraceFunc func(PassResult)

// Result holds the outcome of a benchmark run
type Result struct {
	Recommendation []float64
	Loss           float64 // EvaluationFunction of Recommendation
	InitialLoss    float64 // Loss of the initial full-range sample
	Passes         int
	Evaluations    int64
	Converged      bool
	Elapsed        time.Duration
}

// Run optimizes im with optimizer for up to cfg.Passes passes. Each proposed
// point is clipped to the declared bounds before it is scored. The first
// evaluation error aborts the run and is returned.
func Run(ctx context.Context, im *objective.Image, optimizer opt.Optimizer, cfg RunConfig, trace TraceFunc) (*Result, error) {
	if cfg.Passes <= 0 {
		return nil, fmt.Errorf("passes must be positive, got %d", cfg.Passes)
	}

	space := im.Parametrization()
	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search space: %w", err)
	}

	start := time.Now()
	dim := space.Dim()
	lower, upper := space.BoundVectors()

	initial := space.Sample(rand.New(rand.NewSource(cfg.Seed)))
	initialLoss, err := im.Loss(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to score initial sample: %w", err)
	}

	slog.Info("Starting benchmark run",
		"optimizer", optimizer.Name(),
		"problem", im.Problem().String(),
		"dim", dim,
		"passes", cfg.Passes,
		"initial_loss", initialLoss,
	)

	var (
		evals   atomic.Int64
		errOnce sync.Once
		evalErr error
		buffers = sync.Pool{New: func() any { b := make([]float64, dim); return &b }}
	)

	// eval may be called concurrently by the optimizer. After cancellation
	// every point scores +Inf so the optimizer winds down without progress.
	eval := func(x []float64) float64 {
		if err := ctx.Err(); err != nil {
			errOnce.Do(func() { evalErr = err })
			return math.Inf(1)
		}
		evals.Add(1)

		point := x
		if len(x) == dim {
			buf := buffers.Get().(*[]float64)
			defer buffers.Put(buf)
			point = *buf
			copy(point, x)
			space.Bounds.Clip(point)
		}

		loss, err := im.Loss(point)
		if err != nil {
			errOnce.Do(func() { evalErr = err })
			return math.Inf(1)
		}
		return loss
	}

	best := initial
	bestLoss := initialLoss
	tracker := NewConvergenceTracker(cfg.Convergence)
	passes := 0
	converged := false

	for pass := 1; pass <= cfg.Passes; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, passLoss := optimizer.Run(eval, lower, upper, dim)
		passes = pass
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pass %d interrupted: %w", pass, err)
		}
		if evalErr != nil {
			return nil, fmt.Errorf("evaluation failed in pass %d: %w", pass, evalErr)
		}

		if len(candidate) == dim && passLoss < bestLoss {
			best = append([]float64{}, candidate...)
			space.Bounds.Clip(best)
			bestLoss = passLoss
		}

		converged = tracker.Update(bestLoss)

		slog.Debug("Pass complete", "pass", pass, "pass_loss", passLoss, "best_loss", bestLoss)
		if trace != nil {
			trace(PassResult{
				Pass:        pass,
				PassLoss:    passLoss,
				BestLoss:    bestLoss,
				Best:        best,
				Evaluations: evals.Load(),
				StalePasses: tracker.StaleCount(),
			})
		}

		if converged {
			break
		}
	}

	loss, err := im.EvaluationFunction(best)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Recommendation: best,
		Loss:           loss,
		InitialLoss:    initialLoss,
		Passes:         passes,
		Evaluations:    evals.Load(),
		Converged:      converged,
		Elapsed:        time.Since(start),
	}

	slog.Info("Benchmark run complete",
		"elapsed", result.Elapsed,
		"initial_loss", result.InitialLoss,
		"loss", result.Loss,
		"passes", result.Passes,
		"evaluations", result.Evaluations,
		"converged", result.Converged,
	)
	return result, nil
}
