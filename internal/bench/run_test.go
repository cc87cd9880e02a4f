package bench

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/imagerecovery/internal/objective"
	"github.com/cwbudde/imagerecovery/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedOptimizer proposes fixed points, one per pass
type scriptedOptimizer struct {
	proposals [][]float64
	calls     int
}

func (s *scriptedOptimizer) Name() string { return "scripted" }

func (s *scriptedOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	p := s.proposals[s.calls%len(s.proposals)]
	s.calls++
	return p, eval(p)
}

func filled(v float64) []float64 {
	out := make([]float64, objective.DomainShape.Size())
	for i := range out {
		out[i] = v
	}
	return out
}

func newObjective(t *testing.T, target []float64) *objective.Image {
	t.Helper()
	im, err := objective.NewWithTarget(objective.DefaultProblem(), target)
	require.NoError(t, err)
	return im
}

func TestRunFindsTarget(t *testing.T) {
	target := filled(100)
	im := newObjective(t, target)
	optimizer := &scriptedOptimizer{proposals: [][]float64{target}}

	var trace []PassResult
	cfg := RunConfig{Passes: 10, Seed: 1, Convergence: DefaultConvergenceConfig()}
	result, err := Run(context.Background(), im, optimizer, cfg, func(p PassResult) {
		trace = append(trace, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Loss)
	assert.Greater(t, result.InitialLoss, 0.0)
	assert.Equal(t, target, result.Recommendation)
	assert.True(t, result.Converged)
	// Pass 1 reaches zero, then Patience stale passes
	assert.Equal(t, 4, result.Passes)
	assert.Equal(t, int64(4), result.Evaluations)
	require.Len(t, trace, 4)
	assert.Equal(t, 1, trace[0].Pass)
	assert.Equal(t, 0.0, trace[0].BestLoss)
	assert.Equal(t, 0, trace[0].StalePasses)
	assert.Equal(t, 3, trace[3].StalePasses)
}

func TestRunClipsProposals(t *testing.T) {
	im := newObjective(t, filled(255))
	optimizer := &scriptedOptimizer{proposals: [][]float64{filled(1000)}}

	cfg := RunConfig{Passes: 1, Seed: 1, Convergence: DisabledConvergenceConfig()}
	result, err := Run(context.Background(), im, optimizer, cfg, nil)
	require.NoError(t, err)

	// 1000 clipped to 255 matches the target exactly
	assert.Equal(t, 0.0, result.Loss)
	for _, v := range result.Recommendation {
		require.Equal(t, 255.0, v)
	}
}

func TestRunKeepsBestAcrossPasses(t *testing.T) {
	im := newObjective(t, filled(0))
	optimizer := &scriptedOptimizer{proposals: [][]float64{filled(10), filled(200), filled(5)}}

	cfg := RunConfig{Passes: 3, Seed: 1, Convergence: DisabledConvergenceConfig()}
	result, err := Run(context.Background(), im, optimizer, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Passes)
	assert.False(t, result.Converged)
	assert.Equal(t, float64(objective.DomainShape.Size()*5), result.Loss)
}

func TestRunNeverWorseThanInitialSample(t *testing.T) {
	im := newObjective(t, filled(0))
	// Worst possible point
	optimizer := &scriptedOptimizer{proposals: [][]float64{filled(255)}}

	cfg := RunConfig{Passes: 2, Seed: 3, Convergence: DisabledConvergenceConfig()}
	result, err := Run(context.Background(), im, optimizer, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, result.InitialLoss, result.Loss)
	assert.Less(t, result.Loss, float64(objective.DomainShape.Size()*255))
}

func TestRunPropagatesShapeError(t *testing.T) {
	im := newObjective(t, filled(0))
	optimizer := &scriptedOptimizer{proposals: [][]float64{make([]float64, 12)}}

	_, err := Run(context.Background(), im, optimizer, DefaultRunConfig(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, objective.ErrShape)
}

func TestRunCancelled(t *testing.T) {
	im := newObjective(t, filled(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, im, &scriptedOptimizer{proposals: [][]float64{filled(0)}}, DefaultRunConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingOptimizer cancels the run after its first evaluation and keeps
// evaluating as a real optimizer would until its budget is spent.
type cancellingOptimizer struct {
	cancel context.CancelFunc
	evals  int
	point  []float64
}

func (c *cancellingOptimizer) Name() string { return "cancelling" }

func (c *cancellingOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	best := eval(c.point)
	c.evals++
	c.cancel()
	for i := 0; i < 49; i++ {
		best = min(best, eval(c.point))
		c.evals++
	}
	return c.point, best
}

func TestRunCancelledMidPass(t *testing.T) {
	im := newObjective(t, filled(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	optimizer := &cancellingOptimizer{cancel: cancel, point: filled(10)}
	var traced int
	result, err := Run(ctx, im, optimizer, DefaultRunConfig(), func(PassResult) { traced++ })

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Equal(t, 50, optimizer.evals)
	assert.Zero(t, traced, "an interrupted pass must not be reported")
}

func TestRunCancelledEvalScoresInf(t *testing.T) {
	im := newObjective(t, filled(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var afterCancel []float64
	optimizer := &recordingOptimizer{before: cancel, losses: &afterCancel}
	_, err := Run(ctx, im, optimizer, DefaultRunConfig(), nil)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, afterCancel, 1)
	assert.True(t, math.IsInf(afterCancel[0], 1))
}

// recordingOptimizer calls before, then records one evaluation.
type recordingOptimizer struct {
	before func()
	losses *[]float64
}

func (r *recordingOptimizer) Name() string { return "recording" }

func (r *recordingOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	r.before()
	p := filled(0)
	loss := eval(p)
	*r.losses = append(*r.losses, loss)
	return p, loss
}

func TestRunDisabledConvergenceRunsAllPasses(t *testing.T) {
	target := filled(50)
	im := newObjective(t, target)
	optimizer := &scriptedOptimizer{proposals: [][]float64{target}}

	cfg := RunConfig{Passes: 6, Seed: 1, Convergence: DisabledConvergenceConfig()}
	result, err := Run(context.Background(), im, optimizer, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Passes)
	assert.False(t, result.Converged)
}

func TestRunRejectsZeroPasses(t *testing.T) {
	im := newObjective(t, filled(0))
	_, err := Run(context.Background(), im, &scriptedOptimizer{}, RunConfig{}, nil)
	assert.Error(t, err)
}

func TestRunWithMayfly(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size mayfly run")
	}

	rng := rand.New(rand.NewSource(9))
	target := make([]float64, objective.DomainShape.Size())
	for i := range target {
		target[i] = rng.Float64() * 255
	}
	im := newObjective(t, target)

	cfg := RunConfig{Passes: 1, Seed: 42, Convergence: DisabledConvergenceConfig()}
	result, err := Run(context.Background(), im, opt.NewMayfly(3, 20, 42), cfg, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, result.Loss, result.InitialLoss)
	assert.Greater(t, result.Evaluations, int64(0))
	assert.Len(t, result.Recommendation, objective.DomainShape.Size())
}
