// Package objective implements the image recovery benchmark objective: an
// optimizer proposes a 256x256x3 array and is scored by its L1 distance to a
// fixed target image.
package objective

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cwbudde/imagerecovery/internal/param"
	"gonum.org/v1/gonum/floats"
)

// AssetName is the target image shipped in the asset directory.
const AssetName = "headrgb_olivier.png"

// Search space hyperparameters declared for every optimizer.
const (
	MutationSigma    = 35
	PixelLower       = 0
	PixelUpper       = 255
	CrossoverMinSize = 1
	CrossoverMaxSize = 200
)

// Config holds the construction parameters of an Image objective.
type Config struct {
	Problem  Problem
	AssetDir string // Directory containing AssetName
}

// Image scores candidates against a fixed target image. The target is
// written once at construction and never modified, so Loss may be called
// from many goroutines at once.
type Image struct {
	problem Problem
	shape   Shape
	target  []float64
	space   *param.Array
}

// New validates the problem, loads the target asset from cfg.AssetDir and
// declares the search space.
func New(cfg Config) (*Image, error) {
	if err := cfg.Problem.Validate(); err != nil {
		return nil, err
	}

	path := filepath.Join(cfg.AssetDir, AssetName)
	target, err := LoadTarget(path, DomainShape)
	if err != nil {
		return nil, err
	}

	slog.Debug("Target image loaded", "path", path, "problem", cfg.Problem.String())
	return newImage(cfg.Problem, target), nil
}

// NewWithTarget builds the objective around a target already in memory.
// The slice is copied.
func NewWithTarget(problem Problem, target []float64) (*Image, error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	if len(target) != DomainShape.Size() {
		return nil, &ShapeError{Got: len(target), Want: DomainShape}
	}
	return newImage(problem, append([]float64{}, target...)), nil
}

func newImage(problem Problem, target []float64) *Image {
	return &Image{
		problem: problem,
		shape:   DomainShape,
		target:  target,
		space:   SearchSpace(),
	}
}

// SearchSpace declares the variable optimizers explore: a (256, 256, 3)
// array with adaptive sigma starting at 35, clipped to [0, 255] and sampled
// over the full range, recombined by swapping rectangles of up to 200 pixels
// along the two image axes.
func SearchSpace() *param.Array {
	maxSize := param.NewScalar(CrossoverMinSize, CrossoverMaxSize).SetIntegerCasting()
	return param.NewArray(DomainShape.Dims()...).
		SetMutableSigma(true).
		SetMutation(MutationSigma).
		SetBounds(PixelLower, PixelUpper, param.Clipping, true).
		SetRecombination(param.Crossover{Axis: []int{0, 1}, MaxSize: maxSize}).
		SetName("")
}

// Problem returns the problem descriptor.
func (im *Image) Problem() Problem {
	return im.problem
}

// Shape returns the candidate layout.
func (im *Image) Shape() Shape {
	return im.shape
}

// Parametrization returns the declared search space.
func (im *Image) Parametrization() *param.Array {
	return im.space
}

// Target returns a copy of the flattened target.
func (im *Image) Target() []float64 {
	return append([]float64{}, im.target...)
}

// Loss returns the sum of absolute differences between x and the target.
// x may use any layout with exactly Shape().Size() elements; it is read in
// row-major (y, x, channel) order. Lower is better and the value is not
// normalized.
func (im *Image) Loss(x []float64) (float64, error) {
	if len(x) != im.shape.Size() {
		return 0, &ShapeError{Got: len(x), Want: im.shape}
	}

	switch im.problem.Type {
	case Recovering:
		return floats.Distance(x, im.target, 1), nil
	default:
		return 0, &UnimplementedError{ProblemType: im.problem.Type}
	}
}

// EvaluationFunction scores a final recommendation.
func (im *Image) EvaluationFunction(x []float64) (float64, error) {
	loss, err := im.Loss(x)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate recommendation: %w", err)
	}
	return loss, nil
}
