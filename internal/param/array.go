// Package param declares the search space an optimizer explores: the shape
// of the variable, its mutation step size, its bounds and its recombination
// policy. It holds configuration only; mutation and crossover operators
// belong to the optimizer consuming it.
package param

import (
	"fmt"
	"math"
	"math/rand"
)

// BoundMethod selects how out-of-bounds values are brought back in range.
type BoundMethod string

const (
	// Clipping clamps each element to [Lower, Upper].
	Clipping BoundMethod = "clipping"
)

// Bounds defines the valid range of every element of an Array.
type Bounds struct {
	Lower             float64     `json:"lower"`
	Upper             float64     `json:"upper"`
	Method            BoundMethod `json:"method"`
	FullRangeSampling bool        `json:"fullRangeSampling"`
}

// Clip clamps data to the bounds in place
func (b Bounds) Clip(data []float64) {
	for i := range data {
		data[i] = clamp(data[i], b.Lower, b.Upper)
	}
}

// Scalar is a bounded scalar hyperparameter.
type Scalar struct {
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Integer bool    `json:"integer"`
}

// NewScalar creates a scalar in [lower, upper]
func NewScalar(lower, upper float64) Scalar {
	return Scalar{Lower: lower, Upper: upper}
}

// SetIntegerCasting marks the scalar as integer valued.
func (s Scalar) SetIntegerCasting() Scalar {
	s.Integer = true
	return s
}

// Crossover describes a recombination that swaps a rectangular region
// spanning Axis, whose side length is drawn from MaxSize.
type Crossover struct {
	Axis    []int  `json:"axis"`
	MaxSize Scalar `json:"maxSize"`
}

// Array is a bounded, mutable array variable.
type Array struct {
	Shape         []int      `json:"shape"`
	Sigma         float64    `json:"sigma"`
	MutableSigma  bool       `json:"mutableSigma"`
	Bounds        Bounds     `json:"bounds"`
	Recombination *Crossover `json:"recombination,omitempty"`
	Name          string     `json:"name"`
}

// NewArray declares an array variable of the given shape with unit sigma
// and unbounded values.
func NewArray(shape ...int) *Array {
	return &Array{
		Shape: append([]int{}, shape...),
		Sigma: 1,
		Bounds: Bounds{
			Lower: math.Inf(-1),
			Upper: math.Inf(1),
		},
	}
}

// SetMutableSigma lets the optimizer adapt sigma during the search.
func (a *Array) SetMutableSigma(mutable bool) *Array {
	a.MutableSigma = mutable
	return a
}

// SetMutation sets the mutation step size.
func (a *Array) SetMutation(sigma float64) *Array {
	a.Sigma = sigma
	return a
}

// SetBounds sets element bounds and the method used to enforce them.
func (a *Array) SetBounds(lower, upper float64, method BoundMethod, fullRangeSampling bool) *Array {
	a.Bounds = Bounds{
		Lower:             lower,
		Upper:             upper,
		Method:            method,
		FullRangeSampling: fullRangeSampling,
	}
	return a
}

// SetRecombination sets the crossover policy.
func (a *Array) SetRecombination(c Crossover) *Array {
	a.Recombination = &c
	return a
}

// SetName names the variable.
func (a *Array) SetName(name string) *Array {
	a.Name = name
	return a
}

// Dim returns the number of elements.
func (a *Array) Dim() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// BoundVectors expands the scalar bounds to per-element lower and upper slices.
func (a *Array) BoundVectors() (lower, upper []float64) {
	n := a.Dim()
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = a.Bounds.Lower
		upper[i] = a.Bounds.Upper
	}
	return lower, upper
}

// Sample draws an initial point. With full range sampling every element is
// uniform in the bounds; otherwise elements are drawn around the centre of
// the bounds with the declared sigma and clipped.
func (a *Array) Sample(rng *rand.Rand) []float64 {
	data := make([]float64, a.Dim())
	lo, hi := a.Bounds.Lower, a.Bounds.Upper
	if a.Bounds.FullRangeSampling && !math.IsInf(lo, 0) && !math.IsInf(hi, 0) {
		for i := range data {
			data[i] = lo + rng.Float64()*(hi-lo)
		}
		return data
	}

	centre := 0.0
	if !math.IsInf(lo, 0) && !math.IsInf(hi, 0) {
		centre = (lo + hi) / 2
	}
	for i := range data {
		data[i] = centre + rng.NormFloat64()*a.Sigma
	}
	a.Bounds.Clip(data)
	return data
}

// Validate checks the declaration for internal consistency.
func (a *Array) Validate() error {
	if len(a.Shape) == 0 {
		return fmt.Errorf("shape cannot be empty")
	}
	for i, d := range a.Shape {
		if d <= 0 {
			return fmt.Errorf("shape axis %d must be positive, got %d", i, d)
		}
	}
	if a.Sigma <= 0 {
		return fmt.Errorf("sigma must be positive, got %v", a.Sigma)
	}
	if !(a.Bounds.Lower < a.Bounds.Upper) {
		return fmt.Errorf("lower bound %v must be below upper bound %v", a.Bounds.Lower, a.Bounds.Upper)
	}
	switch a.Bounds.Method {
	case "", Clipping:
	default:
		return fmt.Errorf("unknown bound method: %s", a.Bounds.Method)
	}
	if a.Bounds.FullRangeSampling && (math.IsInf(a.Bounds.Lower, 0) || math.IsInf(a.Bounds.Upper, 0)) {
		return fmt.Errorf("full range sampling requires finite bounds")
	}

	if c := a.Recombination; c != nil {
		if len(c.Axis) == 0 {
			return fmt.Errorf("crossover axis cannot be empty")
		}
		for _, ax := range c.Axis {
			if ax < 0 || ax >= len(a.Shape) {
				return fmt.Errorf("crossover axis %d out of range for %d-d array", ax, len(a.Shape))
			}
		}
		if c.MaxSize.Lower < 1 || c.MaxSize.Lower > c.MaxSize.Upper {
			return fmt.Errorf("crossover max size range [%v, %v] is invalid", c.MaxSize.Lower, c.MaxSize.Upper)
		}
	}
	return nil
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
