package objective

import (
	"fmt"
	"strconv"
)

// ProblemType selects the family of target images.
type ProblemType string

const (
	// Recovering asks the optimizer to reproduce the target image directly.
	Recovering ProblemType = "recovering"

	// Adversarial is reserved for attacked-image targets. It has no loss yet.
	Adversarial ProblemType = "adversarial"
)

// Problem identifies which fixed target the objective scores against.
type Problem struct {
	Type  ProblemType `json:"problemType" yaml:"problemType"`
	Index int         `json:"indexPb" yaml:"indexPb"`
}

// DefaultProblem is the only supported descriptor: recover target 0.
func DefaultProblem() Problem {
	return Problem{Type: Recovering, Index: 0}
}

func (p Problem) String() string {
	return string(p.Type) + "/" + strconv.Itoa(p.Index)
}

// Validate rejects every descriptor except recovering/0.
func (p Problem) Validate() error {
	if p.Type != Recovering {
		return &ConfigurationError{
			Field:  "problem_type",
			Value:  strconv.Quote(string(p.Type)),
			Reason: fmt.Sprintf("is not supported (want %q)", Recovering),
		}
	}
	if p.Index != 0 {
		return &ConfigurationError{
			Field:  "index_pb",
			Value:  strconv.Itoa(p.Index),
			Reason: "is not supported (only target 0 exists)",
		}
	}
	return nil
}

// Shape is the (height, width, channels) layout of a candidate array.
type Shape struct {
	Height   int
	Width    int
	Channels int
}

// DomainShape is the layout of every candidate and of the target.
var DomainShape = Shape{Height: 256, Width: 256, Channels: 3}

// Size returns the number of elements in an array of this shape.
func (s Shape) Size() int {
	return s.Height * s.Width * s.Channels
}

// Dims returns the shape as a slice, outermost axis first.
func (s Shape) Dims() []int {
	return []int{s.Height, s.Width, s.Channels}
}

// Offset returns the flat row-major index of element (y, x, c).
func (s Shape) Offset(y, x, c int) int {
	return (y*s.Width+x)*s.Channels + c
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Height, s.Width, s.Channels)
}
