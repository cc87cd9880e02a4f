package objective

import "fmt"

// Sentinel errors for use with errors.Is.
var (
	ErrConfiguration    = &ConfigurationError{}
	ErrShape            = &ShapeError{}
	ErrResourceNotFound = &ResourceNotFoundError{}
	ErrUnimplemented    = &UnimplementedError{}
)

// ConfigurationError reports an unsupported problem descriptor.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error"
	}
	return "configuration error: " + e.Field + " " + e.Value + " " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ShapeError reports a candidate whose element count does not match the domain.
type ShapeError struct {
	Got  int
	Want Shape
}

func (e *ShapeError) Error() string {
	if e.Want.Size() == 0 {
		return "shape error"
	}
	return fmt.Sprintf("shape error: got %d elements, want %s (%d elements)", e.Got, e.Want, e.Want.Size())
}

func (e *ShapeError) Is(target error) bool {
	_, ok := target.(*ShapeError)
	return ok
}

// ResourceNotFoundError reports a missing target asset.
type ResourceNotFoundError struct {
	Path string
	Err  error
}

func (e *ResourceNotFoundError) Error() string {
	if e.Path == "" {
		return "resource not found"
	}
	return "resource not found: " + e.Path
}

func (e *ResourceNotFoundError) Unwrap() error {
	return e.Err
}

func (e *ResourceNotFoundError) Is(target error) bool {
	_, ok := target.(*ResourceNotFoundError)
	return ok
}

// UnimplementedError is returned when evaluating a problem type that has no loss.
type UnimplementedError struct {
	ProblemType ProblemType
}

func (e *UnimplementedError) Error() string {
	if e.ProblemType == "" {
		return "unimplemented problem type"
	}
	return "unimplemented problem type: " + string(e.ProblemType)
}

func (e *UnimplementedError) Is(target error) bool {
	_, ok := target.(*UnimplementedError)
	return ok
}
