// internal/segmentation/errors.go
package segmentation

import (
	"errors"
	"fmt"

	"github.com/SyedDaiam9101/rmbg-service/internal/colors"
	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
)

// Kind classifies a pipeline failure
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidColor
	KindResize
	KindInference
	KindModelLoad
)

func (k Kind) String() string {
	switch k {
	case KindInvalidColor:
		return "invalid color"
	case KindResize:
		return "resize failure"
	case KindInference:
		return "inference failure"
	case KindModelLoad:
		return "model load failure"
	default:
		return "unknown"
	}
}

// Pipeline stage names, used in errors and spans
const (
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageComposite   = "composite"
)

var (
	// ErrInvalidColor matches malformed background colors
	ErrInvalidColor = colors.ErrInvalidColor
	// ErrModelLoad matches engine load failures
	ErrModelLoad = inference.ErrModelLoad
	// ErrResize matches resize failures in preprocessing or mask postprocessing
	ErrResize = errors.New("resize failure")
	// ErrInference matches engine failures and malformed engine outputs
	ErrInference = errors.New("inference failure")
)

// Error is returned for every failed Segment call. No partial result accompanies it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("segmentation %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match an Error against the sentinel of its Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrResize:
		return e.Kind == KindResize
	case ErrInference:
		return e.Kind == KindInference
	case ErrInvalidColor:
		return e.Kind == KindInvalidColor
	case ErrModelLoad:
		return e.Kind == KindModelLoad
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func stageError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
