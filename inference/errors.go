package inference

import (
	"fmt"

	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
)

var (
	// ErrNotLoaded is returned by Infer while no session is bound.
	ErrNotLoaded = errors.New("inference engine is not loaded")
	// ErrEngineClosed is returned by every operation after Close.
	ErrEngineClosed = errors.New("inference engine is closed")
)

// LoadError reports that a model or its labels could not be read or bound to a backend.
type LoadError struct {
	// Source names what failed to load (a path, or "model" for in-memory blobs).
	Source string
	// Backend is the backend the load targeted, empty for label loads.
	Backend providers.ProviderBackend
	// Cause is the underlying error.
	Cause error
}

func (e *LoadError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("load %s on %s: %v", e.Source, e.Backend, e.Cause)
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Cause)
}

// Unwrap returns the cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// InferenceError reports a failure while processing a single frame.
type InferenceError struct {
	// Stage is the pipeline stage that failed (preprocess, inference, decode, suppress).
	Stage string
	// Cause is the underlying error.
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

// Unwrap returns the cause.
func (e *InferenceError) Unwrap() error {
	return e.Cause
}
