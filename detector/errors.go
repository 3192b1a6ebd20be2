package detector

import (
	"fmt"

	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("detector is closed")
	// ErrRestarting is returned by Detect while a backend restart is queued or running.
	ErrRestarting = errors.New("detector is restarting, frame dropped")
	// ErrUnloaded is returned by Detect after a failed restart, until the next Restart.
	ErrUnloaded = errors.New("detector has no loaded model, frame dropped")
)

// RestartError reports that the engine could not be rebuilt for a backend. The engine stays
// unloaded until another Restart succeeds.
type RestartError struct {
	// Backend is the backend the restart targeted.
	Backend providers.Config
	// Cause is the underlying error.
	Cause error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("restart on %s: %v", e.Backend.Backend, e.Cause)
}

// Unwrap returns the cause.
func (e *RestartError) Unwrap() error {
	return e.Cause
}

// ErrorReporter receives non-fatal load and runtime failures.
type ErrorReporter interface {
	OnError(err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(err error)

// OnError calls f.
func (f ErrorReporterFunc) OnError(err error) {
	f(err)
}
