package inference

import (
	"fmt"

	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
)

// State is the lifecycle state of an Engine.
type State int

const (
	// StateUnloaded means no session is bound. Infer fails until a successful Rebuild.
	StateUnloaded State = iota
	// StateReady means a session is bound and Infer may be called.
	StateReady
	// StateClosed is terminal.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a model bound to a backend.
//
// Run copies the input into the session's own buffer and returns an output the caller owns.
type Session interface {
	Run(input *Tensor) (*Tensor, error)
	// InputShape is the fixed input shape, batch dimension included.
	InputShape() []int
	Close() error
}

// SessionFactory builds sessions from an in-memory model.
type SessionFactory interface {
	NewSession(model []byte, backend providers.Config) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(model []byte, backend providers.Config) (Session, error)

// NewSession calls f.
func (f SessionFactoryFunc) NewSession(model []byte, backend providers.Config) (Session, error) {
	return f(model, backend)
}

// Engine owns one session at a time and swaps it when the backend changes.
//
// Engine does no locking of its own. Every call must come from a single goroutine (the
// detector's worker), which is what makes Rebuild atomic from the outside.
type Engine struct {
	factory SessionFactory
	backend providers.Config
	session Session
	state   State
}

// Load builds an engine with a session for the given backend.
//
// Arguments:
//   - factory: Builds the session.
//   - model: The serialized model.
//   - backend: The backend to bind.
//
// Returns:
//   - *Engine: A ready engine.
//   - error: A *LoadError if the session cannot be built.
func Load(factory SessionFactory, model []byte, backend providers.Config) (*Engine, error) {
	if factory == nil {
		return nil, &LoadError{Source: "model", Backend: backend.Backend, Cause: errors.New("session factory is nil")}
	}

	e := &Engine{factory: factory, state: StateUnloaded}
	if err := e.bind(model, backend); err != nil {
		return nil, err
	}
	return e, nil
}

// Infer runs the model synchronously on one input.
//
// Returns:
//   - *Tensor: The raw model output, owned by the caller.
//   - error: ErrNotLoaded, ErrEngineClosed, or an *InferenceError.
func (e *Engine) Infer(input *Tensor) (*Tensor, error) {
	switch e.state {
	case StateClosed:
		return nil, ErrEngineClosed
	case StateUnloaded:
		return nil, ErrNotLoaded
	}

	if input == nil {
		return nil, &InferenceError{Stage: "inference", Cause: errors.New("input tensor is nil")}
	}
	want, err := volume(e.session.InputShape())
	if err != nil {
		return nil, &InferenceError{Stage: "inference", Cause: err}
	}
	if input.Len() != want {
		return nil, &InferenceError{
			Stage: "inference",
			Cause: fmt.Errorf("input holds %d values, model expects %v", input.Len(), e.session.InputShape()),
		}
	}

	out, err := e.session.Run(input)
	if err != nil {
		return nil, &InferenceError{Stage: "inference", Cause: err}
	}
	return out, nil
}

// Rebuild releases the current session and binds a new one for backend.
//
// On failure the engine is left Unloaded and the error returned; there is no fallback to the
// previous backend.
//
// Arguments:
//   - model: The serialized model, read again by the caller for every rebuild.
//   - backend: The backend to bind.
//
// Returns:
//   - error: ErrEngineClosed, or a *LoadError.
func (e *Engine) Rebuild(model []byte, backend providers.Config) error {
	if e.state == StateClosed {
		return ErrEngineClosed
	}

	releaseErr := e.release()
	if err := e.bind(model, backend); err != nil {
		return err
	}
	if releaseErr != nil {
		return errors.Wrap(releaseErr, "previous session did not close cleanly")
	}
	return nil
}

// Close releases the session. The engine is unusable afterwards.
func (e *Engine) Close() error {
	if e.state == StateClosed {
		return ErrEngineClosed
	}
	err := e.release()
	e.state = StateClosed
	return err
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Backend returns the backend the engine was last asked to bind.
func (e *Engine) Backend() providers.Config {
	return e.backend
}

// InputShape returns the model input shape, or nil while unloaded.
func (e *Engine) InputShape() []int {
	if e.state != StateReady {
		return nil
	}
	return append([]int(nil), e.session.InputShape()...)
}

func (e *Engine) bind(model []byte, backend providers.Config) error {
	e.backend = backend

	if len(model) == 0 {
		return &LoadError{Source: "model", Backend: backend.Backend, Cause: errors.New("model is empty")}
	}
	if err := backend.Validate(); err != nil {
		return &LoadError{Source: "model", Backend: backend.Backend, Cause: err}
	}

	session, err := e.factory.NewSession(model, backend)
	if err != nil {
		return &LoadError{Source: "model", Backend: backend.Backend, Cause: err}
	}

	e.session = session
	e.state = StateReady
	return nil
}

func (e *Engine) release() error {
	e.state = StateUnloaded
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}
