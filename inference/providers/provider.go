// Package providers - Backend (execution provider) configuration for inference sessions.
package providers

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
	// Backend returns the backend the options belong to.
	Backend() ProviderBackend
}

// Config selects the backend an inference session is built for.
//
// A Config is an immutable value: changing any field means building a new session.
type Config struct {
	// Backend specifies the execution provider to use.
	Backend ProviderBackend `json:"type" yaml:"type"`
	// Options contains provider-specific configuration options. Nil means provider defaults.
	Options ProviderOptions `json:"options,omitempty" yaml:"options,omitempty"`
	// IntraOpThreads sets threads used inside a single graph node. Zero lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads sets threads used across independent graph nodes. Zero lets the runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// DefaultConfig returns a CPU backend with runtime-chosen threading.
//
// Returns:
//   - Config: The default backend configuration.
//
// @example
// backend := DefaultConfig()
// backend.IntraOpThreads = 2
func DefaultConfig() Config {
	return Config{Backend: CPUProviderBackend, Options: CPUOptions{}}
}

// ParseBackend converts a user supplied backend name into a ProviderBackend.
func ParseBackend(name string) (ProviderBackend, error) {
	b := ProviderBackend(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Backends() {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q", name)
}

// Backends lists every backend this package can configure.
func Backends() []ProviderBackend {
	return []ProviderBackend{
		CPUProviderBackend,
		CUDAProviderBackend,
		CoreMLProviderBackend,
		OpenVINOProviderBackend,
		DirectMLProviderBackend,
	}
}

// NewConfig builds a validated backend configuration for the named backend with default options.
//
// Arguments:
//   - name: The backend name (cpu, cuda, coreml, openvino, directml).
//
// Returns:
//   - Config: The backend configuration.
//   - error: An error if the backend is unknown.
func NewConfig(name string) (Config, error) {
	backend, err := ParseBackend(name)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Backend: backend, Options: DefaultOptions(backend)}
	return cfg, cfg.Validate()
}

// DefaultOptions returns the zero options value for a backend.
func DefaultOptions(backend ProviderBackend) ProviderOptions {
	switch backend {
	case CUDAProviderBackend:
		return CUDAOptions{}
	case CoreMLProviderBackend:
		return CoreMLOptions{}
	case OpenVINOProviderBackend:
		return OpenVINOOptions{DeviceType: "CPU"}
	case DirectMLProviderBackend:
		return DirectMLOptions{}
	default:
		return CPUOptions{}
	}
}

// Validate checks that the backend is known and that the options match it.
func (c Config) Validate() error {
	if c.Backend == "" {
		return errors.New("backend is required")
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Options != nil && c.Options.Backend() != c.Backend {
		return fmt.Errorf("options of type %T do not match backend %s", c.Options, c.Backend)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return fmt.Errorf("thread counts must not be negative, got intra=%d inter=%d",
			c.IntraOpThreads, c.InterOpThreads)
	}
	return nil
}

// String implements fmt.Stringer.
func (c Config) String() string {
	return string(c.Backend)
}
