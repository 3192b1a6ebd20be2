// Package providers - Runtime environment and session options.
package providers

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// InitializeEnvironment loads the ONNX Runtime shared library once per process.
//
// Order of operations:
//  1. Library path check: Ensures native runtime is accessible.
//  2. Environment setup: Required to prepare ONNX Runtime internals.
//
// Later calls are no-ops while the environment is up.
//
// Arguments:
//   - libPath: The shared library path. Empty means GetSharedLibPath().
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// DestroyEnvironment tears the runtime environment down. Sessions must be closed first.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSessionOptions builds native session options for a backend configuration.
//
// Execution Providers (EPs) let ONNX Runtime leverage specialized hardware. Enabling a backend
// that the native library was not built with fails here rather than silently falling back.
//
// Arguments:
//   - cfg: The backend configuration.
//
// Returns:
//   - *ort.SessionOptions: The options; the caller must Destroy them.
//   - error: An error if the options cannot be created or the provider cannot be enabled.
func NewSessionOptions(cfg Config) (*ort.SessionOptions, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := configureSessionOptions(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func configureSessionOptions(options *ort.SessionOptions, cfg Config) error {
	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	opts := cfg.Options
	if opts == nil {
		opts = DefaultOptions(cfg.Backend)
	}

	switch o := opts.(type) {
	case CPUOptions:
		// CPU provider is always available.
	case CoreMLOptions:
		if err := options.AppendExecutionProviderCoreML(o.Flags()); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOOptions:
		if err := options.AppendExecutionProviderOpenVINO(o.ProviderOptionsMap()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case DirectMLOptions:
		if err := options.AppendExecutionProviderDirectML(o.DeviceID); err != nil {
			return errors.Wrap(err, "error enabling DirectML")
		}
	case CUDAOptions:
		cuda, err := o.ToNativeProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	default:
		return fmt.Errorf("unsupported provider options type: %T", opts)
	}

	return nil
}
