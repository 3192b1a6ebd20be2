package providers

import (
	"os"
	"runtime"
)

// SharedLibPathEnv overrides the platform default shared library location.
const SharedLibPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
func GetSharedLibPath() string {
	if p := os.Getenv(SharedLibPathEnv); p != "" {
		return p
	}

	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
