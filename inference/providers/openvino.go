// Package providers - OpenVINO execution provider.
package providers

import "strconv"

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU).
	DeviceType string `json:"device_type" yaml:"device_type"`
	// Execution precision: FP32, FP16 or ACCURACY. Empty keeps the device default.
	Precision string `json:"precision" yaml:"precision"`
	// Overrides the default number of inference threads. Zero keeps the default.
	NumOfThreads int `json:"num_of_threads" yaml:"num_of_threads"`
	// Overrides the default number of streams. Zero keeps the default.
	NumStreams int `json:"num_streams" yaml:"num_streams"`
	// Directory used to cache compiled blobs.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
	// Rewrite dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disable_dynamic_shapes" yaml:"disable_dynamic_shapes"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (OpenVINOOptions) isProviderOptions() {}

// Backend returns OpenVINOProviderBackend.
func (OpenVINOOptions) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// ProviderOptionsMap returns the key/value form ONNX Runtime expects. Unset fields are omitted.
func (o OpenVINOOptions) ProviderOptionsMap() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		m["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	if o.CacheDir != "" {
		m["cache_dir"] = o.CacheDir
	}
	if o.DisableDynamicShapes {
		m["disable_dynamic_shapes"] = "true"
	}
	return m
}
