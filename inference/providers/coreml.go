// Package providers - CoreML execution provider.
package providers

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML provider flags as defined by coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly                = 0x001
	coreMLFlagEnableOnSubgraph          = 0x002
	coreMLFlagOnlyEnableDeviceWithANE   = 0x004
	coreMLFlagOnlyAllowStaticInputShape = 0x008
	coreMLFlagCreateMLProgram           = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	UseCPUOnly bool `json:"use_cpu_only" yaml:"use_cpu_only"`
	// Enable CoreML on subgraphs in the body of control flow operators.
	EnableOnSubgraph bool `json:"enable_on_subgraph" yaml:"enable_on_subgraph"`
	// Only enable CoreML on devices with an Apple Neural Engine.
	OnlyEnableDeviceWithANE bool `json:"only_enable_device_with_ane" yaml:"only_enable_device_with_ane"`
	// Only allow nodes with static input shapes.
	RequireStaticInputShapes bool `json:"require_static_input_shapes" yaml:"require_static_input_shapes"`
	// Create an MLProgram format model instead of a NeuralNetwork.
	CreateMLProgram bool `json:"create_ml_program" yaml:"create_ml_program"`
}

func (CoreMLOptions) isProviderOptions() {}

// Backend returns CoreMLProviderBackend.
func (CoreMLOptions) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Flags packs the options into the CoreML flag bitmask.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.UseCPUOnly {
		flags |= coreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraph {
		flags |= coreMLFlagEnableOnSubgraph
	}
	if o.OnlyEnableDeviceWithANE {
		flags |= coreMLFlagOnlyEnableDeviceWithANE
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLFlagOnlyAllowStaticInputShape
	}
	if o.CreateMLProgram {
		flags |= coreMLFlagCreateMLProgram
	}
	return flags
}
