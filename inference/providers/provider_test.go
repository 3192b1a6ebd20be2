package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseBackend(t *testing.T) {
	for _, name := range []string{"cpu", "CUDA", " coreml ", "openvino", "directml"} {
		_, err := ParseBackend(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseBackend("tpu")
	assert.Error(t, err)
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig("openvino")
	require.NoError(t, err)
	assert.Equal(t, OpenVINOProviderBackend, cfg.Backend)
	assert.Equal(t, OpenVINOOptions{DeviceType: "CPU"}, cfg.Options)

	cfg = DefaultConfig()
	assert.Equal(t, CPUProviderBackend, cfg.Backend)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "cpu", cfg.String())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty backend", cfg: Config{}, wantErr: true},
		{name: "unknown backend", cfg: Config{Backend: "tpu"}, wantErr: true},
		{name: "mismatched options", cfg: Config{Backend: CUDAProviderBackend, Options: CoreMLOptions{}}, wantErr: true},
		{name: "negative threads", cfg: Config{Backend: CPUProviderBackend, IntraOpThreads: -1}, wantErr: true},
		{name: "nil options", cfg: Config{Backend: CUDAProviderBackend}},
		{name: "matching options", cfg: Config{Backend: CUDAProviderBackend, Options: CUDAOptions{DeviceID: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	t.Run("scalar shorthand", func(t *testing.T) {
		var doc struct {
			Backend Config `yaml:"backend"`
		}
		require.NoError(t, yaml.Unmarshal([]byte("backend: coreml\n"), &doc))
		assert.Equal(t, CoreMLProviderBackend, doc.Backend.Backend)
		assert.Equal(t, CoreMLOptions{}, doc.Backend.Options)
	})

	t.Run("long form", func(t *testing.T) {
		var doc struct {
			Backend Config `yaml:"backend"`
		}
		src := `
backend:
  type: cuda
  intra_op_threads: 2
  options:
    device_id: 1
    gpu_mem_limit: 2147483648
    cudnn_conv_algo_search: HEURISTIC
`
		require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
		assert.Equal(t, CUDAProviderBackend, doc.Backend.Backend)
		assert.Equal(t, 2, doc.Backend.IntraOpThreads)
		assert.Equal(t, CUDAOptions{
			DeviceID:            1,
			GPUMemLimit:         2147483648,
			CudnnConvAlgoSearch: "HEURISTIC",
		}, doc.Backend.Options)
	})

	t.Run("openvino keeps default device", func(t *testing.T) {
		var cfg Config
		require.NoError(t, yaml.Unmarshal([]byte("type: openvino\noptions:\n  precision: FP16\n"), &cfg))
		assert.Equal(t, OpenVINOOptions{DeviceType: "CPU", Precision: "FP16"}, cfg.Options)
	})

	t.Run("unknown backend", func(t *testing.T) {
		var cfg Config
		assert.Error(t, yaml.Unmarshal([]byte("type: tpu\n"), &cfg))
	})

	t.Run("round trip", func(t *testing.T) {
		in := Config{Backend: DirectMLProviderBackend, Options: DirectMLOptions{DeviceID: 2}, InterOpThreads: 1}
		data, err := yaml.Marshal(in)
		require.NoError(t, err)

		var out Config
		require.NoError(t, yaml.Unmarshal(data, &out))
		assert.Equal(t, in, out)
	})
}

func TestProviderOptionMaps(t *testing.T) {
	cuda := CUDAOptions{DeviceID: 1, UseTF32: true}.ProviderOptionsMap()
	assert.Equal(t, "1", cuda["device_id"])
	assert.Equal(t, "1", cuda["use_tf32"])
	assert.NotContains(t, cuda, "gpu_mem_limit")

	ov := OpenVINOOptions{DeviceType: "GPU", NumOfThreads: 4}.ProviderOptionsMap()
	assert.Equal(t, map[string]string{"device_type": "GPU", "num_of_threads": "4"}, ov)

	assert.Equal(t, uint32(0x001|0x010), CoreMLOptions{UseCPUOnly: true, CreateMLProgram: true}.Flags())
}
