package providers

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawConfig mirrors Config with the options left undecoded until the backend is known.
type rawConfig struct {
	Backend        string    `yaml:"type"`
	Options        yaml.Node `yaml:"options"`
	IntraOpThreads int       `yaml:"intra_op_threads"`
	InterOpThreads int       `yaml:"inter_op_threads"`
}

// UnmarshalYAML decodes a backend section, picking the options type from the backend name.
//
// A bare scalar is accepted as shorthand for a backend with default options:
//
//	backend: cuda
//
// The long form carries provider options:
//
//	backend:
//	  type: openvino
//	  options:
//	    device_type: GPU
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cfg, err := NewConfig(value.Value)
		if err != nil {
			return err
		}
		*c = cfg
		return nil
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Backend == "" {
		raw.Backend = string(CPUProviderBackend)
	}

	backend, err := ParseBackend(raw.Backend)
	if err != nil {
		return err
	}

	opts, err := decodeOptions(backend, &raw.Options)
	if err != nil {
		return fmt.Errorf("backend %s: %w", backend, err)
	}

	cfg := Config{
		Backend:        backend,
		Options:        opts,
		IntraOpThreads: raw.IntraOpThreads,
		InterOpThreads: raw.InterOpThreads,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	*c = cfg
	return nil
}

// MarshalYAML encodes the long form accepted by UnmarshalYAML.
func (c Config) MarshalYAML() (interface{}, error) {
	out := map[string]interface{}{
		"type": string(c.Backend),
	}
	if c.Options != nil {
		out["options"] = c.Options
	}
	if c.IntraOpThreads != 0 {
		out["intra_op_threads"] = c.IntraOpThreads
	}
	if c.InterOpThreads != 0 {
		out["inter_op_threads"] = c.InterOpThreads
	}
	return out, nil
}

func decodeOptions(backend ProviderBackend, node *yaml.Node) (ProviderOptions, error) {
	empty := node.Kind == 0

	switch backend {
	case CUDAProviderBackend:
		var o CUDAOptions
		if !empty {
			if err := node.Decode(&o); err != nil {
				return nil, err
			}
		}
		return o, nil
	case CoreMLProviderBackend:
		var o CoreMLOptions
		if !empty {
			if err := node.Decode(&o); err != nil {
				return nil, err
			}
		}
		return o, nil
	case OpenVINOProviderBackend:
		o := OpenVINOOptions{DeviceType: "CPU"}
		if !empty {
			if err := node.Decode(&o); err != nil {
				return nil, err
			}
		}
		return o, nil
	case DirectMLProviderBackend:
		var o DirectMLOptions
		if !empty {
			if err := node.Decode(&o); err != nil {
				return nil, err
			}
		}
		return o, nil
	default:
		return CPUOptions{}, nil
	}
}
