package providers

const (
	// DirectMLProviderBackend uses DirectML on Windows GPUs.
	DirectMLProviderBackend ProviderBackend = "directml"
)

// DirectMLOptions contains arguments for the DirectML provider.
type DirectMLOptions struct {
	// The adapter index.
	DeviceID int `json:"device_id" yaml:"device_id"`
}

func (DirectMLOptions) isProviderOptions() {}

// Backend returns DirectMLProviderBackend.
func (DirectMLOptions) Backend() ProviderBackend {
	return DirectMLProviderBackend
}
