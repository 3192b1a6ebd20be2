// Package providers - CPU based execution provider.
package providers

// CPUOptions configures the default CPU provider. It has no tunables beyond the session threads.
type CPUOptions struct{}

func (CPUOptions) isProviderOptions() {}

// Backend returns CPUProviderBackend.
func (CPUOptions) Backend() ProviderBackend {
	return CPUProviderBackend
}
