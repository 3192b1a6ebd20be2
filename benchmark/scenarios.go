package benchmark

import (
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
)

// Scenario is one benchmark run against a single execution provider.
type Scenario struct {
	Name       string           `json:"name"`
	Backend    providers.Config `json:"backend"`
	Iterations int              `json:"iterations"`
	WarmupRuns int              `json:"warmup_runs"`
}

// Validate checks that the scenario can be run.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name is required")
	}
	if s.Iterations <= 0 {
		return errors.Errorf("scenario %s: iterations must be positive, got %d", s.Name, s.Iterations)
	}
	if s.WarmupRuns < 0 {
		return errors.Errorf("scenario %s: warmup runs must not be negative, got %d", s.Name, s.WarmupRuns)
	}
	return errors.Wrapf(s.Backend.Validate(), "scenario %s", s.Name)
}

// ScenarioBuilder helps construct benchmark scenarios
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder for a CPU scenario with 100 iterations and 10 warmup runs.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Backend:    providers.DefaultConfig(),
			Iterations: 100,
			WarmupRuns: 10,
		},
	}
}

// WithBackend sets the execution provider.
func (sb *ScenarioBuilder) WithBackend(backend providers.Config) *ScenarioBuilder {
	sb.scenario.Backend = backend
	return sb
}

// WithIterations sets the number of measured frames.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of unmeasured frames run first.
func (sb *ScenarioBuilder) WithWarmupRuns(warmup int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmup
	return sb
}

// Build returns the constructed scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// BackendScenarios returns one scenario per named backend, in order.
func BackendScenarios(names []string, iterations, warmup int) ([]Scenario, error) {
	scenarios := make([]Scenario, 0, len(names))
	for _, name := range names {
		backend, err := providers.NewConfig(name)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, NewScenarioBuilder(string(backend.Backend)).
			WithBackend(backend).
			WithIterations(iterations).
			WithWarmupRuns(warmup).
			Build())
	}
	return scenarios, nil
}
