package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubSession finds one apple per frame, or fails when its backend is marked broken.
type stubSession struct {
	broken bool
}

func (s *stubSession) Run(*inference.Tensor) (*inference.Tensor, error) {
	if s.broken {
		return nil, errors.New("device lost")
	}
	return &inference.Tensor{Shape: []int{1, 1, 6}, Data: []float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.1}}, nil
}

func (s *stubSession) InputShape() []int { return []int{1, 3, 32, 32} }

func (s *stubSession) Close() error { return nil }

func stubFactory(broken providers.ProviderBackend) inference.SessionFactory {
	return inference.SessionFactoryFunc(func(_ []byte, backend providers.Config) (inference.Session, error) {
		return &stubSession{broken: backend.Backend == broken}, nil
	})
}

func testConfig(t *testing.T) detector.Config {
	t.Helper()
	dir := t.TempDir()

	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o600))
	labelsPath := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(labelsPath, []byte("apple-ripe\napple-rotten\n"), 0o600))

	cfg := detector.DefaultConfig()
	cfg.ModelPath = modelPath
	cfg.LabelsPath = labelsPath
	cfg.InputSize = detector.Size{Width: 32, Height: 32}
	return cfg
}

func testFrames() []images.Frame {
	return []images.Frame{
		images.NewFrame(image.NewNRGBA(image.Rect(0, 0, 64, 48))),
		images.NewFrame(image.NewNRGBA(image.Rect(0, 0, 48, 64))),
	}
}

func TestScenarioBuilder(t *testing.T) {
	cuda, err := providers.NewConfig("cuda")
	require.NoError(t, err)

	scenario := NewScenarioBuilder("gpu").
		WithBackend(cuda).
		WithIterations(20).
		WithWarmupRuns(2).
		Build()

	assert.Equal(t, "gpu", scenario.Name)
	assert.Equal(t, providers.CUDAProviderBackend, scenario.Backend.Backend)
	assert.Equal(t, 20, scenario.Iterations)
	assert.Equal(t, 2, scenario.WarmupRuns)
	assert.NoError(t, scenario.Validate())

	defaults := NewScenarioBuilder("cpu").Build()
	assert.Equal(t, providers.CPUProviderBackend, defaults.Backend.Backend)
	assert.Equal(t, 100, defaults.Iterations)
	assert.Equal(t, 10, defaults.WarmupRuns)
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name     string
		scenario Scenario
	}{
		{"missing name", NewScenarioBuilder("").Build()},
		{"no iterations", NewScenarioBuilder("x").WithIterations(0).Build()},
		{"negative warmup", NewScenarioBuilder("x").WithWarmupRuns(-1).Build()},
		{"bad backend", NewScenarioBuilder("x").WithBackend(providers.Config{Backend: "tpu"}).Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.scenario.Validate())
		})
	}
}

func TestBackendScenarios(t *testing.T) {
	scenarios, err := BackendScenarios([]string{"cpu", "cuda"}, 5, 1)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "cpu", scenarios[0].Name)
	assert.Equal(t, providers.CUDAProviderBackend, scenarios[1].Backend.Backend)
	assert.Equal(t, 5, scenarios[1].Iterations)

	_, err = BackendScenarios([]string{"abacus"}, 5, 1)
	assert.Error(t, err)
}

func TestSuite_RunSwitchesBackends(t *testing.T) {
	suite := NewSuite(testConfig(t), t.TempDir(), zaptest.NewLogger(t),
		detector.WithSessionFactory(stubFactory(providers.CUDAProviderBackend)))
	suite.SetFrames(testFrames())

	scenarios, err := BackendScenarios([]string{"cpu", "cuda"}, 4, 1)
	require.NoError(t, err)
	for _, s := range scenarios {
		require.NoError(t, suite.AddScenario(s))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := suite.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	cpu, cuda := results[0], results[1]
	assert.Equal(t, 4, cpu.Frames)
	assert.Equal(t, 4, cpu.DetectionCount)
	assert.Zero(t, cpu.ErrorRate)
	assert.Greater(t, cpu.FramesPerSecond, 0.0)
	assert.Equal(t, providers.CUDAProviderBackend, cuda.Scenario.Backend.Backend)
	assert.Zero(t, cuda.DetectionCount)
	assert.InDelta(t, 1.0, cuda.ErrorRate, 1e-9)
	assert.Equal(t, results, suite.Results())
}

func TestSuite_RunRequiresFramesAndScenarios(t *testing.T) {
	suite := NewSuite(testConfig(t), t.TempDir(), nil,
		detector.WithSessionFactory(stubFactory("")))

	_, err := suite.Run(context.Background())
	assert.ErrorContains(t, err, "no frames")

	suite.SetFrames(testFrames())
	_, err = suite.Run(context.Background())
	assert.ErrorContains(t, err, "no scenarios")

	assert.Error(t, suite.AddScenario(NewScenarioBuilder("x").WithIterations(0).Build()))
}

func TestSuite_FailedRestartStopsRun(t *testing.T) {
	failing := inference.SessionFactoryFunc(func(_ []byte, backend providers.Config) (inference.Session, error) {
		if backend.Backend == providers.CUDAProviderBackend {
			return nil, errors.New("provider unavailable")
		}
		return &stubSession{}, nil
	})
	suite := NewSuite(testConfig(t), t.TempDir(), zaptest.NewLogger(t), detector.WithSessionFactory(failing))
	suite.SetFrames(testFrames())

	scenarios, err := BackendScenarios([]string{"cpu", "cuda", "cpu"}, 2, 0)
	require.NoError(t, err)
	for _, s := range scenarios {
		require.NoError(t, suite.AddScenario(s))
	}

	results, err := suite.Run(context.Background())
	require.Error(t, err)
	var re *detector.RestartError
	assert.ErrorAs(t, err, &re)
	assert.Len(t, results, 1)
}

func TestSuite_LoadCorpusAndSaveResults(t *testing.T) {
	corpus := t.TempDir()
	for _, name := range []string{"frame_2.png", "frame_1.png"} {
		img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
		img.Set(1, 1, color.NRGBA{R: 255, A: 255})
		f, err := os.Create(filepath.Join(corpus, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}

	out := filepath.Join(t.TempDir(), "results")
	suite := NewSuite(testConfig(t), out, zaptest.NewLogger(t),
		detector.WithSessionFactory(stubFactory("")))
	require.NoError(t, suite.LoadCorpus(corpus))
	require.NoError(t, suite.AddScenario(NewScenarioBuilder("cpu").WithIterations(3).WithWarmupRuns(0).Build()))

	_, err := suite.Run(context.Background())
	require.NoError(t, err)

	jsonPath, csvPath, err := suite.SaveResults()
	require.NoError(t, err)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var saved []map[string]any
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Len(t, saved, 1)
	assert.EqualValues(t, 3, saved[0]["detection_count"])

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "scenario", rows[0][0])
	assert.Equal(t, "cpu", rows[1][0])
	assert.Equal(t, "3", rows[1][8])

	assert.Error(t, suite.LoadCorpus(t.TempDir()))
}
