package detector

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/nvr-ai/go-ripeness/models"
	"go.uber.org/zap"
)

type options struct {
	reporter     ErrorReporter
	logger       *zap.Logger
	clock        clock.Clock
	factory      inference.SessionFactory
	readMetadata func(libPath, modelPath string) (models.Metadata, error)
	reportEvery  time.Duration
}

// Option configures a Detector.
type Option func(*options)

// WithErrorReporter sets the receiver of non-fatal errors.
func WithErrorReporter(r ErrorReporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithLogger sets the logger. The default discards everything. Nil keeps the default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source used for timings and the empty-frame throttle.
// Nil keeps the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSessionFactory replaces the ONNX Runtime session factory.
func WithSessionFactory(f inference.SessionFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithStatusReports logs stage timings and counters every interval until Close.
// Zero, the default, disables the reports.
func WithStatusReports(interval time.Duration) Option {
	return func(o *options) {
		o.reportEvery = interval
	}
}

func withMetadataReader(fn func(libPath, modelPath string) (models.Metadata, error)) Option {
	return func(o *options) {
		o.readMetadata = fn
	}
}

func defaultOptions() options {
	return options{
		reporter:     ErrorReporterFunc(func(error) {}),
		logger:       zap.NewNop(),
		clock:        clock.New(),
		readMetadata: models.ReadMetadata,
	}
}
