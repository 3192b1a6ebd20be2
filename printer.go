package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/nvr-ai/go-ripeness/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// printer writes detector results for the frame being processed and signals completion.
type printer struct {
	w      io.Writer
	logger *zap.Logger

	mu      sync.Mutex
	current string

	processed chan struct{}
	restarted chan error
}

var (
	_ detector.Listener        = (*printer)(nil)
	_ detector.CountsListener  = (*printer)(nil)
	_ detector.RestartListener = (*printer)(nil)
	_ detector.ErrorReporter   = (*printer)(nil)
)

func newPrinter(w io.Writer, logger *zap.Logger) *printer {
	return &printer{
		w:         w,
		logger:    logger,
		processed: make(chan struct{}, 1),
		restarted: make(chan error, 1),
	}
}

func (p *printer) begin(path string) {
	p.mu.Lock()
	p.current = path
	p.mu.Unlock()
}

func (p *printer) frame() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *printer) OnDetect(set postprocess.DetectionSet, inferenceTimeMillis int64) {
	fmt.Fprintf(p.w, "%s: %d detections in %dms\n", p.frame(), len(set), inferenceTimeMillis)
	for _, d := range set {
		fmt.Fprintf(p.w, "  %s\n", d)
	}
}

func (p *printer) OnEmptyDetect() {
	fmt.Fprintf(p.w, "%s: no fruits detected\n", p.frame())
}

func (p *printer) OnCounts(_, _ detector.LabelCounts) {
	notify(p.processed, struct{}{})
}

func (p *printer) OnRestart(backend providers.Config) {
	p.logger.Info("backend switched", zap.Stringer("backend", backend))
	notify(p.restarted, nil)
}

func (p *printer) OnError(err error) {
	var (
		ie *inference.InferenceError
		re *detector.RestartError
	)
	switch {
	case errors.As(err, &ie):
		p.logger.Warn("frame failed", zap.String("frame", p.frame()), zap.Error(err))
		notify(p.processed, struct{}{})
	case errors.As(err, &re):
		notify(p.restarted, err)
	default:
		p.logger.Error("detector error", zap.Error(err))
	}
}

// waitRestart blocks until the queued restart finished.
func (p *printer) waitRestart(ctx context.Context) error {
	select {
	case err := <-p.restarted:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
