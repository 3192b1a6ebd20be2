package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// configDebounce absorbs the burst of events editors emit for a single save.
const configDebounce = 300 * time.Millisecond

// watchConfig calls onChange with the new configuration each time the file at path changes
// to a different backend. It returns when ctx is done.
//
// The directory is watched rather than the file so that editors replacing the file on save
// are still seen.
func watchConfig(ctx context.Context, path string, logger *zap.Logger, onChange func(detector.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "error creating config watcher")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "error watching %s", abs)
	}

	current, err := readBackend(abs)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	reload := func() {
		mu.Lock()
		defer mu.Unlock()

		next, err := readBackend(abs)
		if err != nil {
			logger.Warn("ignoring config change", zap.String("path", abs), zap.Error(err))
			return
		}
		if reflect.DeepEqual(next.Backend, current.Backend) {
			logger.Debug("config changed, backend unchanged", zap.Stringer("backend", next.Backend))
			return
		}
		logger.Info("config changed", zap.Stringer("from", current.Backend), zap.Stringer("to", next.Backend))
		current = next
		onChange(next)
	}
	debounced := debounce.New(configDebounce)

	logger.Info("watching config", zap.String("path", abs))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounced(reload)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func readBackend(path string) (detector.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return detector.Config{}, errors.Wrap(err, "error reading config")
	}
	cfg, err := detector.ParseConfig(data)
	if err != nil {
		return detector.Config{}, err
	}
	if err := cfg.Backend.Validate(); err != nil {
		return detector.Config{}, errors.Wrap(err, "invalid backend")
	}
	return cfg, nil
}
