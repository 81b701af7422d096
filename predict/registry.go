// Package predict serves risk predictions from the persisted pipeline.
package predict

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"heartrisk/ml"
	"heartrisk/monitoring"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Model is an immutable snapshot of the loaded artifacts.
type Model struct {
	Pipeline *ml.Pipeline
	Metadata *ml.Metadata
	LoadedAt time.Time
}

// Version reports the metadata version, falling back to the build default.
func (m *Model) Version() string {
	if m.Metadata != nil && m.Metadata.Version != "" {
		return m.Metadata.Version
	}
	return ml.ModelVersion
}

// Registry holds the process-wide model handle. Readers get a snapshot;
// Reload swaps it in one step.
type Registry struct {
	modelPath    string
	metadataPath string
	logger       *zap.Logger

	mu       sync.RWMutex
	current  *Model
	onReload []func(*Model)
}

func NewRegistry(modelPath, metadataPath string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		modelPath:    modelPath,
		metadataPath: metadataPath,
		logger:       logger,
	}
}

func (r *Registry) ModelPath() string {
	return r.modelPath
}

// Current returns the loaded model or nil.
func (r *Registry) Current() *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers fn to run after every successful reload.
func (r *Registry) OnReload(fn func(*Model)) {
	r.mu.Lock()
	r.onReload = append(r.onReload, fn)
	r.mu.Unlock()
}

// Reload reads the pipeline and metadata from disk. On failure the previous
// model stays in place. A missing metadata file is tolerated.
func (r *Registry) Reload() (err error) {
	defer func() { monitoring.ModelReloads.WithLabelValues(monitoring.Outcome(err)).Inc() }()

	pipeline, err := ml.LoadPipeline(r.modelPath)
	if err != nil {
		return fmt.Errorf("load model %s: %w", r.modelPath, err)
	}
	var metadata *ml.Metadata
	if r.metadataPath != "" {
		metadata, err = ml.LoadMetadata(r.metadataPath)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			r.logger.Warn("model metadata missing", zap.String("path", r.metadataPath))
			err = nil
		default:
			return fmt.Errorf("load metadata %s: %w", r.metadataPath, err)
		}
	}

	model := &Model{Pipeline: pipeline, Metadata: metadata, LoadedAt: time.Now()}
	r.mu.Lock()
	r.current = model
	hooks := append([]func(*Model){}, r.onReload...)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(model)
	}
	r.logger.Info("model loaded",
		zap.String("path", r.modelPath),
		zap.String("version", model.Version()),
		zap.Int("trees", len(pipeline.Forest.Trees)))
	return nil
}

// Watch reloads the model whenever its files change in place, until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(r.modelPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	watched := map[string]bool{
		filepath.Base(r.modelPath): true,
	}
	if r.metadataPath != "" && filepath.Dir(r.metadataPath) == dir {
		watched[filepath.Base(r.metadataPath)] = true
	}

	// Training writes both files back to back; settle before reloading.
	const settle = 250 * time.Millisecond
	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("model watcher error", zap.Error(err))
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.logger.Error("model reload failed", zap.Error(err))
			}
		}
	}
}
