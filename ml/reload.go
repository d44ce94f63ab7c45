package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadableModel holds the current model and swaps it when the artifact
// on disk changes. A failed reload keeps the previous model.
type ReloadableModel struct {
	cfg      ModelConfig
	logger   *zap.Logger
	load     func(context.Context, ModelConfig) (Model, error)
	debounce time.Duration

	mu      sync.RWMutex
	current Model

	hooksMu sync.Mutex
	hooks   []func(error)

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewReloadableModel(ctx context.Context, cfg ModelConfig, logger *zap.Logger) (*ReloadableModel, error) {
	return newReloadableModel(ctx, cfg, logger, LoadModel)
}

func newReloadableModel(ctx context.Context, cfg ModelConfig, logger *zap.Logger,
	load func(context.Context, ModelConfig) (Model, error)) (*ReloadableModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	model, err := load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ReloadableModel{
		cfg:      cfg,
		logger:   logger,
		load:     load,
		debounce: 200 * time.Millisecond,
		current:  model,
	}, nil
}

// Predict holds the read lock for the whole call so a reload never
// closes a model that is still running.
func (r *ReloadableModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, ErrNoModel
	}
	return r.current.Predict(ctx, rows)
}

func (r *ReloadableModel) Type() string {
	return r.cfg.Type
}

// OnReload registers fn to run after every reload attempt.
func (r *ReloadableModel) OnReload(fn func(err error)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload loads the artifact again and swaps it in on success.
func (r *ReloadableModel) Reload(ctx context.Context) error {
	model, err := r.load(ctx, r.cfg)
	if err != nil {
		r.logger.Error("model reload failed, keeping previous model",
			zap.String("type", r.cfg.Type),
			zap.String("path", r.cfg.Path),
			zap.Error(err))
		r.runHooks(err)
		return err
	}

	r.mu.Lock()
	old := r.current
	r.current = model
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Warn("failed to close previous model", zap.Error(err))
		}
	}
	r.logger.Info("model reloaded", zap.String("type", r.cfg.Type), zap.String("path", r.cfg.Path))
	r.runHooks(nil)
	return nil
}

func (r *ReloadableModel) runHooks(err error) {
	r.hooksMu.Lock()
	hooks := append([]func(error){}, r.hooks...)
	r.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

// Watch starts reloading on artifact changes. Models without files on
// disk are not watched. The watcher stops with ctx or Close.
func (r *ReloadableModel) Watch(ctx context.Context) error {
	paths := r.cfg.ArtifactPaths()
	if len(paths) == 0 {
		return nil
	}
	if r.watcher != nil {
		return fmt.Errorf("model watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch directories, not files, so atomic rename-into-place is seen.
	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			fsw.Close()
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	r.watcher = fsw
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.processEvents(ctx, targets)

	r.logger.Info("watching model artifact", zap.Strings("paths", paths))
	return nil
}

func (r *ReloadableModel) processEvents(ctx context.Context, targets map[string]bool) {
	defer r.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.logger.Debug("model artifact changed", zap.String("path", abs), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("model watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			_ = r.Reload(ctx)
		}
	}
}

func (r *ReloadableModel) Close() error {
	if r.watcher != nil {
		close(r.stop)
		r.watcher.Close()
		r.wg.Wait()
		r.watcher = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}
