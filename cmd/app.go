package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"penguinoracle/config"
	"penguinoracle/db"
	qhttp "penguinoracle/http"
	"penguinoracle/ml"
	"penguinoracle/monitoring"
)

// app owns every long-lived resource of the server.
type app struct {
	model   *ml.ReloadableModel
	cached  *ml.CachedModel
	store   *db.Store
	hub     *monitoring.Hub
	metrics *monitoring.Metrics
	server  *qhttp.Server
	logger  *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{logger: logger, metrics: monitoring.NewMetrics()}

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.store = store
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	modelCfg := cfg.Model.ML()
	model, err := ml.NewReloadableModel(ctx, modelCfg, logger)
	a.recordModelEvent(ctx, modelCfg, err)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.model = model
	logger.Info("model loaded", zap.String("type", modelCfg.Type), zap.String("path", modelCfg.Path))

	var serving ml.Model = model
	if cfg.Model.CacheSize > 0 {
		cached, err := ml.NewCachedModel(model, cfg.Model.CacheSize)
		if err != nil {
			a.Close()
			return nil, err
		}
		cached.SetObserver(a.metrics)
		a.cached = cached
		serving = cached
	}

	a.hub = monitoring.NewHub(logger)
	go a.hub.Run()

	model.OnReload(func(err error) {
		if err == nil && a.cached != nil {
			a.cached.Purge()
		}
		a.metrics.ObserveReload(err)
		a.recordModelEvent(context.Background(), modelCfg, err)
		event := map[string]interface{}{"type": modelCfg.Type, "ok": err == nil}
		if err != nil {
			event["error"] = err.Error()
		}
		if err := a.hub.Publish(monitoring.ModelReload, event); err != nil {
			logger.Warn("failed to publish reload event", zap.Error(err))
		}
	})

	if cfg.Model.Watch {
		if err := model.Watch(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("watch model artifact: %w", err)
		}
	}

	service := qhttp.NewService(qhttp.ServiceConfig{
		Model:     serving,
		ModelType: modelCfg.Type,
		Store:     a.store,
		Hub:       a.hub,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	a.server = qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, service, logger)

	return a, nil
}

func (a *app) recordModelEvent(ctx context.Context, cfg ml.ModelConfig, loadErr error) {
	if a.store == nil {
		return
	}
	ev := db.ModelEvent{ModelType: cfg.Type, Path: cfg.Path, OK: loadErr == nil}
	if cfg.Type == ml.ModelTypeRemote {
		ev.Path = cfg.Endpoint
	}
	if loadErr != nil {
		ev.Error = loadErr.Error()
	}
	if err := a.store.SaveModelEvent(ctx, ev); err != nil {
		a.logger.Warn("failed to record model event", zap.Error(err))
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.model != nil {
		errs = append(errs, a.model.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
