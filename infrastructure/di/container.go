// Package di assembles the object graph for the service. Construction is
// manual and explicit; every dependency is created here, in order, and
// torn down in Close.
package di

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/application/services"
	"github.com/suibari/graph-be-more-blue/infrastructure/atproto"
	"github.com/suibari/graph-be-more-blue/infrastructure/config"
	"github.com/suibari/graph-be-more-blue/infrastructure/images"
	"github.com/suibari/graph-be-more-blue/infrastructure/plc"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
	"github.com/suibari/graph-be-more-blue/pkg/observability"
)

// Container holds the assembled application.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Registry     *prometheus.Registry
	Metrics      *observability.Metrics
	ErrorHandler *errors.ErrorHandler

	Session      *atproto.Session
	GraphService *services.GraphService

	fullCache      *services.SnapshotCache
	expansionCache *services.SnapshotCache
}

// InitializeContainer builds the full object graph from configuration.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	client := atproto.NewClient(cfg.Upstream.ServiceURL, cfg.Upstream.Timeout.Std(), logger)
	session := atproto.NewSession(client, cfg.Upstream.Identifier, cfg.Upstream.Password, logger)
	directory := plc.NewDirectory(cfg.Upstream.DirectoryURL, cfg.Upstream.Timeout.Std(), logger)

	records := atproto.NewRecordFetcher(client, session, directory, logger, metrics)
	profiles := atproto.NewProfileFetcher(client, session, logger, metrics)
	resolver := atproto.NewResolver(client, session)
	avatars := images.NewFetcher(cfg.Upstream.Timeout.Std(), logger)

	builder := services.NewGraphBuilder(records, profiles, avatars, cfg.Build.FanOutLimit, logger, metrics)

	fullCache := services.NewSnapshotCache(
		cfg.Cache.TTL.Std(), cfg.Cache.RefreshWorkers, cfg.Cache.RefreshQueue, logger, metrics)
	expansionCache := services.NewSnapshotCache(
		cfg.Cache.TTL.Std(), cfg.Cache.RefreshWorkers, cfg.Cache.RefreshQueue, logger, metrics)

	graphService := services.NewGraphService(session, resolver, builder, fullCache, expansionCache, logger)

	return &Container{
		Config:         cfg,
		Logger:         logger,
		Registry:       registry,
		Metrics:        metrics,
		ErrorHandler:   errors.NewErrorHandler(logger, cfg.IsDevelopment()),
		Session:        session,
		GraphService:   graphService,
		fullCache:      fullCache,
		expansionCache: expansionCache,
	}, nil
}

// ApplyConfig propagates hot-reloadable settings to running components.
func (c *Container) ApplyConfig(cfg *config.Config) {
	c.fullCache.SetTTL(cfg.Cache.TTL.Std())
	c.expansionCache.SetTTL(cfg.Cache.TTL.Std())
	c.Logger.Info("applied reloaded configuration")
}

// Close releases background resources.
func (c *Container) Close() {
	c.fullCache.Close()
	c.expansionCache.Close()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}
