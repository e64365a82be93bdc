package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/data"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/observability/prom"
	"github.com/target/domain-enricher/internal/observability/statsd"
	"github.com/target/domain-enricher/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Reports       *service.ReportService
	WorkerID      string
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	Prometheus    *prom.Sink
	MetricsConfig config.ObservabilityMetricsConfig
	PromConfig    config.PrometheusConfig
}

// Sink returns the combined metrics sink, or nil when every backend is disabled.
//
//nolint:ireturn // a nil interface keeps callers' nil checks working.
func (o ObservabilityContainer) Sink() statsd.Sink {
	var sinks []statsd.Sink
	if o.MetricsSink != nil {
		sinks = append(sinks, o.MetricsSink)
	}
	if o.Prometheus != nil {
		sinks = append(sinks, o.Prometheus)
	}
	return statsd.Multi(sinks...)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics adapter.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	var promSink *prom.Sink
	if cfg.Prometheus.Enabled {
		promSink = prom.NewSink(prom.Options{Namespace: cfg.Prometheus.Namespace, Logger: obsLogger})
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		Prometheus:    promSink,
		MetricsConfig: cfg.Metrics,
		PromConfig:    cfg.Prometheus,
	}
}

// resolveWorkerID returns the configured WORKER_ID or host:pid:instance.
func resolveWorkerID(cfg *config.AppConfig) string {
	if cfg != nil && cfg.Worker.ID != "" {
		return cfg.Worker.ID
	}
	return model.NewWorkerIdentity().String()
}

// NewServices wires the read side and shared observability.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
	}

	reports, err := service.NewReportService(service.ReportServiceOptions{
		Repo:   data.NewReportRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create report service: %w", err)
	}

	return ServiceContainer{
		Reports:       reports,
		WorkerID:      resolveWorkerID(deps.Config),
		Observability: buildObservability(logger, obsCfg),
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeAPI] {
		return nil, nil
	}
	return StartHTTPServer(deps.ctx, &HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}

	return handles
}

func (deps *serviceStartupDeps) enricherDeps() EnricherDeps {
	ed := EnricherDeps{RedisClient: deps.cfg.RedisClient, Logger: deps.logger}
	if deps.cfg.Config != nil {
		ed.Config = deps.cfg.Config.Enrichers
		ed.Cache = deps.cfg.Config.Cache
	}
	return ed
}

func newDispatcherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModePrimary,
		name: "primary dispatcher",
		start: func(ctx context.Context) error {
			enricher, err := BuildEnricher(model.StagePrimary, deps.enricherDeps())
			if err != nil {
				return err
			}
			var dispatcherCfg config.DispatcherConfig
			if deps.cfg.Config != nil {
				dispatcherCfg = deps.cfg.Config.Dispatcher
			}
			return RunDispatcher(ctx, DispatcherRunConfig{
				DB:       deps.cfg.DB,
				Enricher: enricher,
				WorkerID: deps.cfg.Services.WorkerID,
				Config:   dispatcherCfg,
				Logger:   deps.logger,
				Metrics:  deps.cfg.Services.Observability.Sink(),
			})
		},
	}
}

func newCollectorBackgroundService(deps *serviceStartupDeps, mode config.ServiceMode, stage model.Stage) backgroundService {
	return backgroundService{
		mode: mode,
		name: stage.String() + " collector",
		start: func(ctx context.Context) error {
			enricher, err := BuildEnricher(stage, deps.enricherDeps())
			if err != nil {
				return err
			}
			return RunCollector(ctx, CollectorRunConfig{
				DB:       deps.cfg.DB,
				Enricher: enricher,
				WorkerID: deps.cfg.Services.WorkerID,
				Config:   collectorConfig(deps.cfg.Config, stage),
				Logger:   deps.logger,
				Metrics:  deps.cfg.Services.Observability.Sink(),
			})
		},
	}
}

func collectorConfig(cfg *config.AppConfig, stage model.Stage) config.CollectorConfig {
	if cfg == nil {
		return config.CollectorConfig{}
	}
	switch stage {
	case model.StageCertificates:
		return cfg.Certificates
	case model.StageLinks:
		return cfg.Links
	case model.StageCompany:
		return cfg.Company
	}
	return config.CollectorConfig{}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperRunConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Observability.Sink(),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil {
		return nil
	}
	return []backgroundService{
		newDispatcherBackgroundService(deps),
		newCollectorBackgroundService(deps, config.ServiceModeCertificates, model.StageCertificates),
		newCollectorBackgroundService(deps, config.ServiceModeLinks, model.StageLinks),
		newCollectorBackgroundService(deps, config.ServiceModeCompany, model.StageCompany),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	httpServer, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		quit:        quit,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	quit        <-chan os.Signal
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
	waitTimeout time.Duration
}

// waitForShutdown waits for a shutdown signal or service error.
// Loops stop between units; an interrupted unit keeps its claim until the reaper returns it.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case sig := <-cfg.quit:
		cfg.logger.Info("shutting down services...", "signal", sig.String())
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	timeout := cfg.waitTimeout
	if timeout <= 0 {
		timeout = shutdownWaitTimeout
	}

	var httpErr error
	if cfg.httpServer != nil {
		httpErr = ShutdownHTTPServer(ShutdownConfig{
			Server:  cfg.httpServer,
			Timeout: timeout,
			Logger:  cfg.logger,
		})
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger, timeout)
	}

	return httpErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger, timeout time.Duration) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(timeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
