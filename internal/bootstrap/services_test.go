package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "api only", modes: []config.ServiceMode{config.ServiceModeAPI}, want: 1},
		{
			name:  "collectors",
			modes: []config.ServiceMode{config.ServiceModeCertificates, config.ServiceModeLinks, config.ServiceModeCompany},
			want:  3,
		},
		{name: "all services enabled", modes: config.ValidServiceModes(), want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}
			assert.Equal(t, tt.want, errorChannelCapacity(enabled))
			assert.Equal(t, tt.want+1, errorChannelBufferSize(enabled))
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "api, company,primary,reaper"}
	assert.Equal(t, []string{"primary-dispatcher", "company-collector", "reaper", "http-api"}, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "rules-engine"}))
	assert.Empty(t, GetEnabledServices(nil))

	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.NoError(t, ValidateServiceConfig(cfg))
}

func TestCollectorConfigPerStage(t *testing.T) {
	cfg := &config.AppConfig{
		Certificates: config.CollectorConfig{Timeout: time.Minute},
		Links:        config.CollectorConfig{Timeout: 2 * time.Minute},
		Company:      config.CollectorConfig{Timeout: 3 * time.Minute},
	}
	assert.Equal(t, time.Minute, collectorConfig(cfg, model.StageCertificates).Timeout)
	assert.Equal(t, 2*time.Minute, collectorConfig(cfg, model.StageLinks).Timeout)
	assert.Equal(t, 3*time.Minute, collectorConfig(cfg, model.StageCompany).Timeout)
	assert.Zero(t, collectorConfig(nil, model.StageLinks))
}

func TestResolveWorkerID(t *testing.T) {
	assert.Equal(t, "enricher-7", resolveWorkerID(&config.AppConfig{Worker: config.WorkerConfig{ID: "enricher-7"}}))
	host, _ := os.Hostname()
	generated := resolveWorkerID(nil)
	assert.NotEmpty(t, generated)
	if host != "" {
		assert.Contains(t, generated, host)
	}
}

func TestBuildEnricher(t *testing.T) {
	var enrichers config.EnrichersConfig
	enrichers.DNS.Sanitize()
	enrichers.Registry = config.RegistryConfig{BaseURL: "https://registry.example.test", ResultsExpr: "data", NIFExpr: "nif"}

	for _, stage := range model.AllStages() {
		e, err := BuildEnricher(stage, EnricherDeps{Config: enrichers, Logger: discardLogger()})
		require.NoError(t, err, stage)
		assert.Equal(t, stage, e.Stage())
	}

	_, err := BuildEnricher("bogus", EnricherDeps{})
	assert.ErrorIs(t, err, model.ErrInvalidStage)

	enrichers.Registry.NameExpr = "denominacion[?"
	_, err = BuildEnricher(model.StageCompany, EnricherDeps{Config: enrichers})
	assert.Error(t, err)
}

func TestLaunchBackground_ForwardsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 2)
	deps := &serviceStartupDeps{
		ctx:             ctx,
		logger:          discardLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeLinks: true},
		errCh:           errCh,
	}

	done := launchBackground(ctx, deps, backgroundService{
		mode:  config.ServiceModeLinks,
		name:  "links collector",
		start: func(context.Context) error { return errors.New("store unreachable") },
	})
	require.NotNil(t, done)
	<-done
	err := <-errCh
	assert.ErrorContains(t, err, "links collector failed: store unreachable")

	skipped := launchBackground(ctx, deps, backgroundService{
		mode:  config.ServiceModeCompany,
		name:  "company collector",
		start: func(context.Context) error { t.Fatal("disabled service started"); return nil },
	})
	assert.Nil(t, skipped)
}

func TestWaitForShutdown(t *testing.T) {
	t.Run("signal cancels and waits", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(done)
		}()

		quit := make(chan os.Signal, 1)
		quit <- syscall.SIGTERM
		err := waitForShutdown(shutdownConfig{
			quit:        quit,
			cancel:      cancel,
			errCh:       make(chan error),
			logger:      discardLogger(),
			backgrounds: []backgroundServiceHandle{{mode: config.ServiceModePrimary, name: "primary dispatcher", done: done}},
			waitTimeout: time.Second,
		})
		require.NoError(t, err)
		assert.Error(t, ctx.Err())
	})

	t.Run("service error is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		errCh <- errors.New("reaper failed: boom")
		stuck := make(chan struct{})

		err := waitForShutdown(shutdownConfig{
			quit:        make(chan os.Signal),
			cancel:      cancel,
			errCh:       errCh,
			logger:      discardLogger(),
			backgrounds: []backgroundServiceHandle{{mode: config.ServiceModeReaper, name: "reaper", done: stuck}},
			waitTimeout: 10 * time.Millisecond,
		})
		assert.ErrorContains(t, err, "boom")
		assert.Error(t, ctx.Err())
	})
}

func TestObservabilitySink(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ObservabilityContainer{}.Sink(), "no backends means no sink")

	obs := buildObservability(discardLogger(), config.ObservabilityConfig{
		Prometheus: config.PrometheusConfig{Enabled: true, Namespace: "enricher", Path: "/metrics"},
	})
	require.NotNil(t, obs.Prometheus)
	assert.Nil(t, obs.MetricsSink)
	assert.Same(t, obs.Prometheus, obs.Sink())
}

func TestNewServer_UsesConfiguredTimeouts(t *testing.T) {
	cfg := config.HTTPConfig{WriteTimeout: 45 * time.Second}
	cfg.Sanitize()

	srv := newServer(cfg, nil)
	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, 45*time.Second, srv.WriteTimeout)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 2*time.Minute, srv.IdleTimeout)
}
