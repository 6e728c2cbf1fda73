package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/relay/pkg/checkpoint"
	"github.com/dukex/relay/pkg/credentials"
	"github.com/dukex/relay/pkg/engine"
	"github.com/dukex/relay/pkg/eventbus"
	"github.com/dukex/relay/pkg/metrics"
	"github.com/dukex/relay/pkg/notifier"
	"github.com/dukex/relay/pkg/otelhelper"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/registry"
	"github.com/dukex/relay/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
)

// Config carries what every relay process needs to build its Stack.
type Config struct {
	ServiceName      string
	DatabaseURL      string
	EventBus         string
	KafkaBrokers     string
	CredentialsKey   string
	FallbackKeys     []string
	ExecutionTimeout time.Duration
	NodeTimeout      time.Duration
	Tracing          bool

	// Registerer receives the engine collectors. Nil skips metrics.
	Registerer prometheus.Registerer
}

// Stack is the wired set of services shared by the relay commands.
type Stack struct {
	Persistence persistence.Persistence
	Credentials *credentials.Service
	Bus         eventbus.EventBus
	Registry    *registry.Registry
	Checkpoints *checkpoint.Manager
	Coordinator *engine.Coordinator
	Scenarios   *services.Scenario
	Executions  *services.Execution
	Dispatcher  *services.Dispatcher
	Metrics     *metrics.Metrics
}

func NewStack(ctx context.Context, logger *slog.Logger, cfg Config) (*Stack, error) {
	key := cfg.CredentialsKey
	if key == "" {
		generated, err := credentials.GenerateKey()
		if err != nil {
			return nil, err
		}

		logger.WarnContext(ctx, "No credentials key configured, using an ephemeral key; stored connection credentials will not decrypt")

		key = generated
	}

	creds, err := credentials.NewService(logger, key, cfg.FallbackKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials service: %w", err)
	}

	store, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence: %w", err)
	}

	bus, err := NewEventBus(cfg.EventBus, cfg.ServiceName, cfg.KafkaBrokers, logger)
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	reg := NewRegistry(logger, store, creds)
	checkpoints := checkpoint.NewManager(logger, store.CheckpointRepository())

	opts := []engine.Option{
		engine.WithPublisher(bus),
		engine.WithNotifier(notifier.NewLog(logger)),
		engine.WithNodeTimeout(cfg.NodeTimeout),
	}

	var m *metrics.Metrics
	if cfg.Registerer != nil {
		m = metrics.New(cfg.Registerer)
		opts = append(opts, engine.WithMetrics(m))
	}

	if cfg.Tracing {
		tracer, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create tracer: %w", err), bus.Close(), store.Close(ctx))
		}

		opts = append(opts, engine.WithTracer(tracer))
	}

	coordinator := engine.NewCoordinator(logger, reg, store, checkpoints, opts...)

	executionOpts := []services.ExecutionOption{
		services.WithEventPublisher(bus),
		services.WithExecutionTimeout(cfg.ExecutionTimeout),
	}
	if locker := NewLocker(store); locker != nil {
		executionOpts = append(executionOpts, services.WithLocker(locker))
	}

	return &Stack{
		Persistence: store,
		Credentials: creds,
		Bus:         bus,
		Registry:    reg,
		Checkpoints: checkpoints,
		Coordinator: coordinator,
		Scenarios:   services.NewScenario(store),
		Executions:  services.NewExecution(logger, store, coordinator, checkpoints, executionOpts...),
		Dispatcher:  services.NewDispatcher(bus),
		Metrics:     m,
	}, nil
}

func (s *Stack) Close(ctx context.Context) error {
	return errors.Join(s.Bus.Close(), s.Persistence.Close(ctx))
}
