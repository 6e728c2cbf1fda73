package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/relay/pkg/eventbus"
	"github.com/dukex/relay/pkg/events"
	"github.com/dukex/relay/pkg/models"
)

// Dispatcher hands recorded executions to workers over the event bus.
type Dispatcher struct {
	publisher eventbus.EventPublisher
}

func NewDispatcher(publisher eventbus.EventPublisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

// Dispatch publishes an execution_requested event keyed by execution id.
func (d *Dispatcher) Dispatch(ctx context.Context, execution *models.Execution) error {
	event := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, execution.ScenarioID, execution.ID),
		TriggerType: execution.Trigger.Type,
	}

	if err := d.publisher.Publish(ctx, execution.ID, event); err != nil {
		return fmt.Errorf("failed to dispatch execution %s: %w", execution.ID, err)
	}

	return nil
}

// RegisterWorker makes bus run every requested execution through service.
// An execution owned by another worker is acknowledged and left alone.
func RegisterWorker(logger *slog.Logger, bus eventbus.EventSubscriber, service *Execution) error {
	logger = logger.With("module", "worker")

	return bus.Handle(events.ExecutionRequestedEvent, func(ctx context.Context, event any) error {
		requested, ok := event.(*events.ExecutionRequested)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		logger.InfoContext(ctx, "Running requested execution", "execution_id", requested.ExecutionID)

		execution, err := service.Run(ctx, requested.ExecutionID)
		if err != nil {
			if IsConflictError(err) {
				logger.WarnContext(ctx, "Skipping execution", "execution_id", requested.ExecutionID, "error", err)

				return nil
			}

			return err
		}

		logger.InfoContext(ctx, "Execution finished",
			"execution_id", execution.ID,
			"status", execution.Status)

		return nil
	})
}
