package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dukex/relay/pkg/checkpoint"
	"github.com/dukex/relay/pkg/eventbus"
	"github.com/dukex/relay/pkg/events"
	"github.com/dukex/relay/pkg/executors"
	"github.com/dukex/relay/pkg/metrics"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/otelhelper"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/dukex/relay/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator drives executions from start to a terminal status.
// Nodes of one execution run strictly one after another; separate executions
// may run concurrently on the same Coordinator.
type Coordinator struct {
	registry    *registry.Registry
	executions  persistence.ExecutionRepository
	scenarios   persistence.ScenarioRepository
	checkpoints *checkpoint.Manager
	planner     *recovery.Planner
	publisher   eventbus.EventPublisher
	notifier    protocol.Notifier
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	nodeTimeout time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewCoordinator(
	logger *slog.Logger,
	reg *registry.Registry,
	p persistence.Persistence,
	checkpoints *checkpoint.Manager,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		registry:    reg,
		executions:  p.ExecutionRepository(),
		scenarios:   p.ScenarioRepository(),
		checkpoints: checkpoints,
		planner:     recovery.NewPlanner(),
		publisher:   eventbus.Discard{},
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "coordinator"),
		nodeTimeout: DefaultNodeTimeout,
		now:         time.Now,
		sleep:       sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Job is one execution to drive. Execution is updated in place.
type Job struct {
	Scenario  *models.Scenario
	Nodes     []*models.Node
	Execution *models.Execution

	// Seed restores progress from a checkpoint. Nil starts from scratch.
	Seed *Seed
}

type Seed struct {
	Completed   []string
	Skipped     map[string]string
	Outputs     map[string]map[string]any
	RetryCounts map[string]int
}

type run struct {
	*runState

	scenario *models.Scenario
	exec     *models.Execution
	logger   *slog.Logger
}

// Run executes job until the execution is completed or failed. The returned
// error only reports a failure to persist the final record; the outcome of the
// execution itself is in job.Execution.
func (c *Coordinator) Run(ctx context.Context, job Job) error {
	exec := job.Execution

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "execution",
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.String(otelhelper.ScenarioIDKey, exec.ScenarioID),
		attribute.String(otelhelper.ScenarioNameKey, job.Scenario.Name),
		attribute.String(otelhelper.TriggerTypeKey, string(exec.Trigger.Type)),
	)
	defer span.End()

	r := &run{
		runState: newRunState(job.Nodes, c.now()),
		scenario: job.Scenario,
		exec:     exec,
		logger:   c.logger.With("execution_id", exec.ID, "scenario_id", exec.ScenarioID),
	}

	if job.Seed != nil {
		r.apply(job.Seed)
	}

	if exec.NodeResults == nil {
		exec.NodeResults = []models.NodeResult{}
	}

	exec.Status = models.ExecutionStatusRunning
	exec.Progress = r.progress()

	c.metrics.ExecutionStarted()
	c.save(ctx, r)
	c.publish(ctx, r, c.executionEvent(r, events.ExecutionStartedEvent))

	r.logger.InfoContext(ctx, "Execution started", "nodes", len(job.Nodes), "trigger_type", exec.Trigger.Type)

	if err := Validate(job.Nodes); err != nil {
		return c.finalize(ctx, r, span, err)
	}

	for {
		if err := c.interrupted(ctx, r); err != nil {
			return c.finalize(ctx, r, span, err)
		}

		if r.finished() {
			break
		}

		node, ok := r.next()
		if !ok {
			return c.finalize(ctx, r, span, recovery.NewConfigurationError("", "invalid graph", ErrUnsatisfiableGraph))
		}

		if stop, err := c.runNode(ctx, r, node); stop {
			return c.finalize(ctx, r, span, err)
		}
	}

	if conflicts := r.conflicts(); len(conflicts) > 0 {
		return c.finalize(ctx, r, span, fmt.Errorf("nodes both skipped and completed: %v", conflicts))
	}

	return c.finalize(ctx, r, span, nil)
}

func (r *run) apply(seed *Seed) {
	for _, id := range seed.Completed {
		if _, ok := r.byID[id]; ok {
			r.completed[id] = true
		}
	}

	for id, by := range seed.Skipped {
		if _, ok := r.byID[id]; ok {
			r.skipped[id] = by
		}
	}

	for id, output := range seed.Outputs {
		r.outputs[id] = maps.Clone(output)
	}

	maps.Copy(r.retries, seed.RetryCounts)
}

func (r *run) next() (*models.Node, bool) {
	if r.retrying != "" {
		node := r.byID[r.retrying]
		r.retrying = ""

		return node, true
	}

	return NextReady(r.nodes, r.done)
}

// interrupted reports a cancel request or the end of the execution's time budget.
func (c *Coordinator) interrupted(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return recovery.ErrExecutionTimeout
		}

		return recovery.ErrCancelled
	}

	c.syncCancel(ctx, r)

	if r.exec.CancelRequested {
		return recovery.ErrCancelled
	}

	return nil
}

// runNode executes one node and applies the outcome. stop is true when the
// execution must be finalized with err.
func (c *Coordinator) runNode(ctx context.Context, r *run, node *models.Node) (stop bool, err error) {
	attempt := r.retries[node.ID]
	started := c.now()

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.Int(otelhelper.AttemptKey, attempt),
	)
	defer span.End()

	env := protocol.Env{
		Execution: r.exec,
		Scenario:  r.scenario,
		Outputs:   r.outputs,
		Now:       started,
	}

	result := models.NodeResult{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     models.NodeStatusRunning,
		StartTime:  started,
		RetryCount: attempt,
	}

	input, err := executors.ResolveInput(node, env)
	if err == nil {
		result.Input = input
	}

	r.exec.CurrentNodeID = node.ID
	r.exec.SetNodeResult(result)
	c.save(ctx, r)
	c.publish(ctx, r, c.nodeEvent(r, node, events.NodeStartedEvent, models.NodeStatusRunning, func(e *events.NodeEvent) {
		e.Attempt = attempt
	}))

	var output map[string]any
	if err == nil {
		output, err = c.execute(ctx, node, input, env)
	}

	finished := c.now()
	result.EndTime = &finished

	if err == nil {
		c.metrics.NodeFinished(string(node.Type), string(models.NodeStatusCompleted), finished.Sub(started))
		c.complete(ctx, r, node, result, output)

		return false, nil
	}

	c.metrics.NodeFinished(string(node.Type), string(models.NodeStatusFailed), finished.Sub(started))
	otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))

	return c.recover(ctx, r, node, result, err)
}

type executed struct {
	output map[string]any
	err    error
}

// execute runs the node's executor under the node timeout. The executor runs
// in its own goroutine so a call that ignores ctx cannot hold the execution
// past the timeout; its late result is dropped.
func (c *Coordinator) execute(ctx context.Context, node *models.Node, input map[string]any, env protocol.Env) (map[string]any, error) {
	executor, err := c.registry.Get(node.Type)
	if err != nil {
		return nil, recovery.NewConfigurationError(node.ID, "unsupported node type", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.nodeTimeout)
	defer cancel()

	env = detach(env)
	done := make(chan executed, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- executed{err: fmt.Errorf("node %s panicked: %v", node.ID, p)}
			}
		}()

		output, err := executor.Execute(ctx, node, input, env)
		done <- executed{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}

		if res.output == nil {
			return map[string]any{}, nil
		}

		return res.output, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &recovery.TransientError{
				Category: recovery.CategoryTimeout,
				Err:      fmt.Errorf("node %s timed out after %s: %w", node.ID, c.nodeTimeout, context.DeadlineExceeded),
			}
		}

		return nil, ctx.Err()
	}
}

// detach gives an executor its own view of the run state, so one that outlives
// its timeout never reads maps the coordinator keeps writing.
func detach(env protocol.Env) protocol.Env {
	env.Outputs = maps.Clone(env.Outputs)

	if env.Scenario != nil {
		scenario := *env.Scenario
		env.Scenario = &scenario
	}

	if env.Execution != nil {
		execution := *env.Execution
		execution.NodeResults = slices.Clone(execution.NodeResults)
		env.Execution = &execution
	}

	return env
}

func (c *Coordinator) complete(ctx context.Context, r *run, node *models.Node, result models.NodeResult, output map[string]any) {
	result.Status = models.NodeStatusCompleted
	result.Output = output

	r.outputs[node.ID] = output
	r.completed[node.ID] = true
	r.nodeTimes = append(r.nodeTimes, result.Duration())
	r.exec.SetNodeResult(result)

	c.publish(ctx, r, c.nodeEvent(r, node, events.NodeCompletedEvent, models.NodeStatusCompleted, func(e *events.NodeEvent) {
		e.DurationMs = result.Duration().Milliseconds()
	}))

	if node.Type == models.NodeTypeCondition && executors.IsFalse(output) {
		now := c.now()

		for _, id := range r.markSkipped(node.ID) {
			skipped := r.byID[id]

			r.exec.SetNodeResult(models.NodeResult{
				NodeID:    id,
				NodeType:  skipped.Type,
				Status:    models.NodeStatusSkipped,
				StartTime: now,
				EndTime:   &now,
				SkippedBy: node.ID,
			})

			c.publish(ctx, r, c.nodeEvent(r, skipped, events.NodeSkippedEvent, models.NodeStatusSkipped, func(e *events.NodeEvent) {
				e.SkippedBy = node.ID
			}))
		}
	}

	c.updateProgress(ctx, r)
}

// recover classifies a failed node and applies the planned recovery action.
func (c *Coordinator) recover(ctx context.Context, r *run, node *models.Node, result models.NodeResult, nodeErr error) (bool, error) {
	result.Status = models.NodeStatusFailed
	result.Error = nodeErr.Error()
	r.exec.SetNodeResult(result)

	if err := c.interrupted(ctx, r); err != nil {
		c.publish(ctx, r, c.nodeEvent(r, node, events.NodeFailedEvent, models.NodeStatusFailed, func(e *events.NodeEvent) {
			e.Error = nodeErr.Error()
		}))

		return true, err
	}

	attempt := r.retries[node.ID]
	classification, decision := c.plan(r, node, nodeErr, attempt)

	r.logger.WarnContext(ctx, "Node failed",
		"node_id", node.ID,
		"attempt", attempt,
		"category", classification.Category,
		"severity", classification.Severity,
		"action", decision.Action,
		"reason", decision.Reason,
		"error", nodeErr)

	c.metrics.RecoveryAction(string(decision.Action), string(classification.Category))
	c.publish(ctx, r, c.nodeEvent(r, node, events.NodeFailedEvent, models.NodeStatusFailed, func(e *events.NodeEvent) {
		e.Attempt = attempt
		e.Error = nodeErr.Error()
		e.Category = string(classification.Category)
		e.Severity = string(classification.Severity)
		e.Action = string(decision.Action)
	}))

	switch decision.Action {
	case recovery.ActionRetry:
		c.saveCheckpoint(ctx, r, node.ID, models.CheckpointReasonRetry)

		now := c.now()
		r.retries[node.ID] = attempt + 1
		r.retrying = node.ID
		r.exec.RetryCount++
		r.exec.LastRetryTime = &now
		c.save(ctx, r)

		c.metrics.Retry(string(node.Type), string(classification.Category))
		c.publish(ctx, r, c.nodeEvent(r, node, events.RetryAttemptedEvent, models.NodeStatusFailed, func(e *events.NodeEvent) {
			e.Attempt = attempt + 1
			e.Delay = decision.Delay
			e.Category = string(classification.Category)
		}))

		if err := c.sleep(ctx, decision.Delay); err != nil {
			if cause := c.interrupted(ctx, r); cause != nil {
				return true, cause
			}

			return true, fmt.Errorf("%w: retry wait failed: %w", recovery.ErrCancelled, err)
		}

		return false, nil
	case recovery.ActionSkip:
		result.Status = models.NodeStatusSkipped
		r.completed[node.ID] = true
		r.exec.SetNodeResult(result)

		c.publish(ctx, r, c.nodeEvent(r, node, events.NodeSkippedEvent, models.NodeStatusSkipped, func(e *events.NodeEvent) {
			e.Error = nodeErr.Error()
		}))
		c.updateProgress(ctx, r)

		return false, nil
	case recovery.ActionFallback:
		output := fallbackOutput(decision.FallbackValue)

		result.Status = models.NodeStatusCompleted
		result.Output = output
		result.UsedFallback = true
		r.outputs[node.ID] = output
		r.completed[node.ID] = true
		r.exec.SetNodeResult(result)

		c.publish(ctx, r, c.nodeEvent(r, node, events.FallbackUsedEvent, models.NodeStatusCompleted, func(e *events.NodeEvent) {
			e.Error = nodeErr.Error()
		}))
		c.updateProgress(ctx, r)

		return false, nil
	case recovery.ActionNotify:
		c.notify(ctx, r, node, classification)

		fallthrough
	default:
		c.saveCheckpoint(ctx, r, node.ID, models.CheckpointReasonAbort)

		return true, nodeErr
	}
}

// plan never panics: a failure inside classification or planning aborts.
func (c *Coordinator) plan(r *run, node *models.Node, nodeErr error, attempt int) (classification recovery.Classification, decision recovery.Decision) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovery planning failed", "node_id", node.ID, "panic", p)

			classification = recovery.Classification{
				Category: recovery.CategoryUnknown,
				Severity: recovery.SeverityHigh,
				Message:  nodeErr.Error(),
			}
			decision = recovery.Decision{
				Action: recovery.ActionAbort,
				Reason: fmt.Sprintf("recovery planning failed: %v", p),
			}
		}
	}()

	classification = recovery.Classify(nodeErr)
	decision = c.planner.Plan(classification, attempt, recovery.PlanContextFor(node, r.scenario.ErrorHandling))

	return classification, decision
}

// fallbackOutput uses an object fallback as the output itself and wraps any
// other value under "value".
func fallbackOutput(value any) map[string]any {
	if object, ok := value.(map[string]any); ok {
		return maps.Clone(object)
	}

	return map[string]any{"value": value}
}

func (c *Coordinator) notify(ctx context.Context, r *run, node *models.Node, classification recovery.Classification) {
	if c.notifier == nil || !r.scenario.ErrorHandling.NotifyOnError {
		return
	}

	name := node.Name
	if name == "" {
		name = node.ID
	}

	n := recovery.FormatNotification(classification, r.scenario.Name, name)

	if err := c.notifier.Notify(ctx, r.scenario.Owner, n.Title, n.Message, n.Severity); err != nil {
		r.logger.ErrorContext(ctx, "Failed to send notification", "node_id", node.ID, "error", err)

		return
	}

	c.publish(ctx, r, events.NotificationSent{
		BaseEvent: events.NewBaseEvent(events.NotificationSentEvent, r.exec.ScenarioID, r.exec.ID),
		UserID:    r.scenario.Owner,
		Title:     n.Title,
		Message:   n.Message,
		Severity:  string(n.Severity),
	})
}

func (c *Coordinator) saveCheckpoint(ctx context.Context, r *run, nodeID string, reason models.CheckpointReason) {
	if c.checkpoints == nil || !r.scenario.ErrorHandling.CheckpointsEnabled() {
		return
	}

	cp, err := c.checkpoints.Save(ctx, r.exec, r.snapshot(nodeID, c.now()), reason)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save checkpoint", "node_id", nodeID, "reason", reason, "error", err)

		return
	}

	c.metrics.CheckpointSaved(string(reason))

	event := events.CheckpointSaved{
		BaseEvent:    events.NewBaseEvent(events.CheckpointSavedEvent, r.exec.ScenarioID, r.exec.ID),
		CheckpointID: cp.ID,
		Reason:       reason,
		NodeID:       nodeID,
		Progress:     r.progress(),
	}
	c.publish(ctx, r, event)
}

func (c *Coordinator) updateProgress(ctx context.Context, r *run) {
	r.exec.Progress = max(r.exec.Progress, r.progress())
	r.exec.EstimatedTimeRemaining = r.estimatedRemaining()

	c.save(ctx, r)
	c.publish(ctx, r, c.executionEvent(r, events.ExecutionProgressEvent))
}

func (c *Coordinator) finalize(ctx context.Context, r *run, span trace.Span, runErr error) error {
	ctx = context.WithoutCancel(ctx)
	now := c.now()
	exec := r.exec

	exec.EndTime = &now
	exec.CurrentNodeID = ""
	exec.EstimatedTimeRemaining = 0

	eventType := events.ExecutionCompletedEvent

	if runErr == nil {
		exec.Status = models.ExecutionStatusCompleted
		exec.Progress = 100
		exec.Error = ""
	} else {
		exec.Status = models.ExecutionStatusFailed
		exec.Error = runErr.Error()
		eventType = events.ExecutionFailedEvent

		if errors.Is(runErr, recovery.ErrCancelled) {
			eventType = events.ExecutionCancelledEvent
		}

		otelhelper.SetError(span, runErr)
	}

	saveErr := c.executions.Save(ctx, exec)

	c.updateScenario(ctx, r, runErr, now)
	c.metrics.ExecutionFinished(string(exec.Status), string(exec.Trigger.Type), exec.Duration(now))
	c.publish(ctx, r, c.executionEvent(r, eventType))

	if runErr == nil {
		span.SetStatus(codes.Ok, "")
		r.logger.InfoContext(ctx, "Execution completed", "duration", exec.Duration(now))
	} else {
		r.logger.ErrorContext(ctx, "Execution failed", "duration", exec.Duration(now), "error", runErr)
	}

	if saveErr != nil {
		return fmt.Errorf("failed to persist execution %s: %w", exec.ID, saveErr)
	}

	return nil
}

// updateScenario records the last run. A critical failure moves an active
// scenario to error unless its policy suppresses it.
func (c *Coordinator) updateScenario(ctx context.Context, r *run, runErr error, now time.Time) {
	scenario, err := c.scenarios.GetByID(ctx, r.scenario.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load scenario for last run update", "error", err)

		return
	}

	scenario.LastRun = &models.LastRun{
		Time:        now,
		Success:     runErr == nil,
		ExecutionID: r.exec.ID,
	}

	if runErr != nil {
		scenario.LastRun.Error = runErr.Error()

		critical := recovery.Classify(runErr).Severity == recovery.SeverityCritical
		if critical && scenario.Status == models.ScenarioStatusActive && !scenario.ErrorHandling.SuppressStatusChange {
			scenario.Status = models.ScenarioStatusError

			r.logger.WarnContext(ctx, "Scenario moved to error status")
		}
	}

	if err := c.scenarios.Save(ctx, scenario); err != nil {
		r.logger.ErrorContext(ctx, "Failed to update scenario last run", "error", err)
	}

	r.scenario.LastRun = scenario.LastRun
	r.scenario.Status = scenario.Status
}

// syncCancel picks up a cancel request stored by another process so that the
// next save does not overwrite it.
func (c *Coordinator) syncCancel(ctx context.Context, r *run) {
	if r.exec.CancelRequested {
		return
	}

	if stored, err := c.executions.GetByID(ctx, r.exec.ID); err == nil && stored.CancelRequested {
		r.exec.CancelRequested = true
	}
}

func (c *Coordinator) save(ctx context.Context, r *run) {
	c.syncCancel(ctx, r)

	if err := c.executions.Save(ctx, r.exec); err != nil {
		r.logger.ErrorContext(ctx, "Failed to save execution", "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, r *run, event eventbus.Event) {
	if err := c.publisher.Publish(ctx, r.exec.ID, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (c *Coordinator) executionEvent(r *run, eventType events.EventType) events.ExecutionEvent {
	exec := r.exec

	event := events.ExecutionEvent{
		BaseEvent:           events.NewBaseEvent(eventType, exec.ScenarioID, exec.ID),
		Status:              exec.Status,
		TriggerType:         exec.Trigger.Type,
		Progress:            exec.Progress,
		EstimatedRemaining:  exec.EstimatedTimeRemaining,
		CurrentNodeID:       exec.CurrentNodeID,
		Error:               exec.Error,
		OriginalExecutionID: exec.OriginalExecutionID,
		CheckpointID:        exec.LastCheckpointID,
	}

	if exec.EndTime != nil {
		event.DurationMs = exec.EndTime.Sub(exec.StartTime).Milliseconds()
	}

	return event
}

func (c *Coordinator) nodeEvent(r *run, node *models.Node, eventType events.EventType, status models.NodeStatus, fill func(*events.NodeEvent)) events.NodeEvent {
	event := events.NodeEvent{
		BaseEvent: events.NewBaseEvent(eventType, r.exec.ScenarioID, r.exec.ID),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    status,
	}

	if fill != nil {
		fill(&event)
	}

	return event
}
