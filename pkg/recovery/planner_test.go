package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner_Plan(t *testing.T) {
	transient := Classify(&TransientError{Category: CategoryNetwork, Err: errors.New("reset")})
	validation := Classify(NewValidationError("email", "missing"))
	configuration := Classify(NewConfigurationError("n1", "unknown node type", nil))

	tests := []struct {
		name           string
		classification Classification
		attempt        int
		ctx            PlanContext
		expected       Action
	}{
		{
			name:           "configuration always aborts",
			classification: configuration,
			ctx:            PlanContext{HasFallback: true, FallbackValue: map[string]any{}},
			expected:       ActionAbort,
		},
		{
			name:           "transient retries while attempts remain",
			classification: transient,
			attempt:        2,
			ctx:            PlanContext{Policy: models.ErrorHandling{RetryCount: 3}},
			expected:       ActionRetry,
		},
		{
			name:           "transient exhausted aborts",
			classification: transient,
			attempt:        3,
			ctx:            PlanContext{Policy: models.ErrorHandling{RetryCount: 3}},
			expected:       ActionAbort,
		},
		{
			name:           "transient exhausted notifies when configured",
			classification: transient,
			attempt:        3,
			ctx:            PlanContext{Policy: models.ErrorHandling{RetryCount: 3, NotifyOnError: true}},
			expected:       ActionNotify,
		},
		{
			name:           "transient exhausted uses fallback",
			classification: transient,
			attempt:        3,
			ctx: PlanContext{
				Policy:        models.ErrorHandling{RetryCount: 3},
				HasFallback:   true,
				FallbackValue: map[string]any{"status": "unknown"},
			},
			expected: ActionFallback,
		},
		{
			name:           "validation on essential node aborts without retry",
			classification: validation,
			ctx:            PlanContext{Essential: true, Policy: models.ErrorHandling{RetryCount: 3}},
			expected:       ActionAbort,
		},
		{
			name:           "validation on non-essential node skips",
			classification: validation,
			ctx:            PlanContext{Policy: models.ErrorHandling{RetryCount: 3}},
			expected:       ActionSkip,
		},
		{
			name:           "retries disabled skips non-essential",
			classification: transient,
			ctx:            PlanContext{Policy: models.ErrorHandling{RetryCount: -1}},
			expected:       ActionSkip,
		},
		{
			name:           "category excluded by policy is not retried",
			classification: Classify(&HTTPError{Status: 429}),
			ctx: PlanContext{
				Essential: true,
				Policy: models.ErrorHandling{
					RetryCount: 3,
					Retry:      &models.RetryPolicy{Strategy: models.RetryStrategyFixed},
				},
			},
			expected: ActionAbort,
		},
	}

	planner := NewPlanner()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := planner.Plan(tt.classification, tt.attempt, tt.ctx)

			assert.Equal(t, tt.expected, decision.Action)
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestPlanner_RetryNeverExceedsRetryCount(t *testing.T) {
	planner := NewPlanner()
	transient := Classify(&TransientError{Err: errors.New("flaky")})
	ctx := PlanContext{Policy: models.ErrorHandling{RetryCount: 4}}

	retries := 0

	for attempt := 0; attempt < 20; attempt++ {
		decision := planner.Plan(transient, attempt, ctx)
		if decision.Action != ActionRetry {
			assert.Equal(t, ActionAbort, decision.Action)

			break
		}

		retries++
	}

	assert.Equal(t, 4, retries)
}

func TestPlanContextFor(t *testing.T) {
	node := &models.Node{
		ID:   "n1",
		Type: models.NodeTypeAction,
		Config: models.ActionConfig{
			Essential:     true,
			FallbackValue: map[string]any{"ok": false},
		},
	}

	pc := PlanContextFor(node, models.ErrorHandling{NotifyOnError: true})

	assert.True(t, pc.Essential)
	require.True(t, pc.HasFallback)
	assert.Equal(t, map[string]any{"ok": false}, pc.FallbackValue)
	assert.True(t, pc.Policy.NotifyOnError)
}

func TestRetryConfig_Delay(t *testing.T) {
	tests := []struct {
		name     string
		config   RetryConfig
		expected []time.Duration
	}{
		{
			name:     "exponential",
			config:   DefaultRetryConfigs[models.RetryStrategyExponential],
			expected: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second},
		},
		{
			name:     "fixed",
			config:   DefaultRetryConfigs[models.RetryStrategyFixed],
			expected: []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:     "progressive",
			config:   DefaultRetryConfigs[models.RetryStrategyProgressive],
			expected: []time.Duration{time.Second, 2500 * time.Millisecond, 4 * time.Second, 5500 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for attempt, expected := range tt.expected {
				assert.Equal(t, expected, tt.config.Delay(attempt), "attempt %d", attempt)
			}
		})
	}
}

func TestResolveRetryConfig_OverridesDefaults(t *testing.T) {
	cfg := ResolveRetryConfig(models.ErrorHandling{
		RetryCount: 2,
		Retry: &models.RetryPolicy{
			Strategy:            models.RetryStrategyProgressive,
			InitialDelay:        10 * time.Millisecond,
			RetryableCategories: []string{"unknown"},
		},
	})

	assert.Equal(t, models.RetryStrategyProgressive, cfg.Strategy)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 60*time.Second, cfg.MaxDelay)
	assert.Equal(t, []Category{CategoryUnknown}, cfg.RetryableCategories)
}
