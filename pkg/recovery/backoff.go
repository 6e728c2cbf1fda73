package recovery

import (
	"math"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/relay/pkg/models"
)

// RetryConfig is a fully resolved retry policy.
type RetryConfig struct {
	Strategy               models.RetryStrategy
	MaxAttempts            int
	InitialDelay           time.Duration
	MaxDelay               time.Duration
	Factor                 float64
	RetryableCategories    []Category
	NonRetryableCategories []Category
}

// DefaultRetryConfigs are the per-strategy defaults applied when a scenario
// policy leaves fields unset.
var DefaultRetryConfigs = map[models.RetryStrategy]RetryConfig{
	models.RetryStrategyExponential: {
		Strategy:               models.RetryStrategyExponential,
		MaxAttempts:            3,
		InitialDelay:           time.Second,
		MaxDelay:               30 * time.Second,
		Factor:                 2,
		RetryableCategories:    []Category{CategoryNetwork, CategoryServer, CategoryTimeout},
		NonRetryableCategories: []Category{CategoryValidation, CategoryAuthorization},
	},
	models.RetryStrategyFixed: {
		Strategy:               models.RetryStrategyFixed,
		MaxAttempts:            3,
		InitialDelay:           5 * time.Second,
		MaxDelay:               5 * time.Second,
		RetryableCategories:    []Category{CategoryNetwork, CategoryServer, CategoryTimeout},
		NonRetryableCategories: []Category{CategoryValidation, CategoryAuthorization},
	},
	models.RetryStrategyProgressive: {
		Strategy:               models.RetryStrategyProgressive,
		MaxAttempts:            5,
		InitialDelay:           time.Second,
		MaxDelay:               60 * time.Second,
		Factor:                 1.5,
		RetryableCategories:    []Category{CategoryNetwork, CategoryServer, CategoryTimeout, CategoryIntegration},
		NonRetryableCategories: []Category{CategoryValidation},
	},
}

// ResolveRetryConfig merges a scenario's error handling policy over the defaults.
// Without an explicit retry sub-policy every retryable category is retried with
// exponential backoff, up to RetryCount attempts.
func ResolveRetryConfig(policy models.ErrorHandling) RetryConfig {
	if policy.Retry == nil {
		cfg := DefaultRetryConfigs[models.RetryStrategyExponential]
		cfg.MaxAttempts = policy.MaxRetries()
		cfg.RetryableCategories = nil

		return cfg
	}

	strategy := policy.Retry.Strategy
	if strategy == "" {
		strategy = models.RetryStrategyExponential
	}

	cfg, ok := DefaultRetryConfigs[strategy]
	if !ok {
		cfg = DefaultRetryConfigs[models.RetryStrategyExponential]
	}

	cfg.MaxAttempts = policy.MaxRetries()

	if policy.Retry.InitialDelay > 0 {
		cfg.InitialDelay = policy.Retry.InitialDelay
	}

	if policy.Retry.MaxDelay > 0 {
		cfg.MaxDelay = policy.Retry.MaxDelay
	}

	if policy.Retry.Factor > 0 {
		cfg.Factor = policy.Retry.Factor
	}

	if policy.Retry.RetryableCategories != nil {
		cfg.RetryableCategories = toCategories(policy.Retry.RetryableCategories)
	}

	if policy.Retry.NonRetryableCategories != nil {
		cfg.NonRetryableCategories = toCategories(policy.Retry.NonRetryableCategories)
	}

	return cfg
}

// ShouldRetry reports whether another attempt is allowed after attempt failures.
func (c RetryConfig) ShouldRetry(classification Classification, attempt int) bool {
	if attempt >= c.MaxAttempts {
		return false
	}

	if !classification.Retryable {
		return false
	}

	if slices.Contains(c.NonRetryableCategories, classification.Category) {
		return false
	}

	if len(c.RetryableCategories) > 0 && !slices.Contains(c.RetryableCategories, classification.Category) {
		return false
	}

	return true
}

// Delay returns how long to wait before retry number attempt (zero based).
func (c RetryConfig) Delay(attempt int) time.Duration {
	b := c.BackOff()

	var delay time.Duration
	for i := 0; i <= max(0, attempt); i++ {
		delay = b.NextBackOff()
	}

	if delay == backoff.Stop {
		return c.MaxDelay
	}

	return delay
}

// BackOff returns a deterministic backoff sequence for the strategy.
func (c RetryConfig) BackOff() backoff.BackOff {
	switch c.Strategy {
	case models.RetryStrategyFixed:
		return backoff.NewConstantBackOff(c.InitialDelay)
	case models.RetryStrategyProgressive:
		return &progressiveBackOff{initial: c.InitialDelay, max: c.MaxDelay, factor: c.Factor}
	default:
		factor := c.Factor
		if factor <= 0 {
			factor = 2
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.InitialDelay
		b.Multiplier = factor
		b.RandomizationFactor = 0
		b.MaxInterval = c.MaxDelay
		b.MaxElapsedTime = 0
		b.Reset()

		return b
	}
}

// progressiveBackOff grows linearly: initial + initial*n*factor.
type progressiveBackOff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	n       int
}

func (p *progressiveBackOff) NextBackOff() time.Duration {
	factor := p.factor
	if factor <= 0 {
		factor = 1
	}

	delay := float64(p.initial) + float64(p.initial)*float64(p.n)*factor
	p.n++

	if p.max > 0 {
		delay = math.Min(delay, float64(p.max))
	}

	return time.Duration(delay)
}

func (p *progressiveBackOff) Reset() {
	p.n = 0
}

func toCategories(values []string) []Category {
	categories := make([]Category, 0, len(values))
	for _, v := range values {
		categories = append(categories, Category(v))
	}

	return categories
}
