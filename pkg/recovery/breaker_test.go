package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/eapache/go-resiliency/breaker"
	"github.com/stretchr/testify/assert"
)

func TestBreakers_OpensAfterThreshold(t *testing.T) {
	breakers := NewBreakers()
	policy := &models.CircuitBreakerPolicy{Enabled: true, FailureThreshold: 2, ResetTimeout: time.Minute}
	failure := errors.New("upstream down")

	calls := 0
	fail := func() error {
		calls++

		return failure
	}

	assert.ErrorIs(t, breakers.Run("conn-1", policy, fail), failure)
	assert.ErrorIs(t, breakers.Run("conn-1", policy, fail), failure)
	assert.ErrorIs(t, breakers.Run("conn-1", policy, fail), breaker.ErrBreakerOpen)
	assert.Equal(t, 2, calls)

	// Breakers are keyed; another connection is unaffected.
	assert.NoError(t, breakers.Run("conn-2", policy, func() error { return nil }))
}

func TestBreakers_DisabledPolicyRunsDirectly(t *testing.T) {
	breakers := NewBreakers()
	failure := errors.New("nope")

	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, breakers.Run("conn-1", nil, func() error { return failure }), failure)
	}
}
