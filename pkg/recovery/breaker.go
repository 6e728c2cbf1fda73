package recovery

import (
	"sync"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/eapache/go-resiliency/breaker"
)

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
	defaultHalfOpenSuccess  = 1
)

// Breakers keeps one circuit breaker per key (a connection id). It is shared by
// all executions of a process, so access is guarded.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
}

func NewBreakers() *Breakers {
	return &Breakers{breakers: make(map[string]*breaker.Breaker)}
}

// Run executes fn through the breaker for key. A nil or disabled policy runs fn
// directly. While the breaker is open fn is not called and breaker.ErrBreakerOpen
// is returned.
func (b *Breakers) Run(key string, policy *models.CircuitBreakerPolicy, fn func() error) error {
	if policy == nil || !policy.Enabled {
		return fn()
	}

	return b.get(key, policy).Run(fn)
}

func (b *Breakers) get(key string, policy *models.CircuitBreakerPolicy) *breaker.Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.breakers[key]; ok {
		return existing
	}

	threshold := policy.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}

	reset := policy.ResetTimeout
	if reset <= 0 {
		reset = defaultResetTimeout
	}

	halfOpen := policy.HalfOpenSuccess
	if halfOpen <= 0 {
		halfOpen = defaultHalfOpenSuccess
	}

	created := breaker.New(threshold, halfOpen, reset)
	b.breakers[key] = created

	return created
}
