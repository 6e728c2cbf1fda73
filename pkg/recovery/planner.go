package recovery

import (
	"fmt"
	"time"

	"github.com/dukex/relay/pkg/models"
)

// Action is the engine's decision on how to handle a failed node.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionSkip     Action = "skip"
	ActionFallback Action = "fallback"
	ActionNotify   Action = "notify"
	ActionAbort    Action = "abort"
)

// Decision is the output of the planner for one node failure.
type Decision struct {
	Action        Action        `json:"action"`
	Delay         time.Duration `json:"delay,omitempty"`
	Reason        string        `json:"reason"`
	FallbackValue any           `json:"fallback_value,omitempty"`
}

// PlanContext describes the failed node and the scenario policy in force.
type PlanContext struct {
	NodeType      models.NodeType
	Essential     bool
	Policy        models.ErrorHandling
	FallbackValue any
	HasFallback   bool
}

// PlanContextFor builds a PlanContext from the node's typed config.
func PlanContextFor(node *models.Node, policy models.ErrorHandling) PlanContext {
	pc := PlanContext{
		NodeType:  node.Type,
		Essential: node.IsEssential(),
		Policy:    policy,
	}

	if node.Config != nil {
		pc.FallbackValue, pc.HasFallback = node.Config.Fallback()
	}

	return pc
}

// Planner turns a classification and retry history into a Decision.
// Scenario policy is the only input that varies behavior; node types are never
// special-cased.
type Planner struct{}

func NewPlanner() *Planner {
	return &Planner{}
}

// Plan decides what to do after attempt previous failures of the same node.
//
//   - configuration errors abort
//   - retryable failures retry while attempts remain, with backoff
//   - a configured fallback value is used once retrying is off the table
//   - exhausted retries escalate to notify (when notifyOnError) or abort
//   - non-retryable failures abort essential nodes and skip the rest
func (p *Planner) Plan(classification Classification, attempt int, pc PlanContext) Decision {
	if classification.Category == CategoryConfiguration {
		return Decision{
			Action: ActionAbort,
			Reason: "configuration error: " + classification.Message,
		}
	}

	retry := ResolveRetryConfig(pc.Policy)

	if retry.ShouldRetry(classification, attempt) {
		return Decision{
			Action: ActionRetry,
			Delay:  retry.Delay(attempt),
			Reason: fmt.Sprintf("%s error is retryable (attempt %d of %d)", classification.Category, attempt+1, retry.MaxAttempts),
		}
	}

	if pc.HasFallback {
		return Decision{
			Action:        ActionFallback,
			FallbackValue: pc.FallbackValue,
			Reason:        fmt.Sprintf("using fallback value after %s error", classification.Category),
		}
	}

	exhausted := classification.Retryable && attempt >= retry.MaxAttempts && retry.MaxAttempts > 0

	if !exhausted && !pc.Essential {
		return Decision{
			Action: ActionSkip,
			Reason: fmt.Sprintf("%s error on non-essential node", classification.Category),
		}
	}

	reason := fmt.Sprintf("%s error on essential node", classification.Category)
	if exhausted {
		reason = fmt.Sprintf("%s error persisted after %d retries", classification.Category, retry.MaxAttempts)
	}

	if pc.Policy.NotifyOnError {
		return Decision{Action: ActionNotify, Reason: reason}
	}

	return Decision{Action: ActionAbort, Reason: reason}
}
