package recovery

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/eapache/go-resiliency/breaker"
)

type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryServer        Category = "server"
	CategoryClient        Category = "client"
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryIntegration   Category = "integration"
	CategoryTimeout       Category = "timeout"
	CategoryConfiguration Category = "configuration"
	CategoryUnknown       Category = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Persistence string

const (
	PersistenceTemporary    Persistence = "temporary"
	PersistenceIntermittent Persistence = "intermittent"
	PersistencePermanent    Persistence = "permanent"
)

// Classification describes a single failure. It is computed per failure and
// never stored on its own.
type Classification struct {
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Persistence Persistence    `json:"persistence"`
	Retryable   bool           `json:"retryable"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
}

type keywordRule struct {
	pattern        *regexp.Regexp
	classification Classification
}

// phrases matches any of the given phrases as whole words, ignoring case.
func phrases(list ...string) *regexp.Regexp {
	quoted := make([]string, len(list))
	for i, phrase := range list {
		quoted[i] = regexp.QuoteMeta(phrase)
	}

	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var keywordRules = []keywordRule{
	{
		pattern:        phrases("network", "offline", "unreachable", "connection", "socket"),
		classification: Classification{Category: CategoryNetwork, Severity: SeverityMedium, Persistence: PersistenceTemporary, Retryable: true},
	},
	{
		pattern:        phrases("timeout", "timed out"),
		classification: Classification{Category: CategoryTimeout, Severity: SeverityMedium, Persistence: PersistenceTemporary, Retryable: true},
	},
	{
		pattern: phrases(
			"unauthorized", "not authorized", "permission denied", "access denied", "forbidden",
			"authentication", "invalid token", "expired token", "token expired", "token revoked",
			"invalid credentials", "api key",
		),
		classification: Classification{Category: CategoryAuthorization, Severity: SeverityHigh, Persistence: PersistencePermanent, Retryable: false},
	},
	{
		pattern:        phrases("invalid", "validation", "required field", "is required", "must be", "schema"),
		classification: Classification{Category: CategoryValidation, Severity: SeverityMedium, Persistence: PersistencePermanent, Retryable: false},
	},
	{
		pattern:        phrases("server error", "internal server", "status 500", "http 500", "code 500"),
		classification: Classification{Category: CategoryServer, Severity: SeverityHigh, Persistence: PersistenceTemporary, Retryable: true},
	},
	{
		pattern:        phrases("integration", "connector", "provider"),
		classification: Classification{Category: CategoryIntegration, Severity: SeverityMedium, Persistence: PersistenceIntermittent, Retryable: true},
	},
}

// Classify maps an error raised by a node executor to a Classification.
// Typed errors are honored first, then HTTP status codes, then message keywords.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown, Severity: SeverityLow, Persistence: PersistenceIntermittent, Retryable: false}
	}

	message := err.Error()

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		c := classified.Classification
		if c.Message == "" {
			c.Message = message
		}

		return c
	}

	var configErr *ConfigurationError
	if errors.As(err, &configErr) {
		return Classification{
			Category:    CategoryConfiguration,
			Severity:    SeverityCritical,
			Persistence: PersistencePermanent,
			Retryable:   false,
			Message:     message,
		}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		details := map[string]any{}
		if validationErr.Field != "" {
			details["field"] = validationErr.Field
		}

		return Classification{
			Category:    CategoryValidation,
			Severity:    SeverityMedium,
			Persistence: PersistencePermanent,
			Retryable:   false,
			Message:     message,
			Details:     details,
		}
	}

	if errors.Is(err, ErrExecutionTimeout) || errors.Is(err, ErrCancelled) {
		return Classification{
			Category:    CategoryTimeout,
			Severity:    SeverityHigh,
			Persistence: PersistencePermanent,
			Retryable:   false,
			Message:     message,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{
			Category:    CategoryTimeout,
			Severity:    SeverityMedium,
			Persistence: PersistenceTemporary,
			Retryable:   true,
			Message:     message,
		}
	}

	if errors.Is(err, breaker.ErrBreakerOpen) {
		return Classification{
			Category:    CategoryIntegration,
			Severity:    SeverityMedium,
			Persistence: PersistenceTemporary,
			Retryable:   true,
			Message:     message,
			Details:     map[string]any{"circuit": "open"},
		}
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		if c, ok := classifyStatus(coder.StatusCode()); ok {
			c.Message = message

			return c
		}
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		category := transient.Category
		if category == "" {
			category = CategoryNetwork
		}

		return Classification{
			Category:    category,
			Severity:    SeverityMedium,
			Persistence: PersistenceTemporary,
			Retryable:   true,
			Message:     message,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		category := CategoryNetwork
		if netErr.Timeout() {
			category = CategoryTimeout
		}

		return Classification{
			Category:    category,
			Severity:    SeverityMedium,
			Persistence: PersistenceTemporary,
			Retryable:   true,
			Message:     message,
		}
	}

	for _, rule := range keywordRules {
		if rule.pattern.MatchString(message) {
			c := rule.classification
			c.Message = message

			return c
		}
	}

	return Classification{
		Category:    CategoryUnknown,
		Severity:    SeverityMedium,
		Persistence: PersistenceIntermittent,
		Retryable:   true,
		Message:     message,
	}
}

func classifyStatus(status int) (Classification, bool) {
	details := map[string]any{"status": status}

	switch {
	case status == 401 || status == 403:
		return Classification{Category: CategoryAuthorization, Severity: SeverityHigh, Persistence: PersistencePermanent, Retryable: false, Details: details}, true
	case status == 408:
		return Classification{Category: CategoryTimeout, Severity: SeverityMedium, Persistence: PersistenceTemporary, Retryable: true, Details: details}, true
	case status == 429:
		return Classification{Category: CategoryClient, Severity: SeverityMedium, Persistence: PersistenceTemporary, Retryable: true, Details: details}, true
	case status >= 400 && status < 500:
		return Classification{Category: CategoryClient, Severity: SeverityMedium, Persistence: PersistencePermanent, Retryable: false, Details: details}, true
	case status >= 500 && status < 600:
		return Classification{Category: CategoryServer, Severity: SeverityHigh, Persistence: PersistenceTemporary, Retryable: true, Details: details}, true
	default:
		return Classification{}, false
	}
}
