package protocol

import (
	"context"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/recovery"
)

// ActionInvoker performs the outbound call behind an action node.
type ActionInvoker interface {
	Call(ctx context.Context, action *models.ActionDefinition, credentials map[string]any, input map[string]any) (map[string]any, error)
}

// CredentialService encrypts and decrypts connection credentials.
// A false result signals failure; callers never see key material errors.
type CredentialService interface {
	Encrypt(plaintext string) (string, bool)
	Decrypt(ciphertext string) (string, bool)
}

// Notifier delivers a message to a user. Failures are reported but must never
// fail the execution that triggered them.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string, severity recovery.Severity) error
}

// FunctionResult is the outcome of a transformation function.
type FunctionResult struct {
	Success bool   `json:"success"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FunctionLibrary runs stateless transformation functions by id.
type FunctionLibrary interface {
	Run(functionID string, value any, params map[string]any) FunctionResult
}
