package mocks

import (
	"context"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/stretchr/testify/mock"
)

// MockActionInvoker is a mock implementation of protocol.ActionInvoker interface.
type MockActionInvoker struct {
	mock.Mock
}

func (m *MockActionInvoker) Call(ctx context.Context, action *models.ActionDefinition, credentials map[string]any, input map[string]any) (map[string]any, error) {
	args := m.Called(ctx, action, credentials, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

// MockNotifier is a mock implementation of protocol.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID, title, message string, severity recovery.Severity) error {
	args := m.Called(ctx, userID, title, message, severity)

	return args.Error(0)
}

// MockCredentialService is a mock implementation of protocol.CredentialService interface.
type MockCredentialService struct {
	mock.Mock
}

func (m *MockCredentialService) Encrypt(plaintext string) (string, bool) {
	args := m.Called(plaintext)

	return args.String(0), args.Bool(1)
}

func (m *MockCredentialService) Decrypt(ciphertext string) (string, bool) {
	args := m.Called(ciphertext)

	return args.String(0), args.Bool(1)
}
