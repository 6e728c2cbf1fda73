package credentials_test

import (
	"testing"

	"github.com/dukex/relay/pkg/credentials"
	"github.com/dukex/relay/pkg/mocks"
	"github.com/dukex/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeal_EncryptFailure(t *testing.T) {
	svc := &mocks.MockCredentialService{}
	svc.On("Encrypt", `{"api_key":"k"}`).Return("", false)

	_, err := credentials.Seal(svc, map[string]any{"api_key": "k"})

	require.Error(t, err)
	svc.AssertExpectations(t)
}

func TestOpen_WithCredentialService(t *testing.T) {
	svc := &mocks.MockCredentialService{}
	svc.On("Decrypt", "sealed").Return(`{"token":"abc"}`, true)
	svc.On("Decrypt", "broken").Return("", false)
	svc.On("Decrypt", "not-json").Return("{", true)

	values, err := credentials.Open(svc, &models.Connection{EncryptedCredentials: "sealed"})
	require.NoError(t, err)
	assert.Equal(t, "abc", values["token"])

	_, err = credentials.Open(svc, &models.Connection{EncryptedCredentials: "broken"})
	assert.ErrorIs(t, err, credentials.ErrDecryptionFailed)

	_, err = credentials.Open(svc, &models.Connection{EncryptedCredentials: "not-json"})
	assert.ErrorIs(t, err, credentials.ErrDecryptionFailed)

	_, err = credentials.Open(svc, &models.Connection{})
	assert.ErrorIs(t, err, credentials.ErrNoCredentialsSet)
}
