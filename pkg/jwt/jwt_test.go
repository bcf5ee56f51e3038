package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes-only"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.expiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	token, err := service.GenerateAccessToken(42)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Validate the generated token
	userID, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	t.Run("Invalid Token String", func(t *testing.T) {
		_, err := service.ValidateAccessToken("not-a-token")
		assert.Error(t, err)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		other := NewService("a-completely-different-secret-value", time.Hour)
		token, err := other.GenerateAccessToken(7)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Expired Token", func(t *testing.T) {
		expired := NewService(testSecret, -time.Minute)
		token, err := expired.GenerateAccessToken(7)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}
