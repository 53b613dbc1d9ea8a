package spotify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing client ID",
			cfg:  Config{ClientSecret: "secret", RefreshToken: "token"},
		},
		{
			name: "missing client secret",
			cfg:  Config{ClientID: "id", RefreshToken: "token"},
		},
		{
			name: "missing refresh token",
			cfg:  Config{ClientID: "id", ClientSecret: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNew_DefaultMarket(t *testing.T) {
	c, err := New(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "token",
	})
	assert.NoError(t, err)
	assert.Equal(t, "US", c.market)

	c, err = New(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "token",
		Market:       "JP",
	})
	assert.NoError(t, err)
	assert.Equal(t, "JP", c.market)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
