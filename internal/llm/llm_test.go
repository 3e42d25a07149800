package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing api key",
			cfg:     Config{Provider: "openai", Model: "gpt-4o-mini"},
			wantErr: "api key not configured",
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "llama", Model: "x", APIKey: "k"},
			wantErr: "unknown llm provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClientKnownProviders(t *testing.T) {
	for _, provider := range []string{"openai", "OpenAI", "anthropic"} {
		t.Run(provider, func(t *testing.T) {
			c, err := NewClient(Config{Provider: provider, Model: "test-model", APIKey: "sk-test"})
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}
