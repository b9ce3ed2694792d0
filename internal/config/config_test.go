package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 10, cfg.MaxHistory)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 160, cfg.SMSCharLimit)
	assert.Equal(t, 480, cfg.ContextCharLimit)
	assert.Equal(t, 120*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 0, cfg.HistoryTokenBudget)
	assert.Equal(t, []string{"HELP"}, cfg.HelpCommands)
	assert.Equal(t, []string{"CLEAR", "/CLEAR"}, cfg.ClearCommands)
	assert.Equal(t, []string{"/CONTEXT"}, cfg.ContextCommands)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("SMS_CHAR_LIMIT", "1600")
	t.Setenv("CONTEXT_TIMEOUT", "45m")
	t.Setenv("CLEAR_COMMANDS", "RESET,/RESET")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, 1600, cfg.SMSCharLimit)
	assert.Equal(t, 45*time.Minute, cfg.StaleAfter)
	assert.Equal(t, []string{"RESET", "/RESET"}, cfg.ClearCommands)
}

func TestLoadNormalizesCommands(t *testing.T) {
	t.Setenv("HELP_COMMANDS", " help , ? ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"HELP", "?"}, cfg.HelpCommands)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"tiny sms limit", "SMS_CHAR_LIMIT", "2"},
		{"tiny context limit", "CONTEXT_CHAR_LIMIT", "3"},
		{"negative history", "MAX_HISTORY", "-1"},
		{"zero provider timeout", "PROVIDER_TIMEOUT", "0s"},
		{"zero max tokens", "MAX_TOKENS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Config{MaxHistory: -1, SMSCharLimit: 1, ContextCharLimit: 1, ProviderTimeout: 0, MaxTokens: 0}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_HISTORY")
	assert.Contains(t, err.Error(), "SMS_CHAR_LIMIT")
	assert.Contains(t, err.Error(), "PROVIDER_TIMEOUT")
}
