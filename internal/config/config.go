package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// Replies are cut with a "..." marker, so a limit needs room for the
// marker plus at least one character of answer.
const minCharLimit = 4

// Config is read once at startup and never reloaded.
type Config struct {
	Provider string `envconfig:"AI_PROVIDER" default:"openai"`

	OpenAIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	AnthropicKey   string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-20250514"`

	OllamaURL   string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"llama3.2"`

	// Empty token disables webhook signature validation (development mode).
	TwilioAuthToken string `envconfig:"TWILIO_AUTH_TOKEN"`

	SystemPrompt  string `envconfig:"SYSTEM_PROMPT" default:"You are a helpful assistant answering questions via SMS. Keep responses concise and under 300 characters when possible. No markdown formatting. Plain text only."`
	ContextPrompt string `envconfig:"CONTEXT_PROMPT" default:"You are a helpful assistant answering questions via SMS. The user asked for a more detailed answer to their previous question. Give a thorough answer in plain text. No markdown formatting."`

	Host   string `envconfig:"HOST" default:"0.0.0.0"`
	Port   int    `envconfig:"PORT" default:"5000"`
	DBPath string `envconfig:"DB_PATH" default:"conversations.db"`

	MaxHistory int           `envconfig:"MAX_HISTORY" default:"10"`
	StaleAfter time.Duration `envconfig:"CONTEXT_TIMEOUT" default:"30m"`

	SMSCharLimit     int `envconfig:"SMS_CHAR_LIMIT" default:"160"`
	ContextCharLimit int `envconfig:"CONTEXT_CHAR_LIMIT" default:"480"`

	ProviderTimeout    time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"120s"`
	MaxTokens          int           `envconfig:"MAX_TOKENS" default:"1024"`
	HistoryTokenBudget int           `envconfig:"HISTORY_TOKEN_BUDGET" default:"0"`

	HelpCommands    []string `envconfig:"HELP_COMMANDS" default:"HELP"`
	ClearCommands   []string `envconfig:"CLEAR_COMMANDS" default:"CLEAR,/CLEAR"`
	ContextCommands []string `envconfig:"CONTEXT_COMMANDS" default:"/CONTEXT"`
}

// Load reads configuration from the environment, with .env support for
// local development. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	// Commands match case-insensitively, so normalize the vocabulary once.
	cfg.HelpCommands = normalizeCommands(cfg.HelpCommands)
	cfg.ClearCommands = normalizeCommands(cfg.ClearCommands)
	cfg.ContextCommands = normalizeCommands(cfg.ContextCommands)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var err error
	if c.MaxHistory < 0 {
		err = multierr.Append(err, errors.New("MAX_HISTORY must not be negative"))
	}
	if c.SMSCharLimit < minCharLimit {
		err = multierr.Append(err, fmt.Errorf("SMS_CHAR_LIMIT must be at least %d", minCharLimit))
	}
	if c.ContextCharLimit < minCharLimit {
		err = multierr.Append(err, fmt.Errorf("CONTEXT_CHAR_LIMIT must be at least %d", minCharLimit))
	}
	if c.ProviderTimeout <= 0 {
		err = multierr.Append(err, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.MaxTokens <= 0 {
		err = multierr.Append(err, errors.New("MAX_TOKENS must be positive"))
	}
	if c.HistoryTokenBudget < 0 {
		err = multierr.Append(err, errors.New("HISTORY_TOKEN_BUDGET must not be negative"))
	}
	return err
}

func normalizeCommands(commands []string) []string {
	normalized := make([]string, 0, len(commands))
	for _, command := range commands {
		command = strings.ToUpper(strings.TrimSpace(command))
		if command != "" {
			normalized = append(normalized, command)
		}
	}
	return normalized
}
