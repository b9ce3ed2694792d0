package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/textrelay/textrelay/internal/config"
	"github.com/textrelay/textrelay/internal/models"
)

// Provider answers one conversation turn. history must be in
// chronological order; an empty systemPrompt selects the configured
// default prompt. Each call is independent: no retries, no caching.
type Provider interface {
	Answer(ctx context.Context, history []models.Message, newMessage, systemPrompt string) (string, error)
}

// ErrUnknownProvider reports a backend name New does not recognize.
var ErrUnknownProvider = errors.New("unknown AI provider")

// Error wraps a failed backend call with the backend's name.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// backend adapts any langchaingo model to Provider. The langchaingo
// clients own their wire mapping, e.g. anthropic hoists the system
// message into a top-level request parameter.
type backend struct {
	name          string
	model         llms.Model
	defaultPrompt string
	timeout       time.Duration
	maxTokens     int
	budget        *tokenBudget
}

// New resolves the configured backend. Unknown names fail here, at
// startup, before any network call is attempted.
func New(cfg config.Config) (Provider, error) {
	var (
		model llms.Model
		err   error
	)
	name := strings.ToLower(cfg.Provider)
	switch name {
	case "openai":
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIKey),
			openai.WithModel(cfg.OpenAIModel),
		)
	case "anthropic":
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicKey),
			anthropic.WithModel(cfg.AnthropicModel),
		)
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.OllamaURL),
			ollama.WithModel(cfg.OllamaModel),
		)
	default:
		return nil, fmt.Errorf("%w: %q (use openai, anthropic, or ollama)", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", name, err)
	}

	var budget *tokenBudget
	if cfg.HistoryTokenBudget > 0 {
		budget, err = newTokenBudget(cfg.HistoryTokenBudget)
		if err != nil {
			return nil, fmt.Errorf("initialize token budget: %w", err)
		}
	}

	return &backend{
		name:          name,
		model:         model,
		defaultPrompt: cfg.SystemPrompt,
		timeout:       cfg.ProviderTimeout,
		maxTokens:     cfg.MaxTokens,
		budget:        budget,
	}, nil
}

func (b *backend) Answer(ctx context.Context, history []models.Message, newMessage, systemPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = b.defaultPrompt
	}
	if b.budget != nil {
		history = b.budget.trim(history)
	}

	content := make([]llms.MessageContent, 0, len(history)+2)
	content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	for _, msg := range history {
		content = append(content, llms.TextParts(chatType(msg.Role), msg.Content))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, newMessage))

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	resp, err := b.model.GenerateContent(ctx, content, llms.WithMaxTokens(b.maxTokens))
	if err != nil {
		return "", &Error{Backend: b.name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Backend: b.name, Err: errors.New("response contained no choices")}
	}
	return resp.Choices[0].Content, nil
}

func chatType(role string) schema.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	default:
		return schema.ChatMessageTypeHuman
	}
}
