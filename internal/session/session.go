package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/textrelay/textrelay/internal/config"
	"github.com/textrelay/textrelay/internal/db"
	"github.com/textrelay/textrelay/internal/llm"
	"github.com/textrelay/textrelay/internal/models"
)

const (
	ellipsis = "..."

	clearedReply    = "Conversation history cleared."
	noQuestionReply = "No previous question found. Send a question first."
	apologyReply    = "Sorry, something went wrong. Please try again."
)

// Engine drives one inbound message through command handling, staleness
// expiry, the provider call, and history persistence. It holds no
// per-sender state of its own; everything lives in the store.
type Engine struct {
	store    *db.Database
	provider llm.Provider
	cfg      config.Config
	logger   *zap.Logger
	helpText string
}

func New(store *db.Database, provider llm.Provider, cfg config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		helpText: helpText(cfg),
	}
}

// HandleMessage processes one inbound message and always produces a
// reply. Provider and storage failures surface to the sender as a
// fixed apology, never as a transport error.
func (e *Engine) HandleMessage(ctx context.Context, sender, body string) string {
	switch command := strings.ToUpper(strings.TrimSpace(body)); {
	case matches(command, e.cfg.HelpCommands):
		return e.helpText
	case matches(command, e.cfg.ClearCommands):
		return e.clear(sender)
	case matches(command, e.cfg.ContextCommands):
		return e.elaborate(ctx, sender)
	default:
		return e.answer(ctx, sender, body)
	}
}

// Command matching is exact: anything else, including an empty body, is
// an ordinary question.
func matches(command string, vocabulary []string) bool {
	for _, word := range vocabulary {
		if command == word {
			return true
		}
	}
	return false
}

func (e *Engine) clear(sender string) string {
	if err := e.store.ClearHistory(sender); err != nil {
		e.logger.Error("failed to clear history", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}
	return clearedReply
}

// elaborate re-answers the sender's last question with the detailed
// prompt and the longer reply limit. It replays existing context, so
// nothing is appended to history.
func (e *Engine) elaborate(ctx context.Context, sender string) string {
	question, ok, err := e.store.LastUserMessage(sender)
	if err != nil {
		e.logger.Error("failed to look up last question", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}
	if !ok {
		return noQuestionReply
	}

	history, err := e.store.RecentMessages(sender, e.cfg.MaxHistory)
	if err != nil {
		e.logger.Error("failed to load history", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}

	answer, err := e.provider.Answer(ctx, history, question, e.cfg.ContextPrompt)
	if err != nil {
		e.logger.Error("provider call failed", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}
	return truncate(answer, e.cfg.ContextCharLimit)
}

func (e *Engine) answer(ctx context.Context, sender, body string) string {
	if e.cfg.StaleAfter > 0 {
		expired, err := e.store.ExpireIfStale(sender, e.cfg.StaleAfter)
		if err != nil {
			// Treat a failed staleness check as not-expired; the
			// history read below decides whether the request can
			// proceed at all.
			e.logger.Error("staleness check failed", zap.String("sender", sender), zap.Error(err))
		} else if expired {
			e.logger.Info("auto-cleared stale conversation", zap.String("sender", sender))
		}
	}

	history, err := e.store.RecentMessages(sender, e.cfg.MaxHistory)
	if err != nil {
		e.logger.Error("failed to load history", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}

	answer, err := e.provider.Answer(ctx, history, body, "")
	if err != nil {
		e.logger.Error("provider call failed", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}
	reply := truncate(answer, e.cfg.SMSCharLimit)

	// User turn first: a half-written exchange must be a question with
	// no reply, never a reply with no question.
	if err := e.store.AppendMessage(&models.Message{Sender: sender, Role: models.RoleUser, Content: body}); err != nil {
		e.logger.Error("failed to save user turn", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}
	if err := e.store.AppendMessage(&models.Message{Sender: sender, Role: models.RoleAssistant, Content: reply}); err != nil {
		e.logger.Error("failed to save assistant turn", zap.String("sender", sender), zap.Error(err))
		return apologyReply
	}
	return reply
}

// truncate cuts s to at most limit runes, marking the cut with an
// ellipsis. The result never exceeds limit, marker included.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}

func helpText(cfg config.Config) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	fmt.Fprintf(&b, "%s - erase conversation history\n", strings.Join(cfg.ClearCommands, " or "))
	fmt.Fprintf(&b, "%s - get a detailed answer to your last question\n", strings.Join(cfg.ContextCommands, " or "))
	fmt.Fprintf(&b, "%s - show this message\n", strings.Join(cfg.HelpCommands, " or "))
	b.WriteString("\nJust text any question to get an AI-powered answer.")
	return b.String()
}
