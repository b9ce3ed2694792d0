package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

// Responder turns one inbound message into a reply string. The session
// engine satisfies this; it never fails outward.
type Responder interface {
	HandleMessage(ctx context.Context, sender, body string) string
}

type Handler struct {
	sessions  Responder
	validator client.RequestValidator
	validate  bool
	provider  string
	logger    *zap.Logger
}

func NewHandler(sessions Responder, authToken, provider string, logger *zap.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		validator: client.NewRequestValidator(authToken),
		validate:  authToken != "",
		provider:  provider,
		logger:    logger,
	}
}

func (h *Handler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !h.validSignature(r) {
		h.logger.Warn("invalid webhook signature", zap.String("remote", r.RemoteAddr))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	sender := r.PostFormValue("From")
	body := strings.TrimSpace(r.PostFormValue("Body"))

	requestID := uuid.NewString()
	h.logger.Info("inbound message",
		zap.String("requestID", requestID),
		zap.String("sender", sender),
		zap.Int("length", len(body)))

	reply := h.sessions.HandleMessage(r.Context(), sender, body)

	doc, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		h.logger.Error("failed to render response", zap.String("requestID", requestID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	if _, err := io.WriteString(w, doc); err != nil {
		h.logger.Error("failed to write response", zap.String("requestID", requestID), zap.Error(err))
	}
}

// validSignature checks X-Twilio-Signature against the full request URL
// and the POST parameters. With no auth token configured the check is
// skipped (development mode).
func (h *Handler) validSignature(r *http.Request) bool {
	if !h.validate {
		return true
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	// Twilio signs the public URL; behind a proxy the scheme arrives in
	// X-Forwarded-Proto.
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
	}
	url := scheme + "://" + r.Host + r.URL.RequestURI()

	return h.validator.Validate(url, params, r.Header.Get("X-Twilio-Signature"))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":   "ok",
		"provider": h.provider,
	}); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}
