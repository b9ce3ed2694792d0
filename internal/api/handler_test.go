package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubResponder struct {
	reply     string
	calls     int
	gotSender string
	gotBody   string
}

func (s *stubResponder) HandleMessage(_ context.Context, sender, body string) string {
	s.calls++
	s.gotSender = sender
	s.gotBody = body
	return s.reply
}

func smsRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandleSMS(t *testing.T) {
	stub := &stubResponder{reply: "hello back"}
	h := NewHandler(stub, "", "openai", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.HandleSMS(rec, smsRequest(url.Values{
		"From": {"+15551234567"},
		"Body": {"  hi there  "},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Message>hello back</Message>")
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "+15551234567", stub.gotSender)
	assert.Equal(t, "hi there", stub.gotBody, "body arrives trimmed")
}

func TestHandleSMSMethodNotAllowed(t *testing.T) {
	stub := &stubResponder{}
	h := NewHandler(stub, "", "openai", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.HandleSMS(rec, httptest.NewRequest(http.MethodGet, "/sms", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, stub.calls)
}

func TestHandleSMSRejectsBadSignature(t *testing.T) {
	stub := &stubResponder{reply: "should not be sent"}
	h := NewHandler(stub, "auth-token", "openai", zaptest.NewLogger(t))

	req := smsRequest(url.Values{"From": {"+15551234567"}, "Body": {"hi"}})
	req.Header.Set("X-Twilio-Signature", "bogus")

	rec := httptest.NewRecorder()
	h.HandleSMS(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, stub.calls)
}

func TestHandleSMSSkipsValidationWithoutToken(t *testing.T) {
	stub := &stubResponder{reply: "ok"}
	h := NewHandler(stub, "", "openai", zaptest.NewLogger(t))

	// No signature header at all still passes in development mode.
	rec := httptest.NewRecorder()
	h.HandleSMS(rec, smsRequest(url.Values{"From": {"+1555"}, "Body": {"hi"}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.calls)
}

func TestHandleHealth(t *testing.T) {
	h := NewHandler(&stubResponder{}, "", "ollama", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "ollama", got["provider"])
}

func TestHandleHealthMethodNotAllowed(t *testing.T) {
	h := NewHandler(&stubResponder{}, "", "openai", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
