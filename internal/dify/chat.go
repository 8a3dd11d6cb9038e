package dify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ChatRequest is one app chat turn.
type ChatRequest struct {
	Query          string
	ConversationID string
	User           string
	ResponseMode   string // "blocking" (default) or "streaming"
	Inputs         map[string]any
}

// ChatResponse is the blocking-mode chat envelope.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Answer         string         `json:"answer"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Chat is the app-facing client, authenticated with the active scheme's app
// API key.
type Chat struct {
	cfg Config
	t   *transport
}

// NewChat creates a chat client. httpClient may be nil to use the profile
// timeout.
func NewChat(cfg Config, httpClient *http.Client, logger *slog.Logger) *Chat {
	return &Chat{cfg: cfg, t: newTransport(cfg, httpClient, logger)}
}

// Send posts one chat message and returns the blocking-mode answer.
func (c *Chat) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(c.cfg.AppAPIKey) == "" {
		return nil, fmt.Errorf("%w: app key", ErrMissingCredentials)
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		user = c.cfg.AppUser
	}

	mode := strings.TrimSpace(req.ResponseMode)
	if mode == "" {
		mode = "blocking"
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	payload := map[string]any{
		"inputs":        inputs,
		"query":         req.Query,
		"response_mode": mode,
		"user":          user,
	}

	if req.ConversationID != "" {
		payload["conversation_id"] = req.ConversationID
	}

	var out ChatResponse
	if err := c.t.do(ctx, http.MethodPost, "/chat-messages", c.cfg.AppAPIKey, nil, payload, &out); err != nil {
		return nil, err
	}

	c.t.logger.Debug("chat answered", slog.String("conversation_id", out.ConversationID))

	return &out, nil
}
