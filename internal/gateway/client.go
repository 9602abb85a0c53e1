// Package gateway implements the HTTP client for the remote chat-session
// backend. All wire-format knowledge (snake_case JSON, success/message
// envelope) stays in this package; callers see the chat model types.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"aiva-chat-client/internal/chat"
)

// TokenSource supplies the bearer token for the Authorization header. It is
// consulted per request so a refreshed token is picked up without rebuilding
// the client.
type TokenSource func() string

type Client struct {
	BaseURL string
	Token   TokenSource
	HTTP    *http.Client
}

func NewClient(baseURL string, token TokenSource) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000/api"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the common response wrapper. Non-2xx or success:false is a
// logical failure whose reason is the message field.
type envelope struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Session  *wireSession    `json:"session,omitempty"`
	Sessions []wireSession   `json:"sessions,omitempty"`
	Count    int             `json:"count,omitempty"`
	Query    string          `json:"query,omitempty"`
	UserMsg  *wireMessage    `json:"user_message,omitempty"`
	BotMsg   *wireMessage    `json:"assistant_message,omitempty"`
	BotRaw   json.RawMessage `json:"bot_response,omitempty"`
}

type wireSession struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Messages       []wireMessage  `json:"messages,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Authority      chat.Authority `json:"authority,omitempty"`
	MessageCount   int            `json:"message_count,omitempty"`
	LastActivityAt *time.Time     `json:"last_activity_at,omitempty"`
}

type wireMessage struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Role      string         `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	IsTyping  bool           `json:"is_typing,omitempty"`
	Category  string         `json:"category,omitempty"`
	Authority chat.Authority `json:"authority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (c *Client) ListSessions(ctx context.Context, userID string, limit int) ([]*chat.Session, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	q.Set("limit", strconv.Itoa(limit))

	env, err := c.do(ctx, http.MethodGet, "/chat-sessions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	out := make([]*chat.Session, 0, len(env.Sessions))
	for i := range env.Sessions {
		out = append(out, sessionFromWire(&env.Sessions[i]))
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, req chat.CreateSessionRequest) (*chat.Session, error) {
	body := map[string]any{
		"session_id": req.SessionID,
		"title":      req.Title,
		"authority":  req.Authority,
		"user_id":    req.UserID,
	}
	env, err := c.do(ctx, http.MethodPost, "/chat-sessions", body)
	if err != nil {
		return nil, err
	}
	if env.Session == nil {
		return nil, &chat.BackendError{Message: "create: empty session in response"}
	}
	return sessionFromWire(env.Session), nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	env, err := c.do(ctx, http.MethodGet, "/chat-sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	if env.Session == nil {
		return nil, &chat.BackendError{Message: "get: empty session in response"}
	}
	return sessionFromWire(env.Session), nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID string, upd chat.SessionUpdate) (*chat.Session, error) {
	body := map[string]any{}
	if upd.Title != nil {
		body["title"] = *upd.Title
	}
	if upd.Authority != nil {
		body["authority"] = *upd.Authority
	}
	env, err := c.do(ctx, http.MethodPut, "/chat-sessions/"+url.PathEscape(sessionID), body)
	if err != nil {
		return nil, err
	}
	if env.Session == nil {
		return nil, &chat.BackendError{Message: "update: empty session in response"}
	}
	return sessionFromWire(env.Session), nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/chat-sessions/"+url.PathEscape(sessionID), nil)
	return err
}

func (c *Client) SendMessage(ctx context.Context, sessionID string, req chat.SendMessageRequest) (*chat.SendMessageReply, error) {
	body := map[string]any{
		"content":    req.Content,
		"category":   req.Category,
		"authority":  req.Authority,
		"message_id": req.MessageID,
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}
	env, err := c.do(ctx, http.MethodPost, "/chat-sessions/"+url.PathEscape(sessionID)+"/messages", body)
	if err != nil {
		return nil, err
	}
	if env.UserMsg == nil {
		return nil, &chat.BackendError{Message: "send: empty user_message in response"}
	}
	reply := &chat.SendMessageReply{UserMessage: messageFromWire(env.UserMsg)}
	if env.BotMsg != nil {
		m := messageFromWire(env.BotMsg)
		reply.AssistantMessage = &m
	}
	return reply, nil
}

func (c *Client) SearchSessions(ctx context.Context, query, userID string, limit int) (*chat.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if userID != "" {
		q.Set("user_id", userID)
	}
	q.Set("limit", strconv.Itoa(limit))

	env, err := c.do(ctx, http.MethodGet, "/chat-sessions-search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res := &chat.SearchResult{
		Sessions: make([]*chat.Session, 0, len(env.Sessions)),
		Count:    env.Count,
		Query:    env.Query,
	}
	for i := range env.Sessions {
		res.Sessions = append(res.Sessions, sessionFromWire(&env.Sessions[i]))
	}
	if res.Query == "" {
		res.Query = query
	}
	return res, nil
}

// do runs one request and decodes the envelope. Transport failures come back
// as wrapped errors; a decoded response that is non-2xx or success:false
// becomes a chat.BackendError carrying the backend's message.
func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &chat.BackendError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("gateway %s %s: decode: %w", method, path, decErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &chat.BackendError{Status: resp.StatusCode, Message: msg}
	}
	return &env, nil
}

func sessionFromWire(w *wireSession) *chat.Session {
	s := &chat.Session{
		ID:             w.ID,
		Title:          w.Title,
		Messages:       make([]chat.Message, 0, len(w.Messages)),
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		Authority:      w.Authority,
		MessageCount:   w.MessageCount,
		LastActivityAt: w.LastActivityAt,
	}
	for i := range w.Messages {
		s.Messages = append(s.Messages, messageFromWire(&w.Messages[i]))
	}
	return s
}

func messageFromWire(w *wireMessage) chat.Message {
	return chat.Message{
		ID:        w.ID,
		Content:   w.Content,
		Role:      w.Role,
		Timestamp: w.Timestamp,
		IsTyping:  w.IsTyping,
		Category:  w.Category,
		Authority: w.Authority,
		Metadata:  w.Metadata,
	}
}
