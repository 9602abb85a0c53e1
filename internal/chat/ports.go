package chat

import (
	"context"
	"fmt"
)

// BackendError is a logical failure reported by the session backend: a non-2xx
// status or a success:false envelope. Anything else returned by a Gateway is
// treated as a reachability failure and degrades the store to offline mode.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
	}
	return "backend: " + e.Message
}

// CreateSessionRequest carries the client-chosen id so create is idempotent
// from the store's point of view: the session keeps the same id whether the
// backend or the offline path materializes it.
type CreateSessionRequest struct {
	SessionID string
	Title     string
	Authority Authority
	UserID    string
}

type SessionUpdate struct {
	Title     *string
	Authority *Authority
}

type SendMessageRequest struct {
	Content   string
	Category  string
	Authority Authority
	MessageID string
	Metadata  map[string]any
}

// SendMessageReply is the backend's view of one exchange. AssistantMessage may
// be nil when the backend answers asynchronously; the store treats that as an
// exchange still worth recording.
type SendMessageReply struct {
	UserMessage      Message
	AssistantMessage *Message
}

// SearchResult is shape-identical for the remote and the local search path;
// callers must not be able to tell which one served them.
type SearchResult struct {
	Sessions []*Session `json:"sessions"`
	Count    int        `json:"count"`
	Query    string     `json:"query"`
}

// Gateway is the remote session backend boundary (HTTP+JSON API).
type Gateway interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error)
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, sessionID string, upd SessionUpdate) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SendMessage(ctx context.Context, sessionID string, req SendMessageRequest) (*SendMessageReply, error)
	SearchSessions(ctx context.Context, query, userID string, limit int) (*SearchResult, error)
}

// Mirror is durable local storage holding a full snapshot of the session list
// plus the last-selected session id. It survives restarts and never expires.
type Mirror interface {
	SaveSnapshot(ctx context.Context, userID string, sessions []*Session) error
	LoadSnapshot(ctx context.Context, userID string) ([]*Session, error)
	SaveCurrentSession(ctx context.Context, userID, sessionID string) error
	CurrentSession(ctx context.Context, userID string) (string, error)
}

// IdentityInfo is what the store needs from the authenticated identity. Token
// decoding happens elsewhere; the store only reads the projection.
type IdentityInfo interface {
	UserID() string
	Authority() Authority
	// CanOverrideAuthority reports whether per-message authority overrides are
	// honored for this identity (superuser-equivalent role).
	CanOverrideAuthority() bool
}
