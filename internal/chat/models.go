package chat

import "time"

// Authority scopes which backend knowledge domain a session or message queries.
// The set is closed; values outside it are rejected by the identity gate.
type Authority string

const (
	AuthoritySDM   Authority = "SDM"
	AuthorityHukum Authority = "HUKUM"
	AuthorityAdmin Authority = "ADMIN"
	// AuthorityAll is the cross-domain tag, usable only by superusers.
	AuthorityAll Authority = "ALL"
)

// Valid reports whether a is one of the four known authority tags.
func (a Authority) Valid() bool {
	switch a {
	case AuthoritySDM, AuthorityHukum, AuthorityAdmin, AuthorityAll:
		return true
	}
	return false
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is assigned to sessions until the first user message renames them.
const DefaultTitle = "New Chat"

// MaxTitleLen bounds session titles; longer titles are truncated, not rejected.
const MaxTitleLen = 50

type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Role      string         `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	IsTyping  bool           `json:"is_typing,omitempty"`
	Category  string         `json:"category,omitempty"`
	Authority Authority      `json:"authority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is one conversation thread. Messages are append-only; the only
// removal ever performed is dropping a typing placeholder after a failed send.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Authority Authority `json:"authority"`

	// Denormalized from the backend representation; not authoritative.
	MessageCount   int        `json:"message_count,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

// UserMessageCount counts user turns; used to detect the first message of a
// session for the automatic title rename.
func (s *Session) UserMessageCount() int {
	n := 0
	for i := range s.Messages {
		if s.Messages[i].Role == RoleUser {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can hold a snapshot without racing
// against later store mutations.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	if s.LastActivityAt != nil {
		t := *s.LastActivityAt
		cp.LastActivityAt = &t
	}
	return &cp
}

// TruncateTitle enforces the display-title bound.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= MaxTitleLen {
		return title
	}
	return string(runes[:MaxTitleLen])
}
