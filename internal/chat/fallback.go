package chat

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// cannedReplies stand in for the assistant while the backend is unreachable.
var cannedReplies = []string{
	"I can't reach the assistant service right now, but your message has been saved in this conversation.",
	"The chat backend is currently unavailable. This is a locally generated reply so you can keep your train of thought.",
	"Working offline at the moment. Your question is stored here and the conversation will pick up once the service is reachable again.",
	"No connection to the assistant service. Feel free to keep writing; everything stays in this session.",
	"The assistant is unreachable, so this is a placeholder answer. Retry once you are back online.",
}

// localOnly is the offline strategy: it synthesizes results from the store's
// in-memory state and the mirror, never touching the network.
type localOnly struct {
	store    *Store
	delayMin time.Duration
	delayMax time.Duration
}

func (l *localOnly) loadSessions(ctx context.Context, userID string) ([]*Session, error) {
	return l.store.mirror.LoadSnapshot(ctx, userID)
}

// createSession synthesizes a session client-side with the same defaults the
// backend would apply.
func (l *localOnly) createSession(req CreateSessionRequest) *Session {
	now := time.Now()
	return &Session{
		ID:        req.SessionID,
		Title:     req.Title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Authority: req.Authority,
	}
}

// sendMessage is the mock reply path: append the user message, show a typing
// placeholder, wait a randomized delay and resolve the placeholder to a
// canned reply. A cancelled context removes the placeholder again; that is
// the only message removal the store ever performs.
func (l *localOnly) sendMessage(ctx context.Context, sessionID string, req SendMessageRequest) (*SendMessageReply, error) {
	now := time.Now()
	userMsg := Message{
		ID:        req.MessageID,
		Content:   req.Content,
		Role:      RoleUser,
		Timestamp: now,
		Category:  req.Category,
		Authority: req.Authority,
		Metadata:  req.Metadata,
	}
	placeholder := Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Timestamp: now,
		IsTyping:  true,
	}

	st := l.store
	st.mu.Lock()
	s := st.findLocked(sessionID)
	if s == nil {
		st.mu.Unlock()
		st.setError("session not found: " + sessionID)
		return nil, &BackendError{Message: "session not found: " + sessionID}
	}
	s.Messages = append(s.Messages, userMsg, placeholder)
	s.UpdatedAt = now
	st.mu.Unlock()

	select {
	case <-time.After(l.replyDelay()):
	case <-ctx.Done():
		st.dropTypingPlaceholder(sessionID, placeholder.ID)
		return nil, ctx.Err()
	}

	reply := cannedReplies[rand.Intn(len(cannedReplies))]
	resolvedAt := time.Now()

	st.mu.Lock()
	s = st.findLocked(sessionID)
	if s == nil {
		st.mu.Unlock()
		return nil, &BackendError{Message: "session not found: " + sessionID}
	}
	var assistant *Message
	for i := range s.Messages {
		if s.Messages[i].ID == placeholder.ID {
			s.Messages[i].Content = reply
			s.Messages[i].IsTyping = false
			s.Messages[i].Timestamp = resolvedAt
			assistant = &s.Messages[i]
			break
		}
	}
	s.UpdatedAt = resolvedAt
	s.MessageCount = len(s.Messages)
	s.LastActivityAt = &resolvedAt
	var assistantCopy Message
	if assistant != nil {
		assistantCopy = *assistant
	}
	st.mu.Unlock()

	return &SendMessageReply{UserMessage: userMsg, AssistantMessage: &assistantCopy}, nil
}

// searchSessions scans the in-memory set: case-insensitive substring match
// over titles and message contents.
func (l *localOnly) searchSessions(query string, limit int) *SearchResult {
	needle := strings.ToLower(query)
	res := &SearchResult{Sessions: []*Session{}, Query: query}

	st := l.store
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, s := range st.sessions {
		if len(res.Sessions) >= limit {
			break
		}
		if needle == "" || !sessionMatches(s, needle) {
			continue
		}
		res.Sessions = append(res.Sessions, s.Clone())
	}
	res.Count = len(res.Sessions)
	return res
}

func sessionMatches(s *Session, needle string) bool {
	if strings.Contains(strings.ToLower(s.Title), needle) {
		return true
	}
	for i := range s.Messages {
		if strings.Contains(strings.ToLower(s.Messages[i].Content), needle) {
			return true
		}
	}
	return false
}

func (l *localOnly) replyDelay() time.Duration {
	if l.delayMax <= l.delayMin {
		return l.delayMin
	}
	return l.delayMin + time.Duration(rand.Int63n(int64(l.delayMax-l.delayMin)))
}

// dropTypingPlaceholder removes a pending typing placeholder after an error.
func (st *Store) dropTypingPlaceholder(sessionID, messageID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.findLocked(sessionID)
	if s == nil {
		return
	}
	for i := range s.Messages {
		if s.Messages[i].ID == messageID && s.Messages[i].IsTyping {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			return
		}
	}
}
