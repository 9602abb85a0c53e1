package chat

import "context"

// remoteBacked is the online strategy: a thin pass-through to the session
// backend. It performs no local mutation; the Store applies results.
type remoteBacked struct {
	gw Gateway
}

func (r *remoteBacked) loadSessions(ctx context.Context, userID string, limit int) ([]*Session, error) {
	return r.gw.ListSessions(ctx, userID, limit)
}

func (r *remoteBacked) createSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	return r.gw.CreateSession(ctx, req)
}

func (r *remoteBacked) hydrateSession(ctx context.Context, sessionID string) (*Session, error) {
	return r.gw.GetSession(ctx, sessionID)
}

func (r *remoteBacked) deleteSession(ctx context.Context, sessionID string) error {
	return r.gw.DeleteSession(ctx, sessionID)
}

func (r *remoteBacked) renameSession(ctx context.Context, sessionID, title string) error {
	_, err := r.gw.UpdateSession(ctx, sessionID, SessionUpdate{Title: &title})
	return err
}

func (r *remoteBacked) sendMessage(ctx context.Context, sessionID string, req SendMessageRequest) (*SendMessageReply, error) {
	return r.gw.SendMessage(ctx, sessionID, req)
}

func (r *remoteBacked) searchSessions(ctx context.Context, query, userID string, limit int) (*SearchResult, error) {
	return r.gw.SearchSessions(ctx, query, userID, limit)
}
