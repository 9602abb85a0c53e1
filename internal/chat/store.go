package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the single source of truth for the session list and the currently
// active session. Every operation is attempted against the remote backend
// first; reachability failures flip the store into offline mode, where reads
// are served from the local mirror and writes with a defined fallback are
// synthesized locally. Once offline, only a successful LoadSessions call
// brings the store back online.
//
// Callers are expected to serialize operations targeting the same session;
// the internal mutex protects the state, it is not a scheduling mechanism.
type Store struct {
	remote *remoteBacked
	local  *localOnly
	mirror Mirror
	ident  IdentityInfo
	log    *zap.Logger

	listLimit   int
	searchLimit int

	mu        sync.Mutex
	sessions  []*Session
	currentID string
	online    bool
	loading   bool
	lastErr   string
}

// Options tune the store. Zero values fall back to the defaults the backend
// API assumes (list 50, search 20) and the 1-3s simulated reply delay.
type Options struct {
	ListLimit   int
	SearchLimit int

	// Bounds for the simulated assistant latency on the offline path.
	MockDelayMin time.Duration
	MockDelayMax time.Duration

	Logger *zap.Logger
}

func NewStore(gw Gateway, mirror Mirror, ident IdentityInfo, opts Options) *Store {
	if opts.ListLimit <= 0 {
		opts.ListLimit = 50
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 20
	}
	if opts.MockDelayMin <= 0 {
		opts.MockDelayMin = time.Second
	}
	if opts.MockDelayMax < opts.MockDelayMin {
		opts.MockDelayMax = opts.MockDelayMin + 2*time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	st := &Store{
		mirror:      mirror,
		ident:       ident,
		log:         opts.Logger,
		listLimit:   opts.ListLimit,
		searchLimit: opts.SearchLimit,
		online:      true,
	}
	st.remote = &remoteBacked{gw: gw}
	st.local = &localOnly{
		store:    st,
		delayMin: opts.MockDelayMin,
		delayMax: opts.MockDelayMax,
	}
	return st
}

// Sessions returns the session list, most recently created first. The slice
// is a copy; the sessions themselves are live and must not be mutated.
func (st *Store) Sessions() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]*Session(nil), st.sessions...)
}

// CurrentSession returns the active session, or nil when the current pointer
// is unset or dangling.
func (st *Store) CurrentSession() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.findLocked(st.currentID)
}

// Messages returns a copy of the current session's messages, or nil.
func (st *Store) Messages() []Message {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.findLocked(st.currentID)
	if s == nil {
		return nil
	}
	return append([]Message(nil), s.Messages...)
}

func (st *Store) IsOnline() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.online
}

// IsLoading is a best-effort UI hint, not a lock.
func (st *Store) IsLoading() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loading
}

// LastError returns the last recorded failure message, or "".
func (st *Store) LastError() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastErr
}

// LoadSessions fetches the full session list from the backend. It always
// attempts the remote call, even in offline mode: a success here is the only
// path back to online. On failure the list is repopulated from the mirror and
// the error is returned to standalone callers; Initialize tolerates it.
func (st *Store) LoadSessions(ctx context.Context) error {
	st.setLoading(true)
	defer st.setLoading(false)
	st.clearError()

	sessions, err := st.remote.loadSessions(ctx, st.ident.UserID(), st.listLimit)
	if err != nil {
		st.noteFailure("load sessions", err)
		mirrored, lerr := st.local.loadSessions(ctx, st.ident.UserID())
		if lerr != nil {
			st.log.Warn("mirror snapshot unavailable", zap.Error(lerr))
			return err
		}
		st.mu.Lock()
		st.sessions = mirrored
		st.mu.Unlock()
		return err
	}

	st.mu.Lock()
	st.sessions = sessions
	st.online = true
	st.mu.Unlock()
	st.writeSnapshot(ctx)
	return nil
}

// CreateSession creates a session with the given title and authority, both
// optional. Online it asks the backend to materialize the session under a
// client-generated id; offline (or when the backend cannot be reached) it
// synthesizes the session locally with the same defaults. The new session is
// inserted at the front of the list and becomes current. Never returns nil
// alongside a nil error.
func (st *Store) CreateSession(ctx context.Context, title string, authority Authority) (*Session, error) {
	st.setLoading(true)
	defer st.setLoading(false)
	st.clearError()

	sid, err := NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	if title == "" {
		title = DefaultTitle
	}
	req := CreateSessionRequest{
		SessionID: sid,
		Title:     TruncateTitle(title),
		Authority: st.effectiveAuthority(authority),
		UserID:    st.ident.UserID(),
	}

	var sess *Session
	if st.IsOnline() {
		sess, err = st.remote.createSession(ctx, req)
		if err != nil {
			st.noteFailure("create session", err)
			sess = nil
		}
	}
	if sess == nil {
		sess = st.local.createSession(req)
	}

	st.mu.Lock()
	st.sessions = append([]*Session{sess}, st.sessions...)
	st.currentID = sess.ID
	st.mu.Unlock()

	st.writeSnapshot(ctx)
	st.rememberCurrent(ctx, sess.ID)
	return sess, nil
}

// SwitchSession makes the session with the given id current. The selection
// always sticks; online the session is additionally re-hydrated with its full
// message history, and a hydration failure only records an error.
func (st *Store) SwitchSession(ctx context.Context, sessionID string) error {
	st.clearError()

	st.mu.Lock()
	st.currentID = sessionID
	st.mu.Unlock()
	st.rememberCurrent(ctx, sessionID)

	if !st.IsOnline() {
		if st.CurrentSession() == nil {
			st.setError("session not found: " + sessionID)
			return errors.New("session not found: " + sessionID)
		}
		return nil
	}

	full, err := st.remote.hydrateSession(ctx, sessionID)
	if err != nil {
		st.noteFailure("hydrate session", err)
		return nil
	}

	st.mu.Lock()
	replaced := false
	for i, s := range st.sessions {
		if s.ID == sessionID {
			st.sessions[i] = full
			replaced = true
			break
		}
	}
	if !replaced {
		st.sessions = append([]*Session{full}, st.sessions...)
	}
	st.mu.Unlock()
	st.writeSnapshot(ctx)
	return nil
}

// DeleteSession removes a session. Online the backend delete must succeed
// before any local mutation happens, so a failure leaves the store and the
// backend in agreement. If the current session was deleted the store switches
// to the first remaining session or creates a fresh one.
func (st *Store) DeleteSession(ctx context.Context, sessionID string) error {
	st.clearError()

	if st.IsOnline() {
		if err := st.remote.deleteSession(ctx, sessionID); err != nil {
			st.noteFailure("delete session", err)
			return err
		}
	}

	st.mu.Lock()
	idx := -1
	for i, s := range st.sessions {
		if s.ID == sessionID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		st.sessions = append(st.sessions[:idx], st.sessions[idx+1:]...)
	}
	wasCurrent := st.currentID == sessionID
	var next string
	if wasCurrent && len(st.sessions) > 0 {
		next = st.sessions[0].ID
	}
	st.mu.Unlock()

	if idx < 0 {
		return nil
	}
	st.writeSnapshot(ctx)

	if !wasCurrent {
		return nil
	}
	if next != "" {
		return st.SwitchSession(ctx, next)
	}
	_, err := st.CreateSession(ctx, "", "")
	return err
}

// RenameSession updates a session title, truncated to the display bound.
// Online the backend update must succeed before the local title changes;
// offline the rename is local only.
func (st *Store) RenameSession(ctx context.Context, sessionID, title string) error {
	st.clearError()
	title = TruncateTitle(title)

	if st.IsOnline() {
		if err := st.remote.renameSession(ctx, sessionID, title); err != nil {
			st.noteFailure("rename session", err)
			return err
		}
	}

	st.mu.Lock()
	s := st.findLocked(sessionID)
	if s != nil {
		s.Title = title
		s.UpdatedAt = time.Now()
	}
	st.mu.Unlock()

	if s == nil {
		st.setError("session not found: " + sessionID)
		return errors.New("session not found: " + sessionID)
	}
	st.writeSnapshot(ctx)
	return nil
}

// SendMessage relays one user turn. A current session is created on demand,
// carrying the requested authority. Online the backend's returned user and
// assistant messages are the single source of truth; if the backend is
// unreachable the same call degrades to the local mock path, which appends a
// typing placeholder and resolves it to a canned reply after a simulated
// delay. The session title is derived from the first user message.
func (st *Store) SendMessage(ctx context.Context, content, category string, authority Authority) (*SendMessageReply, error) {
	st.setLoading(true)
	defer st.setLoading(false)
	st.clearError()

	if category == "" {
		category = "general"
	}
	eff := st.effectiveAuthority(authority)

	sess := st.CurrentSession()
	if sess == nil {
		var err error
		sess, err = st.CreateSession(ctx, "", eff)
		if err != nil {
			return nil, err
		}
	}

	req := SendMessageRequest{
		Content:   content,
		Category:  category,
		Authority: eff,
		MessageID: NewMessageID(),
	}

	if st.IsOnline() {
		reply, err := st.remote.sendMessage(ctx, sess.ID, req)
		if err == nil {
			st.appendExchange(sess.ID, reply)
			st.writeSnapshot(ctx)
			if err := st.renameAfterFirstMessage(ctx, sess.ID, content); err != nil {
				st.log.Warn("first-message rename failed", zap.String("session_id", sess.ID), zap.Error(err))
			}
			return reply, nil
		}
		var be *BackendError
		if errors.As(err, &be) {
			// Backend answered but refused; no fallback substitution.
			st.noteFailure("send message", err)
			return nil, err
		}
		// Unreachable: degrade and retry the same call through the mock path.
		st.noteFailure("send message", err)
	}

	reply, err := st.local.sendMessage(ctx, sess.ID, req)
	if err != nil {
		return nil, err
	}
	st.writeSnapshot(ctx)
	if err := st.renameAfterFirstMessage(ctx, sess.ID, content); err != nil {
		st.log.Warn("first-message rename failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return reply, nil
}

// SearchSessions matches query against session titles and message contents.
// Online the backend decides scope and ranking; offline the mirrored set is
// scanned client-side. The result shape is identical either way.
func (st *Store) SearchSessions(ctx context.Context, query, userID string) (*SearchResult, error) {
	st.clearError()
	if userID == "" {
		userID = st.ident.UserID()
	}

	if st.IsOnline() {
		res, err := st.remote.searchSessions(ctx, query, userID, st.searchLimit)
		if err == nil {
			return res, nil
		}
		var be *BackendError
		if errors.As(err, &be) {
			st.noteFailure("search sessions", err)
			return nil, err
		}
		st.noteFailure("search sessions", err)
	}

	return st.local.searchSessions(query, st.searchLimit), nil
}

// Initialize composes the startup sequence: load the list (remote or mirror),
// restore the previously selected session, and guarantee that at least one
// session exists and is current.
func (st *Store) Initialize(ctx context.Context) error {
	if err := st.LoadSessions(ctx); err != nil {
		st.log.Info("starting from mirror snapshot", zap.Error(err))
	}

	if last, err := st.mirror.CurrentSession(ctx, st.ident.UserID()); err == nil && last != "" {
		st.mu.Lock()
		known := st.findLocked(last) != nil
		st.mu.Unlock()
		if known {
			_ = st.SwitchSession(ctx, last)
		}
	}

	st.mu.Lock()
	empty := len(st.sessions) == 0
	st.mu.Unlock()
	if empty {
		if _, err := st.CreateSession(ctx, "", ""); err != nil {
			return err
		}
	}

	if st.CurrentSession() == nil {
		st.mu.Lock()
		first := st.sessions[0].ID
		st.mu.Unlock()
		return st.SwitchSession(ctx, first)
	}
	return nil
}

// appendExchange records a backend-confirmed user/assistant pair and
// refreshes the denormalized session fields.
func (st *Store) appendExchange(sessionID string, reply *SendMessageReply) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.findLocked(sessionID)
	if s == nil {
		return
	}
	now := time.Now()
	s.Messages = append(s.Messages, reply.UserMessage)
	if reply.AssistantMessage != nil {
		s.Messages = append(s.Messages, *reply.AssistantMessage)
	}
	s.UpdatedAt = now
	s.MessageCount = len(s.Messages)
	s.LastActivityAt = &now
}

// renameAfterFirstMessage derives the title from the first user message,
// exactly once per session.
func (st *Store) renameAfterFirstMessage(ctx context.Context, sessionID, content string) error {
	st.mu.Lock()
	s := st.findLocked(sessionID)
	first := s != nil && s.UserMessageCount() == 1
	st.mu.Unlock()
	if !first {
		return nil
	}
	return st.RenameSession(ctx, sessionID, content)
}

// effectiveAuthority applies the identity gate: the tag comes from the
// authenticated identity unless the caller may override it, and unknown tags
// are never honored.
func (st *Store) effectiveAuthority(requested Authority) Authority {
	def := st.ident.Authority()
	if !def.Valid() {
		def = AuthoritySDM
	}
	if requested == "" || !requested.Valid() || requested == def {
		return def
	}
	if st.ident.CanOverrideAuthority() {
		return requested
	}
	st.log.Debug("authority override denied",
		zap.String("requested", string(requested)),
		zap.String("granted", string(def)))
	return def
}

func (st *Store) findLocked(sessionID string) *Session {
	if sessionID == "" {
		return nil
	}
	for _, s := range st.sessions {
		if s.ID == sessionID {
			return s
		}
	}
	return nil
}

// noteFailure records an operation failure. Reachability failures flip the
// store offline; backend-reported failures only surface the backend message.
func (st *Store) noteFailure(op string, err error) {
	var be *BackendError
	if errors.As(err, &be) {
		st.setError(be.Message)
		st.log.Warn(op+" rejected by backend", zap.Int("status", be.Status), zap.String("message", be.Message))
		return
	}
	st.mu.Lock()
	wasOnline := st.online
	st.online = false
	st.lastErr = err.Error()
	st.mu.Unlock()
	if wasOnline {
		st.log.Warn("backend unreachable, switching to offline mode", zap.String("op", op), zap.Error(err))
	}
}

// writeSnapshot mirrors the full session list. Mirror failures are logged,
// never surfaced: the mirror is an opportunistic copy.
func (st *Store) writeSnapshot(ctx context.Context) {
	st.mu.Lock()
	snapshot := make([]*Session, len(st.sessions))
	for i, s := range st.sessions {
		snapshot[i] = s.Clone()
	}
	st.mu.Unlock()
	if err := st.mirror.SaveSnapshot(ctx, st.ident.UserID(), snapshot); err != nil {
		st.log.Warn("mirror snapshot write failed", zap.Error(err))
	}
}

func (st *Store) rememberCurrent(ctx context.Context, sessionID string) {
	if err := st.mirror.SaveCurrentSession(ctx, st.ident.UserID(), sessionID); err != nil {
		st.log.Warn("mirror current-session write failed", zap.Error(err))
	}
}

func (st *Store) setLoading(v bool) {
	st.mu.Lock()
	st.loading = v
	st.mu.Unlock()
}

func (st *Store) setError(msg string) {
	st.mu.Lock()
	st.lastErr = msg
	st.mu.Unlock()
}

func (st *Store) clearError() {
	st.setError("")
}
