package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"aiva-chat-client/internal/chat"
)

// fakeBackend serves the chat-session API shape the client expects, with just
// enough state to exercise every endpoint.
func fakeBackend(t *testing.T) (*httptest.Server, map[string]gin.H) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := map[string]gin.H{}
	r := gin.New()

	r.GET("/api/chat-sessions", func(c *gin.Context) {
		list := []gin.H{}
		for _, s := range sessions {
			list = append(list, s)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "sessions": list, "message": "ok"})
	})

	r.POST("/api/chat-sessions", func(c *gin.Context) {
		var body struct {
			SessionID string `json:"session_id"`
			Title     string `json:"title"`
			Authority string `json:"authority"`
			UserID    string `json:"user_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.SessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "session_id required"})
			return
		}
		now := time.Now().UTC().Format(time.RFC3339)
		s := gin.H{
			"id": body.SessionID, "title": body.Title, "authority": body.Authority,
			"created_at": now, "updated_at": now, "messages": []gin.H{},
		}
		sessions[body.SessionID] = s
		c.JSON(http.StatusOK, gin.H{"success": true, "session": s, "message": "created"})
	})

	r.GET("/api/chat-sessions/:id", func(c *gin.Context) {
		s, ok := sessions[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "session": s, "message": "ok"})
	})

	r.PUT("/api/chat-sessions/:id", func(c *gin.Context) {
		s, ok := sessions[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "session not found"})
			return
		}
		var body struct {
			Title *string `json:"title"`
		}
		_ = c.ShouldBindJSON(&body)
		if body.Title != nil {
			s["title"] = *body.Title
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "session": s, "message": "updated"})
	})

	r.DELETE("/api/chat-sessions/:id", func(c *gin.Context) {
		if _, ok := sessions[c.Param("id")]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "session not found"})
			return
		}
		delete(sessions, c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "deleted"})
	})

	r.POST("/api/chat-sessions/:id/messages", func(c *gin.Context) {
		if _, ok := sessions[c.Param("id")]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "session not found"})
			return
		}
		var body struct {
			Content   string `json:"content"`
			MessageID string `json:"message_id"`
			Authority string `json:"authority"`
			Category  string `json:"category"`
		}
		_ = c.ShouldBindJSON(&body)
		now := time.Now().UTC().Format(time.RFC3339)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "ok",
			"user_message": gin.H{
				"id": body.MessageID, "content": body.Content, "role": "user",
				"timestamp": now, "category": body.Category, "authority": body.Authority,
			},
			"assistant_message": gin.H{
				"id": "asst-1", "content": "echo: " + body.Content, "role": "assistant", "timestamp": now,
			},
		})
	})

	r.GET("/api/chat-sessions-search", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true, "message": "ok",
			"sessions": []gin.H{}, "count": 0, "query": c.Query("q"),
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL+"/api", func() string { return "test-token" })
}

func TestClient_SessionRoundTrip(t *testing.T) {
	srv, _ := fakeBackend(t)
	c := newTestClient(srv)
	ctx := context.Background()

	created, err := c.CreateSession(ctx, chat.CreateSessionRequest{
		SessionID: "sess-1",
		Title:     "New Chat",
		Authority: chat.AuthoritySDM,
		UserID:    "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "sess-1", created.ID)
	require.Equal(t, "New Chat", created.Title)
	require.Equal(t, chat.AuthoritySDM, created.Authority)

	got, err := c.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	title := "renamed"
	updated, err := c.UpdateSession(ctx, "sess-1", chat.SessionUpdate{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Title)

	list, err := c.ListSessions(ctx, "alice", 50)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DeleteSession(ctx, "sess-1"))
	_, err = c.GetSession(ctx, "sess-1")
	require.Error(t, err)
}

func TestClient_SendMessage(t *testing.T) {
	srv, _ := fakeBackend(t)
	c := newTestClient(srv)
	ctx := context.Background()

	_, err := c.CreateSession(ctx, chat.CreateSessionRequest{SessionID: "sess-1", Title: "t", Authority: chat.AuthoritySDM})
	require.NoError(t, err)

	reply, err := c.SendMessage(ctx, "sess-1", chat.SendMessageRequest{
		Content:   "hello",
		Category:  "general",
		Authority: chat.AuthoritySDM,
		MessageID: "msg-1",
	})
	require.NoError(t, err)
	require.Equal(t, "msg-1", reply.UserMessage.ID)
	require.Equal(t, chat.RoleUser, reply.UserMessage.Role)
	require.NotNil(t, reply.AssistantMessage)
	require.Equal(t, "echo: hello", reply.AssistantMessage.Content)
}

func TestClient_SearchSessions(t *testing.T) {
	srv, _ := fakeBackend(t)
	c := newTestClient(srv)

	res, err := c.SearchSessions(context.Background(), "nothing", "alice", 20)
	require.NoError(t, err)
	require.Equal(t, 0, res.Count)
	require.Empty(t, res.Sessions)
	require.Equal(t, "nothing", res.Query)
}

func TestClient_LogicalFailureIsBackendError(t *testing.T) {
	srv, _ := fakeBackend(t)
	c := newTestClient(srv)

	_, err := c.GetSession(context.Background(), "missing")
	require.Error(t, err)
	var be *chat.BackendError
	require.ErrorAs(t, err, &be)
	require.Equal(t, http.StatusNotFound, be.Status)
	require.Equal(t, "session not found", be.Message)
}

func TestClient_TransportFailureIsNotBackendError(t *testing.T) {
	srv, _ := fakeBackend(t)
	srv.Close()
	c := newTestClient(srv)

	_, err := c.ListSessions(context.Background(), "alice", 50)
	require.Error(t, err)
	var be *chat.BackendError
	require.False(t, errors.As(err, &be))
}

func TestClient_SendsBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got string
	r.GET("/api/chat-sessions", func(c *gin.Context) {
		got = c.GetHeader("Authorization")
		c.JSON(http.StatusOK, gin.H{"success": true, "sessions": []gin.H{}, "message": "ok"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL+"/api", func() string { return "abc123" })
	_, err := c.ListSessions(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Equal(t, "Bearer abc123", got)
}
