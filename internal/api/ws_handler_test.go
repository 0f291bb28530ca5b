package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentCorner/internal/auth"
)

type chanFeed struct {
	mu     sync.Mutex
	orgKey string
	frames chan []byte
	ready  chan struct{}
}

func (f *chanFeed) Subscribe(_ context.Context, orgKey string) (<-chan []byte, func(), error) {
	f.mu.Lock()
	f.orgKey = orgKey
	f.mu.Unlock()
	close(f.ready)
	return f.frames, func() {}, nil
}

func newWsServer(t *testing.T) (*httptest.Server, *chanFeed, *auth.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens, err := auth.NewAuthServiceWithKey(key, &key.PublicKey, time.Minute, time.Hour)
	require.NoError(t, err)

	feed := &chanFeed{frames: make(chan []byte, 1), ready: make(chan struct{})}
	h := NewWsHandler(feed, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	r := gin.New()
	r.GET("/ws", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, feed, tokens
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWsForwardsProgressForTheOrganization(t *testing.T) {
	srv, feed, tokens := newWsServer(t)
	pair, err := tokens.GenerateTokenPair(auth.Principal{OrgID: 7, Email: "hr@acme.test", Organization: " Acme "})
	require.NoError(t, err)

	conn := dialWs(t, srv)
	require.NoError(t, conn.WriteJSON(wsAuthMessage{Type: "auth", Token: pair.AccessToken}))

	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])
	<-feed.ready
	assert.Equal(t, "acme", feed.orgKey)

	feed.frames <- []byte(`{"type":"notify_progress","sent":1}`)
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notify_progress","sent":1}`, string(msg))
}

func TestWsRejectsRefreshTokens(t *testing.T) {
	srv, _, tokens := newWsServer(t)
	pair, err := tokens.GenerateTokenPair(auth.Principal{OrgID: 7, Email: "hr@acme.test", Organization: "Acme"})
	require.NoError(t, err)

	conn := dialWs(t, srv)
	require.NoError(t, conn.WriteJSON(wsAuthMessage{Type: "auth", Token: pair.RefreshToken}))

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "access token required", closeErr.Text)
}

func TestWsRequiresAuthFrame(t *testing.T) {
	srv, _, _ := newWsServer(t)

	conn := dialWs(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, "auth required", closeErr.Text)
}

func TestOriginChecker(t *testing.T) {
	sameHost := originChecker(nil)
	req := httptest.NewRequest("GET", "http://api.test/ws", nil)
	req.Header.Set("Origin", "https://api.test")
	assert.True(t, sameHost(req))
	req.Header.Set("Origin", "https://evil.test")
	assert.False(t, sameHost(req))

	listed := originChecker([]string{"https://dash.test"})
	req.Header.Set("Origin", "https://dash.test")
	assert.True(t, listed(req))
}
