package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/auth"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// ProgressFeed delivers the campaign progress frames of one organization.
type ProgressFeed interface {
	Subscribe(ctx context.Context, orgKey string) (<-chan []byte, func(), error)
}

// WsHandler 在 WebSocket 上推送当前机构的通知进度。
// 客户端连上后必须先发送 {"type":"auth","token":"<access token>"}。
type WsHandler struct {
	feed     ProgressFeed
	tokens   middleware.TokenValidator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWsHandler builds the handler. With no allowedOrigins only same-host origins may connect.
func NewWsHandler(feed ProgressFeed, tokens middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		feed:   feed,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsRejection closes the socket with a policy violation and the given reason.
type wsRejection struct {
	reason string
	cause  error
}

func (r *wsRejection) Error() string {
	if r.cause != nil {
		return r.reason + ": " + r.cause.Error()
	}
	return r.reason
}

// HandleConnection upgrades the request, authenticates the first frame and then forwards
// progress frames until either side goes away.
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	principal, err := h.authenticate(conn)
	if err != nil {
		var rej *wsRejection
		if errors.As(err, &rej) {
			closeWith(conn, websocket.ClosePolicyViolation, rej.reason)
		}
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}

	orgKey := auth.OrganizationKey(principal.Organization)
	log = log.With(slog.String("org", orgKey))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	frames, stop, err := h.feed.Subscribe(ctx, orgKey)
	if err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, "progress feed unavailable")
		log.Error("subscribe progress feed failed", slog.Any("error", err))
		return
	}
	defer stop()

	if err := h.writeJSON(conn, gin.H{"type": "subscribed", "org": principal.Organization}); err != nil {
		return
	}
	log.Info("websocket subscribed")

	go drain(conn, cancel)

	err = h.forward(ctx, conn, frames)
	log.Info("websocket connection closed", slog.Any("reason", err))
}

func (h *WsHandler) authenticate(conn *websocket.Conn) (auth.Principal, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return auth.Principal{}, fmt.Errorf("read auth frame: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return auth.Principal{}, &wsRejection{reason: "invalid auth payload", cause: err}
	}
	if msg.Type != "auth" || msg.Token == "" {
		return auth.Principal{}, &wsRejection{reason: "auth required"}
	}

	claims, err := h.tokens.ValidateToken(msg.Token)
	if err != nil {
		return auth.Principal{}, &wsRejection{reason: "unauthorized", cause: err}
	}
	switch {
	case claims.TokenType != auth.TokenTypeAccess:
		return auth.Principal{}, &wsRejection{reason: "access token required"}
	case claims.MustChangePassword:
		return auth.Principal{}, &wsRejection{reason: "password change required"}
	}
	return claims.Principal(), nil
}

// forward is the only writer after authentication.
func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, frames <-chan []byte) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				closeWith(conn, websocket.CloseGoingAway, "feed closed")
				return errors.New("progress feed closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func (h *WsHandler) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

// drain 读取并丢弃客户端消息，连接断开时取消 ctx。
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
