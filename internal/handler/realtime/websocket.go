// Package realtime 通过WebSocket提供实时聊天
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/handler/chat"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/conversation"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// 下行消息类型
const (
	TypeListening = "listening"
	TypeResult    = "result"
	TypeError     = "error"
)

// WebSocketHandler WebSocket聊天处理器
type WebSocketHandler struct {
	sessions *session.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *session.Service, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		logger:   logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connection 串行化写操作，gorilla 只允许一个并发写者
type connection struct {
	sessionID string
	ws        *websocket.Conn
	logger    *zap.Logger

	mu sync.Mutex
}

func (c *connection) send(msgType string, data any) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (c *connection) sendError(message string) {
	c.send(TypeError, map[string]string{"message": message})
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conv, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Info("websocket connected")

	conn := &connection{sessionID: sessionID, ws: ws, logger: logger}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		h.forwardListening(ctx, conn, conv)
	}()

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, conn, conv, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *connection, conv *conversation.Session, msg *inboundMessage) {
	switch msg.Type {
	case "chat":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			conn.sendError("invalid chat payload")
			return
		}
		if strings.TrimSpace(text.Text) == "" {
			conn.sendError("text is required")
			return
		}
		res := conv.Chat(ctx, text.Text)
		conn.send(TypeResult, chat.NewChatResponse(res))
	default:
		conn.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *WebSocketHandler) forwardListening(ctx context.Context, conn *connection, conv *conversation.Session) {
	changes, cancel := conv.Mood().Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-changes:
			conn.send(TypeListening, map[string]bool{"listening": v})
		}
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
