package websocket

import (
	"net/http"

	"VoyagerGuard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler 定位流HTTP处理器
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建定位流处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  hub.cfg.ReadBufferSize,
			WriteBufferSize: hub.cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve 处理WebSocket升级请求并启动读写协程
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	sc, err := h.hub.register(conn)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}

	go h.hub.writePump(sc)
	go h.hub.readPump(sc)
}
