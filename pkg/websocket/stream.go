package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 消息类型常量
const (
	MessageTypeFix      = "fix"      // 客户端上报定位
	MessageTypeLocation = "location" // 服务端广播定位
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeError    = "error"
)

// 环境变量配置键
const (
	EnvStreamMaxConnections    = "STREAM_MAX_CONNECTIONS"
	EnvStreamHeartbeatInterval = "STREAM_HEARTBEAT_INTERVAL"
	EnvStreamConnectionTimeout = "STREAM_CONNECTION_TIMEOUT"
	EnvStreamSendBufferSize    = "STREAM_SEND_BUFFER_SIZE"
	EnvStreamMaxMessageSize    = "STREAM_MAX_MESSAGE_SIZE"
)

// Message 定义定位流上的消息结构
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// FixSink 接收客户端上报的定位原始数据
type FixSink interface {
	Ingest(ctx context.Context, raw []byte) error
}

// Config 定位流配置
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	SendBufferSize    int
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int64
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    4096,
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		SendBufferSize:    64,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageSize:    4096,
	}
}

// LoadConfigFromEnv 从环境变量加载配置
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := util.GetIntEnv(EnvStreamMaxConnections); v > 0 {
		cfg.MaxConnections = v
	}
	if v := util.GetIntEnv(EnvStreamHeartbeatInterval); v > 0 {
		cfg.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvStreamConnectionTimeout); v > 0 {
		cfg.ConnectionTimeout = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvStreamSendBufferSize); v > 0 {
		cfg.SendBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvStreamMaxMessageSize); v > 0 {
		cfg.MaxMessageSize = v
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}
	if c.HeartbeatInterval <= 0 || c.ConnectionTimeout <= 0 {
		return fmt.Errorf("心跳间隔和连接超时必须大于0")
	}
	if c.HeartbeatInterval >= c.ConnectionTimeout {
		return fmt.Errorf("心跳间隔必须小于连接超时时间")
	}
	if c.SendBufferSize <= 0 || c.MaxMessageSize <= 0 {
		return fmt.Errorf("缓冲区大小必须大于0")
	}
	return nil
}

type streamConn struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (sc *streamConn) close() {
	sc.once.Do(func() {
		close(sc.send)
	})
}

// Hub 管理定位流连接：接收客户端上报并向所有连接广播定位更新
type Hub struct {
	cfg    *Config
	sink   FixSink
	nextID uint64
	count  int64

	mu    sync.RWMutex
	conns map[uint64]*streamConn
}

// NewHub 创建定位流Hub
func NewHub(cfg *Config, sink FixSink) *Hub {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Hub{
		cfg:   cfg,
		sink:  sink,
		conns: make(map[uint64]*streamConn),
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int64 {
	return atomic.LoadInt64(&h.count)
}

// Broadcast 将消息编码后发送给所有连接，发送缓冲满的连接直接丢弃该条消息
func (h *Hub) Broadcast(msgType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Warn("定位流消息编码失败", zap.Error(err))
		return
	}
	body, err := json.Marshal(Message{
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sc := range h.conns {
		select {
		case sc.send <- body:
		default:
		}
	}
}

// Shutdown 关闭所有连接
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*streamConn, 0, len(h.conns))
	for _, sc := range h.conns {
		conns = append(conns, sc)
	}
	h.conns = make(map[uint64]*streamConn)
	h.mu.Unlock()

	for _, sc := range conns {
		sc.close()
	}
	atomic.StoreInt64(&h.count, 0)
}

func (h *Hub) register(conn *websocket.Conn) (*streamConn, error) {
	if atomic.LoadInt64(&h.count) >= h.cfg.MaxConnections {
		return nil, fmt.Errorf("连接数已达到上限")
	}
	sc := &streamConn{
		id:   atomic.AddUint64(&h.nextID, 1),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBufferSize),
	}
	h.mu.Lock()
	h.conns[sc.id] = sc
	h.mu.Unlock()
	atomic.AddInt64(&h.count, 1)
	return sc, nil
}

func (h *Hub) unregister(sc *streamConn) {
	h.mu.Lock()
	_, ok := h.conns[sc.id]
	if ok {
		delete(h.conns, sc.id)
	}
	h.mu.Unlock()
	if ok {
		atomic.AddInt64(&h.count, -1)
		sc.close()
	}
}

func (h *Hub) readPump(sc *streamConn) {
	defer func() {
		h.unregister(sc)
		_ = sc.conn.Close()
	}()

	sc.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = sc.conn.SetReadDeadline(time.Now().Add(h.cfg.ConnectionTimeout))
	sc.conn.SetPongHandler(func(string) error {
		return sc.conn.SetReadDeadline(time.Now().Add(h.cfg.ConnectionTimeout))
	})

	for {
		_, raw, err := sc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("定位流连接异常断开", zap.Uint64("conn", sc.id), zap.Error(err))
			}
			return
		}
		_ = sc.conn.SetReadDeadline(time.Now().Add(h.cfg.ConnectionTimeout))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendTo(sc, MessageTypeError, "无效的消息数据")
			continue
		}
		h.handleMessage(sc, &msg)
	}
}

func (h *Hub) handleMessage(sc *streamConn, msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		h.sendTo(sc, MessageTypePong, nil)
	case MessageTypeFix:
		if h.sink == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := h.sink.Ingest(ctx, msg.Data); err != nil {
			logger.Warn("定位上报处理失败", zap.Uint64("conn", sc.id), zap.Error(err))
			h.sendTo(sc, MessageTypeError, err.Error())
		}
	default:
		h.sendTo(sc, MessageTypeError, "无效的消息类型")
	}
}

func (h *Hub) sendTo(sc *streamConn, msgType string, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return
		}
		raw = b
	}
	body, err := json.Marshal(Message{Type: msgType, Data: raw, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	select {
	case sc.send <- body:
	default:
	}
}

func (h *Hub) writePump(sc *streamConn) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = sc.conn.Close()
	}()

	for {
		select {
		case body, ok := <-sc.send:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = sc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sc.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
