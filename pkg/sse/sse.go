package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Event 一条 SSE 事件，Name 对应 event: 行
type Event struct {
	Name string
	Data any
}

type client struct {
	ch   chan string
	done chan struct{}
}

// Hub 广播式 SSE：会话状态、警报启停、位置更新都走这条流推给客户端。
// 慢客户端丢消息不阻塞广播方
type Hub struct {
	mu       sync.RWMutex
	clients  map[uint64]*client
	nextID   uint64
	interval time.Duration
	retryMs  int
}

func NewHub(pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:  make(map[uint64]*client),
		interval: pingInterval,
		retryMs:  5000,
	}
}

// Broadcast 推给所有已连接客户端
func (h *Hub) Broadcast(event Event) {
	body, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Name, body)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.ch <- msg:
		default:
		}
	}
}

// ClientCount 当前连接数（供指标）
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add() (uint64, *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	c := &client{ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	return id, c
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		close(c.done)
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Serve 挂起当前请求作为事件流，连接断开自动清理
func (h *Hub) Serve(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	id, cl := h.add()
	defer h.remove(id)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-cl.ch:
			fmt.Fprint(c.Writer, msg)
			flusher.Flush()
		}
	}
}
