package listeners

import (
	"sync"

	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/util"
)

// SignalAlarm 服务端的警报实现：真正的声音/振动在客户端，
// 这里只维护状态并广播 SigAlarm，由 SSE/websocket 推给客户端
type SignalAlarm struct {
	mu      sync.Mutex
	ringing bool
}

func NewSignalAlarm() *SignalAlarm { return &SignalAlarm{} }

func (a *SignalAlarm) Start() {
	a.mu.Lock()
	already := a.ringing
	a.ringing = true
	a.mu.Unlock()
	if already {
		return
	}
	logger.Info("alarm: started")
	util.Sig().Emit(models.SigAlarm, true)
}

func (a *SignalAlarm) Stop() {
	a.mu.Lock()
	ringing := a.ringing
	a.ringing = false
	a.mu.Unlock()
	if !ringing {
		return
	}
	logger.Info("alarm: stopped")
	util.Sig().Emit(models.SigAlarm, false)
}

// Ringing 当前警报状态
func (a *SignalAlarm) Ringing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ringing
}
