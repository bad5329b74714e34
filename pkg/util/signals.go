package util

import "sync"

// SignalHandler sender 为信号源对象，params 为附加参数
type SignalHandler func(sender any, params ...any)

// Signals 进程内信号总线，模块间解耦用（监听器见 internal/listeners）
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

var (
	sigOnce sync.Once
	sigHub  *Signals
)

// Sig 返回全局信号总线
func Sig() *Signals {
	sigOnce.Do(func() {
		sigHub = &Signals{handlers: make(map[string][]SignalHandler)}
	})
	return sigHub
}

// Connect 注册监听器
func (s *Signals) Connect(name string, handler SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], handler)
}

// Emit 同步派发；监听器内部如需耗时操作自行开 goroutine
func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	handlers := make([]SignalHandler, len(s.handlers[name]))
	copy(handlers, s.handlers[name])
	s.mu.RUnlock()
	for _, h := range handlers {
		h(sender, params...)
	}
}

// Disconnect 移除某信号的全部监听器（测试用）
func (s *Signals) Disconnect(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, name)
}
