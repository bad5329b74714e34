package listeners

import (
	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/sse"
	"VoyagerGuard/pkg/util"
)

// RegisterSSE 把进程内信号接到 SSE 事件流，客户端据此渲染
// 会话状态、警报、入区告警和投递进度
func RegisterSSE(hub *sse.Hub) {
	util.Sig().Connect(models.SigSessionState, func(sender any, params ...any) {
		hub.Broadcast(sse.Event{Name: "session", Data: sender})
	})
	util.Sig().Connect(models.SigAlarm, func(sender any, params ...any) {
		hub.Broadcast(sse.Event{Name: "alarm", Data: map[string]any{"ringing": sender}})
	})
	util.Sig().Connect(models.SigZoneEntered, func(sender any, params ...any) {
		data := map[string]any{"zone": sender}
		if len(params) > 0 {
			data["fix"] = params[0]
		}
		hub.Broadcast(sse.Event{Name: "zone", Data: data})
	})
	util.Sig().Connect(models.SigPayloadQueued, func(sender any, params ...any) {
		hub.Broadcast(sse.Event{Name: "queued", Data: map[string]any{"payloadId": sender}})
	})
	util.Sig().Connect(models.SigPayloadTerminal, func(sender any, params ...any) {
		data := map[string]any{"payloadId": sender}
		if len(params) > 0 {
			data["status"] = params[0]
		}
		hub.Broadcast(sse.Event{Name: "delivery", Data: data})
	})
}
