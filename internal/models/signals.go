package models

// 信号名，经由 util.Sig() 广播，监听器在 internal/listeners 注册
const (
	// SigSessionState sender = dispatch.Session 值快照（非指针），params[0] = 旧状态
	SigSessionState = "emergency.session.state"
	// SigZoneEntered sender = *DangerZone，params[0] = LocationFix
	SigZoneEntered = "geofence.zone.entered"
	// SigPayloadQueued sender = payload id
	SigPayloadQueued = "queue.payload.queued"
	// SigPayloadTerminal sender = payload id，params[0] = DeliveryStatus
	SigPayloadTerminal = "queue.payload.terminal"
	// SigAlarm sender = bool，true 响起 false 停止
	SigAlarm = "emergency.alarm.state"
)
