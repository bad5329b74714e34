package dispatch

import "VoyagerGuard/internal/models"

// SessionState 紧急会话状态。
// Inactive → Triggered → Dispatching → {Active, Queued, Failed} → Cancelled|Resolved
type SessionState string

const (
	StateInactive    SessionState = "inactive"
	StateTriggered   SessionState = "triggered"
	StateDispatching SessionState = "dispatching"
	StateActive      SessionState = "active"    // 至少一个联系人已送达
	StateQueued      SessionState = "queued"    // 全部失败但已入队，等网络恢复
	StateFailed      SessionState = "failed"    // 派发无法进行或重试用尽
	StateCancelled   SessionState = "cancelled" // 用户取消，不撤回已发消息
	StateResolved    SessionState = "resolved"  // 载荷全部投递记录到终态
)

// Live 会话是否仍在进行中（可被 Cancel）
func (s SessionState) Live() bool {
	switch s {
	case StateTriggered, StateDispatching, StateActive, StateQueued:
		return true
	}
	return false
}

// Session 会话快照。Dispatcher 独占持有，外部只拿到值拷贝。
// 排队中的载荷是用户数据，独立于会话：会话销毁不影响队列内容
type Session struct {
	State       SessionState         `json:"state"`
	PayloadID   string               `json:"payloadId,omitempty"`
	UserID      string               `json:"userId,omitempty"`
	Source      models.TriggerSource `json:"source,omitempty"`
	DangerLevel models.DangerLevel   `json:"dangerLevel"`
	ZoneName    string               `json:"zoneName,omitempty"`
	StartedAtMs int64                `json:"startedAtMs,omitempty"`
	UpdatedAtMs int64                `json:"updatedAtMs,omitempty"`
}
