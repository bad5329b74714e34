package dispatch

import "VoyagerGuard/internal/models"

// Capabilities 派发时刻的连通性/权限快照，由 ConnectivityProbe 提供
type Capabilities struct {
	// HasDirectMessage 点对点短信类通道可用（权限+硬件），只要有蜂窝信号即可发送
	HasDirectMessage bool
	// IsOnline 数据网络可用
	IsOnline bool
}

// SelectPlan 返回按顺序尝试的通道计划。
//
// 优先级：
//  1. 有直发能力就先走 DirectMessage，不看 IsOnline（无数据网络也能发）；
//  2. 否则在线走 NetworkShare；
//  3. 否则只能入队等网络恢复。
//
// DirectMessage 全员失败视为完全没有蜂窝信号，此时 NetworkShare 同样不可达，
// 所以回退目标是 Queue 而不是 NetworkShare。
// 本地警报不属于通道计划，派发前无条件先触发。
func SelectPlan(caps Capabilities) []models.Channel {
	switch {
	case caps.HasDirectMessage:
		return []models.Channel{models.ChannelDirectMessage, models.ChannelQueue}
	case caps.IsOnline:
		return []models.Channel{models.ChannelNetworkShare, models.ChannelQueue}
	default:
		return []models.Channel{models.ChannelQueue}
	}
}
