package errors

// 业务错误码。0 留给成功，1 留给未分类错误（见 pkg/response）
const (
	CodeLocationUnavailable = 1001 // 无实时定位也无缓存
	CodeNoContacts          = 1002 // 未配置任何活跃紧急联系人
	CodeChannelSendFailure  = 1003 // 单个联系人的通道发送失败
	CodeRetryExhausted      = 1004 // 重试次数用尽，载荷终态 failed
	CodeSessionActive       = 1005 // 已有进行中的紧急会话
	CodeSessionInactive     = 1006 // 没有可取消的会话
	CodeContactLimit        = 1007 // 活跃联系人超过上限
)
