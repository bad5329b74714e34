package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel 告警投递通道
type Channel string

const (
	ChannelDirectMessage Channel = "direct_message" // 点对点短信类通道，无数据网络也可用
	ChannelNetworkShare  Channel = "network_share"  // 依赖网络的分享通道
	ChannelQueue         Channel = "queue"          // 入队等待网络恢复
)

// DeliveryStatus 单个 (payload, contact) 的投递状态
type DeliveryStatus string

const (
	DeliveryPending       DeliveryStatus = "pending"
	DeliverySent          DeliveryStatus = "sent"
	DeliveryPartiallySent DeliveryStatus = "partially_sent"
	DeliveryFailed        DeliveryStatus = "failed"
	DeliveryDelivered     DeliveryStatus = "delivered"
)

// Terminal 终态不再参与重试，只有 pending 会被重试扫描捞起
func (s DeliveryStatus) Terminal() bool {
	return s != DeliveryPending
}

// Rank 投递结果好坏排序，汇总载荷级状态时取最优
func (s DeliveryStatus) Rank() int {
	switch s {
	case DeliveryDelivered:
		return 4
	case DeliverySent:
		return 3
	case DeliveryPartiallySent:
		return 2
	case DeliveryFailed:
		return 1
	default:
		return 0
	}
}

// TriggerSource 触发来源
type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerAutomatic TriggerSource = "automatic"
	TriggerGesture   TriggerSource = "gesture"
)

// AlertPayload 一次 SOS 的完整载荷，创建后不可变。
// 报文正文会携带 ID，接收端可据此去重（至少一次投递语义）。
type AlertPayload struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	CreatedAtMs int64              `json:"createdAtMs"`
	Location    LocationFix        `json:"location"`
	DangerLevel DangerLevel        `json:"dangerLevel"`
	Message     string             `json:"message,omitempty"`
	Contacts    []EmergencyContact `json:"contacts"`
	DeviceInfo  *DeviceInfo        `json:"deviceInfo,omitempty"`
}

// NewAlertPayload 构造载荷并分配 UUID
func NewAlertPayload(userID string, fix LocationFix, level DangerLevel, message string, contacts []EmergencyContact, device *DeviceInfo) AlertPayload {
	return AlertPayload{
		ID:          uuid.NewString(),
		UserID:      userID,
		CreatedAtMs: time.Now().UnixMilli(),
		Location:    fix,
		DangerLevel: level,
		Message:     message,
		Contacts:    contacts,
		DeviceInfo:  device,
	}
}

// DeliveryRecord 每个 (payload, contact) 一条，由队列持有直到终态
type DeliveryRecord struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	PayloadID     string         `json:"payloadId" gorm:"size:36;index;uniqueIndex:idx_payload_contact"`
	ContactID     uint           `json:"contactId" gorm:"uniqueIndex:idx_payload_contact"`
	Channel       Channel        `json:"channel" gorm:"size:32"`
	Status        DeliveryStatus `json:"status" gorm:"size:32"`
	RetryCount    int            `json:"retryCount"`
	LastAttemptMs int64          `json:"lastAttemptMs"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
}

// QueuedPayload 等待重试的载荷，进程重启后仍然存在
type QueuedPayload struct {
	PayloadID     string         `json:"payloadId" gorm:"primaryKey;size:36"`
	Body          string         `json:"body" gorm:"type:text"` // AlertPayload JSON
	Status        DeliveryStatus `json:"status" gorm:"size:32;index"`
	RetryCount    int            `json:"retryCount"`
	LastAttemptMs int64          `json:"lastAttemptMs"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
}
