package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertEvent 一次 SOS 触发的历史记录（审计，终态后仍保留）
type AlertEvent struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	PayloadID   string        `json:"payloadId" gorm:"size:36;index"`
	UserID      string        `json:"userId" gorm:"size:64;index"`
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	Accuracy    float32       `json:"accuracy"`
	Stale       bool          `json:"stale"`
	DangerLevel DangerLevel   `json:"dangerLevel"`
	ZoneID      string        `json:"zoneId,omitempty" gorm:"size:64"`
	ZoneName    string        `json:"zoneName,omitempty" gorm:"size:128"`
	Source      TriggerSource `json:"source" gorm:"size:16"`
	Outcome     string        `json:"outcome" gorm:"size:32"` // active / queued / failed
	CreatedAt   time.Time     `json:"createdAt" gorm:"autoCreateTime"`
}

// SaveAlertEvent 写入历史
func SaveAlertEvent(db *gorm.DB, event *AlertEvent) error {
	return db.Create(event).Error
}

// ListAlertEvents 按时间倒序返回历史
func ListAlertEvents(db *gorm.DB, userID string, limit int) ([]AlertEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []AlertEvent
	q := db.Order("created_at desc").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
