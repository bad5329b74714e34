package models

import (
	"math"
	"time"
)

// LocationFix 一次定位结果。IsStale=true 表示来自缓存的最后已知位置，而不是实时读取
type LocationFix struct {
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Accuracy     *float32 `json:"accuracy,omitempty"`
	TimestampMs  int64    `json:"timestampMs"`
	IsStale      bool     `json:"isStale"`
	LocationName string   `json:"locationName,omitempty"`
}

// Valid 检查坐标是否合法（非 NaN、范围内）
func (f LocationFix) Valid() bool {
	if math.IsNaN(f.Latitude) || math.IsNaN(f.Longitude) {
		return false
	}
	if math.IsInf(f.Latitude, 0) || math.IsInf(f.Longitude, 0) {
		return false
	}
	return f.Latitude >= -90 && f.Latitude <= 90 && f.Longitude >= -180 && f.Longitude <= 180
}

// Age 距离该定位的时间
func (f LocationFix) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(f.TimestampMs))
}

// Stale 返回标记为缓存来源的拷贝
func (f LocationFix) Stale() LocationFix {
	f.IsStale = true
	return f
}

// DeviceInfo 触发时的设备快照，可选
type DeviceInfo struct {
	BatteryPct  *int   `json:"batteryPct,omitempty"`
	NetworkType string `json:"networkType,omitempty"`
	Model       string `json:"model,omitempty"`
}
