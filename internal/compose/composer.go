package compose

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"VoyagerGuard/internal/models"
)

// Variant 报文变体
type Variant int

const (
	// Compact 受长度预算约束，走短信类通道
	Compact Variant = iota
	// Detailed 不限长度，走分享类通道
	Detailed
)

// DefaultCompactMaxLen 默认紧凑报文预算，约 3 条短信分段
const DefaultCompactMaxLen = 480

const timeLayout = "Jan 02, 15:04:05"

// Composer 把 AlertPayload 渲染成通道文本。纯函数，相同输入字节级相同输出
type Composer struct {
	compactMaxLen int
}

func NewComposer(compactMaxLen int) *Composer {
	if compactMaxLen <= 0 {
		compactMaxLen = DefaultCompactMaxLen
	}
	return &Composer{compactMaxLen: compactMaxLen}
}

// Compose 渲染指定变体
func (c *Composer) Compose(payload models.AlertPayload, variant Variant) string {
	if variant == Detailed {
		return c.detailed(payload)
	}
	return c.compact(payload)
}

// compact 紧凑版：地图链接、缓存位置标记、电量、时间与载荷 ID（接收端去重用），
// 超出预算时先压缩自由文本，仍超出则截断
func (c *Composer) compact(payload models.AlertPayload) string {
	var b strings.Builder
	b.WriteString("EMERGENCY - I NEED HELP!\n")
	if payload.Message != "" {
		b.WriteString(payload.Message)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Location: %s\n", mapLink(payload.Location))
	if payload.Location.IsStale {
		b.WriteString("LAST KNOWN location\n")
	}
	if payload.DeviceInfo != nil && payload.DeviceInfo.BatteryPct != nil {
		fmt.Fprintf(&b, "Battery: %d%%\n", *payload.DeviceInfo.BatteryPct)
	}
	fmt.Fprintf(&b, "Time: %s\n", formatTime(payload.CreatedAtMs))
	fmt.Fprintf(&b, "Ref: %s", payload.ID)

	text := b.String()
	if len(text) <= c.compactMaxLen {
		return text
	}

	// 自由文本优先让位给定位和 Ref
	if payload.Message != "" {
		trimmed := payload
		trimmed.Message = ""
		text = c.compact(trimmed)
		if len(text) <= c.compactMaxLen {
			return text
		}
	}
	return truncateOnRune(text, c.compactMaxLen)
}

// truncateOnRune 按字节预算截断，但不切开多字节字符
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// detailed 详细版：完整设备信息、危险等级与行动号召
func (c *Composer) detailed(payload models.AlertPayload) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT\n\n")
	b.WriteString("I NEED IMMEDIATE ASSISTANCE!\n\n")
	if payload.Message != "" {
		b.WriteString(payload.Message)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Location: %s\n", mapLink(payload.Location))
	fmt.Fprintf(&b, "Lat: %.6f\n", payload.Location.Latitude)
	fmt.Fprintf(&b, "Lon: %.6f\n", payload.Location.Longitude)
	if payload.Location.LocationName != "" {
		fmt.Fprintf(&b, "Near: %s\n", payload.Location.LocationName)
	}
	fmt.Fprintf(&b, "\nTime: %s\n", formatTime(payload.CreatedAtMs))
	if payload.Location.IsStale {
		b.WriteString("Status: LAST KNOWN LOCATION (may be offline)\n")
	} else {
		b.WriteString("Status: current real-time location\n")
	}
	if device := payload.DeviceInfo; device != nil {
		b.WriteString("\n")
		if device.Model != "" {
			fmt.Fprintf(&b, "Device: %s\n", device.Model)
		}
		if device.BatteryPct != nil {
			fmt.Fprintf(&b, "Battery: %d%%\n", *device.BatteryPct)
		}
		if device.NetworkType != "" {
			fmt.Fprintf(&b, "Network: %s\n", device.NetworkType)
		}
	}
	fmt.Fprintf(&b, "\nDanger Level: %s\n", payload.DangerLevel.String())
	fmt.Fprintf(&b, "Ref: %s\n", payload.ID)
	b.WriteString("\nPLEASE CHECK ON ME OR CONTACT LOCAL AUTHORITIES IMMEDIATELY.")
	return b.String()
}

func mapLink(fix models.LocationFix) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", fix.Latitude, fix.Longitude)
}

// formatTime 固定 UTC，确保相同载荷在任何机器上渲染一致
func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timeLayout)
}
