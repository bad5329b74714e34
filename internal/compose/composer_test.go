package compose

import (
	"strings"
	"testing"
	"unicode/utf8"

	"VoyagerGuard/internal/models"

	"github.com/stretchr/testify/assert"
)

func samplePayload() models.AlertPayload {
	battery := 67
	return models.AlertPayload{
		ID:          "2efb1f18-9e45-4c4f-8a8e-0d6dba63b1a0",
		UserID:      "user-1",
		CreatedAtMs: 1735725600000, // 2025-01-01 10:00:00 UTC
		Location: models.LocationFix{
			Latitude:    22.5726,
			Longitude:   88.3639,
			TimestampMs: 1735725590000,
		},
		DangerLevel: models.DangerHigh,
		Message:     "Walking home from the station",
		DeviceInfo:  &models.DeviceInfo{BatteryPct: &battery, NetworkType: "Cellular", Model: "Pixel 8"},
	}
}

func TestComposeCompact(t *testing.T) {
	c := NewComposer(DefaultCompactMaxLen)
	text := c.Compose(samplePayload(), Compact)

	assert.LessOrEqual(t, len(text), DefaultCompactMaxLen)
	assert.Contains(t, text, "https://maps.google.com/?q=22.572600,88.363900")
	assert.Contains(t, text, "Battery: 67%")
	assert.Contains(t, text, "Time: Jan 01, 10:00:00")
	assert.Contains(t, text, "Ref: 2efb1f18-9e45-4c4f-8a8e-0d6dba63b1a0")
	assert.NotContains(t, text, "LAST KNOWN")
}

func TestComposeCompactStaleMarker(t *testing.T) {
	payload := samplePayload()
	payload.Location.IsStale = true
	text := NewComposer(0).Compose(payload, Compact)
	assert.Contains(t, text, "LAST KNOWN location")
}

// 相同载荷两次渲染必须字节级一致
func TestComposeIdempotent(t *testing.T) {
	c := NewComposer(DefaultCompactMaxLen)
	payload := samplePayload()

	assert.Equal(t, c.Compose(payload, Compact), c.Compose(payload, Compact))
	assert.Equal(t, c.Compose(payload, Detailed), c.Compose(payload, Detailed))
}

func TestComposeCompactBudget(t *testing.T) {
	payload := samplePayload()
	payload.Message = strings.Repeat("very long free text ", 40)

	c := NewComposer(200)
	text := c.Compose(payload, Compact)
	assert.LessOrEqual(t, len(text), 200)
	// 自由文本被裁掉，定位链接保留
	assert.Contains(t, text, "maps.google.com")
}

func TestComposeCompactTruncationRuneSafe(t *testing.T) {
	// 预算极小，硬截断也不能切开多字节字符
	payload := samplePayload()
	payload.Message = strings.Repeat("危险区域，请立即求助。", 30)

	for _, budget := range []int{40, 41, 42, 43, 120} {
		text := NewComposer(budget).Compose(payload, Compact)
		assert.LessOrEqual(t, len(text), budget)
		assert.True(t, utf8.ValidString(text), "budget %d produced invalid UTF-8", budget)
	}

	assert.Equal(t, "危险", truncateOnRune("危险区域", 7))
	assert.Equal(t, "危险", truncateOnRune("危险区域", 6))
	assert.Equal(t, "abc", truncateOnRune("abc", 10))
}

func TestComposeDetailed(t *testing.T) {
	text := NewComposer(0).Compose(samplePayload(), Detailed)

	assert.Contains(t, text, "Lat: 22.572600")
	assert.Contains(t, text, "Lon: 88.363900")
	assert.Contains(t, text, "Device: Pixel 8")
	assert.Contains(t, text, "Network: Cellular")
	assert.Contains(t, text, "Danger Level: HIGH")
	assert.Contains(t, text, "PLEASE CHECK ON ME OR CONTACT LOCAL AUTHORITIES IMMEDIATELY.")
	assert.Contains(t, text, "Status: current real-time location")
}
