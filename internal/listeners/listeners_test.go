package listeners

import (
	"testing"
	"time"

	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/util"

	"github.com/stretchr/testify/assert"
)

func captureSignal(t *testing.T, name string) *[]any {
	t.Helper()
	var senders []any
	util.Sig().Connect(name, func(sender any, params ...any) {
		senders = append(senders, sender)
	})
	t.Cleanup(func() { util.Sig().Disconnect(name) })
	return &senders
}

func TestSignalAlarmDedupes(t *testing.T) {
	emitted := captureSignal(t, models.SigAlarm)
	alarm := NewSignalAlarm()

	alarm.Start()
	alarm.Start()
	assert.True(t, alarm.Ringing())
	assert.Len(t, *emitted, 1)

	alarm.Stop()
	alarm.Stop()
	assert.False(t, alarm.Ringing())
	assert.Len(t, *emitted, 2)
	assert.Equal(t, false, (*emitted)[1])
}

func TestZoneWatcherEmitsOnEntry(t *testing.T) {
	emitted := captureSignal(t, models.SigZoneEntered)
	zones := []models.DangerZone{
		{ID: "z1", Name: "Esplanade", Latitude: 22.5726, Longitude: 88.3639, RadiusMeters: 500, Level: models.DangerHigh},
	}
	w := NewZoneWatcher(zones)
	inside := models.LocationFix{Latitude: 22.5726, Longitude: 88.3639, TimestampMs: time.Now().UnixMilli()}
	outside := models.LocationFix{Latitude: 10, Longitude: 10, TimestampMs: time.Now().UnixMilli()}

	// 进入触发一次，停留不重复
	assert.NotNil(t, w.Observe(inside))
	assert.NotNil(t, w.Observe(inside))
	assert.Len(t, *emitted, 1)

	// 离开后再进入重新触发
	assert.Nil(t, w.Observe(outside))
	assert.NotNil(t, w.Observe(inside))
	assert.Len(t, *emitted, 2)

	zone, ok := (*emitted)[0].(*models.DangerZone)
	assert.True(t, ok)
	assert.Equal(t, "z1", zone.ID)
}
