package listeners

import (
	"context"

	"VoyagerGuard/internal/geofence"
	"VoyagerGuard/internal/location"
	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/util"

	"go.uber.org/zap"
)

// ZoneWatcher 对每次接受的定位做地理围栏评估，
// 进入新区域时发出 SigZoneEntered（同一区域停留不重复触发）
type ZoneWatcher struct {
	zones   []models.DangerZone
	current string
}

// NewZoneWatcher zones 需已按严重度排序
func NewZoneWatcher(zones []models.DangerZone) *ZoneWatcher {
	return &ZoneWatcher{zones: zones}
}

// Observe 评估一次定位，返回命中的区域（可为空）
func (w *ZoneWatcher) Observe(fix models.LocationFix) *models.DangerZone {
	level, zone := geofence.Evaluate(fix, w.zones)
	if zone == nil {
		w.current = ""
		return nil
	}
	if zone.ID == w.current {
		return zone
	}
	w.current = zone.ID
	logger.Info("进入危险区域",
		zap.String("zone", zone.Name),
		zap.String("level", level.String()),
	)
	util.Sig().Emit(models.SigZoneEntered, zone, fix)
	return zone
}

// WatchZones 订阅定位更新并持续评估，ctx取消后退出
func WatchZones(ctx context.Context, p *location.Provider, zones []models.DangerZone) {
	w := NewZoneWatcher(zones)
	ch, cancel := p.Subscribe(16)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-ch:
			if !ok {
				return
			}
			w.Observe(fix)
		}
	}
}
