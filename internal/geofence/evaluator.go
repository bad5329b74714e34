package geofence

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"VoyagerGuard/internal/models"
)

// earthRadiusMeters 地球半径
const earthRadiusMeters = 6371000.0

// Evaluate 将定位与一组危险区域匹配，返回命中的等级与区域。
//
// 按输入顺序返回第一个命中（first-match）：区域重叠时由列表顺序决定结果，
// 需要 "最严重者胜出" 的调用方应先用 SortBySeverity 对区域按等级降序排序。
// 坐标非法（NaN/越界）一律按 Safe 处理，不会 panic。
func Evaluate(position models.LocationFix, zones []models.DangerZone) (models.DangerLevel, *models.DangerZone) {
	if !position.Valid() {
		return models.DangerSafe, nil
	}
	for i := range zones {
		zone := &zones[i]
		d := Haversine(position.Latitude, position.Longitude, zone.Latitude, zone.Longitude)
		// 边界含在区域内
		if d <= float64(zone.RadiusMeters) {
			return zone.Level, zone
		}
	}
	return models.DangerSafe, nil
}

// Haversine 两点间大圆距离，单位米
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// SortBySeverity 等级降序排序（稳定），让 Evaluate 的 first-match 变成 worst-match
func SortBySeverity(zones []models.DangerZone) {
	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].Level.Severer(zones[j].Level)
	})
}

// LoadZones 从 JSON 文件加载危险区域参考数据，启动时调用一次
func LoadZones(path string) ([]models.DangerZone, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var zones []models.DangerZone
	if err := json.Unmarshal(raw, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}
