package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DangerLevel 危险等级，有序：Safe < Caution < High < Critical
type DangerLevel int

const (
	DangerSafe DangerLevel = iota
	DangerCaution
	DangerHigh
	DangerCritical
)

var dangerLevelNames = map[DangerLevel]string{
	DangerSafe:     "SAFE",
	DangerCaution:  "CAUTION",
	DangerHigh:     "HIGH",
	DangerCritical: "CRITICAL",
}

func (d DangerLevel) String() string {
	if name, ok := dangerLevelNames[d]; ok {
		return name
	}
	return "SAFE"
}

// Severer 比较严重程度，用于 "most severe wins"
func (d DangerLevel) Severer(other DangerLevel) bool { return d > other }

func (d DangerLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DangerLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseDangerLevel(s)
	if err != nil {
		return err
	}
	*d = level
	return nil
}

func ParseDangerLevel(s string) (DangerLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SAFE", "":
		return DangerSafe, nil
	case "CAUTION":
		return DangerCaution, nil
	case "HIGH", "DANGER":
		return DangerHigh, nil
	case "CRITICAL":
		return DangerCritical, nil
	}
	return DangerSafe, fmt.Errorf("unknown danger level: %s", s)
}

// DangerZone 危险区域：圆形地理围栏，启动时加载，只读
type DangerZone struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Latitude     float64     `json:"latitude"`
	Longitude    float64     `json:"longitude"`
	RadiusMeters float32     `json:"radiusMeters"`
	Level        DangerLevel `json:"level"`
}
