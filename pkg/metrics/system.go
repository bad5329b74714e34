package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMonitor 采样主机指标喂给 /metrics，由 pkg/scheduler 周期驱动。
// 告警服务跑在小盒子上也要能看见资源水位
type SystemMonitor struct {
	cpuUsage   prometheus.Gauge
	memUsage   prometheus.Gauge
	memTotal   prometheus.Gauge
	goroutines prometheus.Gauge
}

func NewSystemMonitor() *SystemMonitor {
	return &SystemMonitor{
		cpuUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Host CPU usage percent",
		}),
		memUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_usage_percent",
			Help: "Host memory usage percent",
		}),
		memTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_total_bytes",
			Help: "Host memory total",
		}),
		goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_goroutines",
			Help: "Goroutine count",
		}),
	}
}

// Sample 采样一轮
func (s *SystemMonitor) Sample() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.cpuUsage.Set(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.memUsage.Set(vm.UsedPercent)
		s.memTotal.Set(float64(vm.Total))
	}
	s.goroutines.Set(float64(runtime.NumGoroutine()))
}
