package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// SystemStats is a point-in-time view of the process, served by /api/stats.
type SystemStats struct {
	GoRoutines      int       `json:"goroutines"`
	MemoryUsage     uint64    `json:"memory_usage_bytes"`
	MemoryAllocated uint64    `json:"memory_allocated_bytes"`
	MemorySystem    uint64    `json:"memory_system_bytes"`
	GCCount         uint32    `json:"gc_count"`
	CPUCount        int       `json:"cpu_count"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	GoVersion       string    `json:"go_version"`
	Timestamp       time.Time `json:"timestamp"`
}

// SystemMetrics samples runtime statistics and exports them as observable
// gauges on every metrics collection.
type SystemMetrics struct {
	startTime time.Time
}

// NewSystemMetrics registers the runtime gauges on meter. A nil meter skips
// registration and only Snapshot is available.
func NewSystemMetrics(meter metric.Meter, startTime time.Time) (*SystemMetrics, error) {
	sm := &SystemMetrics{startTime: startTime}
	if meter == nil {
		return sm, nil
	}

	goRoutines, err := meter.Int64ObservableGauge("system_goroutines",
		metric.WithDescription("Number of active goroutines"))
	if err != nil {
		return nil, fmt.Errorf("failed to create goroutine gauge: %w", err)
	}
	memoryUsage, err := meter.Int64ObservableGauge("system_memory_usage_bytes",
		metric.WithDescription("Heap memory in use in bytes"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("failed to create memory gauge: %w", err)
	}
	uptime, err := meter.Float64ObservableGauge("system_process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create uptime gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sm.Snapshot()
		o.ObserveInt64(goRoutines, int64(stats.GoRoutines))
		o.ObserveInt64(memoryUsage, int64(stats.MemoryUsage))
		o.ObserveFloat64(uptime, stats.UptimeSeconds)
		return nil
	}, goRoutines, memoryUsage, uptime)
	if err != nil {
		return nil, fmt.Errorf("failed to register runtime callback: %w", err)
	}
	return sm, nil
}

// Snapshot reads the current runtime statistics.
func (sm *SystemMetrics) Snapshot() SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemStats{
		GoRoutines:      runtime.NumGoroutine(),
		MemoryUsage:     mem.Alloc,
		MemoryAllocated: mem.TotalAlloc,
		MemorySystem:    mem.Sys,
		GCCount:         mem.NumGC,
		CPUCount:        runtime.NumCPU(),
		UptimeSeconds:   time.Since(sm.startTime).Seconds(),
		GoVersion:       runtime.Version(),
		Timestamp:       time.Now(),
	}
}
