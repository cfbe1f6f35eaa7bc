package models

import "time"

// SystemTelemetry captures host-level resource usage sampled for dashboard display.
type SystemTelemetry struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    uint64    `json:"memory_used_bytes"`
	MemoryTotal   uint64    `json:"memory_total_bytes"`
	DiskPercent   float64   `json:"disk_percent"`
	DiskUsed      uint64    `json:"disk_used_bytes"`
	DiskTotal     uint64    `json:"disk_total_bytes"`
	Load1         float64   `json:"load1"`
	Load5         float64   `json:"load5"`
	Load15        float64   `json:"load15"`
	UptimeSeconds uint64    `json:"uptime_seconds"`
	HealthPercent float64   `json:"health_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}
