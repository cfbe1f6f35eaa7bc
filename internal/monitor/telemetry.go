package monitor

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"fleetmon/internal/models"
)

const telemetryInterval = 5 * time.Second

// StartTelemetryMonitor launches a background sampler that refreshes host metrics.
func (m *Monitor) StartTelemetryMonitor() {
	if m == nil {
		return
	}
	m.telemetryMu.Lock()
	if m.telemetryStop != nil {
		m.telemetryMu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.telemetryStop = stop
	m.telemetryMu.Unlock()

	m.telemetryWG.Add(1)
	go func() {
		defer m.telemetryWG.Done()
		ticker := time.NewTicker(telemetryInterval)
		defer ticker.Stop()
		ctx := context.Background()
		m.refreshTelemetry(ctx)
		for {
			select {
			case <-ticker.C:
				m.refreshTelemetry(ctx)
			case <-stop:
				return
			}
		}
	}()
}

// StopTelemetryMonitor stops the background telemetry sampler and waits for shutdown.
func (m *Monitor) StopTelemetryMonitor() {
	if m == nil {
		return
	}
	m.telemetryMu.Lock()
	stop := m.telemetryStop
	m.telemetryStop = nil
	m.telemetryMu.Unlock()
	if stop != nil {
		close(stop)
	}
	m.telemetryWG.Wait()
}

func (m *Monitor) refreshTelemetry(ctx context.Context) {
	if m == nil {
		return
	}
	snapshot := m.collectSystemTelemetry(ctx)
	if snapshot != nil {
		m.telemetryMu.Lock()
		m.systemTelemetry = snapshot
		m.telemetryMu.Unlock()
	}
}

func (m *Monitor) collectSystemTelemetry(ctx context.Context) *models.SystemTelemetry {
	timesStats, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(timesStats) == 0 {
		return nil
	}
	total := cpuTotal(timesStats[0])
	idle := timesStats[0].Idle + timesStats[0].Iowait
	deltaTotal, deltaIdle, hasPrev := m.updateCPUSample(total, idle)

	var cpuPercent float64
	if hasPrev && deltaTotal > 0 {
		used := deltaTotal - deltaIdle
		if used < 0 {
			used = 0
		}
		cpuPercent = clampFloat((used/deltaTotal)*100, 0, 100)
	}

	memoryStats, _ := mem.VirtualMemoryWithContext(ctx)
	var memPercent float64
	var memUsed, memTotal uint64
	if memoryStats != nil {
		memPercent = clampFloat(memoryStats.UsedPercent, 0, 100)
		memUsed = memoryStats.Used
		memTotal = memoryStats.Total
	}

	rootPath := "/"
	if m.Paths != nil && strings.TrimSpace(m.Paths.RootPath) != "" {
		rootPath = m.Paths.RootPath
	}
	diskStats, _ := disk.UsageWithContext(ctx, rootPath)
	var diskPercent float64
	var diskUsed, diskTotal uint64
	if diskStats != nil {
		diskPercent = clampFloat(diskStats.UsedPercent, 0, 100)
		diskUsed = diskStats.Used
		diskTotal = diskStats.Total
	}

	loadStats, _ := load.AvgWithContext(ctx)
	var load1, load5, load15 float64
	if loadStats != nil {
		load1 = loadStats.Load1
		load5 = loadStats.Load5
		load15 = loadStats.Load15
	}

	hostInfo, _ := host.InfoWithContext(ctx)
	var uptimeSeconds uint64
	if hostInfo != nil {
		uptimeSeconds = hostInfo.Uptime
	}

	health := computeHealth(cpuPercent, memPercent, diskPercent)
	return &models.SystemTelemetry{
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		MemoryUsed:    memUsed,
		MemoryTotal:   memTotal,
		DiskPercent:   diskPercent,
		DiskUsed:      diskUsed,
		DiskTotal:     diskTotal,
		Load1:         load1,
		Load5:         load5,
		Load15:        load15,
		UptimeSeconds: uptimeSeconds,
		HealthPercent: health,
		SampledAt:     time.Now(),
	}
}

func cpuTotal(stat cpu.TimesStat) float64 {
	return stat.User + stat.System + stat.Nice + stat.Idle + stat.Iowait + stat.Irq + stat.Softirq + stat.Steal + stat.Guest + stat.GuestNice
}

func (m *Monitor) updateCPUSample(total, idle float64) (float64, float64, bool) {
	m.telemetryMu.Lock()
	defer m.telemetryMu.Unlock()
	deltaTotal := total - m.lastCPUTotal
	deltaIdle := idle - m.lastCPUIdle
	hasPrev := m.lastCPUTotal > 0
	m.lastCPUTotal = total
	m.lastCPUIdle = idle
	return deltaTotal, deltaIdle, hasPrev
}

func computeHealth(cpu, mem, disk float64) float64 {
	maxUsage := 0.0
	for _, v := range []float64{cpu, mem, disk} {
		if v <= 0 {
			continue
		}
		if v > maxUsage {
			maxUsage = v
		}
	}
	if maxUsage == 0 {
		return 100
	}
	health := 100 - maxUsage
	return clampFloat(health, 0, 100)
}

func clampFloat(val, min, max float64) float64 {
	if math.IsNaN(val) {
		return min
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// SystemTelemetry returns the last sampled host metrics snapshot.
func (m *Monitor) SystemTelemetry() *models.SystemTelemetry {
	if m == nil {
		return nil
	}
	m.telemetryMu.RLock()
	defer m.telemetryMu.RUnlock()
	if m.systemTelemetry == nil {
		return nil
	}
	copy := *m.systemTelemetry
	return &copy
}

// SystemHealthPercent returns the most recent health score (0-100).
func (m *Monitor) SystemHealthPercent() float64 {
	telemetry := m.SystemTelemetry()
	if telemetry == nil {
		return 100
	}
	return clampFloat(telemetry.HealthPercent, 0, 100)
}
