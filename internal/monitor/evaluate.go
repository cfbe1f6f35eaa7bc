package monitor

import (
	"fleetmon/internal/models"
)

// Evaluate converts a probe result and the target's capacity into a status
// snapshot. It is a pure function: classification depends only on
// reachability and the computed utilization percentage.
//
// A zero (or negative) capacity limit forces Offline with utilization 0
// regardless of reachability: a target that cannot hold any sessions is never
// meaningfully online, and guarding here keeps the division safe.
func Evaluate(result models.ProbeResult, target models.Target) models.StatusSnapshot {
	snapshot := models.StatusSnapshot{
		TargetID:    target.ID,
		TenantID:    target.TenantID,
		DisplayName: target.DisplayName,
		GroupKey:    target.GroupKey,
		AsOf:        result.Timestamp,
	}

	if target.CapacityLimit <= 0 {
		snapshot.Classification = models.StatusOffline
		snapshot.UtilizationPercent = 0
		return snapshot
	}

	load := result.CurrentLoad
	if load < 0 {
		load = 0
	}
	// Integer division floors for non-negative operands.
	snapshot.UtilizationPercent = load * 100 / target.CapacityLimit

	switch {
	case !result.Reachable:
		snapshot.Classification = models.StatusOffline
	case snapshot.UtilizationPercent >= 100:
		snapshot.Classification = models.StatusOverloaded
	default:
		snapshot.Classification = models.StatusOnline
	}
	return snapshot
}
