package monitor

import (
	"sort"
	"sync"

	"fleetmon/internal/models"
)

// SnapshotCache holds the latest computed status per target for synchronous
// read-back by the dashboard. Only the most recent snapshot is kept; writes
// for a given target come from that target's own probe pipeline, the cache
// guards the containing map.
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[int]models.StatusSnapshot
}

// NewSnapshotCache returns an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snapshots: make(map[int]models.StatusSnapshot)}
}

// Put overwrites the stored snapshot for the target.
func (c *SnapshotCache) Put(snapshot models.StatusSnapshot) {
	c.mu.Lock()
	c.snapshots[snapshot.TargetID] = snapshot
	c.mu.Unlock()
}

// Get returns the latest snapshot for a target, if one exists.
func (c *SnapshotCache) Get(targetID int) (models.StatusSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot, ok := c.snapshots[targetID]
	return snapshot, ok
}

// GetAll returns all stored snapshots ordered by target id.
func (c *SnapshotCache) GetAll() []models.StatusSnapshot {
	c.mu.RLock()
	out := make([]models.StatusSnapshot, 0, len(c.snapshots))
	for _, snapshot := range c.snapshots {
		out = append(out, snapshot)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// GetForTenant returns the stored snapshots belonging to one tenant, ordered
// by target id. Dashboard reads go through here so a tenant never sees
// another tenant's fleet.
func (c *SnapshotCache) GetForTenant(tenantID int) []models.StatusSnapshot {
	c.mu.RLock()
	out := make([]models.StatusSnapshot, 0, len(c.snapshots))
	for _, snapshot := range c.snapshots {
		if snapshot.TenantID == tenantID {
			out = append(out, snapshot)
		}
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// Delete removes a target's snapshot (used when a target is removed).
func (c *SnapshotCache) Delete(targetID int) {
	c.mu.Lock()
	delete(c.snapshots, targetID)
	c.mu.Unlock()
}

// Len reports how many targets currently have a snapshot.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
