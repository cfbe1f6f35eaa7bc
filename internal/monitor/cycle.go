package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleetmon/internal/models"
)

// Start launches the scheduled polling loop. Safe to call once; subsequent
// calls are no-ops until Stop.
func (m *Monitor) Start() {
	m.loopMu.Lock()
	if m.loopCancel != nil {
		m.loopMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done
	m.loopMu.Unlock()

	go m.run(ctx, done)
}

// Stop cancels the polling loop and waits for it, the in-flight cycle, and
// any in-flight alert fan-outs. Transition events computed before cancellation
// are still delivered; cancellation never rolls back a detected transition.
// After Stop returns no cycle writes the cache or fires OnCycleComplete.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	cancel := m.loopCancel
	done := m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
	m.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.cycleWG.Wait()
	m.fanoutWG.Wait()
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.PollInterval())
	defer ticker.Stop()

	var cycleCancel context.CancelFunc
	launch := func() {
		// A cycle still running when the next tick arrives is cancelled;
		// its finished targets keep their snapshots and events.
		if cycleCancel != nil {
			cycleCancel()
		}
		cctx, cancel := context.WithCancel(ctx)
		cycleCancel = cancel
		m.cycleWG.Add(1)
		go func() {
			defer m.cycleWG.Done()
			defer cancel()
			for _, tenant := range m.TenantList() {
				if cctx.Err() != nil {
					return
				}
				if _, err := m.RunCycle(cctx, tenant); err != nil && !errors.Is(err, context.Canceled) {
					m.logf("Polling cycle failed for tenant %d: %v", tenant, err)
				}
			}
		}()
	}

	launch()
	for {
		select {
		case <-ctx.Done():
			if cycleCancel != nil {
				cycleCancel()
			}
			return
		case <-ticker.C:
			launch()
		}
	}
}

// RunCycle probes every enabled target for the tenant under the bounded
// worker pool and returns the snapshots produced this cycle. Individual
// target failures never abort the cycle; misconfigured targets are skipped
// and excluded from the snapshot table.
func (m *Monitor) RunCycle(ctx context.Context, tenantID int) ([]models.StatusSnapshot, error) {
	if m.targets == nil {
		return nil, errors.New("target source not configured")
	}
	targets, err := m.targets.ListEnabledTargets(tenantID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	sem := make(chan struct{}, m.concurrency())
	var wg sync.WaitGroup
	var mu sync.Mutex
	snapshots := make([]models.StatusSnapshot, 0, len(targets))

	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(target models.Target) {
			defer wg.Done()
			defer func() { <-sem }()
			snapshot, ok := m.pollTarget(ctx, tenantID, target)
			if !ok {
				return
			}
			mu.Lock()
			snapshots = append(snapshots, snapshot)
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].TargetID < snapshots[j].TargetID })
	if m.OnCycleComplete != nil && len(snapshots) > 0 {
		m.OnCycleComplete(tenantID, snapshots)
	}
	return snapshots, ctx.Err()
}

// pollTarget runs one target's probe -> evaluate -> snapshot -> transition
// pipeline. Returns false when the target produced no snapshot this cycle.
func (m *Monitor) pollTarget(ctx context.Context, tenantID int, target models.Target) (models.StatusSnapshot, bool) {
	prober, ok := m.probers[target.Kind]
	if !ok {
		m.logf("No prober for target %d kind %q; skipping", target.ID, target.Kind)
		return models.StatusSnapshot{}, false
	}

	pctx, cancel := context.WithTimeout(ctx, m.ProbeTimeout())
	defer cancel()

	result, err := prober.Probe(pctx, target)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			m.logf("Target %d (%s) misconfigured, excluded from cycle: %s", target.ID, target.DisplayName, ce.Reason)
		} else {
			m.logf("Probe failed for target %d (%s): %v", target.ID, target.DisplayName, err)
		}
		return models.StatusSnapshot{}, false
	}

	snapshot := Evaluate(result, target)
	m.cache.Put(snapshot)

	if event, changed := m.detector.Observe(target, snapshot); changed {
		m.recordTransition(tenantID, target, event)
	}
	return snapshot, true
}

// recordTransition surfaces the event in the dashboard feed and, when the new
// classification is in the alert set, hands it to the fan-out off the polling
// critical path.
func (m *Monitor) recordTransition(tenantID int, target models.Target, event models.TransitionEvent) {
	label := formatStatusLabel(event.Current)
	m.enqueueDashboardNotification(
		tenantID,
		notificationKindForStatus(event.Current),
		string(event.Current),
		fmt.Sprintf("%s %s", target.DisplayName, label),
		fmt.Sprintf("%s changed from %s to %s", target.DisplayName, event.Previous, event.Current),
		target.ID,
		string(target.Kind),
	)

	if !m.shouldAlert(event.Current) {
		return
	}
	m.fanoutWG.Add(1)
	go func() {
		defer m.fanoutWG.Done()
		m.dispatchAlert(tenantID, event)
	}()
}

func (m *Monitor) logf(format string, args ...interface{}) {
	if m.Log == nil {
		return
	}
	m.Log.Write(fmt.Sprintf(format, args...))
}
