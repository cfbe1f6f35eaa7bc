package monitor

import (
	"sync"
	"time"

	"fleetmon/internal/models"
)

// TransitionDetector tracks the previous classification per target and emits
// an event only when the classification changes between consecutive polls.
//
// State lives in memory for the lifetime of the process. After a restart every
// target re-observes Unknown -> current once, which can produce a duplicate or
// missed alert; that is a documented limitation, not something this component
// papers over.
type TransitionDetector struct {
	mu       sync.Mutex
	previous map[int]models.Status
}

// NewTransitionDetector returns a detector with every target in the Unknown state.
func NewTransitionDetector() *TransitionDetector {
	return &TransitionDetector{previous: make(map[int]models.Status)}
}

// Observe records the new snapshot for the target and reports whether the
// classification changed. The first observation of a target always counts as
// a change (Unknown -> current).
func (d *TransitionDetector) Observe(target models.Target, snapshot models.StatusSnapshot) (models.TransitionEvent, bool) {
	d.mu.Lock()
	prev, seen := d.previous[target.ID]
	if !seen {
		prev = models.StatusUnknown
	}
	d.previous[target.ID] = snapshot.Classification
	d.mu.Unlock()

	if prev == snapshot.Classification {
		return models.TransitionEvent{}, false
	}
	return models.TransitionEvent{
		TargetID:    target.ID,
		DisplayName: target.DisplayName,
		Endpoint:    target.Endpoint,
		Previous:    prev,
		Current:     snapshot.Classification,
		OccurredAt:  time.Now(),
	}, true
}

// Previous returns the last recorded classification for a target, or Unknown
// when the target has never been observed.
func (d *TransitionDetector) Previous(targetID int) models.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.previous[targetID]; ok {
		return prev
	}
	return models.StatusUnknown
}

// Forget drops the stored state for a target (used when a target is removed).
func (d *TransitionDetector) Forget(targetID int) {
	d.mu.Lock()
	delete(d.previous, targetID)
	d.mu.Unlock()
}
