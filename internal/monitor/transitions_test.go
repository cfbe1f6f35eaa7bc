package monitor

import (
	"sync"
	"testing"
	"time"

	"fleetmon/internal/models"
)

func snapshotWith(targetID int, status models.Status) models.StatusSnapshot {
	return models.StatusSnapshot{
		TargetID:       targetID,
		Classification: status,
		AsOf:           time.Now(),
	}
}

func TestObserveFirstObservationIsTransition(t *testing.T) {
	detector := NewTransitionDetector()
	target := models.Target{ID: 1, DisplayName: "panel-a", Endpoint: "http://a.example"}

	event, changed := detector.Observe(target, snapshotWith(1, models.StatusOnline))
	if !changed {
		t.Fatal("first observation should be reported as a transition")
	}
	if event.Previous != models.StatusUnknown {
		t.Fatalf("expected previous unknown, got %s", event.Previous)
	}
	if event.Current != models.StatusOnline {
		t.Fatalf("expected current online, got %s", event.Current)
	}
}

func TestObserveEmitsOnlyOnChange(t *testing.T) {
	detector := NewTransitionDetector()
	target := models.Target{ID: 2, DisplayName: "panel-b"}

	sequence := []models.Status{
		models.StatusOnline,
		models.StatusOnline,
		models.StatusOffline,
		models.StatusOffline,
		models.StatusOnline,
	}

	var events []models.TransitionEvent
	for _, status := range sequence {
		if event, changed := detector.Observe(target, snapshotWith(2, status)); changed {
			events = append(events, event)
		}
	}

	// First observation, online->offline, offline->online.
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[1].Previous != models.StatusOnline || events[1].Current != models.StatusOffline {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[2].Previous != models.StatusOffline || events[2].Current != models.StatusOnline {
		t.Fatalf("unexpected third event: %+v", events[2])
	}
}

func TestObserveTracksTargetsIndependently(t *testing.T) {
	detector := NewTransitionDetector()
	a := models.Target{ID: 10, DisplayName: "a"}
	b := models.Target{ID: 11, DisplayName: "b"}

	detector.Observe(a, snapshotWith(10, models.StatusOnline))
	detector.Observe(b, snapshotWith(11, models.StatusOffline))

	// A stays online: no event. B recovers: event.
	if _, changed := detector.Observe(a, snapshotWith(10, models.StatusOnline)); changed {
		t.Fatal("unchanged target A should not produce an event")
	}
	event, changed := detector.Observe(b, snapshotWith(11, models.StatusOnline))
	if !changed {
		t.Fatal("target B recovery should produce an event")
	}
	if event.Previous != models.StatusOffline {
		t.Fatalf("expected previous offline for B, got %s", event.Previous)
	}
}

func TestForgetResetsToUnknown(t *testing.T) {
	detector := NewTransitionDetector()
	target := models.Target{ID: 20}

	detector.Observe(target, snapshotWith(20, models.StatusOnline))
	detector.Forget(20)

	event, changed := detector.Observe(target, snapshotWith(20, models.StatusOnline))
	if !changed {
		t.Fatal("observation after Forget should count as first observation")
	}
	if event.Previous != models.StatusUnknown {
		t.Fatalf("expected previous unknown after Forget, got %s", event.Previous)
	}
}

func TestObserveConcurrentTargets(t *testing.T) {
	detector := NewTransitionDetector()

	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			target := models.Target{ID: id}
			detector.Observe(target, snapshotWith(id, models.StatusOnline))
			detector.Observe(target, snapshotWith(id, models.StatusOffline))
		}(i)
	}
	wg.Wait()

	for i := 1; i <= 32; i++ {
		if prev := detector.Previous(i); prev != models.StatusOffline {
			t.Fatalf("target %d: expected offline after both observations, got %s", i, prev)
		}
	}
}
