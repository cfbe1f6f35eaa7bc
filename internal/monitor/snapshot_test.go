package monitor

import (
	"sync"
	"testing"

	"fleetmon/internal/models"
)

func TestSnapshotCachePutOverwrites(t *testing.T) {
	cache := NewSnapshotCache()

	cache.Put(models.StatusSnapshot{TargetID: 1, Classification: models.StatusOnline})
	cache.Put(models.StatusSnapshot{TargetID: 1, Classification: models.StatusOffline})

	snapshot, ok := cache.Get(1)
	if !ok {
		t.Fatal("expected snapshot for target 1")
	}
	if snapshot.Classification != models.StatusOffline {
		t.Fatalf("expected latest write to win, got %s", snapshot.Classification)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", cache.Len())
	}
}

func TestSnapshotCacheGetAllSorted(t *testing.T) {
	cache := NewSnapshotCache()
	for _, id := range []int{5, 1, 3} {
		cache.Put(models.StatusSnapshot{TargetID: id})
	}

	all := cache.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}
	for i, want := range []int{1, 3, 5} {
		if all[i].TargetID != want {
			t.Fatalf("expected target %d at position %d, got %d", want, i, all[i].TargetID)
		}
	}
}

func TestSnapshotCacheGetForTenant(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put(models.StatusSnapshot{TargetID: 1, TenantID: 1})
	cache.Put(models.StatusSnapshot{TargetID: 2, TenantID: 2})
	cache.Put(models.StatusSnapshot{TargetID: 3, TenantID: 1})

	mine := cache.GetForTenant(1)
	if len(mine) != 2 || mine[0].TargetID != 1 || mine[1].TargetID != 3 {
		t.Fatalf("expected tenant 1's snapshots sorted by id, got %+v", mine)
	}
	if len(cache.GetForTenant(3)) != 0 {
		t.Fatal("unknown tenant should see no snapshots")
	}
}

func TestSnapshotCacheDelete(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put(models.StatusSnapshot{TargetID: 7})
	cache.Delete(7)

	if _, ok := cache.Get(7); ok {
		t.Fatal("expected snapshot to be removed")
	}
}

func TestSnapshotCacheConcurrentAccess(t *testing.T) {
	cache := NewSnapshotCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			cache.Put(models.StatusSnapshot{TargetID: id, Classification: models.StatusOnline})
		}(i)
		go func(id int) {
			defer wg.Done()
			cache.Get(id)
			cache.GetAll()
		}(i)
	}
	wg.Wait()

	if cache.Len() != 16 {
		t.Fatalf("expected 16 entries, got %d", cache.Len())
	}
}
