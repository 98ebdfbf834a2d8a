package perf

import (
	"sync"
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindRequest, Path: "GET /admin/dashboard", StatusCode: 200, DurationMs: 10, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "GET /admin/dashboard", StatusCode: 200, DurationMs: 30, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "POST /register", StatusCode: 200, DurationMs: 5, Timestamp: now})
	c.Record(Entry{Kind: KindQuery, Path: "participant.Insert", DurationMs: 2, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.Requests != 3 || snap.Queries != 1 {
		t.Fatalf("counts = %d/%d, want 3/1", snap.Requests, snap.Queries)
	}
	if len(snap.SlowestPaths) != 2 {
		t.Fatalf("SlowestPaths len = %d, want 2", len(snap.SlowestPaths))
	}
	top := snap.SlowestPaths[0]
	if top.Path != "GET /admin/dashboard" || top.AvgMs != 20 || top.MaxMs != 30 || top.Count != 2 {
		t.Errorf("top path = %+v", top)
	}
	if len(snap.SlowestQueries) != 1 || snap.SlowestQueries[0].Path != "participant.Insert" {
		t.Errorf("SlowestQueries = %+v", snap.SlowestQueries)
	}
}

// TestCollectorRingOverwrites verifies only the newest entries are aggregated.
func TestCollectorRingOverwrites(t *testing.T) {
	c := NewCollector(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /", DurationMs: float64(i), Timestamp: now})
	}
	if c.TotalRecorded() != 5 {
		t.Errorf("TotalRecorded = %d, want 5", c.TotalRecorded())
	}
	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.SlowestPaths[0].Count != 3 || snap.SlowestPaths[0].AvgMs != 3 {
		t.Errorf("kept = %+v, want entries 2..4", snap.SlowestPaths[0])
	}
}

func TestCollectorPercentiles(t *testing.T) {
	c := NewCollector(200)
	now := time.Now()
	for i := 1; i <= 100; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /p", DurationMs: float64(i), Timestamp: now})
	}
	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.RequestP50Ms < 49 || snap.RequestP50Ms > 51 {
		t.Errorf("P50 = %v, want ~50", snap.RequestP50Ms)
	}
	if snap.RequestP99Ms < 98 || snap.RequestP99Ms > 100 {
		t.Errorf("P99 = %v, want ~99", snap.RequestP99Ms)
	}
}

func TestCollectorSince(t *testing.T) {
	c := NewCollector(10)
	now := time.Now()
	c.Record(Entry{Kind: KindRequest, Path: "GET /old", DurationMs: 1, Timestamp: now.Add(-time.Hour)})
	c.Record(Entry{Kind: KindRequest, Path: "GET /new", DurationMs: 1, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if len(snap.SlowestPaths) != 1 || snap.SlowestPaths[0].Path != "GET /new" {
		t.Errorf("SlowestPaths = %+v", snap.SlowestPaths)
	}
}

func TestCollectorConcurrentRecord(t *testing.T) {
	c := NewCollector(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Record(Entry{Kind: KindQuery, Path: "q", DurationMs: 1, Timestamp: time.Now()})
			}
		}()
	}
	wg.Wait()
	if c.TotalRecorded() != 800 {
		t.Errorf("TotalRecorded = %d, want 800", c.TotalRecorded())
	}
}
