package quakescan

import (
	"testing"
	"time"
)

func triggerTestGrid() Grid3D {
	return Grid3D{
		CellCount:  [3]int{3, 3, 3},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionWGS84},
	}.WithGeographicCentre(0, 0, 0)
}

func TestTriggerRunMergesAboveThresholdRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectionThreshold = 4.0
	cfg.MarginalWindow = 1.0
	cfg.MinimumRepeat = 2.0

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sr := 10.0 // samples per second

	samples := []CoalescenceSample{
		{T: 0, MaxCoa: 5.0, ArgmaxIndex: 0},
		{T: 1, MaxCoa: 8.0, ArgmaxIndex: 1}, // peak of the run
		{T: 2, MaxCoa: 6.0, ArgmaxIndex: 2},
	}

	tr := Trigger{Config: cfg, Grid: triggerTestGrid()}
	events, err := tr.Run(samples, start, sr, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}

	ev := events[0]
	if ev.CoaValue != 8.0 {
		t.Errorf("CoaValue = %v, want 8.0 (the run's peak)", ev.CoaValue)
	}
	wantOrigin := start.Add(100 * time.Millisecond)
	if !ev.OriginTime.Equal(wantOrigin) {
		t.Errorf("OriginTime = %v, want %v", ev.OriginTime, wantOrigin)
	}
	if ev.EventID == "" {
		t.Error("EventID should not be empty")
	}
	if !ev.MinTime.Before(ev.OriginTime) || !ev.MaxTime.After(ev.OriginTime) {
		t.Errorf("expected MinTime < OriginTime < MaxTime, got %v/%v/%v", ev.MinTime, ev.OriginTime, ev.MaxTime)
	}
}

func TestTriggerRunDropsBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectionThreshold = 10.0
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	samples := []CoalescenceSample{{T: 0, MaxCoa: 1.0}}
	tr := Trigger{Config: cfg, Grid: triggerTestGrid()}
	events, err := tr.Run(samples, start, 10.0, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if events != nil {
		t.Fatalf("expected nil events for all-below-threshold input, got %v", events)
	}
}

func TestTriggerRunRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumRepeat = 0
	cfg.MarginalWindow = 1
	tr := Trigger{Config: cfg, Grid: triggerTestGrid()}
	_, err := tr.Run(nil, time.Now(), 10.0, time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error when minimum_repeat < marginal_window")
	}
}

func TestGroupOverlappingMergesAndSplits(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	marginal := 2 * time.Second

	candidates := []triggerCandidate{
		{coaTime: base, minTime: base, maxTime: base.Add(3 * time.Second)},
		// starts within marginal of the previous candidate's maxTime: merges
		{coaTime: base.Add(4 * time.Second), minTime: base.Add(4 * time.Second), maxTime: base.Add(6 * time.Second)},
		// starts well past marginal of the merged group's max: new group
		{coaTime: base.Add(20 * time.Second), minTime: base.Add(20 * time.Second), maxTime: base.Add(21 * time.Second)},
	}

	groups := groupOverlapping(candidates, marginal)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Errorf("len(groups[0]) = %d, want 2", len(groups[0]))
	}
	if len(groups[1]) != 1 {
		t.Errorf("len(groups[1]) = %d, want 1", len(groups[1]))
	}
}

func TestGroupOverlappingJudgesOnlyThePrecedingCandidate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	marginal := 2 * time.Second

	// A's window reaches t+10, B merges with A but its own window ends
	// earlier at t+5; C overlaps A's window but not B's. The continuation
	// check must look only at B, so C starts a new group.
	candidates := []triggerCandidate{
		{coaTime: base, minTime: base, maxTime: base.Add(10 * time.Second)},
		{coaTime: base.Add(3 * time.Second), minTime: base.Add(3 * time.Second), maxTime: base.Add(5 * time.Second)},
		{coaTime: base.Add(9 * time.Second), minTime: base.Add(9 * time.Second), maxTime: base.Add(11 * time.Second)},
	}

	groups := groupOverlapping(candidates, marginal)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2 (C must not merge through A's stale window)", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[1]) != 1 {
		t.Errorf("group sizes = %d/%d, want 2/1", len(groups[0]), len(groups[1]))
	}
}

func TestEventIDDeterministicAndDistinct(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	if eventID(t1) != eventID(t1) {
		t.Fatal("eventID should be deterministic for the same time")
	}
	if eventID(t1) == eventID(t2) {
		t.Fatal("eventID should differ for distinct times")
	}
	for _, bad := range []string{"-", ":", ".", " "} {
		if id := eventID(t1); containsByte(id, bad[0]) {
			t.Errorf("eventID %q should not contain separator %q", id, bad)
		}
	}
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func TestEventsAreIdempotent(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	unique := []Event{{OriginTime: t1}, {OriginTime: t2}}
	if !eventsAreIdempotent(unique) {
		t.Error("expected unique origin times to be idempotent")
	}

	dup := []Event{{OriginTime: t1}, {OriginTime: t1}}
	if eventsAreIdempotent(dup) {
		t.Error("expected duplicate origin times to fail idempotency check")
	}
}
