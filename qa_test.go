package quakescan

import (
	"testing"
	"time"
)

func TestSummariseScanUsesGridExtent(t *testing.T) {
	grid := Grid3D{
		CellCount:  [3]int{3, 3, 3},
		CellSize:   [3]float64{1000, 1000, 1000},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionWGS84},
	}.WithGeographicCentre(10, 20, 0)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	summary := SummariseScan(grid, start, end)

	if summary.StartTime != start || summary.EndTime != end {
		t.Errorf("summary time span = (%v,%v), want (%v,%v)", summary.StartTime, summary.EndTime, start, end)
	}
	if summary.MinLongitude >= summary.MaxLongitude {
		t.Errorf("MinLongitude (%v) should be < MaxLongitude (%v)", summary.MinLongitude, summary.MaxLongitude)
	}
	if summary.MinLatitude >= summary.MaxLatitude {
		t.Errorf("MinLatitude (%v) should be < MaxLatitude (%v)", summary.MinLatitude, summary.MaxLatitude)
	}
	if summary.MinDepth >= summary.MaxDepth {
		t.Errorf("MinDepth (%v) should be < MaxDepth (%v)", summary.MinDepth, summary.MaxDepth)
	}
}

func TestQInfoConsistentStationCounts(t *testing.T) {
	events := []Event{
		{OriginTime: time.Unix(0, 0), StationCount: 5},
		{OriginTime: time.Unix(1, 0), StationCount: 5},
	}
	qa := QInfo(events)
	if !qa.ConsistentStations {
		t.Error("expected ConsistentStations = true for equal counts")
	}
	if qa.MinMaxStationCount[0] != 5 || qa.MinMaxStationCount[1] != 5 {
		t.Errorf("MinMaxStationCount = %v, want [5 5]", qa.MinMaxStationCount)
	}
	if qa.DuplicateOriginTime {
		t.Error("expected DuplicateOriginTime = false for distinct times")
	}
}

func TestQInfoFlagsInconsistentCountsAndDuplicates(t *testing.T) {
	dup := time.Unix(100, 0)
	events := []Event{
		{OriginTime: dup, StationCount: 4},
		{OriginTime: dup, StationCount: 8},
	}
	qa := QInfo(events)
	if qa.ConsistentStations {
		t.Error("expected ConsistentStations = false for differing counts")
	}
	if qa.MinMaxStationCount[0] != 4 || qa.MinMaxStationCount[1] != 8 {
		t.Errorf("MinMaxStationCount = %v, want [4 8]", qa.MinMaxStationCount)
	}
	if !qa.DuplicateOriginTime || len(qa.Duplicates) != 1 {
		t.Errorf("expected one duplicate origin time, got %v", qa.Duplicates)
	}
}

func TestQInfoEmptyEventsIsZeroValue(t *testing.T) {
	qa := QInfo(nil)
	if qa.ConsistentStations {
		t.Error("expected ConsistentStations = false for no events")
	}
	if qa.DuplicateOriginTime {
		t.Error("expected DuplicateOriginTime = false for no events")
	}
}
