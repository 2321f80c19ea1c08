package quakescan

import (
	"time"

	"github.com/samber/lo"
)

// ScanSummary is the 4D (x, y, z, t) extent of a scan run, computed over
// grid corners and the scan time window.
type ScanSummary struct {
	StartTime    time.Time
	EndTime      time.Time
	MinLongitude float64
	MaxLongitude float64
	MinLatitude  float64
	MaxLatitude  float64
	MinDepth     float64
	MaxDepth     float64
}

// SummariseScan computes a ScanSummary from a grid and the time span the
// coalescence samples cover.
func SummariseScan(grid Grid3D, start, end time.Time) ScanSummary {
	corners := grid.GridCorners()
	lon0, lat0 := grid.Projection.Unproject(corners[0][0], corners[0][1])
	s := ScanSummary{
		StartTime:    start,
		EndTime:      end,
		MinLongitude: lon0,
		MaxLongitude: lon0,
		MinLatitude:  lat0,
		MaxLatitude:  lat0,
		MinDepth:     corners[0][2],
		MaxDepth:     corners[0][2],
	}
	for _, c := range corners {
		lon, lat := grid.Projection.Unproject(c[0], c[1])
		if lon < s.MinLongitude {
			s.MinLongitude = lon
		}
		if lon > s.MaxLongitude {
			s.MaxLongitude = lon
		}
		if lat < s.MinLatitude {
			s.MinLatitude = lat
		}
		if lat > s.MaxLatitude {
			s.MaxLatitude = lat
		}
		if c[2] < s.MinDepth {
			s.MinDepth = c[2]
		}
		if c[2] > s.MaxDepth {
			s.MaxDepth = c[2]
		}
	}
	return s
}

// QualityInfo reports diagnostic checks over a batch of triggered events:
// min/max contributing station counts, whether that count is consistent
// across events, and any duplicate event origin times (a run-merging
// failure mode the trigger should prevent).
type QualityInfo struct {
	MinMaxStationCount  []int
	ConsistentStations  bool
	DuplicateOriginTime bool
	Duplicates          []time.Time
}

// QInfo computes a QualityInfo over a batch of events.
func QInfo(events []Event) QualityInfo {
	n := len(events)
	counts := make([]int, n)
	times := make([]time.Time, n)
	for i, e := range events {
		counts[i] = e.StationCount
		times[i] = e.OriginTime
	}

	qa := QualityInfo{}
	if n > 0 {
		maxC := lo.Max(counts)
		minC := lo.Min(counts)
		qa.MinMaxStationCount = []int{minC, maxC}
		qa.ConsistentStations = minC == maxC
	}

	duplicates := lo.FindDuplicates(times)
	qa.DuplicateOriginTime = len(duplicates) > 0
	qa.Duplicates = duplicates

	return qa
}
