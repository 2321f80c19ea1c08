package quakescan

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Event is a located event candidate: an EventID derived from its chosen
// coalescence time, the coalescence value and cell at that time, and the
// [MinTime,MaxTime] trigger window carried forward into Locator for the
// re-scan. StationCount is filled in after location, once the contributing
// station set for the event's window is known; QInfo (qa.go) consumes it
// directly.
type Event struct {
	EventID      string
	OriginTime   time.Time // time of peak coalescence ("coa_time")
	CoaValue     float64
	CoaXYZ       [3]float64 // global projected metres
	MinTime      time.Time
	MaxTime      time.Time
	StationCount int
}

// Trigger groups a CoalescenceSample stream into Event candidates: run
// detection over samples above threshold, per-run candidate extraction, then
// successive-candidate merging by marginal-window overlap.
type Trigger struct {
	Config Config
	Grid   Grid3D
}

// triggerCandidate is one contiguous above-threshold run before the
// successive-merge pass collapses overlapping candidates into Events.
type triggerCandidate struct {
	coaTime  time.Time
	coaValue float64
	coaXYZ   [3]float64
	minTime  time.Time
	maxTime  time.Time
}

// Run scans samples (in output-sample-rate order, starting at startTime),
// keeps the ones within [rangeStart,rangeEnd] whose coalescence value (raw
// or normalised, per cfg.NormaliseCoalescence) clears DetectionThreshold,
// and returns the merged Event set. An empty result is not an error.
func (tr Trigger) Run(samples []CoalescenceSample, startTime time.Time, outputSampleRate float64, rangeStart, rangeEnd time.Time) ([]Event, error) {
	if tr.Config.MinimumRepeat < tr.Config.MarginalWindow {
		return nil, errors.Join(ErrConfig, errors.New("minimum_repeat must be >= marginal_window"))
	}
	if outputSampleRate <= 0 {
		return nil, errors.Join(ErrConfig, errors.New("output sample rate must be positive"))
	}

	type timedSample struct {
		t     time.Time
		value float64
		xyz   [3]float64
	}

	step := time.Duration(float64(time.Second) / outputSampleRate)

	timed := make([]timedSample, 0, len(samples))
	for _, s := range samples {
		t := startTime.Add(time.Duration(float64(s.T) * float64(time.Second) / outputSampleRate))
		if t.Before(rangeStart) || t.After(rangeEnd) {
			continue
		}
		value := s.MaxCoa
		if tr.Config.NormaliseCoalescence {
			value = s.MaxCoaNormalised
		}
		if value < tr.Config.DetectionThreshold {
			continue
		}
		timed = append(timed, timedSample{t: t, value: value, xyz: tr.Grid.Index2XYZ(s.ArgmaxIndex)})
	}

	if len(timed) == 0 {
		return nil, nil
	}

	sort.Slice(timed, func(i, j int) bool { return timed[i].t.Before(timed[j].t) })

	marginal := time.Duration(tr.Config.MarginalWindow * float64(time.Second))
	repeat := time.Duration(tr.Config.MinimumRepeat * float64(time.Second))

	var candidates []triggerCandidate
	c := 0
	for c < len(timed) {
		d := c
		for d+1 < len(timed) && timed[d+1].t.Sub(timed[d].t) == step {
			d++
		}

		valIdx := c
		for i := c; i <= d; i++ {
			if timed[i].value > timed[valIdx].value {
				valIdx = i
			}
		}

		tMin := timed[c].t
		tMax := timed[d].t
		tVal := timed[valIdx].t

		if tVal.Sub(tMin) < marginal {
			tMin = tVal.Add(-marginal - repeat)
		} else {
			tMin = tMin.Add(-repeat)
		}
		if tMax.Sub(tVal) < marginal {
			tMax = tVal.Add(marginal + repeat)
		} else {
			tMax = tMax.Add(repeat)
		}

		candidates = append(candidates, triggerCandidate{
			coaTime:  tVal,
			coaValue: timed[valIdx].value,
			coaXYZ:   timed[valIdx].xyz,
			minTime:  tMin,
			maxTime:  tMax,
		})

		c = d + 1
	}

	groups := groupOverlapping(candidates, marginal)

	events := make([]Event, 0, len(groups))
	for _, g := range groups {
		best := 0
		minT, maxT := g[0].minTime, g[0].maxTime
		for i, cand := range g {
			if cand.coaValue > g[best].coaValue {
				best = i
			}
			if cand.minTime.Before(minT) {
				minT = cand.minTime
			}
			if cand.maxTime.After(maxT) {
				maxT = cand.maxTime
			}
		}
		chosen := g[best]
		events = append(events, Event{
			EventID:    eventID(chosen.coaTime),
			OriginTime: chosen.coaTime,
			CoaValue:   chosen.coaValue,
			CoaXYZ:     tr.Grid.XYZ2Global(chosen.coaXYZ),
			MinTime:    minT,
			MaxTime:    maxT,
		})
	}

	return events, nil
}

// groupOverlapping merges successive candidates whose windows overlap:
// next.coaTime - marginal <= previous.maxTime, judged against the
// immediately preceding candidate only, never a running maximum over the
// group.
func groupOverlapping(candidates []triggerCandidate, marginal time.Duration) [][]triggerCandidate {
	if len(candidates) == 0 {
		return nil
	}

	var groups [][]triggerCandidate
	current := []triggerCandidate{candidates[0]}

	for i := 1; i < len(candidates); i++ {
		cand := candidates[i]
		prev := current[len(current)-1]
		if !cand.coaTime.Add(-marginal).After(prev.maxTime) {
			current = append(current, cand)
			continue
		}
		groups = append(groups, current)
		current = []triggerCandidate{cand}
	}
	groups = append(groups, current)
	return groups
}

// eventID derives an identifier from t by formatting it ISO-like and
// stripping separators.
func eventID(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000000Z")
	r := strings.NewReplacer("-", "", ":", "", ".", "", " ", "", "Z", "", "T", "")
	return r.Replace(s)
}

// eventsAreIdempotent reports whether a merged event set is stable under
// re-triggering: all OriginTimes distinct, so feeding the events back as
// single-sample CoalescenceSamples reproduces the same set.
func eventsAreIdempotent(events []Event) bool {
	times := lo.Map(events, func(e Event, _ int) time.Time { return e.OriginTime })
	return len(lo.Uniq(times)) == len(times)
}
