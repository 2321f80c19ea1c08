package quakescan

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/optimize"
)

// Pick is a per-station, per-phase arrival time estimate.
// Picked is false when no pick was made (the onset never cleared the
// threshold, the run was too short, or the Gaussian fit diverged);
// PickError/PickValue then carry -1 sentinels and PickTime is the zero
// time. The failure is reported only through Picked: no error is returned
// or recorded for it.
type Pick struct {
	Station      string
	Phase        Phase
	ModelledTime time.Time
	PickTime     time.Time
	PickError    float64
	PickValue    float64
	Picked       bool
}

// Picker fits Gaussian phase arrivals against onset functions.
type Picker struct {
	Config Config
}

// PickEvent produces P and S picks for every station the LUT and bundle
// agree on, around event's location.
func (pk Picker) PickEvent(event Event, lut LUT, bundle OnsetBundle, startTime time.Time, sr float64) []Pick {
	xyz := lut.Global2XYZ(event.CoaXYZ)

	picks := make([]Pick, 0, 2*len(lut.Stations))
	for i, st := range lut.Stations {
		if i >= len(bundle.POnset) || i >= len(bundle.SOnset) {
			continue
		}
		pTau := lut.ValueAt(PhaseP, i, xyz)
		sTau := lut.ValueAt(PhaseS, i, xyz)
		if math.IsNaN(pTau) || math.IsNaN(sTau) {
			continue
		}

		pPred := event.OriginTime.Add(secondsToDuration(pTau))
		sPred := event.OriginTime.Add(secondsToDuration(sTau))

		pWin := pk.phaseWindow(startTime, sr, pPred, sPred, pTau, len(bundle.POnset[i]))
		sWin := pk.phaseWindow(startTime, sr, sPred, pPred, sTau, len(bundle.SOnset[i]))

		picks = append(picks,
			pk.fitPhase(st.Name, PhaseP, bundle.POnset[i], startTime, sr, pPred, pWin, sWin, pk.Config.POnsetWindow.STA),
			pk.fitPhase(st.Name, PhaseS, bundle.SOnset[i], startTime, sr, sPred, sWin, pWin, pk.Config.SOnsetWindow.STA),
		)
	}
	return picks
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// phaseWindow computes the intersection of two candidate windows:
// (a) +/- (tS-tP)/2 around the predicted arrival, and
// (b) +/- (marginal + percent_tt*tau) around it. Returned as a clamped
// [min,max) sample-index range into an onset array of length n.
func (pk Picker) phaseWindow(startTime time.Time, sr float64, pred, other time.Time, tau float64, n int) [2]int {
	predIdx := pred.Sub(startTime).Seconds() * sr
	otherIdx := other.Sub(startTime).Seconds() * sr
	halfSP := math.Abs(otherIdx-predIdx) / 2

	aMin, aMax := predIdx-halfSP, predIdx+halfSP

	bHalf := (pk.Config.MarginalWindow + pk.Config.PercentTT*tau) * sr
	bMin, bMax := predIdx-bHalf, predIdx+bHalf

	winMin := math.Max(aMin, bMin)
	winMax := math.Min(aMax, bMax)

	minI := clampInt(int(math.Round(winMin)), 0, n)
	maxI := clampInt(int(math.Round(winMax)), 0, n)
	if maxI <= minI {
		maxI = minI + 1
		if maxI > n {
			maxI, minI = n, n-1
			if minI < 0 {
				minI = 0
			}
		}
	}
	return [2]int{minI, maxI}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fitPhase searches onset's argmax within ownWin, computes the adaptive
// threshold from the samples outside ownWin/otherWin, and if the peak
// clears it, fits a 1D Gaussian to the contiguous above-threshold run
// around the peak.
func (pk Picker) fitPhase(station string, phase Phase, onset []float64, startTime time.Time, sr float64, pred time.Time, ownWin, otherWin [2]int, staWin float64) Pick {
	pick := Pick{Station: station, Phase: phase, ModelledTime: pred, PickTime: time.Time{}, PickError: -1, PickValue: -1, Picked: false}

	n := len(onset)
	if n == 0 || ownWin[1] <= ownWin[0] {
		return pick
	}

	trim := onset[ownWin[0]:ownWin[1]]
	maxRel := argmax(trim)
	maxIdx := ownWin[0] + maxRel

	outside := make([]float64, 0, n)
	for i, v := range onset {
		if i >= ownWin[0] && i < ownWin[1] {
			continue
		}
		if i >= otherWin[0] && i < otherWin[1] {
			continue
		}
		outside = append(outside, v)
	}

	var threshold float64
	if len(outside) > 0 {
		threshold = percentile(outside, pk.Config.PickThreshold*100)
	}
	windowThreshold := percentile(append([]float64(nil), trim...), 88)
	if windowThreshold > threshold {
		threshold = windowThreshold
	}

	if onset[maxIdx] < threshold || !anyAbove(trim, threshold) {
		return pick
	}

	gauMin, gauMax := contiguousRunAroundPeak(trim, maxRel, threshold)
	gauMin += ownWin[0]
	gauMax += ownWin[0]
	gauMin--
	gauMax += 2
	if gauMin < 0 {
		gauMin = 0
	}
	if gauMax > n {
		gauMax = n
	}
	if gauMax-gauMin < 3 {
		return pick
	}

	xData := make([]float64, gauMax-gauMin)
	yData := make([]float64, gauMax-gauMin)
	for i := gauMin; i < gauMax; i++ {
		xData[i-gauMin] = float64(i) / sr
		yData[i-gauMin] = onset[i]
	}

	halfRange := staWin / 2
	peakIdx := gauMin + argmax(onset[gauMin:gauMax])
	p0 := []float64{onset[peakIdx], float64(peakIdx) / sr, halfRange}

	popt, ok := fitGaussian1D(xData, yData, p0)
	if !ok {
		return pick
	}

	pick.Picked = true
	pick.PickValue = popt[0]
	pick.PickTime = startTime.Add(secondsToDuration(popt[1]))
	pick.PickError = math.Abs(popt[2])
	return pick
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func anyAbove(v []float64, threshold float64) bool {
	for _, x := range v {
		if x > threshold {
			return true
		}
	}
	return false
}

// contiguousRunAroundPeak finds the run of indices (within trim) above
// threshold that contains peakIdx, returning its [min,max] bounds.
func contiguousRunAroundPeak(trim []float64, peakIdx int, threshold float64) (int, int) {
	lo, hi := peakIdx, peakIdx
	for lo > 0 && trim[lo-1] > threshold {
		lo--
	}
	for hi < len(trim)-1 && trim[hi+1] > threshold {
		hi++
	}
	return lo, hi
}

// percentile matches numpy's default linear-interpolation percentile.
func percentile(v []float64, pct float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	pos := pct / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// gaussian1D evaluates a*exp(-(x-mu)^2/(2*sigma^2)).
func gaussian1D(x float64, p []float64) float64 {
	a, mu, sigma := p[0], p[1], p[2]
	if sigma == 0 {
		sigma = 1e-9
	}
	d := x - mu
	return a * math.Exp(-(d*d)/(2*sigma*sigma))
}

// fitGaussian1D performs nonlinear least squares of gaussian1D against
// (xData,yData) starting from p0, via gonum/optimize's Nelder-Mead simplex.
// Returns ok=false on non-convergence, a non-fatal condition the caller
// absorbs rather than propagates.
func fitGaussian1D(xData, yData, p0 []float64) ([]float64, bool) {
	residual := func(p []float64) float64 {
		sum := 0.0
		for i, x := range xData {
			d := gaussian1D(x, p) - yData[i]
			sum += d * d
		}
		return sum
	}

	problem := optimize.Problem{Func: residual}
	result, err := optimize.Minimize(problem, p0, &optimize.Settings{MajorIterations: 500}, &optimize.NelderMead{})
	if err != nil || result == nil {
		return nil, false
	}
	if result.Status != optimize.Success && result.Status != optimize.FunctionConvergence {
		return nil, false
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, false
	}
	return result.X, true
}
