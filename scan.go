package quakescan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/alitto/pond"
)

// maxCoalescenceBytes bounds the 4D coalescence allocation; a window that
// would exceed it is refused up front rather than taken to the allocator.
const maxCoalescenceBytes = int64(32) << 30

// CoalescenceSample is one output row of the scanner's time series.
type CoalescenceSample struct {
	T                int
	MaxCoa           float64
	MaxCoaNormalised float64
	ArgmaxIndex      int
}

// CoalescenceScanner runs the 4D stack: for each output time sample and
// each grid cell, sum phase-shifted onset values using the LUT's
// sample-offset tables, tracking the per-sample maximum and argmax cell.
// The worker-pool partitioning follows the same `alitto/pond` pattern a
// per-file GSF conversion pipeline would use, retargeted from per-file
// tasks to per-time-slab tasks.
type CoalescenceScanner struct {
	LUT    LUT
	Config Config
}

// Scan stacks bundle's onset arrays through the LUT and returns one
// CoalescenceSample per output time sample, plus the raw coalescence volume
// (time-major, cell-fastest) for callers that need it (the Locator's
// marginal map).
func (cs CoalescenceScanner) Scan(ctx context.Context, bundle OnsetBundle, prePad, postPad int) ([]CoalescenceSample, []float64, error) {
	nstn := len(cs.LUT.Stations)
	if nstn == 0 {
		return nil, nil, ErrNoStations
	}
	if len(bundle.POnset) != nstn || len(bundle.SOnset) != nstn {
		return nil, nil, errors.Join(ErrShape, fmt.Errorf("onset bundle has %d/%d stations, LUT has %d", len(bundle.POnset), len(bundle.SOnset), nstn))
	}

	nsamples := 0
	if nstn > 0 {
		nsamples = len(bundle.POnset[0])
	}
	if prePad+postPad >= nsamples {
		return nil, nil, errors.Join(ErrWindow, fmt.Errorf("pre_pad+post_pad (%d) >= nsamples (%d)", prePad+postPad, nsamples))
	}

	ncells := cs.LUT.NCells()
	outLen := nsamples - prePad - postPad
	if wantBytes := int64(ncells) * int64(outLen) * 8; wantBytes > maxCoalescenceBytes || wantBytes < 0 {
		return nil, nil, errors.Join(ErrOutOfMemory, fmt.Errorf("coalescence volume needs %d bytes (%d cells x %d samples)", wantBytes, ncells, outLen))
	}
	coa := make([]float64, ncells*outLen)

	tauP := cs.LUT.FetchIndex(PhaseP, bundle.PSamplingRate)
	tauS := cs.LUT.FetchIndex(PhaseS, bundle.PSamplingRate)

	nWorkers := cs.Config.NCores
	if nWorkers < 1 {
		nWorkers = runtime.NumCPU()
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool := pond.New(nWorkers, 0, pond.MinWorkers(nWorkers), pond.Context(pctx))

	slabSize := (outLen + nWorkers - 1) / nWorkers
	if slabSize < 1 {
		slabSize = 1
	}

	var mu sync.Mutex
	var firstErr error

	for slabStart := 0; slabStart < outLen; slabStart += slabSize {
		slabEnd := slabStart + slabSize
		if slabEnd > outLen {
			slabEnd = outLen
		}
		start, end := slabStart, slabEnd
		pool.Submit(func() {
			if err := cs.stackSlab(coa, bundle, tauP, tauS, prePad, start, end, ncells); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}

	pool.StopAndWait()
	if firstErr != nil {
		return nil, nil, firstErr
	}

	samples := cs.postProcess(coa, ncells, outLen, availableStationCount(bundle))
	return samples, coa, nil
}

// stackSlab performs the inner stacking loop for output times [start,end),
// station-outer / cell-inner so one station's offset table stays warm
// across all cells before moving to the next.
func (cs CoalescenceScanner) stackSlab(coa []float64, bundle OnsetBundle, tauP, tauS []int32, prePad, start, end, ncells int) error {
	nstn := len(cs.LUT.Stations)

	for outT := start; outT < end; outT++ {
		t := outT + prePad
		row := coa[outT*ncells : outT*ncells+ncells]

		for s := 0; s < nstn; s++ {
			pOnset := bundle.POnset[s]
			sOnset := bundle.SOnset[s]

			for c := 0; c < ncells; c++ {
				offP := int(tauP[c*nstn+s])
				offS := int(tauS[c*nstn+s])

				pIdx := t + offP
				sIdx := t + offS

				var pv, sv float64
				if pIdx >= 0 && pIdx < len(pOnset) {
					pv = pOnset[pIdx]
					if math.IsNaN(pv) {
						pv = 0
					}
				}
				if sIdx >= 0 && sIdx < len(sOnset) {
					sv = sOnset[sIdx]
					if math.IsNaN(sv) {
						sv = 0
					}
				}

				row[c] += pv + sv
			}
		}
	}
	return nil
}

// postProcess computes max_coa/argmax per time sample. MaxCoa carries the
// raw-track dsnr scaling unconditionally (exp(dsnr/(2*nAvailable)-1));
// MaxCoaNormalised is the separate per-cell-normalised track
// (max_c M_norm[c,t] * ncells, unscaled). Trigger picks whichever
// Config.NormaliseCoalescence selects.
func (cs CoalescenceScanner) postProcess(coa []float64, ncells, outLen, nAvail int) []CoalescenceSample {
	samples := make([]CoalescenceSample, outLen)

	for t := 0; t < outLen; t++ {
		row := coa[t*ncells : t*ncells+ncells]
		maxVal := math.Inf(-1)
		argmax := 0
		sum := 0.0
		for c, v := range row {
			sum += v
			if v > maxVal {
				maxVal = v
				argmax = c
			}
		}

		sample := CoalescenceSample{T: t, ArgmaxIndex: argmax}

		if nAvail > 0 {
			sample.MaxCoa = math.Exp(maxVal/(2*float64(nAvail)) - 1)
		} else {
			sample.MaxCoa = maxVal
		}

		if sum > 0 {
			sample.MaxCoaNormalised = (maxVal / sum) * float64(ncells)
		}

		samples[t] = sample
	}
	return samples
}

// availableStationCount counts stations contributing onset energy: a
// station whose P and S onsets are both all-zero was excluded upstream and
// must not dilute the dsnr scaling denominator.
func availableStationCount(bundle OnsetBundle) int {
	n := 0
	for s := range bundle.POnset {
		if !allZero(bundle.POnset[s]) || !allZero(bundle.SOnset[s]) {
			n++
		}
	}
	return n
}

// DecimateSamples downsamples a coalescence time series to a lower output
// sample rate by keeping every ds-th sample, re-indexing T so the result is
// contiguous at the output rate.
func DecimateSamples(samples []CoalescenceSample, ds int) []CoalescenceSample {
	if ds <= 1 {
		return samples
	}
	out := make([]CoalescenceSample, 0, (len(samples)+ds-1)/ds)
	for i := 0; i < len(samples); i += ds {
		s := samples[i]
		s.T = len(out)
		out = append(out, s)
	}
	return out
}

// RequiredPadding computes the minimum pre/post pad in samples the scanner
// needs: p >= max STA window + 3*max LTA window, q >= 1.05 * max(tau_s),
// plus a round(windowLength*0.06) cosine-taper margin on each side.
func (cs CoalescenceScanner) RequiredPadding(windowLength float64, maxTauS float64) (prePad, postPad int) {
	sr := cs.Config.SamplingRate
	maxSTA := math.Max(cs.Config.POnsetWindow.STA, cs.Config.SOnsetWindow.STA)
	maxLTA := math.Max(cs.Config.POnsetWindow.LTA, cs.Config.SOnsetWindow.LTA)

	p := int(math.Ceil((maxSTA + 3*maxLTA) * sr))
	q := int(math.Ceil(1.05 * maxTauS * sr))

	taperMargin := int(math.Round(windowLength * sr * 0.06))
	return p + taperMargin, q + taperMargin
}
