package quakescan

import (
	"math"
)

// OnsetBundle carries per-station P- and S-onset arrays on the same sample
// grid as the originating WaveformFrame. Values are non-negative; a station
// with unavailable channel data gets all-zero onsets rather than a gap.
type OnsetBundle struct {
	PSamplingRate float64
	POnset        [][]float64 // [station][sample]
	SOnset        [][]float64
}

// OnsetPipeline runs the per-channel bandpass + STA/LTA chain that turns raw
// waveforms into phase-arrival onset functions.
type OnsetPipeline struct {
	Config Config
}

// Run produces an OnsetBundle from a WaveformFrame: P onset from the Z
// component, S onset from sqrt((onset_E^2 + onset_N^2)/2).
func (p OnsetPipeline) Run(frame WaveformFrame) OnsetBundle {
	nstn := frame.NStations()
	bundle := OnsetBundle{
		PSamplingRate: frame.SamplingRate,
		POnset:        make([][]float64, nstn),
		SOnset:        make([][]float64, nstn),
	}

	for s := 0; s < nstn; s++ {
		available := s >= len(frame.Availability) || frame.Availability[s]

		e := frame.Signal[int(ComponentE)][s]
		n := frame.Signal[int(ComponentN)][s]
		z := frame.Signal[int(ComponentZ)][s]

		if !available || allZero(z) {
			bundle.POnset[s] = make([]float64, len(z))
		} else {
			filtered := p.bandpass(z, p.Config.PBandpass, frame.SamplingRate)
			bundle.POnset[s] = p.onset(filtered, p.Config.POnsetWindow, frame.SamplingRate)
		}

		if !available || (allZero(e) && allZero(n)) {
			bundle.SOnset[s] = make([]float64, len(z))
		} else {
			fe := p.onset(p.bandpass(e, p.Config.SBandpass, frame.SamplingRate), p.Config.SOnsetWindow, frame.SamplingRate)
			fn := p.onset(p.bandpass(n, p.Config.SBandpass, frame.SamplingRate), p.Config.SOnsetWindow, frame.SamplingRate)
			combined := make([]float64, len(fe))
			for i := range combined {
				combined[i] = math.Sqrt((fe[i]*fe[i] + fn[i]*fn[i]) / 2)
			}
			bundle.SOnset[s] = combined
		}
	}

	return bundle
}

func allZero(signal []float64) bool {
	for _, v := range signal {
		if v != 0 {
			return false
		}
	}
	return true
}

// bandpass applies a per-channel recipe: subtract the first sample (DC
// removal), a 10%-width cosine taper, then a manual
// reverse-then-forward Butterworth IIR pass for zero phase shift. The taper
// runs before the reverse pass, which affects edge samples, so a generic
// filtfilt call would not reproduce it.
func (p OnsetPipeline) bandpass(signal []float64, cfg BandpassConfig, sr float64) []float64 {
	n := len(signal)
	if n == 0 {
		return signal
	}

	out := make([]float64, n)
	first := signal[0]
	for i, v := range signal {
		out[i] = v - first
	}

	cosineTaper(out, 0.1)

	b, a := butterworthBandpass(cfg.Order, cfg.LowCorner, cfg.HighCorner, sr)
	reversed := make([]float64, n)
	for i, v := range out {
		reversed[n-1-i] = v
	}
	reversed = iirFilter(b, a, reversed)

	forward := make([]float64, n)
	for i, v := range reversed {
		forward[n-1-i] = v
	}
	return iirFilter(b, a, forward)
}

// cosineTaper applies an in-place cosine taper of the given fractional
// width to both ends of signal.
func cosineTaper(signal []float64, width float64) {
	n := len(signal)
	taperLen := int(float64(n) * width / 2)
	if taperLen < 1 {
		return
	}
	for i := 0; i < taperLen; i++ {
		w := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(taperLen)))
		signal[i] *= w
		signal[n-1-i] *= w
	}
}

// onset computes the STA/LTA ratio (classic or centred per cfg) and
// compresses it: log(clip(1+ratio, 0.8, +inf)).
func (p OnsetPipeline) onset(signal []float64, win OnsetWindowConfig, sr float64) []float64 {
	stw := int(win.STA * sr)
	ltw := int(win.LTA * sr)
	if stw < 1 {
		stw = 1
	}
	if ltw < 1 {
		ltw = 1
	}

	var ratio []float64
	if p.Config.OnsetCentred {
		ratio = staLtaCentred(signal, stw, ltw)
	} else {
		ratio = staLtaClassic(signal, stw, ltw)
	}

	out := make([]float64, len(ratio))
	for i, r := range ratio {
		v := 1 + r
		if v < 0.8 {
			v = 0.8
		}
		out[i] = math.Log(v)
	}
	return out
}

// staLtaClassic is the standard causal STA/LTA: both windows trail the
// current sample.
func staLtaClassic(signal []float64, stw, ltw int) []float64 {
	n := len(signal)
	sq := make([]float64, n)
	for i, v := range signal {
		sq[i] = v * v
	}

	cum := make([]float64, n+1)
	for i, v := range sq {
		cum[i+1] = cum[i] + v
	}

	out := make([]float64, n)
	const tiny = 1e-12
	for i := 0; i < n; i++ {
		staStart := i - stw + 1
		if staStart < 0 {
			staStart = 0
		}
		ltaStart := i - ltw + 1
		if ltaStart < 0 {
			ltaStart = 0
		}
		sta := (cum[i+1] - cum[staStart]) / float64(i+1-staStart)
		lta := (cum[i+1] - cum[ltaStart]) / float64(i+1-ltaStart)
		if lta < tiny {
			lta = tiny
		}
		out[i] = sta / lta
		if i < ltw-1 {
			out[i] = 0
		}
	}
	return out
}

// staLtaCentred computes STA/LTA with both windows advancing ahead of the
// sample index (a cumulative-sum formulation), so the response is centred
// rather than causal. The first ltw-1 and last stw samples are zeroed.
func staLtaCentred(signal []float64, stw, ltw int) []float64 {
	n := len(signal)
	sq := make([]float64, n)
	for i, v := range signal {
		sq[i] = v * v
	}

	cum := make([]float64, n+1)
	for i, v := range sq {
		cum[i+1] = cum[i] + v
	}

	out := make([]float64, n)
	const tiny = 1e-12
	for i := 0; i < n; i++ {
		staEnd := i + stw
		if staEnd > n {
			staEnd = n
		}
		ltaEnd := i + ltw
		if ltaEnd > n {
			ltaEnd = n
		}
		sta := (cum[staEnd] - cum[i]) / float64(stw)
		lta := (cum[ltaEnd] - cum[i]) / float64(ltw)
		if lta < tiny {
			lta = tiny
		}
		out[i] = sta / lta
	}

	for i := 0; i < ltw-1 && i < n; i++ {
		out[i] = 0
	}
	for i := n - stw; i < n; i++ {
		if i >= 0 {
			out[i] = 0
		}
	}
	return out
}
