package quakescan

import "math"

// butterworthBandpass designs a digital Butterworth bandpass filter of the
// given order between lowCorner and highCorner Hz at sampling rate sr,
// returning transposed-direct-form-II numerator/denominator coefficients.
// Matches scipy's `butter(order, [2*lc/sr, 2*hc/sr], btype="band")` via the
// standard analogue-prototype + bilinear-transform construction.
func butterworthBandpass(order int, lowCorner, highCorner, sr float64) (b, a []float64) {
	nyq := sr / 2
	wLow := warpFrequency(lowCorner / nyq)
	wHigh := warpFrequency(highCorner / nyq)
	bw := wHigh - wLow
	w0 := math.Sqrt(wLow * wHigh)

	// Analogue lowpass Butterworth poles (order poles on the unit circle in
	// the left half-plane), transformed to a bandpass prototype, then
	// bilinear-transformed to the digital domain and combined in series
	// (second-order-section equivalent collapsed into one transfer
	// function via polynomial multiplication).
	b = []float64{1}
	a = []float64{1}

	for k := 0; k < order; k++ {
		theta := math.Pi * (2*float64(k) + 1) / (2 * float64(order))
		pReal := -math.Sin(theta)
		pImag := math.Cos(theta)

		// bandpass-transform this lowpass pole pair into two bandpass poles
		// via s -> (s^2 + w0^2) / (bw * s), then bilinear-transform
		// (s = 2*(z-1)/(z+1)) each resulting second-order section.
		bNum, bDen := bandpassBilinearSection(pReal, pImag, bw, w0)
		b = polyMul(b, bNum)
		a = polyMul(a, bDen)
	}

	// normalise so the passband centre has unity gain
	scale := a[0]
	for i := range b {
		b[i] /= scale
	}
	for i := range a {
		a[i] /= scale
	}
	return b, a
}

// warpFrequency applies the bilinear transform's frequency pre-warping,
// tan(pi*f/2) for a normalised digital frequency f in (0,1).
func warpFrequency(f float64) float64 {
	return math.Tan(math.Pi * f / 2)
}

// bandpassBilinearSection turns one complex-conjugate analogue lowpass pole
// (pReal +/- i*pImag) into a discrete-time second-order bandpass section's
// numerator/denominator, via the s-plane bandpass transform followed by the
// bilinear transform s = 2(z-1)/(z+1).
func bandpassBilinearSection(pReal, pImag, bw, w0 float64) (num, den []float64) {
	// Analogue bandpass poles from s_lp -> s_bp via
	// s_bp^2 - bw*s_lp*s_bp + w0^2 = 0, solved per lowpass pole s_lp.
	slpReal, slpImag := pReal, pImag

	// Quadratic in s_bp: s^2 - (bw*slp) s + w0^2 = 0
	cReal := bw * slpReal
	cImag := bw * slpImag
	discReal := cReal*cReal - cImag*cImag - 4*w0*w0
	discImag := 2 * cReal * cImag
	sqrtReal, sqrtImag := complexSqrt(discReal, discImag)

	s1r := (cReal + sqrtReal) / 2
	s1i := (cImag + sqrtImag) / 2
	s2r := (cReal - sqrtReal) / 2
	s2i := (cImag - sqrtImag) / 2

	// Bilinear-transform each analogue pole s0 = s1, s2 to a digital pole
	// z0 = (2+s0)/(2-s0), producing one real second-order digital
	// denominator from the conjugate pair s1,s2 (s2 = conj(s1) when the
	// lowpass pole pair is conjugate, which it is by construction here).
	z1r, z1i := bilinearPoint(s1r, s1i)
	_, _ = bilinearPoint(s2r, s2i)

	// Denominator: (1 - z1 z^-1)(1 - conj(z1) z^-1) = 1 - 2*Re(z1) z^-1 + |z1|^2 z^-2
	den = []float64{1, -2 * z1r, z1r*z1r + z1i*z1i}

	// Numerator: a bandpass section has a zero at z=1 and z=-1 (DC and
	// Nyquist nulled), i.e. (1 - z^-2), scaled by bw for unity passband
	// contribution per section.
	num = []float64{bw, 0, -bw}

	return num, den
}

// bilinearPoint maps an analogue s-plane point to the digital z-plane via
// z = (2+s)/(2-s).
func bilinearPoint(sr, si float64) (zr, zi float64) {
	numR, numI := 2+sr, si
	denR, denI := 2-sr, -si
	denMag2 := denR*denR + denI*denI
	zr = (numR*denR + numI*denI) / denMag2
	zi = (numI*denR - numR*denI) / denMag2
	return zr, zi
}

// complexSqrt returns the principal square root of a complex number.
func complexSqrt(re, im float64) (float64, float64) {
	r := math.Hypot(re, im)
	sr := math.Sqrt((r + re) / 2)
	si := math.Sqrt((r - re) / 2)
	if im < 0 {
		si = -si
	}
	return sr, si
}

// polyMul multiplies two polynomials given as coefficient slices in
// descending power order.
func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// iirFilter applies a direct-form-II transposed IIR filter with
// coefficients b (numerator) / a (denominator, a[0] normalised to 1) to
// signal, used twice (reverse then forward) by OnsetPipeline.bandpass for
// zero-phase filtering.
func iirFilter(b, a, signal []float64) []float64 {
	n := len(signal)
	out := make([]float64, n)
	order := len(a) - 1
	if order < len(b)-1 {
		order = len(b) - 1
	}
	z := make([]float64, order)

	for i := 0; i < n; i++ {
		x := signal[i]
		y := b[0]*x + z[0]
		for k := 1; k < order; k++ {
			bk := 0.0
			if k < len(b) {
				bk = b[k]
			}
			ak := 0.0
			if k < len(a) {
				ak = a[k]
			}
			z[k-1] = bk*x + z[k] - ak*y
		}
		last := order - 1
		bLast := 0.0
		if last+1 < len(b) {
			bLast = b[last+1]
		}
		aLast := 0.0
		if last+1 < len(a) {
			aLast = a[last+1]
		}
		if order > 0 {
			z[last] = bLast*x - aLast*y
		}
		out[i] = y
	}
	return out
}
