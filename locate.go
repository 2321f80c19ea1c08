package quakescan

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LocationEstimate is one of the three independent location fits: a centre
// in global projected metres plus 1-sigma errors per axis.
type LocationEstimate struct {
	XYZ   [3]float64
	Error [3]float64
}

// LocatedEvent augments an Event with the triad of location estimates and
// its phase picks: spline is primary, covariance and Gaussian are reported
// alongside.
type LocatedEvent struct {
	Event
	Covariance LocationEstimate
	Gaussian   LocationEstimate
	Spline     LocationEstimate
	Picks      []Pick
}

// Locator re-scans a triggered event's window at full sampling rate and
// refines its hypocentre by covariance, 3D-Gaussian, and spline fits on the
// marginal coalescence map.
type Locator struct {
	LUT     LUT // non-decimated
	Config  Config
	Scanner CoalescenceScanner
	Picker  Picker
}

// Locate re-scans [event.OriginTime - 2*marginal - prePad, event.OriginTime
// + 2*marginal + postPad], drops the event (returning ok=false) if its
// in-window max falls outside OriginTime +/- marginal, and otherwise
// returns the full LocatedEvent.
func (l Locator) Locate(ctx context.Context, event Event, waveforms WaveformSource, pipeline OnsetPipeline) (LocatedEvent, bool, error) {
	marginal := time.Duration(l.Config.MarginalWindow * float64(time.Second))
	sr := l.Config.SamplingRate

	maxTauS := maxTravelTime(l.LUT, PhaseS)
	prePad, postPad := l.Scanner.RequiredPadding(2*l.Config.MarginalWindow, maxTauS)
	prePadDur := time.Duration(float64(prePad) / sr * float64(time.Second))
	postPadDur := time.Duration(float64(postPad) / sr * float64(time.Second))

	winStart := event.OriginTime.Add(-2*marginal - prePadDur)
	winEnd := event.OriginTime.Add(2*marginal + postPadDur)

	frame, err := waveforms.Read(winStart, winEnd, sr)
	if err != nil {
		return LocatedEvent{}, false, errors.Join(ErrIO, err)
	}

	bundle := pipeline.Run(frame)
	samples, coa, err := l.Scanner.Scan(ctx, bundle, prePad, postPad)
	if err != nil {
		return LocatedEvent{}, false, err
	}

	ncells := l.LUT.NCells()
	outLen := len(samples)
	if outLen == 0 {
		return LocatedEvent{}, false, nil
	}

	sampleStart := winStart.Add(time.Duration(float64(prePad) / sr * float64(time.Second)))

	bestT, bestVal := 0, math.Inf(-1)
	for t, s := range samples {
		if s.MaxCoa > bestVal {
			bestVal = s.MaxCoa
			bestT = t
		}
	}
	bestTime := sampleStart.Add(time.Duration(float64(bestT) / sr * float64(time.Second)))
	if bestTime.Before(event.OriginTime.Add(-marginal)) || bestTime.After(event.OriginTime.Add(marginal)) {
		return LocatedEvent{}, false, nil
	}

	marginStartIdx, marginEndIdx := indexRange(sampleStart, sr, outLen, event.OriginTime.Add(-marginal), event.OriginTime.Add(marginal))

	coaMap := marginalCoalescenceMap(coa, ncells, marginStartIdx, marginEndIdx)

	nx, ny, nz := l.LUT.CellCount[0], l.LUT.CellCount[1], l.LUT.CellCount[2]

	cov := l.covarianceFit(coaMap)
	smoothed := gaussianSmooth3D(coaMap, nx, ny, nz, 0.8)
	gauss := l.gaussianFit(smoothed, nx, ny, nz, 7)
	argmaxIdx := argmax(coaMap)
	spline := l.splineFit(coaMap, nx, ny, nz, argmaxIdx, 5, 10)

	updated := event
	updated.CoaXYZ = spline.XYZ
	updated.StationCount = len(l.LUT.Stations)

	picks := l.Picker.PickEvent(updated, l.LUT, bundle, sampleStart, sr)

	return LocatedEvent{
		Event:      updated,
		Covariance: cov,
		Gaussian:   gauss,
		Spline:     spline,
		Picks:      picks,
	}, true, nil
}

func maxTravelTime(lut LUT, phase Phase) float64 {
	m := lut.MapsS
	if phase == PhaseP {
		m = lut.MapsP
	}
	max := 0.0
	for _, v := range m {
		if !math.IsNaN(v) && v > max {
			max = v
		}
	}
	return max
}

func indexRange(sampleStart time.Time, sr float64, outLen int, rangeStart, rangeEnd time.Time) (int, int) {
	startIdx := int(math.Round(rangeStart.Sub(sampleStart).Seconds() * sr))
	endIdx := int(math.Round(rangeEnd.Sub(sampleStart).Seconds()*sr)) + 1
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > outLen {
		endIdx = outLen
	}
	if endIdx <= startIdx {
		endIdx = startIdx + 1
	}
	return startIdx, endIdx
}

// marginalCoalescenceMap computes log(sum_t exp(coa[t,c])) per cell over
// [tMin,tMax), normalised by its max. coa is laid out time-outer/cell-inner,
// matching CoalescenceScanner.Scan's output.
func marginalCoalescenceMap(coa []float64, ncells, tMin, tMax int) []float64 {
	out := make([]float64, ncells)
	for c := 0; c < ncells; c++ {
		max := math.Inf(-1)
		for t := tMin; t < tMax; t++ {
			v := coa[t*ncells+c]
			if v > max {
				max = v
			}
		}
		sum := 0.0
		for t := tMin; t < tMax; t++ {
			sum += math.Exp(coa[t*ncells+c] - max)
		}
		out[c] = max + math.Log(sum)
	}

	peak := math.Inf(-1)
	for _, v := range out {
		if v > peak {
			peak = v
		}
	}
	if peak != 0 {
		for i := range out {
			out[i] /= peak
		}
	}
	return out
}

// covThreshold excludes the low-coalescence tail from the covariance fit:
// only cells above this fraction of the map's peak carry weight.
const covThreshold = 0.88

// covarianceFit computes the weighted mean and covariance of coaMap over
// the cells whose value exceeds covThreshold of the map's peak; location is
// the mean, errors the square roots of the covariance diagonal.
func (l Locator) covarianceFit(coaMap []float64) LocationEstimate {
	cs := l.LUT.CellSize

	peak := math.Inf(-1)
	for _, w := range coaMap {
		if w > peak {
			peak = w
		}
	}
	cut := covThreshold * peak

	var sumW, ex, ey, ez float64
	for c, w := range coaMap {
		if w <= cut {
			continue
		}
		ijk := l.LUT.Index2LocalXYZ(c)
		x := float64(ijk[0]) * cs[0]
		y := float64(ijk[1]) * cs[1]
		z := float64(ijk[2]) * cs[2]
		sumW += w
		ex += w * x
		ey += w * y
		ez += w * z
	}
	if sumW == 0 {
		sumW = 1
	}
	ex /= sumW
	ey /= sumW
	ez /= sumW

	var cxx, cyy, czz float64
	for c, w := range coaMap {
		if w <= cut {
			continue
		}
		ijk := l.LUT.Index2LocalXYZ(c)
		x := float64(ijk[0])*cs[0] - ex
		y := float64(ijk[1])*cs[1] - ey
		z := float64(ijk[2])*cs[2] - ez
		cxx += w * x * x
		cyy += w * y * y
		czz += w * z * z
	}
	cxx /= sumW
	cyy /= sumW
	czz /= sumW

	meanCellUnits := [3]float64{ex / cs[0], ey / cs[1], ez / cs[2]}
	xyz := l.LUT.XYZ2Global(meanCellUnits)

	return LocationEstimate{
		XYZ:   xyz,
		Error: [3]float64{math.Sqrt(cxx), math.Sqrt(cyy), math.Sqrt(czz)},
	}
}

// gaussianSmooth3D convolves vol (flattened nx*ny*nz, Grid3D index order)
// with an isotropic Gaussian kernel of std sigma cells, mirrored and
// reconvolved once to cancel the phase shift a single convolution would
// leave, renormalising to unity max after each pass.
func gaussianSmooth3D(vol []float64, nx, ny, nz int, sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	ksum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		ksum += v
	}
	for i := range kernel {
		kernel[i] /= ksum
	}

	pass := func(in []float64) []float64 {
		out := separableConvolve3D(in, nx, ny, nz, kernel, radius)
		normaliseToMax(out)
		return out
	}

	smoothed := pass(normalisedCopy(vol))
	mirror3D(smoothed, nx, ny, nz)
	smoothed = pass(smoothed)
	mirror3D(smoothed, nx, ny, nz)
	normaliseToMax(smoothed)
	return smoothed
}

func normalisedCopy(v []float64) []float64 {
	out := append([]float64(nil), v...)
	normaliseToMax(out)
	return out
}

func normaliseToMax(v []float64) {
	max := math.Inf(-1)
	for _, x := range v {
		if x > max {
			max = x
		}
	}
	if max == 0 || math.IsInf(max, -1) {
		return
	}
	for i := range v {
		v[i] /= max
	}
}

func mirror3D(v []float64, nx, ny, nz int) {
	out := make([]float64, len(v))
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				src := i*ny*nz + j*nz + k
				dst := (nx-1-i)*ny*nz + (ny-1-j)*nz + (nz - 1 - k)
				out[dst] = v[src]
			}
		}
	}
	copy(v, out)
}

// separableConvolve3D applies kernel along each of the three axes in turn
// (an isotropic Gaussian separates exactly), "same"-mode (output length
// equals input length, edges truncate the kernel rather than pad with
// zero-signal bias).
func separableConvolve3D(in []float64, nx, ny, nz int, kernel []float64, radius int) []float64 {
	at := func(v []float64, i, j, k int) float64 {
		return v[i*ny*nz+j*nz+k]
	}
	set := func(v []float64, i, j, k int, val float64) {
		v[i*ny*nz+j*nz+k] = val
	}

	convAxis := func(src []float64, axis int) []float64 {
		dst := make([]float64, len(src))
		for i := 0; i < nx; i++ {
			for j := 0; j < ny; j++ {
				for k := 0; k < nz; k++ {
					sum, wsum := 0.0, 0.0
					for d := -radius; d <= radius; d++ {
						ii, jj, kk := i, j, k
						switch axis {
						case 0:
							ii += d
						case 1:
							jj += d
						default:
							kk += d
						}
						if ii < 0 || ii >= nx || jj < 0 || jj >= ny || kk < 0 || kk >= nz {
							continue
						}
						w := kernel[d+radius]
						sum += w * at(src, ii, jj, kk)
						wsum += w
					}
					if wsum == 0 {
						wsum = 1
					}
					set(dst, i, j, k, sum/wsum)
				}
			}
		}
		return dst
	}

	out := convAxis(in, 0)
	out = convAxis(out, 1)
	out = convAxis(out, 2)
	return out
}

// gaussianFit fits a general trivariate Gaussian within a +/-win cube
// around coaMap's argmax by linear regression of -log(coaMap) against
// quadratic features, solving for the precision matrix and inverting for
// centre and per-axis sigmas.
func (l Locator) gaussianFit(coaMap []float64, nx, ny, nz, win int) LocationEstimate {
	mx, my, mz := unravel(argmax(coaMap), ny, nz)
	w2 := win

	// subtract the full-map mean so the windowed data decays towards zero
	// away from the peak, as a Gaussian does; without it the background
	// level biases the fitted centre and sigmas.
	mean := 0.0
	for _, v := range coaMap {
		mean += v
	}
	mean /= float64(len(coaMap))

	var xs, ys, zs []float64
	var logVals []float64
	for i := 0; i < nx; i++ {
		if abs(i-mx) > w2 {
			continue
		}
		for j := 0; j < ny; j++ {
			if abs(j-my) > w2 {
				continue
			}
			for k := 0; k < nz; k++ {
				if abs(k-mz) > w2 {
					continue
				}
				idx := i*ny*nz + j*nz + k
				v := coaMap[idx] - mean
				if v < 1e-300 {
					v = 1e-300
				}
				xs = append(xs, float64(i-mx))
				ys = append(ys, float64(j-my))
				zs = append(zs, float64(k-mz))
				logVals = append(logVals, -math.Log(v))
			}
		}
	}

	n := len(xs)
	if n < 10 {
		cs := l.LUT.CellSize
		xyz := l.LUT.XYZ2Global([3]float64{float64(mx), float64(my), float64(mz)})
		return LocationEstimate{XYZ: xyz, Error: [3]float64{cs[0], cs[1], cs[2]}}
	}

	X := mat.NewDense(n, 10, nil)
	Y := mat.NewDense(n, 1, nil)
	for r := 0; r < n; r++ {
		x, y, z := xs[r], ys[r], zs[r]
		X.SetRow(r, []float64{x * x, y * y, z * z, x * y, x * z, y * z, x, y, z, 1})
		Y.Set(r, 0, logVals[r])
	}

	var P mat.Dense
	if err := P.Solve(X, Y); err != nil {
		cs := l.LUT.CellSize
		xyz := l.LUT.XYZ2Global([3]float64{float64(mx), float64(my), float64(mz)})
		return LocationEstimate{XYZ: xyz, Error: [3]float64{cs[0], cs[1], cs[2]}}
	}
	p := make([]float64, 10)
	for i := 0; i < 10; i++ {
		p[i] = P.At(i, 0)
	}

	g := mat.NewSymDense(3, []float64{
		2 * p[0], p[3], p[4],
		p[3], 2 * p[1], p[5],
		p[4], p[5], 2 * p[2],
	})
	h := mat.NewVecDense(3, []float64{p[6], p[7], p[8]})

	var gInv mat.Dense
	if err := gInv.Inverse(g); err != nil {
		cs := l.LUT.CellSize
		xyz := l.LUT.XYZ2Global([3]float64{float64(mx), float64(my), float64(mz)})
		return LocationEstimate{XYZ: xyz, Error: [3]float64{cs[0], cs[1], cs[2]}}
	}
	var loc mat.VecDense
	loc.MulVec(&gInv, h)
	loc.ScaleVec(-1, &loc)

	cx, cy, cz := loc.AtVec(0), loc.AtVec(1), loc.AtVec(2)

	m := mat.NewSymDense(3, []float64{
		p[0], p[3] / 2, p[4] / 2,
		p[3] / 2, p[1], p[5] / 2,
		p[4] / 2, p[5] / 2, p[2],
	})
	var eig mat.EigenSym
	eig.Factorize(m, false)
	values := eig.Values(nil)

	sigmas := make([]float64, 3)
	for i, ev := range values {
		sigmas[i] = math.Sqrt(0.5/math.Max(math.Abs(ev), 1e-10)) / 2
	}

	cs := l.LUT.CellSize
	cellPos := [3]float64{float64(mx) + cx, float64(my) + cy, float64(mz) + cz}
	xyz := l.LUT.XYZ2Global(cellPos)

	return LocationEstimate{
		XYZ:   xyz,
		Error: [3]float64{sigmas[0] * cs[0], sigmas[1] * cs[1], sigmas[2] * cs[2]},
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func unravel(idx, ny, nz int) (int, int, int) {
	k := idx % nz
	j := (idx / nz) % ny
	i := idx / (nz * ny)
	return i, j, k
}

// splineFit fits a cubic RBF over the +/-win cube around argmaxIdx,
// upsamples by factor u, and takes the argmax on the upsampled grid,
// falling back to the coarse argmax if the refined location strays more
// than win/2 cells away.
func (l Locator) splineFit(coaMap []float64, nx, ny, nz, argmaxIdx, win, upscale int) LocationEstimate {
	mx, my, mz := unravel(argmaxIdx, ny, nz)
	w2 := win

	x1, x2 := clampInt(mx-w2, 0, nx), clampInt(mx+w2+1, 0, nx)
	y1, y2 := clampInt(my-w2, 0, ny), clampInt(my+w2+1, 0, ny)
	z1, z2 := clampInt(mz-w2, 0, nz), clampInt(mz+w2+1, 0, nz)

	sx, sy, sz := x2-x1, y2-y1, z2-z1
	if sx != 2*win+1 || sy != 2*win+1 || sz != 2*win+1 {
		return l.coarseSplineFallback(mx, my, mz)
	}

	rbf := newCubicRBF(coaMap, nx, ny, nz, x1, y1, z1, sx, sy, sz)

	bestVal := math.Inf(-1)
	var bestX, bestY, bestZ float64
	steps := (sx-1)*upscale + 1
	for xi := 0; xi < steps; xi++ {
		fx := float64(xi) / float64(upscale)
		for yi := 0; yi < (sy-1)*upscale+1; yi++ {
			fy := float64(yi) / float64(upscale)
			for zi := 0; zi < (sz-1)*upscale+1; zi++ {
				fz := float64(zi) / float64(upscale)
				v := rbf.eval(fx, fy, fz)
				if v > bestVal {
					bestVal = v
					bestX, bestY, bestZ = fx, fy, fz
				}
			}
		}
	}

	gx := bestX + float64(x1)
	gy := bestY + float64(y1)
	gz := bestZ + float64(z1)

	half := float64(win) / 2
	if math.Abs(gx-float64(mx)) > half || math.Abs(gy-float64(my)) > half || math.Abs(gz-float64(mz)) > half {
		return l.coarseSplineFallback(mx, my, mz)
	}

	xyz := l.LUT.XYZ2Global([3]float64{gx, gy, gz})
	return LocationEstimate{XYZ: xyz}
}

func (l Locator) coarseSplineFallback(mx, my, mz int) LocationEstimate {
	xyz := l.LUT.XYZ2Global([3]float64{float64(mx), float64(my), float64(mz)})
	return LocationEstimate{XYZ: xyz}
}

// cubicRBF is a radial basis function interpolator over a small lattice
// with phi(r) = r^3.
type cubicRBF struct {
	centres [][3]float64
	weights []float64
}

func newCubicRBF(vol []float64, nx, ny, nz, x1, y1, z1, sx, sy, sz int) cubicRBF {
	n := sx * sy * sz
	centres := make([][3]float64, 0, n)
	values := make([]float64, 0, n)
	for i := 0; i < sx; i++ {
		for j := 0; j < sy; j++ {
			for k := 0; k < sz; k++ {
				centres = append(centres, [3]float64{float64(i), float64(j), float64(k)})
				idx := (i+x1)*ny*nz + (j+y1)*nz + (k + z1)
				values = append(values, vol[idx])
			}
		}
	}

	A := mat.NewDense(n, n, nil)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			A.Set(a, b, cubicPhi(dist3(centres[a], centres[b])))
		}
	}
	Y := mat.NewDense(n, 1, values)

	var W mat.Dense
	if err := W.Solve(A, Y); err != nil {
		weights := make([]float64, n)
		return cubicRBF{centres: centres, weights: weights}
	}
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = W.At(i, 0)
	}
	return cubicRBF{centres: centres, weights: weights}
}

func (r cubicRBF) eval(x, y, z float64) float64 {
	p := [3]float64{x, y, z}
	sum := 0.0
	for i, c := range r.centres {
		sum += r.weights[i] * cubicPhi(dist3(p, c))
	}
	return sum
}

func cubicPhi(r float64) float64 {
	return r * r * r
}

func dist3(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
