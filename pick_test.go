package quakescan

import "testing"

func TestArgmax(t *testing.T) {
	if got := argmax([]float64{1, 5, 3, 2}); got != 1 {
		t.Errorf("argmax = %d, want 1", got)
	}
}

func TestAnyAbove(t *testing.T) {
	if !anyAbove([]float64{1, 2, 3}, 2.5) {
		t.Error("expected anyAbove to find 3 > 2.5")
	}
	if anyAbove([]float64{1, 2, 3}, 3) {
		t.Error("anyAbove should use strict >, not >=")
	}
}

func TestContiguousRunAroundPeak(t *testing.T) {
	// below, below, above, above, above, below, above
	trim := []float64{0, 0, 5, 5, 5, 0, 5}
	lo, hi := contiguousRunAroundPeak(trim, 3, 1.0)
	if lo != 2 || hi != 4 {
		t.Errorf("contiguousRunAroundPeak = (%d,%d), want (2,4)", lo, hi)
	}
}

func TestClampInt(t *testing.T) {
	if clampInt(-5, 0, 10) != 0 {
		t.Error("clampInt should clamp below lo")
	}
	if clampInt(15, 0, 10) != 10 {
		t.Error("clampInt should clamp above hi")
	}
	if clampInt(5, 0, 10) != 5 {
		t.Error("clampInt should pass through in-range values")
	}
}

func TestPercentileMatchesKnownQuantiles(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5}
	if got := percentile(v, 50); got != 3 {
		t.Errorf("percentile(50) = %v, want 3", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
}

func TestGaussian1DPeaksAtMu(t *testing.T) {
	p := []float64{2.0, 1.0, 0.5}
	if got := gaussian1D(1.0, p); got != 2.0 {
		t.Errorf("gaussian1D at mu = %v, want amplitude 2.0", got)
	}
	if gaussian1D(1.0, p) <= gaussian1D(1.5, p) {
		t.Error("gaussian1D should be strictly decreasing away from mu")
	}
}

func TestFitGaussian1DRecoversParameters(t *testing.T) {
	want := []float64{3.0, 2.0, 0.5}
	xData := make([]float64, 20)
	yData := make([]float64, 20)
	for i := range xData {
		x := float64(i) * 0.1
		xData[i] = x
		yData[i] = gaussian1D(x, want)
	}

	p0 := []float64{2.5, 1.8, 0.6}
	got, ok := fitGaussian1D(xData, yData, p0)
	if !ok {
		t.Fatal("expected fit to converge on noise-free data")
	}
	for i, w := range want {
		if diff := got[i] - w; diff > 0.1 || diff < -0.1 {
			t.Errorf("param %d = %v, want ~%v", i, got[i], w)
		}
	}
}
