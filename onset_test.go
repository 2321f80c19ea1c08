package quakescan

import "testing"

func TestAllZero(t *testing.T) {
	if !allZero([]float64{0, 0, 0}) {
		t.Error("expected all-zero signal to be detected")
	}
	if allZero([]float64{0, 0, 1}) {
		t.Error("expected a nonzero sample to disqualify allZero")
	}
	if !allZero(nil) {
		t.Error("an empty signal is vacuously all-zero")
	}
}

func TestCosineTaperTapersEdgesLeavesCentre(t *testing.T) {
	signal := make([]float64, 20)
	for i := range signal {
		signal[i] = 1.0
	}
	cosineTaper(signal, 0.5)

	if signal[0] >= 1.0 {
		t.Errorf("first sample should be attenuated, got %v", signal[0])
	}
	if signal[len(signal)-1] >= 1.0 {
		t.Errorf("last sample should be attenuated, got %v", signal[len(signal)-1])
	}
	mid := len(signal) / 2
	if signal[mid] != 1.0 {
		t.Errorf("centre sample should be untouched, got %v", signal[mid])
	}
}

func TestStaLtaClassicFlagsStepIncrease(t *testing.T) {
	n := 200
	signal := make([]float64, n)
	for i := 100; i < n; i++ {
		signal[i] = 10.0
	}
	ratio := staLtaClassic(signal, 5, 50)
	if ratio[149] <= ratio[60] {
		t.Errorf("ratio after the step (%v) should exceed ratio before it (%v)", ratio[149], ratio[60])
	}
}

func TestStaLtaCentredZeroesEdges(t *testing.T) {
	n := 100
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = 1.0
	}
	stw, ltw := 5, 20
	ratio := staLtaCentred(signal, stw, ltw)
	for i := 0; i < ltw-1; i++ {
		if ratio[i] != 0 {
			t.Errorf("ratio[%d] = %v, want 0 (within the LTA warm-up)", i, ratio[i])
		}
	}
	for i := n - stw; i < n; i++ {
		if ratio[i] != 0 {
			t.Errorf("ratio[%d] = %v, want 0 (within the STA cool-down)", i, ratio[i])
		}
	}
}

func TestOnsetPipelineRunProducesNonNegativeOnsets(t *testing.T) {
	sr := 100.0
	n := 500
	signal := make([]float64, n)
	for i := range signal {
		v := 0.0
		if i > 250 {
			v = 5.0
		}
		signal[i] = v
	}

	frame := WaveformFrame{
		SamplingRate: sr,
		Signal: [3][][]float64{
			append([]float64(nil), signal...),
			append([]float64(nil), signal...),
			append([]float64(nil), signal...),
		},
		Availability: []bool{true},
	}

	pipeline := OnsetPipeline{Config: DefaultConfig()}
	bundle := pipeline.Run(frame)

	if len(bundle.POnset) != 1 || len(bundle.SOnset) != 1 {
		t.Fatalf("expected one station, got POnset=%d SOnset=%d", len(bundle.POnset), len(bundle.SOnset))
	}
	for i, v := range bundle.POnset[0] {
		if v < 0 {
			t.Fatalf("POnset[%d] = %v, want >= 0", i, v)
		}
	}
}

func TestOnsetPipelineRunZeroesUnavailableStation(t *testing.T) {
	sr := 100.0
	n := 50
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = 3.0
	}

	frame := WaveformFrame{
		SamplingRate: sr,
		Signal: [3][][]float64{
			append([]float64(nil), signal...),
			append([]float64(nil), signal...),
			append([]float64(nil), signal...),
		},
		Availability: []bool{false},
	}

	pipeline := OnsetPipeline{Config: DefaultConfig()}
	bundle := pipeline.Run(frame)

	if !allZero(bundle.POnset[0]) {
		t.Error("unavailable station should get an all-zero P onset")
	}
	if !allZero(bundle.SOnset[0]) {
		t.Error("unavailable station should get an all-zero S onset")
	}
}
