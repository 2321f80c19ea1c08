package quakescan

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recordingWriter captures window start times in arrival order.
type recordingWriter struct {
	mu      sync.Mutex
	windows []time.Time
	block   chan struct{}
}

func (r *recordingWriter) WriteWindow(windowStart time.Time, sr float64, samples []CoalescenceSample) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, windowStart)
	return nil
}

// constantSource hands back a frame of the requested length with a small
// constant signal on every channel.
type constantSource struct {
	sr float64
}

func (s constantSource) Read(windowStart, windowEnd time.Time, samplingRate float64) (WaveformFrame, error) {
	n := int(windowEnd.Sub(windowStart).Seconds() * s.sr)
	mk := func() [][]float64 {
		sig := make([]float64, n)
		for i := range sig {
			sig[i] = 1.0
		}
		return [][]float64{sig}
	}
	return WaveformFrame{
		StartTime:    windowStart,
		SamplingRate: s.sr,
		Signal:       [3][][]float64{mk(), mk(), mk()},
		Availability: []bool{true},
	}, nil
}

func detectTestLUT() LUT {
	grid := Grid3D{
		CellCount:  [3]int{1, 1, 1},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionWGS84},
	}
	return LUT{
		Grid3D:   grid,
		Stations: StationList{{Name: "STA1"}},
		MapsP:    []float64{0},
		MapsS:    []float64{0},
	}
}

func TestDetectorRunEmitsWindowsInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingRate = 50
	cfg.TimeStep = 2.0
	cfg.NCores = 1
	cfg.POnsetWindow = OnsetWindowConfig{STA: 0.1, LTA: 0.5}
	cfg.SOnsetWindow = OnsetWindowConfig{STA: 0.1, LTA: 0.5}

	writer := &recordingWriter{}
	d := Detector{
		LUT:    detectTestLUT(),
		Config: cfg,
		Source: constantSource{sr: cfg.SamplingRate},
		Writer: writer,
		Log:    NewLogger(DefaultLoggerConfig()),
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Second)
	if err := d.Run(context.Background(), start, end); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(writer.windows) != 3 {
		t.Fatalf("len(windows) = %d, want 3", len(writer.windows))
	}
	for i, w := range writer.windows {
		want := start.Add(time.Duration(i) * 2 * time.Second)
		if !w.Equal(want) {
			t.Errorf("windows[%d] = %v, want %v (in time order)", i, w, want)
		}
	}
}

func TestDetectorRunStopsAtCancelledContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingRate = 50
	cfg.TimeStep = 1.0
	cfg.POnsetWindow = OnsetWindowConfig{STA: 0.1, LTA: 0.5}
	cfg.SOnsetWindow = OnsetWindowConfig{STA: 0.1, LTA: 0.5}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := &recordingWriter{}
	d := Detector{
		LUT:    detectTestLUT(),
		Config: cfg,
		Source: constantSource{sr: cfg.SamplingRate},
		Writer: writer,
		Log:    NewLogger(DefaultLoggerConfig()),
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := d.Run(ctx, start, start.Add(time.Minute)); err == nil {
		t.Fatal("expected the cancelled context's error")
	}
	if len(writer.windows) != 0 {
		t.Errorf("cancelled run emitted %d windows, want 0 (no partial output)", len(writer.windows))
	}
}

func TestDetectorRunRejectsBadTimeStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeStep = 0
	d := Detector{LUT: detectTestLUT(), Config: cfg, Source: constantSource{sr: 50}, Writer: &recordingWriter{}}
	start := time.Now()
	if err := d.Run(context.Background(), start, start.Add(time.Minute)); err == nil {
		t.Fatal("expected error for zero time_step")
	}
}

func TestAsyncCoalescenceWriterSpillsAndReplaysInOrder(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingWriter{block: make(chan struct{})}

	w, err := NewAsyncCoalescenceWriter(sink, filepath.Join(dir, "spill.jsonl"), 1<<20)
	if err != nil {
		t.Fatalf("NewAsyncCoalescenceWriter: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []CoalescenceSample{{T: 0, MaxCoa: 1}}

	// window 0 is picked up by the drain goroutine and blocks in the sink;
	// window 1 occupies the one-slot buffer; windows 2 and 3 must spill.
	for i := 0; i < 4; i++ {
		if err := w.WriteWindow(base.Add(time.Duration(i)*time.Second), 50, samples); err != nil {
			t.Fatalf("WriteWindow %d: %v", i, err)
		}
	}

	close(sink.block)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.windows) != 4 {
		t.Fatalf("sink received %d windows, want 4", len(sink.windows))
	}
	for i, got := range sink.windows {
		want := base.Add(time.Duration(i) * time.Second)
		if !got.Equal(want) {
			t.Errorf("windows[%d] = %v, want %v (order preserved through the spill)", i, got, want)
		}
	}
}
