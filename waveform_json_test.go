package quakescan

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadJSONWaveformSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.json")
	contents := `{
		"start_time": "2026-01-01T00:00:00Z",
		"sampling_rate": 100,
		"signal": [[[1,2,3]],[[4,5,6]],[[7,8,9]]],
		"availability": [true]
	}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src, err := LoadJSONWaveformSource(path)
	if err != nil {
		t.Fatalf("LoadJSONWaveformSource: %v", err)
	}

	frame, err := src.Read(time.Time{}, time.Time{}, 100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if frame.SamplingRate != 100 {
		t.Errorf("SamplingRate = %v, want 100", frame.SamplingRate)
	}
	if frame.NStations() != 1 || frame.NSamples() != 3 {
		t.Errorf("NStations/NSamples = %d/%d, want 1/3", frame.NStations(), frame.NSamples())
	}
	if frame.Signal[int(ComponentZ)][0][2] != 9 {
		t.Errorf("Z[0][2] = %v, want 9", frame.Signal[int(ComponentZ)][0][2])
	}
}

func TestLoadJSONWaveformSourceRejectsMissingFile(t *testing.T) {
	if _, err := LoadJSONWaveformSource("/nonexistent/path/frame.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
