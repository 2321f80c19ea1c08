package quakescan

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// jsonWaveformFrame is WaveformFrame's on-disk JSON shape: time.Time and
// the [3][][]float64 signal array both round-trip through encoding/json
// directly, so this only maps the snake_case JSON keys; no validation is
// done on read.
type jsonWaveformFrame struct {
	StartTime    time.Time     `json:"start_time"`
	SamplingRate float64       `json:"sampling_rate"`
	Signal       [3][][]float64 `json:"signal"`
	Availability []bool        `json:"availability"`
}

// JSONWaveformSource implements WaveformSource by reading one pre-extracted
// WaveformFrame from a JSON file, ignoring the requested window bounds. Real
// waveform I/O (miniSEED, continuous archives, ...) is a separate concern;
// this is a minimal, file-based implementation for local runs and tests.
type JSONWaveformSource struct {
	Frame WaveformFrame
}

// LoadJSONWaveformSource reads a WaveformFrame serialised as JSON from
// path.
func LoadJSONWaveformSource(path string) (JSONWaveformSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return JSONWaveformSource{}, errors.Join(ErrIO, err)
	}

	var jf jsonWaveformFrame
	if err := json.Unmarshal(raw, &jf); err != nil {
		return JSONWaveformSource{}, errors.Join(ErrConfig, err)
	}

	frame := WaveformFrame{
		StartTime:    jf.StartTime,
		SamplingRate: jf.SamplingRate,
		Signal:       jf.Signal,
		Availability: jf.Availability,
	}
	return JSONWaveformSource{Frame: frame}, nil
}

// Read returns the loaded frame unconditionally; windowStart/windowEnd are
// accepted only to satisfy WaveformSource.
func (s JSONWaveformSource) Read(windowStart, windowEnd time.Time, samplingRate float64) (WaveformFrame, error) {
	return s.Frame, nil
}
