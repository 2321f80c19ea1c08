package quakescan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// BandpassConfig names the corner frequencies and order of a zero-phase
// Butterworth bandpass applied to one phase's onset channel.
type BandpassConfig struct {
	LowCorner  float64 `json:"low_corner"`
	HighCorner float64 `json:"high_corner"`
	Order      int     `json:"order"`
}

// OnsetWindowConfig names the STA/LTA window lengths, in seconds, for one
// phase.
type OnsetWindowConfig struct {
	STA float64 `json:"sta"`
	LTA float64 `json:"lta"`
}

// Config is the full runtime surface enumerated in the external interfaces
// section: bandpass corners, onset windows, trigger thresholds, decimation,
// and the knobs governing normalisation and parallelism. Modeled on the
// builder-with-defaults pattern used for tuning structs elsewhere in the
// retrieval pack: DefaultConfig seeds the defaults (listed in its doc
// comment), and Validate raises ErrConfig on any invariant violation.
type Config struct {
	PBandpass            BandpassConfig    `json:"p_bp_filter"`
	SBandpass            BandpassConfig    `json:"s_bp_filter"`
	POnsetWindow         OnsetWindowConfig `json:"p_onset_win"`
	SOnsetWindow         OnsetWindowConfig `json:"s_onset_win"`
	DetectionThreshold   float64           `json:"detection_threshold"`
	MarginalWindow       float64           `json:"marginal_window"`
	MinimumRepeat        float64           `json:"minimum_repeat"`
	PickThreshold        float64           `json:"pick_threshold"`
	PercentTT            float64           `json:"percent_tt"`
	SamplingRate         float64           `json:"sampling_rate"`
	Decimate             [3]int            `json:"decimate"`
	OnsetCentred         bool              `json:"onset_centred"`
	NormaliseCoalescence bool              `json:"normalise_coalescence"`
	TimeStep             float64           `json:"time_step"`
	NCores               int               `json:"n_cores"`
}

// DefaultConfig returns a Config with conservative defaults: a 2-16 Hz P
// bandpass, 4-14 Hz S bandpass, 0.2/1.0s onset windows, unit decimation,
// and a single worker.
func DefaultConfig() Config {
	return Config{
		PBandpass:            BandpassConfig{LowCorner: 2, HighCorner: 16, Order: 4},
		SBandpass:            BandpassConfig{LowCorner: 4, HighCorner: 14, Order: 4},
		POnsetWindow:         OnsetWindowConfig{STA: 0.2, LTA: 1.0},
		SOnsetWindow:         OnsetWindowConfig{STA: 0.2, LTA: 1.0},
		DetectionThreshold:   4.0,
		MarginalWindow:       2.0,
		MinimumRepeat:        2.0,
		PickThreshold:        1.0,
		PercentTT:            0.1,
		SamplingRate:         1000.0,
		Decimate:             [3]int{1, 1, 1},
		OnsetCentred:         false,
		NormaliseCoalescence: false,
		TimeStep:             1.0,
		NCores:               1,
	}
}

// LoadConfig reads a JSON-encoded Config from path, filling any absent
// fields from DefaultConfig before validating.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Join(ErrIO, err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Join(ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the invariants a Config must satisfy before it is used to
// build any component.
func (c Config) Validate() error {
	if c.PBandpass.LowCorner <= 0 || c.PBandpass.HighCorner <= c.PBandpass.LowCorner {
		return errors.Join(ErrConfig, fmt.Errorf("p_bp_filter: invalid corners %v", c.PBandpass))
	}
	if c.SBandpass.LowCorner <= 0 || c.SBandpass.HighCorner <= c.SBandpass.LowCorner {
		return errors.Join(ErrConfig, fmt.Errorf("s_bp_filter: invalid corners %v", c.SBandpass))
	}
	if c.POnsetWindow.STA <= 0 || c.POnsetWindow.LTA <= c.POnsetWindow.STA {
		return errors.Join(ErrConfig, fmt.Errorf("p_onset_win: invalid window %v", c.POnsetWindow))
	}
	if c.SOnsetWindow.STA <= 0 || c.SOnsetWindow.LTA <= c.SOnsetWindow.STA {
		return errors.Join(ErrConfig, fmt.Errorf("s_onset_win: invalid window %v", c.SOnsetWindow))
	}
	if c.MinimumRepeat < c.MarginalWindow {
		return errors.Join(ErrConfig, errors.New("minimum_repeat must be >= marginal_window"))
	}
	if c.PickThreshold < 0 || c.PickThreshold > 1 {
		return errors.Join(ErrConfig, errors.New("pick_threshold must be within [0,1]"))
	}
	if c.PercentTT < 0 || c.PercentTT > 1 {
		return errors.Join(ErrConfig, errors.New("percent_tt must be within [0,1]"))
	}
	if c.SamplingRate <= 0 {
		return errors.Join(ErrConfig, errors.New("sampling_rate must be positive"))
	}
	for axis, d := range c.Decimate {
		if d < 1 {
			return errors.Join(ErrConfig, fmt.Errorf("decimate axis %d must be >= 1", axis))
		}
	}
	// NCores < 1 is allowed: the scanner substitutes one worker per CPU.

	return nil
}
