package quakescan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// CoalescenceWriter receives each scanned window's coalescence time series.
// Implementations may be slow (object stores, TileDB arrays); Detector
// shields the scanner from them through an AsyncCoalescenceWriter.
type CoalescenceWriter interface {
	WriteWindow(windowStart time.Time, samplingRate float64, samples []CoalescenceSample) error
}

// Detector drives the detect stage: successive waveform windows of
// Config.TimeStep seconds are read, onset-processed, scanned through a
// decimated LUT, and streamed to a CoalescenceWriter in time order.
// Cancellation is cooperative at window boundaries; a cancelled context
// aborts before the next window starts and no partial-window output is
// emitted.
type Detector struct {
	LUT    LUT
	Config Config
	Source WaveformSource
	Writer CoalescenceWriter
	Log    Logger
}

// Run scans [start, end) window by window. Detect-stage errors abort the
// whole run (they are returned, not absorbed), per the pipeline's error
// policy.
func (d Detector) Run(ctx context.Context, start, end time.Time) error {
	if d.Config.TimeStep <= 0 {
		return errors.Join(ErrConfig, errors.New("time_step must be positive"))
	}
	if !end.After(start) {
		return errors.Join(ErrWindow, fmt.Errorf("detect range [%v, %v) is empty", start, end))
	}

	lut := d.LUT
	if d.Config.Decimate != ([3]int{1, 1, 1}) {
		var err error
		lut, err = lut.Decimate(d.Config.Decimate)
		if err != nil {
			return err
		}
	}

	scanner := CoalescenceScanner{LUT: lut, Config: d.Config}
	pipeline := OnsetPipeline{Config: d.Config}

	sr := d.Config.SamplingRate
	step := time.Duration(d.Config.TimeStep * float64(time.Second))
	maxTauS := maxTravelTime(lut, PhaseS)
	prePad, postPad := scanner.RequiredPadding(d.Config.TimeStep, maxTauS)
	prePadDur := time.Duration(float64(prePad) / sr * float64(time.Second))
	postPadDur := time.Duration(float64(postPad) / sr * float64(time.Second))

	for winStart := start; winStart.Before(end); winStart = winStart.Add(step) {
		if err := ctx.Err(); err != nil {
			d.Log.Info().Time("window", winStart).Msg("detect cancelled at window boundary")
			return err
		}

		winEnd := winStart.Add(step)
		if winEnd.After(end) {
			winEnd = end
		}

		frame, err := d.Source.Read(winStart.Add(-prePadDur), winEnd.Add(postPadDur), sr)
		if err != nil {
			return errors.Join(ErrIO, err)
		}

		bundle := pipeline.Run(frame)
		samples, _, err := scanner.Scan(ctx, bundle, prePad, postPad)
		if err != nil {
			return err
		}

		if err := d.Writer.WriteWindow(winStart, sr, samples); err != nil {
			return errors.Join(ErrIO, err)
		}
	}
	return nil
}

// windowRecord is one queued window awaiting the sink.
type windowRecord struct {
	WindowStart  time.Time           `json:"window_start"`
	SamplingRate float64             `json:"sampling_rate"`
	Samples      []CoalescenceSample `json:"samples"`
}

// AsyncCoalescenceWriter decouples the scanner from a slow sink. One
// in-flight window is buffered in memory; if the sink falls further behind,
// subsequent windows spill to a bounded on-disk queue (JSON lines) that is
// drained back to the sink in order. With a spill file configured the
// scanner therefore never blocks on the sink for more than one window; once
// the spill queue is full, WriteWindow returns an error instead.
type AsyncCoalescenceWriter struct {
	Sink CoalescenceWriter

	queue    chan windowRecord
	done     chan error
	spill    *os.File
	spillMax int64
	spilled  bool
}

// NewAsyncCoalescenceWriter starts the drain goroutine. spillPath is the
// on-disk queue file, created here when spillPath is non-empty;
// spillMaxBytes bounds it (a full queue makes WriteWindow return an error,
// it never drops a window silently).
func NewAsyncCoalescenceWriter(sink CoalescenceWriter, spillPath string, spillMaxBytes int64) (*AsyncCoalescenceWriter, error) {
	w := &AsyncCoalescenceWriter{
		Sink:     sink,
		queue:    make(chan windowRecord, 1),
		done:     make(chan error, 1),
		spillMax: spillMaxBytes,
	}
	if spillPath != "" {
		f, err := os.Create(spillPath)
		if err != nil {
			return nil, errors.Join(ErrIO, err)
		}
		w.spill = f
	}

	go w.drain()
	return w, nil
}

func (w *AsyncCoalescenceWriter) drain() {
	for rec := range w.queue {
		if err := w.Sink.WriteWindow(rec.WindowStart, rec.SamplingRate, rec.Samples); err != nil {
			w.done <- err
			return
		}
	}
	w.done <- nil
}

// WriteWindow enqueues one window. When the in-memory buffer is occupied the
// window is appended to the spill file instead, and once anything has
// spilled every later window spills too so replay preserves window order.
// With no spill file configured the call blocks until the sink catches up;
// a full spill file is an error, never a silent drop.
func (w *AsyncCoalescenceWriter) WriteWindow(windowStart time.Time, samplingRate float64, samples []CoalescenceSample) error {
	rec := windowRecord{WindowStart: windowStart, SamplingRate: samplingRate, Samples: samples}

	if !w.spilled {
		select {
		case w.queue <- rec:
			return nil
		default:
		}
		if w.spill == nil {
			w.queue <- rec
			return nil
		}
	}

	if info, err := w.spill.Stat(); err != nil || info.Size() >= w.spillMax {
		return errors.Join(ErrIO, errors.New("coalescence spill queue is full"))
	}
	if err := json.NewEncoder(w.spill).Encode(rec); err != nil {
		return errors.Join(ErrIO, err)
	}
	w.spilled = true
	return nil
}

// Close flushes the spill queue into the sink in order, stops the drain
// goroutine, and returns the first sink error, if any.
func (w *AsyncCoalescenceWriter) Close() error {
	close(w.queue)
	err := <-w.done

	if w.spill != nil {
		name := w.spill.Name()
		if err == nil {
			err = w.replaySpill()
		}
		w.spill.Close()
		os.Remove(name)
	}
	return err
}

func (w *AsyncCoalescenceWriter) replaySpill() error {
	if _, err := w.spill.Seek(0, 0); err != nil {
		return errors.Join(ErrIO, err)
	}
	dec := json.NewDecoder(w.spill)
	for dec.More() {
		var rec windowRecord
		if err := dec.Decode(&rec); err != nil {
			return errors.Join(ErrIO, err)
		}
		if err := w.Sink.WriteWindow(rec.WindowStart, rec.SamplingRate, rec.Samples); err != nil {
			return err
		}
	}
	return nil
}
