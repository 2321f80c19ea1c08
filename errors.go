package quakescan

import (
	"errors"
)

// ErrConfig indicates an invariant violation discovered while validating a
// Config or a component built from it (bad corner frequencies, zero cell
// size, an unrecognised projection, ...).
var ErrConfig = errors.New("invalid configuration")

// ErrShape indicates a LUT, velocity model, or waveform batch with
// inconsistent array dimensions (grid counts that don't match a travel-time
// volume, a station list longer than the LUT's recorded station table, ...).
var ErrShape = errors.New("inconsistent array shape")

// ErrWindow indicates an onset or trigger window (STA/LTA, marginal, repeat)
// that cannot be satisfied by the available sample rate or record length.
var ErrWindow = errors.New("window exceeds available samples")

// ErrNoStations indicates a station list, LUT or scan with no stations at
// all.
var ErrNoStations = errors.New("no usable stations")

// ErrBuild indicates a travel-time build failed (fast-marching divergence,
// an unreachable source cell, a malformed velocity layer stack).
var ErrBuild = errors.New("travel-time build failed")

// ErrFit is non-fatal: a Gaussian phase pick or a location fit failed to
// converge. The caller keeps the event with a sentinel/degraded pick rather
// than aborting the run.
var ErrFit = errors.New("fit did not converge")

// ErrIO indicates a failure reading or writing a LUT blob, NonLinLoc file,
// velocity CSV, or TileDB array.
var ErrIO = errors.New("i/o failure")

// ErrOutOfMemory indicates that a coalescence volume would exceed the fixed
// maxCoalescenceBytes budget (scan.go).
var ErrOutOfMemory = errors.New("allocation exceeds memory budget")
