package flex

import "math"

// noCopy triggers go vet's copylocks check for types that must only be used
// by pointer.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Entry is the scale state of one device buffer.
//
// The represented real value of a stored integer i is i*Scale(). Entries are
// created by Manager.MakeEntry and mutated only by the manager's adaptation
// step and by explicit value assignment through the owning buffer.
type Entry struct {
	_ noCopy

	id    int
	name  string
	dtype DType
	mgr   *Manager

	scale     float64
	history   []float64 // ring of real-valued max-abs observations
	head      int
	filled    int
	stepIndex int
	lastMax   float64 // last observation, integer units
	pending   bool
	clipped   int64
	overflows int64
}

func (e *Entry) ID() int           { return e.id }
func (e *Entry) Name() string      { return e.name }
func (e *Entry) DType() DType      { return e.dtype }
func (e *Entry) Scale() float64    { return e.scale }
func (e *Entry) StepIndex() int    { return e.stepIndex }
func (e *Entry) Clipped() int64    { return e.clipped }
func (e *Entry) Pending() bool     { return e.pending }
func (e *Entry) Manager() *Manager { return e.mgr }

// LastMaxAbs returns the most recent observed magnitude in integer units.
func (e *Entry) LastMaxAbs() float64 { return e.lastMax }

// Overflows counts writes that were announced with a magnitude the current
// scale could not represent.
func (e *Entry) Overflows() int64 { return e.overflows }

// History returns the recorded real-valued magnitudes, oldest first.
func (e *Entry) History() []float64 {
	out := make([]float64, 0, e.filled)
	start := (e.head - e.filled + len(e.history)) % len(e.history)
	for i := range e.filled {
		out = append(out, e.history[(start+i)%len(e.history)])
	}
	return out
}

// ManageBeforeComputation is called before a new real value is assigned.
// candidateMaxAbs is the largest real magnitude about to be written. Pending
// adaptation from an earlier cycle is applied first; observations from the
// current cycle wait, so views sharing the entry keep one scale per cycle.
// A write that would overflow
// raises the scale only when the manager pre-adjusts writes; otherwise the
// write is left to clip.
func (e *Entry) ManageBeforeComputation(candidateMaxAbs float64) {
	if e.stepIndex < e.mgr.autoflexCount {
		e.mgr.adaptPending(e)
	}
	m := sanitizeMagnitude(candidateMaxAbs, math.MaxFloat64)
	if m/e.scale <= float64(e.dtype.MaxInt()) {
		return
	}
	e.overflows++
	if !e.mgr.preAdjust || e.mgr.fixedPoint {
		return
	}
	old := e.scale
	e.scale = clampScale(safeScale(m, e.dtype))
	e.mgr.scaleChanged(e, old)
}

// ManageAfterComputation records an observed magnitude (integer storage
// units) taken at the given autoflex step. Zero, negative, NaN and infinite
// values are clamped rather than rejected.
func (e *Entry) ManageAfterComputation(observedMaxAbs float64, step int) {
	m := sanitizeMagnitude(observedMaxAbs, float64(e.dtype.MaxInt()))
	e.lastMax = m
	e.history[e.head] = m * e.scale
	e.head = (e.head + 1) % len(e.history)
	if e.filled < len(e.history) {
		e.filled++
	}
	if step > e.stepIndex {
		e.stepIndex = step
	}
	e.pending = true
}

// AddClipped records n saturated elements written into this entry's storage.
func (e *Entry) AddClipped(n int) {
	if n <= 0 {
		return
	}
	e.clipped += int64(n)
	e.mgr.clipped(e, n)
}

func (e *Entry) historyMax() float64 {
	var m float64
	for i := range e.filled {
		idx := (e.head - 1 - i + len(e.history)) % len(e.history)
		m = max(m, e.history[idx])
	}
	return m
}

func sanitizeMagnitude(v, limit float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0):
		return limit
	case v < 0:
		v = -v
	}
	return min(v, limit)
}

const (
	minScaleExp = -64
	maxScaleExp = 64
)

// safeScale returns the smallest power of two s such that m/s stays strictly
// below 2^(Bits-1), leaving one bit of headroom in the storage format.
func safeScale(m float64, d DType) float64 {
	_, exp := math.Frexp(m)
	e := exp - (d.Bits() - 1)
	return math.Ldexp(1, min(max(e, minScaleExp), maxScaleExp))
}

func clampScale(s float64) float64 {
	lo, hi := math.Ldexp(1, minScaleExp), math.Ldexp(1, maxScaleExp)
	if math.IsNaN(s) || s <= 0 {
		return lo
	}
	return min(max(s, lo), hi)
}
