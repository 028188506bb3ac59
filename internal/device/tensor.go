package device

import (
	"fmt"

	"github.com/samcharles93/autoflex/internal/flex"
)

// Tensor is a shaped view into a Buffer that converts between real values and
// scaled integers.
type Tensor struct {
	name   string
	buf    *Buffer
	shape  []int
	offset int
	size   int
}

func (t *Tensor) Name() string       { return t.name }
func (t *Tensor) Buffer() *Buffer    { return t.buf }
func (t *Tensor) Entry() *flex.Entry { return t.buf.entry }
func (t *Tensor) Size() int          { return t.size }
func (t *Tensor) Scale() float64     { return t.buf.entry.Scale() }

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Ints returns the integer storage covered by the view.
func (t *Tensor) Ints() []int32 {
	return t.buf.data[t.offset : t.offset+t.size]
}

// Get returns the real values of the view: stored integers times the current
// scale.
func (t *Tensor) Get() []float64 {
	scale := t.Scale()
	ints := t.Ints()
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v) * scale
	}
	return out
}

// Set writes real values into the view. Values are divided by the scale,
// rounded, and clipped to the storage range; the post-write magnitude of the
// view is reported to the entry like a kernel's would be. Clipping is lossy
// and is counted on the entry rather than returned as an error.
func (t *Tensor) Set(values []float64) error {
	if len(values) != t.size {
		return fmt.Errorf("%w: tensor %s has %d elements, got %d", ErrLength, t.name, t.size, len(values))
	}
	e := t.Entry()
	e.ManageBeforeComputation(maxAbsFloat(values))

	scale := e.Scale()
	dt := e.DType()
	ints := t.Ints()
	clipped := 0
	for i, v := range values {
		q, c := dt.Clip(v / scale)
		if c {
			clipped++
		}
		ints[i] = int32(q)
	}
	e.AddClipped(clipped)
	e.ManageAfterComputation(float64(maxAbs(ints)), e.Manager().AutoflexCount())
	return nil
}

// SetScalar fills the whole view with v.
func (t *Tensor) SetScalar(v float64) error {
	values := make([]float64, t.size)
	for i := range values {
		values[i] = v
	}
	return t.Set(values)
}
