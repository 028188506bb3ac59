package kernel

import (
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/autoflex/internal/device"
)

const (
	slotFillValue = slotOutPtr + 1 + iota
	slotFillAux
	numFillSlots
)

func fillParams(out *device.Tensor, v0, v1 float64) []Param {
	p := make([]Param, numFillSlots)
	p[slotOut] = TensorParam(out)
	p[slotOutScale] = OutputScale(out)
	p[slotOutPtr] = MaxAbsPtr(out)
	p[slotFillValue] = ScalarParam(v0)
	p[slotFillAux] = ScalarParam(v1)
	return p
}

// FillKernel sets every element of its output to a constant real value.
type FillKernel struct {
	flexParams
	name string
}

func NewFill(name string, out *device.Tensor, value float64) (*FillKernel, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: %s needs an output", ErrDims, name)
	}
	return &FillKernel{flexParams: flexParams{params: fillParams(out, value, 0)}, name: name}, nil
}

func (f *FillKernel) Name() string { return f.name }
func (f *FillKernel) Kind() Kind   { return KindFill }

func (f *FillKernel) Launch() error {
	w := outputWriter(f.params)
	v := f.params[slotFillValue].Scalar
	for i := range w.ints {
		w.put(i, v)
	}
	w.finish()
	return nil
}

// Distribution selects the RngFill sampling law.
type Distribution uint8

const (
	Uniform Distribution = iota // [low, high)
	Normal                      // mean, stddev
)

func (d Distribution) String() string {
	switch d {
	case Uniform:
		return "uniform"
	case Normal:
		return "normal"
	default:
		return fmt.Sprintf("distribution(%d)", uint8(d))
	}
}

// RngFillKernel fills its output with samples. The generator state persists
// across launches, so repeated calls draw fresh values.
type RngFillKernel struct {
	flexParams
	name string
	dist Distribution
	rng  *rand.Rand
}

func NewRngFill(name string, out *device.Tensor, dist Distribution, p0, p1 float64, seed uint64) (*RngFillKernel, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: %s needs an output", ErrDims, name)
	}
	if dist != Uniform && dist != Normal {
		return nil, fmt.Errorf("kernel %s: unsupported distribution %s", name, dist)
	}
	return &RngFillKernel{
		flexParams: flexParams{params: fillParams(out, p0, p1)},
		name:       name,
		dist:       dist,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (r *RngFillKernel) Name() string { return r.name }
func (r *RngFillKernel) Kind() Kind   { return KindRngFill }

func (r *RngFillKernel) Launch() error {
	w := outputWriter(r.params)
	p0, p1 := r.params[slotFillValue].Scalar, r.params[slotFillAux].Scalar
	for i := range w.ints {
		var v float64
		if r.dist == Normal {
			v = p0 + p1*r.rng.NormFloat64()
		} else {
			v = p0 + (p1-p0)*r.rng.Float64()
		}
		w.put(i, v)
	}
	w.finish()
	return nil
}
