package kernel

import (
	"github.com/samcharles93/autoflex/internal/device"
	"github.com/samcharles93/autoflex/internal/flex"
)

// Slot layout shared by the value kernels that read up to two operands.
const (
	slotOut = iota
	slotOutScale
	slotOutPtr
	slotA
	slotAScale
	slotB
	slotBScale
	slotAlpha
	slotBeta
	numOperandSlots
)

func operandParams(out, a, b *device.Tensor, alpha, beta float64) []Param {
	p := make([]Param, numOperandSlots)
	p[slotOut] = TensorParam(out)
	p[slotOutScale] = OutputScale(out)
	p[slotOutPtr] = MaxAbsPtr(out)
	p[slotA] = TensorParam(a)
	p[slotAScale] = InputScale(a)
	if b != nil {
		p[slotB] = TensorParam(b)
		p[slotBScale] = InputScale(b)
	}
	p[slotAlpha] = ScalarParam(alpha)
	p[slotBeta] = ScalarParam(beta)
	return p
}

// operand reads real values out of bound integer storage. A single-element
// operand broadcasts.
type operand struct {
	ints  []int32
	scale float64
}

func readOperand(params []Param, slot, scaleSlot int) operand {
	t := params[slot].Tensor
	if t == nil {
		return operand{}
	}
	return operand{ints: t.Ints(), scale: params[scaleSlot].Scalar}
}

func (o operand) at(i int) float64 {
	if len(o.ints) == 1 {
		return float64(o.ints[0]) * o.scale
	}
	return float64(o.ints[i]) * o.scale
}

func (o operand) len() int { return len(o.ints) }

// writer stores real results through the bound reciprocal output scale,
// saturating to the storage range and reporting magnitudes to the bound
// max-abs slot.
type writer struct {
	out     *device.Tensor
	ints    []int32
	recip   float64
	dtype   flex.DType
	slot    flex.MaxAbsSlot
	clipped int
}

func outputWriter(params []Param) *writer {
	out := params[slotOut].Tensor
	return &writer{
		out:   out,
		ints:  out.Ints(),
		recip: params[slotOutScale].Scalar,
		dtype: out.Entry().DType(),
		slot:  params[slotOutPtr].Slot,
	}
}

func (w *writer) put(i int, v float64) {
	q, clipped := w.dtype.Clip(v * w.recip)
	if clipped {
		w.clipped++
	}
	w.ints[i] = int32(q)
	w.slot.Report(q)
}

func (w *writer) finish() {
	w.out.Entry().AddClipped(w.clipped)
}

func broadcastOK(n int, o operand) bool {
	return o.len() == n || o.len() == 1
}
