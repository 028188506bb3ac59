package kernel

import (
	"fmt"

	"github.com/samcharles93/autoflex/internal/device"
)

// ConvKernel is a 1-D valid cross-correlation in one of its three training
// phases:
//
//	fprop:  y[i]  = alpha * sum_k x[i+k] * w[k]
//	bprop:  dx[j] = alpha * sum_k dy[j-k] * w[k]
//	update: dw[k] = alpha * sum_i x[i+k] * dy[i]
type ConvKernel struct {
	flexParams
	name  string
	phase Kind
}

// NewConv builds a convolution kernel. For fprop a=x, b=w; for bprop a=dy,
// b=w; for update a=x, b=dy.
func NewConv(name string, phase Kind, out, a, b *device.Tensor, alpha float64) (*ConvKernel, error) {
	if out == nil || a == nil || b == nil {
		return nil, fmt.Errorf("%w: %s needs three operands", ErrDims, name)
	}
	var want int
	switch phase {
	case KindConvFprop, KindConvUpdate:
		want = a.Size() - b.Size() + 1
	case KindConvBprop:
		want = a.Size() + b.Size() - 1
	default:
		return nil, fmt.Errorf("%w: %s is not a convolution phase", ErrUnrecognizedKernelKind, phase)
	}
	if want <= 0 || out.Size() != want {
		return nil, fmt.Errorf("%w: %s %s out=%d a=%d b=%d", ErrDims, name, phase, out.Size(), a.Size(), b.Size())
	}
	if out.Buffer() == a.Buffer() || out.Buffer() == b.Buffer() {
		return nil, fmt.Errorf("%w: %s output aliases an input", ErrDims, name)
	}
	return &ConvKernel{
		flexParams: flexParams{params: operandParams(out, a, b, alpha, 0)},
		name:       name,
		phase:      phase,
	}, nil
}

func (c *ConvKernel) Name() string { return c.name }
func (c *ConvKernel) Kind() Kind   { return c.phase }

func (c *ConvKernel) Launch() error {
	p := c.params
	a := readOperand(p, slotA, slotAScale)
	b := readOperand(p, slotB, slotBScale)
	alpha := p[slotAlpha].Scalar
	w := outputWriter(p)
	n := len(w.ints)

	switch c.phase {
	case KindConvFprop:
		for i := range n {
			var sum float64
			for k := range b.len() {
				sum += a.at(i+k) * b.at(k)
			}
			w.put(i, alpha*sum)
		}
	case KindConvBprop:
		for j := range n {
			var sum float64
			for k := range b.len() {
				if i := j - k; i >= 0 && i < a.len() {
					sum += a.at(i) * b.at(k)
				}
			}
			w.put(j, alpha*sum)
		}
	case KindConvUpdate:
		for k := range n {
			var sum float64
			for i := range b.len() {
				sum += a.at(i+k) * b.at(i)
			}
			w.put(k, alpha*sum)
		}
	}
	w.finish()
	return nil
}
