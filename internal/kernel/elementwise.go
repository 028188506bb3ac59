package kernel

import (
	"fmt"
	"math"

	"github.com/samcharles93/autoflex/internal/device"
)

// Func selects the elementwise operation.
type Func uint8

const (
	FuncCopy    Func = iota // alpha*a
	FuncAdd                 // alpha*a + beta*b
	FuncMul                 // alpha*a*b
	FuncTanh                // tanh(alpha*a)
	FuncSigmoid             // 1/(1+exp(-alpha*a))
	FuncLog                 // log(a), floored at the smallest positive float
	FuncSum                 // alpha*sum(a) into a single element
)

var funcNames = [...]string{"copy", "add", "mul", "tanh", "sigmoid", "log", "sum"}

func (f Func) String() string {
	if int(f) < len(funcNames) {
		return funcNames[f]
	}
	return fmt.Sprintf("func(%d)", uint8(f))
}

func (f Func) binary() bool { return f == FuncAdd || f == FuncMul }

// ElementWiseKernel applies Func over its operands, broadcasting
// single-element inputs.
type ElementWiseKernel struct {
	flexParams
	name string
	fn   Func
}

// NewElementWise builds an elementwise kernel. b is required for binary
// functions and ignored otherwise.
func NewElementWise(name string, fn Func, out, a, b *device.Tensor, alpha, beta float64) (*ElementWiseKernel, error) {
	if out == nil || a == nil {
		return nil, fmt.Errorf("%w: %s needs out and a", ErrDims, name)
	}
	if !fn.binary() {
		b = nil
	} else if b == nil {
		return nil, fmt.Errorf("%w: %s %s needs b", ErrDims, name, fn)
	}
	n := out.Size()
	if fn == FuncSum {
		if n != 1 {
			return nil, fmt.Errorf("%w: %s sum output has %d elements", ErrDims, name, n)
		}
	} else {
		if a.Size() != n && a.Size() != 1 {
			return nil, fmt.Errorf("%w: %s a has %d elements, out %d", ErrDims, name, a.Size(), n)
		}
		if b != nil && b.Size() != n && b.Size() != 1 {
			return nil, fmt.Errorf("%w: %s b has %d elements, out %d", ErrDims, name, b.Size(), n)
		}
	}
	return &ElementWiseKernel{
		flexParams: flexParams{params: operandParams(out, a, b, alpha, beta)},
		name:       name,
		fn:         fn,
	}, nil
}

func (k *ElementWiseKernel) Name() string { return k.name }
func (k *ElementWiseKernel) Kind() Kind   { return KindElementWise }
func (k *ElementWiseKernel) Func() Func   { return k.fn }

func (k *ElementWiseKernel) Launch() error {
	p := k.params
	a := readOperand(p, slotA, slotAScale)
	b := readOperand(p, slotB, slotBScale)
	alpha, beta := p[slotAlpha].Scalar, p[slotBeta].Scalar
	w := outputWriter(p)
	n := len(w.ints)
	if !broadcastOK(n, a) && k.fn != FuncSum {
		return fmt.Errorf("%w: %s", ErrDims, k.name)
	}

	if k.fn == FuncSum {
		var sum float64
		for i := range a.len() {
			sum += a.at(i)
		}
		w.put(0, alpha*sum)
		w.finish()
		return nil
	}

	for i := range n {
		var v float64
		switch k.fn {
		case FuncCopy:
			v = alpha * a.at(i)
		case FuncAdd:
			v = alpha*a.at(i) + beta*b.at(i)
		case FuncMul:
			v = alpha * a.at(i) * b.at(i)
		case FuncTanh:
			v = math.Tanh(alpha * a.at(i))
		case FuncSigmoid:
			v = 1 / (1 + math.Exp(-alpha*a.at(i)))
		case FuncLog:
			v = math.Log(max(a.at(i), math.SmallestNonzeroFloat64))
		default:
			return fmt.Errorf("kernel %s: unknown func %s", k.name, k.fn)
		}
		w.put(i, v)
	}
	w.finish()
	return nil
}
