// Package graph describes the ordered ops a transformer compiles into kernel
// groups. The op set is closed: only types in this package implement Op.
package graph

import (
	"fmt"

	"github.com/samcharles93/autoflex/internal/device"
	"github.com/samcharles93/autoflex/internal/kernel"
)

// Op is one node of an ordered op list.
type Op interface {
	// Output is the tensor the op writes.
	Output() *device.Tensor
	isOp()
}

// EWFn names an elementwise function.
type EWFn uint8

const (
	Copy    EWFn = iota // a
	Add                 // a + b
	Sub                 // a - b
	Mul                 // a * b
	Axpby               // alpha*a + beta*b
	Tanh                // tanh(a)
	Sigmoid             // 1/(1+exp(-a))
	Log                 // log(a)
	Neg                 // -a
)

var ewNames = [...]string{"copy", "add", "sub", "mul", "axpby", "tanh", "sigmoid", "log", "neg"}

func (f EWFn) String() string {
	if int(f) < len(ewNames) {
		return ewNames[f]
	}
	return fmt.Sprintf("ewfn(%d)", uint8(f))
}

// Binary reports whether f reads B.
func (f EWFn) Binary() bool {
	switch f {
	case Add, Sub, Mul, Axpby:
		return true
	}
	return false
}

// ElementWise applies Fn elementwise. Single-element inputs broadcast.
type ElementWise struct {
	Fn          EWFn
	Out, A, B   *device.Tensor
	Alpha, Beta float64
}

// Dot is out(M×N) = Alpha * op(A)·op(B).
type Dot struct {
	Out, A, B      *device.Tensor
	M, N, K        int
	TransA, TransB bool
	Alpha          float64
}

// Convolution is the 1-D valid forward convolution of X by W.
type Convolution struct {
	Out, X, W *device.Tensor
	Alpha     float64
}

// BpropConv is the input gradient of Convolution.
type BpropConv struct {
	Out, DY, W *device.Tensor
	Alpha      float64
}

// UpdateConv is the filter gradient of Convolution.
type UpdateConv struct {
	Out, X, DY *device.Tensor
	Alpha      float64
}

// Fill sets every element of Out to Scalar.
type Fill struct {
	Out    *device.Tensor
	Scalar float64
}

// Rng fills Out with samples. Params are (low, high) for Uniform and
// (mean, stddev) for Normal.
type Rng struct {
	Out          *device.Tensor
	Distribution kernel.Distribution
	Params       [2]float64
	Seed         uint64
}

// TensorSize fills Out with the element count of Of.
type TensorSize struct {
	Out, Of *device.Tensor
}

// DimShuffle transposes the Rows×Cols matrix In into Out.
type DimShuffle struct {
	Out, In    *device.Tensor
	Rows, Cols int
}

// ReduceSum writes Alpha * sum(In) into the single element of Out.
type ReduceSum struct {
	Out, In *device.Tensor
	Alpha   float64
}

func (o *ElementWise) Output() *device.Tensor { return o.Out }
func (o *Dot) Output() *device.Tensor         { return o.Out }
func (o *Convolution) Output() *device.Tensor { return o.Out }
func (o *BpropConv) Output() *device.Tensor   { return o.Out }
func (o *UpdateConv) Output() *device.Tensor  { return o.Out }
func (o *Fill) Output() *device.Tensor        { return o.Out }
func (o *Rng) Output() *device.Tensor         { return o.Out }
func (o *TensorSize) Output() *device.Tensor  { return o.Out }
func (o *DimShuffle) Output() *device.Tensor  { return o.Out }
func (o *ReduceSum) Output() *device.Tensor   { return o.Out }

func (*ElementWise) isOp() {}
func (*Dot) isOp()         {}
func (*Convolution) isOp() {}
func (*BpropConv) isOp()   {}
func (*UpdateConv) isOp()  {}
func (*Fill) isOp()        {}
func (*Rng) isOp()         {}
func (*TensorSize) isOp()  {}
func (*DimShuffle) isOp()  {}
func (*ReduceSum) isOp()   {}

// Outputs lists the distinct tensors written by ops, in first-write order.
func Outputs(ops []Op) []*device.Tensor {
	seen := make(map[*device.Tensor]bool, len(ops))
	var out []*device.Tensor
	for _, op := range ops {
		t := op.Output()
		if t == nil || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
