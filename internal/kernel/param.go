package kernel

import (
	"github.com/samcharles93/autoflex/internal/device"
	"github.com/samcharles93/autoflex/internal/flex"
)

// ParamKind is the declared role of a kernel argument slot.
type ParamKind uint8

const (
	ParamScalar ParamKind = iota
	ParamTensor
	ParamFlexScale
	ParamFlexPtr
)

// Param is one kernel argument slot. Flex scale slots carry their bound
// value in Scalar and flex pointer slots in Slot; both are rewritten by
// BindFlexScales before every launch.
type Param struct {
	Kind   ParamKind
	Scalar float64
	Tensor *device.Tensor
	Scale  *flex.ScaleDescription
	Ptr    *flex.PtrDescription
	Slot   flex.MaxAbsSlot
}

func ScalarParam(v float64) Param { return Param{Kind: ParamScalar, Scalar: v} }

func TensorParam(t *device.Tensor) Param { return Param{Kind: ParamTensor, Tensor: t} }

// InputScale binds the scale of t's entry.
func InputScale(t *device.Tensor) Param {
	return Param{Kind: ParamFlexScale, Scale: &flex.ScaleDescription{Entry: t.Entry()}}
}

// OutputScale binds the reciprocal scale of t's entry and marks the entry as
// written by the kernel.
func OutputScale(t *device.Tensor) Param {
	return Param{Kind: ParamFlexScale, Scale: &flex.ScaleDescription{Entry: t.Entry(), IsOutput: true}}
}

// MaxAbsPtr binds the max-abs reporting slot of t's entry.
func MaxAbsPtr(t *device.Tensor) Param {
	return Param{Kind: ParamFlexPtr, Ptr: &flex.PtrDescription{Entry: t.Entry()}}
}
