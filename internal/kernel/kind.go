package kernel

import (
	"errors"
	"fmt"
)

var (
	ErrUnrecognizedKernelKind = errors.New("kernel: unrecognized kernel kind")
	ErrRoleMismatch           = errors.New("kernel: flex parameter roles inconsistent")
	ErrDims                   = errors.New("kernel: operand dimensions mismatch")
)

// Kind tags the closed set of kernel variants.
type Kind uint8

const (
	KindElementWise Kind = iota
	KindGEMM
	KindConvFprop
	KindConvBprop
	KindConvUpdate
	KindFill
	KindRngFill
	KindDimShuffle

	numKinds
)

var kindNames = [numKinds]string{
	KindElementWise: "elementwise",
	KindGEMM:        "gemm",
	KindConvFprop:   "conv_fprop",
	KindConvBprop:   "conv_bprop",
	KindConvUpdate:  "conv_update",
	KindFill:        "fill",
	KindRngFill:     "rng_fill",
	KindDimShuffle:  "dimshuffle",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds returns every recognized kernel kind.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := range numKinds {
		out = append(out, k)
	}
	return out
}

// Strategy is how the binding layer treats a kernel's flex parameters.
type Strategy uint8

const (
	// StrategyScaleParams binds every flex scale and pointer slot before each
	// launch and reports the entries of output scale slots as written.
	StrategyScaleParams Strategy = iota + 1
	// StrategyExempt is for pure data-movement kernels: no binding and an
	// empty output set.
	StrategyExempt
)

func (s Strategy) String() string {
	switch s {
	case StrategyScaleParams:
		return "scale_params"
	case StrategyExempt:
		return "exempt"
	default:
		return "unknown"
	}
}

// StrategyFor maps every kernel kind to its binding strategy. A kind outside
// the closed set is an error.
func StrategyFor(k Kind) (Strategy, error) {
	switch k {
	case KindElementWise, KindGEMM, KindConvFprop, KindConvBprop, KindConvUpdate, KindFill, KindRngFill:
		return StrategyScaleParams, nil
	case KindDimShuffle:
		return StrategyExempt, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnrecognizedKernelKind, k)
	}
}
