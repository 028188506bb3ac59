package transformer

import (
	"fmt"

	"github.com/samcharles93/autoflex/internal/graph"
	"github.com/samcharles93/autoflex/internal/kernel"
	"github.com/samcharles93/autoflex/internal/kernelgroup"
)

// TransformOrderedOps builds, fills and compiles the group name from ops.
// Each op maps to exactly one kernel.
func (t *Transformer) TransformOrderedOps(name string, ops []graph.Op) (*kernelgroup.Group, error) {
	g, err := t.KernelGroup(name)
	if err != nil {
		return nil, err
	}
	for i, op := range ops {
		k, err := kernelFor(fmt.Sprintf("%s/%d", name, i), op)
		if err != nil {
			delete(t.groups, name)
			return nil, fmt.Errorf("transform %s op %d: %w", name, i, err)
		}
		if err := g.Add(k); err != nil {
			delete(t.groups, name)
			return nil, err
		}
	}
	if err := g.Compile(); err != nil {
		delete(t.groups, name)
		return nil, err
	}
	return g, nil
}

func kernelFor(name string, op graph.Op) (kernel.Kernel, error) {
	switch o := op.(type) {
	case *graph.ElementWise:
		return elementWiseKernel(name, o)
	case *graph.Dot:
		return kernel.NewGEMM(name+"_dot", o.Out, o.A, o.B, o.M, o.N, o.K, o.TransA, o.TransB, o.Alpha)
	case *graph.Convolution:
		return kernel.NewConv(name+"_fprop", kernel.KindConvFprop, o.Out, o.X, o.W, o.Alpha)
	case *graph.BpropConv:
		return kernel.NewConv(name+"_bprop", kernel.KindConvBprop, o.Out, o.DY, o.W, o.Alpha)
	case *graph.UpdateConv:
		return kernel.NewConv(name+"_update", kernel.KindConvUpdate, o.Out, o.X, o.DY, o.Alpha)
	case *graph.Fill:
		return kernel.NewFill(name+"_fill", o.Out, o.Scalar)
	case *graph.TensorSize:
		if o.Of == nil {
			return nil, fmt.Errorf("%w: tensor size without a source", ErrUnsupportedOp)
		}
		return kernel.NewFill(name+"_size", o.Out, float64(o.Of.Size()))
	case *graph.Rng:
		return kernel.NewRngFill(name+"_rng", o.Out, o.Distribution, o.Params[0], o.Params[1], o.Seed)
	case *graph.DimShuffle:
		return kernel.NewDimShuffle(name+"_shuffle", o.Out, o.In, o.Rows, o.Cols)
	case *graph.ReduceSum:
		return kernel.NewElementWise(name+"_sum", kernel.FuncSum, o.Out, o.In, nil, o.Alpha, 0)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedOp, op)
	}
}

func elementWiseKernel(name string, o *graph.ElementWise) (kernel.Kernel, error) {
	name = name + "_" + o.Fn.String()
	switch o.Fn {
	case graph.Copy:
		return kernel.NewElementWise(name, kernel.FuncCopy, o.Out, o.A, nil, 1, 0)
	case graph.Neg:
		return kernel.NewElementWise(name, kernel.FuncCopy, o.Out, o.A, nil, -1, 0)
	case graph.Add:
		return kernel.NewElementWise(name, kernel.FuncAdd, o.Out, o.A, o.B, 1, 1)
	case graph.Sub:
		return kernel.NewElementWise(name, kernel.FuncAdd, o.Out, o.A, o.B, 1, -1)
	case graph.Axpby:
		return kernel.NewElementWise(name, kernel.FuncAdd, o.Out, o.A, o.B, o.Alpha, o.Beta)
	case graph.Mul:
		return kernel.NewElementWise(name, kernel.FuncMul, o.Out, o.A, o.B, 1, 0)
	case graph.Tanh:
		return kernel.NewElementWise(name, kernel.FuncTanh, o.Out, o.A, nil, 1, 0)
	case graph.Sigmoid:
		return kernel.NewElementWise(name, kernel.FuncSigmoid, o.Out, o.A, nil, 1, 0)
	case graph.Log:
		return kernel.NewElementWise(name, kernel.FuncLog, o.Out, o.A, nil, 1, 0)
	default:
		return nil, fmt.Errorf("%w: elementwise %s", ErrUnsupportedOp, o.Fn)
	}
}
