package kernel

import (
	"fmt"

	"github.com/samcharles93/autoflex/internal/device"
)

// DimShuffleKernel transposes a rows×cols matrix. It moves stored integers
// without looking at their values, so the destination must share the
// source's flex entry (see device.Buffer.Alias).
type DimShuffleKernel struct {
	NoFlexScales
	name       string
	params     []Param
	rows, cols int
}

func NewDimShuffle(name string, out, in *device.Tensor, rows, cols int) (*DimShuffleKernel, error) {
	if out == nil || in == nil {
		return nil, fmt.Errorf("%w: %s needs out and in", ErrDims, name)
	}
	if rows*cols != in.Size() || out.Size() != in.Size() {
		return nil, fmt.Errorf("%w: %s %dx%d with in=%d out=%d", ErrDims, name, rows, cols, in.Size(), out.Size())
	}
	if out.Buffer() == in.Buffer() {
		return nil, fmt.Errorf("%w: %s cannot shuffle in place", ErrDims, name)
	}
	if out.Entry() != in.Entry() {
		return nil, fmt.Errorf("%w: %s destination does not share the source entry", ErrRoleMismatch, name)
	}
	return &DimShuffleKernel{
		name:   name,
		params: []Param{TensorParam(out), TensorParam(in)},
		rows:   rows,
		cols:   cols,
	}, nil
}

func (d *DimShuffleKernel) Name() string    { return d.name }
func (d *DimShuffleKernel) Kind() Kind      { return KindDimShuffle }
func (d *DimShuffleKernel) Params() []Param { return d.params }

func (d *DimShuffleKernel) Launch() error {
	dst := d.params[0].Tensor.Ints()
	src := d.params[1].Tensor.Ints()
	for i := range d.rows {
		for j := range d.cols {
			dst[j*d.rows+i] = src[i*d.cols+j]
		}
	}
	return nil
}
