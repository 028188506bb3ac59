// Package device holds flex-aware device buffers and tensors. Storage is
// host resident: each element is a scaled integer whose real value is the
// integer times the owning entry's scale.
package device

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samcharles93/autoflex/internal/flex"
)

var (
	ErrShape       = errors.New("device: shape does not fit buffer")
	ErrLength      = errors.New("device: value length mismatch")
	ErrNegativeDim = errors.New("device: negative dimension")
)

// Buffer is a flex-aware device allocation. It owns exactly one flex entry;
// aliases created with Alias share the entry of their source.
type Buffer struct {
	name  string
	data  []int32
	entry *flex.Entry
}

// NewBuffer allocates elems integers and registers a flex entry named
// "a_"+name.
func NewBuffer(mgr *flex.Manager, elems int, name string) (*Buffer, error) {
	if elems < 0 {
		return nil, ErrNegativeDim
	}
	bufName := "a_" + name
	e, err := mgr.MakeEntry(bufName)
	if err != nil {
		return nil, err
	}
	return &Buffer{name: bufName, data: make([]int32, elems), entry: e}, nil
}

// Alias allocates a second buffer of elems integers that shares this buffer's
// entry. It is meant for pure data-movement destinations, whose integers keep
// the source scale.
func (b *Buffer) Alias(elems int, name string) (*Buffer, error) {
	if elems < 0 {
		return nil, ErrNegativeDim
	}
	return &Buffer{name: "a_" + name, data: make([]int32, elems), entry: b.entry}, nil
}

func (b *Buffer) Name() string       { return b.name }
func (b *Buffer) Len() int           { return len(b.data) }
func (b *Buffer) Entry() *flex.Entry { return b.entry }

// Ints exposes the raw integer storage to kernels.
func (b *Buffer) Ints() []int32 { return b.data }

// Bytes returns the storage footprint in the entry's storage format.
func (b *Buffer) Bytes() int {
	return len(b.data) * b.entry.DType().StorageBits / 8
}

// MaxAbs returns the largest integer magnitude currently stored.
func (b *Buffer) MaxAbs() int64 {
	return maxAbs(b.data)
}

// Tensor returns a view of the buffer starting at offset with the given
// shape. The view is named "v_"+name+"_"+dims.
func (b *Buffer) Tensor(name string, shape []int, offset int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, ErrNegativeDim
		}
		n *= d
	}
	if offset < 0 || offset+n > len(b.data) {
		return nil, fmt.Errorf("%w: %v at offset %d in %d elements", ErrShape, shape, offset, len(b.data))
	}
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return &Tensor{
		name:   "v_" + name + "_" + strings.Join(dims, "_"),
		buf:    b,
		shape:  append([]int(nil), shape...),
		offset: offset,
		size:   n,
	}, nil
}

func maxAbs(data []int32) int64 {
	var m int64
	for _, v := range data {
		a := int64(v)
		if a < 0 {
			a = -a
		}
		m = max(m, a)
	}
	return m
}

func maxAbsFloat(values []float64) float64 {
	var m float64
	for _, v := range values {
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		m = max(m, math.Abs(v))
	}
	return m
}
