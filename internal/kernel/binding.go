package kernel

import (
	"fmt"
	"slices"
)

// SupportsFlexScaleBinding is implemented by every kernel variant. Value
// kernels embed flexParams; data-movement kernels embed NoFlexScales.
type SupportsFlexScaleBinding interface {
	// PrepareFlexScales classifies parameter slots once, at compile time.
	PrepareFlexScales() error
	// BindFlexScales rewrites every flex slot from the current scales.
	BindFlexScales()
	// OutputFlexIDs lists the entries the kernel may write.
	OutputFlexIDs() []int
}

// Kernel is a compiled kernel of the host reference layer.
type Kernel interface {
	SupportsFlexScaleBinding
	Name() string
	Kind() Kind
	Params() []Param
	Launch() error
}

var (
	_ Kernel = (*ElementWiseKernel)(nil)
	_ Kernel = (*GEMMKernel)(nil)
	_ Kernel = (*ConvKernel)(nil)
	_ Kernel = (*FillKernel)(nil)
	_ Kernel = (*RngFillKernel)(nil)
	_ Kernel = (*DimShuffleKernel)(nil)
)

// Prepare runs the binding strategy of k's kind at compile time.
func Prepare(k Kernel) error {
	s, err := StrategyFor(k.Kind())
	if err != nil {
		return fmt.Errorf("kernel %s: %w", k.Name(), err)
	}
	switch s {
	case StrategyExempt:
		if len(k.OutputFlexIDs()) != 0 {
			return fmt.Errorf("kernel %s: %w: exempt kernel reports outputs", k.Name(), ErrRoleMismatch)
		}
		return nil
	default:
		if err := k.PrepareFlexScales(); err != nil {
			return fmt.Errorf("kernel %s: %w", k.Name(), err)
		}
		return nil
	}
}

// NoFlexScales is the binding of kernels without value semantics.
type NoFlexScales struct{}

func (NoFlexScales) PrepareFlexScales() error { return nil }
func (NoFlexScales) BindFlexScales()          {}
func (NoFlexScales) OutputFlexIDs() []int     { return nil }

// flexParams is the parameter list of a value kernel together with the slot
// bookkeeping recorded at compile time.
type flexParams struct {
	params    []Param
	scaleInfo []int
	ptrInfo   []int
	outputIDs []int
}

func (f *flexParams) Params() []Param { return f.params }

func (f *flexParams) OutputFlexIDs() []int { return f.outputIDs }

func (f *flexParams) PrepareFlexScales() error {
	f.scaleInfo = f.scaleInfo[:0]
	f.ptrInfo = f.ptrInfo[:0]
	f.outputIDs = f.outputIDs[:0]
	for i, p := range f.params {
		switch p.Kind {
		case ParamFlexScale:
			if p.Scale == nil || p.Scale.Entry == nil {
				return fmt.Errorf("%w: slot %d has no entry", ErrRoleMismatch, i)
			}
			f.scaleInfo = append(f.scaleInfo, i)
			if id := p.Scale.Entry.ID(); p.Scale.IsOutput && !slices.Contains(f.outputIDs, id) {
				f.outputIDs = append(f.outputIDs, id)
			}
		case ParamFlexPtr:
			if p.Ptr == nil || p.Ptr.Entry == nil {
				return fmt.Errorf("%w: slot %d has no entry", ErrRoleMismatch, i)
			}
			f.ptrInfo = append(f.ptrInfo, i)
		}
	}
	if len(f.outputIDs) == 0 {
		return fmt.Errorf("%w: no flex output slot", ErrRoleMismatch)
	}
	for _, i := range f.ptrInfo {
		if !slices.Contains(f.outputIDs, f.params[i].Ptr.Entry.ID()) {
			return fmt.Errorf("%w: slot %d reports an entry the kernel does not write", ErrRoleMismatch, i)
		}
	}
	return nil
}

// BindFlexScales writes the direct scale into input slots, the reciprocal
// into output slots and the current reporting slot into pointer slots.
func (f *flexParams) BindFlexScales() {
	for _, i := range f.scaleInfo {
		f.params[i].Scalar = f.params[i].Scale.Value()
	}
	for _, i := range f.ptrInfo {
		f.params[i].Slot = f.params[i].Ptr.Slot()
	}
}
