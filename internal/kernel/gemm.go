package kernel

import (
	"fmt"

	"github.com/samcharles93/autoflex/internal/device"
)

// GEMMKernel computes out(M×N) = alpha * op(A)·op(B) where op optionally
// transposes a row-major operand.
type GEMMKernel struct {
	flexParams
	name           string
	m, n, k        int
	transA, transB bool
}

// NewGEMM builds a matrix product kernel. A is M×K (K×M when transA) and B is
// K×N (N×K when transB).
func NewGEMM(name string, out, a, b *device.Tensor, m, n, k int, transA, transB bool, alpha float64) (*GEMMKernel, error) {
	if out == nil || a == nil || b == nil {
		return nil, fmt.Errorf("%w: %s needs three operands", ErrDims, name)
	}
	if m <= 0 || n <= 0 || k <= 0 {
		return nil, fmt.Errorf("%w: %s dims %dx%dx%d", ErrDims, name, m, n, k)
	}
	if out.Size() != m*n || a.Size() != m*k || b.Size() != k*n {
		return nil, fmt.Errorf("%w: %s sizes out=%d a=%d b=%d for %dx%dx%d",
			ErrDims, name, out.Size(), a.Size(), b.Size(), m, n, k)
	}
	if out.Buffer() == a.Buffer() || out.Buffer() == b.Buffer() {
		return nil, fmt.Errorf("%w: %s output aliases an input", ErrDims, name)
	}
	return &GEMMKernel{
		flexParams: flexParams{params: operandParams(out, a, b, alpha, 0)},
		name:       name,
		m:          m,
		n:          n,
		k:          k,
		transA:     transA,
		transB:     transB,
	}, nil
}

func (g *GEMMKernel) Name() string { return g.name }
func (g *GEMMKernel) Kind() Kind   { return KindGEMM }

func (g *GEMMKernel) Launch() error {
	p := g.params
	a := readOperand(p, slotA, slotAScale)
	b := readOperand(p, slotB, slotBScale)
	alpha := p[slotAlpha].Scalar
	w := outputWriter(p)

	for i := range g.m {
		for j := range g.n {
			var sum float64
			for l := range g.k {
				ai := i*g.k + l
				if g.transA {
					ai = l*g.m + i
				}
				bi := l*g.n + j
				if g.transB {
					bi = j*g.k + l
				}
				sum += a.at(ai) * b.at(bi)
			}
			w.put(i*g.n+j, alpha*sum)
		}
	}
	w.finish()
	return nil
}
