package device

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/autoflex/internal/flex"
	"github.com/samcharles93/autoflex/internal/logger"
)

func newManager(t *testing.T, opts flex.Options) *flex.Manager {
	t.Helper()
	opts.Logger = logger.Discard()
	m := flex.NewManager(opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newTensor(t *testing.T, m *flex.Manager, name string, shape ...int) *Tensor {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	buf, err := NewBuffer(m, n, name)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	tn, err := buf.Tensor(name, shape, 0)
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	return tn
}

func TestNaming(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{})
	tn := newTensor(t, m, "w", 3, 4)
	if tn.Buffer().Name() != "a_w" {
		t.Fatalf("unexpected buffer name %q", tn.Buffer().Name())
	}
	if tn.Name() != "v_w_3_4" {
		t.Fatalf("unexpected tensor name %q", tn.Name())
	}
	if _, ok := m.Lookup("a_w"); !ok {
		t.Fatalf("entry a_w not registered")
	}
	if tn.Buffer().Bytes() != 24 {
		t.Fatalf("expected 24 bytes of flex16 storage, got %d", tn.Buffer().Bytes())
	}
}

func TestDuplicateBufferName(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{})
	if _, err := NewBuffer(m, 4, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewBuffer(m, 4, "x"); !errors.Is(err, flex.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestTensorBounds(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{})
	buf, _ := NewBuffer(m, 6, "x")
	if _, err := buf.Tensor("x", []int{2, 3}, 1); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	if _, err := buf.Tensor("x", []int{-1}, 0); !errors.Is(err, ErrNegativeDim) {
		t.Fatalf("expected ErrNegativeDim, got %v", err)
	}
	tn, err := buf.Tensor("x", []int{2}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := tn.Set([]float64{1}); !errors.Is(err, ErrLength) {
		t.Fatalf("expected ErrLength, got %v", err)
	}
	if err := tn.Set([]float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	if got := buf.Ints(); got[4] != 1 || got[5] != 2 || got[0] != 0 {
		t.Fatalf("view wrote to wrong offset: %v", got)
	}
}

func TestRoundTripWithinHalfScale(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	for _, scale := range []float64{1.0 / 1024, 0.25, 1, 8} {
		m := newManager(t, flex.Options{InitialScale: scale})
		tn := newTensor(t, m, "x", 64)
		limit := scale * float64(flex.Flex16.MaxInt())
		values := make([]float64, tn.Size())
		for i := range values {
			values[i] = (rng.Float64()*2 - 1) * limit
		}
		if err := tn.Set(values); err != nil {
			t.Fatal(err)
		}
		got := tn.Get()
		for i, v := range values {
			if d := math.Abs(got[i] - v); d > scale/2 {
				t.Fatalf("scale %v: |%v - %v| = %v exceeds %v", scale, got[i], v, d, scale/2)
			}
		}
		if tn.Entry().Clipped() != 0 {
			t.Fatalf("scale %v: unexpected clipping", scale)
		}
	}
}

func TestWritesAreClipped(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{InitialScale: 0.5})
	tn := newTensor(t, m, "x", 4)

	for _, vals := range [][]float64{
		{1e6, -1e6, 3e4, -3e4},
		{math.Inf(1), math.Inf(-1), 16383.75, -16384},
		{math.MaxFloat64, -math.MaxFloat64, 0, 1},
	} {
		if err := tn.Set(vals); err != nil {
			t.Fatal(err)
		}
		// All writes land in one cycle, so the scale never moves here.
		bound := tn.Scale() * float64(flex.Flex16.MaxInt())
		lowest := tn.Scale() * float64(flex.Flex16.MinInt())
		for _, v := range tn.Get() {
			if v > bound || v < lowest {
				t.Fatalf("read %v outside [%v, %v]", v, lowest, bound)
			}
		}
	}
	if tn.Entry().Clipped() == 0 {
		t.Fatalf("expected clipped elements to be counted")
	}
}

func TestClipThenAdaptScenario(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{})
	tn := newTensor(t, m, "x", 1)

	if err := tn.SetScalar(50000); err != nil {
		t.Fatal(err)
	}
	if got := tn.Ints()[0]; got != 32767 {
		t.Fatalf("expected stored integer 32767, got %d", got)
	}
	if tn.Scale() != 1 {
		t.Fatalf("scale must not change in the writing cycle, got %v", tn.Scale())
	}
	if got := tn.Entry().LastMaxAbs(); got != 32767 {
		t.Fatalf("expected recorded max-abs 32767, got %v", got)
	}

	m.AdvanceCount(2)
	m.Autoflex()
	if tn.Scale() != 2 {
		t.Fatalf("expected scale 2 after adaptation, got %v", tn.Scale())
	}
	if got := tn.Get()[0]; got != 65534 {
		t.Fatalf("expected lossy read 65534, got %v", got)
	}
}

func TestSharedBufferKeepsScaleWithinCycle(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{})
	buf, err := NewBuffer(m, 2, "x")
	if err != nil {
		t.Fatal(err)
	}
	a, err := buf.Tensor("x_a", []int{1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := buf.Tensor("x_b", []int{1}, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.SetScalar(50000); err != nil {
		t.Fatal(err)
	}
	if err := b.SetScalar(1); err != nil {
		t.Fatal(err)
	}
	if a.Scale() != 1 {
		t.Fatalf("scale changed within the writing cycle: %v", a.Scale())
	}
	if got := a.Get()[0]; got != 32767 {
		t.Fatalf("unwritten view changed to %v", got)
	}
	if got := b.Ints()[0]; got != 1 {
		t.Fatalf("expected stored 1, got %d", got)
	}

	m.AdvanceCount(2)
	if err := b.SetScalar(1); err != nil {
		t.Fatal(err)
	}
	if a.Scale() != 2 {
		t.Fatalf("expected scale 2 in the next cycle, got %v", a.Scale())
	}
	if got := a.Get()[0]; got != 65534 {
		t.Fatalf("expected reinterpreted 65534, got %v", got)
	}
}

func TestAliasSharesEntry(t *testing.T) {
	t.Parallel()
	m := newManager(t, flex.Options{})
	src, _ := NewBuffer(m, 4, "x")
	dst, err := src.Alias(4, "x_t")
	if err != nil {
		t.Fatal(err)
	}
	if dst.Entry() != src.Entry() {
		t.Fatalf("alias must share the source entry")
	}
	if len(m.Entries()) != 1 {
		t.Fatalf("alias must not register an entry, got %d", len(m.Entries()))
	}
	dst.Ints()[2] = -9
	if dst.MaxAbs() != 9 || src.MaxAbs() != 0 {
		t.Fatalf("alias storage must be separate")
	}
}
