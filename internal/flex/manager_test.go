package flex

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/samcharles93/autoflex/internal/logger"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	m := NewManager(opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

type ids []int

func (c ids) OutputFlexIDs() []int { return c }

func TestMakeEntryDuplicateName(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	if _, err := m.MakeEntry("a_w"); err != nil {
		t.Fatalf("MakeEntry: %v", err)
	}
	_, err := m.MakeEntry("a_w")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	var dup DuplicateNameError
	if !errors.As(err, &dup) || dup.Name != "a_w" {
		t.Fatalf("expected DuplicateNameError for a_w, got %#v", err)
	}
}

func TestEntryIDsFollowRegistrationOrder(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	for i, name := range []string{"a", "b", "c"} {
		e, err := m.MakeEntry(name)
		if err != nil {
			t.Fatalf("MakeEntry(%q): %v", name, err)
		}
		if e.ID() != i {
			t.Fatalf("entry %q: expected id %d, got %d", name, i, e.ID())
		}
		if e.Scale() != DefaultInitialScale {
			t.Fatalf("entry %q: expected initial scale 1, got %v", name, e.Scale())
		}
	}
	if e, ok := m.Lookup("b"); !ok || e.ID() != 1 {
		t.Fatalf("Lookup(b) = %v, %v", e, ok)
	}
	if _, err := m.Entry(3); !errors.Is(err, ErrUnknownEntry) {
		t.Fatalf("expected ErrUnknownEntry, got %v", err)
	}
}

func TestAllocateOnce(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	if _, err := m.MakeEntry("x"); err != nil {
		t.Fatal(err)
	}
	if err := m.ManageBeforeComputation(ids{0}); !errors.Is(err, ErrNotAllocated) {
		t.Fatalf("expected ErrNotAllocated before allocate, got %v", err)
	}
	if err := m.ManageAfterComputation(ids{0}); !errors.Is(err, ErrNotAllocated) {
		t.Fatalf("expected ErrNotAllocated before allocate, got %v", err)
	}
	if err := m.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := m.Allocate(); !errors.Is(err, ErrAlreadyAllocated) {
		t.Fatalf("expected ErrAlreadyAllocated on second allocate, got %v", err)
	}
	if _, err := m.MakeEntry("late"); !errors.Is(err, ErrAlreadyAllocated) {
		t.Fatalf("expected ErrAlreadyAllocated for late entry, got %v", err)
	}
	if got := m.Block().Len(); got != 1 {
		t.Fatalf("expected 1 slot, got %d", got)
	}
	if got := m.Block().Scale(0); got != 1 {
		t.Fatalf("expected published scale 1, got %v", got)
	}
}

func TestClipThenAdapt(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	e, _ := m.MakeEntry("x")

	e.ManageBeforeComputation(50000)
	if e.Scale() != 1 {
		t.Fatalf("scale changed before write: %v", e.Scale())
	}
	if e.Overflows() != 1 {
		t.Fatalf("expected overflow to be recorded, got %d", e.Overflows())
	}
	e.ManageAfterComputation(32767, m.AutoflexCount())
	if e.Scale() != 1 {
		t.Fatalf("scale changed in the same cycle: %v", e.Scale())
	}

	m.Autoflex()
	if e.Scale() != 2 {
		t.Fatalf("expected scale 2 after adaptation, got %v", e.Scale())
	}
	if got := 32767 / e.Scale(); got >= 1<<14 {
		t.Fatalf("no headroom left: %v", got)
	}
}

func TestHostWriteWaitsForNextCycle(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	e, _ := m.MakeEntry("x")

	e.ManageAfterComputation(32767, m.AutoflexCount())
	e.ManageBeforeComputation(1)
	if e.Scale() != 1 || !e.Pending() {
		t.Fatalf("same-cycle write adapted: scale %v pending %v", e.Scale(), e.Pending())
	}

	m.AdvanceCount(2)
	e.ManageBeforeComputation(1)
	if e.Scale() != 2 || e.Pending() {
		t.Fatalf("next-cycle write did not adapt: scale %v pending %v", e.Scale(), e.Pending())
	}
}

func TestPreAdjustWrites(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{PreAdjustWrites: true})
	e, _ := m.MakeEntry("x")
	e.ManageBeforeComputation(50000)
	if want := 4.0; e.Scale() != want {
		t.Fatalf("expected pre-adjusted scale %v, got %v", want, e.Scale())
	}
	if 50000/e.Scale() > float64(Flex16.MaxInt()) {
		t.Fatalf("pre-adjusted scale still overflows")
	}
}

func TestScaleShrinksForSmallValues(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	e, _ := m.MakeEntry("x")
	e.ManageAfterComputation(3, 0)
	m.Autoflex()
	// 3/2^-12 = 12288 fits under 2^14; 2^-13 would not.
	if want := math.Ldexp(1, -12); e.Scale() != want {
		t.Fatalf("expected scale %v, got %v", want, e.Scale())
	}
}

func TestScaleStaysPositiveAndFinite(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{HistoryLen: 2})
	e, _ := m.MakeEntry("x")

	inputs := []float64{0, 0, math.Inf(1), math.NaN(), math.Inf(-1), -5, 0, 1e-300, 0, 0, 0, 0}
	for i, v := range inputs {
		e.ManageAfterComputation(v, i)
		m.Autoflex()
		s := e.Scale()
		if s <= 0 || math.IsInf(s, 0) || math.IsNaN(s) {
			t.Fatalf("step %d input %v: invalid scale %v", i, v, s)
		}
	}
	for i := range 200 {
		e.ManageAfterComputation(float64(Flex16.MaxInt()), i)
		m.Autoflex()
	}
	if s := e.Scale(); s <= 0 || math.IsInf(s, 0) {
		t.Fatalf("scale diverged to %v", s)
	}
}

func TestZeroHistoryLeavesScaleUnchanged(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{InitialScale: 0.5})
	e, _ := m.MakeEntry("x")
	for i := range 5 {
		e.ManageAfterComputation(0, i)
		m.Autoflex()
	}
	if e.Scale() != 0.5 {
		t.Fatalf("expected scale 0.5, got %v", e.Scale())
	}
}

func TestFixedPointScaleConstant(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{FixedPoint: true, PreAdjustWrites: true})
	e, _ := m.MakeEntry("x")
	want := FixedPointResolution(Flex16)
	for i, v := range []float64{1, 32767, 0, 1e9, math.Inf(1), 7} {
		e.ManageBeforeComputation(v)
		e.ManageAfterComputation(v, i)
		m.Autoflex()
		if e.Scale() != want {
			t.Fatalf("step %d: scale moved to %v in fixed-point mode", i, e.Scale())
		}
	}
}

func TestManageAfterComputationReadsBlock(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	a, _ := m.MakeEntry("a")
	b, _ := m.MakeEntry("b")
	if err := m.Allocate(); err != nil {
		t.Fatal(err)
	}
	m.AdvanceCount(2)

	slot := (&PtrDescription{Entry: a}).Slot()
	slot.Report(-100)
	slot.Report(40)

	if err := m.ManageAfterComputation(ids{a.ID()}); err != nil {
		t.Fatal(err)
	}
	if a.LastMaxAbs() != 100 || a.StepIndex() != 2 || !a.Pending() {
		t.Fatalf("unexpected entry a state: %+v", a.State())
	}
	if b.Pending() {
		t.Fatalf("entry b should not be touched")
	}

	// Slot is reset after collection.
	if err := m.ManageAfterComputation(ids{a.ID()}); err != nil {
		t.Fatal(err)
	}
	if a.LastMaxAbs() != 0 {
		t.Fatalf("expected slot reset, got %v", a.LastMaxAbs())
	}
}

func TestManageBeforeComputationAdaptsOnlyOutputs(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{})
	a, _ := m.MakeEntry("a")
	b, _ := m.MakeEntry("b")
	if err := m.Allocate(); err != nil {
		t.Fatal(err)
	}
	a.ManageAfterComputation(32767, 0)
	b.ManageAfterComputation(32767, 0)

	// Same cycle: nothing adapts yet.
	if err := m.ManageBeforeComputation(ids{a.ID()}); err != nil {
		t.Fatal(err)
	}
	if a.Scale() != 1 || !a.Pending() {
		t.Fatalf("entry a adapted within its own cycle: scale %v", a.Scale())
	}

	m.AdvanceCount(2)
	if err := m.ManageBeforeComputation(ids{a.ID()}); err != nil {
		t.Fatal(err)
	}
	if a.Scale() != 2 || b.Scale() != 1 {
		t.Fatalf("expected a=2 b=1, got a=%v b=%v", a.Scale(), b.Scale())
	}
	if m.Block().Scale(a.ID()) != 2 {
		t.Fatalf("device scale not published: %v", m.Block().Scale(a.ID()))
	}
}

func TestScaleDescriptionValue(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{InitialScale: 4})
	e, _ := m.MakeEntry("x")
	in := &ScaleDescription{Entry: e}
	out := &ScaleDescription{Entry: e, IsOutput: true}
	if in.Value() != 4 || out.Value() != 0.25 {
		t.Fatalf("unexpected bound values in=%v out=%v", in.Value(), out.Value())
	}
	if (&PtrDescription{Entry: e}).Slot().Valid() {
		t.Fatalf("slot must be invalid before allocation")
	}
}

type recordingSink struct {
	snaps []Snapshot
	err   error
}

func (s *recordingSink) Write(_ context.Context, snap Snapshot) error {
	s.snaps = append(s.snaps, snap)
	return s.err
}

func TestSaveDiagnosticData(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, Options{DiagnosticEvery: 2})
	// No sink: must be a no-op.
	m.SaveDiagnosticData(context.Background())

	sink := &recordingSink{err: errors.New("disk full")}
	m.SetDiagnosticSink(sink)
	e, _ := m.MakeEntry("x")
	e.ManageAfterComputation(10, 0)

	for range 4 {
		m.AdvanceCount(2)
		m.SaveDiagnosticData(context.Background())
	}
	if len(sink.snaps) != 2 {
		t.Fatalf("expected 2 snapshots with DiagnosticEvery=2, got %d", len(sink.snaps))
	}
	want := Snapshot{
		Step: 2,
		Entries: []EntryState{{
			ID: 0, Name: "x", Scale: 1, MaxAbs: 10, History: []float64{10},
		}},
	}
	if diff := cmp.Diff(want, sink.snaps[0], cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

type countingObserver struct {
	changes, clipped int
}

func (o *countingObserver) ScaleChanged(*Entry, float64, float64) { o.changes++ }
func (o *countingObserver) Clipped(_ *Entry, n int)               { o.clipped += n }

func TestObserverEvents(t *testing.T) {
	t.Parallel()
	obs := &countingObserver{}
	m := newTestManager(t, Options{Observer: obs})
	e, _ := m.MakeEntry("x")
	e.AddClipped(3)
	e.AddClipped(0)
	e.ManageAfterComputation(32767, 0)
	m.Autoflex()
	m.Autoflex()
	if obs.clipped != 3 || obs.changes != 1 {
		t.Fatalf("unexpected observer counts %+v", obs)
	}
	if e.Clipped() != 3 {
		t.Fatalf("expected entry clip count 3, got %d", e.Clipped())
	}
}
