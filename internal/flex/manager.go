package flex

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/samcharles93/autoflex/internal/logger"
)

// Computation is the manager's view of a kernel or kernel group: the set of
// entries it is permitted to mutate.
type Computation interface {
	OutputFlexIDs() []int
}

// Observer receives adaptation and clipping events. Implementations must not
// call back into the manager.
type Observer interface {
	ScaleChanged(e *Entry, old, new float64)
	Clipped(e *Entry, n int)
}

type nopObserver struct{}

func (nopObserver) ScaleChanged(*Entry, float64, float64) {}
func (nopObserver) Clipped(*Entry, int)                   {}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	DType DType

	// FixedPoint disables adaptation and gives every entry the scale
	// FixedPointResolution(DType).
	FixedPoint bool

	// PreAdjustWrites lets explicit tensor writes raise the scale ahead of a
	// write that would otherwise clip.
	PreAdjustWrites bool

	InitialScale    float64
	HistoryLen      int
	DiagnosticEvery int
	Verbose         bool

	Sink     DiagnosticSink
	Observer Observer
	Logger   logger.Logger
}

const (
	DefaultHistoryLen   = 4
	DefaultInitialScale = 1.0
)

// Manager owns every Entry of one transformer and runs the autoflex
// algorithm. It is not safe for concurrent use.
type Manager struct {
	dtype      DType
	fixedPoint bool
	preAdjust  bool
	initScale  float64
	historyLen int
	verbose    bool

	entries []*Entry
	byName  map[string]*Entry

	autoflexCount int
	block         *ScaleBlock
	allocated     bool

	sink      DiagnosticSink
	diagEvery rate.Sometimes
	observer  Observer
	log       logger.Logger
}

// NewManager creates a manager. It panics if opts.DType has no storage bits;
// callers validate user supplied formats with ParseDType first.
func NewManager(opts Options) *Manager {
	if opts.DType.StorageBits == 0 {
		opts.DType = Flex16
	}
	if opts.DType.Bits() < 2 {
		panic("flex: storage dtype too narrow")
	}
	if opts.InitialScale <= 0 {
		opts.InitialScale = DefaultInitialScale
	}
	if opts.HistoryLen <= 0 {
		opts.HistoryLen = DefaultHistoryLen
	}
	if opts.DiagnosticEvery <= 0 {
		opts.DiagnosticEvery = 1
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Manager{
		dtype:      opts.DType,
		fixedPoint: opts.FixedPoint,
		preAdjust:  opts.PreAdjustWrites,
		initScale:  clampScale(opts.InitialScale),
		historyLen: opts.HistoryLen,
		verbose:    opts.Verbose,
		byName:     make(map[string]*Entry),
		sink:       opts.Sink,
		diagEvery:  rate.Sometimes{Every: opts.DiagnosticEvery},
		observer:   opts.Observer,
		log:        opts.Logger.With("component", "flex"),
	}
}

func (m *Manager) DType() DType       { return m.dtype }
func (m *Manager) FixedPoint() bool   { return m.fixedPoint }
func (m *Manager) Allocated() bool    { return m.allocated && m.block != nil }
func (m *Manager) AutoflexCount() int { return m.autoflexCount }
func (m *Manager) Block() *ScaleBlock { return m.block }

// AdvanceCount moves the autoflex counter forward by n cycles.
func (m *Manager) AdvanceCount(n int) {
	if n > 0 {
		m.autoflexCount += n
	}
}

// SetDiagnosticSink installs or removes (nil) the diagnostic sink.
func (m *Manager) SetDiagnosticSink(sink DiagnosticSink) {
	m.sink = sink
}

// MakeEntry registers a new entry. Names must be unique, and all entries
// must be registered before Allocate.
func (m *Manager) MakeEntry(name string) (*Entry, error) {
	if _, ok := m.byName[name]; ok {
		return nil, DuplicateNameError{Name: name}
	}
	if m.allocated {
		return nil, fmt.Errorf("make entry %q: %w", name, ErrAlreadyAllocated)
	}
	scale := m.initScale
	if m.fixedPoint {
		scale = FixedPointResolution(m.dtype)
	}
	e := &Entry{
		id:      len(m.entries),
		name:    name,
		dtype:   m.dtype,
		mgr:     m,
		scale:   scale,
		history: make([]float64, m.historyLen),
	}
	m.entries = append(m.entries, e)
	m.byName[name] = e
	return e, nil
}

// Entry returns the entry with the given id.
func (m *Manager) Entry(id int) (*Entry, error) {
	if id < 0 || id >= len(m.entries) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntry, id)
	}
	return m.entries[id], nil
}

// Lookup returns the entry registered under name.
func (m *Manager) Lookup(name string) (*Entry, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// Entries returns all entries in registration order.
func (m *Manager) Entries() []*Entry {
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Allocate finalizes the device scale block for every registered entry. It
// must be called exactly once, before any computation.
func (m *Manager) Allocate() error {
	if m.allocated {
		return ErrAlreadyAllocated
	}
	block, err := newScaleBlock(len(m.entries))
	if err != nil {
		return fmt.Errorf("flex: allocate scale block: %w", err)
	}
	for _, e := range m.entries {
		block.setScale(e.id, e.scale)
	}
	m.block = block
	m.allocated = true
	m.log.Debug("scale block allocated", "entries", len(m.entries), "bytes", block.Bytes())
	return nil
}

// Close releases the device scale block.
func (m *Manager) Close() error {
	if m.block == nil {
		return nil
	}
	err := m.block.release()
	m.block = nil
	return err
}

// Autoflex runs one adaptation cycle over every entry updated since its last
// adaptation.
func (m *Manager) Autoflex() {
	for _, e := range m.entries {
		m.adaptPending(e)
	}
}

// ManageBeforeComputation adapts the entries c may write and publishes their
// scales to the device block. Observations made in the current cycle wait
// for the next one, so a kernel group never re-binds an entry mid-call.
func (m *Manager) ManageBeforeComputation(c Computation) error {
	if !m.allocated || m.block == nil {
		return ErrNotAllocated
	}
	for _, id := range c.OutputFlexIDs() {
		e, err := m.Entry(id)
		if err != nil {
			return err
		}
		if e.stepIndex < m.autoflexCount {
			m.adaptPending(e)
		}
		m.block.setScale(id, e.scale)
	}
	return nil
}

// ManageAfterComputation collects the magnitudes c reported through the
// device block and records them on the written entries.
func (m *Manager) ManageAfterComputation(c Computation) error {
	if !m.allocated || m.block == nil {
		return ErrNotAllocated
	}
	for _, id := range c.OutputFlexIDs() {
		e, err := m.Entry(id)
		if err != nil {
			return err
		}
		e.ManageAfterComputation(m.block.takeMaxAbs(id), m.autoflexCount)
	}
	return nil
}

// SaveDiagnosticData hands a snapshot to the diagnostic sink, if one is set.
// Sink failures are logged and never returned.
func (m *Manager) SaveDiagnosticData(ctx context.Context) {
	if m.sink == nil {
		return
	}
	m.diagEvery.Do(func() {
		if err := m.sink.Write(ctx, m.Snapshot()); err != nil {
			m.log.Warn("diagnostic sink write failed", "step", m.autoflexCount, "error", err)
		}
	})
}

func (m *Manager) adaptPending(e *Entry) {
	if !e.pending {
		return
	}
	e.pending = false
	if m.fixedPoint {
		return
	}
	mag := e.historyMax()
	if mag == 0 {
		return
	}
	old := e.scale
	next := clampScale(safeScale(mag, e.dtype))
	if next == old {
		return
	}
	e.scale = next
	m.scaleChanged(e, old)
}

func (m *Manager) scaleChanged(e *Entry, old float64) {
	m.observer.ScaleChanged(e, old, e.scale)
	if m.verbose {
		m.log.Info("scale adapted", "entry", e.name, "old", old, "new", e.scale, "step", m.autoflexCount)
		return
	}
	m.log.Debug("scale adapted", "entry", e.name, "old", old, "new", e.scale, "step", m.autoflexCount)
}

func (m *Manager) clipped(e *Entry, n int) {
	m.observer.Clipped(e, n)
	m.log.Warn("flex write clipped", "entry", e.name, "elements", n, "scale", e.scale)
}
