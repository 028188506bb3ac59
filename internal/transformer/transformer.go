// Package transformer owns a flex manager and hands out flex-aware buffers
// and kernel groups in place of ordinary ones.
package transformer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samcharles93/autoflex/internal/device"
	"github.com/samcharles93/autoflex/internal/flex"
	"github.com/samcharles93/autoflex/internal/kernelgroup"
	"github.com/samcharles93/autoflex/internal/logger"
)

var (
	ErrDuplicateGroup = errors.New("transformer: duplicate kernel group")
	ErrUnknownGroup   = errors.New("transformer: unknown kernel group")
	ErrUnsupportedOp  = errors.New("transformer: unsupported op")
	ErrClosed         = errors.New("transformer: closed")
)

// Option customises a Transformer beyond its Config.
type Option func(*options)

type options struct {
	log      logger.Logger
	sink     flex.DiagnosticSink
	observer flex.Observer
}

func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithDiagnosticSink(sink flex.DiagnosticSink) Option {
	return func(o *options) { o.sink = sink }
}

func WithObserver(obs flex.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Transformer builds and runs flex computations. Exec, Call and Snapshot
// serialise on one mutex so a reader can inspect the manager between steps.
type Transformer struct {
	mu     sync.Mutex
	mgr    *flex.Manager
	log    logger.Logger
	tol    Tolerance
	groups map[string]*kernelgroup.Group
	closed bool
}

// New validates cfg and creates the transformer and its manager. An
// unrecognised storage format fails with flex.ErrUnsupportedDType.
func New(cfg Config, opts ...Option) (*Transformer, error) {
	dt, err := flex.ParseDType(cfg.StorageDType)
	if err != nil {
		return nil, fmt.Errorf("transformer: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Default()
	}
	mgr := flex.NewManager(flex.Options{
		DType:           dt,
		FixedPoint:      cfg.FixedPoint,
		PreAdjustWrites: cfg.PreAdjustWrites,
		InitialScale:    cfg.InitialScale,
		HistoryLen:      cfg.HistoryLen,
		DiagnosticEvery: cfg.DiagnosticEvery,
		Verbose:         cfg.Verbose,
		Sink:            o.sink,
		Observer:        o.observer,
		Logger:          o.log,
	})
	t := &Transformer{
		mgr:    mgr,
		log:    o.log.With("component", "transformer"),
		tol:    cfg.Tolerance.orDefault(),
		groups: make(map[string]*kernelgroup.Group),
	}
	t.log.Debug("transformer created", "dtype", dt, "fixed_point", cfg.FixedPoint)
	return t, nil
}

func (t *Transformer) FlexManager() *flex.Manager { return t.mgr }
func (t *Transformer) Tolerance() Tolerance       { return t.tol }

// DeviceBufferStorage allocates a flex-aware buffer of elems integers.
func (t *Transformer) DeviceBufferStorage(elems int, name string) (*device.Buffer, error) {
	return device.NewBuffer(t.mgr, elems, name)
}

// DeviceBufferAlias allocates a buffer sharing src's flex entry, for
// destinations of data-movement ops.
func (t *Transformer) DeviceBufferAlias(src *device.Buffer, elems int, name string) (*device.Buffer, error) {
	return src.Alias(elems, name)
}

// DeviceTensor allocates a buffer exactly the size of shape and returns a
// view over all of it.
func (t *Transformer) DeviceTensor(name string, shape ...int) (*device.Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	buf, err := t.DeviceBufferStorage(max(n, 0), name)
	if err != nil {
		return nil, err
	}
	return buf.Tensor(name, shape, 0)
}

// KernelGroup registers an empty, uncompiled group.
func (t *Transformer) KernelGroup(name string) (*kernelgroup.Group, error) {
	if _, ok := t.groups[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateGroup, name)
	}
	g := kernelgroup.New(name, t.mgr, t.log)
	t.groups[name] = g
	return g, nil
}

// Group returns a registered group.
func (t *Transformer) Group(name string) (*kernelgroup.Group, error) {
	g, ok := t.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	return g, nil
}

// GroupNames lists registered groups in lexical order.
func (t *Transformer) GroupNames() []string {
	names := make([]string, 0, len(t.groups))
	for name := range t.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Finalize allocates the device scale block. It must run once, after every
// buffer exists and before any group is called.
func (t *Transformer) Finalize() error {
	if err := t.mgr.Allocate(); err != nil {
		return fmt.Errorf("transformer: finalize: %w", err)
	}
	t.log.Info("flex storage allocated", "entries", len(t.mgr.Entries()), "groups", len(t.groups))
	return nil
}

// Call runs the named group under the transformer lock.
func (t *Transformer) Call(ctx context.Context, name string) error {
	g, err := t.Group(name)
	if err != nil {
		return err
	}
	return t.Exec(func() error { return g.Call(ctx) })
}

// Exec runs fn under the transformer lock. Host reads and writes of tensors
// between steps go through Exec when a reader may be attached.
func (t *Transformer) Exec(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return fn()
}

// Snapshot captures the manager state under the transformer lock.
func (t *Transformer) Snapshot() flex.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mgr.Snapshot()
}

// Close releases the device scale block. It is safe to call more than once.
func (t *Transformer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.mgr.Close()
}
