// Package kernelgroup schedules compiled kernels as one unit of scale
// adaptation: every kernel in a call binds the scales published at the
// start of that call.
package kernelgroup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/autoflex/internal/flex"
	"github.com/samcharles93/autoflex/internal/kernel"
	"github.com/samcharles93/autoflex/internal/logger"
)

var (
	ErrCompiled    = errors.New("kernelgroup: already compiled")
	ErrNotCompiled = errors.New("kernelgroup: not compiled")
)

// CountPerCall is how far one call advances the autoflex counter: one cycle
// each for the forward and backward bookkeeping of a training step.
const CountPerCall = 2

// Group is an ordered batch of kernels, typically one training step.
type Group struct {
	name    string
	mgr     *flex.Manager
	log     logger.Logger
	kernels []kernel.Kernel

	outputIDs []int
	compiled  bool
	calls     int
}

func New(name string, mgr *flex.Manager, log logger.Logger) *Group {
	if log == nil {
		log = logger.Default()
	}
	return &Group{
		name: name,
		mgr:  mgr,
		log:  log.With("component", "kernelgroup", "group", name),
	}
}

func (g *Group) Name() string { return g.name }
func (g *Group) Calls() int   { return g.calls }

// Kernels returns the member kernels in execution order.
func (g *Group) Kernels() []kernel.Kernel {
	return append([]kernel.Kernel(nil), g.kernels...)
}

// Add appends k. Kernels cannot be added once the group is compiled.
func (g *Group) Add(k kernel.Kernel) error {
	if g.compiled {
		return fmt.Errorf("add %s to %s: %w", k.Name(), g.name, ErrCompiled)
	}
	g.kernels = append(g.kernels, k)
	return nil
}

// Compile classifies every kernel's parameter slots and derives the group's
// output ids as the concatenation of its kernels' output ids.
func (g *Group) Compile() error {
	if g.compiled {
		return ErrCompiled
	}
	var ids []int
	for _, k := range g.kernels {
		if err := kernel.Prepare(k); err != nil {
			return fmt.Errorf("compile %s: %w", g.name, err)
		}
		ids = append(ids, k.OutputFlexIDs()...)
	}
	g.outputIDs = ids
	g.compiled = true
	g.log.Debug("kernel group compiled", "kernels", len(g.kernels), "outputs", len(ids))
	return nil
}

// OutputFlexIDs lists the entries the group may write. An entry written by
// several kernels appears once per kernel.
func (g *Group) OutputFlexIDs() []int { return g.outputIDs }

// Call runs one step. Cancellation is checked before the step starts; a
// started step always runs to completion or fails.
func (g *Group) Call(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !g.compiled {
		return fmt.Errorf("call %s: %w", g.name, ErrNotCompiled)
	}
	if !g.mgr.Allocated() {
		return fmt.Errorf("call %s: %w", g.name, flex.ErrNotAllocated)
	}
	start := time.Now()

	g.mgr.AdvanceCount(CountPerCall)
	if err := g.mgr.ManageBeforeComputation(g); err != nil {
		return fmt.Errorf("call %s: %w", g.name, err)
	}
	g.mgr.SaveDiagnosticData(ctx)

	for _, k := range g.kernels {
		if err := g.mgr.ManageBeforeComputation(k); err != nil {
			return fmt.Errorf("call %s: kernel %s: %w", g.name, k.Name(), err)
		}
		k.BindFlexScales()
		if err := k.Launch(); err != nil {
			return fmt.Errorf("call %s: kernel %s: %w", g.name, k.Name(), err)
		}
		if err := g.mgr.ManageAfterComputation(k); err != nil {
			return fmt.Errorf("call %s: kernel %s: %w", g.name, k.Name(), err)
		}
	}
	g.calls++
	g.log.Debug("kernel group called", "step", g.mgr.AutoflexCount(), "elapsed", time.Since(start))
	return nil
}
