package diag

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/samcharles93/autoflex/internal/flex"
	"github.com/samcharles93/autoflex/internal/logger"
)

// Async decouples a slow sink from the training loop. Write never blocks:
// snapshots that do not fit the queue are dropped and counted.
type Async struct {
	sink    Sink
	queue   chan flex.Snapshot
	log     logger.Logger
	dropped atomic.Int64
	written atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func NewAsync(sink Sink, queue int, log logger.Logger) *Async {
	if queue <= 0 {
		queue = 64
	}
	if log == nil {
		log = logger.Default()
	}
	a := &Async{
		sink:  sink,
		queue: make(chan flex.Snapshot, queue),
		log:   log.With("component", "diag"),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for snap := range a.queue {
		if err := a.sink.Write(context.Background(), snap); err != nil {
			a.log.Warn("diagnostic write failed", "step", snap.Step, "error", err)
			continue
		}
		a.written.Add(1)
	}
}

func (a *Async) Write(_ context.Context, snap flex.Snapshot) error {
	select {
	case a.queue <- snap:
	default:
		n := a.dropped.Add(1)
		a.log.Debug("diagnostic snapshot dropped", "step", snap.Step, "dropped", n)
	}
	return nil
}

func (a *Async) Dropped() int64 { return a.dropped.Load() }
func (a *Async) Written() int64 { return a.written.Load() }

// Close drains queued snapshots and closes the underlying sink. Write must
// not be called after Close.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.queue)
		<-a.done
		err = a.sink.Close()
	})
	return err
}
