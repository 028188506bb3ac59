package diag

import (
	"context"
	"errors"

	"github.com/samcharles93/autoflex/internal/flex"
)

// Tee forwards every snapshot to each sink in order and joins their errors.
type Tee []flex.DiagnosticSink

func (t Tee) Write(ctx context.Context, snap flex.Snapshot) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that has a Close method.
func (t Tee) Close() error {
	var errs []error
	for _, s := range t {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
