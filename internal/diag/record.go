// Package diag persists flex diagnostic snapshots and exports adaptation
// events as Prometheus metrics.
package diag

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/samcharles93/autoflex/internal/flex"
)

var ErrUnknownFormat = errors.New("diag: unknown diagnostic format")

// Record is one entry of one snapshot: the row written by every sink.
type Record struct {
	RunID      string  `json:"run_id"`
	Step       int     `json:"step"`
	FixedPoint bool    `json:"fixed_point,omitempty"`
	EntryID    int     `json:"entry_id"`
	Name       string  `json:"name"`
	Scale      float64 `json:"scale"`
	MaxAbs     float64 `json:"max_abs"`
	StepIndex  int     `json:"step_index"`
	Clipped    int64   `json:"clipped"`
	Overflows  int64   `json:"overflows"`
}

// NewRunID returns a fresh identifier for one training run.
func NewRunID() string { return uuid.NewString() }

func records(runID string, snap flex.Snapshot) []Record {
	out := make([]Record, len(snap.Entries))
	for i, e := range snap.Entries {
		out[i] = Record{
			RunID:      runID,
			Step:       snap.Step,
			FixedPoint: snap.FixedPoint,
			EntryID:    e.ID,
			Name:       e.Name,
			Scale:      e.Scale,
			MaxAbs:     e.MaxAbs,
			StepIndex:  e.StepIndex,
			Clipped:    e.Clipped,
			Overflows:  e.Overflows,
		}
	}
	return out
}

// Format is a diagnostic file format.
type Format string

const (
	FormatJSONL  Format = "jsonl"
	FormatSQLite Format = "sqlite"
)

// FormatFor picks a format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json", ".ndjson":
		return FormatJSONL, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// Sink is a flex.DiagnosticSink backed by a file.
type Sink interface {
	flex.DiagnosticSink
	Close() error
}

// Open creates a sink for path, choosing the format from its extension.
func Open(path, runID string) (Sink, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatSQLite:
		return OpenSQLite(path, runID)
	default:
		return OpenJSONL(path, runID)
	}
}

// Read loads every record stored at path.
func Read(path string) ([]Record, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatSQLite:
		return ReadSQLite(path)
	default:
		return ReadJSONLFile(path)
	}
}
