package flex

import "context"

// EntryState is a copy of one entry's scale state.
type EntryState struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Scale     float64   `json:"scale"`
	MaxAbs    float64   `json:"max_abs"`
	StepIndex int       `json:"step_index"`
	Clipped   int64     `json:"clipped"`
	Overflows int64     `json:"overflows"`
	History   []float64 `json:"history,omitempty"`
}

// Snapshot is the diagnostic record written once per kernel group call.
type Snapshot struct {
	Step       int          `json:"step"`
	FixedPoint bool         `json:"fixed_point"`
	Entries    []EntryState `json:"entries"`
}

// DiagnosticSink persists snapshots. Write should return promptly; the
// manager logs and drops any error.
type DiagnosticSink interface {
	Write(ctx context.Context, s Snapshot) error
}

// State returns a copy of the entry's current state.
func (e *Entry) State() EntryState {
	return EntryState{
		ID:        e.id,
		Name:      e.name,
		Scale:     e.scale,
		MaxAbs:    e.lastMax,
		StepIndex: e.stepIndex,
		Clipped:   e.clipped,
		Overflows: e.overflows,
		History:   e.History(),
	}
}

// Snapshot captures every entry at the current autoflex step.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Step:       m.autoflexCount,
		FixedPoint: m.fixedPoint,
		Entries:    make([]EntryState, 0, len(m.entries)),
	}
	for _, e := range m.entries {
		s.Entries = append(s.Entries, e.State())
	}
	return s
}
