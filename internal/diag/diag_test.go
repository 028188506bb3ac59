package diag

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samcharles93/autoflex/internal/flex"
	"github.com/samcharles93/autoflex/internal/logger"
)

func sampleSnapshots() []flex.Snapshot {
	return []flex.Snapshot{
		{Step: 2, Entries: []flex.EntryState{
			{ID: 0, Name: "a_w", Scale: 0.125, MaxAbs: 16000, StepIndex: 2},
			{ID: 1, Name: "a_x", Scale: 2, MaxAbs: 32767, StepIndex: 2, Clipped: 3, Overflows: 1},
		}},
		{Step: 4, FixedPoint: true, Entries: []flex.EntryState{
			{ID: 0, Name: "a_w", Scale: 0.0625, MaxAbs: 9000, StepIndex: 4},
		}},
	}
}

func wantRecords(runID string) []Record {
	return []Record{
		{RunID: runID, Step: 2, EntryID: 0, Name: "a_w", Scale: 0.125, MaxAbs: 16000, StepIndex: 2},
		{RunID: runID, Step: 2, EntryID: 1, Name: "a_x", Scale: 2, MaxAbs: 32767, StepIndex: 2, Clipped: 3, Overflows: 1},
		{RunID: runID, Step: 4, FixedPoint: true, EntryID: 0, Name: "a_w", Scale: 0.0625, MaxAbs: 9000, StepIndex: 4},
	}
}

func writeAll(t *testing.T, s flex.DiagnosticSink) {
	t.Helper()
	for _, snap := range sampleSnapshots() {
		if err := s.Write(context.Background(), snap); err != nil {
			t.Fatalf("Write step %d: %v", snap.Step, err)
		}
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"run.jsonl", FormatJSONL, true},
		{"run.JSON", FormatJSONL, true},
		{"diag/run.sqlite3", FormatSQLite, true},
		{"run.db", FormatSQLite, true},
		{"run.csv", "", false},
	}
	for _, tc := range tests {
		got, err := FormatFor(tc.path)
		if tc.ok != (err == nil) || got != tc.want {
			t.Fatalf("FormatFor(%q) = %q, %v", tc.path, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnknownFormat) {
			t.Fatalf("expected ErrUnknownFormat, got %v", err)
		}
	}
}

func TestJSONLSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewJSONLSink(&buf, "run-1")
	writeAll(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", n, buf.String())
	}
	got, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantRecords("run-1"), got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONLFileAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "diag.jsonl")
	for _, run := range []string{"first", "second"} {
		s, err := Open(path, run)
		if err != nil {
			t.Fatal(err)
		}
		writeAll(t, s)
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 || got[0].RunID != "first" || got[5].RunID != "second" {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestSQLiteSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "diag.sqlite")
	runID := NewRunID()
	s, err := Open(path, runID)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantRecords(runID), got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

type gatedSink struct {
	gate  chan struct{}
	steps []int
}

func (s *gatedSink) Write(_ context.Context, snap flex.Snapshot) error {
	<-s.gate
	s.steps = append(s.steps, snap.Step)
	return nil
}

func (s *gatedSink) Close() error { return nil }

func TestAsyncDropsWhenFull(t *testing.T) {
	t.Parallel()
	sink := &gatedSink{gate: make(chan struct{})}
	a := NewAsync(sink, 1, logger.Discard())

	// The worker takes step 1 and blocks; step 2 fills the queue; the rest drop.
	_ = a.Write(context.Background(), flex.Snapshot{Step: 1})
	for len(a.queue) != 0 {
		runtime.Gosched()
	}
	for step := 2; step <= 5; step++ {
		if err := a.Write(context.Background(), flex.Snapshot{Step: step}); err != nil {
			t.Fatalf("Write must not fail: %v", err)
		}
	}
	if a.Dropped() != 3 {
		t.Fatalf("expected 3 dropped snapshots, got %d", a.Dropped())
	}
	close(sink.gate)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2}, sink.steps); diff != "" {
		t.Fatalf("written steps mismatch (-want +got):\n%s", diff)
	}
	if a.Written() != 2 {
		t.Fatalf("expected 2 written, got %d", a.Written())
	}
}

func TestMetricsObserver(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := flex.NewManager(flex.Options{Observer: metrics, Logger: logger.Discard()})
	e, err := m.MakeEntry("a_x")
	if err != nil {
		t.Fatal(err)
	}
	metrics.Observe(m.Snapshot())
	if got := testutil.ToFloat64(metrics.scale.WithLabelValues("a_x")); got != 1 {
		t.Fatalf("expected initial scale gauge 1, got %v", got)
	}

	e.ManageBeforeComputation(50000)
	e.AddClipped(2)
	e.ManageAfterComputation(32767, 0)
	m.Autoflex()

	if got := testutil.ToFloat64(metrics.clipped.WithLabelValues("a_x")); got != 2 {
		t.Fatalf("expected 2 clipped, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.scale.WithLabelValues("a_x")); got != 2 {
		t.Fatalf("expected scale gauge 2, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.adaptations.WithLabelValues("a_x", "up")); got != 1 {
		t.Fatalf("expected one upward adaptation, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("registry gathered %d metrics: %v", n, err)
	}
}

type failingSink struct{ err error }

func (s failingSink) Write(context.Context, flex.Snapshot) error { return s.err }

func TestTeeWritesAllAndJoinsErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var buf bytes.Buffer
	jsonl := NewJSONLSink(&buf, "tee")
	tee := Tee{failingSink{err: boom}, jsonl}
	err := tee.Write(context.Background(), sampleSnapshots()[0])
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if err := tee.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("later sink skipped after a failure: %d records", len(got))
	}
}
