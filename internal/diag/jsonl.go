package diag

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/autoflex/internal/flex"
)

// JSONLSink writes one JSON object per entry per snapshot.
type JSONLSink struct {
	mu     sync.Mutex
	runID  string
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

func NewJSONLSink(w io.Writer, runID string) *JSONLSink {
	bw := bufio.NewWriter(w)
	s := &JSONLSink{runID: runID, w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenJSONL appends to the file at path, creating it if needed.
func OpenJSONL(path, runID string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diag: open %s: %w", path, err)
	}
	return NewJSONLSink(f, runID), nil
}

func (s *JSONLSink) Write(ctx context.Context, snap flex.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records(s.runID, snap) {
		if err := s.enc.Encode(r); err != nil {
			return fmt.Errorf("diag: encode step %d: %w", snap.Step, err)
		}
	}
	return s.w.Flush()
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
		s.closer = nil
	}
	return err
}

// ReadJSONL decodes records until EOF.
func ReadJSONL(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("diag: decode record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

func ReadJSONLFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSONL(f)
}
