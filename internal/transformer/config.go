package transformer

import "math"

// Config selects the numeric behaviour of a Transformer.
type Config struct {
	// StorageDType names the fixed-point storage format; empty selects flex16.
	StorageDType string

	FixedPoint      bool
	PreAdjustWrites bool
	InitialScale    float64
	HistoryLen      int
	DiagnosticEvery int
	Verbose         bool

	Tolerance Tolerance
}

// Tolerance is the (rtol, atol) pair used to compare flex results against a
// float64 reference.
type Tolerance struct {
	RTol float64 `json:"rtol" yaml:"rtol"`
	ATol float64 `json:"atol" yaml:"atol"`
}

// DefaultTolerance is loose in absolute terms because flex16 quantises every
// intermediate.
var DefaultTolerance = Tolerance{RTol: 2e-5, ATol: 0.20}

// Close reports whether |got-want| <= ATol + RTol*|want|.
func (t Tolerance) Close(got, want float64) bool {
	if math.IsNaN(got) || math.IsNaN(want) {
		return false
	}
	return math.Abs(got-want) <= t.ATol+t.RTol*math.Abs(want)
}

// AllClose compares got with want elementwise. It returns the index of the
// first mismatch, or -1.
func (t Tolerance) AllClose(got, want []float64) (int, bool) {
	if len(got) != len(want) {
		return min(len(got), len(want)), false
	}
	for i := range got {
		if !t.Close(got[i], want[i]) {
			return i, false
		}
	}
	return -1, true
}

func (t Tolerance) orDefault() Tolerance {
	if t == (Tolerance{}) {
		return DefaultTolerance
	}
	return t
}
