package flex

import (
	"fmt"
	"math"
	"strings"
)

// DType describes a fixed-point storage format. StorageBits counts the sign
// bit, so a 16 bit format carries 15 significant bits.
type DType struct {
	Name        string
	StorageBits int
}

var (
	Flex8  = DType{Name: "flex8", StorageBits: 8}
	Flex16 = DType{Name: "flex16", StorageBits: 16}
)

// ParseDType resolves a storage format by name. An empty name selects Flex16.
func ParseDType(name string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Flex16.Name:
		return Flex16, nil
	case Flex8.Name:
		return Flex8, nil
	default:
		return DType{}, fmt.Errorf("%w: %q (expected flex8 or flex16)", ErrUnsupportedDType, name)
	}
}

// Bits returns the number of significant (non-sign) bits.
func (d DType) Bits() int { return d.StorageBits - 1 }

// MaxInt is the largest representable integer, 2^Bits - 1.
func (d DType) MaxInt() int64 { return int64(1)<<d.Bits() - 1 }

// MinInt is the smallest representable integer, -2^Bits.
func (d DType) MinInt() int64 { return -(int64(1) << d.Bits()) }

// Clip rounds v half away from zero and saturates it to the storage range.
// The second result reports whether saturation happened.
func (d DType) Clip(v float64) (int64, bool) {
	if math.IsNaN(v) {
		return 0, true
	}
	r := math.Round(v)
	if r > float64(d.MaxInt()) {
		return d.MaxInt(), true
	}
	if r < float64(d.MinInt()) {
		return d.MinInt(), true
	}
	return int64(r), false
}

// FixedPointResolution is the single scale used by every entry when the
// manager runs in fixed-point mode.
func FixedPointResolution(d DType) float64 {
	return math.Ldexp(1, -(d.Bits() / 2))
}

func (d DType) String() string { return d.Name }
