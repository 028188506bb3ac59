package flex

import (
	"errors"
	"math"
	"testing"
)

func TestParseDType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		want    DType
		wantErr bool
	}{
		{"", Flex16, false},
		{"flex16", Flex16, false},
		{" FLEX8 ", Flex8, false},
		{"float32", DType{}, true},
		{"flex32", DType{}, true},
	}
	for _, tc := range tests {
		got, err := ParseDType(tc.name)
		if tc.wantErr {
			if !errors.Is(err, ErrUnsupportedDType) {
				t.Errorf("ParseDType(%q): expected ErrUnsupportedDType, got %v", tc.name, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseDType(%q) = %v, %v", tc.name, got, err)
		}
	}
}

func TestDTypeRange(t *testing.T) {
	t.Parallel()
	if Flex16.Bits() != 15 || Flex16.MaxInt() != 32767 || Flex16.MinInt() != -32768 {
		t.Fatalf("unexpected flex16 range: bits=%d [%d, %d]", Flex16.Bits(), Flex16.MinInt(), Flex16.MaxInt())
	}
	if Flex8.MaxInt() != 127 || Flex8.MinInt() != -128 {
		t.Fatalf("unexpected flex8 range: [%d, %d]", Flex8.MinInt(), Flex8.MaxInt())
	}
}

func TestDTypeClip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      float64
		want    int64
		clipped bool
	}{
		{0, 0, false},
		{1.5, 2, false},
		{-1.5, -2, false},
		{32767, 32767, false},
		{32767.4, 32767, false},
		{50000, 32767, true},
		{-32768, -32768, false},
		{-40000, -32768, true},
		{math.Inf(1), 32767, true},
		{math.NaN(), 0, true},
	}
	for _, tc := range tests {
		got, clipped := Flex16.Clip(tc.in)
		if got != tc.want || clipped != tc.clipped {
			t.Errorf("Clip(%v) = %d, %v; want %d, %v", tc.in, got, clipped, tc.want, tc.clipped)
		}
	}
}

func TestSafeScaleHeadroom(t *testing.T) {
	t.Parallel()
	for _, m := range []float64{1e-9, 0.3, 1, 3, 16383, 16384, 32767, 50000, 1e12} {
		s := safeScale(m, Flex16)
		limit := math.Ldexp(1, Flex16.Bits()-1)
		if m/s >= limit {
			t.Errorf("m=%v: m/s=%v not under %v", m, m/s, limit)
		}
		if m/(s/2) < limit {
			t.Errorf("m=%v: scale %v is not the smallest power of two", m, s)
		}
	}
}
