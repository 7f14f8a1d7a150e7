package raster

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUncastable is returned when a variable cannot be converted to the requested dtype,
// for example a String variable cast to a float.
var ErrUncastable = errors.New("variable cannot be cast to the requested dtype")

// DType identifies the element type a variable is stored as. Pixel values are always held
// as float64 in memory; the DType decides how values are rounded, clamped and what the
// null representation is.
type DType int

const (
	// Unset is the zero DType. It is not a storage type; callers resolve it to a default.
	Unset DType = iota
	Uint8
	Int16
	Uint16
	Int32
	Float32
	Float64
	String
)

var dtypeNames = map[DType]string{
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
	String:  "string",
}

func (d DType) String() string {
	if d == Unset {
		return "unset"
	}
	if n, ok := dtypeNames[d]; ok {
		return n
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// ParseDType maps a numpy-style dtype name ("float32", "int16", ...) to a DType.
func ParseDType(s string) (DType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, n := range dtypeNames {
		if n == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}

// MarshalText lets DType appear as its name in YAML and JSON documents.
func (d DType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a dtype name.
func (d *DType) UnmarshalText(b []byte) error {
	parsed, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsNumeric reports whether values of this dtype are numbers.
func (d DType) IsNumeric() bool {
	return d != String && d != Unset
}

// IsFloat reports whether the dtype can represent NaN.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Size returns the per-element storage size in bytes. String variables report 0.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (d DType) bounds() (lo, hi float64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Int32:
		return math.MinInt32, math.MaxInt32
	}
	return math.Inf(-1), math.Inf(1)
}

// Convert maps v onto the value set of d. Integers truncate toward zero and saturate at
// the type bounds; NaN becomes 0 for integer types. Float32 rounds to single precision.
func (d DType) Convert(v float64) float64 {
	switch d {
	case Float64, Unset:
		return v
	case Float32:
		return float64(float32(v))
	case String:
		return v
	}
	if math.IsNaN(v) {
		return 0
	}
	lo, hi := d.bounds()
	v = math.Trunc(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Promote returns the dtype that can hold both a and b, mirroring numpy's promotion of
// integers to float64 when mixed with a float.
func Promote(a, b DType) DType {
	if a == b {
		return a
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return String
	}
	if a == Float64 || b == Float64 {
		return Float64
	}
	if a.IsFloat() && b.IsFloat() {
		return Float32
	}
	if a.IsFloat() || b.IsFloat() {
		return Float64
	}
	switch {
	case a.Size() > b.Size():
		return a
	case b.Size() > a.Size():
		return b
	}
	// same width, mixed signedness
	return Int32
}
