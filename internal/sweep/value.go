package sweep

import (
	"fmt"
	"math"
)

// Value is the content of a Parameter: unset, a scalar, or an array of
// per-iteration values. The zero Value is unset.
type Value struct {
	scalar  float64
	array   []float64
	isSet   bool
	isArray bool
}

// Scalar returns a scalar Value.
func Scalar(x float64) Value { return Value{scalar: x, isSet: true} }

// Array returns an array Value holding a copy of xs.
func Array(xs []float64) Value {
	vals := make([]float64, len(xs))
	copy(vals, xs)
	return Value{array: vals, isSet: true, isArray: true}
}

// IsSet reports whether the value holds anything.
func (v Value) IsSet() bool { return v.isSet }

// IsArray reports whether the value is an array.
func (v Value) IsArray() bool { return v.isArray }

// Float returns the scalar content. ok is false for unset or array values.
func (v Value) Float() (x float64, ok bool) {
	if !v.isSet || v.isArray {
		return 0, false
	}
	return v.scalar, true
}

// Floats returns a copy of the array content, or nil for scalars.
func (v Value) Floats() []float64 {
	if !v.isArray {
		return nil
	}
	out := make([]float64, len(v.array))
	copy(out, v.array)
	return out
}

func (v Value) String() string {
	switch {
	case !v.isSet:
		return "unset"
	case v.isArray:
		return fmt.Sprintf("%v", v.array)
	default:
		return fmt.Sprintf("%g", v.scalar)
	}
}

// Constraint validates values assigned to a parameter.
type Constraint interface {
	Check(v Value) error
	String() string
}

// ScalarOnly accepts any scalar value.
type ScalarOnly struct{}

func (ScalarOnly) Check(v Value) error {
	if v.isArray {
		return fmt.Errorf("%w: array assigned to a scalar parameter", ErrInvalidType)
	}
	if v.isSet && (math.IsNaN(v.scalar) || math.IsInf(v.scalar, 0)) {
		return fmt.Errorf("%w: %g is not a finite number", ErrInvalidValue, v.scalar)
	}
	return nil
}

func (ScalarOnly) String() string { return "scalar" }

// ScalarRange accepts scalars within [Min, Max].
type ScalarRange struct {
	Min, Max float64
}

func (c ScalarRange) Check(v Value) error {
	if err := (ScalarOnly{}).Check(v); err != nil {
		return err
	}
	if v.isSet && (v.scalar < c.Min || v.scalar > c.Max) {
		return fmt.Errorf("%w: %g outside [%g, %g]", ErrInvalidValue, v.scalar, c.Min, c.Max)
	}
	return nil
}

func (c ScalarRange) String() string { return fmt.Sprintf("scalar in [%g, %g]", c.Min, c.Max) }

// ArrayShape accepts arrays of exactly N values. It is installed while a
// parameter is swept or streamed.
type ArrayShape struct {
	N int
}

func (c ArrayShape) Check(v Value) error {
	if !v.isArray {
		return fmt.Errorf("%w: swept parameter expects an array of %d values", ErrInvalidType, c.N)
	}
	if len(v.array) != c.N {
		return fmt.Errorf("%w: array has %d values, want %d", ErrInvalidValue, len(v.array), c.N)
	}
	return nil
}

func (c ArrayShape) String() string { return fmt.Sprintf("array[%d]", c.N) }
