package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// Setpoints is the per-axis value specification of one parameter: either an
// explicit finite sequence or the length of a sequence that will be streamed
// in at run time. The zero value is neither and is rejected by NewAxis.
type Setpoints struct {
	values   []float64
	count    int
	streamed bool
}

// Values returns explicit setpoints. The slice is copied.
func Values(xs ...float64) Setpoints {
	vals := make([]float64, len(xs))
	copy(vals, xs)
	return Setpoints{values: vals}
}

// Ints returns explicit integer setpoints.
func Ints(xs ...int) Setpoints {
	vals := make([]float64, len(xs))
	for i, x := range xs {
		vals[i] = float64(x)
	}
	return Setpoints{values: vals}
}

// Streamed returns setpoints delivered at run time in chunks of n values.
func Streamed(n int) Setpoints {
	return Setpoints{count: n, streamed: true}
}

// SetpointsFrom converts a loosely typed value, as decoded from a sweep
// definition file, into Setpoints. It accepts []float64, []int, []any of
// numbers, an integer stream count (int or an integral float64) and strings
// holding a range or comma-separated list.
func SetpointsFrom(v any) (Setpoints, error) {
	switch x := v.(type) {
	case Setpoints:
		if !x.valid() {
			return Setpoints{}, fmt.Errorf("%w: empty setpoints", ErrInvalidType)
		}
		return x, nil
	case []float64:
		return Values(x...), nil
	case []int:
		return Ints(x...), nil
	case int:
		return Streamed(x), nil
	case int64:
		return Streamed(int(x)), nil
	case float64:
		if x != float64(int(x)) {
			return Setpoints{}, fmt.Errorf("%w: stream count %g is not an integer", ErrInvalidType, x)
		}
		return Streamed(int(x)), nil
	case string:
		vals, err := ParseValueList(x)
		if err != nil {
			return Setpoints{}, err
		}
		return Values(vals...), nil
	case []any:
		vals := make([]float64, len(x))
		for i, e := range x {
			f, ok := toFloat(e)
			if !ok {
				return Setpoints{}, fmt.Errorf("%w: setpoint %d is %T, not a number", ErrInvalidType, i, e)
			}
			vals[i] = f
		}
		return Values(vals...), nil
	default:
		return Setpoints{}, fmt.Errorf("%w: setpoints must be a sequence or a stream count, got %T", ErrInvalidType, v)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (s Setpoints) valid() bool { return s.streamed || s.values != nil }

// IsStreamed reports whether the setpoints arrive through an input stream.
func (s Setpoints) IsStreamed() bool { return s.streamed }

// Len returns the number of values per sweep.
func (s Setpoints) Len() int {
	if s.streamed {
		return s.count
	}
	return len(s.values)
}

// Values returns a copy of the explicit values, or nil for streamed setpoints.
func (s Setpoints) Values() []float64 {
	if s.streamed || s.values == nil {
		return nil
	}
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Indices returns the placeholder setpoints 0..n-1 of streamed setpoints.
func (s Setpoints) Indices() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func (s Setpoints) String() string {
	switch {
	case s.streamed:
		return fmt.Sprintf("streamed(%d)", s.count)
	case s.values == nil:
		return "none"
	default:
		parts := make([]string, len(s.values))
		for i, v := range s.values {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
}
