package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxSetpoints bounds the number of values a range literal may expand to.
const MaxSetpoints = 10000

// RangeSpec is an inclusive "start:stop:step" range literal.
type RangeSpec struct {
	Start float64
	Stop  float64
	Step  float64
}

// ParseRangeSpec parses a "start:stop:step" string. The step must be
// positive; a descending range is written with start > stop and is expanded
// downwards.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("%w: range %q: expected start:stop:step", ErrInvalidValue, s)
	}

	var vals [3]float64
	for i, name := range []string{"start", "stop", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("%w: invalid %s value %q: %v", ErrInvalidValue, name, parts[i], err)
		}
		vals[i] = v
	}

	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("%w: step must be positive, got %g", ErrInvalidValue, vals[2])
	}
	return RangeSpec{Start: vals[0], Stop: vals[1], Step: vals[2]}, nil
}

// Expand generates the values from Start to Stop inclusive. Values are
// rounded to 1e-9 to keep accumulated floating point error out of the
// setpoints.
func (r RangeSpec) Expand() ([]float64, error) {
	if r.Step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %g", ErrInvalidValue, r.Step)
	}
	span := math.Abs(r.Stop - r.Start)
	count := int(math.Floor(span/r.Step+1e-9)) + 1
	if count > MaxSetpoints || count < 1 {
		return nil, fmt.Errorf("%w: range %g:%g:%g expands to more than %d values",
			ErrInvalidValue, r.Start, r.Stop, r.Step, MaxSetpoints)
	}

	dir := 1.0
	if r.Stop < r.Start {
		dir = -1
	}
	out := make([]float64, count)
	for i := range out {
		v := r.Start + dir*float64(i)*r.Step
		out[i] = math.Round(v*1e9) / 1e9
	}
	return out, nil
}

// ParseCSVFloat64s parses a comma-separated list of values. Empty elements
// are skipped.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value %q: %v", ErrInvalidValue, p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseValueList parses either a range literal (when s contains a colon) or a
// comma-separated list.
func ParseValueList(s string) ([]float64, error) {
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Expand()
	}
	return ParseCSVFloat64s(s)
}
