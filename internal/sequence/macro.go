package sequence

import (
	"fmt"
	"sort"

	"github.com/banshee-data/seqsweep/internal/rtprog"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// Macro emits the instructions a sequence runs once per sweep iteration.
type Macro interface {
	Name() string
	Emit(s *Sequence, prog *rtprog.Program) error
}

// MacroFactory builds a macro for a sequence, creating any parameters it
// needs that do not exist yet.
type MacroFactory func(s *Sequence) (Macro, error)

var macros = map[string]MacroFactory{
	"square_pulse": NewSquarePulse,
}

// RegisterMacro makes a macro available to NewMacro by name.
func RegisterMacro(name string, f MacroFactory) {
	macros[name] = f
}

// MacroNames returns the registered macro names, sorted.
func MacroNames() []string {
	names := make([]string, 0, len(macros))
	for n := range macros {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewMacro builds the macro registered under name for s.
func NewMacro(name string, s *Sequence) (Macro, error) {
	f, ok := macros[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown macro %q (known: %v)", sweep.ErrInvalidValue, name, MacroNames())
	}
	return f(s)
}

// SquarePulse ramps the sequence element up to amplitude, holds for
// t_square_pulse and ramps back down.
type SquarePulse struct {
	amplitude *sweep.Parameter
	rampTime  *sweep.Parameter
	hold      *sweep.Parameter
}

// Parameter names used by SquarePulse.
const (
	ParamAmplitude = "amplitude"
	ParamRampTime  = "ramp_time"
	ParamHold      = "t_square_pulse"
)

// NewSquarePulse binds a square pulse to the amplitude, ramp_time and
// t_square_pulse parameters of s. Missing parameters are created with
// defaults of 0.1, 20 and 100 clock cycles.
func NewSquarePulse(s *Sequence) (Macro, error) {
	amp, err := paramOrDefault(s, ParamAmplitude, 0.1)
	if err != nil {
		return nil, err
	}
	ramp, err := paramOrDefault(s, ParamRampTime, 20, sweep.WithKind(rtprog.Int))
	if err != nil {
		return nil, err
	}
	hold, err := paramOrDefault(s, ParamHold, 100, sweep.WithKind(rtprog.Int))
	if err != nil {
		return nil, err
	}
	return &SquarePulse{amplitude: amp, rampTime: ramp, hold: hold}, nil
}

func paramOrDefault(s *Sequence, name string, def float64, opts ...sweep.ParameterOption) (*sweep.Parameter, error) {
	if p, ok := s.Parameter(name); ok {
		return p, nil
	}
	p, err := s.AddParameter(name, opts...)
	if err != nil {
		return nil, err
	}
	return p, p.Set(sweep.Scalar(def))
}

func (m *SquarePulse) Name() string { return "square_pulse" }

func (m *SquarePulse) Emit(s *Sequence, prog *rtprog.Program) error {
	el := s.Element()
	if el == "" {
		return fmt.Errorf("%w: square pulse in %s has no element", sweep.ErrInvalidState, s.SequencePath())
	}
	prog.Align()
	prog.Play("ramp", el, m.amplitude.Operand(), m.rampTime.Operand())
	prog.Wait(m.hold.Operand(), el)
	prog.Play("ramp", el, rtprog.Neg{X: m.amplitude.Operand()}, m.rampTime.Operand())
	return nil
}
