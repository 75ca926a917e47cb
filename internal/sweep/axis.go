package sweep

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/rtprog"
)

// ParametrizeTolerance is the largest ratio of the standard deviation of
// successive setpoint differences to their mean for which an axis is emitted
// as a start/stop/step loop.
const ParametrizeTolerance = 0.1

// Strategy is the loop construct an axis is emitted as.
type Strategy int

const (
	StrategyExplicitArray Strategy = iota
	StrategyParametrized
	StrategyStreamed
)

func (s Strategy) String() string {
	switch s {
	case StrategyExplicitArray:
		return "explicit-array"
	case StrategyParametrized:
		return "parametrized"
	case StrategyStreamed:
		return "streamed"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a strategy name written by MarshalText.
func (s *Strategy) UnmarshalText(text []byte) error {
	for _, c := range []Strategy{StrategyExplicitArray, StrategyParametrized, StrategyStreamed} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("%w: unknown strategy %q", ErrInvalidValue, text)
}

// Binding pairs a parameter with its setpoints on one axis.
type Binding struct {
	Param     *Parameter
	Setpoints Setpoints
}

// Spec is the ordered declaration of one axis.
type Spec []Binding

// Progression is the start/step/stop form of a parametrized axis. Stop is
// exclusive: Stop = last setpoint + Step.
type Progression struct {
	Start float64 `json:"start"`
	Step  float64 `json:"step"`
	Stop  float64 `json:"stop"`
}

// AxisOption configures NewAxis.
type AxisOption func(*Axis)

// RegisterAll exposes every parameter of the axis as a result setpoint, not
// only the first one.
func RegisterAll() AxisOption {
	return func(a *Axis) { a.registerAll = true }
}

// Axis is one loop dimension. It is validated and classified when built and
// read-only afterwards.
type Axis struct {
	bindings    []Binding
	length      int
	strategy    Strategy
	progression Progression
	registerAll bool
}

// NewAxis validates spec and classifies its loop strategy. Streamed
// parameters are marked and registered with their owner only once the whole
// spec is valid; on error nothing stays registered.
func NewAxis(spec Spec, opts ...AxisOption) (*Axis, error) {
	if len(spec) == 0 {
		return nil, fmt.Errorf("%w: axis declares no parameters", ErrInvalidValue)
	}
	a := &Axis{}
	for _, opt := range opts {
		opt(a)
	}

	arrayLen, streamLen := -1, -1
	seen := make(map[*Parameter]bool, len(spec))
	for i, b := range spec {
		if b.Param == nil {
			return nil, fmt.Errorf("%w: axis entry %d has no parameter", ErrInvalidType, i)
		}
		if seen[b.Param] {
			return nil, fmt.Errorf("%w: %s appears twice on one axis", ErrInvalidValue, b.Param.FullName())
		}
		seen[b.Param] = true
		if !b.Setpoints.valid() {
			return nil, fmt.Errorf("%w: %s has neither setpoints nor a stream count", ErrInvalidType, b.Param.FullName())
		}

		n := b.Setpoints.Len()
		if b.Setpoints.IsStreamed() {
			if n < 1 {
				return nil, fmt.Errorf("%w: stream count for %s must be positive, got %d",
					ErrInvalidValue, b.Param.FullName(), n)
			}
			if streamLen >= 0 && n != streamLen {
				return nil, fmt.Errorf("%w: stream counts on one axis differ (%d and %d)", ErrInvalidValue, streamLen, n)
			}
			streamLen = n
			continue
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %s has an empty setpoint array", ErrInvalidValue, b.Param.FullName())
		}
		if arrayLen >= 0 && n != arrayLen {
			return nil, fmt.Errorf("%w: setpoint arrays on one axis differ in length (%d and %d)", ErrInvalidValue, arrayLen, n)
		}
		arrayLen = n
	}
	if arrayLen >= 0 && streamLen >= 0 && arrayLen != streamLen {
		return nil, fmt.Errorf("%w: setpoint arrays have %d values but streams deliver %d",
			ErrInvalidValue, arrayLen, streamLen)
	}

	a.bindings = make([]Binding, len(spec))
	copy(a.bindings, spec)
	a.length = max(arrayLen, streamLen)
	a.classify()

	if err := a.registerStreams(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Axis) classify() {
	switch {
	case a.Streamed():
		a.strategy = StrategyStreamed
	case len(a.bindings) == 1 && a.bindings[0].Param.Kind() != rtprog.Bool:
		if prog, ok := progressionOf(a.bindings[0].Setpoints.values); ok {
			a.strategy = StrategyParametrized
			a.progression = prog
			a.bindings[0].Param.parametrizable = true
			return
		}
		a.strategy = StrategyExplicitArray
	default:
		a.strategy = StrategyExplicitArray
	}
	for _, b := range a.bindings {
		b.Param.parametrizable = false
	}
}

// progressionOf reports whether values is close enough to an arithmetic
// progression: the population standard deviation of successive differences
// must be below ParametrizeTolerance times their mean. Single values and
// non-increasing arrays never qualify.
func progressionOf(values []float64) (Progression, bool) {
	if len(values) < 2 {
		return Progression{}, false
	}
	diffs := make([]float64, len(values)-1)
	for i := range diffs {
		diffs[i] = values[i+1] - values[i]
	}
	mean, std := stat.PopMeanStdDev(diffs, nil)
	if !(mean > 0) || !(std < ParametrizeTolerance*mean) {
		return Progression{}, false
	}
	return Progression{Start: values[0], Step: mean, Stop: values[len(values)-1] + mean}, true
}

func (a *Axis) registerStreams() error {
	var marked []*Parameter
	for _, b := range a.bindings {
		if !b.Setpoints.IsStreamed() {
			continue
		}
		if b.Param.streamRegistered {
			if n := b.Setpoints.Len(); b.Param.streamLength != n {
				err := fmt.Errorf("%w: %s is already streamed with %d values, axis requests %d",
					ErrInvalidValue, b.Param.FullName(), b.Param.streamLength, n)
				for _, p := range marked {
					p.clearStream()
				}
				return err
			}
			continue
		}
		err := b.Param.RequestStream(b.Setpoints.Len())
		if err == nil {
			err = b.Param.RegisterStream()
		}
		if err != nil {
			b.Param.clearStream()
			for _, p := range marked {
				p.clearStream()
			}
			return err
		}
		marked = append(marked, b.Param)
	}
	return nil
}

// release withdraws the stream registrations made by this axis.
func (a *Axis) release() {
	for _, b := range a.bindings {
		if b.Setpoints.IsStreamed() {
			b.Param.clearStream()
		}
		b.Param.parametrizable = false
	}
}

// Length returns the number of iterations of the axis.
func (a *Axis) Length() int { return a.length }

// Strategy returns the loop construct chosen for the axis.
func (a *Axis) Strategy() Strategy { return a.strategy }

// Streamed reports whether any parameter on the axis is streamed.
func (a *Axis) Streamed() bool {
	for _, b := range a.bindings {
		if b.Setpoints.IsStreamed() {
			return true
		}
	}
	return false
}

// Parameters returns the axis parameters in declaration order.
func (a *Axis) Parameters() []*Parameter {
	out := make([]*Parameter, len(a.bindings))
	for i, b := range a.bindings {
		out[i] = b.Param
	}
	return out
}

// Bindings returns a copy of the axis declaration.
func (a *Axis) Bindings() []Binding {
	out := make([]Binding, len(a.bindings))
	copy(out, a.bindings)
	return out
}

// Setpoints returns the values p takes along the axis. Streamed parameters
// yield the index placeholders 0..n-1.
func (a *Axis) Setpoints(p *Parameter) ([]float64, bool) {
	for _, b := range a.bindings {
		if b.Param != p {
			continue
		}
		if b.Setpoints.IsStreamed() {
			return b.Setpoints.Indices(), true
		}
		return b.Setpoints.Values(), true
	}
	return nil, false
}

// Exposed returns the parameters registered as result setpoints: the first
// parameter, or all of them with RegisterAll.
func (a *Axis) Exposed() []*Parameter {
	if a.registerAll {
		return a.Parameters()
	}
	return []*Parameter{a.bindings[0].Param}
}

// Progression returns the start/step/stop form of a parametrized axis.
func (a *Axis) Progression() (Progression, bool) {
	return a.progression, a.strategy == StrategyParametrized
}

// Declare binds every parameter of the axis to a loop variable in em.
// Parameters bound before an error are reset.
func (a *Axis) Declare(em Emitter) error {
	for i, b := range a.bindings {
		if err := b.Param.BindLoopVariable(em, b.Setpoints); err != nil {
			for _, prev := range a.bindings[:i] {
				prev.Param.Reset()
			}
			return err
		}
	}
	return nil
}

// Generate emits the axis loop around body.
func (a *Axis) Generate(em Emitter, body func() error) error {
	for _, b := range a.bindings {
		if b.Param.LoopVar() == nil {
			return fmt.Errorf("%w: %s is not bound to a loop variable", ErrInvalidState, b.Param.FullName())
		}
	}
	switch a.strategy {
	case StrategyStreamed:
		return a.streamLoop(em, body)
	case StrategyParametrized:
		return a.parametrizedLoop(em, body)
	default:
		return a.arrayLoop(em, body)
	}
}

func (a *Axis) streamLoop(em Emitter, body func() error) error {
	em.Warn("input streaming is not fully supported")
	vars := make([]*rtprog.Var, len(a.bindings))
	sources := make([]rtprog.Source, len(a.bindings))
	for i, b := range a.bindings {
		vars[i] = b.Param.LoopVar()
		if s := b.Param.InputStream(); s != nil {
			em.AdvanceInputStream(s)
			monitoring.Logf("assigning %s from input stream (%d values)", b.Param.FullName(), a.length)
			sources[i] = s
			continue
		}
		sources[i] = b.Param.SweepArray()
	}
	return em.ForEach(vars, sources, body)
}

func (a *Axis) parametrizedLoop(em Emitter, body func() error) error {
	p := a.bindings[0].Param
	prog := a.progression
	start, step := prog.Start*p.Scale(), prog.Step*p.Scale()
	if p.Kind() == rtprog.Int && step != math.Round(step) {
		em.Warn(fmt.Sprintf("%s: step %g rounded to %g for int loop variable", p.FullName(), step, math.Round(step)))
		step = math.Round(step)
		if step == 0 {
			step = 1
		}
	}
	// Derived from the rounded step so the loop runs exactly a.length times.
	stop := start + float64(a.length)*step

	msg := fmt.Sprintf("setpoints of %s are parametrized as start=%g step=%g stop=%g, check output",
		p.FullName(), start, step, stop)
	em.Warn(msg)
	monitoring.Warnf("%s", msg)
	return em.For(p.LoopVar(), start, stop, step, body)
}

func (a *Axis) arrayLoop(em Emitter, body func() error) error {
	vars := make([]*rtprog.Var, len(a.bindings))
	sources := make([]rtprog.Source, len(a.bindings))
	names := make([]string, len(a.bindings))
	for i, b := range a.bindings {
		vars[i] = b.Param.LoopVar()
		sources[i] = b.Param.SweepArray()
		names[i] = b.Param.FullName()
	}
	monitoring.Logf("assigning %s from arrays (%d values)", strings.Join(names, ", "), a.length)
	return em.ForEach(vars, sources, body)
}

func (a *Axis) String() string {
	names := make([]string, len(a.bindings))
	for i, b := range a.bindings {
		names[i] = b.Param.Name() + "=" + b.Setpoints.String()
	}
	return fmt.Sprintf("axis[%s, %d, %s]", strings.Join(names, " "), a.length, a.strategy)
}
