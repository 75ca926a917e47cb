package sweep

import (
	"fmt"
	"math"

	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/rtprog"
)

// BindingState is the lifecycle state of a Parameter.
type BindingState int

const (
	// StateUnbound: no value has been assigned yet.
	StateUnbound BindingState = iota
	// StateScalar: holds a concrete scalar.
	StateScalar
	// StateSwept: bound to a loop variable iterating explicit setpoints.
	StateSwept
	// StateStreamed: bound to a loop variable fed from an input stream.
	StateStreamed
)

func (s BindingState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateScalar:
		return "scalar"
	case StateSwept:
		return "swept"
	case StateStreamed:
		return "streamed"
	default:
		return fmt.Sprintf("BindingState(%d)", int(s))
	}
}

// Owner is the group a Parameter belongs to. It names the parameter's fully
// qualified path and declares the input streams its parameters need.
type Owner interface {
	SequencePath() string
	RegisterInputStream(p *Parameter) error
	ReleaseInputStream(p *Parameter)
}

// Emitter receives the declarations and loops produced while compiling a
// sweep. *rtprog.Program implements it.
type Emitter interface {
	DeclareVar(t rtprog.VarType) *rtprog.Var
	DeclareArray(t rtprog.VarType, values []float64) *rtprog.Array
	DeclareInputStream(t rtprog.VarType, name string, size int) *rtprog.InputStream
	AdvanceInputStream(s *rtprog.InputStream)
	For(v *rtprog.Var, start, stop, step float64, body func() error) error
	ForEach(vars []*rtprog.Var, sources []rtprog.Source, body func() error) error
	Warn(msg string)
}

// Parameter is a named control value of a sequence. It holds a scalar until
// an axis binds it to a loop variable, and returns to its scalar after Reset.
type Parameter struct {
	name    string
	owner   Owner
	kind    rtprog.VarType
	scale   float64
	unit    string
	element string

	state            BindingState
	value            Value
	saved            Value
	scalarConstraint Constraint
	constraint       Constraint

	// Compiled bindings, set by BindLoopVariable and cleared by Reset.
	loopVar    *rtprog.Var
	sweepArray *rtprog.Array
	stream     *rtprog.InputStream

	// parametrizable is set by the owning axis when its setpoints collapse to
	// a progression; no array is declared then.
	parametrizable bool

	// Streamed channel request, owned by the axis declaring it.
	streamLength     int
	streamRegistered bool
}

// ParameterOption configures a Parameter.
type ParameterOption func(*Parameter)

// WithKind sets the numeric kind of the loop variable. Default fixed.
func WithKind(k rtprog.VarType) ParameterOption {
	return func(p *Parameter) { p.kind = k }
}

// WithScale sets the factor applied to declared arrays and operands.
func WithScale(scale float64) ParameterOption {
	return func(p *Parameter) { p.scale = scale }
}

// WithUnit sets the display unit.
func WithUnit(unit string) ParameterOption {
	return func(p *Parameter) { p.unit = unit }
}

// WithElement sets the sequencer element the parameter acts on.
func WithElement(element string) ParameterOption {
	return func(p *Parameter) { p.element = element }
}

// WithConstraint replaces the default ScalarOnly constraint.
func WithConstraint(c Constraint) ParameterOption {
	return func(p *Parameter) { p.scalarConstraint = c }
}

// NewParameter creates an unbound parameter belonging to owner.
func NewParameter(owner Owner, name string, opts ...ParameterOption) *Parameter {
	p := &Parameter{
		name:             name,
		owner:            owner,
		scale:            1,
		scalarConstraint: ScalarOnly{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.constraint = p.scalarConstraint
	return p
}

func (p *Parameter) Name() string           { return p.name }
func (p *Parameter) Owner() Owner           { return p.owner }
func (p *Parameter) Kind() rtprog.VarType   { return p.kind }
func (p *Parameter) Scale() float64         { return p.scale }
func (p *Parameter) Unit() string           { return p.unit }
func (p *Parameter) Element() string        { return p.element }
func (p *Parameter) State() BindingState    { return p.state }
func (p *Parameter) Constraint() Constraint { return p.constraint }

// FullName returns "<owner path>_<name>", the identity of the parameter's
// input stream.
func (p *Parameter) FullName() string {
	if p.owner == nil {
		return p.name
	}
	return p.owner.SequencePath() + "_" + p.name
}

func (p *Parameter) String() string { return p.FullName() }

// Get returns the current value.
func (p *Parameter) Get() Value { return p.value }

// Set assigns v after checking it against the active constraint.
func (p *Parameter) Set(v Value) error {
	if err := p.constraint.Check(v); err != nil {
		return fmt.Errorf("set %s: %w", p.FullName(), err)
	}
	if p.state == StateUnbound && v.IsSet() && !v.IsArray() {
		p.state = StateScalar
	}
	p.value = v
	return nil
}

// SetConstraint replaces the constraint used while the parameter holds a
// scalar. The current value must satisfy it.
func (p *Parameter) SetConstraint(c Constraint) error {
	if c == nil {
		c = ScalarOnly{}
	}
	if p.state == StateScalar || p.state == StateUnbound {
		if err := c.Check(p.value); err != nil {
			return fmt.Errorf("constraint %s on %s: %w", c, p.FullName(), err)
		}
		p.constraint = c
	}
	p.scalarConstraint = c
	return nil
}

// RequestStream marks the parameter as fed by an input stream delivering
// length values per sweep.
func (p *Parameter) RequestStream(length int) error {
	if length < 1 {
		return fmt.Errorf("%w: stream length for %s must be positive, got %d", ErrInvalidValue, p.FullName(), length)
	}
	p.streamLength = length
	return nil
}

// StreamLength returns the requested stream length, 0 when not streamed.
func (p *Parameter) StreamLength() int { return p.streamLength }

// IsStreamed reports whether an input stream was requested.
func (p *Parameter) IsStreamed() bool { return p.streamLength > 0 }

// RegisterStream asks the owner to declare the requested input stream.
func (p *Parameter) RegisterStream() error {
	if p.streamLength == 0 {
		return fmt.Errorf("%w: %s has no stream request", ErrInvalidState, p.FullName())
	}
	if p.owner == nil {
		return fmt.Errorf("%w: %s has no owner to register its stream with", ErrInvalidState, p.name)
	}
	if p.streamRegistered {
		return nil
	}
	if err := p.owner.RegisterInputStream(p); err != nil {
		return fmt.Errorf("register stream %s: %w", p.FullName(), err)
	}
	p.streamRegistered = true
	return nil
}

// clearStream withdraws the stream request and its registration.
func (p *Parameter) clearStream() {
	if p.streamRegistered && p.owner != nil {
		p.owner.ReleaseInputStream(p)
	}
	p.streamLength = 0
	p.streamRegistered = false
}

// BindLoopVariable declares the parameter's loop variable in em. Explicit
// setpoints are declared as an array of scaled values unless the owning axis
// marked the parameter parametrizable; streamed setpoints declare an input
// stream named by FullName.
func (p *Parameter) BindLoopVariable(em Emitter, sp Setpoints) error {
	if p.state == StateSwept || p.state == StateStreamed {
		return fmt.Errorf("%w: %s is already bound", ErrInvalidState, p.FullName())
	}
	if !sp.valid() {
		return fmt.Errorf("%w: %s has no setpoints", ErrInvalidType, p.FullName())
	}

	if sp.IsStreamed() {
		if !p.streamRegistered || p.streamLength != sp.Len() {
			return fmt.Errorf("%w: %s was not registered for a stream of %d values",
				ErrInvalidState, p.FullName(), sp.Len())
		}
		monitoring.Logf("declaring input stream %s (%d values)", p.FullName(), sp.Len())
		p.loopVar = em.DeclareVar(p.kind)
		p.stream = em.DeclareInputStream(p.kind, p.FullName(), sp.Len())
		p.bind(StateStreamed, sp.Len(), Array(sp.Indices()))
		return nil
	}

	values := sp.Values()
	if err := checkKind(p.kind, values); err != nil {
		return fmt.Errorf("bind %s: %w", p.FullName(), err)
	}
	p.loopVar = em.DeclareVar(p.kind)
	if !p.parametrizable {
		scaled := make([]float64, len(values))
		for i, v := range values {
			scaled[i] = v * p.scale
		}
		p.sweepArray = em.DeclareArray(p.kind, scaled)
	}
	p.bind(StateSwept, len(values), Array(values))
	return nil
}

func (p *Parameter) bind(state BindingState, n int, v Value) {
	p.saved = p.value
	p.value = v
	p.state = state
	p.constraint = ArrayShape{N: n}
}

func checkKind(kind rtprog.VarType, values []float64) error {
	for _, v := range values {
		switch kind {
		case rtprog.Int:
			if v != math.Trunc(v) {
				return fmt.Errorf("%w: int parameter cannot take setpoint %g", ErrInvalidType, v)
			}
		case rtprog.Bool:
			if v != 0 && v != 1 {
				return fmt.Errorf("%w: bool parameter cannot take setpoint %g", ErrInvalidType, v)
			}
		}
	}
	return nil
}

// Reset unwinds a loop binding: the scalar held before binding is restored
// and the scalar constraint reinstalled. The stream request belongs to the
// axis and is kept. Reset on an unbound or scalar parameter does nothing.
func (p *Parameter) Reset() {
	if p.state != StateSwept && p.state != StateStreamed {
		return
	}
	p.value = p.saved
	p.saved = Value{}
	if p.value.IsSet() {
		p.state = StateScalar
	} else {
		p.state = StateUnbound
	}
	p.constraint = p.scalarConstraint
	p.loopVar = nil
	p.sweepArray = nil
	p.stream = nil
}

// LoopVar returns the bound loop variable, nil when not bound.
func (p *Parameter) LoopVar() *rtprog.Var { return p.loopVar }

// SweepArray returns the declared setpoint array, nil unless the parameter
// iterates an explicit array.
func (p *Parameter) SweepArray() *rtprog.Array { return p.sweepArray }

// InputStream returns the declared input stream, nil unless streamed.
func (p *Parameter) InputStream() *rtprog.InputStream { return p.stream }

// Operand returns the loop variable when bound, else the scaled scalar.
func (p *Parameter) Operand() rtprog.Operand {
	if p.loopVar != nil {
		return p.loopVar
	}
	x, _ := p.value.Float()
	return rtprog.Const(x * p.scale)
}
