// Package rtprog describes programs for the real-time control sequencer as a
// tree of declarations and structured statements. A Program is the output of
// the sweep compiler: it is never executed here, a downstream code generator
// turns it into sequencer instructions.
package rtprog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// VarType is the numeric kind of a real-time variable.
type VarType int

const (
	Fixed VarType = iota
	Int
	Bool
)

func (t VarType) String() string {
	switch t {
	case Fixed:
		return "fixed"
	case Int:
		return "int"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("VarType(%d)", int(t))
	}
}

// ParseVarType parses "fixed", "float", "real", "int" or "bool".
func ParseVarType(s string) (VarType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed", "float", "real":
		return Fixed, nil
	case "int", "integer":
		return Int, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return Fixed, fmt.Errorf("unknown variable type %q: expected fixed, int or bool", s)
	}
}

// MarshalJSON encodes the type by name.
func (t VarType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type name.
func (t *VarType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseVarType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Operand is a value usable as an instruction argument: either a constant or
// a declared variable.
type Operand interface {
	operand() string
}

// Const is a literal operand.
type Const float64

func (c Const) operand() string { return formatFloat(float64(c)) }

// Neg negates an operand.
type Neg struct {
	X Operand
}

func (n Neg) operand() string { return "-" + operandString(n.X) }

// Var is a declared real-time variable.
type Var struct {
	Ref  string  `json:"ref"`
	Type VarType `json:"type"`
}

func (v *Var) operand() string { return v.Ref }

// Source is something a for_each loop iterates over.
type Source interface {
	Len() int
	sourceRef() string
}

// Array is a declared table of values stored in sequencer memory.
type Array struct {
	Ref    string    `json:"ref"`
	Type   VarType   `json:"type"`
	Values []float64 `json:"values"`
}

// Len returns the number of stored values.
func (a *Array) Len() int          { return len(a.Values) }
func (a *Array) sourceRef() string { return a.Ref }

// InputStream is a declared channel fed at run time by an external client.
// Name is the channel identity the client uses to push values.
type InputStream struct {
	Ref  string  `json:"ref"`
	Name string  `json:"name"`
	Type VarType `json:"type"`
	Size int     `json:"size"`
}

// Len returns the number of values delivered per advance.
func (s *InputStream) Len() int          { return s.Size }
func (s *InputStream) sourceRef() string { return s.Ref }

// ResultStream is a declared output stream for measured values.
type ResultStream struct {
	Ref string `json:"ref"`
}

// Instruction names.
const (
	OpFor        = "for"
	OpForEach    = "for_each"
	OpAdvance    = "advance_input_stream"
	OpPlay       = "play"
	OpWait       = "wait"
	OpAlign      = "align"
	OpMeasure    = "measure"
	OpAssign     = "assign"
	OpSave       = "save"
	OpPause      = "pause"
	OpBufferSave = "buffer_save"
	OpSaveAll    = "save_all"
)

// Stmt is one instruction. Loop instructions carry a nested body.
type Stmt struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
	Body []*Stmt  `json:"body,omitempty"`
}

// Program is a compiled sequencer program.
type Program struct {
	Name             string          `json:"name"`
	Vars             []*Var          `json:"vars"`
	Arrays           []*Array        `json:"arrays,omitempty"`
	InputStreams     []*InputStream  `json:"input_streams,omitempty"`
	ResultStreams    []*ResultStream `json:"result_streams,omitempty"`
	Body             []*Stmt         `json:"body"`
	StreamProcessing []*Stmt         `json:"stream_processing,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`

	// blocks is the stack of open statement lists; the last one receives
	// emitted statements.
	blocks []*[]*Stmt
}

// New creates an empty program.
func New(name string) *Program {
	p := &Program{Name: name}
	p.blocks = []*[]*Stmt{&p.Body}
	return p
}

func (p *Program) emit(op string, args ...string) *Stmt {
	s := &Stmt{Op: op, Args: args}
	top := p.blocks[len(p.blocks)-1]
	*top = append(*top, s)
	return s
}

// nest emits s's body by running fn with s as the open block.
func (p *Program) nest(s *Stmt, fn func() error) error {
	p.blocks = append(p.blocks, &s.Body)
	defer func() { p.blocks = p.blocks[:len(p.blocks)-1] }()
	return fn()
}

// Depth returns the current loop nesting depth.
func (p *Program) Depth() int { return len(p.blocks) - 1 }

// DeclareVar declares a new variable.
func (p *Program) DeclareVar(t VarType) *Var {
	v := &Var{Ref: fmt.Sprintf("v%d", len(p.Vars)), Type: t}
	p.Vars = append(p.Vars, v)
	return v
}

// DeclareArray declares an array holding a copy of values.
func (p *Program) DeclareArray(t VarType, values []float64) *Array {
	vals := make([]float64, len(values))
	copy(vals, values)
	a := &Array{Ref: fmt.Sprintf("a%d", len(p.Arrays)), Type: t, Values: vals}
	p.Arrays = append(p.Arrays, a)
	return a
}

// DeclareInputStream declares a named input stream delivering size values
// per advance.
func (p *Program) DeclareInputStream(t VarType, name string, size int) *InputStream {
	s := &InputStream{Ref: fmt.Sprintf("in%d", len(p.InputStreams)), Name: name, Type: t, Size: size}
	p.InputStreams = append(p.InputStreams, s)
	return s
}

// DeclareResultStream declares an output stream.
func (p *Program) DeclareResultStream() *ResultStream {
	s := &ResultStream{Ref: fmt.Sprintf("s%d", len(p.ResultStreams))}
	p.ResultStreams = append(p.ResultStreams, s)
	return s
}

// AdvanceInputStream blocks the sequencer until the next chunk of s arrives.
func (p *Program) AdvanceInputStream(s *InputStream) {
	p.emit(OpAdvance, s.Ref)
}

// For emits a loop of v over [start, stop) with the given step.
func (p *Program) For(v *Var, start, stop, step float64, body func() error) error {
	if v == nil {
		return fmt.Errorf("for: nil loop variable")
	}
	if step == 0 {
		return fmt.Errorf("for %s: step must be non-zero", v.Ref)
	}
	s := p.emit(OpFor, v.Ref, formatFloat(start), formatFloat(stop), formatFloat(step))
	return p.nest(s, body)
}

// ForEach emits a lock-step loop binding vars[i] to successive values of
// sources[i]. All sources must have the same length.
func (p *Program) ForEach(vars []*Var, sources []Source, body func() error) error {
	if len(vars) == 0 {
		return fmt.Errorf("for_each: no loop variables")
	}
	if len(vars) != len(sources) {
		return fmt.Errorf("for_each: %d variables for %d sources", len(vars), len(sources))
	}
	n := sources[0].Len()
	varRefs := make([]string, len(vars))
	srcRefs := make([]string, len(sources))
	for i := range vars {
		if vars[i] == nil || sources[i] == nil {
			return fmt.Errorf("for_each: nil variable or source at position %d", i)
		}
		if sources[i].Len() != n {
			return fmt.Errorf("for_each: source %s has %d values, want %d",
				sources[i].sourceRef(), sources[i].Len(), n)
		}
		varRefs[i] = vars[i].Ref
		srcRefs[i] = sources[i].sourceRef()
	}
	s := p.emit(OpForEach, "("+strings.Join(varRefs, ", ")+")", "("+strings.Join(srcRefs, ", ")+")")
	return p.nest(s, body)
}

// Play plays pulse on element scaled by amp for duration clock cycles. A nil
// duration uses the pulse's default length.
func (p *Program) Play(pulse, element string, amp, duration Operand) {
	args := []string{fmt.Sprintf("%s*amp(%s)", pulse, operandString(amp)), element}
	if duration != nil {
		args = append(args, "duration="+duration.operand())
	}
	p.emit(OpPlay, args...)
}

// Wait idles element for duration clock cycles.
func (p *Program) Wait(duration Operand, element string) {
	p.emit(OpWait, operandString(duration), element)
}

// Align synchronises the given elements, or all elements when none are given.
func (p *Program) Align(elements ...string) {
	p.emit(OpAlign, elements...)
}

// Measure demodulates pulse on element into the I and Q variables.
func (p *Program) Measure(pulse, element string, i, q *Var) {
	p.emit(OpMeasure, pulse, element, "demod.full(x,"+i.Ref+")", "demod.full(y,"+q.Ref+")")
}

// AssignSum emits target = a + b.
func (p *Program) AssignSum(target *Var, a, b Operand) {
	p.emit(OpAssign, target.Ref, operandString(a)+" + "+operandString(b))
}

// Save appends the current value of v to stream s.
func (p *Program) Save(v *Var, s *ResultStream) {
	p.emit(OpSave, v.Ref, s.Ref)
}

// Pause suspends the program until the client resumes it.
func (p *Program) Pause() {
	p.emit(OpPause)
}

// BufferSave adds a stream-processing step saving s in buffers of size
// values under name.
func (p *Program) BufferSave(s *ResultStream, size int, name string) {
	p.StreamProcessing = append(p.StreamProcessing,
		&Stmt{Op: OpBufferSave, Args: []string{s.Ref, strconv.Itoa(size), strconv.Quote(name)}})
}

// SaveAll adds a stream-processing step saving every value of s under name.
func (p *Program) SaveAll(s *ResultStream, name string) {
	p.StreamProcessing = append(p.StreamProcessing,
		&Stmt{Op: OpSaveAll, Args: []string{s.Ref, strconv.Quote(name)}})
}

// Warn records an advisory message for the program's consumer.
func (p *Program) Warn(msg string) {
	p.Warnings = append(p.Warnings, msg)
}

// ArrayWords returns the number of values stored in declared arrays.
func (p *Program) ArrayWords() int {
	n := 0
	for _, a := range p.Arrays {
		n += len(a.Values)
	}
	return n
}

// InputStream returns the declared input stream with the given channel name.
func (p *Program) InputStream(name string) (*InputStream, bool) {
	for _, s := range p.InputStreams {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

func operandString(o Operand) string {
	if o == nil {
		return "1"
	}
	return o.operand()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
