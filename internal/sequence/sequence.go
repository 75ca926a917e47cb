// Package sequence composes parameters, macros and readout points into a
// program for the real-time sequencer. The root Sequence owns the sweep: it
// holds the axes, the input streams of streamed parameters and the gettables
// registered against the sweep shape.
package sequence

import (
	"fmt"
	"strings"

	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/readout"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// StreamMode controls what the program does after each full sweep.
type StreamMode string

const (
	// PauseEach pauses after every sweep until a gettable resumes the program.
	PauseEach StreamMode = "pause_each"
	// Continuous runs sweeps back to back.
	Continuous StreamMode = "continuous"
)

// ParseStreamMode validates a stream mode. Empty means PauseEach.
func ParseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(s); m {
	case "":
		return PauseEach, nil
	case PauseEach, Continuous:
		return m, nil
	default:
		return "", fmt.Errorf("%w: stream mode %q", sweep.ErrInvalidValue, s)
	}
}

// Sequence is a named group of parameters, macros and readout points.
// Sub-sequences share the sweep of their root.
type Sequence struct {
	name    string
	element string
	parent  *Sequence

	params     map[string]*sweep.Parameter
	paramOrder []string
	subs       []*Sequence
	macros     []Macro
	points     []*readout.Point

	// Root only.
	mode      StreamMode
	sweeps    *sweep.Set
	streams   []*sweep.Parameter
	gettables []*readout.Gettable
}

// New creates a root sequence acting on element.
func New(name, element string) *Sequence {
	s := &Sequence{
		name:    name,
		element: element,
		params:  make(map[string]*sweep.Parameter),
		mode:    PauseEach,
	}
	s.sweeps = sweep.NewSet(s)
	return s
}

// NewSubSequence adds a child sequence. Its element defaults to the parent's.
func (s *Sequence) NewSubSequence(name, element string) (*Sequence, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, fmt.Errorf("%w: sub-sequence name %q", sweep.ErrInvalidValue, name)
	}
	for _, sub := range s.subs {
		if sub.name == name {
			return nil, fmt.Errorf("%w: sub-sequence %s already exists in %s", sweep.ErrInvalidValue, name, s.SequencePath())
		}
	}
	if element == "" {
		element = s.element
	}
	sub := &Sequence{
		name:    name,
		element: element,
		parent:  s,
		params:  make(map[string]*sweep.Parameter),
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *Sequence) Name() string    { return s.name }
func (s *Sequence) Element() string { return s.element }

// SequencePath returns the names from the root down, joined by "_".
func (s *Sequence) SequencePath() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.SequencePath() + "_" + s.name
}

// Root returns the top-level sequence owning the sweep.
func (s *Sequence) Root() *Sequence {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// SubSequences returns the direct children.
func (s *Sequence) SubSequences() []*Sequence {
	out := make([]*Sequence, len(s.subs))
	copy(out, s.subs)
	return out
}

// SetStreamMode sets the stream mode of the root sequence.
func (s *Sequence) SetStreamMode(m StreamMode) { s.Root().mode = m }

// StreamMode returns the stream mode of the root sequence.
func (s *Sequence) StreamMode() StreamMode { return s.Root().mode }

// AddParameter creates a parameter of this sequence.
func (s *Sequence) AddParameter(name string, opts ...sweep.ParameterOption) (*sweep.Parameter, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty parameter name", sweep.ErrInvalidValue)
	}
	if _, ok := s.params[name]; ok {
		return nil, fmt.Errorf("%w: parameter %s already exists in %s", sweep.ErrInvalidValue, name, s.SequencePath())
	}
	opts = append([]sweep.ParameterOption{sweep.WithElement(s.element)}, opts...)
	p := sweep.NewParameter(s, name, opts...)
	s.params[name] = p
	s.paramOrder = append(s.paramOrder, name)
	return p, nil
}

// Parameter returns the parameter called name of this sequence.
func (s *Sequence) Parameter(name string) (*sweep.Parameter, bool) {
	p, ok := s.params[name]
	return p, ok
}

// Parameters returns the parameters of this sequence in creation order.
func (s *Sequence) Parameters() []*sweep.Parameter {
	out := make([]*sweep.Parameter, len(s.paramOrder))
	for i, n := range s.paramOrder {
		out[i] = s.params[n]
	}
	return out
}

// AllParameters returns the parameters of this sequence and its
// descendants, depth first.
func (s *Sequence) AllParameters() []*sweep.Parameter {
	out := s.Parameters()
	for _, sub := range s.subs {
		out = append(out, sub.AllParameters()...)
	}
	return out
}

// Lookup resolves a dotted path such as "square.amplitude" relative to s.
func (s *Sequence) Lookup(path string) (*sweep.Parameter, error) {
	parts := strings.Split(path, ".")
	cur := s
	for _, name := range parts[:len(parts)-1] {
		var next *Sequence
		for _, sub := range cur.subs {
			if sub.name == name {
				next = sub
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: no sub-sequence %q in %s", sweep.ErrInvalidValue, name, cur.SequencePath())
		}
		cur = next
	}
	p, ok := cur.params[parts[len(parts)-1]]
	if !ok {
		return nil, fmt.Errorf("%w: no parameter %q in %s", sweep.ErrInvalidValue, parts[len(parts)-1], cur.SequencePath())
	}
	return p, nil
}

// RegisterInputStream implements sweep.Owner. Streams are collected at the
// root.
func (s *Sequence) RegisterInputStream(p *sweep.Parameter) error {
	root := s.Root()
	if p.Owner() == nil {
		return fmt.Errorf("%w: %s has no owner", sweep.ErrInvalidState, p.Name())
	}
	if owner, ok := p.Owner().(*Sequence); !ok || owner.Root() != root {
		return fmt.Errorf("%w: %s does not belong to %s", sweep.ErrOwnership, p.FullName(), root.name)
	}
	for _, q := range root.streams {
		if q == p {
			return nil
		}
	}
	root.streams = append(root.streams, p)
	monitoring.Logf("sequence %s: registered input stream %s", root.name, p.FullName())
	return nil
}

// ReleaseInputStream implements sweep.Owner.
func (s *Sequence) ReleaseInputStream(p *sweep.Parameter) {
	root := s.Root()
	for i, q := range root.streams {
		if q == p {
			root.streams = append(root.streams[:i], root.streams[i+1:]...)
			return
		}
	}
}

// InputStreams returns the streamed parameters of the whole tree.
func (s *Sequence) InputStreams() []*sweep.Parameter {
	root := s.Root()
	out := make([]*sweep.Parameter, len(root.streams))
	copy(out, root.streams)
	return out
}

// AddMacro appends a macro to the per-iteration body of this sequence.
func (s *Sequence) AddMacro(m Macro) { s.macros = append(s.macros, m) }

// Macros returns the macros of this sequence.
func (s *Sequence) Macros() []Macro {
	out := make([]Macro, len(s.macros))
	copy(out, s.macros)
	return out
}

// AddReadoutPoint adds a point measured after the macros of this sequence.
func (s *Sequence) AddReadoutPoint(p *readout.Point) error {
	for _, q := range s.Root().allPoints() {
		if q.Name() == p.Name() {
			return fmt.Errorf("%w: readout point %s already exists", sweep.ErrInvalidValue, p.Name())
		}
	}
	s.points = append(s.points, p)
	return nil
}

// ReadoutPoints returns the points of this sequence.
func (s *Sequence) ReadoutPoints() []*readout.Point {
	out := make([]*readout.Point, len(s.points))
	copy(out, s.points)
	return out
}

func (s *Sequence) allPoints() []*readout.Point {
	out := s.ReadoutPoints()
	for _, sub := range s.subs {
		out = append(out, sub.allPoints()...)
	}
	return out
}

// Observable finds an observable by its full name anywhere in the tree.
func (s *Sequence) Observable(fullName string) (*readout.Observable, bool) {
	for _, p := range s.Root().allPoints() {
		prefix := p.Name() + "__"
		if strings.HasPrefix(fullName, prefix) {
			if o, ok := p.ObservableByName(strings.TrimPrefix(fullName, prefix)); ok {
				return o, true
			}
		}
	}
	return nil, false
}

// Sweeps returns the sweep set of the root sequence.
func (s *Sequence) Sweeps() *sweep.Set { return s.Root().sweeps }

// SetSweeps replaces the sweep axes of the root sequence, one axis per spec.
func (s *Sequence) SetSweeps(specs ...sweep.Spec) error {
	return s.SetSweepsWith(nil, specs...)
}

// SetSweepsWith is SetSweeps with axis options.
func (s *Sequence) SetSweepsWith(opts []sweep.AxisOption, specs ...sweep.Spec) error {
	root := s.Root()
	root.gettables = nil
	if err := root.sweeps.SetAxesWith(opts, specs...); err != nil {
		return fmt.Errorf("sequence %s: %w", root.name, err)
	}
	return nil
}

// SweepSize returns the number of iterations of one full sweep.
func (s *Sequence) SweepSize() int { return s.Root().sweeps.Size() }

// NewGettable creates a gettable for the observable with the given full name,
// owned by the root sequence.
func (s *Sequence) NewGettable(observable string) (*readout.Gettable, error) {
	o, ok := s.Observable(observable)
	if !ok {
		return nil, fmt.Errorf("%w: no observable %q", sweep.ErrInvalidValue, observable)
	}
	return readout.NewGettable(s.Root(), o), nil
}

// RegisterGettables writes the sweep layout to gs and fixes the loop nesting
// order of the root sequence.
func (s *Sequence) RegisterGettables(gs ...*readout.Gettable) error {
	root := s.Root()
	consumers := make([]sweep.ResultConsumer, len(gs))
	for i, g := range gs {
		if g == nil {
			return fmt.Errorf("%w: gettable %d is nil", sweep.ErrInvalidType, i)
		}
		consumers[i] = g
	}
	if err := root.sweeps.RegisterResultConsumers(consumers...); err != nil {
		return fmt.Errorf("sequence %s: %w", root.name, err)
	}
	root.gettables = append([]*readout.Gettable(nil), gs...)
	if !root.sweeps.Finalized() {
		return root.sweeps.FinalizeAxisOrder()
	}
	return nil
}

// Gettables returns the registered gettables.
func (s *Sequence) Gettables() []*readout.Gettable {
	root := s.Root()
	out := make([]*readout.Gettable, len(root.gettables))
	copy(out, root.gettables)
	return out
}
