// Package readout declares the measurement side of a sweep: readout points
// that demodulate signals into observables, and gettables that retrieve one
// shaped batch of results per sweep.
package readout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/rtprog"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// Kind is a demodulated quantity.
type Kind string

const (
	KindI  Kind = "I"
	KindQ  Kind = "Q"
	KindIQ Kind = "IQ"
)

// ParseKind validates an observable kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case KindI, KindQ, KindIQ:
		return k, nil
	default:
		return "", fmt.Errorf("%w: observable %q must be one of I, Q, IQ", sweep.ErrInvalidValue, s)
	}
}

// ObservableKey identifies an observable of a point.
type ObservableKey struct {
	Element string
	Kind    Kind
}

// Name returns "<element>_<kind>".
func (k ObservableKey) Name() string { return k.Element + "_" + string(k.Kind) }

// Observable is one measured quantity of one readout element.
type Observable struct {
	Key   ObservableKey
	Point *Point

	// Set by DeclareVariables.
	Var    *rtprog.Var
	Stream *rtprog.ResultStream
}

// Name returns "<element>_<kind>".
func (o *Observable) Name() string { return o.Key.Name() }

// FullName returns "<point name>__<element>_<kind>", the name results are
// saved under.
func (o *Observable) FullName() string { return o.Point.Name() + "__" + o.Name() }

// Signal is a physical signal read out through one or more elements.
type Signal struct {
	Name     string
	Elements []string
}

// PointConfig describes a readout point.
type PointConfig struct {
	Name        string   `json:"name"`
	Desc        string   `json:"desc"`
	Observables []string `json:"observables"`
	// SaveValues defaults to true.
	SaveValues *bool `json:"save_values,omitempty"`
}

// Point measures a signal at one point of the sequence.
type Point struct {
	name       string
	desc       string
	signal     Signal
	saveValues bool
	kinds      []Kind

	observables map[ObservableKey]*Observable
	order       []ObservableKey
}

// NewPoint creates a readout point with one observable per element and kind.
// I and Q are always required since every measurement demodulates both.
func NewPoint(signal Signal, cfg PointConfig) (*Point, error) {
	if signal.Name == "" || cfg.Name == "" {
		return nil, fmt.Errorf("%w: readout point needs a signal and a name", sweep.ErrInvalidValue)
	}
	if len(signal.Elements) == 0 {
		return nil, fmt.Errorf("%w: signal %s has no readout elements", sweep.ErrInvalidValue, signal.Name)
	}
	p := &Point{
		name:        signal.Name + "__" + cfg.Name,
		desc:        cfg.Desc,
		signal:      signal,
		saveValues:  cfg.SaveValues == nil || *cfg.SaveValues,
		observables: make(map[ObservableKey]*Observable),
	}

	seen := make(map[Kind]bool)
	for _, s := range cfg.Observables {
		k, err := ParseKind(s)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", p.name, err)
		}
		if !seen[k] {
			seen[k] = true
			p.kinds = append(p.kinds, k)
		}
	}
	if !seen[KindI] || !seen[KindQ] {
		return nil, fmt.Errorf("%w: point %s must observe I and Q", sweep.ErrInvalidValue, p.name)
	}

	for _, el := range signal.Elements {
		for _, k := range p.kinds {
			key := ObservableKey{Element: el, Kind: k}
			p.observables[key] = &Observable{Key: key, Point: p}
			p.order = append(p.order, key)
			monitoring.Logf("added observable %s to point %s", key.Name(), p.name)
		}
	}
	return p, nil
}

// Name returns "<signal>__<point>".
func (p *Point) Name() string        { return p.name }
func (p *Point) Description() string { return p.desc }
func (p *Point) Signal() Signal      { return p.signal }
func (p *Point) SaveValues() bool    { return p.saveValues }

// Observable looks up the observable of element and kind.
func (p *Point) Observable(element string, kind Kind) (*Observable, bool) {
	o, ok := p.observables[ObservableKey{Element: element, Kind: kind}]
	return o, ok
}

// ObservableByName looks up an observable by "<element>_<kind>".
func (p *Point) ObservableByName(name string) (*Observable, bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 {
		return nil, false
	}
	return p.Observable(name[:i], Kind(name[i+1:]))
}

// Observables returns the observables by element, then kind.
func (p *Point) Observables() []*Observable {
	out := make([]*Observable, len(p.order))
	for i, k := range p.order {
		out[i] = p.observables[k]
	}
	return out
}

// Names returns the sorted observable names.
func (p *Point) Names() []string {
	names := make([]string, 0, len(p.order))
	for _, k := range p.order {
		names = append(names, k.Name())
	}
	sort.Strings(names)
	return names
}

// Emitter receives the instructions of a readout point. *rtprog.Program
// implements it.
type Emitter interface {
	DeclareVar(t rtprog.VarType) *rtprog.Var
	DeclareResultStream() *rtprog.ResultStream
	Measure(pulse, element string, i, q *rtprog.Var)
	AssignSum(target *rtprog.Var, a, b rtprog.Operand)
	Save(v *rtprog.Var, s *rtprog.ResultStream)
	BufferSave(s *rtprog.ResultStream, size int, name string)
	SaveAll(s *rtprog.ResultStream, name string)
}

// DeclareVariables declares a fixed variable and a result stream per
// observable.
func (p *Point) DeclareVariables(em Emitter) {
	for _, k := range p.order {
		o := p.observables[k]
		o.Var = em.DeclareVar(rtprog.Fixed)
		o.Stream = em.DeclareResultStream()
	}
}

// Measure demodulates I and Q on every element; IQ is assigned I + Q.
func (p *Point) Measure(em Emitter) error {
	for _, el := range p.signal.Elements {
		i, _ := p.Observable(el, KindI)
		q, _ := p.Observable(el, KindQ)
		if i.Var == nil || q.Var == nil {
			return fmt.Errorf("%w: point %s measured before its variables were declared",
				sweep.ErrInvalidState, p.name)
		}
		em.Measure("measure", el, i.Var, q.Var)
		if iq, ok := p.Observable(el, KindIQ); ok {
			em.AssignSum(iq.Var, i.Var, q.Var)
		}
	}
	return nil
}

// Save saves every observable's variable to its stream.
func (p *Point) Save(em Emitter) {
	for _, k := range p.order {
		o := p.observables[k]
		em.Save(o.Var, o.Stream)
	}
}

// MeasureAndSave runs Measure then Save.
func (p *Point) MeasureAndSave(em Emitter) error {
	if err := p.Measure(em); err != nil {
		return err
	}
	p.Save(em)
	return nil
}

// SaveStreams adds the stream processing of every observable: a buffer of
// sweepSize values saved as "<full name>_buffer" and every value saved as
// "<full name>". Nothing is saved when the point does not save values.
func (p *Point) SaveStreams(em Emitter, sweepSize int) {
	if !p.saveValues {
		monitoring.Logf("values of point %s will not be saved", p.name)
		return
	}
	for _, k := range p.order {
		o := p.observables[k]
		em.BufferSave(o.Stream, sweepSize, o.FullName()+"_buffer")
		em.SaveAll(o.Stream, o.FullName())
	}
}
