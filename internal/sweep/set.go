package sweep

import (
	"fmt"

	"github.com/banshee-data/seqsweep/internal/monitoring"
)

// ResultLayout is what a result consumer needs to know about the sweep that
// produces its data.
type ResultLayout struct {
	// BatchSize is the number of values retrieved per full sweep.
	BatchSize int
	// CanResume is true for the consumer whose retrieval resumes the paused
	// program.
	CanResume bool
	// Setpoints are the exposed sweep parameters, in axis order.
	Setpoints []*Parameter
	// Shape holds the axis lengths in declaration order.
	Shape []int
}

// ResultConsumer receives the layout of the sweep it belongs to.
type ResultConsumer interface {
	SweepOwner() Owner
	SetLayout(ResultLayout)
}

// Set is the ordered list of axes of one sweep owner.
type Set struct {
	owner     Owner
	axes      []*Axis
	setpoints []*Parameter
	consumers []ResultConsumer

	configured bool
	nesting    []*Axis
	finalized  bool
}

// NewSet creates an empty sweep set for owner.
func NewSet(owner Owner) *Set {
	return &Set{owner: owner}
}

// Owner returns the sweep owner.
func (s *Set) Owner() Owner { return s.owner }

// SetAxes replaces all axes, one per spec. On error the set is left empty
// and no stream stays registered.
func (s *Set) SetAxes(specs ...Spec) error {
	return s.SetAxesWith(nil, specs...)
}

// SetAxesWith is SetAxes with axis options applied to every axis. A parameter
// may appear on only one axis, since it has a single loop binding.
func (s *Set) SetAxesWith(opts []AxisOption, specs ...Spec) error {
	s.clear()

	var axes []*Axis
	fail := func(err error) error {
		for _, a := range axes {
			a.release()
		}
		return err
	}

	seen := make(map[*Parameter]int)
	for i, spec := range specs {
		for _, b := range spec {
			if b.Param == nil {
				continue
			}
			if j, ok := seen[b.Param]; ok && j != i {
				return fail(fmt.Errorf("%w: %s is swept on axes %d and %d",
					ErrInvalidValue, b.Param.FullName(), j, i))
			}
			seen[b.Param] = i
		}
		a, err := NewAxis(spec, opts...)
		if err != nil {
			return fail(fmt.Errorf("axis %d: %w", i, err))
		}
		axes = append(axes, a)
	}

	s.axes = axes
	s.configured = true
	for _, a := range axes {
		s.setpoints = append(s.setpoints, a.Exposed()...)
	}
	monitoring.Logf("sweep %s: %d axes, shape %v", ownerPath(s.owner), len(axes), s.Shape())
	return nil
}

func (s *Set) clear() {
	for _, a := range s.axes {
		a.release()
	}
	s.axes = nil
	s.setpoints = nil
	s.consumers = nil
	s.configured = false
	s.nesting = nil
	s.finalized = false
}

// Axes returns the axes in declaration order.
func (s *Set) Axes() []*Axis {
	out := make([]*Axis, len(s.axes))
	copy(out, s.axes)
	return out
}

// Size returns the product of the axis lengths, 1 for no axes.
func (s *Set) Size() int {
	n := 1
	for _, a := range s.axes {
		n *= a.Length()
	}
	return n
}

// Shape returns the axis lengths in declaration order.
func (s *Set) Shape() []int {
	shape := make([]int, len(s.axes))
	for i, a := range s.axes {
		shape[i] = a.Length()
	}
	return shape
}

// Setpoints returns the exposed parameters of all axes in axis order.
func (s *Set) Setpoints() []*Parameter {
	out := make([]*Parameter, len(s.setpoints))
	copy(out, s.setpoints)
	return out
}

// RegisterResultConsumers writes the sweep layout to every consumer. Only
// the last consumer may resume the program. All consumers are checked before
// any is written.
func (s *Set) RegisterResultConsumers(cs ...ResultConsumer) error {
	if !s.configured {
		return fmt.Errorf("%w: result consumers registered before axes", ErrInvalidState)
	}
	for i, c := range cs {
		if c == nil {
			return fmt.Errorf("%w: result consumer %d is nil", ErrInvalidType, i)
		}
		if c.SweepOwner() != s.owner {
			return fmt.Errorf("%w: result consumer %d belongs to %s, not %s",
				ErrOwnership, i, ownerPath(c.SweepOwner()), ownerPath(s.owner))
		}
	}

	size, shape := s.Size(), s.Shape()
	for i, c := range cs {
		c.SetLayout(ResultLayout{
			BatchSize: size,
			CanResume: i == len(cs)-1,
			Setpoints: s.setpoints,
			Shape:     shape,
		})
	}
	s.consumers = append(s.consumers[:0:0], cs...)
	return nil
}

// Consumers returns the registered result consumers.
func (s *Set) Consumers() []ResultConsumer {
	out := make([]ResultConsumer, len(s.consumers))
	copy(out, s.consumers)
	return out
}

// FinalizeAxisOrder fixes the loop nesting order: the last declared axis is
// the outermost loop and the first declared axis the innermost. It may be
// called once per SetAxes.
func (s *Set) FinalizeAxisOrder() error {
	if s.finalized {
		return fmt.Errorf("%w: axis order already finalized", ErrInvalidState)
	}
	s.nesting = make([]*Axis, len(s.axes))
	for i, a := range s.axes {
		s.nesting[len(s.axes)-1-i] = a
	}
	s.finalized = true
	return nil
}

// Finalized reports whether FinalizeAxisOrder was called since SetAxes.
func (s *Set) Finalized() bool { return s.finalized }

// NestingOrder returns the axes from outermost to innermost loop.
func (s *Set) NestingOrder() ([]*Axis, error) {
	if !s.finalized {
		return nil, fmt.Errorf("%w: axis order not finalized", ErrInvalidState)
	}
	out := make([]*Axis, len(s.nesting))
	copy(out, s.nesting)
	return out, nil
}

// Declare binds the parameters of every axis. On error all bindings made so
// far are reset.
func (s *Set) Declare(em Emitter) error {
	for i, a := range s.axes {
		if err := a.Declare(em); err != nil {
			for _, prev := range s.axes[:i] {
				for _, p := range prev.Parameters() {
					p.Reset()
				}
			}
			return err
		}
	}
	return nil
}

// Generate emits the nested axis loops in nesting order with body at the
// innermost point. With no axes body runs once.
func (s *Set) Generate(em Emitter, body func() error) error {
	order, err := s.NestingOrder()
	if err != nil {
		return err
	}
	return generateNested(em, order, body)
}

func generateNested(em Emitter, axes []*Axis, body func() error) error {
	if len(axes) == 0 {
		return body()
	}
	return axes[0].Generate(em, func() error {
		return generateNested(em, axes[1:], body)
	})
}

// Reset resets every swept parameter.
func (s *Set) Reset() {
	for _, a := range s.axes {
		for _, p := range a.Parameters() {
			p.Reset()
		}
	}
}

func ownerPath(o Owner) string {
	if o == nil {
		return "<none>"
	}
	return o.SequencePath()
}
