package readout

import (
	"fmt"

	"github.com/banshee-data/seqsweep/internal/sweep"
)

// Gettable retrieves the results of one observable, one batch per sweep.
// Its layout is written by sweep.Set.RegisterResultConsumers.
type Gettable struct {
	obs    *Observable
	owner  sweep.Owner
	layout sweep.ResultLayout
	ready  bool
}

// NewGettable binds obs to the sweep owner whose sweep produces its data.
func NewGettable(owner sweep.Owner, obs *Observable) *Gettable {
	return &Gettable{obs: obs, owner: owner}
}

// SweepOwner implements sweep.ResultConsumer.
func (g *Gettable) SweepOwner() sweep.Owner { return g.owner }

// SetLayout implements sweep.ResultConsumer.
func (g *Gettable) SetLayout(l sweep.ResultLayout) {
	g.layout = l
	g.ready = true
}

// Observable returns the observable the gettable reads.
func (g *Gettable) Observable() *Observable { return g.obs }

// Name returns the observable's full name.
func (g *Gettable) Name() string { return g.obs.FullName() }

// BufferName returns the name of the per-sweep result buffer.
func (g *Gettable) BufferName() string { return g.obs.FullName() + "_buffer" }

// Layout returns the registered layout.
func (g *Gettable) Layout() (sweep.ResultLayout, bool) { return g.layout, g.ready }

// CanResume reports whether retrieving this gettable resumes the program.
func (g *Gettable) CanResume() bool { return g.ready && g.layout.CanResume }

// SetpointNames returns the full names of the result setpoints.
func (g *Gettable) SetpointNames() []string {
	names := make([]string, len(g.layout.Setpoints))
	for i, p := range g.layout.Setpoints {
		names[i] = p.FullName()
	}
	return names
}

// Index maps position i of a result batch to per-axis indices in
// declaration order. The first declared axis is the innermost loop, so its
// index varies fastest.
func (g *Gettable) Index(i int) ([]int, error) {
	if !g.ready {
		return nil, fmt.Errorf("%w: gettable %s has no layout", sweep.ErrInvalidState, g.Name())
	}
	if i < 0 || i >= g.layout.BatchSize {
		return nil, fmt.Errorf("%w: index %d outside batch of %d", sweep.ErrInvalidValue, i, g.layout.BatchSize)
	}
	idx := make([]int, len(g.layout.Shape))
	for d, n := range g.layout.Shape {
		idx[d] = i % n
		i /= n
	}
	return idx, nil
}

// CheckBatch verifies that a retrieved batch matches the layout.
func (g *Gettable) CheckBatch(batch []float64) error {
	if !g.ready {
		return fmt.Errorf("%w: gettable %s has no layout", sweep.ErrInvalidState, g.Name())
	}
	if len(batch) != g.layout.BatchSize {
		return fmt.Errorf("%w: batch of %d values, want %d", sweep.ErrInvalidValue, len(batch), g.layout.BatchSize)
	}
	return nil
}
