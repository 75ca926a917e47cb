package sweep

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/seqsweep/internal/rtprog"
)

type fakeConsumer struct {
	owner  Owner
	layout ResultLayout
	calls  int
}

func (c *fakeConsumer) SweepOwner() Owner { return c.owner }

func (c *fakeConsumer) SetLayout(l ResultLayout) {
	c.layout = l
	c.calls++
}

func values(n int) Setpoints {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i * i)
	}
	return Values(xs...)
}

func threeAxisSet(t *testing.T) (*Set, *fakeOwner, []*Parameter) {
	t.Helper()
	owner := &fakeOwner{path: "seq"}
	ps := []*Parameter{
		NewParameter(owner, "a"),
		NewParameter(owner, "b"),
		NewParameter(owner, "c"),
	}
	s := NewSet(owner)
	require.NoError(t, s.SetAxes(
		Spec{{Param: ps[0], Setpoints: values(3)}},
		Spec{{Param: ps[1], Setpoints: values(4)}},
		Spec{{Param: ps[2], Setpoints: values(2)}},
	))
	return s, owner, ps
}

func TestSetSizeAndShape(t *testing.T) {
	s, _, _ := threeAxisSet(t)
	assert.Equal(t, 24, s.Size())
	assert.Equal(t, []int{3, 4, 2}, s.Shape())

	empty := NewSet(&fakeOwner{path: "none"})
	assert.Equal(t, 1, empty.Size())
	assert.Empty(t, empty.Shape())
}

func TestRegisterResultConsumers(t *testing.T) {
	s, owner, ps := threeAxisSet(t)
	g1, g2, g3 := &fakeConsumer{owner: owner}, &fakeConsumer{owner: owner}, &fakeConsumer{owner: owner}

	require.NoError(t, s.RegisterResultConsumers(g1, g2, g3))
	assert.False(t, g1.layout.CanResume)
	assert.False(t, g2.layout.CanResume)
	assert.True(t, g3.layout.CanResume)
	for _, g := range []*fakeConsumer{g1, g2, g3} {
		assert.Equal(t, 24, g.layout.BatchSize)
		assert.Equal(t, []int{3, 4, 2}, g.layout.Shape)
		assert.Equal(t, ps, g.layout.Setpoints)
	}
	assert.Same(t, &g1.layout.Setpoints[0], &g3.layout.Setpoints[0], "setpoints are shared")
	assert.Len(t, s.Consumers(), 3)
}

func TestRegisterResultConsumersChecksAllFirst(t *testing.T) {
	s, owner, _ := threeAxisSet(t)
	stranger := &fakeOwner{path: "other"}
	good := &fakeConsumer{owner: owner}
	bad := &fakeConsumer{owner: stranger}

	err := s.RegisterResultConsumers(good, bad)
	assert.True(t, errors.Is(err, ErrOwnership), "got %v", err)
	assert.Zero(t, good.calls, "consumer written before ownership check completed")

	err = s.RegisterResultConsumers(good, nil)
	assert.True(t, errors.Is(err, ErrInvalidType), "got %v", err)
}

func TestRegisterResultConsumersBeforeAxes(t *testing.T) {
	owner := &fakeOwner{path: "seq"}
	s := NewSet(owner)
	err := s.RegisterResultConsumers(&fakeConsumer{owner: owner})
	assert.True(t, errors.Is(err, ErrInvalidState), "got %v", err)

	require.NoError(t, s.SetAxes())
	require.NoError(t, s.RegisterResultConsumers(&fakeConsumer{owner: owner}))
}

func TestSetAxesTwiceDiscardsPrevious(t *testing.T) {
	s, owner, ps := threeAxisSet(t)
	streamed := NewParameter(owner, "d")
	require.NoError(t, s.SetAxes(Spec{{Param: streamed, Setpoints: Streamed(5)}}))
	require.NoError(t, s.FinalizeAxisOrder())

	require.NoError(t, s.SetAxes(Spec{{Param: ps[0], Setpoints: values(7)}}))
	assert.Equal(t, []int{7}, s.Shape())
	assert.Equal(t, 7, s.Size())
	assert.Equal(t, []*Parameter{ps[0]}, s.Setpoints())
	assert.False(t, s.Finalized())
	assert.False(t, streamed.IsStreamed(), "stream of discarded axis still requested")
	assert.Empty(t, owner.streams)
}

func TestSetAxesFailureLeavesSetEmpty(t *testing.T) {
	s, owner, ps := threeAxisSet(t)
	streamed := NewParameter(owner, "d")
	err := s.SetAxes(
		Spec{{Param: streamed, Setpoints: Streamed(2)}},
		Spec{{Param: ps[0], Setpoints: Values(1, 2)}, {Param: ps[1], Setpoints: Values(1)}},
	)
	require.ErrorIs(t, err, ErrInvalidValue)
	assert.Empty(t, s.Axes())
	assert.Empty(t, s.Setpoints())
	assert.Empty(t, owner.streams)
	assert.False(t, streamed.IsStreamed())

	err = s.RegisterResultConsumers(&fakeConsumer{owner: owner})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSetAxesRejectsParameterOnTwoAxes(t *testing.T) {
	owner := &fakeOwner{path: "seq"}
	p := NewParameter(owner, "p")
	s := NewSet(owner)
	err := s.SetAxes(Spec{{Param: p, Setpoints: values(2)}}, Spec{{Param: p, Setpoints: values(3)}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Empty(t, s.Axes())
	assert.Empty(t, s.Setpoints())

	q := NewParameter(owner, "q")
	err = s.SetAxes(Spec{{Param: q, Setpoints: Streamed(2)}}, Spec{{Param: p, Setpoints: values(2)}, {Param: q, Setpoints: values(2)}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.False(t, q.IsStreamed())
	assert.Empty(t, owner.streams)
}

func TestFinalizeAxisOrder(t *testing.T) {
	s, _, ps := threeAxisSet(t)
	_, err := s.NestingOrder()
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, s.FinalizeAxisOrder())
	order, err := s.NestingOrder()
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, ps[2], order[0].Parameters()[0], "last declared axis is outermost")
	assert.Equal(t, ps[0], order[2].Parameters()[0], "first declared axis is innermost")

	// Declaration order is unaffected.
	assert.Equal(t, []int{3, 4, 2}, s.Shape())

	assert.ErrorIs(t, s.FinalizeAxisOrder(), ErrInvalidState)
}

func TestGenerateNestsInFinalizedOrder(t *testing.T) {
	s, _, ps := threeAxisSet(t)
	prog := rtprog.New("nested")
	require.NoError(t, s.Declare(prog))

	err := s.Generate(prog, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidState, "generate before finalize")

	require.NoError(t, s.FinalizeAxisOrder())
	innermost := -1
	require.NoError(t, s.Generate(prog, func() error {
		innermost = prog.Depth()
		prog.Align()
		return nil
	}))
	assert.Equal(t, 3, innermost)

	outer := prog.Body[0]
	assert.Contains(t, outer.Args[0], ps[2].LoopVar().Ref)
	inner := outer.Body[0].Body[0]
	assert.Contains(t, inner.Args[0], ps[0].LoopVar().Ref)
	assert.Equal(t, rtprog.OpAlign, inner.Body[0].Op)

	s.Reset()
	for _, p := range ps {
		assert.Equal(t, StateUnbound, p.State())
	}
}

func TestDeclareFailureResetsEarlierAxes(t *testing.T) {
	owner := &fakeOwner{path: "seq"}
	f := NewParameter(owner, "f")
	n := NewParameter(owner, "n", WithKind(rtprog.Int))
	s := NewSet(owner)
	require.NoError(t, s.SetAxes(
		Spec{{Param: f, Setpoints: Values(0, 1, 3)}},
		Spec{{Param: n, Setpoints: Values(0.5, 1.5, 4)}},
	))
	err := s.Declare(rtprog.New("fail"))
	assert.ErrorIs(t, err, ErrInvalidType)
	assert.Equal(t, StateUnbound, f.State())
	assert.Equal(t, StateUnbound, n.State())
}
