package sweep

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/seqsweep/internal/rtprog"
)

// fakeOwner records stream registrations.
type fakeOwner struct {
	path      string
	streams   []*Parameter
	rejectAll bool
}

func (o *fakeOwner) SequencePath() string { return o.path }

func (o *fakeOwner) RegisterInputStream(p *Parameter) error {
	if o.rejectAll {
		return fmt.Errorf("owner %s refuses streams", o.path)
	}
	o.streams = append(o.streams, p)
	return nil
}

func (o *fakeOwner) ReleaseInputStream(p *Parameter) {
	for i, q := range o.streams {
		if q == p {
			o.streams = append(o.streams[:i], o.streams[i+1:]...)
			return
		}
	}
}

func TestParameterFullName(t *testing.T) {
	owner := &fakeOwner{path: "rabi_drive"}
	p := NewParameter(owner, "amplitude")
	assert.Equal(t, "rabi_drive_amplitude", p.FullName())
	assert.Equal(t, "orphan", NewParameter(nil, "orphan").FullName())
}

func TestParameterScalarLifecycle(t *testing.T) {
	p := NewParameter(&fakeOwner{path: "seq"}, "t_wait", WithKind(rtprog.Int))
	assert.Equal(t, StateUnbound, p.State())
	assert.False(t, p.Get().IsSet())

	require.NoError(t, p.Set(Scalar(100)))
	assert.Equal(t, StateScalar, p.State())
	x, ok := p.Get().Float()
	assert.True(t, ok)
	assert.Equal(t, 100.0, x)

	err := p.Set(Array([]float64{1, 2}))
	assert.True(t, errors.Is(err, ErrInvalidType), "array on scalar parameter: %v", err)
}

func TestParameterConstraintPluggable(t *testing.T) {
	p := NewParameter(nil, "amp", WithConstraint(ScalarRange{Min: -1, Max: 1}))
	require.NoError(t, p.Set(Scalar(0.5)))
	err := p.Set(Scalar(2))
	assert.True(t, errors.Is(err, ErrInvalidValue), "got %v", err)

	// The current value must satisfy a replacement constraint.
	assert.Error(t, p.SetConstraint(ScalarRange{Min: 1, Max: 2}))
	require.NoError(t, p.SetConstraint(nil))
	assert.Equal(t, "scalar", p.Constraint().String())
	require.NoError(t, p.Set(Scalar(2)))
}

func TestBindLoopVariableExplicitArray(t *testing.T) {
	p := NewParameter(&fakeOwner{path: "seq"}, "amp", WithScale(0.5))
	require.NoError(t, p.Set(Scalar(0.3)))
	prog := rtprog.New("bind")

	require.NoError(t, p.BindLoopVariable(prog, Values(0, 1, 3)))
	assert.Equal(t, StateSwept, p.State())
	require.NotNil(t, p.LoopVar())
	require.NotNil(t, p.SweepArray())
	assert.Equal(t, []float64{0, 0.5, 1.5}, p.SweepArray().Values)
	assert.Equal(t, p.LoopVar(), p.Operand())
	assert.Equal(t, ArrayShape{N: 3}, p.Constraint())

	err := p.BindLoopVariable(prog, Values(0, 1, 3))
	assert.True(t, errors.Is(err, ErrInvalidState), "rebind: %v", err)
}

func TestBindLoopVariableParametrizableDeclaresNoArray(t *testing.T) {
	p := NewParameter(nil, "amp")
	p.parametrizable = true
	prog := rtprog.New("bind")
	require.NoError(t, p.BindLoopVariable(prog, Values(0, 1, 2)))
	assert.Nil(t, p.SweepArray())
	assert.Empty(t, prog.Arrays)
	assert.Len(t, prog.Vars, 1)
}

func TestBindLoopVariableKindMismatch(t *testing.T) {
	testCases := []struct {
		name   string
		kind   rtprog.VarType
		values []float64
		ok     bool
	}{
		{"int_integral", rtprog.Int, []float64{0, 4, 8}, true},
		{"int_fractional", rtprog.Int, []float64{0, 0.5}, false},
		{"bool_binary", rtprog.Bool, []float64{0, 1}, true},
		{"bool_other", rtprog.Bool, []float64{0, 2}, false},
		{"fixed_anything", rtprog.Fixed, []float64{0.25, -3.5}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewParameter(nil, "p", WithKind(tc.kind))
			prog := rtprog.New("kind")
			err := p.BindLoopVariable(prog, Values(tc.values...))
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidType) {
				t.Errorf("expected ErrInvalidType, got %v", err)
			}
			if p.State() != StateUnbound || len(prog.Vars) != 0 {
				t.Errorf("failed bind left state %v with %d vars", p.State(), len(prog.Vars))
			}
		})
	}
}

func TestBindLoopVariableStreamed(t *testing.T) {
	owner := &fakeOwner{path: "square"}
	p := NewParameter(owner, "amplitude")
	prog := rtprog.New("stream")

	err := p.BindLoopVariable(prog, Streamed(4))
	assert.True(t, errors.Is(err, ErrInvalidState), "unregistered stream: %v", err)

	require.NoError(t, p.RequestStream(4))
	require.NoError(t, p.RegisterStream())
	require.NoError(t, p.BindLoopVariable(prog, Streamed(4)))
	assert.Equal(t, StateStreamed, p.State())
	require.NotNil(t, p.InputStream())
	assert.Equal(t, "square_amplitude", p.InputStream().Name)
	assert.Equal(t, 4, p.InputStream().Size)
	assert.Equal(t, []*Parameter{p}, owner.streams)
}

func TestRegisterStreamStateErrors(t *testing.T) {
	p := NewParameter(&fakeOwner{path: "seq"}, "amp")
	err := p.RegisterStream()
	assert.True(t, errors.Is(err, ErrInvalidState), "no request: %v", err)

	orphan := NewParameter(nil, "amp")
	require.NoError(t, orphan.RequestStream(3))
	err = orphan.RegisterStream()
	assert.True(t, errors.Is(err, ErrInvalidState), "no owner: %v", err)

	err = p.RequestStream(0)
	assert.True(t, errors.Is(err, ErrInvalidValue), "zero length: %v", err)
}

func TestResetRestoresScalar(t *testing.T) {
	p := NewParameter(nil, "amp")
	require.NoError(t, p.Set(Scalar(0.7)))
	require.NoError(t, p.BindLoopVariable(rtprog.New("reset"), Values(0, 1, 3, 4)))

	require.NoError(t, p.Set(Array([]float64{1, 2, 3, 4})))
	assert.Error(t, p.Set(Scalar(1)), "swept parameter accepts a scalar")

	p.Reset()
	assert.Equal(t, StateScalar, p.State())
	x, _ := p.Get().Float()
	assert.Equal(t, 0.7, x)
	assert.Nil(t, p.LoopVar())
	assert.Equal(t, rtprog.Const(0.7), p.Operand())

	require.NoError(t, p.Set(Scalar(0.2)))
	err := p.Set(Array([]float64{1, 2, 3, 4}))
	assert.True(t, errors.Is(err, ErrInvalidType), "array after reset: %v", err)

	// Idempotent.
	p.Reset()
	p.Reset()
	assert.Equal(t, StateScalar, p.State())
}

func TestResetWithoutScalarReturnsToUnbound(t *testing.T) {
	p := NewParameter(nil, "amp")
	p.Reset()
	assert.Equal(t, StateUnbound, p.State())
	require.NoError(t, p.BindLoopVariable(rtprog.New("reset"), Values(1, 5)))
	p.Reset()
	assert.Equal(t, StateUnbound, p.State())
	assert.False(t, p.Get().IsSet())
}
