package readout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/seqsweep/internal/rtprog"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

type stubOwner struct{ path string }

func (o *stubOwner) SequencePath() string                         { return o.path }
func (o *stubOwner) RegisterInputStream(p *sweep.Parameter) error { return nil }
func (o *stubOwner) ReleaseInputStream(p *sweep.Parameter)        {}

func newSETPoint(t *testing.T, observables ...string) *Point {
	t.Helper()
	p, err := NewPoint(Signal{Name: "set1", Elements: []string{"SET1", "SET2"}},
		PointConfig{Name: "ref", Desc: "reference", Observables: observables})
	require.NoError(t, err)
	return p
}

func TestNewPointNamesAndLookup(t *testing.T) {
	p := newSETPoint(t, "I", "Q", "IQ")
	assert.Equal(t, "set1__ref", p.Name())
	assert.True(t, p.SaveValues())
	assert.Len(t, p.Observables(), 6)

	o, ok := p.Observable("SET2", KindIQ)
	require.True(t, ok)
	assert.Equal(t, "SET2_IQ", o.Name())
	assert.Equal(t, "set1__ref__SET2_IQ", o.FullName())

	byName, ok := p.ObservableByName("SET1_Q")
	require.True(t, ok)
	assert.Equal(t, ObservableKey{Element: "SET1", Kind: KindQ}, byName.Key)

	_, ok = p.ObservableByName("SET3_I")
	assert.False(t, ok)
	_, ok = p.ObservableByName("noseparator")
	assert.False(t, ok)
}

func TestNewPointValidation(t *testing.T) {
	testCases := []struct {
		name        string
		signal      Signal
		observables []string
	}{
		{"invalid_kind", Signal{Name: "s", Elements: []string{"e"}}, []string{"I", "Q", "amplitude"}},
		{"missing_q", Signal{Name: "s", Elements: []string{"e"}}, []string{"I"}},
		{"no_elements", Signal{Name: "s"}, []string{"I", "Q"}},
		{"no_signal_name", Signal{Elements: []string{"e"}}, []string{"I", "Q"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPoint(tc.signal, PointConfig{Name: "p", Observables: tc.observables})
			if !errors.Is(err, sweep.ErrInvalidValue) {
				t.Errorf("expected ErrInvalidValue, got %v", err)
			}
		})
	}
}

func TestMeasureAndSaveStreams(t *testing.T) {
	p := newSETPoint(t, "I", "Q", "IQ", "I")
	prog := rtprog.New("readout")

	err := p.Measure(prog)
	assert.ErrorIs(t, err, sweep.ErrInvalidState)

	p.DeclareVariables(prog)
	assert.Len(t, prog.Vars, 6)
	assert.Len(t, prog.ResultStreams, 6)

	require.NoError(t, p.MeasureAndSave(prog))
	var ops []string
	for _, s := range prog.Body {
		ops = append(ops, s.Op)
	}
	assert.Equal(t, []string{
		rtprog.OpMeasure, rtprog.OpAssign, rtprog.OpMeasure, rtprog.OpAssign,
		rtprog.OpSave, rtprog.OpSave, rtprog.OpSave, rtprog.OpSave, rtprog.OpSave, rtprog.OpSave,
	}, ops)

	p.SaveStreams(prog, 24)
	require.Len(t, prog.StreamProcessing, 12)
	assert.Equal(t, []string{"s0", "24", `"set1__ref__SET1_I_buffer"`}, prog.StreamProcessing[0].Args)
}

func TestSaveStreamsSkippedWhenNotSaving(t *testing.T) {
	off := false
	p, err := NewPoint(Signal{Name: "s", Elements: []string{"e"}},
		PointConfig{Name: "p", Observables: []string{"I", "Q"}, SaveValues: &off})
	require.NoError(t, err)
	prog := rtprog.New("nosave")
	p.DeclareVariables(prog)
	p.SaveStreams(prog, 10)
	assert.Empty(t, prog.StreamProcessing)
}

func TestGettableIndex(t *testing.T) {
	owner := &stubOwner{path: "seq"}
	p := newSETPoint(t, "I", "Q")
	obs, _ := p.Observable("SET1", KindI)
	g := NewGettable(owner, obs)

	_, err := g.Index(0)
	assert.ErrorIs(t, err, sweep.ErrInvalidState)

	g.SetLayout(sweep.ResultLayout{BatchSize: 24, CanResume: true, Shape: []int{3, 4, 2}})
	testCases := []struct {
		flat int
		want []int
	}{
		{0, []int{0, 0, 0}},
		{1, []int{1, 0, 0}},
		{3, []int{0, 1, 0}},
		{12, []int{0, 0, 1}},
		{23, []int{2, 3, 1}},
	}
	for _, tc := range testCases {
		got, err := g.Index(tc.flat)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "index %d", tc.flat)
	}
	_, err = g.Index(24)
	assert.ErrorIs(t, err, sweep.ErrInvalidValue)

	assert.True(t, g.CanResume())
	assert.Equal(t, "set1__ref__SET1_I_buffer", g.BufferName())
	assert.NoError(t, g.CheckBatch(make([]float64, 24)))
	assert.ErrorIs(t, g.CheckBatch(make([]float64, 5)), sweep.ErrInvalidValue)
}
