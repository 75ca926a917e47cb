package sweep

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/seqsweep/internal/rtprog"
)

func TestAxisClassification(t *testing.T) {
	testCases := []struct {
		name     string
		values   []float64
		kind     rtprog.VarType
		expected Strategy
	}{
		{"uniform", []float64{0, 2, 4, 6, 8}, rtprog.Fixed, StrategyParametrized},
		{"non_uniform", []float64{0, 1, 3, 4}, rtprog.Fixed, StrategyExplicitArray},
		{"near_uniform", []float64{0, 1, 2.05, 3}, rtprog.Fixed, StrategyParametrized},
		{"single_value", []float64{5}, rtprog.Fixed, StrategyExplicitArray},
		{"two_values", []float64{1, 3}, rtprog.Fixed, StrategyParametrized},
		{"two_equal_values", []float64{3, 3}, rtprog.Fixed, StrategyExplicitArray},
		{"decreasing", []float64{8, 6, 4, 2}, rtprog.Fixed, StrategyExplicitArray},
		{"constant", []float64{1, 1, 1}, rtprog.Fixed, StrategyExplicitArray},
		{"bool_never_parametrized", []float64{0, 1}, rtprog.Bool, StrategyExplicitArray},
		{"int_uniform", []float64{0, 10, 20}, rtprog.Int, StrategyParametrized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewParameter(nil, "p", WithKind(tc.kind))
			a, err := NewAxis(Spec{{Param: p, Setpoints: Values(tc.values...)}})
			if err != nil {
				t.Fatalf("NewAxis: %v", err)
			}
			if a.Length() != len(tc.values) {
				t.Errorf("Length = %d, want %d", a.Length(), len(tc.values))
			}
			if a.Strategy() != tc.expected {
				t.Errorf("Strategy = %v, want %v", a.Strategy(), tc.expected)
			}
			if p.parametrizable != (tc.expected == StrategyParametrized) {
				t.Errorf("parametrizable flag = %v", p.parametrizable)
			}
		})
	}
}

func TestToleranceBoundary(t *testing.T) {
	// diffs 1, 1+2d: mean 1+d, population std d.
	testCases := []struct {
		name string
		d    float64
		want Strategy
	}{
		{"just_inside", 0.11, StrategyParametrized},   // 0.11 < 0.111
		{"just_outside", 0.12, StrategyExplicitArray}, // 0.12 > 0.112
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			values := []float64{0, 1, 2 + 2*tc.d}
			a, err := NewAxis(Spec{{Param: NewParameter(nil, "p"), Setpoints: Values(values...)}})
			if err != nil {
				t.Fatalf("NewAxis: %v", err)
			}
			if a.Strategy() != tc.want {
				t.Errorf("Strategy = %v, want %v", a.Strategy(), tc.want)
			}
		})
	}
}

func TestParametrizedProgression(t *testing.T) {
	p := NewParameter(nil, "amp")
	a, err := NewAxis(Spec{{Param: p, Setpoints: Values(0, 2, 4, 6, 8)}})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	prog, ok := a.Progression()
	if !ok {
		t.Fatal("expected parametrized axis")
	}
	if diff := cmp.Diff(Progression{Start: 0, Step: 2, Stop: 10}, prog); diff != "" {
		t.Errorf("progression mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiParameterAxisIsExplicit(t *testing.T) {
	a, err := NewAxis(Spec{
		{Param: NewParameter(nil, "x"), Setpoints: Values(0, 1, 2)},
		{Param: NewParameter(nil, "y"), Setpoints: Values(0, 2, 4)},
	})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	if a.Strategy() != StrategyExplicitArray {
		t.Errorf("Strategy = %v, want explicit-array", a.Strategy())
	}
	if _, ok := a.Progression(); ok {
		t.Error("unexpected progression")
	}
	if got := a.Exposed(); len(got) != 1 || got[0].Name() != "x" {
		t.Errorf("Exposed = %v, want [x]", got)
	}
}

func TestAxisValidation(t *testing.T) {
	x := NewParameter(&fakeOwner{path: "s"}, "x")
	y := NewParameter(&fakeOwner{path: "s"}, "y")
	testCases := []struct {
		name    string
		spec    Spec
		wantErr error
	}{
		{"empty", Spec{}, ErrInvalidValue},
		{"nil_param", Spec{{Param: nil, Setpoints: Values(1)}}, ErrInvalidType},
		{"zero_setpoints", Spec{{Param: x}}, ErrInvalidType},
		{"duplicate", Spec{{Param: x, Setpoints: Values(1)}, {Param: x, Setpoints: Values(2)}}, ErrInvalidValue},
		{"array_lengths", Spec{{Param: x, Setpoints: Values(1, 2)}, {Param: y, Setpoints: Values(1, 2, 3)}}, ErrInvalidValue},
		{"stream_counts", Spec{{Param: x, Setpoints: Streamed(2)}, {Param: y, Setpoints: Streamed(3)}}, ErrInvalidValue},
		{"mixed_mismatch", Spec{{Param: x, Setpoints: Values(1, 2)}, {Param: y, Setpoints: Streamed(3)}}, ErrInvalidValue},
		{"nonpositive_count", Spec{{Param: x, Setpoints: Streamed(0)}}, ErrInvalidValue},
		{"empty_array", Spec{{Param: x, Setpoints: Values()}}, ErrInvalidValue},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAxis(tc.spec)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if a != nil {
				t.Error("axis returned alongside error")
			}
			if x.IsStreamed() || y.IsStreamed() {
				t.Error("stream request left behind by failed axis")
			}
		})
	}
}

func TestMixedArrayAndStreamAgree(t *testing.T) {
	owner := &fakeOwner{path: "seq"}
	x := NewParameter(owner, "x")
	y := NewParameter(owner, "y")
	a, err := NewAxis(Spec{{Param: x, Setpoints: Values(1, 2, 3)}, {Param: y, Setpoints: Streamed(3)}})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	if a.Length() != 3 || a.Strategy() != StrategyStreamed {
		t.Errorf("axis = %v", a)
	}
	if !y.IsStreamed() || x.IsStreamed() {
		t.Errorf("stream marks: x=%v y=%v", x.IsStreamed(), y.IsStreamed())
	}
	if len(owner.streams) != 1 || owner.streams[0] != y {
		t.Errorf("owner streams = %v", owner.streams)
	}
	got, _ := a.Setpoints(y)
	if diff := cmp.Diff([]float64{0, 1, 2}, got); diff != "" {
		t.Errorf("streamed placeholders (-want +got):\n%s", diff)
	}
}

func TestStreamRegistrationFailureUnwinds(t *testing.T) {
	good := &fakeOwner{path: "good"}
	bad := &fakeOwner{path: "bad", rejectAll: true}
	x := NewParameter(good, "x")
	y := NewParameter(bad, "y")
	_, err := NewAxis(Spec{{Param: x, Setpoints: Streamed(2)}, {Param: y, Setpoints: Streamed(2)}})
	if err == nil {
		t.Fatal("expected registration error")
	}
	if x.IsStreamed() || y.IsStreamed() || len(good.streams) != 0 {
		t.Errorf("registration not unwound: x=%v y=%v streams=%v", x.IsStreamed(), y.IsStreamed(), good.streams)
	}
}

func TestRegisterAllExposesEveryParameter(t *testing.T) {
	a, err := NewAxis(Spec{
		{Param: NewParameter(nil, "x"), Setpoints: Values(0, 1)},
		{Param: NewParameter(nil, "y"), Setpoints: Values(5, 7)},
	}, RegisterAll())
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	if len(a.Exposed()) != 2 {
		t.Errorf("Exposed = %v", a.Exposed())
	}
}

func TestGenerateParametrized(t *testing.T) {
	p := NewParameter(nil, "amp", WithScale(0.5))
	a, err := NewAxis(Spec{{Param: p, Setpoints: Values(0, 2, 4, 6, 8)}})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	prog := rtprog.New("param")
	if err := a.Generate(prog, func() error { return nil }); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("generate before declare: %v", err)
	}
	if err := a.Declare(prog); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	calls := 0
	if err := a.Generate(prog, func() error { calls++; return nil }); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if calls != 1 {
		t.Errorf("body emitted %d times, want 1", calls)
	}
	if len(prog.Arrays) != 0 {
		t.Errorf("parametrized axis declared %d arrays", len(prog.Arrays))
	}
	loop := prog.Body[0]
	want := []string{p.LoopVar().Ref, "0", "5", "1"}
	if diff := cmp.Diff(want, loop.Args); loop.Op != rtprog.OpFor || diff != "" {
		t.Errorf("loop %s mismatch (-want +got):\n%s", loop.Op, diff)
	}
	if len(prog.Warnings) != 1 {
		t.Errorf("warnings = %v", prog.Warnings)
	}
}

func TestGenerateParametrizedIntRoundsStep(t *testing.T) {
	p := NewParameter(nil, "n", WithKind(rtprog.Int))
	a, err := NewAxis(Spec{{Param: p, Setpoints: Values(0, 10, 20, 31)}})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	if a.Strategy() != StrategyParametrized {
		t.Fatalf("Strategy = %v", a.Strategy())
	}
	prog := rtprog.New("int")
	if err := a.Declare(prog); err != nil {
		t.Fatal(err)
	}
	if err := a.Generate(prog, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	args := prog.Body[0].Args
	if args[3] != "10" {
		t.Errorf("step = %s, want 10", args[3])
	}
	if args[2] != "40" {
		t.Errorf("stop = %s, want 40", args[2])
	}
	if n := forIterations(t, args); n != a.Length() {
		t.Errorf("loop runs %d iterations, axis length is %d", n, a.Length())
	}
	if len(prog.Warnings) != 2 {
		t.Errorf("warnings = %v", prog.Warnings)
	}
}

func TestGenerateExplicitArray(t *testing.T) {
	x := NewParameter(nil, "x")
	y := NewParameter(nil, "y")
	a, err := NewAxis(Spec{{Param: x, Setpoints: Values(0, 1, 3)}, {Param: y, Setpoints: Values(2, 2, 2)}})
	if err != nil {
		t.Fatal(err)
	}
	prog := rtprog.New("explicit")
	if err := a.Declare(prog); err != nil {
		t.Fatal(err)
	}
	if err := a.Generate(prog, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if len(prog.Arrays) != 2 || prog.Body[0].Op != rtprog.OpForEach {
		t.Errorf("program:\n%s", prog)
	}
	if len(prog.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", prog.Warnings)
	}
}

func TestGenerateStreamedAdvancesEveryStream(t *testing.T) {
	owner := &fakeOwner{path: "seq"}
	x := NewParameter(owner, "x")
	y := NewParameter(owner, "y")
	a, err := NewAxis(Spec{{Param: x, Setpoints: Streamed(4)}, {Param: y, Setpoints: Streamed(4)}})
	if err != nil {
		t.Fatal(err)
	}
	prog := rtprog.New("streamed")
	if err := a.Declare(prog); err != nil {
		t.Fatal(err)
	}
	if err := a.Generate(prog, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	var ops []string
	for _, s := range prog.Body {
		ops = append(ops, s.Op)
	}
	want := []string{rtprog.OpAdvance, rtprog.OpAdvance, rtprog.OpForEach}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	if len(prog.InputStreams) != 2 || prog.InputStreams[1].Name != "seq_y" {
		t.Errorf("input streams = %+v", prog.InputStreams)
	}
}

func TestProgressionOfNaN(t *testing.T) {
	if _, ok := progressionOf([]float64{0, math.NaN(), 2}); ok {
		t.Error("NaN setpoints parametrized")
	}
}

func TestStrategyText(t *testing.T) {
	for _, s := range []Strategy{StrategyExplicitArray, StrategyParametrized, StrategyStreamed} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}
		var got Strategy
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if got != s {
			t.Errorf("round trip of %s = %s", s, got)
		}
	}
	var s Strategy
	if err := s.UnmarshalText([]byte("zigzag")); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("unknown strategy err = %v", err)
	}
}

// forIterations counts the iterations of a for loop from its start, stop and
// step arguments.
func forIterations(t *testing.T, args []string) int {
	t.Helper()
	var start, stop, step float64
	for i, dst := range []*float64{&start, &stop, &step} {
		v, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			t.Fatalf("for argument %q: %v", args[i+1], err)
		}
		*dst = v
	}
	return int(math.Ceil((stop-start)/step - 1e-9))
}

func TestParametrizedLoopRunsAxisLength(t *testing.T) {
	testCases := []struct {
		name   string
		kind   rtprog.VarType
		values []float64
	}{
		{"fixed_uniform", rtprog.Fixed, []float64{0, 0.1, 0.2, 0.3, 0.4}},
		{"fixed_jitter", rtprog.Fixed, []float64{0, 1, 2.05, 3}},
		{"int_uniform", rtprog.Int, []float64{16, 32, 48, 64}},
		{"int_rounded_step", rtprog.Int, []float64{0, 10, 20, 31}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewParameter(nil, "p", WithKind(tc.kind))
			a, err := NewAxis(Spec{{Param: p, Setpoints: Values(tc.values...)}})
			if err != nil {
				t.Fatalf("NewAxis: %v", err)
			}
			if a.Strategy() != StrategyParametrized {
				t.Fatalf("Strategy = %v", a.Strategy())
			}
			prog := rtprog.New("len")
			if err := a.Declare(prog); err != nil {
				t.Fatalf("Declare: %v", err)
			}
			if err := a.Generate(prog, func() error { return nil }); err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if n := forIterations(t, prog.Body[0].Args); n != len(tc.values) {
				t.Errorf("loop runs %d iterations, want %d", n, len(tc.values))
			}
		})
	}
}

func TestStreamCountMismatchWithExistingRegistration(t *testing.T) {
	owner := &fakeOwner{path: "seq"}
	x := NewParameter(owner, "x")
	y := NewParameter(owner, "y")
	if _, err := NewAxis(Spec{{Param: x, Setpoints: Streamed(3)}}); err != nil {
		t.Fatalf("NewAxis: %v", err)
	}

	_, err := NewAxis(Spec{{Param: y, Setpoints: Streamed(4)}, {Param: x, Setpoints: Streamed(4)}})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if x.StreamLength() != 3 {
		t.Errorf("existing stream length changed to %d", x.StreamLength())
	}
	if y.IsStreamed() {
		t.Error("stream of y not unwound")
	}

	if _, err := NewAxis(Spec{{Param: x, Setpoints: Streamed(3)}}); err != nil {
		t.Errorf("same count on existing registration: %v", err)
	}
}
