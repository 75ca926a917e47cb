package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/seqsweep/internal/config"
	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/rtprog"
	"github.com/banshee-data/seqsweep/internal/sequence"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// AxisPlan summarizes one sweep axis.
type AxisPlan struct {
	Index       int                `json:"index"`
	Strategy    sweep.Strategy     `json:"strategy"`
	Length      int                `json:"length"`
	Parameters  []string           `json:"parameters"`
	Progression *sweep.Progression `json:"progression,omitempty"`
	// WordsSaved is the array memory avoided by looping over a progression
	// instead of a declared array.
	WordsSaved int `json:"words_saved"`
}

// StreamPlan is one input stream the executor must feed.
type StreamPlan struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// GettablePlan is the result layout of one gettable.
type GettablePlan struct {
	Name      string   `json:"name"`
	Buffer    string   `json:"buffer"`
	CanResume bool     `json:"can_resume"`
	Setpoints []string `json:"setpoints"`
}

// Plan is the summary of a compiled sweep.
type Plan struct {
	Sequence     string         `json:"sequence"`
	StreamMode   string         `json:"stream_mode"`
	Shape        []int          `json:"shape"`
	Size         int            `json:"size"`
	Axes         []AxisPlan     `json:"axes"`
	NestingOrder []int          `json:"nesting_order"`
	InputStreams []StreamPlan   `json:"input_streams,omitempty"`
	Gettables    []GettablePlan `json:"gettables,omitempty"`
	ArrayWords   int            `json:"array_words"`
	Warnings     []string       `json:"warnings,omitempty"`
	Program      string         `json:"program"`
}

// Result bundles the built sequence, its program and the plan.
type Result struct {
	Sequence *sequence.Sequence
	Program  *rtprog.Program
	Plan     *Plan
}

// Compile builds def and compiles its program.
func Compile(def *config.SweepDefinition) (*Result, error) {
	seq, err := Build(def)
	if err != nil {
		return nil, err
	}
	prog, err := seq.Compile()
	if err != nil {
		return nil, err
	}
	plan, err := Summarize(seq, prog)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("plan %s: shape %v, %d iterations, %d warnings",
		plan.Sequence, plan.Shape, plan.Size, len(plan.Warnings))
	return &Result{Sequence: seq, Program: prog, Plan: plan}, nil
}

// Summarize describes the sweeps of seq and the compiled prog.
func Summarize(seq *sequence.Sequence, prog *rtprog.Program) (*Plan, error) {
	set := seq.Sweeps()
	axes := set.Axes()
	plan := &Plan{
		Sequence:   seq.Root().Name(),
		StreamMode: string(seq.StreamMode()),
		Shape:      set.Shape(),
		Size:       set.Size(),
		ArrayWords: prog.ArrayWords(),
		Warnings:   append([]string(nil), prog.Warnings...),
		Program:    prog.String(),
	}

	index := make(map[*sweep.Axis]int, len(axes))
	for i, a := range axes {
		index[a] = i
		ap := AxisPlan{Index: i, Strategy: a.Strategy(), Length: a.Length()}
		for _, p := range a.Parameters() {
			ap.Parameters = append(ap.Parameters, p.FullName())
		}
		if pr, ok := a.Progression(); ok {
			ap.Progression = &pr
			ap.WordsSaved = a.Length()
		}
		plan.Axes = append(plan.Axes, ap)
	}

	order, err := set.NestingOrder()
	if err != nil {
		return nil, err
	}
	for _, a := range order {
		plan.NestingOrder = append(plan.NestingOrder, index[a])
	}

	for _, in := range prog.InputStreams {
		plan.InputStreams = append(plan.InputStreams, StreamPlan{Name: in.Name, Size: in.Size})
	}
	for _, g := range seq.Gettables() {
		plan.Gettables = append(plan.Gettables, GettablePlan{
			Name:      g.Name(),
			Buffer:    g.BufferName(),
			CanResume: g.CanResume(),
			Setpoints: g.SetpointNames(),
		})
	}
	return plan, nil
}

// Document converts the plan into a generic JSON document, the form used by
// the gRPC service.
func (p *Plan) Document() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode plan document: %w", err)
	}
	return doc, nil
}

// PlanFromDocument is the inverse of Plan.Document.
func PlanFromDocument(doc map[string]any) (*Plan, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan document: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &p, nil
}
