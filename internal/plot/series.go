// Package plot renders the setpoints of a sweep set: one PNG per axis with
// gonum/plot and an HTML page of line charts with go-echarts.
package plot

import (
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// ParamSeries is the setpoint sequence of one parameter on an axis. For
// streamed axes Values holds iteration indices.
type ParamSeries struct {
	Name   string
	Unit   string
	Values []float64
}

// AxisSeries is everything plotted for one axis.
type AxisSeries struct {
	Index       int
	Strategy    sweep.Strategy
	Params      []ParamSeries
	Progression *sweep.Progression
}

// SeriesFromSet collects the setpoints of every axis of set in declaration
// order.
func SeriesFromSet(set *sweep.Set) []AxisSeries {
	axes := set.Axes()
	out := make([]AxisSeries, 0, len(axes))
	for i, a := range axes {
		s := AxisSeries{Index: i, Strategy: a.Strategy()}
		for _, p := range a.Parameters() {
			vals, _ := a.Setpoints(p)
			s.Params = append(s.Params, ParamSeries{Name: p.FullName(), Unit: p.Unit(), Values: vals})
		}
		if pr, ok := a.Progression(); ok {
			s.Progression = &pr
		}
		out = append(out, s)
	}
	return out
}

// progressionValues evaluates start + i*step for n iterations.
func progressionValues(p sweep.Progression, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p.Start + float64(i)*p.Step
	}
	return out
}
