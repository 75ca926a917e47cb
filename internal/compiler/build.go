// Package compiler turns a sweep definition into a sequence, compiles its
// program and summarizes the result as a Plan.
package compiler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/banshee-data/seqsweep/internal/config"
	"github.com/banshee-data/seqsweep/internal/readout"
	"github.com/banshee-data/seqsweep/internal/sequence"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// Build constructs the root sequence described by def: parameters, sub-
// sequences, macros, readout points, sweep axes and gettables. Configured
// parameters are created before macros so their values take precedence over
// macro defaults.
func Build(def *config.SweepDefinition) (*sequence.Sequence, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil sweep definition", sweep.ErrInvalidType)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	mode, err := sequence.ParseStreamMode(def.StreamMode)
	if err != nil {
		return nil, err
	}

	root := sequence.New(def.Sequence, def.Element)
	root.SetStreamMode(mode)
	if err := addParameters(root, def.Parameters); err != nil {
		return nil, err
	}
	for _, sc := range def.SubSequences {
		sub, err := root.NewSubSequence(sc.Name, sc.Element)
		if err != nil {
			return nil, err
		}
		if err := addParameters(sub, sc.Parameters); err != nil {
			return nil, err
		}
		if err := addMacros(sub, sc.Macros); err != nil {
			return nil, err
		}
	}
	if err := addMacros(root, def.Macros); err != nil {
		return nil, err
	}

	for _, rc := range def.Readouts {
		signal := readout.Signal{Name: rc.Signal, Elements: rc.Elements}
		for _, pc := range rc.Points {
			pt, err := readout.NewPoint(signal, pc)
			if err != nil {
				return nil, fmt.Errorf("readout %s: %w", rc.Signal, err)
			}
			if err := root.AddReadoutPoint(pt); err != nil {
				return nil, err
			}
		}
	}

	specs, err := axisSpecs(root, def.Sweeps)
	if err != nil {
		return nil, err
	}
	var opts []sweep.AxisOption
	if def.RegisterAll {
		opts = append(opts, sweep.RegisterAll())
	}
	if err := root.SetSweepsWith(opts, specs...); err != nil {
		return nil, err
	}

	if len(def.Gettables) > 0 {
		gs := make([]*readout.Gettable, 0, len(def.Gettables))
		for _, name := range def.Gettables {
			g, err := root.NewGettable(name)
			if err != nil {
				return nil, err
			}
			gs = append(gs, g)
		}
		if err := root.RegisterGettables(gs...); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// addParameters creates params on s in sorted name order and applies their
// configured values.
func addParameters(s *sequence.Sequence, params map[string]config.ParameterConfig) error {
	for _, name := range slices.Sorted(maps.Keys(params)) {
		pc := params[name]
		opts, err := pc.Options()
		if err != nil {
			return fmt.Errorf("parameter %s.%s: %w", s.SequencePath(), name, err)
		}
		p, err := s.AddParameter(name, opts...)
		if err != nil {
			return err
		}
		if pc.Value != nil {
			if err := p.Set(sweep.Scalar(*pc.Value)); err != nil {
				return fmt.Errorf("parameter %s: %w", p.FullName(), err)
			}
		}
	}
	return nil
}

func addMacros(s *sequence.Sequence, names []string) error {
	for _, name := range names {
		m, err := sequence.NewMacro(name, s)
		if err != nil {
			return fmt.Errorf("sequence %s: %w", s.SequencePath(), err)
		}
		s.AddMacro(m)
	}
	return nil
}

// axisSpecs resolves the dotted parameter paths and setpoint documents of
// each configured axis.
func axisSpecs(root *sequence.Sequence, axes []config.AxisConfig) ([]sweep.Spec, error) {
	specs := make([]sweep.Spec, 0, len(axes))
	for i, axis := range axes {
		spec := make(sweep.Spec, 0, len(axis))
		for _, e := range axis {
			p, err := root.Lookup(e.Param)
			if err != nil {
				return nil, fmt.Errorf("axis %d: %w", i, err)
			}
			sp, err := sweep.SetpointsFrom(e.Setpoints)
			if err != nil {
				return nil, fmt.Errorf("axis %d: setpoints of %s: %w", i, e.Param, err)
			}
			spec = append(spec, sweep.Binding{Param: p, Setpoints: sp})
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
