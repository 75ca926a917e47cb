package sequence

import (
	"fmt"

	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/rtprog"
)

// Compile emits the program of the root sequence: readout variables and
// swept parameters are declared, the sweep loops are nested in finalized
// order around the macros and readout points of every sequence, and stream
// processing saves the readout streams. Parameters are reset afterwards, also
// on error, so the sequence can be compiled again.
func (s *Sequence) Compile() (*rtprog.Program, error) {
	root := s.Root()
	sweeps := root.sweeps
	defer func() {
		sweeps.Reset()
		for _, p := range root.AllParameters() {
			p.Reset()
		}
	}()

	if !sweeps.Finalized() {
		if err := sweeps.FinalizeAxisOrder(); err != nil {
			return nil, err
		}
	}

	prog := rtprog.New(root.name)
	points := root.allPoints()
	for _, p := range points {
		p.DeclareVariables(prog)
	}
	if err := sweeps.Declare(prog); err != nil {
		return nil, fmt.Errorf("compile %s: %w", root.name, err)
	}
	if err := sweeps.Generate(prog, func() error { return root.emitBody(prog) }); err != nil {
		return nil, fmt.Errorf("compile %s: %w", root.name, err)
	}
	if root.mode == PauseEach {
		prog.Pause()
	}

	size := sweeps.Size()
	for _, p := range points {
		p.SaveStreams(prog, size)
	}
	monitoring.Logf("compiled %s: %d vars, %d array words, %d input streams, %d warnings",
		root.name, len(prog.Vars), prog.ArrayWords(), len(prog.InputStreams), len(prog.Warnings))
	return prog, nil
}

// emitBody emits one iteration: the macros of s, the bodies of its
// sub-sequences in order, then its readout points.
func (s *Sequence) emitBody(prog *rtprog.Program) error {
	for _, m := range s.macros {
		if err := m.Emit(s, prog); err != nil {
			return fmt.Errorf("macro %s in %s: %w", m.Name(), s.SequencePath(), err)
		}
	}
	for _, sub := range s.subs {
		if err := sub.emitBody(prog); err != nil {
			return err
		}
	}
	for _, p := range s.points {
		if err := p.MeasureAndSave(prog); err != nil {
			return err
		}
	}
	return nil
}
