// Package sweep compiles multi-axis parameter sweeps into nested loops for the
// real-time sequencer.
//
// # Overview
//
// A sweep is declared as one Spec per axis. Each Spec binds one or more
// Parameters to their Setpoints: either an explicit array of values baked into
// the program, or a count of values that an external client streams in at run
// time. All parameters on one axis advance together.
//
//	amp, _ := seq.Parameter("amplitude")
//	wait, _ := seq.Parameter("t_wait")
//	err := set.SetAxes(
//		sweep.Spec{{Param: amp, Setpoints: sweep.Values(0, 0.1, 0.2, 0.3)}},
//		sweep.Spec{{Param: wait, Setpoints: sweep.Streamed(8)}},
//	)
//
// # Loop strategies
//
// Each Axis picks one of three strategies when it is constructed:
//
//   - Parametrized: a single parameter whose setpoints are close to an
//     arithmetic progression is emitted as a start/stop/step loop, so no array
//     is stored in sequencer memory. The progression is an approximation and
//     is reported as a warning.
//   - Streamed: any streamed parameter makes the axis wait for the next chunk
//     of values from its input streams and iterate over them.
//   - ExplicitArray: everything else iterates all arrays in lock-step.
//
// # Result shaping
//
// A Set aggregates the axes of one sweep owner. Its size is the product of the
// axis lengths and its shape is the list of lengths in declaration order.
// Result consumers registered with RegisterResultConsumers receive that
// layout; only the last consumer may resume the paused program.
//
// FinalizeAxisOrder fixes the loop nesting order: the last declared axis
// becomes the outermost loop and the first declared axis the innermost.
//
// # Lifecycle
//
// The package is single-threaded and build-once. Validation happens
// synchronously in NewAxis, Set.SetAxes and Set.RegisterResultConsumers; an
// error means nothing was registered.
package sweep
