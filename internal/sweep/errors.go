package sweep

import "errors"

// Error classes returned by the sweep compiler. Every error is wrapped with
// context; test for the class with errors.Is.
var (
	// ErrInvalidType reports an argument of the wrong kind: a missing
	// parameter handle, setpoints that are neither a sequence nor a count, or
	// setpoints incompatible with the parameter's numeric kind.
	ErrInvalidType = errors.New("invalid type")

	// ErrInvalidValue reports inconsistent setpoints: mismatched lengths on one
	// axis, non-positive stream counts, empty axes.
	ErrInvalidValue = errors.New("invalid value")

	// ErrOwnership reports a result consumer registered against a sweep owner
	// it does not belong to.
	ErrOwnership = errors.New("ownership violation")

	// ErrInvalidState reports an operation out of lifecycle order.
	ErrInvalidState = errors.New("invalid state")
)
