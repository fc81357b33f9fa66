// Package adcerr defines the stable, named terminal reasons the Scheduler and
// its collaborators report across component boundaries.
package adcerr

import "fmt"

// Reason is a stable string identifying why a run or phase terminated.
// Callers branch on Reason values, never on error text.
type Reason string

const (
	ReasonTestsPassed          Reason = "tests_passed"
	ReasonMaxInnerIterations   Reason = "max_inner_iterations_reached"
	ReasonMaxOuterIterations   Reason = "max_outer_iterations_reached"
	ReasonContractWriterFailed Reason = "contract_writer_failed"
	ReasonEvaluatorFailed      Reason = "evaluator_failed"
	ReasonRefinerFailed        Reason = "refiner_failed"
	ReasonCircuitOpen          Reason = "circuit_open"
)

// StageError is the error type every component boundary translates internal
// failures into before they cross into the Scheduler or its caller.
type StageError struct {
	Component string // e.g. "scheduler", "runner", "library_loader"
	Reason    Reason
	Err       error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Reason)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// New builds a StageError for the given component and reason.
func New(component string, reason Reason, cause error) *StageError {
	return &StageError{Component: component, Reason: reason, Err: cause}
}

// IsReason reports whether err is a *StageError carrying the given reason.
func IsReason(err error, reason Reason) bool {
	se, ok := err.(*StageError)
	return ok && se.Reason == reason
}
