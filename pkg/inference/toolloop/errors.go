package toolloop

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMaxTurns is returned when the model did not finish within the turn budget.
var ErrMaxTurns = errors.New("max turns reached without completion")

// InferenceError wraps an engine failure. It is always fatal for the run.
type InferenceError struct {
	Turn int
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed at turn %d: %v", e.Turn, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func (e *InferenceError) Cause() error {
	return e.Err
}

func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// IsTimeout reports whether err means the turn budget was exhausted.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrMaxTurns)
}
