package kernel

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	// ErrEngine is matched by every failure raised inside the engine.
	ErrEngine = errors.New("engine error")

	// ErrModelPartNotFound indicates a lookup of an unknown model part name.
	ErrModelPartNotFound = errors.New("kernel: model part not found")

	// ErrModelPartExists indicates a model part name is already taken.
	ErrModelPartExists = errors.New("kernel: model part already exists")

	// ErrUnknownVariable indicates nodal data for a variable that was not
	// added to the model part before import.
	ErrUnknownVariable = errors.New("kernel: variable not added to model part")

	// ErrNotConverged indicates a solution step did not reach its tolerance.
	ErrNotConverged = errors.New("kernel: solution did not converge")
)

// EngineError wraps an engine failure with the operation that raised it.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// Fail wraps err as an engine error of op. A nil err stays nil.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Op: op, Err: err}
}
