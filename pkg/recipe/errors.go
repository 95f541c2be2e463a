package recipe

import "fmt"

// ContractError reports misuse of the recipe API: a programming error, not a
// property of the candidate. Builders panic with a *ContractError.
type ContractError struct {
	// Op is the builder operation that was misused.
	Op string

	// Message describes the violated contract.
	Message string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("recipe contract violation in %s: %s", e.Op, e.Message)
}

func contractf(op, format string, args ...interface{}) {
	panic(&ContractError{Op: op, Message: fmt.Sprintf(format, args...)})
}
