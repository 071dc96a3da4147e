package execution

import "fmt"

// InvalidContractError is returned when deploy-time static validation fails:
// an ABI/code mismatch or a forbidden construct in the source.
type InvalidContractError struct {
	msg string
}

// NewInvalidContractError formats a new invalid contract error.
func NewInvalidContractError(format string, args ...interface{}) *InvalidContractError {
	return &InvalidContractError{msg: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *InvalidContractError) Error() string {
	return "invalid contract: " + e.msg
}

// ContractExecutionError is a runtime fault inside a backend: a missing
// function, bad arguments, a malformed code node.
type ContractExecutionError struct {
	msg string
}

// NewExecutionError formats a new contract execution error.
func NewExecutionError(format string, args ...interface{}) *ContractExecutionError {
	return &ContractExecutionError{msg: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *ContractExecutionError) Error() string {
	return e.msg
}
