// Package wasm declares the WebAssembly backend. It is a documented stub:
// the language tag is accepted by the data model, but any attempt to
// validate or execute a wasm contract reports the gap explicitly instead of
// failing silently.
package wasm

import (
	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/value"
)

const notSupported = "WebAssembly contracts are not yet supported"

// Backend is the WebAssembly placeholder backend.
//
// - implements vm.Backend
type Backend struct{}

// NewBackend returns the stub backend.
func NewBackend() Backend {
	return Backend{}
}

// Validate implements vm.Backend. It always reports the missing runtime.
func (Backend) Validate(*contract.SmartContract) error {
	return execution.NewExecutionError(notSupported)
}

// Execute implements vm.Backend. It always reports the missing runtime.
func (Backend) Execute(*contract.SmartContract, string, []value.V,
	*execution.Context) (value.V, error) {

	return value.V{}, execution.NewExecutionError(notSupported)
}
