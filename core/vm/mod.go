// Package vm implements the virtual machine dispatcher. It is the single
// entry point that turns a transaction into an execution result, selecting
// the backend by the contract's language tag.
//
// The dispatcher never lets an error or a panic escape to its caller: every
// outcome, including out-of-gas and backend faults, is folded into the
// returned execution result.
package vm

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/porwchain/porw"
	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/gas"
	"github.com/porwchain/porw/core/txn"
	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/core/vm/jsondsl"
	"github.com/porwchain/porw/core/vm/scripted"
	"github.com/porwchain/porw/core/vm/wasm"
	"github.com/porwchain/porw/crypto"
)

// DefaultDeployDivisor divides the gas limit to get the flat gas charged for
// a deployment, which is not metered per operation.
const DefaultDeployDivisor uint64 = 10

// Backend is the execution interface implemented once per contract language.
type Backend interface {
	// Validate runs the deploy-time static validation of the contract.
	Validate(c *contract.SmartContract) error

	// Execute invokes the named function of the contract with the ordered
	// arguments against the context.
	Execute(c *contract.SmartContract, fn string, args []value.V,
		ctx *execution.Context) (value.V, error)
}

// Registry gives the dispatcher access to the contract registry owned by the
// manager, so deployments can register the new contract.
type Registry interface {
	// Get returns the contract of the identifier when it exists.
	Get(id string) (*contract.SmartContract, bool)

	// Register stores a newly deployed contract, failing on a duplicate
	// identifier.
	Register(c *contract.SmartContract) error
}

// Machine dispatches transactions to the language backends.
type Machine struct {
	backends      map[contract.Language]Backend
	registry      Registry
	hashFactory   crypto.HashFactory
	costs         gas.Costs
	deployDivisor uint64
	logger        zerolog.Logger
}

// MachineOption configures a machine.
type MachineOption func(*Machine)

// WithBackend overrides the backend of a language.
func WithBackend(lang contract.Language, backend Backend) MachineOption {
	return func(m *Machine) {
		m.backends[lang] = backend
	}
}

// WithCosts sets the gas cost table.
func WithCosts(costs gas.Costs) MachineOption {
	return func(m *Machine) {
		m.costs = costs
	}
}

// WithDeployDivisor sets the fraction of the gas limit charged for
// deployments.
func WithDeployDivisor(divisor uint64) MachineOption {
	return func(m *Machine) {
		if divisor > 0 {
			m.deployDivisor = divisor
		}
	}
}

// WithHashFactory sets the factory used to derive contract identifiers.
func WithHashFactory(fac crypto.HashFactory) MachineOption {
	return func(m *Machine) {
		m.hashFactory = fac
	}
}

// NewMachine creates a machine with the three default backends registered.
func NewMachine(registry Registry, opts ...MachineOption) *Machine {
	m := &Machine{
		backends: map[contract.Language]Backend{
			contract.Scripted: scripted.NewBackend(0),
			contract.JsonDsl:  jsondsl.NewBackend(),
			contract.Wasm:     wasm.NewBackend(),
		},
		registry:      registry,
		hashFactory:   crypto.NewSha256Factory(),
		costs:         gas.DefaultCosts(),
		deployDivisor: DefaultDeployDivisor,
		logger:        porw.Logger.With().Str("component", "vm").Logger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Execute runs the transaction and returns the result. The contract is nil
// for deployments; for calls and transfers the caller has already resolved
// it from the registry.
func (m *Machine) Execute(c *contract.SmartContract, tx *txn.Transaction,
	snap execution.ChainSnapshot) (res contract.ExecutionResult) {

	// A backend fault must never propagate as a panic.
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("tx", tx.ID).
				Interface("panic", r).
				Msg("backend panicked")

			res = contract.Failed(tx.GasLimit, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if tx.IsDeployment() {
		return m.deploy(tx)
	}

	if c == nil {
		return contract.Failed(0, fmt.Sprintf("unknown contract '%s'", tx.ContractID))
	}

	if tx.IsTransfer() {
		return m.transfer(c, tx)
	}

	return m.call(c, tx, snap)
}

// deploy builds a pending contract from the creation data carried as the
// first argument, validates it and registers it. Deployment gas is a flat
// fraction of the limit.
func (m *Machine) deploy(tx *txn.Transaction) contract.ExecutionResult {
	gasUsed := tx.GasLimit / m.deployDivisor

	c, err := m.buildContract(tx)
	if err != nil {
		return contract.Failed(gasUsed, err.Error())
	}

	backend, ok := m.backends[c.Language]
	if !ok {
		return contract.Failed(gasUsed,
			fmt.Sprintf("no backend for language '%s'", c.Language))
	}

	err = backend.Validate(c)
	if err != nil {
		return contract.Failed(gasUsed, err.Error())
	}

	err = m.registry.Register(c)
	if err != nil {
		return contract.Failed(gasUsed, err.Error())
	}

	m.logger.Info().
		Str("contract", c.ID).
		Str("language", string(c.Language)).
		Msg("contract deployed")

	return contract.ExecutionResult{
		Success:     true,
		ReturnValue: value.NewString(c.ID),
		GasUsed:     gasUsed,
	}
}

func (m *Machine) buildContract(tx *txn.Transaction) (*contract.SmartContract, error) {
	if len(tx.Arguments) == 0 {
		return nil, xerrors.New("missing contract creation data")
	}

	data := tx.Arguments[0]
	if data.Kind() != value.Map {
		return nil, xerrors.New("contract creation data must be a map")
	}

	name := data.Get("name").Str()
	if name == "" {
		return nil, xerrors.New("contract name is required")
	}

	code := data.Get("code").Str()
	if code == "" {
		return nil, xerrors.New("contract code is required")
	}

	lang, err := contract.ParseLanguage(data.Get("language").Str())
	if err != nil {
		return nil, err
	}

	abi, err := parseABI(data.Get("abi"))
	if err != nil {
		return nil, err
	}

	c, err := contract.NewSmartContract(tx.Sender, name,
		data.Get("description").Str(), lang, code, abi, m.hashFactory)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create contract: %v", err)
	}

	return c, nil
}

func parseABI(v value.V) (contract.ABI, error) {
	abi := contract.ABI{}

	if v.IsNull() {
		return abi, nil
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return abi, xerrors.Errorf("couldn't marshal abi: %v", err)
	}

	err = abi.UnmarshalFrom(data)
	if err != nil {
		return abi, xerrors.Errorf("malformed abi: %v", err)
	}

	return abi, nil
}

// transfer credits the attached amount to the contract balance. No code
// runs; only a small flat gas cost applies.
func (m *Machine) transfer(c *contract.SmartContract, tx *txn.Transaction) contract.ExecutionResult {
	meter := gas.NewMeter(tx.GasLimit, m.costs)

	err := meter.Charge(gas.OpTransfer)
	if err != nil {
		return contract.Failed(meter.Used(), err.Error())
	}

	c.Balance += tx.Value

	return contract.ExecutionResult{
		Success:     true,
		ReturnValue: value.NewNumber(float64(c.Balance)),
		GasUsed:     meter.Used(),
	}
}

// call executes the named function through the contract's backend.
func (m *Machine) call(c *contract.SmartContract, tx *txn.Transaction,
	snap execution.ChainSnapshot) contract.ExecutionResult {

	backend, ok := m.backends[c.Language]
	if !ok {
		return contract.Failed(0,
			fmt.Sprintf("no backend for language '%s'", c.Language))
	}

	meter := gas.NewMeter(tx.GasLimit, m.costs)
	ctx := execution.NewContext(c, tx.Sender, tx.ID, tx.Value, meter, snap)

	ret, err := backend.Execute(c, tx.Function, tx.Arguments, ctx)
	if err != nil {
		res := contract.Failed(ctx.GasUsed(), err.Error())
		res.Logs = ctx.Logs()

		var oog *gas.OutOfGasError
		if errors.As(err, &oog) {
			// Out of gas consumes the whole budget, no partial refund.
			res.GasUsed = meter.Limit()
		}

		return res
	}

	return contract.ExecutionResult{
		Success:      true,
		ReturnValue:  ret,
		GasUsed:      ctx.GasUsed(),
		Logs:         ctx.Logs(),
		StateChanges: ctx.StateChanges(),
		Events:       ctx.Events(),
	}
}
