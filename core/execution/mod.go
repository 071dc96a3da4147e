// Package execution defines the sandboxed host API exposed to running
// contract code. A context is built per call and is the only capability a
// backend hands to the contract: no network, filesystem or import is
// reachable through it.
//
// Every host call charges gas before doing anything, so a failed charge
// leaves the call unperformed. Storage writes go to a private buffer that
// the manager commits only on success.
package execution

import (
	"time"

	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/gas"
	"github.com/porwchain/porw/core/value"
	"golang.org/x/xerrors"
)

// ChainSnapshot is the read-only view of the chain state an execution runs
// against.
type ChainSnapshot struct {
	BlockHeight uint64
	Timestamp   int64
	Balances    map[string]uint64
}

// Balance returns the balance of the address, or 0 when unknown.
func (s ChainSnapshot) Balance(addr string) uint64 {
	return s.Balances[addr]
}

// Context is the host API surface of one contract call.
//
// It is not safe for concurrent use: one context belongs to one execution.
type Context struct {
	contract *contract.SmartContract
	sender   string
	txID     string
	txValue  uint64
	meter    *gas.Meter
	chain    ChainSnapshot

	logs         []string
	events       []contract.Event
	stateChanges map[string]value.V
}

// NewContext returns a context for one call of the contract.
func NewContext(c *contract.SmartContract, sender, txID string, txValue uint64,
	meter *gas.Meter, chain ChainSnapshot) *Context {

	return &Context{
		contract:     c,
		sender:       sender,
		txID:         txID,
		txValue:      txValue,
		meter:        meter,
		chain:        chain,
		stateChanges: map[string]value.V{},
	}
}

// Log charges gas and appends the message to the execution logs.
func (ctx *Context) Log(msg string) error {
	err := ctx.meter.Charge(gas.OpLog)
	if err != nil {
		return err
	}

	ctx.logs = append(ctx.logs, msg)

	return nil
}

// EmitEvent charges a base cost plus a size-proportional cost for the
// payload, then records the event.
func (ctx *Context) EmitEvent(name string, data map[string]value.V) error {
	err := ctx.meter.Charge(gas.OpEmitEvent)
	if err != nil {
		return err
	}

	payload, err := value.NewMap(data).MarshalJSON()
	if err != nil {
		return xerrors.Errorf("couldn't marshal event data: %v", err)
	}

	err = ctx.meter.Consume(uint64(len(payload)) / 32)
	if err != nil {
		return err
	}

	ctx.events = append(ctx.events, contract.Event{
		ContractID:    ctx.contract.ID,
		Name:          name,
		Data:          data,
		TransactionID: ctx.txID,
		Timestamp:     time.Now().UnixNano(),
	})

	return nil
}

// GetStorage charges gas and returns the value of the key. Pending writes of
// this execution shadow the committed storage; a missing key yields null.
func (ctx *Context) GetStorage(key string) (value.V, error) {
	err := ctx.meter.Charge(gas.OpGetStorage)
	if err != nil {
		return value.V{}, err
	}

	if v, ok := ctx.stateChanges[key]; ok {
		return v, nil
	}

	if v, ok := ctx.contract.Storage[key]; ok {
		return v, nil
	}

	return value.NewNull(), nil
}

// SetStorage charges gas and buffers the write. The committed contract
// storage is never touched here.
func (ctx *Context) SetStorage(key string, v value.V) error {
	err := ctx.meter.Charge(gas.OpSetStorage)
	if err != nil {
		return err
	}

	ctx.stateChanges[key] = v

	return nil
}

// GetBalance charges gas and returns the balance of the address. The empty
// address and "self" resolve to the contract's own balance.
func (ctx *Context) GetBalance(addr string) (uint64, error) {
	err := ctx.meter.Charge(gas.OpGetBalance)
	if err != nil {
		return 0, err
	}

	if addr == "" || addr == "self" {
		return ctx.contract.Balance, nil
	}

	return ctx.chain.Balance(addr), nil
}

// GetBlockHeight charges gas and returns the snapshot block height.
func (ctx *Context) GetBlockHeight() (uint64, error) {
	err := ctx.meter.Charge(gas.OpGetBlockHeight)
	if err != nil {
		return 0, err
	}

	return ctx.chain.BlockHeight, nil
}

// GetTimestamp charges gas and returns the snapshot timestamp.
func (ctx *Context) GetTimestamp() (int64, error) {
	err := ctx.meter.Charge(gas.OpGetTimestamp)
	if err != nil {
		return 0, err
	}

	return ctx.chain.Timestamp, nil
}

// GetSender charges gas and returns the transaction sender address.
func (ctx *Context) GetSender() (string, error) {
	err := ctx.meter.Charge(gas.OpGetSender)
	if err != nil {
		return "", err
	}

	return ctx.sender, nil
}

// GetValue charges gas and returns the native token amount attached to the
// transaction.
func (ctx *Context) GetValue() (uint64, error) {
	err := ctx.meter.Charge(gas.OpGetValue)
	if err != nil {
		return 0, err
	}

	return ctx.txValue, nil
}

// Contract returns the contract of the execution.
func (ctx *Context) Contract() *contract.SmartContract {
	return ctx.contract
}

// Sender returns the sender address without charging gas. It is for host
// side use, not exposed to contract code.
func (ctx *Context) Sender() string {
	return ctx.sender
}

// Value returns the attached amount without charging gas. Host side only.
func (ctx *Context) Value() uint64 {
	return ctx.txValue
}

// Snapshot returns the chain snapshot of the execution. Host side only.
func (ctx *Context) Snapshot() ChainSnapshot {
	return ctx.chain
}

// Logs returns the messages logged so far.
func (ctx *Context) Logs() []string {
	return ctx.logs
}

// Events returns the events emitted so far.
func (ctx *Context) Events() []contract.Event {
	return ctx.events
}

// StateChanges returns the buffered storage writes.
func (ctx *Context) StateChanges() map[string]value.V {
	return ctx.stateChanges
}

// GasUsed returns the gas consumed so far.
func (ctx *Context) GasUsed() uint64 {
	return ctx.meter.Used()
}

// Meter returns the gas meter of the execution.
func (ctx *Context) Meter() *gas.Meter {
	return ctx.meter
}
