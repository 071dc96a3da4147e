// Package contract defines the data model of the engine: the smart contract
// record with its lifecycle, the ABI declaration, the execution result and
// the emitted events.
//
// A contract identifier is the hex digest of the creation fields, computed
// with a deterministic fingerprint so the same creation always produces the
// same identifier.
package contract

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/crypto"
	"golang.org/x/xerrors"
)

// Language identifies the backend a contract is executed with.
type Language string

// Supported contract languages.
const (
	// Scripted contracts carry an embedded-script source executed by the
	// sandboxed interpreter.
	Scripted Language = "scripted"

	// JsonDsl contracts carry a JSON document of named function bodies.
	JsonDsl Language = "json_dsl"

	// Wasm contracts are declared but not yet executable.
	Wasm Language = "wasm"
)

// ParseLanguage returns the language matching the name, or an error for an
// unknown one.
func ParseLanguage(name string) (Language, error) {
	switch Language(name) {
	case Scripted, JsonDsl, Wasm:
		return Language(name), nil
	default:
		return "", xerrors.Errorf("unknown contract language '%s'", name)
	}
}

// State is the lifecycle state of a contract.
type State string

// Lifecycle states. Terminated is terminal: no transition leaves it.
const (
	Pending    State = "pending"
	Active     State = "active"
	Paused     State = "paused"
	Terminated State = "terminated"
)

// CanTransition returns true when the lifecycle allows moving from the
// current state to the given one.
func (s State) CanTransition(to State) bool {
	switch to {
	case Active:
		return s == Pending || s == Paused
	case Paused:
		return s == Active
	case Terminated:
		return s != Terminated
	default:
		return false
	}
}

// FunctionSig declares one callable function of a contract.
type FunctionSig struct {
	Name     string   `json:"name"`
	Params   []string `json:"params"`
	Constant bool     `json:"constant,omitempty"`
}

// ABI is the declared set of callable functions, checked against the
// contract code at deploy time.
type ABI struct {
	Functions []FunctionSig `json:"functions"`
}

// UnmarshalFrom fills the ABI from its JSON encoding.
func (a *ABI) UnmarshalFrom(data []byte) error {
	err := json.Unmarshal(data, a)
	if err != nil {
		return xerrors.Errorf("couldn't unmarshal abi: %v", err)
	}

	return nil
}

// Find returns the signature of the named function, or false.
func (a ABI) Find(name string) (FunctionSig, bool) {
	for _, fn := range a.Functions {
		if fn.Name == name {
			return fn, true
		}
	}

	return FunctionSig{}, false
}

// SmartContract is the full record of a deployed contract. Storage is only
// ever mutated by the manager committing an execution result, never by a
// backend.
type SmartContract struct {
	ID          string             `json:"id"`
	Creator     string             `json:"creator"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Language    Language           `json:"language"`
	Code        string             `json:"code"`
	ABI         ABI                `json:"abi"`
	State       State              `json:"state"`
	Storage     map[string]value.V `json:"storage"`
	Balance     uint64             `json:"balance"`
	Version     uint64             `json:"version"`
	CreatedAt   int64              `json:"created_at"`
	UpdatedAt   int64              `json:"updated_at"`
}

// NewSmartContract builds a pending contract from the creation fields and
// derives its deterministic identifier.
func NewSmartContract(creator, name, description string, lang Language,
	code string, abi ABI, fac crypto.HashFactory) (*SmartContract, error) {

	now := time.Now().Unix()

	c := &SmartContract{
		Creator:     creator,
		Name:        name,
		Description: description,
		Language:    lang,
		Code:        code,
		ABI:         abi,
		State:       Pending,
		Storage:     map[string]value.V{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	h := fac.New()

	err := c.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint contract: %v", err)
	}

	c.ID = hex.EncodeToString(h.Sum(nil))

	return c, nil
}

// Fingerprint writes a deterministic binary representation of the creation
// fields of the contract. Mutable fields (state, storage, balance, version)
// are excluded so the identifier is stable over the contract's lifetime.
func (c *SmartContract) Fingerprint(w io.Writer) error {
	fields := []string{c.Creator, c.Name, string(c.Language), c.Code}

	for _, field := range fields {
		_, err := w.Write([]byte(field))
		if err != nil {
			return xerrors.Errorf("couldn't write field: %v", err)
		}
	}

	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, uint64(c.CreatedAt))

	_, err := w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write creation time: %v", err)
	}

	return nil
}

// Event is a record emitted by a contract execution. The block index is
// filled in by the chain layer when the enclosing transaction is included in
// a block.
type Event struct {
	ContractID    string             `json:"contract_id"`
	Name          string             `json:"name"`
	Data          map[string]value.V `json:"data"`
	BlockIndex    *uint64            `json:"block_index,omitempty"`
	TransactionID string             `json:"transaction_id"`
	Timestamp     int64              `json:"timestamp"`
}

// ExecutionResult is the outcome of running one transaction through the
// virtual machine. StateChanges are uncommitted: the manager applies them to
// the contract storage only when Success is true.
type ExecutionResult struct {
	Success      bool               `json:"success"`
	ReturnValue  value.V            `json:"return_value"`
	GasUsed      uint64             `json:"gas_used"`
	Logs         []string           `json:"logs"`
	Error        string             `json:"error,omitempty"`
	StateChanges map[string]value.V `json:"state_changes,omitempty"`
	Events       []Event            `json:"events,omitempty"`
}

// Failed returns a failed result with the error message and the gas consumed
// so far.
func Failed(gasUsed uint64, message string) ExecutionResult {
	return ExecutionResult{
		Success: false,
		GasUsed: gasUsed,
		Error:   message,
	}
}
