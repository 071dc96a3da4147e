// Package txn implements the contract transaction codec: building, signing,
// validating and serializing the transactions that drive the engine.
//
// The signing payload is canonical JSON with sorted keys and no extraneous
// whitespace, excluding the identifier and the signature, so signing and
// verification are reproducible byte for byte. The transaction identifier is
// the hex digest of that payload.
package txn

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/crypto"
	"github.com/porwchain/porw/crypto/ed25519"
	"golang.org/x/xerrors"
)

// Default gas parameters. Deployments get a larger budget with a lower price
// ceiling than plain calls; both are caller-supplied suggestions, the engine
// only enforces that they are positive.
const (
	DefaultCallGasLimit   uint64 = 100_000
	DefaultCallGasPrice   uint64 = 2
	DefaultDeployGasLimit uint64 = 500_000
	DefaultDeployGasPrice uint64 = 1
)

// Transaction is a contract transaction. An empty ContractID means a
// deployment; an empty Function on an existing contract means a plain value
// transfer.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	Sender     string    `json:"sender"`
	ContractID string    `json:"contract_id,omitempty"`
	Function   string    `json:"function,omitempty"`
	Arguments  []value.V `json:"arguments"`
	Value      uint64    `json:"value"`
	GasLimit   uint64    `json:"gas_limit"`
	GasPrice   uint64    `json:"gas_price"`
	Timestamp  int64     `json:"timestamp"`
	PublicKey  []byte    `json:"public_key,omitempty"`
	Signature  []byte    `json:"signature,omitempty"`
}

type template struct {
	Transaction

	hashFactory crypto.HashFactory
}

// Option is the type of options to create a transaction.
type Option func(*template)

// WithContract is an option to target an existing contract.
func WithContract(id string) Option {
	return func(tmpl *template) {
		tmpl.ContractID = id
	}
}

// WithFunction is an option to call a function with ordered arguments.
func WithFunction(name string, args ...value.V) Option {
	return func(tmpl *template) {
		tmpl.Function = name
		tmpl.Arguments = normalizeArgs(args)
	}
}

// WithArgs is an option to set the ordered arguments alone, used by
// deployments where the creation data travels as the first argument.
func WithArgs(args ...value.V) Option {
	return func(tmpl *template) {
		tmpl.Arguments = normalizeArgs(args)
	}
}

// normalizeArgs keeps the empty argument list as an allocated slice so that it
// always encodes as [] in the canonical payload, never as null.
func normalizeArgs(args []value.V) []value.V {
	if args == nil {
		return []value.V{}
	}

	return args
}

// WithValue is an option to attach native tokens to the transaction.
func WithValue(amount uint64) Option {
	return func(tmpl *template) {
		tmpl.Value = amount
	}
}

// WithGas is an option to set the gas limit and price.
func WithGas(limit, price uint64) Option {
	return func(tmpl *template) {
		tmpl.GasLimit = limit
		tmpl.GasPrice = price
	}
}

// WithTimestamp is an option to set an explicit timestamp, mainly for
// deterministic tests.
func WithTimestamp(ts int64) Option {
	return func(tmpl *template) {
		tmpl.Timestamp = ts
	}
}

// WithHashFactory is an option to set a different hash factory when deriving
// the transaction identifier.
func WithHashFactory(f crypto.HashFactory) Option {
	return func(tmpl *template) {
		tmpl.hashFactory = f
	}
}

// New creates a transaction for the sender and derives its identifier.
func New(sender string, opts ...Option) (*Transaction, error) {
	tmpl := template{
		Transaction: Transaction{
			Sender:    sender,
			Arguments: []value.V{},
			GasLimit:  DefaultCallGasLimit,
			GasPrice:  DefaultCallGasPrice,
			Timestamp: time.Now().Unix(),
		},
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	tx := tmpl.Transaction

	id, err := tx.computeID(tmpl.hashFactory)
	if err != nil {
		return nil, xerrors.Errorf("couldn't derive id: %v", err)
	}

	tx.ID = id

	return &tx, nil
}

// SigningPayload returns the canonical bytes covered by the signature.
func (t *Transaction) SigningPayload() ([]byte, error) {
	fields := map[string]interface{}{
		"sender":      t.Sender,
		"contract_id": t.ContractID,
		"function":    t.Function,
		"arguments":   normalizeArgs(t.Arguments),
		"value":       t.Value,
		"gas_limit":   t.GasLimit,
		"gas_price":   t.GasPrice,
		"timestamp":   t.Timestamp,
	}

	// encoding/json writes map keys in sorted order with no extraneous
	// whitespace, which is exactly the canonical form.
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal payload: %v", err)
	}

	return payload, nil
}

func (t *Transaction) computeID(fac crypto.HashFactory) (string, error) {
	payload, err := t.SigningPayload()
	if err != nil {
		return "", err
	}

	h := fac.New()

	_, err = h.Write(payload)
	if err != nil {
		return "", xerrors.Errorf("couldn't write payload: %v", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// MaxFee returns the maximum fee the transaction can consume, denominated in
// the chain's native token.
func (t *Transaction) MaxFee() uint64 {
	return t.GasLimit * t.GasPrice
}

// IsDeployment returns true when the transaction deploys a new contract.
func (t *Transaction) IsDeployment() bool {
	return t.ContractID == ""
}

// IsTransfer returns true when the transaction is a plain value transfer to
// an existing contract.
func (t *Transaction) IsTransfer() bool {
	return t.ContractID != "" && t.Function == ""
}

// Sign signs the canonical payload and stores the signature along with the
// signer's public key. The signer must own the sender address.
func (t *Transaction) Sign(signer crypto.Signer) error {
	addr, err := crypto.AddressOf(signer.GetPublicKey())
	if err != nil {
		return xerrors.Errorf("couldn't derive address: %v", err)
	}

	if addr != t.Sender {
		return xerrors.New("mismatch signer and sender")
	}

	payload, err := t.SigningPayload()
	if err != nil {
		return xerrors.Errorf("couldn't build payload: %v", err)
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	sigData, err := sig.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("couldn't marshal signature: %v", err)
	}

	pkData, err := signer.GetPublicKey().MarshalBinary()
	if err != nil {
		return xerrors.Errorf("couldn't marshal public key: %v", err)
	}

	t.Signature = sigData
	t.PublicKey = pkData

	return nil
}

// Verify checks the signature against the canonical payload and the embedded
// public key.
func (t *Transaction) Verify() error {
	if len(t.Signature) == 0 {
		return xerrors.New("missing signature")
	}

	pk, err := ed25519.NewPublicKey(t.PublicKey)
	if err != nil {
		return xerrors.Errorf("couldn't restore public key: %v", err)
	}

	payload, err := t.SigningPayload()
	if err != nil {
		return xerrors.Errorf("couldn't build payload: %v", err)
	}

	err = pk.Verify(payload, ed25519.NewSignature(t.Signature))
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	return nil
}

// Validate is the pre-execution gate: it rejects a transaction before the
// manager is ever invoked. It checks the sender address, the gas parameters
// and the signature.
func (t *Transaction) Validate() error {
	if !crypto.IsValidAddress(t.Sender) {
		return xerrors.Errorf("invalid sender address '%s'", t.Sender)
	}

	if t.GasLimit == 0 {
		return xerrors.New("gas limit must be positive")
	}

	if t.GasPrice == 0 {
		return xerrors.New("gas price must be positive")
	}

	pk, err := ed25519.NewPublicKey(t.PublicKey)
	if err != nil {
		return xerrors.Errorf("couldn't restore public key: %v", err)
	}

	addr, err := crypto.AddressOf(pk)
	if err != nil {
		return xerrors.Errorf("couldn't derive address: %v", err)
	}

	if addr != t.Sender {
		return xerrors.New("public key does not match sender")
	}

	err = t.Verify()
	if err != nil {
		return err
	}

	return nil
}

// Serialize returns the JSON encoding of the transaction, including its
// identifier and signature.
func (t *Transaction) Serialize() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal transaction: %v", err)
	}

	return data, nil
}

// Deserialize restores a transaction from its JSON encoding. Every field
// round-trips, including the signature.
func Deserialize(data []byte) (*Transaction, error) {
	tx := &Transaction{}

	err := json.Unmarshal(data, tx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal transaction: %v", err)
	}

	return tx, nil
}
