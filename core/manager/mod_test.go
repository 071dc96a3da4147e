package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/porwchain/porw/core/chainstate"
	"github.com/porwchain/porw/core/config"
	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/txn"
	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/crypto/ed25519"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const tokenCode = `{"functions":{
	"initialize": {"set_storage": {
		"name": "$arg.0",
		"symbol": "$arg.1",
		"total_supply": "$arg.2",
		"balance_{$sender}": "$arg.2"
	}},
	"transfer": {
		"if": {"gte": ["$storage.balance_{$sender}", "$arg.1"]},
		"then": [
			{"set_storage": {
				"balance_{$arg.0}": {"add": ["$storage.balance_{$arg.0}", "$arg.1"]},
				"balance_{$sender}": {"sub": ["$storage.balance_{$sender}", "$arg.1"]}
			}},
			{"emit": {"name": "Transfer", "data": {
				"from": "$sender",
				"to": "$arg.0",
				"amount": "$arg.1"
			}}},
			{"return": true}
		],
		"else": [
			{"log": "insufficient balance"},
			{"return": false}
		]
	},
	"balance_of": {"return": "$storage.balance_{$arg.0}"}
}}`

func TestManager_TokenScenario(t *testing.T) {
	m := makeManager(t)

	alice := newAccount(t)
	bob := newAccount(t)

	id := deployToken(t, m, alice)

	res := m.ExecuteTransaction(makeInit(t, alice, id))
	require.True(t, res.Success)

	res = m.ExecuteTransaction(makeCall(t, alice, id, "balance_of",
		value.NewString(alice.addr)))
	require.True(t, res.Success)
	require.Equal(t, float64(1000), res.ReturnValue.Number())

	res = m.ExecuteTransaction(makeCall(t, alice, id, "transfer",
		value.NewString(bob.addr), value.NewNumber(100)))
	require.True(t, res.Success)
	require.True(t, res.ReturnValue.Bool())
	require.Len(t, res.Events, 1)
	require.Equal(t, "Transfer", res.Events[0].Name)
	require.Equal(t, float64(100), res.Events[0].Data["amount"].Number())

	res = m.ExecuteTransaction(makeCall(t, alice, id, "balance_of",
		value.NewString(alice.addr)))
	require.True(t, res.Success)
	require.Equal(t, float64(900), res.ReturnValue.Number())

	res = m.ExecuteTransaction(makeCall(t, alice, id, "balance_of",
		value.NewString(bob.addr)))
	require.True(t, res.Success)
	require.Equal(t, float64(100), res.ReturnValue.Number())

	// Overdrawing takes the else branch: the call itself succeeds, returns
	// false and touches no balance.
	res = m.ExecuteTransaction(makeCall(t, alice, id, "transfer",
		value.NewString(bob.addr), value.NewNumber(99999)))
	require.True(t, res.Success)
	require.False(t, res.ReturnValue.Bool())
	require.Equal(t, []string{"insufficient balance"}, res.Logs)
	require.Empty(t, res.Events)

	res = m.ExecuteTransaction(makeCall(t, alice, id, "balance_of",
		value.NewString(alice.addr)))
	require.Equal(t, float64(900), res.ReturnValue.Number())

	res = m.ExecuteTransaction(makeCall(t, alice, id, "balance_of",
		value.NewString(bob.addr)))
	require.Equal(t, float64(100), res.ReturnValue.Number())
}

func TestManager_Deploy(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)

	id := deployToken(t, m, alice)

	c, ok := m.GetContract(id)
	require.True(t, ok)
	require.Equal(t, contract.Active, c.State)
	require.Equal(t, alice.addr, c.Creator)

	// The active contract is on disk.
	data, err := os.ReadFile(filepath.Join(m.contractsDir(),
		"contract_"+id+".json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"state": "active"`)

	require.Len(t, m.ListContracts(), 1)
}

func TestManager_Deploy_Rejections(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)

	// Unsigned transactions never reach the machine.
	tx, err := txn.New(alice.addr, txn.WithArgs(value.NewMap(map[string]value.V{
		"name":     value.NewString("token"),
		"language": value.NewString("json_dsl"),
		"code":     value.NewString(tokenCode),
	})))
	require.NoError(t, err)

	res := m.DeployContract(tx)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "transaction rejected")

	// A call transaction is not accepted by the deployment entry point.
	res = m.DeployContract(makeCall(t, alice, "deadbeef", "get"))
	require.False(t, res.Success)
	require.Equal(t, "transaction rejected: not a deployment", res.Error)

	// Invalid code fails the deployment but is not a rejection.
	tx, err = txn.New(alice.addr, txn.WithArgs(value.NewMap(map[string]value.V{
		"name":     value.NewString("broken"),
		"language": value.NewString("json_dsl"),
		"code":     value.NewString("not json"),
	})), txn.WithGas(txn.DefaultDeployGasLimit, txn.DefaultDeployGasPrice))
	require.NoError(t, err)
	require.NoError(t, tx.Sign(alice.signer))

	res = m.DeployContract(tx)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "invalid contract")
	require.Equal(t, txn.DefaultDeployGasLimit/10, res.GasUsed)
}

func TestManager_ExecuteTransaction_Failures(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)

	res := m.ExecuteTransaction(makeCall(t, alice, "deadbeef", "get"))
	require.False(t, res.Success)
	require.Equal(t, "unknown contract 'deadbeef'", res.Error)

	id := deployToken(t, m, alice)

	require.True(t, m.PauseContract(id))

	res = m.ExecuteTransaction(makeInit(t, alice, id))
	require.False(t, res.Success)
	require.Equal(t, "contract '"+id+"' is paused, not active", res.Error)
}

func TestManager_ExecuteTransaction_AtomicCommit(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)

	id := deployToken(t, m, alice)

	res := m.ExecuteTransaction(makeInit(t, alice, id))
	require.True(t, res.Success)

	c, _ := m.GetContract(id)
	version := c.Version

	// Run out of gas in the middle of the transfer: no write commits.
	tx, err := txn.New(alice.addr,
		txn.WithContract(id),
		txn.WithFunction("transfer",
			value.NewString("someone"), value.NewNumber(10)),
		txn.WithGas(8, 1))
	require.NoError(t, err)
	require.NoError(t, tx.Sign(alice.signer))

	res = m.ExecuteTransaction(tx)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "out of gas")
	require.Equal(t, uint64(8), res.GasUsed)

	require.Equal(t, float64(1000), c.Storage["balance_"+alice.addr].Number())
	require.Equal(t, version, c.Version)
}

func TestManager_Lifecycle(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)

	id := deployToken(t, m, alice)

	require.False(t, m.PauseContract("deadbeef"))
	require.False(t, m.ResumeContract(id))

	require.True(t, m.PauseContract(id))
	require.False(t, m.PauseContract(id))

	require.True(t, m.ResumeContract(id))

	require.True(t, m.TerminateContract(id))
	require.False(t, m.TerminateContract(id))
	require.False(t, m.PauseContract(id))
	require.False(t, m.ResumeContract(id))

	c, _ := m.GetContract(id)
	require.Equal(t, contract.Terminated, c.State)
}

func TestManager_Reload(t *testing.T) {
	cfg := config.Default(t.TempDir())
	chain := chainstate.NewStatic(execution.ChainSnapshot{})

	m, err := NewManager(cfg, chain)
	require.NoError(t, err)

	alice := newAccount(t)
	id := deployToken(t, m, alice)

	res := m.ExecuteTransaction(makeInit(t, alice, id))
	require.True(t, res.Success)

	reloaded, err := NewManager(cfg, chain)
	require.NoError(t, err)

	c, ok := reloaded.GetContract(id)
	require.True(t, ok)
	require.Equal(t, contract.Active, c.State)
	require.Equal(t, uint64(1), c.Version)
	require.Equal(t, float64(1000), c.Storage["balance_"+alice.addr].Number())
}

func TestManager_Events(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)
	bob := newAccount(t)

	obs := &recordingObserver{}
	m.Watch(obs)

	id := deployToken(t, m, alice)

	res := m.ExecuteTransaction(makeInit(t, alice, id))
	require.True(t, res.Success)

	res = m.ExecuteTransaction(makeCall(t, alice, id, "transfer",
		value.NewString(bob.addr), value.NewNumber(1)))
	require.True(t, res.Success)

	res = m.ExecuteTransaction(makeCall(t, alice, id, "transfer",
		value.NewString(bob.addr), value.NewNumber(2)))
	require.True(t, res.Success)

	events, err := m.GetContractEvents(id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, float64(1), events[0].Data["amount"].Number())
	require.Equal(t, float64(2), events[1].Data["amount"].Number())
	require.True(t, events[0].Timestamp <= events[1].Timestamp)

	require.Len(t, obs.events, 2)

	m.Unwatch(obs)

	res = m.ExecuteTransaction(makeCall(t, alice, id, "transfer",
		value.NewString(bob.addr), value.NewNumber(3)))
	require.True(t, res.Success)
	require.Len(t, obs.events, 2)
}

func TestManager_Metrics(t *testing.T) {
	m := makeManager(t)
	alice := newAccount(t)

	id := deployToken(t, m, alice)

	res := m.ExecuteTransaction(makeInit(t, alice, id))
	require.True(t, res.Success)

	res = m.ExecuteTransaction(makeCall(t, alice, "deadbeef", "get"))
	require.False(t, res.Success)

	require.Equal(t, float64(2),
		testutil.ToFloat64(m.metrics.transactions.WithLabelValues(outcomeOK)))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.metrics.transactions.WithLabelValues(outcomeFailed)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.metrics.contracts))

	require.NotNil(t, m.MetricsRegistry())
}

// -----------------------------------------------------------------------------
// Utility functions

// recordingObserver collects the notified events.
type recordingObserver struct {
	events []contract.Event
}

func (o *recordingObserver) NotifyCallback(event contract.Event) {
	o.events = append(o.events, event)
}

type account struct {
	signer ed25519.Signer
	addr   string
}

func newAccount(t *testing.T) account {
	t.Helper()

	signer := ed25519.NewSigner()

	addr, err := signer.GetAddress()
	require.NoError(t, err)

	return account{signer: signer, addr: addr}
}

func makeManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(config.Default(t.TempDir()),
		chainstate.NewStatic(execution.ChainSnapshot{BlockHeight: 1}))
	require.NoError(t, err)

	return m
}

func deployToken(t *testing.T, m *Manager, creator account) string {
	t.Helper()

	tx, err := txn.New(creator.addr,
		txn.WithArgs(value.NewMap(map[string]value.V{
			"name":     value.NewString("token"),
			"language": value.NewString("json_dsl"),
			"code":     value.NewString(tokenCode),
		})),
		txn.WithGas(txn.DefaultDeployGasLimit, txn.DefaultDeployGasPrice))
	require.NoError(t, err)
	require.NoError(t, tx.Sign(creator.signer))

	res := m.DeployContract(tx)
	require.True(t, res.Success)

	return res.ReturnValue.Str()
}

func makeInit(t *testing.T, sender account, id string) *txn.Transaction {
	t.Helper()

	return makeCall(t, sender, id, "initialize",
		value.NewString("T"), value.NewString("T"), value.NewNumber(1000))
}

func makeCall(t *testing.T, sender account, id, fn string,
	args ...value.V) *txn.Transaction {

	t.Helper()

	tx, err := txn.New(sender.addr,
		txn.WithContract(id),
		txn.WithFunction(fn, args...))
	require.NoError(t, err)
	require.NoError(t, tx.Sign(sender.signer))

	return tx
}
