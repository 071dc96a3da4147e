package scripted

import (
	"testing"
	"time"

	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/gas"
	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/crypto"
	"github.com/stretchr/testify/require"
)

func TestBackend_Validate(t *testing.T) {
	backend := NewBackend(0)
	require.Equal(t, DefaultDeadline, backend.deadline)

	err := backend.Validate(makeContract(t,
		"function get()\n  return 1\nend", "get"))
	require.NoError(t, err)

	err = backend.Validate(makeContract(t,
		"local f = io.open('x')", "get"))
	require.EqualError(t, err, "invalid contract: forbidden construct 'io'")

	err = backend.Validate(makeContract(t,
		"require('socket')", "get"))
	require.EqualError(t, err, "invalid contract: forbidden construct 'require'")

	err = backend.Validate(makeContract(t,
		"local f = load('return 1')", "get"))
	require.EqualError(t, err, "invalid contract: forbidden construct 'load'")

	// "payload" contains "load" but is a harmless identifier.
	err = backend.Validate(makeContract(t,
		"function get()\n  local payload = 1\n  return payload\nend", "get"))
	require.NoError(t, err)

	// "todos" contains "os" but is a harmless identifier.
	err = backend.Validate(makeContract(t,
		"function get()\n  local todos = {count = 2}\n  return todos.count\nend",
		"get"))
	require.NoError(t, err)

	err = backend.Validate(makeContract(t,
		"function get()\n  return os.time()\nend", "get"))
	require.EqualError(t, err, "invalid contract: forbidden construct 'os'")

	err = backend.Validate(makeContract(t,
		"local f = io['open']", "get"))
	require.EqualError(t, err, "invalid contract: forbidden construct 'io'")

	err = backend.Validate(makeContract(t, "function get(", "get"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid contract: code does not compile")

	c := makeContract(t, "function get()\nend", "get")
	c.ABI.Functions = nil

	err = backend.Validate(c)
	require.EqualError(t, err, "invalid contract: abi declares no functions")

	c.ABI.Functions = []contract.FunctionSig{{Name: ""}}

	err = backend.Validate(c)
	require.EqualError(t, err, "invalid contract: abi function without a name")

	err = backend.Validate(makeContract(t, "function get()\nend", "missing"))
	require.EqualError(t, err,
		"invalid contract: abi function 'missing' not found in code")
}

func TestBackend_Execute(t *testing.T) {
	code := `
function add(a, b)
  return a + b
end`

	c := makeContract(t, code, "add")
	ctx := makeContext(c, 1000)

	ret, err := NewBackend(0).Execute(c, "add",
		[]value.V{value.NewNumber(2), value.NewNumber(3)}, ctx)
	require.NoError(t, err)
	require.Equal(t, float64(5), ret.Number())
	require.Equal(t, uint64(0), ctx.GasUsed())

	_, err = NewBackend(0).Execute(c, "missing", nil, ctx)
	require.EqualError(t, err, "function 'missing' not found")
}

func TestBackend_Execute_HostCalls(t *testing.T) {
	code := `
function run()
  ctx.log("hello from " .. ctx.get_sender())
  ctx.set_storage("caller", ctx.get_sender())
  ctx.emit_event("Ran", {value = ctx.get_value()})
  return ctx.get_balance("self")
end`

	c := makeContract(t, code, "run")
	c.Balance = 500

	ctx := makeContext(c, 1000)

	ret, err := NewBackend(0).Execute(c, "run", nil, ctx)
	require.NoError(t, err)
	require.Equal(t, float64(500), ret.Number())

	require.Equal(t, []string{"hello from alice"}, ctx.Logs())
	require.Equal(t, "alice", ctx.StateChanges()["caller"].Str())

	require.Len(t, ctx.Events(), 1)
	require.Equal(t, "Ran", ctx.Events()[0].Name)
	require.Equal(t, float64(25), ctx.Events()[0].Data["value"].Number())
}

func TestBackend_Execute_Environment(t *testing.T) {
	code := `
function env()
  return {
    height = ctx.get_block_height(),
    ts = ctx.get_timestamp(),
    alice = ctx.get_balance("alice"),
  }
end`

	c := makeContract(t, code, "env")
	ctx := makeContext(c, 1000)

	ret, err := NewBackend(0).Execute(c, "env", nil, ctx)
	require.NoError(t, err)
	require.Equal(t, float64(10), ret.Get("height").Number())
	require.Equal(t, float64(1700000000), ret.Get("ts").Number())
	require.Equal(t, float64(1000), ret.Get("alice").Number())
}

func TestBackend_Execute_OutOfGas(t *testing.T) {
	code := `
function spam()
  for i = 1, 100 do
    ctx.log("msg " .. i)
  end
end`

	c := makeContract(t, code, "spam")
	ctx := makeContext(c, 10)

	_, err := NewBackend(0).Execute(c, "spam", nil, ctx)
	require.Error(t, err)

	oog := &gas.OutOfGasError{}
	require.ErrorAs(t, err, &oog)
	require.Equal(t, uint64(10), ctx.GasUsed())
}

func TestBackend_Execute_Timeout(t *testing.T) {
	code := `
function spin()
  while true do end
end`

	c := makeContract(t, code, "spin")
	ctx := makeContext(c, 1000)

	_, err := NewBackend(50*time.Millisecond).Execute(c, "spin", nil, ctx)
	require.EqualError(t, err, "execution timed out")
}

func TestBackend_Execute_ScriptError(t *testing.T) {
	code := `
function boom()
  error("exploded")
end`

	c := makeContract(t, code, "boom")

	_, err := NewBackend(0).Execute(c, "boom", nil, makeContext(c, 1000))
	require.Error(t, err)
	require.Contains(t, err.Error(), "script error")
	require.Contains(t, err.Error(), "exploded")
}

func TestBackend_Execute_SandboxStripped(t *testing.T) {
	code := `
function probe()
  return {
    os = tostring(os),
    io = tostring(io),
    loadstring = tostring(loadstring),
    print = tostring(print),
  }
end`

	c := makeContract(t, code, "probe")

	ret, err := NewBackend(0).Execute(c, "probe", nil, makeContext(c, 1000))
	require.NoError(t, err)
	require.Equal(t, "nil", ret.Get("io").Str())
	require.Equal(t, "nil", ret.Get("loadstring").Str())
	require.Equal(t, "nil", ret.Get("print").Str())
}

// -----------------------------------------------------------------------------
// Utility functions

func makeContract(t *testing.T, code string, fns ...string) *contract.SmartContract {
	t.Helper()

	abi := contract.ABI{}
	for _, fn := range fns {
		abi.Functions = append(abi.Functions, contract.FunctionSig{Name: fn})
	}

	c, err := contract.NewSmartContract("creator", "test", "", contract.Scripted,
		code, abi, crypto.NewSha256Factory())
	require.NoError(t, err)

	return c
}

func makeContext(c *contract.SmartContract, limit uint64) *execution.Context {
	meter := gas.NewMeter(limit, nil)

	snap := execution.ChainSnapshot{
		BlockHeight: 10,
		Timestamp:   1700000000,
		Balances:    map[string]uint64{"alice": 1000},
	}

	return execution.NewContext(c, "alice", "tx-1", 25, meter, snap)
}
