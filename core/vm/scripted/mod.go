// Package scripted implements the scripted-language backend with an embedded
// Lua interpreter. The interpreter is capability scoped: contract code sees a
// curated set of pure builtins (math, string, table helpers) and a ctx table
// exposing exactly the execution context, nothing else. No I/O, no module
// loading, no reflection is reachable.
//
// Gas is charged at ctx call boundaries; since a host-call-free loop is not
// bounded by the meter, every run additionally carries a wall-clock deadline.
package scripted

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/gas"
	"github.com/porwchain/porw/core/value"
)

// DefaultDeadline bounds the wall-clock time of one call when the backend is
// created without an explicit deadline.
const DefaultDeadline = 5 * time.Second

// forbidden lists the constructs rejected at deploy time. They would give
// contract code ambient capabilities the sandbox must not expose. Matching is
// bounded on identifier characters so that names merely containing a
// construct, such as "payload" or "todos.count", pass.
var forbidden = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"require", namePattern("require")},
	{"dofile", namePattern("dofile")},
	{"loadfile", namePattern("loadfile")},
	{"loadstring", namePattern("loadstring")},
	{"collectgarbage", namePattern("collectgarbage")},
	{"os", libPattern("os")},
	{"io", libPattern("io")},
	{"debug", libPattern("debug")},
	{"package", libPattern("package")},
	{"coroutine", libPattern("coroutine")},
}

// namePattern matches the builtin as a standalone identifier.
func namePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^A-Za-z0-9_.])` + name + `($|[^A-Za-z0-9_])`)
}

// libPattern matches an access to a member of the library table.
func libPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^A-Za-z0-9_.])` + name + `\s*[.\[]`)
}

// loadPattern catches the bare load builtin. It only triggers on a call so
// that "load" can still appear as a field name.
var loadPattern = regexp.MustCompile(`(^|[^A-Za-z0-9_.])load\s*\(`)

// removedGlobals are stripped from the base library after opening it.
var removedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "print",
	"collectgarbage", "module", "newproxy", "package",
}

// Backend executes scripted contracts in an embedded Lua interpreter.
//
// - implements vm.Backend
type Backend struct {
	deadline time.Duration
}

// NewBackend returns a backend enforcing the given wall-clock deadline per
// call. A zero deadline falls back to the default.
func NewBackend(deadline time.Duration) Backend {
	if deadline == 0 {
		deadline = DefaultDeadline
	}

	return Backend{deadline: deadline}
}

// Validate implements vm.Backend. It rejects forbidden constructs, requires
// the source to compile, and requires the ABI to declare at least one
// function whose definition appears in the source.
func (b Backend) Validate(c *contract.SmartContract) error {
	for _, construct := range forbidden {
		if construct.pattern.MatchString(c.Code) {
			return execution.NewInvalidContractError(
				"forbidden construct '%s'", construct.name)
		}
	}

	if loadPattern.MatchString(c.Code) {
		return execution.NewInvalidContractError("forbidden construct 'load'")
	}

	chunk, err := parse.Parse(strings.NewReader(c.Code), c.Name)
	if err != nil {
		return execution.NewInvalidContractError("code does not compile: %v", err)
	}

	_, err = lua.Compile(chunk, c.Name)
	if err != nil {
		return execution.NewInvalidContractError("code does not compile: %v", err)
	}

	if len(c.ABI.Functions) == 0 {
		return execution.NewInvalidContractError("abi declares no functions")
	}

	for _, fn := range c.ABI.Functions {
		if fn.Name == "" {
			return execution.NewInvalidContractError("abi function without a name")
		}

		if !definesFunction(c.Code, fn.Name) {
			return execution.NewInvalidContractError(
				"abi function '%s' not found in code", fn.Name)
		}
	}

	return nil
}

func definesFunction(code, name string) bool {
	pattern := regexp.MustCompile(
		`(^|\n)\s*function\s+` + regexp.QuoteMeta(name) + `\s*\(`)

	return pattern.MatchString(code)
}

// Execute implements vm.Backend. It runs the contract source in a fresh
// sandboxed interpreter and invokes the named function with the arguments.
func (b Backend) Execute(c *contract.SmartContract, fn string, args []value.V,
	ctx *execution.Context) (value.V, error) {

	host := &hostBridge{ctx: ctx}

	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer state.Close()

	runCtx, cancel := context.WithTimeout(context.Background(), b.deadline)
	defer cancel()

	state.SetContext(runCtx)

	openSandbox(state)
	host.register(state)

	err := state.DoString(c.Code)
	if err != nil {
		return value.V{}, host.translate(runCtx, err)
	}

	target := state.GetGlobal(fn)
	if target.Type() != lua.LTFunction {
		return value.V{}, execution.NewExecutionError(
			"function '%s' not found", fn)
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = toLua(state, arg)
	}

	err = state.CallByParam(lua.P{
		Fn:      target,
		NRet:    1,
		Protect: true,
	}, luaArgs...)
	if err != nil {
		return value.V{}, host.translate(runCtx, err)
	}

	ret := state.Get(-1)
	state.Pop(1)

	return fromLua(ret), nil
}

// openSandbox loads the pure parts of the standard library and strips the
// globals that would leak capabilities.
func openSandbox(state *lua.LState) {
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}

	for _, lib := range libs {
		state.Push(state.NewFunction(lib.open))
		state.Push(lua.LString(lib.name))
		state.Call(1, 0)
	}

	for _, name := range removedGlobals {
		state.SetGlobal(name, lua.LNil)
	}
}

// hostBridge adapts the execution context to Lua functions. Host errors are
// remembered so that a Lua panic can be translated back to the original
// typed error, in particular out-of-gas.
type hostBridge struct {
	ctx *execution.Context
	err error
}

func (h *hostBridge) register(state *lua.LState) {
	table := state.NewTable()

	fns := map[string]lua.LGFunction{
		"log":              h.log,
		"emit_event":       h.emitEvent,
		"get_storage":      h.getStorage,
		"set_storage":      h.setStorage,
		"get_balance":      h.getBalance,
		"get_block_height": h.getBlockHeight,
		"get_timestamp":    h.getTimestamp,
		"get_sender":       h.getSender,
		"get_value":        h.getValue,
	}

	for name, fn := range fns {
		state.SetField(table, name, state.NewFunction(fn))
	}

	state.SetGlobal("ctx", table)
}

// fail records the host error and aborts the Lua call.
func (h *hostBridge) fail(state *lua.LState, err error) int {
	if h.err == nil {
		h.err = err
	}

	state.RaiseError("%s", err.Error())

	return 0
}

func (h *hostBridge) log(state *lua.LState) int {
	msg := state.CheckString(1)

	err := h.ctx.Log(msg)
	if err != nil {
		return h.fail(state, err)
	}

	return 0
}

func (h *hostBridge) emitEvent(state *lua.LState) int {
	name := state.CheckString(1)
	data := map[string]value.V{}

	if state.GetTop() >= 2 {
		table := state.CheckTable(2)

		table.ForEach(func(k, v lua.LValue) {
			data[lua.LVAsString(k)] = fromLua(v)
		})
	}

	err := h.ctx.EmitEvent(name, data)
	if err != nil {
		return h.fail(state, err)
	}

	return 0
}

func (h *hostBridge) getStorage(state *lua.LState) int {
	key := state.CheckString(1)

	v, err := h.ctx.GetStorage(key)
	if err != nil {
		return h.fail(state, err)
	}

	state.Push(toLua(state, v))

	return 1
}

func (h *hostBridge) setStorage(state *lua.LState) int {
	key := state.CheckString(1)
	v := fromLua(state.CheckAny(2))

	err := h.ctx.SetStorage(key, v)
	if err != nil {
		return h.fail(state, err)
	}

	return 0
}

func (h *hostBridge) getBalance(state *lua.LState) int {
	addr := ""
	if state.GetTop() >= 1 {
		addr = state.CheckString(1)
	}

	balance, err := h.ctx.GetBalance(addr)
	if err != nil {
		return h.fail(state, err)
	}

	state.Push(lua.LNumber(balance))

	return 1
}

func (h *hostBridge) getBlockHeight(state *lua.LState) int {
	height, err := h.ctx.GetBlockHeight()
	if err != nil {
		return h.fail(state, err)
	}

	state.Push(lua.LNumber(height))

	return 1
}

func (h *hostBridge) getTimestamp(state *lua.LState) int {
	ts, err := h.ctx.GetTimestamp()
	if err != nil {
		return h.fail(state, err)
	}

	state.Push(lua.LNumber(ts))

	return 1
}

func (h *hostBridge) getSender(state *lua.LState) int {
	sender, err := h.ctx.GetSender()
	if err != nil {
		return h.fail(state, err)
	}

	state.Push(lua.LString(sender))

	return 1
}

func (h *hostBridge) getValue(state *lua.LState) int {
	amount, err := h.ctx.GetValue()
	if err != nil {
		return h.fail(state, err)
	}

	state.Push(lua.LNumber(amount))

	return 1
}

// translate converts a Lua error into the engine taxonomy: a recorded host
// error wins (out-of-gas in particular), a hit deadline becomes a timeout
// execution error, anything else is a plain execution error.
func (h *hostBridge) translate(runCtx context.Context, err error) error {
	if h.err != nil {
		var oog *gas.OutOfGasError
		if errors.As(h.err, &oog) {
			return oog
		}

		return h.err
	}

	if runCtx.Err() != nil {
		return execution.NewExecutionError("execution timed out")
	}

	return execution.NewExecutionError("script error: %v", err)
}
