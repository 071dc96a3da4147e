// Package jsondsl implements the JSON mini-language backend. A contract's
// code is a JSON document of named function bodies; a body is a literal, a
// reference, a sequence, a conditional or an action node.
//
// References are resolved against the execution context and charge gas like
// any other host call. An out-of-range argument reference resolves to null,
// never to an error.
package jsondsl

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/value"
	"golang.org/x/xerrors"
)

// Node keys recognized by the interpreter.
const (
	keyIf         = "if"
	keyThen       = "then"
	keyElse       = "else"
	keyReturn     = "return"
	keySetStorage = "set_storage"
	keyLog        = "log"
	keyEmit       = "emit"
)

var comparisons = []string{"equals", "not_equals", "gt", "gte", "lt", "lte"}

var operators = []string{"concat", "add", "sub", "mul", "div"}

var refPattern = regexp.MustCompile(`\{(\$[^{}]+)\}`)

// document is the parsed top level of a JSON DSL contract.
type document struct {
	Functions map[string]json.RawMessage `json:"functions"`
}

// Backend executes JSON DSL contracts.
//
// - implements vm.Backend
type Backend struct{}

// NewBackend returns a new JSON DSL backend.
func NewBackend() Backend {
	return Backend{}
}

// Validate implements vm.Backend. It parses the code, requires a non-empty
// functions object with every ABI-declared name present, and checks each
// body structurally.
func (Backend) Validate(c *contract.SmartContract) error {
	doc, err := parse(c.Code)
	if err != nil {
		return execution.NewInvalidContractError("%v", err)
	}

	if len(doc.Functions) == 0 {
		return execution.NewInvalidContractError("code declares no functions")
	}

	for _, fn := range c.ABI.Functions {
		if _, ok := doc.Functions[fn.Name]; !ok {
			return execution.NewInvalidContractError(
				"abi function '%s' not found in code", fn.Name)
		}
	}

	for name, raw := range doc.Functions {
		body := value.V{}

		err := body.UnmarshalJSON(raw)
		if err != nil {
			return execution.NewInvalidContractError(
				"function '%s': %v", name, err)
		}

		err = checkNode(body)
		if err != nil {
			return execution.NewInvalidContractError(
				"function '%s': %v", name, err)
		}
	}

	return nil
}

// Execute implements vm.Backend. It evaluates the named function body
// against the context.
func (Backend) Execute(c *contract.SmartContract, fn string, args []value.V,
	ctx *execution.Context) (value.V, error) {

	doc, err := parse(c.Code)
	if err != nil {
		return value.V{}, execution.NewExecutionError("%v", err)
	}

	raw, ok := doc.Functions[fn]
	if !ok {
		return value.V{}, execution.NewExecutionError(
			"function '%s' not found", fn)
	}

	body := value.V{}

	err = body.UnmarshalJSON(raw)
	if err != nil {
		return value.V{}, execution.NewExecutionError(
			"malformed function '%s': %v", fn, err)
	}

	ev := evaluator{ctx: ctx, args: args}

	ret, _, err := ev.eval(body)
	if err != nil {
		return value.V{}, err
	}

	return ret, nil
}

func parse(code string) (document, error) {
	doc := document{}

	err := json.Unmarshal([]byte(code), &doc)
	if err != nil {
		return doc, xerrors.Errorf("couldn't parse code: %v", err)
	}

	return doc, nil
}

// checkNode verifies the structure of a body node without executing it.
func checkNode(node value.V) error {
	switch node.Kind() {
	case value.List:
		for i, elem := range node.List() {
			err := checkNode(elem)
			if err != nil {
				return xerrors.Errorf("node %d: %v", i, err)
			}
		}

		return nil
	case value.Map:
		entries := node.Map()

		if cond, ok := entries[keyIf]; ok {
			err := checkCondition(cond)
			if err != nil {
				return err
			}

			then, ok := entries[keyThen]
			if !ok {
				return xerrors.New("conditional without 'then'")
			}

			err = checkNode(then)
			if err != nil {
				return err
			}

			if other, ok := entries[keyElse]; ok {
				return checkNode(other)
			}

			return nil
		}

		if hasAction(entries) {
			if emit, ok := entries[keyEmit]; ok {
				if emit.Get("name").Kind() != value.String {
					return xerrors.New("emit without a string 'name'")
				}
			}

			if set, ok := entries[keySetStorage]; ok {
				if set.Kind() != value.Map {
					return xerrors.New("set_storage expects a map")
				}
			}

			return nil
		}

		return nil
	default:
		return nil
	}
}

func checkCondition(cond value.V) error {
	if cond.Kind() != value.Map {
		return nil
	}

	for _, op := range comparisons {
		operands, ok := cond.Map()[op]
		if !ok {
			continue
		}

		if operands.Kind() != value.List || len(operands.List()) != 2 {
			return xerrors.Errorf("'%s' expects [left, right]", op)
		}

		return nil
	}

	return nil
}

func hasAction(entries map[string]value.V) bool {
	for _, key := range []string{keyReturn, keySetStorage, keyLog, keyEmit} {
		if _, ok := entries[key]; ok {
			return true
		}
	}

	return false
}

// evaluator walks one function body against a context.
type evaluator struct {
	ctx  *execution.Context
	args []value.V
}

// eval returns the value of the node and whether an explicit return was hit.
func (ev evaluator) eval(node value.V) (value.V, bool, error) {
	switch node.Kind() {
	case value.List:
		result := value.NewNull()

		for i, elem := range node.List() {
			v, returned, err := ev.eval(elem)
			if err != nil {
				return value.V{}, false, xerrors.Errorf("node %d: %w", i, err)
			}

			result = v

			if returned {
				return result, true, nil
			}
		}

		return result, false, nil
	case value.Map:
		entries := node.Map()

		if _, ok := entries[keyIf]; ok {
			return ev.evalConditional(entries)
		}

		if hasAction(entries) {
			return ev.evalAction(entries)
		}

		v, err := ev.resolve(node)

		return v, false, err
	default:
		v, err := ev.resolve(node)

		return v, false, err
	}
}

func (ev evaluator) evalConditional(entries map[string]value.V) (value.V, bool, error) {
	ok, err := ev.evalCondition(entries[keyIf])
	if err != nil {
		return value.V{}, false, err
	}

	if ok {
		return ev.eval(entries[keyThen])
	}

	if other, found := entries[keyElse]; found {
		return ev.eval(other)
	}

	return value.NewNull(), false, nil
}

func (ev evaluator) evalCondition(cond value.V) (bool, error) {
	if cond.Kind() != value.Map {
		v, err := ev.resolve(cond)
		if err != nil {
			return false, err
		}

		return v.Truthy(), nil
	}

	for _, op := range comparisons {
		operands, ok := cond.Map()[op]
		if !ok {
			continue
		}

		if operands.Kind() != value.List || len(operands.List()) != 2 {
			return false, execution.NewExecutionError(
				"'%s' expects [left, right]", op)
		}

		left, err := ev.resolve(operands.At(0))
		if err != nil {
			return false, err
		}

		right, err := ev.resolve(operands.At(1))
		if err != nil {
			return false, err
		}

		return compare(op, left, right), nil
	}

	v, err := ev.resolve(cond)
	if err != nil {
		return false, err
	}

	return v.Truthy(), nil
}

func compare(op string, left, right value.V) bool {
	switch op {
	case "equals":
		return left.Equal(right)
	case "not_equals":
		return !left.Equal(right)
	}

	if left.Kind() == value.String && right.Kind() == value.String {
		switch op {
		case "gt":
			return left.Str() > right.Str()
		case "gte":
			return left.Str() >= right.Str()
		case "lt":
			return left.Str() < right.Str()
		case "lte":
			return left.Str() <= right.Str()
		}
	}

	l, r := left.Number(), right.Number()

	switch op {
	case "gt":
		return l > r
	case "gte":
		return l >= r
	case "lt":
		return l < r
	case "lte":
		return l <= r
	default:
		return false
	}
}

// evalAction performs the side effects of an action node in a fixed order:
// log, set_storage, emit, return.
func (ev evaluator) evalAction(entries map[string]value.V) (value.V, bool, error) {
	if msg, ok := entries[keyLog]; ok {
		v, err := ev.resolve(msg)
		if err != nil {
			return value.V{}, false, err
		}

		err = ev.ctx.Log(v.String())
		if err != nil {
			return value.V{}, false, err
		}
	}

	if writes, ok := entries[keySetStorage]; ok {
		if writes.Kind() != value.Map {
			return value.V{}, false, execution.NewExecutionError(
				"set_storage expects a map")
		}

		keys := make([]string, 0, len(writes.Map()))
		for key := range writes.Map() {
			keys = append(keys, key)
		}

		// Writes happen in sorted key order so gas consumption is
		// deterministic.
		sort.Strings(keys)

		for _, key := range keys {
			resolved, err := ev.resolveKey(key)
			if err != nil {
				return value.V{}, false, err
			}

			v, err := ev.resolve(writes.Map()[key])
			if err != nil {
				return value.V{}, false, err
			}

			err = ev.ctx.SetStorage(resolved, v)
			if err != nil {
				return value.V{}, false, err
			}
		}
	}

	if emit, ok := entries[keyEmit]; ok {
		name := emit.Get("name")
		if name.Kind() != value.String {
			return value.V{}, false, execution.NewExecutionError(
				"emit without a string 'name'")
		}

		data := map[string]value.V{}

		for key, raw := range emit.Get("data").Map() {
			v, err := ev.resolve(raw)
			if err != nil {
				return value.V{}, false, err
			}

			data[key] = v
		}

		err := ev.ctx.EmitEvent(name.Str(), data)
		if err != nil {
			return value.V{}, false, err
		}
	}

	if ret, ok := entries[keyReturn]; ok {
		v, err := ev.resolve(ret)
		if err != nil {
			return value.V{}, false, err
		}

		return v, true, nil
	}

	return value.NewNull(), false, nil
}

// resolve evaluates a value expression: literals, $ references, operator
// nodes and containers with resolved entries.
func (ev evaluator) resolve(v value.V) (value.V, error) {
	switch v.Kind() {
	case value.String:
		if strings.HasPrefix(v.Str(), "$") {
			return ev.resolveRef(v.Str())
		}

		return v, nil
	case value.List:
		elems := make([]value.V, len(v.List()))

		for i, elem := range v.List() {
			resolved, err := ev.resolve(elem)
			if err != nil {
				return value.V{}, err
			}

			elems[i] = resolved
		}

		return value.NewList(elems...), nil
	case value.Map:
		for _, op := range operators {
			operands, ok := v.Map()[op]
			if ok {
				return ev.resolveOperator(op, operands)
			}
		}

		entries := make(map[string]value.V, len(v.Map()))

		for key, elem := range v.Map() {
			resolved, err := ev.resolve(elem)
			if err != nil {
				return value.V{}, err
			}

			entries[key] = resolved
		}

		return value.NewMap(entries), nil
	default:
		return v, nil
	}
}

func (ev evaluator) resolveOperator(op string, operands value.V) (value.V, error) {
	if operands.Kind() != value.List {
		return value.V{}, execution.NewExecutionError(
			"'%s' expects a list of operands", op)
	}

	resolved := make([]value.V, len(operands.List()))

	for i, elem := range operands.List() {
		v, err := ev.resolve(elem)
		if err != nil {
			return value.V{}, err
		}

		resolved[i] = v
	}

	if op == "concat" {
		out := strings.Builder{}

		for _, v := range resolved {
			out.WriteString(v.String())
		}

		return value.NewString(out.String()), nil
	}

	if len(resolved) != 2 {
		return value.V{}, execution.NewExecutionError(
			"'%s' expects [left, right]", op)
	}

	// Null operands coerce to 0 so arithmetic over missing storage keys is
	// well defined.
	l, r := resolved[0].Number(), resolved[1].Number()

	switch op {
	case "add":
		return value.NewNumber(l + r), nil
	case "sub":
		return value.NewNumber(l - r), nil
	case "mul":
		return value.NewNumber(l * r), nil
	case "div":
		if r == 0 {
			return value.V{}, execution.NewExecutionError("division by zero")
		}

		return value.NewNumber(l / r), nil
	default:
		return value.V{}, execution.NewExecutionError("unknown operator '%s'", op)
	}
}

func (ev evaluator) resolveRef(ref string) (value.V, error) {
	switch ref {
	case "$sender":
		sender, err := ev.ctx.GetSender()
		if err != nil {
			return value.V{}, err
		}

		return value.NewString(sender), nil
	case "$value":
		amount, err := ev.ctx.GetValue()
		if err != nil {
			return value.V{}, err
		}

		return value.NewNumber(float64(amount)), nil
	case "$balance":
		balance, err := ev.ctx.GetBalance("self")
		if err != nil {
			return value.V{}, err
		}

		return value.NewNumber(float64(balance)), nil
	case "$timestamp":
		ts, err := ev.ctx.GetTimestamp()
		if err != nil {
			return value.V{}, err
		}

		return value.NewNumber(float64(ts)), nil
	case "$block_height":
		height, err := ev.ctx.GetBlockHeight()
		if err != nil {
			return value.V{}, err
		}

		return value.NewNumber(float64(height)), nil
	}

	if strings.HasPrefix(ref, "$storage.") {
		resolved, err := ev.resolveKey(strings.TrimPrefix(ref, "$storage."))
		if err != nil {
			return value.V{}, err
		}

		return ev.ctx.GetStorage(resolved)
	}

	if strings.HasPrefix(ref, "$arg.") {
		i, err := strconv.Atoi(strings.TrimPrefix(ref, "$arg."))
		if err != nil {
			return value.V{}, execution.NewExecutionError(
				"malformed argument reference '%s'", ref)
		}

		if i < 0 || i >= len(ev.args) {
			return value.NewNull(), nil
		}

		return ev.args[i], nil
	}

	return value.V{}, execution.NewExecutionError("unknown reference '%s'", ref)
}

// resolveKey interpolates {$ref} occurrences inside a storage key.
func (ev evaluator) resolveKey(key string) (string, error) {
	var failure error

	resolved := refPattern.ReplaceAllStringFunc(key, func(match string) string {
		ref := refPattern.FindStringSubmatch(match)[1]

		v, err := ev.resolveRef(ref)
		if err != nil {
			if failure == nil {
				failure = err
			}

			return ""
		}

		return v.String()
	})

	if failure != nil {
		return "", failure
	}

	return resolved, nil
}
