package scripted

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/porwchain/porw/core/value"
)

// toLua converts a tagged value into its Lua representation. Lists become
// tables with consecutive integer keys, maps become tables with string keys.
func toLua(state *lua.LState, v value.V) lua.LValue {
	switch v.Kind() {
	case value.Null:
		return lua.LNil
	case value.Bool:
		return lua.LBool(v.Bool())
	case value.Number:
		return lua.LNumber(v.Number())
	case value.String:
		return lua.LString(v.Str())
	case value.List:
		table := state.NewTable()

		for _, elem := range v.List() {
			table.Append(toLua(state, elem))
		}

		return table
	case value.Map:
		table := state.NewTable()

		for key, elem := range v.Map() {
			state.SetField(table, key, toLua(state, elem))
		}

		return table
	default:
		return lua.LNil
	}
}

// fromLua converts a Lua value back into a tagged value. A table whose keys
// are exactly 1..n becomes a list, any other table becomes a map with keys
// converted to strings. Functions, userdata and other non-data values are
// dropped to null.
func fromLua(lv lua.LValue) value.V {
	switch v := lv.(type) {
	case *lua.LNilType:
		return value.NewNull()
	case lua.LBool:
		return value.NewBool(bool(v))
	case lua.LNumber:
		return value.NewNumber(float64(v))
	case lua.LString:
		return value.NewString(string(v))
	case *lua.LTable:
		return fromLuaTable(v)
	default:
		return value.NewNull()
	}
}

func fromLuaTable(table *lua.LTable) value.V {
	length := table.Len()
	entries := map[string]value.V{}
	isList := true
	count := 0

	table.ForEach(func(k, v lua.LValue) {
		count++

		num, ok := k.(lua.LNumber)
		if !ok || float64(num) != float64(int(num)) || int(num) < 1 || int(num) > length {
			isList = false
		}

		entries[lua.LVAsString(k)] = fromLua(v)
	})

	if isList && count == length {
		elems := make([]value.V, length)

		for i := 1; i <= length; i++ {
			elems[i-1] = fromLua(table.RawGetInt(i))
		}

		return value.NewList(elems...)
	}

	return value.NewMap(entries)
}
