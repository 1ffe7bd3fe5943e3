package task

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/hupe1980/a2aflow/core"
)

// DefaultScriptResultKey receives non-table script results.
const DefaultScriptResultKey = "result"

// ScriptOptions configures a Script task.
type ScriptOptions struct {
	// CallStackSize bounds Lua call depth.
	CallStackSize int
	// Globals are exposed to every script as read-only values.
	Globals map[string]any
}

// Script runs lua_script tasks in a sandboxed gopher-lua state.
//
// Only the base (without load, loadstring, loadfile, dofile and print),
// table, string and math (without random) libraries are opened. Scripts
// see:
//
//	input     table holding the invocation's context copy
//	options   table holding the task's resolved options
//	task      the task name
//	log(msg)  writes msg to the invocation logger
//	fail(msg) aborts the script with an error
//
// A returned table (or, if nothing is returned, a global named output)
// becomes the task output; any other returned value is stored under
// "result". The state observes ctx, so timeouts interrupt running scripts.
type Script struct {
	callStackSize int
	globals       map[string]any
}

// NewScript creates a script task.
func NewScript(optFns ...func(o *ScriptOptions)) *Script {
	opts := ScriptOptions{
		CallStackSize: 120,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Script{callStackSize: opts.CallStackSize, globals: opts.Globals}
}

// Execute implements core.Task.
func (s *Script) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	cfg, err := configAs[*core.ScriptConfig](inv)
	if err != nil {
		return nil, err
	}
	if cfg.Source == "" {
		return nil, configError(inv, "lua_script requires a source")
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: s.callStackSize,
	})
	defer L.Close()

	L.SetContext(ctx)

	openSafeLibs(L)

	for k, v := range s.globals {
		L.SetGlobal(k, toLua(L, v))
	}

	L.SetGlobal("input", toLua(L, inv.Context.Snapshot()))
	L.SetGlobal("options", toLua(L, cfg.Extra().Resolve(inv.Context)))
	L.SetGlobal("task", lua.LString(inv.Spec.Name))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		inv.LogInfo("task.script.log", "message", L.CheckString(1))
		return 0
	}))
	L.SetGlobal("fail", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s", L.OptString(1, "script failed"))
		return 0
	}))

	top := L.GetTop()
	if err := L.DoString(cfg.Source); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, executionError(inv, fmt.Errorf("script interrupted: %w", ctxErr))
		}
		return nil, executionError(inv, fmt.Errorf("script: %w", err))
	}

	var ret lua.LValue = lua.LNil
	if L.GetTop() > top {
		ret = L.Get(top + 1)
	}
	if ret == lua.LNil {
		ret = L.GetGlobal("output")
	}

	switch v := ret.(type) {
	case *lua.LNilType:
		return map[string]any{}, nil
	case *lua.LTable:
		m, ok := fromLua(v).(map[string]any)
		if !ok {
			return map[string]any{DefaultScriptResultKey: fromLua(v)}, nil
		}
		return m, nil
	default:
		return map[string]any{DefaultScriptResultKey: fromLua(v)}, nil
	}
}

func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), toLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), lua.LString(item))
		}
		return tbl
	case []map[string]any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, toLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// fromLua converts a Lua value to Go. Tables whose keys are exactly 1..n
// become slices, all other tables become maps keyed by the key's string form.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		n := val.MaxN()
		count := 0
		val.ForEach(func(lua.LValue, lua.LValue) { count++ })

		if n > 0 && count == n {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(val.RawGetInt(i)))
			}
			return out
		}

		out := make(map[string]any, count)
		val.ForEach(func(k, item lua.LValue) {
			out[k.String()] = fromLua(item)
		})
		return out
	default:
		return val.String()
	}
}
