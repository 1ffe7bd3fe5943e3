// Package task ships reference implementations of the uniform task contract.
//
// The engine only needs a type tag and a core.Task; everything in this
// package is optional. RegisterBuiltins wires the handlers whose
// collaborators are available:
//
//	direct_handler   inline Go functions declared with dsl.Builder.Handle
//	lua_script       sandboxed Lua scripts (gopher-lua)
//	agent_call       remote a2aflow agents through an a2a.Client
//	chat             LLM completions through a model.Model
//	database_fetch   SELECT statements over database/sql
//	database_query   write statements over database/sql
//
// Custom handlers can be registered next to the builtins under any tag;
// FunctionTask adapts a plain function with a parameter schema.
//
// Handlers report failures as *Error with one of the codes
// VALIDATION_ERROR, CONFIG_ERROR or EXECUTION_ERROR.
package task
