package task

import (
	"database/sql"
	"net/http"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/model"
	"github.com/hupe1980/a2aflow/registry"
)

// BuiltinOptions selects the collaborators of the reference handlers.
type BuiltinOptions struct {
	// Models enables the chat task, keyed by provider name.
	Models          map[string]model.Model
	DefaultProvider string
	// DB enables database_fetch and database_query.
	DB         *sql.DB
	MaxRows    int
	HTTPClient *http.Client
	// AgentToken is the default bearer token for agent calls.
	AgentToken string
	Logger     logging.Logger
}

// RegisterBuiltins registers the reference handlers into reg and returns the
// tags it registered. direct_handler, lua_script and agent_call are always
// registered; chat needs Models and the database tasks need DB.
func RegisterBuiltins(reg *registry.TaskRegistry, optFns ...func(o *BuiltinOptions)) ([]string, error) {
	opts := BuiltinOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	tasks := map[string]core.Task{
		core.TypeDirectHandler: NewDirectHandler(),
		core.TypeScript:        NewScript(),
		core.TypeAgentCall: NewAgentCall(func(o *AgentCallOptions) {
			o.HTTPClient = opts.HTTPClient
			o.Token = opts.AgentToken
		}),
	}

	if len(opts.Models) > 0 {
		tasks[core.TypeChat] = NewChatTask(opts.Models, func(o *ChatOptions) {
			o.DefaultProvider = opts.DefaultProvider
			o.Logger = opts.Logger
		})
	}

	if opts.DB != nil {
		db := NewDatabase(opts.DB, func(o *DatabaseOptions) {
			o.MaxRows = opts.MaxRows
			o.Logger = opts.Logger
		})
		tasks[core.TypeDatabaseFetch] = db
		tasks[core.TypeDatabaseQuery] = db
	}

	registered := make([]string, 0, len(tasks))
	for _, tag := range []string{
		core.TypeDirectHandler,
		core.TypeScript,
		core.TypeAgentCall,
		core.TypeChat,
		core.TypeDatabaseFetch,
		core.TypeDatabaseQuery,
	} {
		impl, ok := tasks[tag]
		if !ok {
			continue
		}
		if err := reg.Register(tag, impl); err != nil {
			return registered, err
		}
		registered = append(registered, tag)
	}

	opts.Logger.Debug("task.builtins.registered", "tags", registered)

	return registered, nil
}

// RegisterFunctions registers each function task under its own name.
func RegisterFunctions(reg *registry.TaskRegistry, fns ...*FunctionTask) error {
	for _, fn := range fns {
		if err := reg.Register(fn.Name(), fn); err != nil {
			return err
		}
	}
	return nil
}
