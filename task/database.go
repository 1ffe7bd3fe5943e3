package task

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/logging"
)

// Default output keys of the database tasks.
const (
	DefaultRowsKey   = "rows"
	DefaultRowKey    = "row"
	DefaultResultKey = "result"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DatabaseOptions configures a Database task.
type DatabaseOptions struct {
	// MaxRows bounds the rows returned by a fetch; zero means unbounded.
	MaxRows int
	Logger  logging.Logger
}

// Database runs SQL statements over a *sql.DB.
//
// For database_fetch the statement is a query and the rows are returned as a
// list of column maps (or a single map when Single is set). Without a query
// the whole Table is selected. For database_query the statement is executed
// and rows_affected plus last_insert_id are returned.
//
// Statement parameters come from ArgsFunc when set, else from the context
// values named by Args, in order.
type Database struct {
	db      *sql.DB
	maxRows int
	logger  logging.Logger
}

// NewDatabase creates a database task over db.
func NewDatabase(db *sql.DB, optFns ...func(o *DatabaseOptions)) *Database {
	opts := DatabaseOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Database{db: db, maxRows: opts.MaxRows, logger: opts.Logger}
}

// Execute implements core.Task.
func (d *Database) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	cfg, err := configAs[*core.DatabaseConfig](inv)
	if err != nil {
		return nil, err
	}
	if d.db == nil {
		return nil, configError(inv, "no database configured")
	}

	stmt, err := statement(inv, cfg)
	if err != nil {
		return nil, err
	}

	args, err := statementArgs(inv, cfg)
	if err != nil {
		return nil, err
	}

	inv.LogDebug("task.database.statement", "operation", cfg.Operation, "args", len(args))

	switch cfg.Operation {
	case core.TypeDatabaseQuery:
		return d.exec(ctx, inv, cfg, stmt, args)
	default:
		return d.fetch(ctx, inv, cfg, stmt, args)
	}
}

func (d *Database) fetch(ctx context.Context, inv *core.Invocation, cfg *core.DatabaseConfig, stmt string, args []any) (map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, executionError(inv, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, executionError(inv, fmt.Errorf("columns: %w", err))
	}

	limit := d.maxRows
	if cfg.Single {
		limit = 1
	}

	var out []map[string]any
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, executionError(inv, fmt.Errorf("scan: %w", err))
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalize(values[i])
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, executionError(inv, fmt.Errorf("rows: %w", err))
	}

	if cfg.Single {
		key := outputKey(cfg.OutputKey, DefaultRowKey)
		if len(out) == 0 {
			return map[string]any{key: nil}, nil
		}
		return map[string]any{key: out[0]}, nil
	}

	if out == nil {
		out = []map[string]any{}
	}

	return map[string]any{outputKey(cfg.OutputKey, DefaultRowsKey): out}, nil
}

func (d *Database) exec(ctx context.Context, inv *core.Invocation, cfg *core.DatabaseConfig, stmt string, args []any) (map[string]any, error) {
	res, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, executionError(inv, fmt.Errorf("exec: %w", err))
	}

	result := map[string]any{}
	if n, err := res.RowsAffected(); err == nil {
		result["rows_affected"] = n
	}
	if id, err := res.LastInsertId(); err == nil {
		result["last_insert_id"] = id
	}

	return map[string]any{outputKey(cfg.OutputKey, DefaultResultKey): result}, nil
}

func statement(inv *core.Invocation, cfg *core.DatabaseConfig) (string, error) {
	if !cfg.Query.IsZero() {
		if cfg.Query.IsDeferred() {
			s, _ := cfg.Query.Resolve(inv.Context)
			return s, nil
		}
		// Literal statements pass through verbatim; values bind as parameters.
		return cfg.Query.String(), nil
	}

	if cfg.Table == "" {
		return "", configError(inv, "%s requires a query or a table", cfg.Operation)
	}
	if cfg.Operation == core.TypeDatabaseQuery {
		return "", configError(inv, "database_query requires a query")
	}
	if !identifier.MatchString(cfg.Table) {
		return "", configError(inv, "invalid table name %q", cfg.Table)
	}

	return "SELECT * FROM " + cfg.Table, nil
}

func statementArgs(inv *core.Invocation, cfg *core.DatabaseConfig) ([]any, error) {
	if cfg.ArgsFunc != nil {
		return cfg.ArgsFunc(inv.Context), nil
	}

	args := make([]any, 0, len(cfg.ArgKeys))
	for _, k := range cfg.ArgKeys {
		v, ok := inv.Context.Get(k)
		if !ok {
			return nil, NewError(inv, CodeValidation, "statement argument %q not found in context", k)
		}
		args = append(args, v)
	}

	return args, nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func outputKey(key, def string) string {
	if key == "" {
		return def
	}
	return key
}
