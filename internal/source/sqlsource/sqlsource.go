// Package sqlsource adapts relational databases to the source contract.
//
// A base names either an entry in the adapter's named query table, a table
// name, or literal SELECT text. Requests compile to parameterized SQL with
// querysql; the pushable part of the filter becomes a WHERE clause.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/fedq/internal/querysql"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// MySQL server error numbers that mean the request names something that
// does not exist.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlErrNoSuchTable   = 1146
	mysqlErrUnknownColumn = 1054
)

// Adapter serves rows from a database/sql connection pool.
//
// Thread-safety: safe for concurrent Fetch calls; schemas are cached per
// base after first discovery.
type Adapter struct {
	name    string
	db      *sql.DB
	dialect querysql.Dialect
	queries map[string]string
	logger  *slog.Logger

	mu      sync.Mutex
	schemas map[string]value.Schema
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithQueries sets the named base queries (name -> SELECT text or table).
func WithQueries(queries map[string]string) Option {
	return func(a *Adapter) {
		for k, v := range queries {
			a.queries[k] = v
		}
	}
}

// Open connects to driver/dsn and verifies the connection.
//
// Supported drivers: sqlite3 (mattn/go-sqlite3) and mysql
// (go-sql-driver/mysql). A failed ping is SOURCE_UNAVAILABLE.
func Open(ctx context.Context, name, driver, dsn string, opts ...Option) (*Adapter, error) {
	dialect, err := querysql.DialectFor(driver)
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", name, err)
	}

	target := dsn
	if dialect == querysql.DialectMySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("open source %q: parse dsn: %w", name, err)
		}
		target = cfg.Addr + "/" + cfg.DBName
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, source.NewUnavailable(name, err)
	}

	a := New(name, db, dialect, opts...)
	a.logger.Info("sql source opened",
		"source", name,
		"driver", driver,
		"target", target)
	return a, nil
}

// New wraps an existing connection pool.
func New(name string, db *sql.DB, dialect querysql.Dialect, opts ...Option) *Adapter {
	a := &Adapter{
		name:    name,
		db:      db,
		dialect: dialect,
		queries: make(map[string]string),
		logger:  slog.Default(),
		schemas: make(map[string]value.Schema),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close closes the underlying connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// resolveBase maps a named query to its text. Unknown names pass through as
// table names or literal SQL.
func (a *Adapter) resolveBase(base string) (string, error) {
	if q, ok := a.queries[base]; ok {
		return q, nil
	}
	if base == "" {
		return "", source.NewSchemaMismatch(a.name, "no base query or table given")
	}
	return base, nil
}

// Schema discovers the column names and declared types of base.
func (a *Adapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	a.mu.Lock()
	cached, ok := a.schemas[base]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	resolved, err := a.resolveBase(base)
	if err != nil {
		return value.Schema{}, err
	}

	compiler := querysql.NewSQLCompiler(a.dialect, value.Schema{})
	query := "SELECT * FROM " + compiler.From(resolved) + " LIMIT 0"

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return value.Schema{}, a.classify(ctx, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return value.Schema{}, a.classify(ctx, err)
	}

	cols := make([]value.Column, len(types))
	for i, ct := range types {
		cols[i] = value.Column{Name: ct.Name(), Type: typeFromDatabase(ct.DatabaseTypeName())}
	}
	schema := value.NewSchema(cols...)

	a.mu.Lock()
	a.schemas[base] = schema
	a.mu.Unlock()
	return schema, nil
}

// Fetch runs the compiled request and converts driver values.
func (a *Adapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	schema, err := a.Schema(ctx, req.Base)
	if err != nil {
		return nil, err
	}
	if err := source.CheckColumns(a.name, schema, req.Columns); err != nil {
		return nil, err
	}
	resolved, err := a.resolveBase(req.Base)
	if err != nil {
		return nil, err
	}

	compiler := querysql.NewSQLCompiler(a.dialect, schema)
	q, err := compiler.Compile(resolved, req.Columns, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("compile fetch for %q: %w", a.name, err)
	}

	start := time.Now()
	rows, err := a.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, a.classify(ctx, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, a.classify(ctx, err)
	}
	declared := make([]value.Type, len(names))
	for i, n := range names {
		if idx, err := schema.Index("", n); err == nil {
			declared[i] = schema.Columns[idx].Type
		}
	}

	var out []source.Row
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, a.classify(ctx, err)
		}

		row := make(source.Row, len(names))
		for i, n := range names {
			v, err := fromDriver(raw[i], declared[i])
			if err != nil {
				return nil, source.NewSchemaMismatch(a.name, "column %q: %v", n, err)
			}
			row[i] = source.Field{Name: n, Value: v}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, a.classify(ctx, err)
	}

	pushed := ""
	if q.Pushed != nil {
		pushed = q.Pushed.String()
	}
	a.logger.Debug("sql fetch",
		"source", a.name,
		"base", req.Base,
		"rows", len(out),
		"pushed", pushed,
		"duration", time.Since(start))
	return out, nil
}

// classify maps driver errors to the source error taxonomy. Context
// errors pass through unchanged so cancellation stays recognizable.
func (a *Adapter) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrNoSuchTable, mysqlErrUnknownColumn:
			return &source.Error{Code: source.ErrCodeSchemaMismatch, Source: a.name, Message: mysqlErr.Message, Err: err}
		}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrError {
		msg := sqliteErr.Error()
		if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
			return &source.Error{Code: source.ErrCodeSchemaMismatch, Source: a.name, Message: msg, Err: err}
		}
	}

	return source.NewUnavailable(a.name, err)
}

// typeFromDatabase maps a driver-reported type name to a column type.
// Unknown or empty names (SQLite expressions) are TypeAny.
func typeFromDatabase(name string) value.Type {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "UNSIGNED ")

	switch name {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "INT2", "INT8", "YEAR":
		return value.TypeInt
	case "REAL", "DOUBLE", "FLOAT", "DECIMAL", "NUMERIC", "MONEY":
		return value.TypeFloat
	case "TEXT", "VARCHAR", "CHAR", "NVARCHAR", "NCHAR", "NTEXT", "CLOB", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM":
		return value.TypeString
	case "DATE", "DATETIME", "TIMESTAMP":
		return value.TypeDate
	case "BOOLEAN", "BOOL", "BIT":
		return value.TypeBool
	case "JSON":
		return value.TypeObject
	}
	return value.TypeAny
}

// fromDriver converts a scanned driver value, honoring the declared type
// where drivers use a different representation (SQLite booleans are ints).
func fromDriver(raw any, declared value.Type) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Null{}, nil
	case int64:
		if declared == value.TypeBool {
			return value.Bool(v != 0), nil
		}
		return value.Int(v), nil
	case float64:
		return value.Float(v), nil
	case bool:
		return value.Bool(v), nil
	case time.Time:
		return value.NewDate(v), nil
	case []byte:
		if declared == value.TypeObject {
			return value.UnmarshalJSON(v)
		}
		return value.String(string(v)), nil
	case string:
		return value.String(v), nil
	default:
		return value.FromGo(v)
	}
}
