package oluacle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oluacle/oluacle/oci"
)

// DriverName is the name the database/sql driver registers under.
const DriverName = "oluacle"

// define all package level errors here
var (
	ErrRowsClosed           = errors.New("oluacle: rows closed")
	ErrTxDone               = errors.New("oluacle: transaction done")
	ErrIsolationUnsupported = errors.New("oluacle: isolation levels are not supported")
)

// define all package level structs here

type oluacleDriver struct{}

type dbConnection struct {
	conn *Connection
}

type dbStatement struct {
	conn   *dbConnection
	sql    string
	closed bool
}

type dbRows struct {
	stmt      *Statement
	columns   []string
	decltypes []oci.DataType
	// parseDates is set when DATE text is in DateLayout
	parseDates bool
	closed     bool
}

type dbResult struct {
	rowsAffected int64
}

type dbTx struct {
	conn *dbConnection
	done bool
}

// register driver
func init() {
	sql.Register(DriverName, &oluacleDriver{})
	// Oracle takes :name placeholders even for positional parameters
	sqlx.BindDriver(DriverName, sqlx.NAMED)
}

// Implement sql.Driver methods
func (d *oluacleDriver) Open(dsn string) (driver.Conn, error) {
	c, err := NewConnector(nil, dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

func (d *oluacleDriver) OpenConnector(dsn string) (driver.Connector, error) {
	return NewConnector(nil, dsn)
}

var (
	_ driver.Driver        = (*oluacleDriver)(nil)
	_ driver.DriverContext = (*oluacleDriver)(nil)
)

// --- Connector Pattern ---

// Connector opens connections for database/sql with a fixed environment and
// options.
type Connector struct {
	env      *Environment
	user     string
	password string
	database string
	opts     []Option
}

// NewConnector parses dsn, which has the form
//
//	user/password@database?date_format=<fmt>&logon_warnings=tolerate
//
// The @database part and the query are optional. logon_warnings=tolerate
// keeps sessions whose logon returned a warning (WithLogonWarningsTolerated). A nil env means
// DefaultEnvironment. opts are applied after the DSN settings.
func NewConnector(env *Environment, dsn string, opts ...Option) (*Connector, error) {
	c, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c.env = env
	c.opts = append(c.opts, opts...)
	return c, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	conn, err := Connect(c.env, c.user, c.password, c.database, c.opts...)
	if err != nil {
		return nil, err
	}
	return &dbConnection{conn: conn}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &oluacleDriver{}
}

// Ensure Connector implements driver.Connector
var _ driver.Connector = (*Connector)(nil)

// --- driver.Conn and friends ---

// Ensure dbConnection implements required interfaces.
var (
	_ driver.Conn               = (*dbConnection)(nil)
	_ driver.ConnPrepareContext = (*dbConnection)(nil)
	_ driver.ExecerContext      = (*dbConnection)(nil)
	_ driver.QueryerContext     = (*dbConnection)(nil)
	_ driver.Pinger             = (*dbConnection)(nil)
	_ driver.ConnBeginTx        = (*dbConnection)(nil)
	_ driver.NamedValueChecker  = (*dbConnection)(nil)
)

func (c *dbConnection) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext only records the query; every Exec/Query prepares a fresh
// native statement, since execution rebuilds the fetch chain anyway.
func (c *dbConnection) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := c.checkOpen("prepare"); err != nil {
		return nil, err
	}
	return &dbStatement{conn: c, sql: query}, nil
}

func (c *dbConnection) Close() error {
	return c.conn.Close()
}

func (c *dbConnection) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx returns a transaction over the session's implicit transaction;
// Oracle starts one with the first DML.
func (c *dbConnection) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := c.checkOpen("begin"); err != nil {
		return nil, err
	}
	if sql.IsolationLevel(opts.Isolation) != sql.LevelDefault {
		return nil, ErrIsolationUnsupported
	}
	return &dbTx{conn: c}, nil
}

func (c *dbConnection) Ping(ctx context.Context) error {
	rows, err := c.QueryContext(ctx, "SELECT 1 FROM DUAL", nil)
	if err != nil {
		return err
	}
	return rows.Close()
}

// CheckNamedValue keeps booleans out of the NULL rule: false would otherwise
// bind as NULL.
func (c *dbConnection) CheckNamedValue(nv *driver.NamedValue) error {
	if b, ok := nv.Value.(bool); ok {
		if b {
			nv.Value = int64(1)
		} else {
			nv.Value = int64(0)
		}
		return nil
	}
	return driver.ErrSkip
}

func (c *dbConnection) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	stmt, res, err := c.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if stmt != nil {
		// a query run through Exec: drop the result set
		if err := stmt.Close(); err != nil {
			return nil, err
		}
		return &dbResult{}, nil
	}
	return &dbResult{rowsAffected: res.RowsAffected()}, nil
}

func (c *dbConnection) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	stmt, _, err := c.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return &dbRows{closed: true}, nil
	}
	// Return rows wrapper; do not fetch yet, leave cursor before first row
	return &dbRows{
		stmt:       stmt,
		columns:    stmt.Columns(),
		decltypes:  stmt.DeclaredTypes(),
		parseDates: c.conn.dateFormat == DefaultDateFormat,
	}, nil
}

// run prepares, binds and executes query. For a query the statement is
// returned open; otherwise it is finalized and only the result is returned.
func (c *dbConnection) run(ctx context.Context, query string, args []driver.NamedValue) (*Statement, *Result, error) {
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, nil, err
	}
	if len(args) > 0 {
		if err := stmt.Bind(bindArgs(args)...); err != nil {
			return nil, nil, errors.Join(err, stmt.Close())
		}
	}
	if ctx.Err() != nil {
		return nil, nil, errors.Join(ctx.Err(), stmt.Close())
	}
	res, err := stmt.Execute()
	if err != nil {
		return nil, nil, errors.Join(err, stmt.Close())
	}
	if res.IsQuery() {
		return stmt, res, nil
	}
	if err := stmt.Close(); err != nil {
		return nil, nil, err
	}
	return nil, res, nil
}

func (c *dbConnection) checkOpen(op string) error {
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	return c.conn.checkOpen(op)
}

// --- driver.Stmt and friends ---

// Ensure dbStatement implements required interfaces.
var (
	_ driver.Stmt             = (*dbStatement)(nil)
	_ driver.StmtExecContext  = (*dbStatement)(nil)
	_ driver.StmtQueryContext = (*dbStatement)(nil)
)

func (s *dbStatement) Close() error {
	s.closed = true
	return nil
}

// NumInput returns -1: placeholder counting is left to the server.
func (s *dbStatement) NumInput() int {
	return -1
}

func (s *dbStatement) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *dbStatement) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, misuse("exec", ErrStmtFinalized)
	}
	return s.conn.ExecContext(ctx, s.sql, args)
}

func (s *dbStatement) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *dbStatement) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, misuse("query", ErrStmtFinalized)
	}
	return s.conn.QueryContext(ctx, s.sql, args)
}

// --- driver.Rows ---

// Ensure dbRows implements the required interface.
var (
	_ driver.Rows                           = (*dbRows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*dbRows)(nil)
)

func (r *dbRows) Columns() []string {
	return r.columns
}

func (r *dbRows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.decltypes) {
		return ""
	}
	return databaseTypeName(r.decltypes[index])
}

func (r *dbRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stmt.Close()
}

func (r *dbRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	row, err := r.stmt.Fetch()
	if errors.Is(err, io.EOF) {
		r.closed = true
		return io.EOF
	}
	if err != nil {
		return err
	}
	if len(dest) != row.Len() {
		return fmt.Errorf("oluacle: expected %d dests, got %d", row.Len(), len(dest))
	}
	for i, v := range row.Values() {
		// NULL and undecodable columns both surface as nil
		dest[i] = v.Any()
		if f, ok := dest[i].(float64); ok && i < len(r.decltypes) && isNumber(r.decltypes[i]) {
			if n, ok := integral(f); ok {
				dest[i] = n
			}
		}
		if text, ok := v.Text(); ok && r.parseDates && i < len(r.decltypes) && r.decltypes[i] == oci.SQLT_DAT {
			if t, err := time.ParseInLocation(DateLayout, text, time.UTC); err == nil {
				dest[i] = t
			}
		}
	}
	return nil
}

// --- driver.Result ---

var _ driver.Result = (*dbResult)(nil)

// LastInsertId is always 0: Oracle has no session last-insert id.
func (r *dbResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (r *dbResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- driver.Tx ---

var _ driver.Tx = (*dbTx)(nil)

func (tx *dbTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.conn.conn.Commit()
}

func (tx *dbTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.conn.conn.Rollback()
}

// Helpers

// parseDSN supports format:
// user/password[@database][?date_format=<fmt>&logon_warnings=error|tolerate]
func parseDSN(dsn string) (*Connector, error) {
	c := &Connector{}
	rest := dsn
	if qMark := strings.IndexByte(dsn, '?'); qMark >= 0 {
		rest = dsn[:qMark]
		vals, err := url.ParseQuery(dsn[qMark+1:])
		if err != nil {
			return nil, fmt.Errorf("oluacle: invalid DSN query: %w", err)
		}
		if vals.Has("date_format") {
			c.opts = append(c.opts, WithDateFormat(vals.Get("date_format")))
		}
		switch w := vals.Get("logon_warnings"); w {
		case "", "error":
		case "tolerate":
			c.opts = append(c.opts, WithLogonWarningsTolerated())
		default:
			return nil, fmt.Errorf("oluacle: invalid DSN logon_warnings %q: want error or tolerate", w)
		}
	}
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		c.database = rest[at+1:]
		rest = rest[:at]
	}
	user, password, ok := strings.Cut(rest, "/")
	if !ok || user == "" {
		return nil, fmt.Errorf("oluacle: invalid DSN %q: want user/password[@database]", dsn)
	}
	c.user, c.password = user, password
	return c, nil
}

func isNumber(t oci.DataType) bool {
	return t == oci.SQLT_NUM || t == oci.SQLT_VNU
}

// integral reports f as an int64 when it has no fractional part and fits.
// database/sql cannot scan a float64 into a bool, and NUMBER(1) is how
// booleans are stored.
func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// databaseTypeName names a described column type. Describe reports the
// internal datetime codes (180, 181, 231); the external SQLT_TIMESTAMP
// family is accepted too.
func databaseTypeName(t oci.DataType) string {
	switch t {
	case oci.SQLT_CHR, oci.SQLT_VCS, oci.SQLT_STR:
		return "VARCHAR2"
	case oci.SQLT_AFC:
		return "CHAR"
	case oci.SQLT_NUM, oci.SQLT_VNU:
		return "NUMBER"
	case oci.SQLT_INT:
		return "INTEGER"
	case oci.SQLT_FLT:
		return "FLOAT"
	case oci.SQLT_IBFLOAT, oci.SQLT_BFLOAT:
		return "BINARY_FLOAT"
	case oci.SQLT_IBDOUBLE, oci.SQLT_BDOUBLE:
		return "BINARY_DOUBLE"
	case oci.SQLT_DAT, oci.SQLT_DATE, oci.SQLT_ODT:
		return "DATE"
	case oci.SQLT_TIMESTAMP, oci.SQLT_TIMESTAMP_INT:
		return "TIMESTAMP"
	case oci.SQLT_TIMESTAMP_TZ, oci.SQLT_TIMESTAMP_TZ_INT:
		return "TIMESTAMP WITH TIME ZONE"
	case oci.SQLT_TIMESTAMP_LTZ, oci.SQLT_TIMESTAMP_LTZ_INT:
		return "TIMESTAMP WITH LOCAL TIME ZONE"
	case oci.SQLT_LNG:
		return "LONG"
	case oci.SQLT_CLOB:
		return "CLOB"
	case oci.SQLT_BLOB:
		return "BLOB"
	default:
		return ""
	}
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// bindArgs turns driver arguments into Bind parameters: named values become
// sql.NamedArg, the rest bind by position.
func bindArgs(args []driver.NamedValue) []any {
	params := make([]any, len(args))
	for i, nv := range args {
		if nv.Name != "" {
			params[i] = sql.NamedArg{Name: nv.Name, Value: nv.Value}
		} else {
			params[i] = nv.Value
		}
	}
	return params
}
