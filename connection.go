package oluacle

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oluacle/oluacle/oci"
)

// DefaultDateFormat is the session NLS_DATE_FORMAT set at connect time, so
// DATE columns fetched as text have a stable shape.
const DefaultDateFormat = "YYYY/MM/DD HH24:MI:SS"

// Option configures a Connection.
type Option func(*Connection)

// WithNullValue sets the value SQL NULL reads back as. The default is false.
func WithNullValue(v any) Option {
	return func(c *Connection) {
		c.null = v
	}
}

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Connection) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLogonWarningsTolerated keeps a session whose logon returned
// OCI_SUCCESS_WITH_INFO (for example ORA-28002, password about to expire).
// The warning is logged instead of being returned from Connect.
func WithLogonWarningsTolerated() Option {
	return func(c *Connection) {
		c.tolerateWarnings = true
	}
}

// WithDateFormat sets NLS_DATE_FORMAT for the session. An empty format leaves
// the session default alone.
func WithDateFormat(format string) Option {
	return func(c *Connection) {
		c.dateFormat = format
	}
}

// Connection is an open session. All native calls made through a connection
// or its statements are serialized by the connection's lock.
type Connection struct {
	env        *Environment
	api        oci.API
	id         uuid.UUID
	log        logrus.FieldLogger
	null       any
	dateFormat string

	tolerateWarnings bool

	mu     sync.Mutex
	svc    oci.Handle
	errh   oci.Handle
	closed bool
	nextID uint64
	stmts  map[uint64]weak.Pointer[Statement]
}

// Connect logs on to database as user. A nil env means DefaultEnvironment.
// A logon warning is returned as a KindWarning error and the session is
// logged off, unless WithLogonWarningsTolerated is given.
func Connect(env *Environment, user, password, database string, opts ...Option) (*Connection, error) {
	if env == nil {
		var err error
		if env, err = DefaultEnvironment(); err != nil {
			return nil, err
		}
	}
	c := &Connection{
		env:        env,
		api:        env.API(),
		id:         uuid.New(),
		log:        logrus.StandardLogger(),
		null:       false,
		dateFormat: DefaultDateFormat,
		stmts:      make(map[uint64]weak.Pointer[Statement]),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("conn", c.id.String())

	envh, err := env.Handle()
	if err != nil {
		return nil, err
	}
	errh, st := c.api.HandleAlloc(envh, oci.OCI_HTYPE_ERROR)
	if st != oci.OCI_SUCCESS || errh == 0 {
		return nil, allocError("connect", "error handle", st)
	}
	svc, st := c.api.Logon(envh, errh, user, password, database)
	if err := translate("connect", c.api, errh, st); err != nil {
		if st == oci.OCI_SUCCESS_WITH_INFO && c.tolerateWarnings {
			// the session exists (e.g. password about to expire)
			c.log.WithError(err).Warn("logon warning")
		} else {
			if st == oci.OCI_SUCCESS_WITH_INFO {
				c.api.Logoff(svc, errh)
			}
			c.api.HandleFree(errh, oci.OCI_HTYPE_ERROR)
			return nil, err
		}
	}
	c.svc, c.errh = svc, errh
	runtime.SetFinalizer(c, (*Connection).gc)
	c.log.WithField("database", database).Debug("connected")

	if c.dateFormat != "" {
		sql := "ALTER SESSION SET NLS_DATE_FORMAT = '" + strings.ReplaceAll(c.dateFormat, "'", "''") + "'"
		if _, err := c.Exec(sql); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}
	return c, nil
}

// ID identifies the connection in log records.
func (c *Connection) ID() uuid.UUID { return c.id }

// NullValue returns the value SQL NULL reads back as.
func (c *Connection) NullValue() any { return c.null }

// Environment returns the environment the connection was opened in.
func (c *Connection) Environment() *Environment { return c.env }

func (c *Connection) checkOpen(op string) error {
	if c.closed {
		return misuse(op, ErrConnClosed)
	}
	return nil
}

// Prepare compiles sql into a new statement with row prefetching disabled.
func (c *Connection) Prepare(sql string) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen("prepare"); err != nil {
		return nil, err
	}
	envh, err := c.env.Handle()
	if err != nil {
		return nil, err
	}
	errh, st := c.api.HandleAlloc(envh, oci.OCI_HTYPE_ERROR)
	if st != oci.OCI_SUCCESS || errh == 0 {
		return nil, allocError("prepare", "error handle", st)
	}
	stmt, st := c.api.HandleAlloc(envh, oci.OCI_HTYPE_STMT)
	if st != oci.OCI_SUCCESS || stmt == 0 {
		c.api.HandleFree(errh, oci.OCI_HTYPE_ERROR)
		return nil, allocError("prepare", "statement handle", st)
	}
	c.nextID++
	s := &Statement{conn: c, id: c.nextID, sql: sql, stmt: stmt, errh: errh}
	c.stmts[s.id] = weak.Make(s)

	if err := translate("prepare", c.api, errh, c.api.SetPrefetchRows(stmt, errh, 0)); err != nil {
		return nil, errors.Join(err, s.finalize())
	}
	if err := translate("prepare", c.api, errh, c.api.StmtPrepare(stmt, errh, sql)); err != nil {
		return nil, errors.Join(err, s.finalize())
	}
	runtime.SetFinalizer(s, (*Statement).gc)
	c.log.WithField("sql", sql).Debug("prepared")
	return s, nil
}

// forget drops a finalized statement from the live set. The caller holds c.mu.
func (c *Connection) forget(s *Statement) {
	delete(c.stmts, s.id)
}

// Exec prepares, binds and executes sql in one call. Non-query statements
// are finalized before returning; for queries the caller fetches from
// Result.Statement().
func (c *Connection) Exec(sql string, params ...any) (*Result, error) {
	s, err := c.Prepare(sql)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := s.Bind(params...); err != nil {
			return nil, errors.Join(err, s.Close())
		}
	}
	res, err := s.Execute()
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if !res.IsQuery() {
		if err := s.Close(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *Connection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen("commit"); err != nil {
		return err
	}
	return translate("commit", c.api, c.errh, c.api.TransCommit(c.svc, c.errh))
}

func (c *Connection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen("rollback"); err != nil {
		return err
	}
	return translate("rollback", c.api, c.errh, c.api.TransRollback(c.svc, c.errh))
}

// Close finalizes every live statement, rolls back, logs off and frees the
// error handle. The connection is closed afterwards even if a step failed;
// the failures are joined into the returned error. Calling Close again is a
// no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

// Disconnect is an alias of Close.
func (c *Connection) Disconnect() error { return c.Close() }

// Logoff is an alias of Close.
func (c *Connection) Logoff() error { return c.Close() }

func (c *Connection) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	runtime.SetFinalizer(c, nil)

	var errs []error
	for id, wp := range c.stmts {
		if s := wp.Value(); s != nil {
			errs = append(errs, s.finalize())
		}
		delete(c.stmts, id)
	}
	errs = append(errs,
		translate("close", c.api, c.errh, c.api.TransRollback(c.svc, c.errh)),
		translate("close", c.api, c.errh, c.api.Logoff(c.svc, c.errh)),
	)
	if st := c.api.HandleFree(c.errh, oci.OCI_HTYPE_ERROR); st != oci.OCI_SUCCESS {
		errs = append(errs, translate("close", c.api, 0, st))
	}
	c.svc, c.errh = 0, 0

	err := errors.Join(errs...)
	if err != nil {
		c.log.WithError(err).Warn("close")
	}
	c.log.Debug("closed")
	return err
}

// gc is the finalizer safety net for connections that were never closed.
func (c *Connection) gc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.log.Warn("connection was not closed; closing")
	_ = c.close()
}
