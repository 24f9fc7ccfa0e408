package oluacle

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/oluacle/oluacle/oci"
)

// Statement is a prepared SQL command. It belongs to the connection that
// prepared it and shares that connection's lock, so a statement and its
// connection are never inside the native library at the same time.
//
// The sequence is Bind (optional, repeatable), Execute, then Fetch until
// io.EOF. Reaching the end of the result set finalizes the statement.
type Statement struct {
	conn *Connection
	id   uint64
	sql  string

	stmt oci.Handle
	errh oci.Handle

	binds   []*bindChain
	bindErr error
	fetch   *fetchChain

	open   bool // a query has been executed and not yet exhausted
	closed bool
}

// Result is what Execute returns: a row source for queries, an affected-row
// count for everything else.
type Result struct {
	stmt         *Statement
	rowsAffected int64
}

// IsQuery reports whether the executed statement produced a result set.
func (r *Result) IsQuery() bool { return r.stmt != nil }

// Statement returns the statement to fetch from, nil for non-queries.
func (r *Result) Statement() *Statement { return r.stmt }

// RowsAffected returns the native row count of a non-query statement.
func (r *Result) RowsAffected() int64 { return r.rowsAffected }

// Rows iterates the result set; it yields nothing for non-queries.
func (r *Result) Rows() iter.Seq2[*Row, error] {
	if r.stmt == nil {
		return func(func(*Row, error) bool) {}
	}
	return r.stmt.All()
}

// SQL returns the text the statement was prepared from.
func (s *Statement) SQL() string { return s.sql }

func (s *Statement) entry() logrus.FieldLogger {
	return s.conn.log.WithField("sql", s.sql)
}

// Execute runs the statement. Queries run with zero iterations and get a
// freshly described fetch chain; other statements run once and report the
// affected-row count.
func (s *Statement) Execute() (*Result, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return nil, misuse("execute", ErrStmtFinalized)
	}
	if c.closed {
		return nil, misuse("execute", ErrConnClosed)
	}
	if s.bindErr != nil {
		return nil, &Error{Kind: KindMisuse, Op: "execute", Err: fmt.Errorf("%w: %w", ErrBindFailed, s.bindErr)}
	}
	kind, st := c.api.StmtType(s.stmt, s.errh)
	if err := translate("execute", c.api, s.errh, st); err != nil {
		return nil, err
	}
	iters := uint32(1)
	if kind == oci.OCI_STMT_SELECT {
		iters = 0
	}
	s.open = false
	if err := translate("execute", c.api, s.errh, c.api.StmtExecute(c.svc, s.stmt, s.errh, iters)); err != nil {
		return nil, err
	}
	s.entry().WithField("type", kind).Debug("executed")
	if kind == oci.OCI_STMT_SELECT {
		if err := s.buildFetchChain(); err != nil {
			return nil, err
		}
		s.open = true
		return &Result{stmt: s}, nil
	}
	rows, st := c.api.RowCount(s.stmt, s.errh)
	if err := translate("execute", c.api, s.errh, st); err != nil {
		return nil, err
	}
	return &Result{rowsAffected: int64(rows)}, nil
}

// Columns returns the column names of the current result set.
func (s *Statement) Columns() []string {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.fetch == nil {
		return nil
	}
	return s.fetch.columns()
}

// DeclaredTypes returns the column types of the current result set as the
// server described them, before coercion.
func (s *Statement) DeclaredTypes() []oci.DataType {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.fetch == nil {
		return nil
	}
	return s.fetch.declared()
}

// Fetch advances one row. At the end of the result set the statement is
// finalized and io.EOF is returned; any later call is a misuse error.
func (s *Statement) Fetch() (*Row, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return nil, misuse("fetch", ErrStmtFinalized)
	}
	if !s.open {
		return nil, misuse("fetch", ErrNotExecuted)
	}
	st := c.api.StmtFetch(s.stmt, s.errh)
	if st == oci.OCI_NO_DATA {
		s.entry().Debug("end of data")
		if err := s.finalize(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if err := translate("fetch", c.api, s.errh, st); err != nil {
		return nil, err
	}
	return s.fetch.row(c.null), nil
}

// All ranges over the remaining rows. Iteration stops after the first error.
func (s *Statement) All() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for {
			row, err := s.Fetch()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Close finalizes the statement. It is safe to call more than once.
func (s *Statement) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.finalize()
}

// finalize frees the native handles, then both buffer chains. The caller
// holds the connection lock.
func (s *Statement) finalize() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.open = false
	runtime.SetFinalizer(s, nil)

	api := s.conn.api
	var errs []error
	if st := api.HandleFree(s.stmt, oci.OCI_HTYPE_STMT); st != oci.OCI_SUCCESS {
		errs = append(errs, translate("finalize", api, 0, st))
	}
	if st := api.HandleFree(s.errh, oci.OCI_HTYPE_ERROR); st != oci.OCI_SUCCESS {
		errs = append(errs, translate("finalize", api, 0, st))
	}
	s.stmt, s.errh = 0, 0

	for _, chain := range s.binds {
		chain.release()
	}
	s.binds = nil
	if s.fetch != nil {
		s.fetch.release()
		s.fetch = nil
	}
	s.conn.forget(s)
	return errors.Join(errs...)
}

// gc is the finalizer safety net for statements that were never closed.
func (s *Statement) gc() {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return
	}
	s.entry().Warn("statement was not closed; finalizing")
	if err := s.finalize(); err != nil {
		s.entry().WithError(err).Warn("finalize failed")
	}
}
