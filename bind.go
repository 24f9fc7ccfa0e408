package oluacle

import (
	"database/sql"
	"encoding/binary"
	"math"
	"runtime"
	"slices"
	"strings"

	"github.com/oluacle/oluacle/oci"
)

// bindCell owns the storage of one bound parameter. buf and ind are handed to
// the native library and stay pinned until the owning chain is released.
type bindCell struct {
	name   string // ":name", empty for positional binds
	pos    uint32
	value  Value
	dtype  oci.DataType
	buf    []byte
	ind    *int16
	handle oci.Handle
}

func newBindCell(name string, pos uint32, v Value) *bindCell {
	c := &bindCell{pos: pos, value: v, ind: new(int16)}
	if name != "" {
		c.name = paramName(name)
	}
	switch v.kind {
	case ValueInteger:
		c.dtype = oci.SQLT_INT
		c.buf = make([]byte, 8)
		binary.NativeEndian.PutUint64(c.buf, uint64(v.i))
	case ValueFloat:
		c.dtype = oci.SQLT_FLT
		c.buf = make([]byte, 8)
		binary.NativeEndian.PutUint64(c.buf, math.Float64bits(v.f))
	case ValueString:
		c.dtype = oci.SQLT_STR
		c.buf = make([]byte, len(v.s)+1)
		copy(c.buf, v.s)
	default:
		// NULL still needs a buffer address; one byte, flagged by the indicator
		c.dtype = oci.SQLT_STR
		c.buf = make([]byte, 1)
		*c.ind = oci.OCI_IND_NULL
	}
	return c
}

// paramName adds the placeholder marker when the caller left it out.
func paramName(name string) string {
	if strings.HasPrefix(name, ":") {
		return name
	}
	return ":" + name
}

type bindChain struct {
	cells  []*bindCell
	pinner runtime.Pinner
}

func (c *bindChain) add(cell *bindCell) {
	c.pinner.Pin(&cell.buf[0])
	c.pinner.Pin(cell.ind)
	c.cells = append(c.cells, cell)
}

func (c *bindChain) release() {
	c.pinner.Unpin()
	c.cells = nil
}

// bindCells turns Bind arguments into unregistered cells. A single
// map[string]any binds by name (in key order); sql.NamedArg binds by name;
// anything else binds by its 1-based position.
func bindCells(params []any) []*bindCell {
	if len(params) == 1 {
		if m, ok := params[0].(map[string]any); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			cells := make([]*bindCell, 0, len(keys))
			for _, k := range keys {
				cells = append(cells, newBindCell(k, 0, FromAny(m[k])))
			}
			return cells
		}
	}
	cells := make([]*bindCell, 0, len(params))
	for i, p := range params {
		if na, ok := p.(sql.NamedArg); ok {
			cells = append(cells, newBindCell(na.Name, 0, FromAny(na.Value)))
			continue
		}
		cells = append(cells, newBindCell("", uint32(i+1), FromAny(p)))
	}
	return cells
}

// Bind replaces the statement's parameter bindings. The whole chain is
// rebuilt; parameters not named in this call are not carried over.
//
// If a native bind fails, the cells registered so far stay alive with the
// statement (the native handle still points at them) and Execute refuses to
// run until a later Bind succeeds.
func (s *Statement) Bind(params ...any) error {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return misuse("bind", ErrStmtFinalized)
	}
	chain := &bindChain{}
	for _, cell := range bindCells(params) {
		chain.add(cell)
		var (
			h  oci.Handle
			st oci.Status
		)
		if cell.name != "" {
			h, st = c.api.BindByName(s.stmt, s.errh, cell.name, cell.buf, cell.dtype, cell.ind)
		} else {
			h, st = c.api.BindByPos(s.stmt, s.errh, cell.pos, cell.buf, cell.dtype, cell.ind)
		}
		if err := translate("bind", c.api, s.errh, st); err != nil {
			s.binds = append(s.binds, chain)
			s.bindErr = err
			c.log.WithError(err).WithField("sql", s.sql).Debug("bind failed")
			return err
		}
		cell.handle = h
	}
	for _, old := range s.binds {
		old.release()
	}
	s.binds = []*bindChain{chain}
	s.bindErr = nil
	return nil
}
