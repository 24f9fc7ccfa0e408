package oluacle

import (
	"bytes"
	"encoding/binary"
	"math"
	"runtime"

	"github.com/oluacle/oluacle/oci"
)

const (
	floatBufferSize  = 8
	dateBufferSize   = 32
	opaqueBufferSize = 4000
)

// fetchCell owns the decode buffer of one result column.
type fetchCell struct {
	name     string
	declared oci.DataType
	dtype    oci.DataType
	size     uint16
	buf      []byte
	ind      *int16
	rlen     *uint16
	handle   oci.Handle
	discard  bool
}

// coerce maps a declared column type onto the type and size it is defined
// with. NUMBER has no host form of its own and is fetched as a double; DATE
// is fetched as text rendered with the session date format.
//
// Anything else (LOBs, timestamps, RAW) would need a descriptor or locator
// to be defined natively. Those columns are defined as text so the fetch
// still has somewhere to write, and ok is false: the value is thrown away
// and reads back as Nothing.
func coerce(dt oci.DataType, size uint16) (_ oci.DataType, _ uint16, ok bool) {
	switch dt {
	case oci.SQLT_NUM, oci.SQLT_IBDOUBLE, oci.SQLT_IBFLOAT:
		return oci.SQLT_FLT, floatBufferSize, true
	case oci.SQLT_DAT:
		return oci.SQLT_STR, dateBufferSize, true
	case oci.SQLT_CHR, oci.SQLT_STR, oci.SQLT_VCS, oci.SQLT_AFC:
		return oci.SQLT_STR, size, true
	default:
		return oci.SQLT_STR, max(size, opaqueBufferSize), false
	}
}

func (c *fetchCell) decode() Value {
	if *c.ind == oci.OCI_IND_NULL {
		return Null
	}
	if c.discard {
		return Value{}
	}
	switch c.dtype {
	case oci.SQLT_STR, oci.SQLT_CHR, oci.SQLT_VCS, oci.SQLT_AFC:
		b := c.buf[:min(int(*c.rlen), len(c.buf))]
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		return StringValue(string(b))
	case oci.SQLT_INT:
		switch c.size {
		case 1:
			return IntegerValue(int64(int8(c.buf[0])))
		case 2:
			return IntegerValue(int64(int16(binary.NativeEndian.Uint16(c.buf))))
		case 4:
			return IntegerValue(int64(int32(binary.NativeEndian.Uint32(c.buf))))
		case 8:
			return IntegerValue(int64(binary.NativeEndian.Uint64(c.buf)))
		}
	case oci.SQLT_FLT:
		switch c.size {
		case 4:
			return FloatValue(float64(math.Float32frombits(binary.NativeEndian.Uint32(c.buf))))
		case 8:
			return FloatValue(math.Float64frombits(binary.NativeEndian.Uint64(c.buf)))
		}
	}
	return Value{}
}

// defineBuf is the part of buf registered with the native library. Strings
// get the extra terminator byte; fixed-width types get exactly their size.
func (c *fetchCell) defineBuf() []byte {
	if c.dtype == oci.SQLT_STR {
		return c.buf
	}
	return c.buf[:c.size]
}

type fetchChain struct {
	cells  []*fetchCell
	pinner runtime.Pinner
}

func (c *fetchChain) release() {
	c.pinner.Unpin()
	c.cells = nil
}

func (c *fetchChain) columns() []string {
	names := make([]string, len(c.cells))
	for i, cell := range c.cells {
		names[i] = cell.name
	}
	return names
}

func (c *fetchChain) declared() []oci.DataType {
	types := make([]oci.DataType, len(c.cells))
	for i, cell := range c.cells {
		types[i] = cell.declared
	}
	return types
}

func (c *fetchChain) row(null any) *Row {
	values := make([]Value, len(c.cells))
	for i, cell := range c.cells {
		values[i] = cell.decode()
	}
	return &Row{columns: c.columns(), values: values, null: null}
}

// describe reads the select-list item at pos. ok is false past the last column.
func (s *Statement) describe(pos uint32) (cell *fetchCell, ok bool, err error) {
	api := s.conn.api
	param, st := api.ParamGet(s.stmt, s.errh, pos)
	if st == oci.OCI_NO_DATA {
		return nil, false, nil
	}
	if err := translate("describe", api, s.errh, st); err != nil {
		if ORACode(err) == oci.ORA_END_OF_COLUMNS {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer api.DescriptorFree(param, oci.OCI_DTYPE_PARAM)

	size, st := api.ColumnSize(param, s.errh)
	if err := translate("describe", api, s.errh, st); err != nil {
		return nil, false, err
	}
	declared, st := api.ColumnType(param, s.errh)
	if err := translate("describe", api, s.errh, st); err != nil {
		return nil, false, err
	}
	name, st := api.ColumnName(param, s.errh)
	if err := translate("describe", api, s.errh, st); err != nil {
		return nil, false, err
	}
	dtype, size, decodable := coerce(declared, size)
	if !decodable {
		s.entry().WithField("column", name).WithField("type", declared).Debug("column has no decoder")
	}
	return &fetchCell{
		name:     name,
		declared: declared,
		dtype:    dtype,
		size:     size,
		buf:      make([]byte, int(size)+1),
		ind:      new(int16),
		rlen:     new(uint16),
		discard:  !decodable,
	}, true, nil
}

// buildFetchChain walks the result schema of the executed statement, defines
// one buffer per column and installs the new chain in place of the old one.
// The old chain describes the previous execution; it is released whether or
// not the new one could be built.
func (s *Statement) buildFetchChain() error {
	if s.fetch != nil {
		s.fetch.release()
		s.fetch = nil
	}
	api := s.conn.api
	chain := &fetchChain{}
	for pos := uint32(1); ; pos++ {
		cell, ok, err := s.describe(pos)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		chain.cells = append(chain.cells, cell)
	}
	for i, cell := range chain.cells {
		chain.pinner.Pin(&cell.buf[0])
		chain.pinner.Pin(cell.ind)
		chain.pinner.Pin(cell.rlen)
		h, st := api.DefineByPos(s.stmt, s.errh, uint32(i+1), cell.defineBuf(), cell.dtype, cell.ind, cell.rlen)
		if err := translate("define", api, s.errh, st); err != nil {
			chain.release()
			return err
		}
		cell.handle = h
	}
	s.fetch = chain
	return nil
}
