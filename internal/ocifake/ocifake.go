// Package ocifake is an in-memory oci.API used by tests. Statements are
// answered from scripts registered per SQL text, bind and define buffers are
// read and written the way the client library does it, and every handle is
// tracked so tests can assert that nothing leaks or is freed twice.
package ocifake

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oluacle/oluacle/oci"
)

// DateLayout is the text layout DATE values are rendered with when a column
// is defined as a string.
const DateLayout = "2006/01/02 15:04:05"

// Column describes one select-list item of a scripted query.
type Column struct {
	Name string
	Type oci.DataType
	Size uint16
}

// Script answers one SQL text.
type Script struct {
	// Kind overrides the statement type derived from the leading keyword.
	Kind    oci.StmtType
	Columns []Column
	Rows    [][]any
	// Query computes the rows from the bound values (keyed by upper-case
	// placeholder name without the colon) and takes precedence over Rows.
	Query        func(params map[string]any) [][]any
	RowsAffected uint64
	// Err makes execution fail with the given ORA code and message.
	ErrCode int32
	Err     string
}

type fault struct {
	status oci.Status
	code   int32
	msg    string
}

type bindSlot struct {
	buf []byte
	dty oci.DataType
	ind *int16
}

type defineSlot struct {
	buf  []byte
	dty  oci.DataType
	ind  *int16
	rlen *uint16
}

type stmtState struct {
	sql      string
	prepared bool
	script   *Script
	names    []string
	binds    map[string]bindSlot
	defines  map[uint32]defineSlot
	executed bool
	rows     [][]any
	cursor   int
	prefetch uint32
}

type diag struct {
	code int32
	msg  string
}

// API implements oci.API in memory.
type API struct {
	mu sync.Mutex

	next    oci.Handle
	live    map[oci.Handle]oci.HandleType
	stmts   map[oci.Handle]*stmtState
	params  map[oci.Handle]Column
	diags   map[oci.Handle]diag
	scripts map[string]*Script
	faults  map[string][]fault
	calls   []string

	// Users holds accepted credentials; when empty every logon succeeds.
	Users map[string]string

	DoubleFrees int
	Commits     int
	Rollbacks   int
	Executed    []string
}

var _ oci.API = (*API)(nil)

// New returns an empty fake.
func New() *API {
	return &API{
		next:    0x1000,
		live:    make(map[oci.Handle]oci.HandleType),
		stmts:   make(map[oci.Handle]*stmtState),
		params:  make(map[oci.Handle]Column),
		diags:   make(map[oci.Handle]diag),
		scripts: make(map[string]*Script),
		faults:  make(map[string][]fault),
	}
}

// Script registers the answer for sql.
func (f *API) Script(sql string, s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[normalize(sql)] = &s
}

// FailNext makes the next call of op (the oci.API method name) return
// status, recording code and msg on the error handle passed to it. For Logon,
// OCI_SUCCESS_WITH_INFO is returned alongside a working session.
func (f *API) FailNext(op string, status oci.Status, code int32, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], fault{status: status, code: code, msg: msg})
}

// Live reports the number of live handles of the given type.
func (f *API) Live(typ oci.HandleType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.live {
		if t == typ {
			n++
		}
	}
	return n
}

// Calls returns the names of the API methods invoked so far, in order.
func (f *API) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Count reports how many times op was invoked.
func (f *API) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Prefetch reports the prefetch row count set on a statement handle.
func (f *API) Prefetch(stmt oci.Handle) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.stmts[stmt]; ok {
		return st.prefetch
	}
	return 0
}

// helpers; all of them expect f.mu to be held

func (f *API) enter(op string, errh oci.Handle) (oci.Status, bool) {
	f.calls = append(f.calls, op)
	q := f.faults[op]
	if len(q) == 0 {
		return oci.OCI_SUCCESS, false
	}
	ft := q[0]
	f.faults[op] = q[1:]
	if errh != 0 {
		f.diags[errh] = diag{code: ft.code, msg: ft.msg}
	}
	return ft.status, true
}

func (f *API) alloc(typ oci.HandleType) oci.Handle {
	f.next += 0x10
	f.live[f.next] = typ
	return f.next
}

func (f *API) fail(errh oci.Handle, code int32, format string, args ...any) oci.Status {
	if errh != 0 {
		f.diags[errh] = diag{code: code, msg: fmt.Sprintf("ORA-%05d: %s", code, fmt.Sprintf(format, args...))}
	}
	return oci.OCI_ERROR
}

func (f *API) isLive(h oci.Handle, typ oci.HandleType) bool {
	t, ok := f.live[h]
	return ok && t == typ
}

func (f *API) stmt(h oci.Handle) (*stmtState, bool) {
	if !f.isLive(h, oci.OCI_HTYPE_STMT) {
		return nil, false
	}
	st, ok := f.stmts[h]
	return st, ok
}

var (
	placeholderRe = regexp.MustCompile(`:(\w+)`)
	literalRe     = regexp.MustCompile(`'[^']*'`)
)

func normalize(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func placeholders(sql string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(literalRe.ReplaceAllString(sql, "''"), -1) {
		name := strings.ToUpper(m[1])
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func kindOf(sql string) oci.StmtType {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return oci.OCI_STMT_UNKNOWN
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return oci.OCI_STMT_SELECT
	case "UPDATE":
		return oci.OCI_STMT_UPDATE
	case "DELETE":
		return oci.OCI_STMT_DELETE
	case "INSERT":
		return oci.OCI_STMT_INSERT
	case "CREATE":
		return oci.OCI_STMT_CREATE
	case "DROP":
		return oci.OCI_STMT_DROP
	case "ALTER":
		return oci.OCI_STMT_ALTER
	case "BEGIN":
		return oci.OCI_STMT_BEGIN
	case "DECLARE":
		return oci.OCI_STMT_DECLARE
	case "CALL":
		return oci.OCI_STMT_CALL
	case "MERGE":
		return oci.OCI_STMT_MERGE
	default:
		return oci.OCI_STMT_UNKNOWN
	}
}

// oci.API

func (f *API) EnvCreate() (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("EnvCreate", 0); failed {
		return 0, st
	}
	return f.alloc(oci.OCI_HTYPE_ENV), oci.OCI_SUCCESS
}

func (f *API) HandleAlloc(parent oci.Handle, typ oci.HandleType) (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("HandleAlloc", 0); failed {
		return 0, st
	}
	if !f.isLive(parent, oci.OCI_HTYPE_ENV) {
		return 0, oci.OCI_INVALID_HANDLE
	}
	h := f.alloc(typ)
	if typ == oci.OCI_HTYPE_STMT {
		f.stmts[h] = &stmtState{}
	}
	return h, oci.OCI_SUCCESS
}

func (f *API) HandleFree(h oci.Handle, typ oci.HandleType) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("HandleFree", 0); failed {
		return st
	}
	if !f.isLive(h, typ) {
		f.DoubleFrees++
		return oci.OCI_INVALID_HANDLE
	}
	delete(f.live, h)
	delete(f.stmts, h)
	delete(f.diags, h)
	return oci.OCI_SUCCESS
}

func (f *API) DescriptorFree(desc oci.Handle, typ oci.HandleType) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("DescriptorFree", 0); failed {
		return st
	}
	if !f.isLive(desc, typ) {
		f.DoubleFrees++
		return oci.OCI_INVALID_HANDLE
	}
	delete(f.live, desc)
	delete(f.params, desc)
	return oci.OCI_SUCCESS
}

func (f *API) Logon(env, errh oci.Handle, user, password, database string) (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, failed := f.enter("Logon", errh)
	if failed && st != oci.OCI_SUCCESS_WITH_INFO {
		return 0, st
	}
	if !f.isLive(env, oci.OCI_HTYPE_ENV) || !f.isLive(errh, oci.OCI_HTYPE_ERROR) {
		return 0, oci.OCI_INVALID_HANDLE
	}
	if len(f.Users) > 0 {
		if pw, ok := f.Users[user]; !ok || pw != password {
			return 0, f.fail(errh, 1017, "invalid username/password; logon denied")
		}
	}
	// a warning still opens the session
	return f.alloc(oci.OCI_HTYPE_SVCCTX), st
}

func (f *API) Logoff(svc, errh oci.Handle) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("Logoff", errh); failed {
		return st
	}
	if !f.isLive(svc, oci.OCI_HTYPE_SVCCTX) {
		f.DoubleFrees++
		return oci.OCI_INVALID_HANDLE
	}
	delete(f.live, svc)
	return oci.OCI_SUCCESS
}

func (f *API) TransCommit(svc, errh oci.Handle) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("TransCommit", errh); failed {
		return st
	}
	if !f.isLive(svc, oci.OCI_HTYPE_SVCCTX) {
		return oci.OCI_INVALID_HANDLE
	}
	f.Commits++
	return oci.OCI_SUCCESS
}

func (f *API) TransRollback(svc, errh oci.Handle) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("TransRollback", errh); failed {
		return st
	}
	if !f.isLive(svc, oci.OCI_HTYPE_SVCCTX) {
		return oci.OCI_INVALID_HANDLE
	}
	f.Rollbacks++
	return oci.OCI_SUCCESS
}

func (f *API) SetPrefetchRows(stmt, errh oci.Handle, rows uint32) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("SetPrefetchRows", errh); failed {
		return st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return oci.OCI_INVALID_HANDLE
	}
	st.prefetch = rows
	return oci.OCI_SUCCESS
}

func (f *API) StmtPrepare(stmt, errh oci.Handle, sql string) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("StmtPrepare", errh); failed {
		return st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return oci.OCI_INVALID_HANDLE
	}
	if strings.TrimSpace(sql) == "" {
		return f.fail(errh, 900, "invalid SQL statement")
	}
	st.sql = normalize(sql)
	st.prepared = true
	st.script = f.scripts[st.sql]
	st.names = placeholders(sql)
	st.binds = make(map[string]bindSlot)
	st.defines = make(map[uint32]defineSlot)
	return oci.OCI_SUCCESS
}

func (f *API) StmtType(stmt, errh oci.Handle) (oci.StmtType, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("StmtType", errh); failed {
		return 0, st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return 0, oci.OCI_INVALID_HANDLE
	}
	if st.script != nil && st.script.Kind != oci.OCI_STMT_UNKNOWN {
		return st.script.Kind, oci.OCI_SUCCESS
	}
	return kindOf(st.sql), oci.OCI_SUCCESS
}

func (f *API) RowCount(stmt, errh oci.Handle) (uint64, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("RowCount", errh); failed {
		return 0, st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return 0, oci.OCI_INVALID_HANDLE
	}
	if !st.executed || st.script == nil {
		return 0, oci.OCI_SUCCESS
	}
	if kindOf(st.sql) == oci.OCI_STMT_SELECT {
		return uint64(st.cursor), oci.OCI_SUCCESS
	}
	return st.script.RowsAffected, oci.OCI_SUCCESS
}

func (f *API) StmtExecute(svc, stmt, errh oci.Handle, iters uint32) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("StmtExecute", errh); failed {
		return st
	}
	if !f.isLive(svc, oci.OCI_HTYPE_SVCCTX) {
		return oci.OCI_INVALID_HANDLE
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return oci.OCI_INVALID_HANDLE
	}
	if !st.prepared {
		return f.fail(errh, 24337, "statement handle not prepared")
	}
	for _, name := range st.names {
		if _, bound := st.binds[name]; !bound {
			return f.fail(errh, 1008, "not all variables bound")
		}
	}
	kind := kindOf(st.sql)
	if st.script == nil {
		if kind != oci.OCI_STMT_ALTER {
			return f.fail(errh, 900, "invalid SQL statement")
		}
		f.Executed = append(f.Executed, st.sql)
		st.executed = true
		return oci.OCI_SUCCESS
	}
	if st.script.Kind != oci.OCI_STMT_UNKNOWN {
		kind = st.script.Kind
	}
	if kind != oci.OCI_STMT_SELECT && iters == 0 {
		return f.fail(errh, 24333, "zero iteration count")
	}
	if st.script.Err != "" {
		code := st.script.ErrCode
		if code == 0 {
			code = 20000
		}
		return f.fail(errh, code, "%s", st.script.Err)
	}
	params := make(map[string]any, len(st.binds))
	for name, b := range st.binds {
		params[name] = decodeBind(b)
	}
	f.Executed = append(f.Executed, st.sql)
	st.executed = true
	st.cursor = 0
	st.rows = st.script.Rows
	if st.script.Query != nil {
		st.rows = st.script.Query(params)
	}
	return oci.OCI_SUCCESS
}

func (f *API) StmtFetch(stmt, errh oci.Handle) oci.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("StmtFetch", errh); failed {
		return st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return oci.OCI_INVALID_HANDLE
	}
	if !st.executed {
		return f.fail(errh, 24338, "statement handle not executed")
	}
	if st.cursor >= len(st.rows) {
		return oci.OCI_NO_DATA
	}
	row := st.rows[st.cursor]
	st.cursor++
	for pos, d := range st.defines {
		var v any
		if int(pos) <= len(row) {
			v = row[pos-1]
		}
		encodeDefine(d, v)
	}
	return oci.OCI_SUCCESS
}

func (f *API) BindByName(stmt, errh oci.Handle, name string, buf []byte, dty oci.DataType, ind *int16) (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("BindByName", errh); failed {
		return 0, st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return 0, oci.OCI_INVALID_HANDLE
	}
	key := strings.ToUpper(strings.TrimPrefix(name, ":"))
	if !strings.HasPrefix(name, ":") || !slices.Contains(st.names, key) {
		return 0, f.fail(errh, 1036, "illegal variable name/number")
	}
	st.binds[key] = bindSlot{buf: buf, dty: dty, ind: ind}
	f.next += 0x10
	return f.next, oci.OCI_SUCCESS
}

func (f *API) BindByPos(stmt, errh oci.Handle, pos uint32, buf []byte, dty oci.DataType, ind *int16) (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("BindByPos", errh); failed {
		return 0, st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return 0, oci.OCI_INVALID_HANDLE
	}
	if pos == 0 || int(pos) > len(st.names) {
		return 0, f.fail(errh, 1036, "illegal variable name/number")
	}
	st.binds[st.names[pos-1]] = bindSlot{buf: buf, dty: dty, ind: ind}
	f.next += 0x10
	return f.next, oci.OCI_SUCCESS
}

func (f *API) ParamGet(stmt, errh oci.Handle, pos uint32) (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("ParamGet", errh); failed {
		return 0, st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return 0, oci.OCI_INVALID_HANDLE
	}
	if !st.executed {
		return 0, f.fail(errh, 24338, "statement handle not executed")
	}
	var cols []Column
	if st.script != nil {
		cols = st.script.Columns
	}
	if pos == 0 || int(pos) > len(cols) {
		return 0, f.fail(errh, oci.ORA_END_OF_COLUMNS, "no descriptor for this position")
	}
	h := f.alloc(oci.OCI_DTYPE_PARAM)
	f.params[h] = cols[pos-1]
	return h, oci.OCI_SUCCESS
}

func (f *API) param(op string, h, errh oci.Handle) (Column, oci.Status) {
	if st, failed := f.enter(op, errh); failed {
		return Column{}, st
	}
	col, ok := f.params[h]
	if !ok || !f.isLive(h, oci.OCI_DTYPE_PARAM) {
		return Column{}, oci.OCI_INVALID_HANDLE
	}
	return col, oci.OCI_SUCCESS
}

func (f *API) ColumnSize(param, errh oci.Handle) (uint16, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, st := f.param("ColumnSize", param, errh)
	return col.Size, st
}

func (f *API) ColumnType(param, errh oci.Handle) (oci.DataType, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, st := f.param("ColumnType", param, errh)
	return col.Type, st
}

func (f *API) ColumnName(param, errh oci.Handle) (string, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, st := f.param("ColumnName", param, errh)
	return col.Name, st
}

func (f *API) DefineByPos(stmt, errh oci.Handle, pos uint32, buf []byte, dty oci.DataType, ind *int16, rlen *uint16) (oci.Handle, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, failed := f.enter("DefineByPos", errh); failed {
		return 0, st
	}
	st, ok := f.stmt(stmt)
	if !ok {
		return 0, oci.OCI_INVALID_HANDLE
	}
	if pos == 0 {
		return 0, f.fail(errh, 1007, "variable not in select list")
	}
	st.defines[pos] = defineSlot{buf: buf, dty: dty, ind: ind, rlen: rlen}
	f.next += 0x10
	return f.next, oci.OCI_SUCCESS
}

func (f *API) ErrorGet(errh oci.Handle, record uint32) (int32, string, oci.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.diags[errh]
	if !ok || record != 1 {
		return 0, "", oci.OCI_NO_DATA
	}
	return d.code, d.msg, oci.OCI_SUCCESS
}

// buffer codecs

func decodeBind(b bindSlot) any {
	if b.ind != nil && *b.ind == oci.OCI_IND_NULL {
		return nil
	}
	switch b.dty {
	case oci.SQLT_INT:
		switch len(b.buf) {
		case 8:
			return int64(binary.NativeEndian.Uint64(b.buf))
		case 4:
			return int64(int32(binary.NativeEndian.Uint32(b.buf)))
		}
	case oci.SQLT_FLT:
		switch len(b.buf) {
		case 8:
			return math.Float64frombits(binary.NativeEndian.Uint64(b.buf))
		case 4:
			return float64(math.Float32frombits(binary.NativeEndian.Uint32(b.buf)))
		}
	case oci.SQLT_STR, oci.SQLT_CHR, oci.SQLT_VCS, oci.SQLT_AFC:
		n := len(b.buf)
		for i, c := range b.buf {
			if c == 0 {
				n = i
				break
			}
		}
		return string(b.buf[:n])
	}
	return slices.Clone(b.buf)
}

func encodeDefine(d defineSlot, v any) {
	clear(d.buf)
	if v == nil {
		*d.ind = oci.OCI_IND_NULL
		*d.rlen = 0
		return
	}
	*d.ind = oci.OCI_IND_NOTNULL
	switch d.dty {
	case oci.SQLT_INT:
		i := toInt64(v)
		switch len(d.buf) {
		case 1:
			d.buf[0] = byte(i)
		case 2:
			binary.NativeEndian.PutUint16(d.buf, uint16(i))
		case 4:
			binary.NativeEndian.PutUint32(d.buf, uint32(i))
		default:
			if len(d.buf) >= 8 {
				binary.NativeEndian.PutUint64(d.buf, uint64(i))
			}
		}
		*d.rlen = uint16(min(len(d.buf), 8))
	case oci.SQLT_FLT:
		x := toFloat64(v)
		if len(d.buf) >= 8 {
			binary.NativeEndian.PutUint64(d.buf, math.Float64bits(x))
			*d.rlen = 8
		} else if len(d.buf) >= 4 {
			binary.NativeEndian.PutUint32(d.buf, math.Float32bits(float32(x)))
			*d.rlen = 4
		}
	case oci.SQLT_STR, oci.SQLT_CHR, oci.SQLT_VCS, oci.SQLT_AFC:
		s := toString(v)
		// leave room for the terminator; longer values are cut silently
		n := copy(d.buf[:max(len(d.buf)-1, 0)], s)
		*d.rlen = uint16(n)
	default:
		if b, ok := v.([]byte); ok {
			*d.rlen = uint16(copy(d.buf, b))
		} else {
			*d.rlen = 0
		}
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
	case string:
		var i int64
		_, _ = fmt.Sscan(x, &i)
		return i
	}
	return 0
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case string:
		var f float64
		_, _ = fmt.Sscan(x, &f)
		return f
	}
	return 0
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(DateLayout)
	default:
		return fmt.Sprint(v)
	}
}
