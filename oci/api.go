// Package oci describes the part of the Oracle Call Interface consumed by
// oluacle and provides a cgo-free implementation of it on top of purego.
package oci

// Handle is an opaque OCI handle or descriptor pointer.
type Handle uintptr

// API is the native call-level contract. Every method maps to one OCI entry
// point (or one attribute read) and reports the raw status; callers are
// responsible for translating statuses into errors.
//
// Buffers and indicator slots passed to BindByName, BindByPos and DefineByPos
// are retained by the native side until the statement is freed, so callers
// must keep them alive and pinned for that long.
type API interface {
	EnvCreate() (Handle, Status)
	HandleAlloc(parent Handle, typ HandleType) (Handle, Status)
	HandleFree(h Handle, typ HandleType) Status

	Logon(env, errh Handle, user, password, database string) (Handle, Status)
	Logoff(svc, errh Handle) Status
	TransCommit(svc, errh Handle) Status
	TransRollback(svc, errh Handle) Status

	SetPrefetchRows(stmt, errh Handle, rows uint32) Status
	StmtPrepare(stmt, errh Handle, sql string) Status
	StmtType(stmt, errh Handle) (StmtType, Status)
	RowCount(stmt, errh Handle) (uint64, Status)
	StmtExecute(svc, stmt, errh Handle, iters uint32) Status
	StmtFetch(stmt, errh Handle) Status

	BindByName(stmt, errh Handle, name string, buf []byte, dty DataType, ind *int16) (Handle, Status)
	BindByPos(stmt, errh Handle, pos uint32, buf []byte, dty DataType, ind *int16) (Handle, Status)

	// ParamGet returns the descriptor of the select-list item at pos (1-based).
	ParamGet(stmt, errh Handle, pos uint32) (Handle, Status)
	DescriptorFree(desc Handle, typ HandleType) Status
	ColumnSize(param, errh Handle) (uint16, Status)
	ColumnType(param, errh Handle) (DataType, Status)
	ColumnName(param, errh Handle) (string, Status)
	DefineByPos(stmt, errh Handle, pos uint32, buf []byte, dty DataType, ind *int16, rlen *uint16) (Handle, Status)

	// ErrorGet reads one diagnostic record from an error handle.
	ErrorGet(errh Handle, record uint32) (code int32, message string, status Status)
}
