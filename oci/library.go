package oci

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// LibraryPathEnv overrides the client library location when LoadConfig.Path is empty.
const LibraryPathEnv = "OLUACLE_OCI_LIB"

// LoadConfig selects the OCI client library to load.
type LoadConfig struct {
	// Path to libclntsh (or oci.dll); when empty, OLUACLE_OCI_LIB,
	// $ORACLE_HOME/lib and the platform default name are tried in order.
	Path string
}

var ErrLibraryNotFound = errors.New("oci: client library not found")

// Library is the purego-backed API implementation over a loaded client library.
type Library struct {
	path   string
	handle uintptr
}

var _ API = (*Library)(nil)

var (
	loadOnce sync.Once
	loaded   *Library
	loadErr  error
)

// Load opens the client library and registers every OCI entry point used by
// the package. The library is loaded once per process; later calls return the
// first outcome regardless of cfg.
func Load(cfg LoadConfig) (*Library, error) {
	loadOnce.Do(func() {
		loaded, loadErr = load(cfg)
	})
	return loaded, loadErr
}

func load(cfg LoadConfig) (*Library, error) {
	var errs []error
	for _, path := range candidatePaths(cfg) {
		handle, err := openLibrary(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := register_oci(handle); err != nil {
			closeLibrary(handle)
			return nil, fmt.Errorf("oci: %s: %w", path, err)
		}
		return &Library{path: path, handle: handle}, nil
	}
	return nil, errors.Join(append([]error{ErrLibraryNotFound}, errs...)...)
}

func candidatePaths(cfg LoadConfig) []string {
	if cfg.Path != "" {
		return []string{cfg.Path}
	}
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return []string{p}
	}
	name := defaultLibraryName()
	var paths []string
	if home := os.Getenv("ORACLE_HOME"); home != "" {
		paths = append(paths, filepath.Join(home, "lib", name))
	}
	return append(paths, name)
}

func defaultLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "oci.dll"
	case "darwin":
		return "libclntsh.dylib"
	default:
		return "libclntsh.so"
	}
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string { return l.path }

// C entry points, registered by register_oci
var (
	c_OCIEnvCreate func(
		envp unsafe.Pointer, // OCIEnv**
		mode uint32,
		ctxp uintptr,
		malocfp uintptr,
		ralocfp uintptr,
		mfreefp uintptr,
		xtramemSz uintptr, // size_t
		usrmempp uintptr,
	) int32

	c_OCIHandleAlloc func(
		parenth uintptr,
		hndlpp unsafe.Pointer, // void**
		typ uint32,
		xtramemSz uintptr,
		usrmempp uintptr,
	) int32

	c_OCIHandleFree func(
		hndlp uintptr,
		typ uint32,
	) int32

	c_OCIDescriptorFree func(
		descp uintptr,
		typ uint32,
	) int32

	c_OCILogon func(
		envhp uintptr,
		errhp uintptr,
		svchp unsafe.Pointer, // OCISvcCtx**
		username string,
		unameLen uint32,
		password string,
		passwdLen uint32,
		dbname string,
		dbnameLen uint32,
	) int32

	c_OCILogoff func(
		svchp uintptr,
		errhp uintptr,
	) int32

	c_OCITransCommit func(
		svchp uintptr,
		errhp uintptr,
		flags uint32,
	) int32

	c_OCITransRollback func(
		svchp uintptr,
		errhp uintptr,
		flags uint32,
	) int32

	c_OCIAttrSet func(
		trgthndlp uintptr,
		trghndltyp uint32,
		attributep unsafe.Pointer,
		size uint32,
		attrtype uint32,
		errhp uintptr,
	) int32

	c_OCIAttrGet func(
		trgthndlp uintptr,
		trghndltyp uint32,
		attributep unsafe.Pointer,
		sizep unsafe.Pointer, // ub4*
		attrtype uint32,
		errhp uintptr,
	) int32

	c_OCIStmtPrepare func(
		stmtp uintptr,
		errhp uintptr,
		stmt string,
		stmtLen uint32,
		language uint32,
		mode uint32,
	) int32

	c_OCIStmtExecute func(
		svchp uintptr,
		stmtp uintptr,
		errhp uintptr,
		iters uint32,
		rowoff uint32,
		snapIn uintptr,
		snapOut uintptr,
		mode uint32,
	) int32

	c_OCIStmtFetch2 func(
		stmthp uintptr,
		errhp uintptr,
		nrows uint32,
		orientation uint16,
		fetchOffset int32,
		mode uint32,
	) int32

	c_OCIBindByName func(
		stmtp uintptr,
		bindpp unsafe.Pointer, // OCIBind**
		errhp uintptr,
		placeholder string,
		placehLen int32,
		valuep unsafe.Pointer,
		valueSz int32,
		dty uint16,
		indp unsafe.Pointer,
		alenp uintptr,
		rcodep uintptr,
		maxarrLen uint32,
		curelep uintptr,
		mode uint32,
	) int32

	c_OCIBindByPos func(
		stmtp uintptr,
		bindpp unsafe.Pointer, // OCIBind**
		errhp uintptr,
		position uint32,
		valuep unsafe.Pointer,
		valueSz int32,
		dty uint16,
		indp unsafe.Pointer,
		alenp uintptr,
		rcodep uintptr,
		maxarrLen uint32,
		curelep uintptr,
		mode uint32,
	) int32

	c_OCIParamGet func(
		hndlp uintptr,
		htype uint32,
		errhp uintptr,
		parmdpp unsafe.Pointer, // void**
		pos uint32,
	) int32

	c_OCIDefineByPos func(
		stmtp uintptr,
		defnpp unsafe.Pointer, // OCIDefine**
		errhp uintptr,
		position uint32,
		valuep unsafe.Pointer,
		valueSz int32,
		dty uint16,
		indp unsafe.Pointer,
		rlenp unsafe.Pointer, // ub2*
		rcodep uintptr,
		mode uint32,
	) int32

	c_OCIErrorGet func(
		hndlp uintptr,
		recordno uint32,
		sqlstate uintptr,
		errcodep unsafe.Pointer, // sb4*
		bufp unsafe.Pointer,
		bufsiz uint32,
		typ uint32,
	) int32
)

// register_oci binds every c_OCI* variable to its symbol.
// RegisterLibFunc panics on a missing symbol, so the panic is turned into an error.
func register_oci(handle uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register symbols: %v", r)
		}
	}()
	purego.RegisterLibFunc(&c_OCIEnvCreate, handle, "OCIEnvCreate")
	purego.RegisterLibFunc(&c_OCIHandleAlloc, handle, "OCIHandleAlloc")
	purego.RegisterLibFunc(&c_OCIHandleFree, handle, "OCIHandleFree")
	purego.RegisterLibFunc(&c_OCIDescriptorFree, handle, "OCIDescriptorFree")
	purego.RegisterLibFunc(&c_OCILogon, handle, "OCILogon")
	purego.RegisterLibFunc(&c_OCILogoff, handle, "OCILogoff")
	purego.RegisterLibFunc(&c_OCITransCommit, handle, "OCITransCommit")
	purego.RegisterLibFunc(&c_OCITransRollback, handle, "OCITransRollback")
	purego.RegisterLibFunc(&c_OCIAttrSet, handle, "OCIAttrSet")
	purego.RegisterLibFunc(&c_OCIAttrGet, handle, "OCIAttrGet")
	purego.RegisterLibFunc(&c_OCIStmtPrepare, handle, "OCIStmtPrepare")
	purego.RegisterLibFunc(&c_OCIStmtExecute, handle, "OCIStmtExecute")
	purego.RegisterLibFunc(&c_OCIStmtFetch2, handle, "OCIStmtFetch2")
	purego.RegisterLibFunc(&c_OCIBindByName, handle, "OCIBindByName")
	purego.RegisterLibFunc(&c_OCIBindByPos, handle, "OCIBindByPos")
	purego.RegisterLibFunc(&c_OCIParamGet, handle, "OCIParamGet")
	purego.RegisterLibFunc(&c_OCIDefineByPos, handle, "OCIDefineByPos")
	purego.RegisterLibFunc(&c_OCIErrorGet, handle, "OCIErrorGet")
	return nil
}

// Helpers

func bufPtr(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

// copyBytes copies n bytes of native memory starting at p into a Go string.
func copyBytes(p *byte, n int) string {
	if p == nil || n <= 0 {
		return ""
	}
	return string(unsafe.Slice(p, n))
}

// Go wrappers over imported C bindings

func (l *Library) EnvCreate() (Handle, Status) {
	var env uintptr
	st := c_OCIEnvCreate(unsafe.Pointer(&env), OCI_DEFAULT, 0, 0, 0, 0, 0, 0)
	return Handle(env), Status(st)
}

func (l *Library) HandleAlloc(parent Handle, typ HandleType) (Handle, Status) {
	var h uintptr
	st := c_OCIHandleAlloc(uintptr(parent), unsafe.Pointer(&h), uint32(typ), 0, 0)
	return Handle(h), Status(st)
}

func (l *Library) HandleFree(h Handle, typ HandleType) Status {
	return Status(c_OCIHandleFree(uintptr(h), uint32(typ)))
}

func (l *Library) DescriptorFree(desc Handle, typ HandleType) Status {
	return Status(c_OCIDescriptorFree(uintptr(desc), uint32(typ)))
}

func (l *Library) Logon(env, errh Handle, user, password, database string) (Handle, Status) {
	var svc uintptr
	st := c_OCILogon(uintptr(env), uintptr(errh), unsafe.Pointer(&svc),
		user, uint32(len(user)),
		password, uint32(len(password)),
		database, uint32(len(database)))
	return Handle(svc), Status(st)
}

func (l *Library) Logoff(svc, errh Handle) Status {
	return Status(c_OCILogoff(uintptr(svc), uintptr(errh)))
}

func (l *Library) TransCommit(svc, errh Handle) Status {
	return Status(c_OCITransCommit(uintptr(svc), uintptr(errh), OCI_DEFAULT))
}

func (l *Library) TransRollback(svc, errh Handle) Status {
	return Status(c_OCITransRollback(uintptr(svc), uintptr(errh), OCI_DEFAULT))
}

func (l *Library) SetPrefetchRows(stmt, errh Handle, rows uint32) Status {
	st := c_OCIAttrSet(uintptr(stmt), uint32(OCI_HTYPE_STMT), unsafe.Pointer(&rows), 0,
		uint32(OCI_ATTR_PREFETCH_ROWS), uintptr(errh))
	return Status(st)
}

func (l *Library) StmtPrepare(stmt, errh Handle, sql string) Status {
	return Status(c_OCIStmtPrepare(uintptr(stmt), uintptr(errh), sql, uint32(len(sql)), OCI_NTV_SYNTAX, OCI_DEFAULT))
}

func (l *Library) StmtType(stmt, errh Handle) (StmtType, Status) {
	var typ uint16
	st := c_OCIAttrGet(uintptr(stmt), uint32(OCI_HTYPE_STMT), unsafe.Pointer(&typ), nil,
		uint32(OCI_ATTR_STMT_TYPE), uintptr(errh))
	return StmtType(typ), Status(st)
}

func (l *Library) RowCount(stmt, errh Handle) (uint64, Status) {
	var rows uint32
	st := c_OCIAttrGet(uintptr(stmt), uint32(OCI_HTYPE_STMT), unsafe.Pointer(&rows), nil,
		uint32(OCI_ATTR_ROW_COUNT), uintptr(errh))
	return uint64(rows), Status(st)
}

func (l *Library) StmtExecute(svc, stmt, errh Handle, iters uint32) Status {
	return Status(c_OCIStmtExecute(uintptr(svc), uintptr(stmt), uintptr(errh), iters, 0, 0, 0, OCI_DEFAULT))
}

func (l *Library) StmtFetch(stmt, errh Handle) Status {
	return Status(c_OCIStmtFetch2(uintptr(stmt), uintptr(errh), 1, OCI_FETCH_NEXT, 0, OCI_DEFAULT))
}

func (l *Library) BindByName(stmt, errh Handle, name string, buf []byte, dty DataType, ind *int16) (Handle, Status) {
	var bind uintptr
	st := c_OCIBindByName(uintptr(stmt), unsafe.Pointer(&bind), uintptr(errh),
		name, int32(len(name)),
		bufPtr(buf), int32(len(buf)), uint16(dty), unsafe.Pointer(ind),
		0, 0, 0, 0, OCI_DEFAULT)
	return Handle(bind), Status(st)
}

func (l *Library) BindByPos(stmt, errh Handle, pos uint32, buf []byte, dty DataType, ind *int16) (Handle, Status) {
	var bind uintptr
	st := c_OCIBindByPos(uintptr(stmt), unsafe.Pointer(&bind), uintptr(errh), pos,
		bufPtr(buf), int32(len(buf)), uint16(dty), unsafe.Pointer(ind),
		0, 0, 0, 0, OCI_DEFAULT)
	return Handle(bind), Status(st)
}

func (l *Library) ParamGet(stmt, errh Handle, pos uint32) (Handle, Status) {
	var param uintptr
	st := c_OCIParamGet(uintptr(stmt), uint32(OCI_HTYPE_STMT), uintptr(errh), unsafe.Pointer(&param), pos)
	return Handle(param), Status(st)
}

func (l *Library) ColumnSize(param, errh Handle) (uint16, Status) {
	var size uint16
	st := c_OCIAttrGet(uintptr(param), uint32(OCI_DTYPE_PARAM), unsafe.Pointer(&size), nil,
		uint32(OCI_ATTR_DATA_SIZE), uintptr(errh))
	return size, Status(st)
}

func (l *Library) ColumnType(param, errh Handle) (DataType, Status) {
	var typ uint16
	st := c_OCIAttrGet(uintptr(param), uint32(OCI_DTYPE_PARAM), unsafe.Pointer(&typ), nil,
		uint32(OCI_ATTR_DATA_TYPE), uintptr(errh))
	return DataType(typ), Status(st)
}

func (l *Library) ColumnName(param, errh Handle) (string, Status) {
	var (
		name *byte
		size uint32
	)
	st := c_OCIAttrGet(uintptr(param), uint32(OCI_DTYPE_PARAM), unsafe.Pointer(&name), unsafe.Pointer(&size),
		uint32(OCI_ATTR_NAME), uintptr(errh))
	if Status(st) != OCI_SUCCESS {
		return "", Status(st)
	}
	// name points into the descriptor; copy it before the descriptor goes away
	return copyBytes(name, int(size)), Status(st)
}

func (l *Library) DefineByPos(stmt, errh Handle, pos uint32, buf []byte, dty DataType, ind *int16, rlen *uint16) (Handle, Status) {
	var def uintptr
	st := c_OCIDefineByPos(uintptr(stmt), unsafe.Pointer(&def), uintptr(errh), pos,
		bufPtr(buf), int32(len(buf)), uint16(dty), unsafe.Pointer(ind), unsafe.Pointer(rlen),
		0, OCI_DEFAULT)
	return Handle(def), Status(st)
}

func (l *Library) ErrorGet(errh Handle, record uint32) (int32, string, Status) {
	var (
		code int32
		buf  [512]byte
	)
	st := c_OCIErrorGet(uintptr(errh), record, 0, unsafe.Pointer(&code), unsafe.Pointer(&buf[0]),
		uint32(len(buf)), uint32(OCI_HTYPE_ERROR))
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	// messages come back with a trailing newline
	for n > 0 && (buf[n-1] == '\n' || buf[n-1] == ' ') {
		n--
	}
	return code, string(buf[:n]), Status(st)
}
