package oci

import "fmt"

// Status is the sword returned by every OCI entry point.
type Status int32

// note, that only SUCCESS and NO_DATA are "good" statuses - everything else
// must go through the error translator
const (
	OCI_SUCCESS           Status = 0
	OCI_SUCCESS_WITH_INFO Status = 1
	OCI_NEED_DATA         Status = 99
	OCI_NO_DATA           Status = 100
	OCI_ERROR             Status = -1
	OCI_INVALID_HANDLE    Status = -2
	OCI_STILL_EXECUTING   Status = -3123
	OCI_CONTINUE          Status = -24200
)

func (s Status) String() string {
	switch s {
	case OCI_SUCCESS:
		return "OCI_SUCCESS"
	case OCI_SUCCESS_WITH_INFO:
		return "OCI_SUCCESS_WITH_INFO"
	case OCI_NEED_DATA:
		return "OCI_NEED_DATA"
	case OCI_NO_DATA:
		return "OCI_NO_DATA"
	case OCI_ERROR:
		return "OCI_ERROR"
	case OCI_INVALID_HANDLE:
		return "OCI_INVALID_HANDLE"
	case OCI_STILL_EXECUTING:
		return "OCI_STILL_EXECUTING"
	case OCI_CONTINUE:
		return "OCI_CONTINUE"
	default:
		return fmt.Sprintf("OCI status %d", int32(s))
	}
}

// DataType is an external (SQLT_*) type code. Describe reports the
// internal code of a column, which for the datetime family differs from the
// external one (SQLT_TIMESTAMP_INT versus SQLT_TIMESTAMP).
type DataType uint16

const (
	SQLT_CHR               DataType = 1
	SQLT_NUM               DataType = 2
	SQLT_INT               DataType = 3
	SQLT_FLT               DataType = 4
	SQLT_STR               DataType = 5
	SQLT_VNU               DataType = 6
	SQLT_LNG               DataType = 8
	SQLT_VCS               DataType = 9
	SQLT_DAT               DataType = 12
	SQLT_BFLOAT            DataType = 21
	SQLT_BDOUBLE           DataType = 22
	SQLT_AFC               DataType = 96
	SQLT_IBFLOAT           DataType = 100
	SQLT_IBDOUBLE          DataType = 101
	SQLT_CLOB              DataType = 112
	SQLT_BLOB              DataType = 113
	SQLT_ODT               DataType = 156
	SQLT_TIMESTAMP_INT     DataType = 180
	SQLT_TIMESTAMP_TZ_INT  DataType = 181
	SQLT_DATE              DataType = 184
	SQLT_TIMESTAMP         DataType = 187
	SQLT_TIMESTAMP_TZ      DataType = 188
	SQLT_TIMESTAMP_LTZ_INT DataType = 231
	SQLT_TIMESTAMP_LTZ     DataType = 232
)

func (t DataType) String() string {
	switch t {
	case SQLT_CHR:
		return "SQLT_CHR"
	case SQLT_NUM:
		return "SQLT_NUM"
	case SQLT_INT:
		return "SQLT_INT"
	case SQLT_FLT:
		return "SQLT_FLT"
	case SQLT_STR:
		return "SQLT_STR"
	case SQLT_VNU:
		return "SQLT_VNU"
	case SQLT_LNG:
		return "SQLT_LNG"
	case SQLT_VCS:
		return "SQLT_VCS"
	case SQLT_DAT:
		return "SQLT_DAT"
	case SQLT_BFLOAT:
		return "SQLT_BFLOAT"
	case SQLT_BDOUBLE:
		return "SQLT_BDOUBLE"
	case SQLT_AFC:
		return "SQLT_AFC"
	case SQLT_IBFLOAT:
		return "SQLT_IBFLOAT"
	case SQLT_IBDOUBLE:
		return "SQLT_IBDOUBLE"
	case SQLT_ODT:
		return "SQLT_ODT"
	case SQLT_DATE:
		return "SQLT_DATE"
	case SQLT_TIMESTAMP:
		return "SQLT_TIMESTAMP"
	case SQLT_TIMESTAMP_TZ:
		return "SQLT_TIMESTAMP_TZ"
	case SQLT_TIMESTAMP_LTZ:
		return "SQLT_TIMESTAMP_LTZ"
	case SQLT_CLOB:
		return "SQLT_CLOB"
	case SQLT_BLOB:
		return "SQLT_BLOB"
	case SQLT_TIMESTAMP_INT:
		return "SQLT_TIMESTAMP_INT"
	case SQLT_TIMESTAMP_TZ_INT:
		return "SQLT_TIMESTAMP_TZ_INT"
	case SQLT_TIMESTAMP_LTZ_INT:
		return "SQLT_TIMESTAMP_LTZ_INT"
	default:
		return fmt.Sprintf("SQLT(%d)", uint16(t))
	}
}

// HandleType is the ub4 handle or descriptor type passed to alloc/free.
type HandleType uint32

const (
	OCI_HTYPE_ENV    HandleType = 1
	OCI_HTYPE_ERROR  HandleType = 2
	OCI_HTYPE_SVCCTX HandleType = 3
	OCI_HTYPE_STMT   HandleType = 4
	OCI_HTYPE_BIND   HandleType = 5
	OCI_HTYPE_DEFINE HandleType = 6

	OCI_DTYPE_PARAM HandleType = 53
)

// Attr is an OCI_ATTR_* identifier.
type Attr uint32

const (
	OCI_ATTR_DATA_SIZE     Attr = 1
	OCI_ATTR_DATA_TYPE     Attr = 2
	OCI_ATTR_NAME          Attr = 4
	OCI_ATTR_ROW_COUNT     Attr = 9
	OCI_ATTR_PREFETCH_ROWS Attr = 11
	OCI_ATTR_PARAM_COUNT   Attr = 18
	OCI_ATTR_STMT_TYPE     Attr = 24
)

// StmtType is the value of OCI_ATTR_STMT_TYPE.
type StmtType uint16

const (
	OCI_STMT_UNKNOWN StmtType = 0
	OCI_STMT_SELECT  StmtType = 1
	OCI_STMT_UPDATE  StmtType = 2
	OCI_STMT_DELETE  StmtType = 3
	OCI_STMT_INSERT  StmtType = 4
	OCI_STMT_CREATE  StmtType = 5
	OCI_STMT_DROP    StmtType = 6
	OCI_STMT_ALTER   StmtType = 7
	OCI_STMT_BEGIN   StmtType = 8
	OCI_STMT_DECLARE StmtType = 9
	OCI_STMT_CALL    StmtType = 10
	OCI_STMT_MERGE   StmtType = 16
)

// modes and flags
const (
	OCI_DEFAULT    uint32 = 0
	OCI_NTV_SYNTAX uint32 = 1
	OCI_FETCH_NEXT uint16 = 2
)

// OCI_IND_NULL marks a NULL bind or define through the indicator variable.
const (
	OCI_IND_NOTNULL int16 = 0
	OCI_IND_NULL    int16 = -1
)

// ORA_END_OF_COLUMNS is raised by OCIParamGet when the position passes the
// last select-list item (ORA-24334).
const ORA_END_OF_COLUMNS = 24334
