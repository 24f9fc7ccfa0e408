package oluacle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags a Value.
type ValueKind uint8

const (
	// ValueNothing is produced for columns with no decoder (LOBs, timestamps
	// and other types outside the coercion table).
	ValueNothing ValueKind = iota
	ValueNull
	ValueInteger
	ValueFloat
	ValueString
)

func (k ValueKind) String() string {
	switch k {
	case ValueNothing:
		return "nothing"
	case ValueNull:
		return "null"
	case ValueInteger:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// DateLayout is the Go layout matching the default session date format
// (YYYY/MM/DD HH24:MI:SS); time.Time parameters are bound as text in it.
const DateLayout = "2006/01/02 15:04:05"

// Value is one host value crossing the native boundary.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
}

// Null is the SQL NULL value.
var Null = Value{kind: ValueNull}

func IntegerValue(i int64) Value { return Value{kind: ValueInteger, i: i} }
func FloatValue(f float64) Value { return Value{kind: ValueFloat, f: f} }
func StringValue(s string) Value { return Value{kind: ValueString, s: s} }

// FromAny maps a Go value onto a host value. nil and false are NULL, the
// integer kinds are Integer, the float kinds are Float and everything else is
// bound as text.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case bool:
		if !x {
			return Null
		}
		return IntegerValue(1)
	case int:
		return IntegerValue(int64(x))
	case int8:
		return IntegerValue(int64(x))
	case int16:
		return IntegerValue(int64(x))
	case int32:
		return IntegerValue(int64(x))
	case int64:
		return IntegerValue(x)
	case uint:
		return IntegerValue(capUint(uint64(x)))
	case uint8:
		return IntegerValue(int64(x))
	case uint16:
		return IntegerValue(int64(x))
	case uint32:
		return IntegerValue(int64(x))
	case uint64:
		return IntegerValue(capUint(x))
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case time.Time:
		return StringValue(x.Format(DateLayout))
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprint(v))
	}
}

// cap at MaxInt64 to avoid overflow
func capUint(x uint64) int64 {
	if x > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(x)
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case ValueInteger:
		return v.i, true
	case ValueFloat:
		return int64(v.f), true
	}
	return 0, false
}

func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case ValueInteger:
		return float64(v.i), true
	case ValueFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) Text() (string, bool) {
	if v.kind != ValueString {
		return "", false
	}
	return v.s, true
}

// Any returns the Go form of v: int64, float64, string, or nil for Null and
// Nothing.
func (v Value) Any() any {
	switch v.kind {
	case ValueInteger:
		return v.i
	case ValueFloat:
		return v.f
	case ValueString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case ValueInteger:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueString:
		return strconv.Quote(v.s)
	default:
		return v.kind.String()
	}
}

// Row is one fetched result row. Values are reachable by column name and by
// 1-based ordinal. SQL NULL reads back as the connection's null value.
type Row struct {
	columns []string
	values  []Value
	null    any
}

func (r *Row) Columns() []string { return r.columns }
func (r *Row) Len() int          { return len(r.values) }
func (r *Row) Values() []Value   { return r.values }

func (r *Row) index(name string) int {
	for i, c := range r.columns {
		if c == name {
			return i
		}
	}
	// column names come back upper-cased unless quoted
	for i, c := range r.columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Value returns the raw value of the named column.
func (r *Row) Value(name string) (Value, bool) {
	i := r.index(name)
	if i < 0 {
		return Value{}, false
	}
	return r.values[i], true
}

// ValueAt returns the raw value at the 1-based ordinal i, or Nothing.
func (r *Row) ValueAt(i int) Value {
	if i < 1 || i > len(r.values) {
		return Value{}
	}
	return r.values[i-1]
}

func (r *Row) host(v Value) any {
	if v.kind == ValueNull {
		return r.null
	}
	return v.Any()
}

// Get returns the named column as a Go value.
func (r *Row) Get(name string) any {
	v, ok := r.Value(name)
	if !ok {
		return nil
	}
	return r.host(v)
}

// At returns the column at the 1-based ordinal i as a Go value.
func (r *Row) At(i int) any {
	return r.host(r.ValueAt(i))
}

// Map returns name -> value; columns without a decoder are left out.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, v := range r.values {
		if v.kind == ValueNothing {
			continue
		}
		m[r.columns[i]] = r.host(v)
	}
	return m
}

// Ordinals is Map keyed by 1-based column position.
func (r *Row) Ordinals() map[int]any {
	m := make(map[int]any, len(r.values))
	for i, v := range r.values {
		if v.kind == ValueNothing {
			continue
		}
		m[i+1] = r.host(v)
	}
	return m
}
