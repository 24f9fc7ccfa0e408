package oluacle

import (
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	cases := []struct {
		in   any
		kind ValueKind
		want any
	}{
		{nil, ValueNull, nil},
		{false, ValueNull, nil},
		{true, ValueInteger, int64(1)},
		{42, ValueInteger, int64(42)},
		{int8(-3), ValueInteger, int64(-3)},
		{uint64(math.MaxUint64), ValueInteger, int64(math.MaxInt64)},
		{float32(1.5), ValueFloat, 1.5},
		{2.25, ValueFloat, 2.25},
		{"abc", ValueString, "abc"},
		{[]byte("raw"), ValueString, "raw"},
		{time.Date(2024, 2, 29, 13, 5, 9, 0, time.UTC), ValueString, "2024/02/29 13:05:09"},
		{netip.MustParseAddr("10.0.0.1"), ValueString, "10.0.0.1"},
		{IntegerValue(7), ValueInteger, int64(7)},
	}
	for _, tc := range cases {
		v := FromAny(tc.in)
		require.Equal(t, tc.kind, v.Kind(), "%#v", tc.in)
		require.Equal(t, tc.want, v.Any(), "%#v", tc.in)
	}
}

func TestValueAccessors(t *testing.T) {
	i, ok := FloatValue(3.9).Int64()
	require.True(t, ok)
	require.EqualValues(t, 3, i)
	_, ok = StringValue("x").Float64()
	require.False(t, ok)
	_, ok = IntegerValue(1).Text()
	require.False(t, ok)
	require.True(t, Null.IsNull())
	require.Equal(t, `"x"`, StringValue("x").String())
	require.Equal(t, "nothing", Value{}.String())
}

func TestRowAccess(t *testing.T) {
	row := &Row{
		columns: []string{"ID", "NAME", "NOTE", "DOC"},
		values:  []Value{IntegerValue(1), StringValue("bob"), Null, {}},
		null:    "NULL",
	}
	require.Equal(t, 4, row.Len())
	require.Equal(t, "bob", row.Get("name"))
	require.Equal(t, "bob", row.At(2))
	require.Equal(t, "NULL", row.Get("NOTE"))
	require.Nil(t, row.Get("DOC"))
	require.Nil(t, row.Get("MISSING"))
	require.Equal(t, ValueNothing, row.ValueAt(0).Kind())
	require.Equal(t, ValueNothing, row.ValueAt(5).Kind())

	v, ok := row.Value("id")
	require.True(t, ok)
	require.Equal(t, IntegerValue(1), v)

	require.Equal(t, map[string]any{"ID": int64(1), "NAME": "bob", "NOTE": "NULL"}, row.Map())
	require.Equal(t, map[int]any{1: int64(1), 2: "bob", 3: "NULL"}, row.Ordinals())
}
