package oluacle

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oluacle/oluacle/internal/ocifake"
	"github.com/oluacle/oluacle/oci"
)

func scriptDual(f *ocifake.API) {
	f.Script("SELECT DUMMY FROM DUAL", ocifake.Script{
		Columns: []ocifake.Column{{Name: "DUMMY", Type: oci.SQLT_CHR, Size: 1}},
		Rows:    [][]any{{"X"}},
	})
}

func TestSelectFromDual(t *testing.T) {
	f, c, _ := connect(t)
	scriptDual(f)

	s, err := c.Prepare("SELECT DUMMY FROM DUAL")
	require.NoError(t, err)
	require.Equal(t, "SELECT DUMMY FROM DUAL", s.SQL())
	require.Zero(t, f.Prefetch(s.stmt))

	res, err := s.Execute()
	require.NoError(t, err)
	require.True(t, res.IsQuery())
	require.Same(t, s, res.Statement())

	row, err := s.Fetch()
	require.NoError(t, err)
	require.Equal(t, "X", row.Get("dummy"))

	_, err = s.Fetch()
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))

	_, err = s.Fetch()
	require.ErrorIs(t, err, ErrStmtFinalized)
	require.True(t, IsKind(err, KindMisuse))

	require.NoError(t, s.Close())
	require.Zero(t, f.DoubleFrees)
}

func TestInsertReportsRowsAffected(t *testing.T) {
	f, c, _ := connect(t)
	f.Script("INSERT INTO T (ID) VALUES (:1)", ocifake.Script{RowsAffected: 1})

	res, err := c.Exec("INSERT INTO T (ID) VALUES (:1)", 10)
	require.NoError(t, err)
	require.False(t, res.IsQuery())
	require.Nil(t, res.Statement())
	require.EqualValues(t, 1, res.RowsAffected())
	// the statement is finalized right away
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))

	n := 0
	for range res.Rows() {
		n++
	}
	require.Zero(t, n)
}

func TestFetchBeforeExecute(t *testing.T) {
	f, c, _ := connect(t)
	scriptDual(f)
	s, err := c.Prepare("SELECT DUMMY FROM DUAL")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Fetch()
	require.ErrorIs(t, err, ErrNotExecuted)
}

func TestExecuteErrors(t *testing.T) {
	f, c, _ := connect(t)
	f.Script("BEGIN raise_it; END;", ocifake.Script{Err: "custom failure", ErrCode: 20001})

	_, err := c.Exec("BEGIN raise_it; END;")
	require.True(t, IsKind(err, KindRecoverable))
	require.EqualValues(t, 20001, ORACode(err))

	_, err = c.Exec("SELECT NOPE FROM NOWHERE")
	require.EqualValues(t, 900, ORACode(err))
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))
	require.Equal(t, 1, f.Live(oci.OCI_HTYPE_ERROR))
}

func TestExecuteAfterClose(t *testing.T) {
	f, c, _ := connect(t)
	scriptDual(f)
	s, err := c.Prepare("SELECT DUMMY FROM DUAL")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Execute()
	require.ErrorIs(t, err, ErrStmtFinalized)
	require.Zero(t, f.DoubleFrees)
}

func TestAllRows(t *testing.T) {
	f, c, _ := connect(t)
	f.Script("SELECT N FROM T", ocifake.Script{
		Columns: []ocifake.Column{{Name: "N", Type: oci.SQLT_NUM, Size: 22}},
		Rows:    [][]any{{1}, {2}, {3}},
	})
	res, err := c.Exec("SELECT N FROM T")
	require.NoError(t, err)

	var got []any
	for row, err := range res.Rows() {
		require.NoError(t, err)
		got = append(got, row.At(1))
	}
	require.Equal(t, []any{1.0, 2.0, 3.0}, got)
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))
}

func TestAllStopsEarly(t *testing.T) {
	f, c, _ := connect(t)
	f.Script("SELECT N FROM T", ocifake.Script{
		Columns: []ocifake.Column{{Name: "N", Type: oci.SQLT_NUM, Size: 22}},
		Rows:    [][]any{{1}, {2}},
	})
	s := query(t, c, "SELECT N FROM T")
	for range s.All() {
		break
	}
	// still open until the rest is fetched or it is closed
	require.Equal(t, 1, f.Live(oci.OCI_HTYPE_STMT))
	require.NoError(t, s.Close())
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))
}

func TestStatementFinalizer(t *testing.T) {
	f, c, hook := connect(t)
	scriptDual(f)
	s, err := c.Prepare("SELECT DUMMY FROM DUAL")
	require.NoError(t, err)

	s.gc()
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))
	require.True(t, hasEntry(hook, logrus.WarnLevel, "statement was not closed; finalizing"))

	hook.Reset()
	s.gc()
	require.Empty(t, hook.AllEntries())
}

func TestSelectOneFromDual(t *testing.T) {
	f, c, _ := connect(t)
	f.Script("SELECT 1 AS X FROM DUAL", ocifake.Script{
		Columns: []ocifake.Column{{Name: "X", Type: oci.SQLT_NUM, Size: 22}},
		Rows:    [][]any{{1}},
	})
	s := query(t, c, "SELECT 1 AS X FROM DUAL")

	row, err := s.Fetch()
	require.NoError(t, err)
	require.Equal(t, map[string]any{"X": 1.0}, row.Map())
	require.Equal(t, map[int]any{1: 1.0}, row.Ordinals())
	require.Equal(t, 1.0, row.Get("X"))
	require.Equal(t, 1.0, row.At(1))

	_, err = s.Fetch()
	require.ErrorIs(t, err, io.EOF)
}

func TestExecuteSchemaFailure(t *testing.T) {
	for _, op := range []string{"ColumnType", "DefineByPos"} {
		t.Run(op, func(t *testing.T) {
			f, c, _ := connect(t)
			f.Script("SELECT A, B FROM T", ocifake.Script{
				Columns: []ocifake.Column{
					{Name: "A", Type: oci.SQLT_NUM, Size: 22},
					{Name: "B", Type: oci.SQLT_CHR, Size: 8},
				},
				Rows: [][]any{{1, "x"}},
			})
			s, err := c.Prepare("SELECT A, B FROM T")
			require.NoError(t, err)
			defer s.Close()

			_, err = s.Execute()
			require.NoError(t, err)
			require.Equal(t, []string{"A", "B"}, s.Columns())

			f.FailNext(op, oci.OCI_ERROR, 1007, "ORA-01007: variable not in select list")
			_, err = s.Execute()
			require.True(t, IsKind(err, KindRecoverable))
			require.EqualValues(t, 1007, ORACode(err))
			require.Zero(t, f.Live(oci.OCI_DTYPE_PARAM))
			// the chain of the previous execution is gone too
			require.Nil(t, s.fetch)
			require.Nil(t, s.Columns())

			_, err = s.Fetch()
			require.ErrorIs(t, err, ErrNotExecuted)

			_, err = s.Execute()
			require.NoError(t, err)
			row, err := s.Fetch()
			require.NoError(t, err)
			require.Equal(t, "x", row.Get("B"))
			require.Equal(t, 1.0, row.Get("A"))
		})
	}
}
