package oluacle

import (
	"slices"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oluacle/oluacle/internal/ocifake"
	"github.com/oluacle/oluacle/oci"
)

func TestConnectSetsDateFormat(t *testing.T) {
	f, _, _ := connect(t)
	require.Equal(t, []string{"ALTER SESSION SET NLS_DATE_FORMAT = 'YYYY/MM/DD HH24:MI:SS'"}, f.Executed)

	f, _, _ = connect(t, WithDateFormat(""))
	require.Empty(t, f.Executed)
}

func TestConnectDenied(t *testing.T) {
	f := ocifake.New()
	f.Users = map[string]string{"scott": "tiger"}
	_, err := Connect(NewEnvironment(f), "scott", "wrong", "")
	require.True(t, IsKind(err, KindRecoverable))
	require.EqualValues(t, 1017, ORACode(err))
	require.Zero(t, f.Live(oci.OCI_HTYPE_ERROR))
	require.Zero(t, f.Live(oci.OCI_HTYPE_SVCCTX))
}

func TestConnectWarning(t *testing.T) {
	const msg = "ORA-28002: the password will expire within 7 days"

	t.Run("returned by default", func(t *testing.T) {
		f := ocifake.New()
		f.FailNext("Logon", oci.OCI_SUCCESS_WITH_INFO, 28002, msg)

		c, err := Connect(NewEnvironment(f), "scott", "tiger", "")
		require.Nil(t, c)
		require.True(t, IsKind(err, KindWarning))
		require.EqualValues(t, 28002, ORACode(err))
		require.Equal(t, "oluacle: connect: "+msg, err.Error())
		require.Zero(t, f.Live(oci.OCI_HTYPE_SVCCTX))
		require.Zero(t, f.Live(oci.OCI_HTYPE_ERROR))
		require.Zero(t, f.DoubleFrees)
	})

	t.Run("tolerated", func(t *testing.T) {
		f := ocifake.New()
		logger, hook := newHookLogger()
		f.FailNext("Logon", oci.OCI_SUCCESS_WITH_INFO, 28002, msg)

		c, err := Connect(NewEnvironment(f), "scott", "tiger", "", WithLogger(logger), WithLogonWarningsTolerated())
		require.NoError(t, err)
		defer c.Close()
		require.True(t, hasEntry(hook, logrus.WarnLevel, "logon warning"))
		require.Equal(t, 1, f.Live(oci.OCI_HTYPE_SVCCTX))
	})
}

func TestCloseReleasesEverything(t *testing.T) {
	f, c, _ := connect(t)
	scriptDual(f)

	open := query(t, c, "SELECT DUMMY FROM DUAL")
	idle, err := c.Prepare("SELECT DUMMY FROM DUAL")
	require.NoError(t, err)
	require.Equal(t, 2, f.Live(oci.OCI_HTYPE_STMT))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.NoError(t, c.Disconnect())

	for _, typ := range []oci.HandleType{oci.OCI_HTYPE_STMT, oci.OCI_HTYPE_ERROR, oci.OCI_HTYPE_SVCCTX} {
		require.Zero(t, f.Live(typ), typ)
	}
	require.Zero(t, f.DoubleFrees)
	require.Equal(t, 1, f.Rollbacks)

	calls := f.Calls()
	require.Equal(t, []string{"TransRollback", "Logoff", "HandleFree"}, calls[len(calls)-3:])

	_, err = open.Fetch()
	require.ErrorIs(t, err, ErrStmtFinalized)
	_, err = idle.Execute()
	require.ErrorIs(t, err, ErrStmtFinalized)
	require.NoError(t, open.Close())
	require.Zero(t, f.DoubleFrees)
}

func TestClosedConnectionIsMisuse(t *testing.T) {
	_, c, _ := connect(t)
	require.NoError(t, c.Logoff())

	_, err := c.Prepare("SELECT 1 FROM DUAL")
	require.ErrorIs(t, err, ErrConnClosed)
	require.True(t, IsKind(c.Commit(), KindMisuse))
	require.ErrorIs(t, c.Rollback(), ErrConnClosed)
}

func TestCloseKeepsGoingAfterFailure(t *testing.T) {
	f, c, hook := connect(t)
	f.FailNext("Logoff", oci.OCI_ERROR, 1012, "ORA-01012: not logged on")

	err := c.Close()
	require.EqualValues(t, 1012, ORACode(err))
	require.Zero(t, f.Live(oci.OCI_HTYPE_ERROR))
	require.True(t, hasEntry(hook, logrus.WarnLevel, "close"))
	require.NoError(t, c.Close())
}

func TestCommitAndRollback(t *testing.T) {
	f, c, _ := connect(t)
	require.NoError(t, c.Commit())
	require.NoError(t, c.Rollback())
	require.Equal(t, 1, f.Commits)
	require.Equal(t, 1, f.Rollbacks)

	f.FailNext("TransCommit", oci.OCI_ERROR, 2091, "ORA-02091: transaction rolled back")
	require.EqualValues(t, 2091, ORACode(c.Commit()))
}

func TestPrepareFailureFreesHandles(t *testing.T) {
	f, c, _ := connect(t)
	f.FailNext("StmtPrepare", oci.OCI_ERROR, 900, "ORA-00900: invalid SQL statement")

	_, err := c.Prepare("SELEC 1")
	require.EqualValues(t, 900, ORACode(err))
	require.Zero(t, f.Live(oci.OCI_HTYPE_STMT))
	require.Equal(t, 1, f.Live(oci.OCI_HTYPE_ERROR))

	f.FailNext("HandleAlloc", oci.OCI_ERROR, 0, "")
	_, err = c.Prepare("SELECT 1 FROM DUAL")
	require.True(t, IsKind(err, KindAlloc))
	require.Equal(t, 1, f.Live(oci.OCI_HTYPE_ERROR))
}

func TestConnectionFinalizer(t *testing.T) {
	f, c, hook := connect(t)
	c.gc()
	require.True(t, hasEntry(hook, logrus.WarnLevel, "connection was not closed; closing"))
	require.Zero(t, f.Live(oci.OCI_HTYPE_SVCCTX))
	require.True(t, slices.Contains(f.Calls(), "Logoff"))

	hook.Reset()
	c.gc()
	require.Empty(t, hook.AllEntries())
}
