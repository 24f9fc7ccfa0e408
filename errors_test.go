package oluacle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oluacle/oluacle/internal/ocifake"
	"github.com/oluacle/oluacle/oci"
)

func TestTranslate(t *testing.T) {
	f := ocifake.New()
	env, _ := f.EnvCreate()
	errh, _ := f.HandleAlloc(env, oci.OCI_HTYPE_ERROR)

	require.NoError(t, translate("op", f, errh, oci.OCI_SUCCESS))
	require.NoError(t, translate("op", f, errh, oci.OCI_NO_DATA))

	t.Run("warning without diagnostic", func(t *testing.T) {
		err := translate("op", f, errh, oci.OCI_SUCCESS_WITH_INFO)
		require.True(t, IsKind(err, KindWarning))
		require.Equal(t, "oluacle: op: warning", err.Error())
	})

	t.Run("error carries the diagnostic record", func(t *testing.T) {
		f.FailNext("TransCommit", oci.OCI_ERROR, 2291, "ORA-02291: integrity constraint violated")
		st := f.TransCommit(0, errh)
		err := translate("commit", f, errh, st)
		require.True(t, IsKind(err, KindRecoverable))
		require.EqualValues(t, 2291, ORACode(err))
		require.Equal(t, "oluacle: commit: ORA-02291: integrity constraint violated", err.Error())

		var e *Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, oci.OCI_ERROR, e.Status)
	})

	for _, st := range []oci.Status{oci.OCI_INVALID_HANDLE, oci.OCI_STILL_EXECUTING, oci.OCI_CONTINUE, oci.OCI_NEED_DATA} {
		require.True(t, IsKind(translate("op", f, errh, st), KindFatal), st.String())
	}

	err := translate("op", f, errh, oci.Status(-9999))
	require.True(t, IsKind(err, KindUnknown))
	require.Contains(t, err.Error(), "-9999")
}

func TestMisuseUnwraps(t *testing.T) {
	err := misuse("fetch", ErrStmtFinalized)
	require.ErrorIs(t, err, ErrStmtFinalized)
	require.True(t, IsKind(err, KindMisuse))
	require.Zero(t, ORACode(err))
	require.Equal(t, "oluacle: fetch: oluacle: statement finalized", err.Error())
	require.False(t, IsKind(errors.New("plain"), KindMisuse))
}
